package scrape

import (
	"context"
	"fmt"
)

// FreshnessGate decides whether stored data is recent enough to skip a
// re-fetch. The staleness threshold comes from the schedule-window policy
// and is read on every call, never cached.
type FreshnessGate struct {
	store  DataStore
	phases PhaseProvider
	clock  Clock
}

// NewFreshnessGate constructs a gate over the given store and phase source.
func NewFreshnessGate(store DataStore, phases PhaseProvider, clock Clock) *FreshnessGate {
	return &FreshnessGate{store: store, phases: phases, clock: clock}
}

// Fresh reports whether every requested data type for the match was stored
// within the current freshness threshold. One stale or never-scraped type
// makes the whole request stale.
func (g *FreshnessGate) Fresh(ctx context.Context, matchID string, dataTypes []DataType) (bool, error) {
	if len(dataTypes) == 0 {
		return false, nil
	}
	threshold := g.phases.WindowPhase().FreshnessThreshold
	if threshold <= 0 {
		return false, nil
	}
	now := g.clock.Now()
	for _, dt := range dataTypes {
		at, err := g.store.LastScrapedAt(ctx, matchID, dt)
		if err != nil {
			return false, fmt.Errorf("last scraped at %s/%s: %w", matchID, dt, err)
		}
		if at.IsZero() || now.Sub(at) >= threshold {
			return false, nil
		}
	}
	return true, nil
}
