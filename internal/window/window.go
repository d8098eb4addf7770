// Package window supplies the schedule-window phase the queue paces by.
// Calendar logic stays here; the scrape pipeline only reads the resulting
// phase.
package window

import (
	"sync"
	"time"

	"github.com/poolspel/matchdata-crawler/internal/scrape"
)

// Config sets the cutoffs for escalating scrape intensity as the draw
// deadline approaches, and the freshness threshold used in each phase.
type Config struct {
	// VeryAggressiveWithin escalates to the tightest pacing when the draw
	// closes within this duration.
	VeryAggressiveWithin time.Duration `mapstructure:"very_aggressive_within"`
	// AggressiveWithin escalates pacing when the draw closes within this
	// duration.
	AggressiveWithin time.Duration `mapstructure:"aggressive_within"`

	VeryAggressiveFreshness time.Duration `mapstructure:"very_aggressive_freshness"`
	AggressiveFreshness     time.Duration `mapstructure:"aggressive_freshness"`
	NormalFreshness         time.Duration `mapstructure:"normal_freshness"`
}

// DefaultConfig returns the production cutoffs.
func DefaultConfig() Config {
	return Config{
		VeryAggressiveWithin:    2 * time.Hour,
		AggressiveWithin:        12 * time.Hour,
		VeryAggressiveFreshness: 15 * time.Minute,
		AggressiveFreshness:     time.Hour,
		NormalFreshness:         24 * time.Hour,
	}
}

// Provider implements scrape.PhaseProvider from the configured cutoffs and
// the close time of the draw currently being worked.
type Provider struct {
	cfg   Config
	clock scrape.Clock

	mu        sync.RWMutex
	drawClose time.Time
}

// New creates a Provider.
func New(cfg Config, clock scrape.Clock) *Provider {
	return &Provider{cfg: cfg, clock: clock}
}

// SetDrawClose records when the active draw stops accepting bets.
func (p *Provider) SetDrawClose(at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drawClose = at
}

// WindowPhase derives the current phase. With no draw close set, or with a
// deadline already passed, pacing stays at normal.
func (p *Provider) WindowPhase() scrape.WindowPhase {
	p.mu.RLock()
	drawClose := p.drawClose
	p.mu.RUnlock()

	phase := scrape.WindowPhase{
		Intensity:          scrape.IntensityNormal,
		FreshnessThreshold: p.cfg.NormalFreshness,
	}
	if drawClose.IsZero() {
		return phase
	}
	remaining := drawClose.Sub(p.clock.Now())
	if remaining <= 0 {
		return phase
	}
	switch {
	case remaining <= p.cfg.VeryAggressiveWithin:
		phase.Intensity = scrape.IntensityVeryAggressive
		phase.FreshnessThreshold = p.cfg.VeryAggressiveFreshness
	case remaining <= p.cfg.AggressiveWithin:
		phase.Intensity = scrape.IntensityAggressive
		phase.FreshnessThreshold = p.cfg.AggressiveFreshness
	}
	return phase
}

// Static is a fixed-phase provider for tests and one-shot runs.
type Static struct {
	Phase scrape.WindowPhase
}

// WindowPhase returns the fixed phase.
func (s Static) WindowPhase() scrape.WindowPhase {
	return s.Phase
}
