package scrape

import (
	"sync"
)

// analyticsCap bounds the in-process event ring.
const analyticsCap = 1000

// Analytics keeps a capped, append-only ring of extraction events. Oldest
// entries are evicted first. Guarded by a mutex: the orchestrator runs
// sequentially but the API reads summaries concurrently.
type Analytics struct {
	mu     sync.Mutex
	events []AnalyticsEvent
	cap    int
}

// NewAnalytics creates an empty ring with the default capacity.
func NewAnalytics() *Analytics {
	return &Analytics{cap: analyticsCap}
}

// Record appends one event, evicting the oldest when full.
func (a *Analytics) Record(ev AnalyticsEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.events) >= a.cap {
		a.events = a.events[1:]
	}
	a.events = append(a.events, ev)
}

// Events returns a copy of the buffered events, oldest first.
func (a *Analytics) Events() []AnalyticsEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]AnalyticsEvent, len(a.events))
	copy(out, a.events)
	return out
}

// MethodSummary aggregates success counts per extraction method.
type MethodSummary struct {
	Method    ExtractionMethod `json:"method"`
	Total     int              `json:"total"`
	Succeeded int              `json:"succeeded"`
}

// Summary aggregates the ring per method, for the operator endpoint.
func (a *Analytics) Summary() []MethodSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	byMethod := map[ExtractionMethod]*MethodSummary{}
	order := []ExtractionMethod{}
	for _, ev := range a.events {
		s, ok := byMethod[ev.Method]
		if !ok {
			s = &MethodSummary{Method: ev.Method}
			byMethod[ev.Method] = s
			order = append(order, ev.Method)
		}
		s.Total++
		if ev.Success {
			s.Succeeded++
		}
	}
	out := make([]MethodSummary, 0, len(order))
	for _, m := range order {
		out = append(out, *byMethod[m])
	}
	return out
}
