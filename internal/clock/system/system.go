// Package system is the wall-clock implementation of scrape.Clock.
package system

import "time"

// Clock reads the system time in UTC. Freshness checks compare against
// TIMESTAMPTZ rows, so every timestamp in the pipeline stays UTC.
type Clock struct{}

// New returns a system Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
