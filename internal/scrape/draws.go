package scrape

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DrawCloseSetter records when the active draw stops accepting bets, which
// drives the schedule-window phase.
type DrawCloseSetter interface {
	SetDrawClose(at time.Time)
}

// URLDiscoverer harvests statistics links from a draw overview page into the
// resolver's discovered-URL cache.
type URLDiscoverer interface {
	DiscoverMatchURLs(drawURL string, matchIDs map[int]string, resolver *Resolver) (int, error)
}

// DrawActivation describes the draw the service should work on next.
type DrawActivation struct {
	DrawNumber int
	GameType   GameType
	// CloseAt is when the draw stops accepting bets; zero leaves the
	// schedule window untouched.
	CloseAt time.Time
	// Matches maps 1-based match numbers to match IDs, used to key
	// discovered links. Empty skips discovery.
	Matches map[int]string
}

// DrawCoordinator applies a draw switch across the stateful collaborators:
// it clears the resolver's discovered-URL cache, moves the schedule window,
// and harvests the new draw's navigation links so discovered URLs override
// templated ones from the first scrape on.
type DrawCoordinator struct {
	resolver   *Resolver
	window     DrawCloseSetter
	discoverer URLDiscoverer
	logger     *zap.Logger
}

// NewDrawCoordinator wires a coordinator. window and discoverer may be nil.
func NewDrawCoordinator(resolver *Resolver, window DrawCloseSetter, discoverer URLDiscoverer, logger *zap.Logger) *DrawCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DrawCoordinator{
		resolver:   resolver,
		window:     window,
		discoverer: discoverer,
		logger:     logger,
	}
}

// ActivateDraw switches to the draw and returns the number of discovered
// links. Discovery is best-effort: a failed harvest only means URLs fall
// back to the templates.
func (c *DrawCoordinator) ActivateDraw(d DrawActivation) (int, error) {
	if d.DrawNumber <= 0 {
		return 0, fmt.Errorf("draw number must be > 0")
	}
	c.resolver.SwitchDraw(d.DrawNumber)
	if c.window != nil && !d.CloseAt.IsZero() {
		c.window.SetDrawClose(d.CloseAt)
	}
	if c.discoverer == nil || len(d.Matches) == 0 {
		return 0, nil
	}

	drawURL := fmt.Sprintf("%s/%s", c.resolver.Domain(), d.GameType)
	found, err := c.discoverer.DiscoverMatchURLs(drawURL, d.Matches, c.resolver)
	if err != nil {
		c.logger.Warn("draw link discovery failed",
			zap.Int("draw_number", d.DrawNumber),
			zap.String("draw_url", drawURL),
			zap.Error(err),
		)
		return 0, nil
	}
	c.logger.Info("draw activated",
		zap.Int("draw_number", d.DrawNumber),
		zap.Int("discovered_links", found),
	)
	return found, nil
}
