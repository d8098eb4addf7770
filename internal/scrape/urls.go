package scrape

import (
	"fmt"
	"sync"
	"time"
)

// currentWindow is how long after its draw date a draw still uses the
// live-site URL patterns before switching to the dated archive patterns.
const currentWindow = 7 * 24 * time.Hour

// ResolvedURL is a URL plus the template family it came from.
type ResolvedURL struct {
	URL     string
	Pattern URLPattern
}

// DomainProber checks whether a domain serves a known-good path.
type DomainProber interface {
	Probe(domain, path string) bool
}

// ResolverConfig configures URL construction.
type ResolverConfig struct {
	// PrimaryDomain and FallbackDomain include the scheme, no trailing slash.
	PrimaryDomain  string
	FallbackDomain string
	// ProbePath is a cheap known-good path used to pick the domain.
	ProbePath string
}

// Resolver builds URLs for (data type, draw, match) tuples. Draws within the
// current window use live-site paths; older draws use dated archive paths.
// Runtime-discovered URLs override templated construction so navigation
// links observed on the site win without a code change.
type Resolver struct {
	cfg    ResolverConfig
	prober DomainProber
	clock  Clock

	mu          sync.Mutex
	domain      string
	probed      bool
	currentDraw int
	discovered  map[string]map[DataType]string
}

// NewResolver constructs a Resolver. The domain choice is made lazily on
// first use and then kept for the process lifetime.
func NewResolver(cfg ResolverConfig, prober DomainProber, clock Clock) *Resolver {
	return &Resolver{
		cfg:        cfg,
		prober:     prober,
		clock:      clock,
		discovered: make(map[string]map[DataType]string),
	}
}

// statsSections maps each data type to its path segment on the statistics
// routes. headToHead is absent: the site has no dedicated page for it, so it
// rides on the statistics page (DOM extraction only).
var statsSections = map[DataType]string{
	DataTypeXStats:     "xstats",
	DataTypeStatistics: "statistik",
	DataTypeHeadToHead: "statistik",
	DataTypeNews:       "nyheter",
	DataTypeMatchInfo:  "matchinfo",
	DataTypeTable:      "tabell",
	DataTypeLineup:     "laguppstallning",
	DataTypeAnalysis:   "speltips",
	DataTypeOddset:     "oddset",
}

// AISupported reports whether the remote extraction service has a usable URL
// for the data type. headToHead is DOM-only.
func AISupported(dt DataType) bool {
	return dt != DataTypeHeadToHead
}

// Resolve returns the URL to scrape for one data type of a request.
func (r *Resolver) Resolve(req Request, dt DataType) (ResolvedURL, error) {
	section, ok := statsSections[dt]
	if !ok {
		return ResolvedURL{}, fmt.Errorf("no url template for data type %q", dt)
	}

	if override := r.lookupDiscovered(req.MatchID, dt); override != "" {
		return ResolvedURL{URL: override, Pattern: PatternDiscovered}, nil
	}

	domain := r.pickDomain()
	if r.isCurrent(req.DrawDate) {
		u := fmt.Sprintf("%s/%s/statistik/%s?event=%d", domain, req.GameType, section, req.MatchNumber)
		return ResolvedURL{URL: u, Pattern: PatternCurrent}, nil
	}
	if req.DrawDate.IsZero() {
		return ResolvedURL{}, fmt.Errorf("historic url for draw %d requires a draw date", req.DrawNumber)
	}
	u := fmt.Sprintf("%s/%s/statistik/%s/%s?draw=%d&event=%d",
		domain, req.GameType, section, req.DrawDate.Format("2006-01-02"), req.DrawNumber, req.MatchNumber)
	return ResolvedURL{URL: u, Pattern: PatternHistoric}, nil
}

// Domain returns the domain in use, probing on first call.
func (r *Resolver) Domain() string {
	return r.pickDomain()
}

// RememberURL stores a runtime-discovered URL for (matchID, dataType).
func (r *Resolver) RememberURL(matchID string, dt DataType, url string) {
	if matchID == "" || url == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	byType, ok := r.discovered[matchID]
	if !ok {
		byType = make(map[DataType]string)
		r.discovered[matchID] = byType
	}
	byType[dt] = url
}

// SwitchDraw clears the discovered-URL cache when moving to another draw.
// Discovered links are only valid within one draw.
func (r *Resolver) SwitchDraw(drawNumber int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if drawNumber == r.currentDraw {
		return
	}
	r.currentDraw = drawNumber
	r.discovered = make(map[string]map[DataType]string)
}

func (r *Resolver) lookupDiscovered(matchID string, dt DataType) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if byType, ok := r.discovered[matchID]; ok {
		return byType[dt]
	}
	return ""
}

func (r *Resolver) isCurrent(drawDate time.Time) bool {
	if drawDate.IsZero() {
		return true
	}
	return r.clock.Now().Sub(drawDate) <= currentWindow
}

// pickDomain probes primary then fallback once and remembers the winner. If
// neither answers, the primary is used anyway so the caller still gets a
// URL to fail on (and log).
func (r *Resolver) pickDomain() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.probed {
		return r.domain
	}
	r.probed = true
	r.domain = r.cfg.PrimaryDomain
	if r.prober == nil {
		return r.domain
	}
	if r.prober.Probe(r.cfg.PrimaryDomain, r.cfg.ProbePath) {
		return r.domain
	}
	if r.cfg.FallbackDomain != "" && r.prober.Probe(r.cfg.FallbackDomain, r.cfg.ProbePath) {
		r.domain = r.cfg.FallbackDomain
	}
	return r.domain
}
