package scrape

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// CollyProber probes domains with a plain HTTP GET through Colly. The
// transport carries the cloudflare-friendly header set so a CDN challenge on
// the probe path does not falsely fail the primary domain.
type CollyProber struct {
	userAgent string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewCollyProber builds a prober.
func NewCollyProber(userAgent string, timeout time.Duration, logger *zap.Logger) *CollyProber {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &CollyProber{userAgent: userAgent, timeout: timeout, logger: logger}
}

// Probe requests domain+path and reports whether it answered 2xx/3xx.
func (p *CollyProber) Probe(domain, path string) bool {
	c := p.newCollector()
	ok := false
	c.OnResponse(func(r *colly.Response) {
		ok = r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusBadRequest
	})
	c.OnError(func(r *colly.Response, err error) {
		p.logger.Debug("domain probe failed",
			zap.String("domain", domain),
			zap.Error(err),
		)
	})
	if err := c.Visit(domain + path); err != nil {
		p.logger.Debug("domain probe visit", zap.String("domain", domain), zap.Error(err))
		return false
	}
	c.Wait()
	return ok
}

// DiscoverMatchURLs walks a draw overview page, feeds statistics links it
// finds into the resolver's discovered-URL cache, and returns how many it
// remembered. matchIDs maps 1-based match numbers to match IDs for the
// current draw.
func (p *CollyProber) DiscoverMatchURLs(drawURL string, matchIDs map[int]string, resolver *Resolver) (int, error) {
	c := p.newCollector()
	found := 0
	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		href := e.Request.AbsoluteURL(e.Attr("href"))
		dt, matchNumber, ok := classifyStatsLink(href)
		if !ok {
			return
		}
		matchID, ok := matchIDs[matchNumber]
		if !ok {
			return
		}
		resolver.RememberURL(matchID, dt, href)
		found++
	})
	if err := c.Visit(drawURL); err != nil {
		return 0, fmt.Errorf("visit draw page: %w", err)
	}
	c.Wait()
	p.logger.Info("url discovery finished",
		zap.String("draw_url", drawURL),
		zap.Int("links", found),
	)
	return found, nil
}

func (p *CollyProber) newCollector() *colly.Collector {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	if p.userAgent != "" {
		c.UserAgent = p.userAgent
	}
	c.SetRequestTimeout(p.timeout)
	c.WithTransport(cloudflarebp.AddCloudFlareByPass(http.DefaultTransport))
	return c
}

// classifyStatsLink recognizes statistics-route links of the form
// .../statistik/<section>?...event=<n> and maps the section back to a data
// type.
func classifyStatsLink(href string) (DataType, int, bool) {
	if !strings.Contains(href, "/statistik/") {
		return "", 0, false
	}
	pathPart := href
	query := ""
	if i := strings.IndexByte(href, '?'); i >= 0 {
		pathPart, query = href[:i], href[i+1:]
	}
	matchNumber := 0
	for _, kv := range strings.Split(query, "&") {
		if v, ok := strings.CutPrefix(kv, "event="); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return "", 0, false
			}
			matchNumber = n
		}
	}
	if matchNumber <= 0 {
		return "", 0, false
	}
	for dt, section := range statsSections {
		if dt == DataTypeHeadToHead {
			continue
		}
		if strings.Contains(pathPart, "/statistik/"+section) {
			return dt, matchNumber, true
		}
	}
	return "", 0, false
}
