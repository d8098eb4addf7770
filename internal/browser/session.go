// Package browser owns the long-lived headless-browser session used for DOM
// extraction fallback. One process has one browser and one reusable
// browsing context; the queue guarantees navigations never overlap.
package browser

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/poolspel/matchdata-crawler/internal/scrape"
)

// ErrBrowserDisabled indicates headless browsing is unavailable on this
// runtime (disabled by configuration or running serverless).
var ErrBrowserDisabled = errors.New("browser session disabled")

// selectorWait bounds the best-effort wait for a data type's widget
// selector. Absence is tolerated: blocked pages have no widgets and the
// rate-limit detector still needs their HTML.
const selectorWait = 10 * time.Second

// Config controls the browser session.
type Config struct {
	Enabled           bool
	NavigationTimeout time.Duration
	CookieJarPath     string
	// QPS caps navigations against the target site; zero disables the cap.
	QPS float64
	// Seed drives fingerprint selection; zero means time-based.
	Seed int64
}

// Session is a live browser with one configured browsing context.
type Session struct {
	cfg         Config
	fp          Fingerprint
	allocCancel context.CancelFunc
	browserCtx  context.Context
	browserStop context.CancelFunc
	limiter     *rate.Limiter
	logger      *zap.Logger

	// lastNavFailed extends the next settle delay, mirroring the remote
	// service's slower retry profile.
	lastNavFailed bool
}

// NewSession launches the browser, applies the fingerprint, and loads the
// persisted cookie jar. Returns ErrBrowserDisabled when cfg.Enabled is
// false.
func NewSession(cfg Config, logger *zap.Logger) (*Session, error) {
	if !cfg.Enabled {
		return nil, ErrBrowserDisabled
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	fp := RandomFingerprint(rand.New(rand.NewSource(seed)))

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
		chromedp.Flag("disable-site-isolation-trials", true),
		chromedp.Flag("lang", fp.Locale),
		chromedp.WindowSize(int(fp.ViewportWidth), int(fp.ViewportHeight)),
		chromedp.UserAgent(fp.UserAgent),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserStop := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserStop()
		allocCancel()
		return nil, fmt.Errorf("browser warmup: %w", err)
	}

	s := &Session{
		cfg:         cfg,
		fp:          fp,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		browserStop: browserStop,
		logger:      logger,
	}
	if cfg.QPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.QPS), 1)
	}
	if err := loadCookieJar(browserCtx, cfg.CookieJarPath); err != nil {
		logger.Warn("cookie jar load failed", zap.Error(err))
	}
	logger.Info("browser session started",
		zap.String("user_agent", fp.UserAgent),
		zap.Int64("viewport_w", fp.ViewportWidth),
		zap.Int64("viewport_h", fp.ViewportHeight),
	)
	return s, nil
}

// Available reports whether the session can navigate.
func (s *Session) Available() bool {
	return s != nil
}

// Close tears down the browser.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.browserStop()
	s.allocCancel()
}

// Navigate loads url in a fresh tab, waits for the data type's widget to
// render, and returns the final URL, status, title and DOM snapshot. The
// cookie jar is saved after every navigation.
func (s *Session) Navigate(ctx context.Context, url string, dataType scrape.DataType) (scrape.PageVisit, error) {
	if s == nil {
		return scrape.PageVisit{}, ErrBrowserDisabled
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return scrape.PageVisit{}, fmt.Errorf("navigation rate limit: %w", err)
		}
	}

	tabCtx, cancelTab := chromedp.NewContext(s.browserCtx)
	defer cancelTab()
	taskCtx, cancelTask := context.WithTimeout(tabCtx, s.cfg.NavigationTimeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	rule := ruleFor(dataType)
	settle := rule.Settle
	if s.lastNavFailed {
		settle = settle * 3 / 2
	}

	var (
		html     string
		title    string
		finalURL string
	)
	actions := []chromedp.Action{
		s.setupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(consentScript, nil),
		waitForSelector(rule.Selector),
	}
	if rule.Scroll {
		actions = append(actions, chromedp.Evaluate(scrollScript, nil, awaitPromise))
	}
	actions = append(actions,
		chromedp.Sleep(settle),
		chromedp.Location(&finalURL),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		s.lastNavFailed = true
		return scrape.PageVisit{}, fmt.Errorf("chromedp run: %w", err)
	}
	s.lastNavFailed = false

	if err := saveCookieJar(tabCtx, s.cfg.CookieJarPath); err != nil {
		s.logger.Warn("cookie jar save failed", zap.Error(err))
	}

	status := meta.status()
	if status == 0 {
		status = 200
	}
	if finalURL == "" {
		finalURL = url
	}
	return scrape.PageVisit{
		RequestedURL: url,
		FinalURL:     finalURL,
		StatusCode:   status,
		Title:        title,
		HTML:         html,
	}, nil
}

// setupAction applies the fingerprint and the stealth script to a new tab
// before navigation.
func (s *Session) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		ua := emulation.SetUserAgentOverride(s.fp.UserAgent).
			WithAcceptLanguage(s.fp.AcceptLanguage).
			WithPlatform(s.fp.Platform)
		if err := ua.Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		if err := emulation.SetDeviceMetricsOverride(s.fp.ViewportWidth, s.fp.ViewportHeight, 1, false).Do(ctx); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		headers := network.Headers{"Accept-Language": s.fp.AcceptLanguage}
		if err := network.SetExtraHTTPHeaders(headers).Do(ctx); err != nil {
			return fmt.Errorf("set extra headers: %w", err)
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx); err != nil {
			return fmt.Errorf("inject stealth script: %w", err)
		}
		return nil
	})
}

// waitForSelector polls for the selector until it appears or the budget
// runs out. Never fails the navigation.
func waitForSelector(selector string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if selector == "" {
			return nil
		}
		deadline := time.Now().Add(selectorWait)
		expr := fmt.Sprintf("document.querySelector(%q) !== null", selector)
		for time.Now().Before(deadline) {
			var found bool
			if err := chromedp.Evaluate(expr, &found).Do(ctx); err != nil {
				return nil
			}
			if found {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(250 * time.Millisecond):
			}
		}
		return nil
	})
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// responseMeta captures the main document response from CDP events. Events
// arrive on chromedp's goroutine, hence the mutex.
type responseMeta struct {
	mu         sync.Mutex
	statusCode int
	seen       bool
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen {
		return
	}
	m.seen = true
	m.statusCode = int(resp.Response.Status)
}

func (m *responseMeta) status() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusCode
}
