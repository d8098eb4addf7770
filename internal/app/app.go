// Package app initializes and holds the long-lived application services,
// acting as the dependency injection container. Every collaborator is
// constructed here and handed to the components that need it; nothing in
// the pipeline reaches for globals.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/poolspel/matchdata-crawler/internal/aiclient"
	"github.com/poolspel/matchdata-crawler/internal/api"
	"github.com/poolspel/matchdata-crawler/internal/browser"
	"github.com/poolspel/matchdata-crawler/internal/clock/system"
	"github.com/poolspel/matchdata-crawler/internal/config"
	"github.com/poolspel/matchdata-crawler/internal/extractors"
	"github.com/poolspel/matchdata-crawler/internal/id/uuid"
	"github.com/poolspel/matchdata-crawler/internal/metrics"
	pubmemory "github.com/poolspel/matchdata-crawler/internal/publisher/memory"
	pubgcp "github.com/poolspel/matchdata-crawler/internal/publisher/pubsub"
	"github.com/poolspel/matchdata-crawler/internal/scrape"
	"github.com/poolspel/matchdata-crawler/internal/snapshots"
	storememory "github.com/poolspel/matchdata-crawler/internal/store/memory"
	storepostgres "github.com/poolspel/matchdata-crawler/internal/store/postgres"
	"github.com/poolspel/matchdata-crawler/internal/window"
)

// App holds the shared, long-lived services for the scraper.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	queue        *scrape.Queue
	orchestrator *scrape.Orchestrator
	analytics    *scrape.Analytics
	breaker      *scrape.CircuitBreaker
	window       *window.Provider
	remote       *aiclient.Client
	session      *browser.Session

	httpServer   *http.Server
	pool         *pgxpool.Pool
	pubsubClient *pubsub.Client
	gcsClient    *gstorage.Client
}

// New wires the application from its configuration. It fails fast: any
// service that cannot be constructed aborts startup.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	metrics.Init()

	clk := system.New()
	ids := uuid.New()
	a := &App{cfg: cfg, logger: logger}

	store, err := a.buildStore(ctx, cfg, clk)
	if err != nil {
		return nil, err
	}
	publisher, err := a.buildPublisher(ctx, cfg)
	if err != nil {
		return nil, err
	}
	snapshotStore, err := a.buildSnapshots(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a.window = window.New(cfg.Window, clk)
	a.analytics = scrape.NewAnalytics()
	a.breaker = scrape.NewCircuitBreaker(scrape.DefaultBreakerThreshold, scrape.DefaultBreakerCooldown, clk)

	a.remote = aiclient.New(aiclient.Config{
		BaseURL:     cfg.AI.BaseURL,
		Timeout:     cfg.AITimeout(),
		HealthTTL:   time.Duration(cfg.AI.HealthTTLSec) * time.Second,
		MaxParallel: cfg.AI.MaxParallel,
	}, clk, logger.Named("aiclient"))

	session, err := browser.NewSession(browser.Config{
		Enabled:           cfg.Browser.Enabled,
		NavigationTimeout: cfg.NavTimeout(),
		CookieJarPath:     cfg.Browser.CookieJarPath,
		QPS:               cfg.Browser.QPS,
		Seed:              cfg.Browser.FingerprintSeed,
	}, logger.Named("browser"))
	if err != nil && !errors.Is(err, browser.ErrBrowserDisabled) {
		return nil, fmt.Errorf("start browser session: %w", err)
	}
	a.session = session

	var navigator scrape.Navigator
	if session != nil {
		navigator = session
	}

	prober := scrape.NewCollyProber("", 10*time.Second, logger.Named("prober"))
	resolver := scrape.NewResolver(scrape.ResolverConfig{
		PrimaryDomain:  cfg.Site.PrimaryDomain,
		FallbackDomain: cfg.Site.FallbackDomain,
		ProbePath:      cfg.Site.ProbePath,
	}, prober, clk)

	table, err := extractors.NewTable(logger.Named("extractors"))
	if err != nil {
		return nil, fmt.Errorf("build extractor table: %w", err)
	}

	a.orchestrator = scrape.NewOrchestrator(
		scrape.OrchestratorConfig{
			AIEnabled:       cfg.AI.Enabled,
			CompletionTopic: cfg.PubSub.TopicName,
		},
		a.remote,
		navigator,
		table,
		resolver,
		scrape.NewRateLimitDetector(),
		a.breaker,
		store,
		a.analytics,
		publisher,
		snapshotStore,
		clk,
		logger.Named("orchestrator"),
	)

	jitterSeed := cfg.Queue.JitterSeed
	if jitterSeed == 0 {
		jitterSeed = time.Now().UnixNano()
	}
	gate := scrape.NewFreshnessGate(store, a.window, clk)
	a.queue = scrape.NewQueue(
		a.orchestrator,
		gate,
		a.window,
		scrape.NewJitter(jitterSeed),
		clk,
		scrape.TimerSleeper{},
		ids,
		store,
		logger.Named("queue"),
	)

	draws := scrape.NewDrawCoordinator(resolver, a.window, prober, logger.Named("draws"))

	server := api.NewServer(a.queue, a.analytics, a.breaker, a.remote, draws, logger.Named("api"))
	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *App) buildStore(ctx context.Context, cfg config.Config, clk scrape.Clock) (scrape.DataStore, error) {
	if cfg.DB.DSN == "" {
		a.logger.Info("using in-memory data store")
		return storememory.New(clk), nil
	}
	a.logger.Info("connecting to postgres")
	store, pool, err := storepostgres.New(ctx, cfg.DB.DSN, clk)
	if err != nil {
		return nil, fmt.Errorf("initialize postgres store: %w", err)
	}
	a.pool = pool
	return store, nil
}

func (a *App) buildPublisher(ctx context.Context, cfg config.Config) (scrape.Publisher, error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		a.logger.Info("using in-memory publisher")
		return pubmemory.New(), nil
	}
	a.logger.Info("connecting to pub/sub", zap.String("topic", cfg.PubSub.TopicName))
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("initialize pubsub client: %w", err)
	}
	a.pubsubClient = client
	return pubgcp.New(client.Topic(cfg.PubSub.TopicName)), nil
}

func (a *App) buildSnapshots(ctx context.Context, cfg config.Config) (scrape.SnapshotStore, error) {
	switch cfg.Snapshots.Backend {
	case "gcs":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("initialize gcs client: %w", err)
		}
		a.gcsClient = client
		return snapshots.NewGCS(client, snapshots.GCSConfig{
			Bucket: cfg.Snapshots.GCSBucket,
			Prefix: cfg.Snapshots.Prefix,
		})
	case "local":
		return snapshots.NewLocal(snapshots.LocalConfig{BaseDir: cfg.Snapshots.BaseDir})
	default:
		return snapshots.NewMemory(), nil
	}
}

// Queue exposes the task queue, mainly for one-shot runs.
func (a *App) Queue() *scrape.Queue {
	return a.queue
}

// Window exposes the schedule-window provider so callers can set the active
// draw's close time.
func (a *App) Window() *window.Provider {
	return a.window
}

// Start runs the queue worker and the HTTP server until the context ends or
// the server fails.
func (a *App) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := a.queue.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("queue worker stopped", zap.Error(err))
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}

// Stop shuts the services down in reverse dependency order.
func (a *App) Stop(ctx context.Context) {
	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.logger.Warn("http server shutdown", zap.Error(err))
		}
	}
	if a.session != nil {
		a.session.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("close pubsub client", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("close gcs client", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	a.logger.Info("shutdown complete")
}
