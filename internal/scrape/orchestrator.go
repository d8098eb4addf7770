package scrape

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/poolspel/matchdata-crawler/internal/metrics"
)

// OrchestratorConfig carries the orchestrator's feature switches.
type OrchestratorConfig struct {
	// AIEnabled gates the remote extraction path entirely.
	AIEnabled bool
	// CompletionTopic, when set, receives one event per persisted outcome.
	CompletionTopic string
}

// Orchestrator coordinates the two extraction backends for one request at a
// time: remote AI extraction first, browser DOM extraction as fallback. It
// owns the protective state around both — the circuit breaker, the
// rate-limit detector, and the analytics ring — and persists every outcome.
//
// Requests are processed strictly sequentially; the browser session and the
// breaker are shared mutable state and the queue guarantees one caller.
type Orchestrator struct {
	cfg        OrchestratorConfig
	remote     RemoteExtractor
	browser    Navigator
	extractors ExtractorTable
	resolver   *Resolver
	detector   *RateLimitDetector
	breaker    *CircuitBreaker
	store      DataStore
	analytics  *Analytics
	publisher  Publisher
	snapshots  SnapshotStore
	clock      Clock
	logger     *zap.Logger
}

// NewOrchestrator wires an orchestrator. publisher and snapshots may be nil.
func NewOrchestrator(
	cfg OrchestratorConfig,
	remote RemoteExtractor,
	browser Navigator,
	extractors ExtractorTable,
	resolver *Resolver,
	detector *RateLimitDetector,
	breaker *CircuitBreaker,
	store DataStore,
	analytics *Analytics,
	publisher Publisher,
	snapshots SnapshotStore,
	clock Clock,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		remote:     remote,
		browser:    browser,
		extractors: extractors,
		resolver:   resolver,
		detector:   detector,
		breaker:    breaker,
		store:      store,
		analytics:  analytics,
		publisher:  publisher,
		snapshots:  snapshots,
		clock:      clock,
		logger:     logger,
	}
}

// Fetch processes every requested data type in caller order and returns one
// outcome per type attempted. A rate-limit failure aborts the remaining
// types in the request; any other failure only skips that one type.
func (o *Orchestrator) Fetch(ctx context.Context, req Request) []Outcome {
	o.resolver.SwitchDraw(req.DrawNumber)
	outcomes := make([]Outcome, 0, len(req.DataTypes))
	for _, dt := range req.DataTypes {
		if o.breaker.Open() {
			o.logger.Warn("circuit open, aborting request",
				zap.String("match_id", req.MatchID),
				zap.String("data_type", string(dt)),
			)
			outcomes = append(outcomes, o.finish(ctx, req, Outcome{
				DataType:  dt,
				Error:     ReasonCircuitOpen,
				Timestamp: o.clock.Now(),
			}))
			break
		}
		outcome := o.fetchOne(ctx, req, dt)
		outcomes = append(outcomes, outcome)
		if outcome.RateLimited {
			// One blocked navigation means the next one will be too.
			break
		}
	}
	metrics.SetBreakerRateLimits(o.breaker.ConsecutiveRateLimits())
	return outcomes
}

func (o *Orchestrator) fetchOne(ctx context.Context, req Request, dt DataType) Outcome {
	started := o.clock.Now()
	o.logOp(ctx, Operation{MatchID: req.MatchID, DataType: dt, Status: OpStarted, At: started})

	resolved, err := o.resolver.Resolve(req, dt)
	if err != nil {
		return o.finish(ctx, req, Outcome{
			DataType:  dt,
			Error:     fmt.Sprintf("resolve url: %v", err),
			Duration:  o.clock.Now().Sub(started),
			Timestamp: o.clock.Now(),
		})
	}

	outcome := Outcome{
		DataType:   dt,
		URLPattern: resolved.Pattern,
		Timestamp:  started,
	}

	if done := o.tryRemote(ctx, req, dt, resolved, &outcome); !done {
		o.tryDOM(ctx, req, dt, resolved, &outcome)
	}

	outcome.Duration = o.clock.Now().Sub(started)
	outcome.Timestamp = o.clock.Now()
	return o.finish(ctx, req, outcome)
}

// rawStateExpressions maps data types whose payload the site ships as
// embedded page state. Pulling that JSON via a raw evaluation is far cheaper
// than a full LLM extraction pass, so these types try it first.
var rawStateExpressions = map[DataType]string{
	DataTypeMatchInfo: "window.__INITIAL_STATE__ && window.__INITIAL_STATE__.matchInfo",
	DataTypeOddset:    "window.__INITIAL_STATE__ && window.__INITIAL_STATE__.odds",
}

// tryRemote runs the AI path. It returns true when the outcome is settled —
// either a usable payload or a rate-limit signal that forbids falling
// through to the browser.
func (o *Orchestrator) tryRemote(ctx context.Context, req Request, dt DataType, resolved ResolvedURL, outcome *Outcome) bool {
	if !o.cfg.AIEnabled || !AISupported(dt) {
		return false
	}
	if !o.remote.Healthy(ctx) {
		o.logger.Debug("remote extractor unhealthy, skipping AI path",
			zap.String("match_id", req.MatchID),
			zap.String("data_type", string(dt)),
		)
		outcome.Error = "remote extractor unhealthy"
		return false
	}

	if expr, ok := rawStateExpressions[dt]; ok {
		raw := o.remote.EvaluateRaw(ctx, resolved.URL, expr)
		if raw.Category == FailureRateLimited {
			outcome.Method = MethodAI
			outcome.RateLimited = true
			outcome.Error = raw.Error
			return true
		}
		if raw.Success && !IsEmpty(raw.Data) {
			outcome.Method = MethodAI
			outcome.Success = true
			outcome.Payload = raw.Data
			outcome.Tokens = raw.Tokens
			return true
		}
		// No embedded state on the page; the full extraction still applies.
	}

	res := o.remote.Extract(ctx, resolved.URL, dt, req.GameType)
	outcome.Method = MethodAI
	outcome.Tokens = res.Tokens

	if res.Category == FailureRateLimited {
		outcome.RateLimited = true
		outcome.Error = res.Error
		return true
	}
	if !res.Success || IsEmpty(res.Data) {
		// An empty success is not a success; fall through to the browser.
		if res.Error != "" {
			outcome.Error = res.Error
		} else {
			outcome.Error = "ai extraction returned empty payload"
		}
		o.logger.Info("ai extraction unusable, falling back to dom",
			zap.String("match_id", req.MatchID),
			zap.String("data_type", string(dt)),
			zap.String("reason", outcome.Error),
		)
		return false
	}

	outcome.Success = true
	outcome.Payload = res.Data
	outcome.Error = ""
	return true
}

// tryDOM runs the browser fallback and settles the outcome.
func (o *Orchestrator) tryDOM(ctx context.Context, req Request, dt DataType, resolved ResolvedURL, outcome *Outcome) {
	if o.browser == nil || !o.browser.Available() {
		outcome.Success = false
		outcome.Error = ReasonNoBrowserRuntime
		return
	}

	outcome.Method = MethodDOM
	visit, err := o.browser.Navigate(ctx, resolved.URL, dt)
	if err != nil {
		outcome.Error = fmt.Sprintf("browser navigation: %v", err)
		return
	}

	if verdict := o.detector.Inspect(visit); verdict.Blocked {
		outcome.RateLimited = true
		outcome.Error = verdict.Reason
		o.snapshot(ctx, req, dt, visit)
		return
	}

	extractor, ok := o.extractors.For(dt)
	if !ok {
		outcome.Error = fmt.Sprintf("no extractor registered for %q", dt)
		return
	}
	payload := o.safeScrape(ctx, extractor, visit, req, dt)
	if IsEmpty(payload) {
		outcome.Error = ReasonAllBackendsFailed
		o.snapshot(ctx, req, dt, visit)
		return
	}
	outcome.Success = true
	outcome.Payload = payload
	outcome.Error = ""
}

// safeScrape downgrades extractor panics and errors to "no data". A broken
// selector must not abort the whole request.
func (o *Orchestrator) safeScrape(ctx context.Context, extractor Extractor, visit PageVisit, req Request, dt DataType) (payload Object) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("extractor panicked",
				zap.String("data_type", string(dt)),
				zap.Any("panic", r),
			)
			payload = nil
		}
	}()
	payload, err := extractor.Scrape(ctx, visit, req)
	if err != nil {
		o.logger.Warn("extractor failed",
			zap.String("match_id", req.MatchID),
			zap.String("data_type", string(dt)),
			zap.Error(err),
		)
		return nil
	}
	return payload
}

// finish applies the outcome's side effects: breaker update, merge+persist
// on success, operation log, analytics, metrics, completion event.
func (o *Orchestrator) finish(ctx context.Context, req Request, outcome Outcome) Outcome {
	switch {
	case outcome.Success:
		o.breaker.RecordSuccess()
		o.persist(ctx, req, &outcome)
	case outcome.RateLimited:
		o.breaker.RecordRateLimit()
		metrics.ObserveRateLimitHit(o.resolver.Domain())
	}

	status := OpFailed
	switch {
	case outcome.Success:
		status = OpSuccess
	case outcome.RateLimited:
		status = OpRateLimited
	}
	var tokensIn, tokensOut int
	if outcome.Tokens != nil {
		tokensIn, tokensOut = outcome.Tokens.Input, outcome.Tokens.Output
	}
	o.logOp(ctx, Operation{
		MatchID:      req.MatchID,
		DataType:     outcome.DataType,
		Status:       status,
		ErrorMessage: outcome.Error,
		Duration:     outcome.Duration,
		TokensIn:     tokensIn,
		TokensOut:    tokensOut,
		At:           o.clock.Now(),
	})

	o.analytics.Record(AnalyticsEvent{
		Method:     outcome.Method,
		URLPattern: outcome.URLPattern,
		Domain:     o.resolver.Domain(),
		DataType:   outcome.DataType,
		Success:    outcome.Success,
		Duration:   outcome.Duration,
		Error:      outcome.Error,
		TokensIn:   tokensIn,
		TokensOut:  tokensOut,
		Timestamp:  outcome.Timestamp,
	})
	metrics.ObserveScrape(string(outcome.Method), string(outcome.DataType), outcome.Success, outcome.Duration)
	o.publishCompletion(ctx, req, outcome)
	return outcome
}

// persist merges the fresh payload with what is already stored and upserts
// the result. Existing non-null fields survive an incomplete re-scrape.
func (o *Orchestrator) persist(ctx context.Context, req Request, outcome *Outcome) {
	existing, err := o.store.ReadExistingScrapedData(ctx, req.MatchID, outcome.DataType)
	if err != nil {
		o.logger.Error("read existing payload",
			zap.String("match_id", req.MatchID),
			zap.String("data_type", string(outcome.DataType)),
			zap.Error(err),
		)
	}
	merged := Merge(existing, outcome.Payload)
	if err := o.store.UpsertScrapedData(ctx, req.MatchID, outcome.DataType, merged); err != nil {
		o.logger.Error("upsert payload",
			zap.String("match_id", req.MatchID),
			zap.String("data_type", string(outcome.DataType)),
			zap.Error(err),
		)
		outcome.Success = false
		outcome.Error = fmt.Sprintf("persist payload: %v", err)
		return
	}
	outcome.Payload = merged
}

func (o *Orchestrator) publishCompletion(ctx context.Context, req Request, outcome Outcome) {
	if o.publisher == nil || o.cfg.CompletionTopic == "" {
		return
	}
	payload := map[string]any{
		"match_id":    req.MatchID,
		"draw_number": req.DrawNumber,
		"data_type":   outcome.DataType,
		"method":      outcome.Method,
		"success":     outcome.Success,
		"duration_ms": outcome.Duration.Milliseconds(),
		"timestamp":   outcome.Timestamp.Format(time.RFC3339),
	}
	if _, err := o.publisher.Publish(ctx, o.cfg.CompletionTopic, payload); err != nil {
		o.logger.Warn("publish completion event",
			zap.String("match_id", req.MatchID),
			zap.Error(err),
		)
	}
}

// snapshot stores the raw HTML of a blocked or unparseable page for offline
// selector debugging.
func (o *Orchestrator) snapshot(ctx context.Context, req Request, dt DataType, visit PageVisit) {
	if o.snapshots == nil || visit.HTML == "" {
		return
	}
	key := fmt.Sprintf("%s/%s/%d.html", req.MatchID, dt, o.clock.Now().UnixMilli())
	if _, err := o.snapshots.PutSnapshot(ctx, key, []byte(visit.HTML)); err != nil {
		o.logger.Warn("store failure snapshot", zap.String("key", key), zap.Error(err))
	}
}

func (o *Orchestrator) logOp(ctx context.Context, op Operation) {
	if err := o.store.LogOperation(ctx, op); err != nil {
		o.logger.Error("log operation",
			zap.String("match_id", op.MatchID),
			zap.String("data_type", string(op.DataType)),
			zap.Error(err),
		)
	}
}
