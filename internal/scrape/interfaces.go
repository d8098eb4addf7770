package scrape

import (
	"context"
	"time"
)

// DataStore persists merged payloads and the operation log.
type DataStore interface {
	// UpsertScrapedData stores the merged payload for (matchID, dataType).
	UpsertScrapedData(ctx context.Context, matchID string, dataType DataType, payload Object) error
	// ReadExistingScrapedData returns the stored payload or nil when absent.
	ReadExistingScrapedData(ctx context.Context, matchID string, dataType DataType) (Object, error)
	// LastScrapedAt returns when (matchID, dataType) was last stored, or the
	// zero time when it never was.
	LastScrapedAt(ctx context.Context, matchID string, dataType DataType) (time.Time, error)
	// LogOperation appends one operation-outcome record.
	LogOperation(ctx context.Context, op Operation) error
}

// RemoteExtractor is the AI extraction backend.
type RemoteExtractor interface {
	Extract(ctx context.Context, url string, dataType DataType, gameType GameType) ExtractResult
	// EvaluateRaw evaluates a JavaScript expression on the page, for pulling
	// embedded page-state JSON without a full extraction pass.
	EvaluateRaw(ctx context.Context, url, jsExpression string) ExtractResult
	Healthy(ctx context.Context) bool
	// RestartNeeded reports whether a service-level failure left the remote
	// browser dead; a supervisor must restart the service, not retry.
	RestartNeeded() bool
}

// ExtractResult is the structured (never-thrown) outcome of a remote call.
type ExtractResult struct {
	Success bool
	Data    Object
	Tokens  *TokenUsage
	Error   string
	// Category classifies the failure for retry decisions.
	Category FailureCategory
}

// FailureCategory buckets remote failures for retry/restart decisions.
type FailureCategory string

// Failure categories.
const (
	FailureNone FailureCategory = ""
	// FailureTransient covers timeouts and network blips, safe to retry.
	FailureTransient FailureCategory = "transient"
	// FailureService means the remote browser process died and the service
	// needs an external restart, not a retry.
	FailureService FailureCategory = "service"
	// FailureRateLimited is an explicit anti-bot signal relayed by the
	// remote service; it must trip the circuit breaker.
	FailureRateLimited FailureCategory = "rate_limited"
	// FailureUnknown is everything else.
	FailureUnknown FailureCategory = "unknown"
)

// PageVisit is what a browser navigation yields, enough for the rate-limit
// detector and the DOM extractors.
type PageVisit struct {
	RequestedURL string
	FinalURL     string
	StatusCode   int
	Title        string
	HTML         string
}

// Navigator drives the shared browser session. Implementations own exactly
// one browsing context; callers must not navigate concurrently.
type Navigator interface {
	Navigate(ctx context.Context, url string, dataType DataType) (PageVisit, error)
	Available() bool
}

// Extractor parses one data type out of a rendered page. Implementations
// must not panic; returning a nil payload means "no data".
type Extractor interface {
	Scrape(ctx context.Context, visit PageVisit, req Request) (Object, error)
}

// ExtractorTable maps every data type to its DOM extractor.
type ExtractorTable interface {
	For(dataType DataType) (Extractor, bool)
}

// PhaseProvider supplies the current schedule-window phase. Pure read,
// called on demand, never cached here.
type PhaseProvider interface {
	WindowPhase() WindowPhase
}

// Publisher pushes scrape-completed events downstream.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// SnapshotStore keeps raw HTML of failed or blocked pages for offline
// selector debugging.
type SnapshotStore interface {
	PutSnapshot(ctx context.Context, key string, html []byte) (string, error)
}

// Clock returns the current time (injectable for tests).
type Clock interface {
	Now() time.Time
}

// Sleeper waits for a duration or until the context ends.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration)
}

// IDGenerator produces task IDs.
type IDGenerator interface {
	NewID() (string, error)
}
