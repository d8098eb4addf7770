// Package scrape defines the core types and interfaces of the match-data
// extraction pipeline: requests, outcomes, the hybrid orchestrator, and the
// protective state it maintains between attempts.
package scrape

import (
	"time"
)

// DataType identifies one category of extractable match information.
type DataType string

// Data types known to the pipeline. The set mirrors what the remote
// extraction service understands.
const (
	DataTypeXStats     DataType = "xStats"
	DataTypeStatistics DataType = "statistics"
	DataTypeHeadToHead DataType = "headToHead"
	DataTypeNews       DataType = "news"
	DataTypeMatchInfo  DataType = "matchInfo"
	DataTypeTable      DataType = "table"
	DataTypeLineup     DataType = "lineup"
	DataTypeAnalysis   DataType = "analysis"
	DataTypeOddset     DataType = "oddset"
)

// AllDataTypes returns every known data type in a stable order.
func AllDataTypes() []DataType {
	return []DataType{
		DataTypeXStats,
		DataTypeStatistics,
		DataTypeHeadToHead,
		DataTypeNews,
		DataTypeMatchInfo,
		DataTypeTable,
		DataTypeLineup,
		DataTypeAnalysis,
		DataTypeOddset,
	}
}

// Valid reports whether dt is one of the known data types.
func (dt DataType) Valid() bool {
	for _, known := range AllDataTypes() {
		if dt == known {
			return true
		}
	}
	return false
}

// GameType identifies the pool-betting product a draw belongs to.
type GameType string

// Supported game types.
const (
	GameStryktipset  GameType = "stryktipset"
	GameEuropatipset GameType = "europatipset"
	GameTopptipset   GameType = "topptipset"
)

// ExtractionMethod records which backend produced an outcome.
type ExtractionMethod string

// Extraction methods.
const (
	MethodAI  ExtractionMethod = "ai"
	MethodDOM ExtractionMethod = "dom"
)

// URLPattern records which template family a URL was built from.
type URLPattern string

// URL pattern families.
const (
	PatternCurrent    URLPattern = "current"
	PatternHistoric   URLPattern = "historic"
	PatternDiscovered URLPattern = "discovered"
)

// Request describes one match whose data should be scraped. It is immutable
// once enqueued; data types are processed in the order given.
type Request struct {
	MatchID     string
	DrawNumber  int
	MatchNumber int
	DrawDate    time.Time
	GameType    GameType
	DataTypes   []DataType
	RequestedBy string
}

// TokenUsage carries the remote service's LLM token accounting.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Outcome is the result of one (request, data type) extraction attempt.
type Outcome struct {
	DataType    DataType
	Success     bool
	Payload     Object
	Error       string
	RateLimited bool
	Method      ExtractionMethod
	URLPattern  URLPattern
	Tokens      *TokenUsage
	Duration    time.Duration
	Timestamp   time.Time
}

// Failure reasons surfaced to callers. These are stable strings operators
// grep for, not free text.
const (
	ReasonCircuitOpen       = "circuit_open"
	ReasonNoBrowserRuntime  = "AI scraping failed; DOM fallback unavailable on this runtime"
	ReasonAllBackendsFailed = "AI scraping and DOM fallback both returned no data"
)

// OperationStatus is persisted in the operation log for each attempt.
type OperationStatus string

// Operation log statuses.
const (
	OpStarted     OperationStatus = "started"
	OpSuccess     OperationStatus = "success"
	OpFailed      OperationStatus = "failed"
	OpRateLimited OperationStatus = "rate_limited"
)

// Operation is one row of the operation log.
type Operation struct {
	MatchID      string
	DataType     DataType
	Status       OperationStatus
	ErrorMessage string
	Duration     time.Duration
	RetryCount   int
	TokensIn     int
	TokensOut    int
	At           time.Time
}

// Intensity selects how aggressively the queue paces tasks.
type Intensity string

// Pacing intensities supplied by the schedule-window policy.
const (
	IntensityVeryAggressive Intensity = "very_aggressive"
	IntensityAggressive     Intensity = "aggressive"
	IntensityNormal         Intensity = "normal"
)

// WindowPhase is the read-only pacing hint from the schedule-window policy.
// This subsystem never computes calendar logic itself.
type WindowPhase struct {
	Intensity          Intensity
	FreshnessThreshold time.Duration
}

// AnalyticsEvent records one extraction attempt for the in-process ring.
type AnalyticsEvent struct {
	Method     ExtractionMethod
	URLPattern URLPattern
	Domain     string
	DataType   DataType
	Success    bool
	Duration   time.Duration
	Error      string
	TokensIn   int
	TokensOut  int
	Timestamp  time.Time
}
