package scrape

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.uber.org/zap"
)

type orchFixture struct {
	orch      *Orchestrator
	clock     *fakeClock
	remote    *fakeRemote
	browser   *fakeNavigator
	store     *fakeStore
	breaker   *CircuitBreaker
	analytics *Analytics
	publisher *fakePublisher
	snapshots *fakeSnapshots
	table     fakeTable
}

func newOrchFixture(t *testing.T) *orchFixture {
	t.Helper()
	clock := newFakeClock(time.Unix(1700000000, 0).UTC())
	store := newFakeStore(clock)
	f := &orchFixture{
		clock:     clock,
		store:     store,
		remote:    &fakeRemote{healthy: true, results: map[DataType]ExtractResult{}},
		browser:   &fakeNavigator{available: true, defVisit: PageVisit{StatusCode: 200, Title: "Stryktipset", HTML: "<html>ok</html>"}},
		breaker:   NewCircuitBreaker(3, time.Minute, clock),
		analytics: NewAnalytics(),
		publisher: &fakePublisher{},
		snapshots: &fakeSnapshots{},
		table:     fakeTable{byType: map[DataType]Extractor{}},
	}
	resolver := NewResolver(ResolverConfig{
		PrimaryDomain: "https://spela.svenskaspel.se",
	}, nil, clock)
	f.orch = NewOrchestrator(
		OrchestratorConfig{AIEnabled: true, CompletionTopic: "scrape-completed"},
		f.remote,
		f.browser,
		f.table,
		resolver,
		NewRateLimitDetector(),
		f.breaker,
		store,
		f.analytics,
		f.publisher,
		f.snapshots,
		clock,
		zap.NewNop(),
	)
	return f
}

func orchRequest(types ...DataType) Request {
	return Request{
		MatchID:     "match-1",
		DrawNumber:  4711,
		MatchNumber: 1,
		GameType:    GameStryktipset,
		DataTypes:   types,
	}
}

func TestOrchestratorAISuccessPersistsAndPublishes(t *testing.T) {
	t.Parallel()

	f := newOrchFixture(t)
	payload := Object{"xg": Number(1.7)}
	f.remote.results[DataTypeXStats] = ExtractResult{Success: true, Data: payload, Tokens: &TokenUsage{Input: 100, Output: 20}}

	outcomes := f.orch.Fetch(context.Background(), orchRequest(DataTypeXStats))

	require.Len(t, outcomes, 1)
	out := outcomes[0]
	require.True(t, out.Success)
	require.Equal(t, MethodAI, out.Method)
	require.Equal(t, &TokenUsage{Input: 100, Output: 20}, out.Tokens)
	require.Empty(t, f.browser.calls, "AI success never touches the browser")

	stored, err := f.store.ReadExistingScrapedData(context.Background(), "match-1", DataTypeXStats)
	require.NoError(t, err)
	require.Equal(t, Object{"xg": Number(1.7)}, stored)

	require.Len(t, f.publisher.messages, 1)
	require.Equal(t, "scrape-completed", f.publisher.messages[0].Topic)

	events := f.analytics.Events()
	require.Len(t, events, 1)
	require.Equal(t, MethodAI, events[0].Method)
	require.True(t, events[0].Success)
}

func TestOrchestratorEmptyAISuccessFallsBackToDOM(t *testing.T) {
	t.Parallel()

	f := newOrchFixture(t)
	// "Success" with a payload of nulls is not a success.
	f.remote.results[DataTypeXStats] = ExtractResult{Success: true, Data: Object{"xg": nil, "xp": String("")}}
	f.table.byType[DataTypeXStats] = scriptedExtractor{payload: Object{"xg": Number(2.0)}}

	outcomes := f.orch.Fetch(context.Background(), orchRequest(DataTypeXStats))

	require.Len(t, outcomes, 1)
	require.True(t, outcomes[0].Success)
	require.Equal(t, MethodDOM, outcomes[0].Method)
	require.Len(t, f.browser.calls, 1)
	require.Equal(t, Object{"xg": Number(2.0)}, outcomes[0].Payload)
}

func TestOrchestratorUnhealthyRemoteSkipsStraightToDOM(t *testing.T) {
	t.Parallel()

	f := newOrchFixture(t)
	f.remote.healthy = false
	f.table.byType[DataTypeXStats] = scriptedExtractor{payload: Object{"xg": Number(1.1)}}

	outcomes := f.orch.Fetch(context.Background(), orchRequest(DataTypeXStats))

	require.True(t, outcomes[0].Success)
	require.Equal(t, MethodDOM, outcomes[0].Method)
	require.Empty(t, f.remote.calls, "unhealthy service is not called")
}

func TestOrchestratorHeadToHeadSkipsAI(t *testing.T) {
	t.Parallel()

	f := newOrchFixture(t)
	f.table.byType[DataTypeHeadToHead] = scriptedExtractor{payload: Object{"meetings": List{Object{"score": String("2-1")}}}}

	outcomes := f.orch.Fetch(context.Background(), orchRequest(DataTypeHeadToHead))

	require.True(t, outcomes[0].Success)
	require.Equal(t, MethodDOM, outcomes[0].Method)
	require.Empty(t, f.remote.calls, "headToHead has no AI route")
}

func TestOrchestratorRemoteRateLimitStopsRequest(t *testing.T) {
	t.Parallel()

	f := newOrchFixture(t)
	f.remote.results[DataTypeXStats] = ExtractResult{Category: FailureRateLimited, Error: "429 from service"}

	outcomes := f.orch.Fetch(context.Background(), orchRequest(DataTypeXStats, DataTypeNews, DataTypeTable))

	require.Len(t, outcomes, 1, "rate limit aborts the remaining types")
	require.True(t, outcomes[0].RateLimited)
	require.False(t, outcomes[0].Success)
	require.Empty(t, f.browser.calls, "a rate-limited signal must not trigger another navigation")
	require.Equal(t, 1, f.breaker.ConsecutiveRateLimits())
}

func TestOrchestratorDOMBlockDetectedAndSnapshotted(t *testing.T) {
	t.Parallel()

	f := newOrchFixture(t)
	f.remote.healthy = false
	f.browser.defVisit = PageVisit{
		StatusCode: 200,
		Title:      "Just a moment...",
		HTML:       "<html>challenge</html>",
	}
	f.table.byType[DataTypeXStats] = scriptedExtractor{payload: Object{"xg": Number(1)}}

	outcomes := f.orch.Fetch(context.Background(), orchRequest(DataTypeXStats))

	require.True(t, outcomes[0].RateLimited)
	require.Equal(t, 1, f.breaker.ConsecutiveRateLimits())
	require.Len(t, f.snapshots.keys, 1, "blocked page HTML is kept for debugging")
}

func TestOrchestratorCircuitOpenShortCircuits(t *testing.T) {
	t.Parallel()

	f := newOrchFixture(t)
	for i := 0; i < 3; i++ {
		f.breaker.RecordRateLimit()
	}

	outcomes := f.orch.Fetch(context.Background(), orchRequest(DataTypeXStats, DataTypeNews))

	require.Len(t, outcomes, 1)
	require.False(t, outcomes[0].Success)
	require.Equal(t, ReasonCircuitOpen, outcomes[0].Error)
	require.Empty(t, f.remote.calls)
	require.Empty(t, f.browser.calls)
}

func TestOrchestratorNoBrowserRuntime(t *testing.T) {
	t.Parallel()

	f := newOrchFixture(t)
	f.remote.results[DataTypeXStats] = ExtractResult{Success: false, Error: "boom"}
	f.browser.available = false

	outcomes := f.orch.Fetch(context.Background(), orchRequest(DataTypeXStats))

	require.False(t, outcomes[0].Success)
	require.Equal(t, ReasonNoBrowserRuntime, outcomes[0].Error)
}

func TestOrchestratorBothBackendsEmpty(t *testing.T) {
	t.Parallel()

	f := newOrchFixture(t)
	f.remote.results[DataTypeXStats] = ExtractResult{Success: true, Data: Object{}}
	f.table.byType[DataTypeXStats] = scriptedExtractor{payload: Object{}}

	outcomes := f.orch.Fetch(context.Background(), orchRequest(DataTypeXStats))

	require.False(t, outcomes[0].Success)
	require.Equal(t, ReasonAllBackendsFailed, outcomes[0].Error)
	require.Len(t, f.snapshots.keys, 1)
}

func TestOrchestratorExtractorPanicIsContained(t *testing.T) {
	t.Parallel()

	f := newOrchFixture(t)
	f.remote.healthy = false
	f.table.byType[DataTypeXStats] = scriptedExtractor{panics: true}

	outcomes := f.orch.Fetch(context.Background(), orchRequest(DataTypeXStats))

	require.False(t, outcomes[0].Success)
	require.Equal(t, ReasonAllBackendsFailed, outcomes[0].Error)
}

func TestOrchestratorNavigationErrorIsFailure(t *testing.T) {
	t.Parallel()

	f := newOrchFixture(t)
	f.remote.healthy = false
	f.browser.err = errors.New("net::ERR_CONNECTION_RESET")

	outcomes := f.orch.Fetch(context.Background(), orchRequest(DataTypeXStats))

	require.False(t, outcomes[0].Success)
	require.Contains(t, outcomes[0].Error, "browser navigation")
	require.False(t, outcomes[0].RateLimited)
}

func TestOrchestratorMergePreservesExistingFields(t *testing.T) {
	t.Parallel()

	f := newOrchFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.UpsertScrapedData(ctx, "match-1", DataTypeXStats, Object{
		"xg":   Number(1.4),
		"note": String("from earlier scrape"),
	}))
	f.remote.results[DataTypeXStats] = ExtractResult{Success: true, Data: Object{
		"xg":   Number(1.9),
		"note": nil,
	}}

	outcomes := f.orch.Fetch(ctx, orchRequest(DataTypeXStats))
	require.True(t, outcomes[0].Success)

	stored, err := f.store.ReadExistingScrapedData(ctx, "match-1", DataTypeXStats)
	require.NoError(t, err)
	require.Equal(t, Number(1.9), stored["xg"])
	require.Equal(t, String("from earlier scrape"), stored["note"])
}

func TestOrchestratorUpsertFailureFlipsOutcome(t *testing.T) {
	t.Parallel()

	f := newOrchFixture(t)
	f.store.upsertErr = errors.New("connection refused")
	f.remote.results[DataTypeXStats] = ExtractResult{Success: true, Data: Object{"xg": Number(1)}}

	outcomes := f.orch.Fetch(context.Background(), orchRequest(DataTypeXStats))

	require.False(t, outcomes[0].Success, "data that was not persisted must not count as success")
	require.Contains(t, outcomes[0].Error, "persist payload")
}

func TestOrchestratorSuccessResetsBreaker(t *testing.T) {
	t.Parallel()

	f := newOrchFixture(t)
	f.breaker.RecordRateLimit()
	f.breaker.RecordRateLimit()
	f.remote.results[DataTypeXStats] = ExtractResult{Success: true, Data: Object{"xg": Number(1)}}

	f.orch.Fetch(context.Background(), orchRequest(DataTypeXStats))
	require.Equal(t, 0, f.breaker.ConsecutiveRateLimits())
}

func TestOrchestratorPageStateSuccessSkipsFullExtraction(t *testing.T) {
	t.Parallel()

	f := newOrchFixture(t)
	f.remote.rawResult = ExtractResult{
		Success: true,
		Data:    Object{"league": String("Premier League"), "venue": String("Anfield")},
		Tokens:  &TokenUsage{Input: 12, Output: 3},
	}

	outcomes := f.orch.Fetch(context.Background(), orchRequest(DataTypeMatchInfo))

	require.Len(t, outcomes, 1)
	require.True(t, outcomes[0].Success)
	require.Equal(t, MethodAI, outcomes[0].Method)
	require.Len(t, f.remote.rawCalls, 1)
	require.Contains(t, f.remote.rawCalls[0], "matchInfo")
	require.Empty(t, f.remote.calls, "embedded page state makes the full extraction unnecessary")
	require.Empty(t, f.browser.calls)

	stored, err := f.store.ReadExistingScrapedData(context.Background(), "match-1", DataTypeMatchInfo)
	require.NoError(t, err)
	require.Equal(t, String("Anfield"), stored["venue"])
}

func TestOrchestratorEmptyPageStateFallsThroughToFullExtraction(t *testing.T) {
	t.Parallel()

	f := newOrchFixture(t)
	// The zero rawResult reads as "page ships no embedded state".
	f.remote.results[DataTypeMatchInfo] = ExtractResult{Success: true, Data: Object{"venue": String("Anfield")}}

	outcomes := f.orch.Fetch(context.Background(), orchRequest(DataTypeMatchInfo))

	require.True(t, outcomes[0].Success)
	require.Equal(t, MethodAI, outcomes[0].Method)
	require.Len(t, f.remote.rawCalls, 1, "the cheap evaluation is tried first")
	require.Equal(t, []DataType{DataTypeMatchInfo}, f.remote.calls)
}

func TestOrchestratorPageStateNotTriedForDOMHeavyTypes(t *testing.T) {
	t.Parallel()

	f := newOrchFixture(t)
	f.remote.results[DataTypeXStats] = ExtractResult{Success: true, Data: Object{"xg": Number(1.5)}}

	f.orch.Fetch(context.Background(), orchRequest(DataTypeXStats))

	require.Empty(t, f.remote.rawCalls, "xStats has no embedded page state to evaluate")
	require.Equal(t, []DataType{DataTypeXStats}, f.remote.calls)
}

func TestOrchestratorPageStateRateLimitStopsRequest(t *testing.T) {
	t.Parallel()

	f := newOrchFixture(t)
	f.remote.rawResult = ExtractResult{Category: FailureRateLimited, Error: "429 from service"}

	outcomes := f.orch.Fetch(context.Background(), orchRequest(DataTypeMatchInfo, DataTypeXStats))

	require.Len(t, outcomes, 1, "rate limit aborts the remaining types")
	require.True(t, outcomes[0].RateLimited)
	require.Empty(t, f.remote.calls, "a rate-limited evaluation settles the outcome")
	require.Empty(t, f.browser.calls)
	require.Equal(t, 1, f.breaker.ConsecutiveRateLimits())
}

func TestOrchestratorRecordsTokenUsage(t *testing.T) {
	t.Parallel()

	f := newOrchFixture(t)
	f.remote.results[DataTypeXStats] = ExtractResult{
		Success: true,
		Data:    Object{"xg": Number(1.2)},
		Tokens:  &TokenUsage{Input: 850, Output: 120},
	}

	f.orch.Fetch(context.Background(), orchRequest(DataTypeXStats))

	ops := f.store.operations()
	require.Len(t, ops, 2)
	require.Equal(t, 850, ops[1].TokensIn)
	require.Equal(t, 120, ops[1].TokensOut)

	events := f.analytics.Events()
	require.Len(t, events, 1)
	require.Equal(t, 850, events[0].TokensIn)
	require.Equal(t, 120, events[0].TokensOut)
}

func TestOrchestratorOperationLog(t *testing.T) {
	t.Parallel()

	f := newOrchFixture(t)
	f.remote.results[DataTypeXStats] = ExtractResult{Success: true, Data: Object{"xg": Number(1)}}

	f.orch.Fetch(context.Background(), orchRequest(DataTypeXStats))

	ops := f.store.operations()
	require.Len(t, ops, 2)
	require.Equal(t, OpStarted, ops[0].Status)
	require.Equal(t, OpSuccess, ops[1].Status)
	require.Equal(t, DataTypeXStats, ops[1].DataType)
}
