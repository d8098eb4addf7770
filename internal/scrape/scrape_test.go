package scrape

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Shared test doubles. The pipeline's collaborators are all interfaces, so
// the tests drive everything through small in-memory fakes and a manual
// clock.

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeSleeper records requested sleeps and advances the clock instead of
// blocking.
type fakeSleeper struct {
	clock *fakeClock
	slept []time.Duration
}

func (s *fakeSleeper) Sleep(_ context.Context, d time.Duration) {
	s.slept = append(s.slept, d)
	s.clock.Advance(d)
}

type staticPhases struct {
	phase WindowPhase
}

func (p staticPhases) WindowPhase() WindowPhase { return p.phase }

type seqIDs struct {
	n int
}

func (g *seqIDs) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("task-%d", g.n), nil
}

type storedPayload struct {
	payload   Object
	scrapedAt time.Time
}

// fakeStore implements DataStore in memory with injectable failures.
type fakeStore struct {
	mu        sync.Mutex
	data      map[string]storedPayload
	ops       []Operation
	clock     Clock
	upsertErr error
}

func newFakeStore(clock Clock) *fakeStore {
	return &fakeStore{data: make(map[string]storedPayload), clock: clock}
}

func storeKey(matchID string, dt DataType) string {
	return matchID + "/" + string(dt)
}

func (s *fakeStore) UpsertScrapedData(_ context.Context, matchID string, dt DataType, payload Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.data[storeKey(matchID, dt)] = storedPayload{payload: payload.Clone(), scrapedAt: s.clock.Now()}
	return nil
}

func (s *fakeStore) ReadExistingScrapedData(_ context.Context, matchID string, dt DataType) (Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data[storeKey(matchID, dt)]
	if !ok {
		return nil, nil
	}
	return rec.payload.Clone(), nil
}

func (s *fakeStore) LastScrapedAt(_ context.Context, matchID string, dt DataType) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.data[storeKey(matchID, dt)]
	if !ok {
		return time.Time{}, nil
	}
	return rec.scrapedAt, nil
}

func (s *fakeStore) LogOperation(_ context.Context, op Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, op)
	return nil
}

func (s *fakeStore) setScraped(matchID string, dt DataType, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[storeKey(matchID, dt)] = storedPayload{payload: Object{"seen": Bool(true)}, scrapedAt: at}
}

func (s *fakeStore) operations() []Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Operation, len(s.ops))
	copy(out, s.ops)
	return out
}

// fakeRemote scripts RemoteExtractor responses per data type. rawResult is
// what every EvaluateRaw call answers; the zero value reads as "no embedded
// state found".
type fakeRemote struct {
	healthy   bool
	restart   bool
	results   map[DataType]ExtractResult
	rawResult ExtractResult
	calls     []DataType
	rawCalls  []string
}

func (r *fakeRemote) Extract(_ context.Context, _ string, dt DataType, _ GameType) ExtractResult {
	r.calls = append(r.calls, dt)
	return r.results[dt]
}

func (r *fakeRemote) EvaluateRaw(_ context.Context, _ string, jsExpression string) ExtractResult {
	r.rawCalls = append(r.rawCalls, jsExpression)
	return r.rawResult
}

func (r *fakeRemote) Healthy(_ context.Context) bool { return r.healthy }

func (r *fakeRemote) RestartNeeded() bool { return r.restart }

// fakeNavigator returns a scripted page per URL, falling back to a default.
type fakeNavigator struct {
	visits    map[string]PageVisit
	defVisit  PageVisit
	err       error
	available bool
	calls     []string
}

func (n *fakeNavigator) Navigate(_ context.Context, url string, _ DataType) (PageVisit, error) {
	n.calls = append(n.calls, url)
	if n.err != nil {
		return PageVisit{}, n.err
	}
	if v, ok := n.visits[url]; ok {
		return v, nil
	}
	v := n.defVisit
	if v.RequestedURL == "" {
		v.RequestedURL = url
	}
	if v.FinalURL == "" {
		v.FinalURL = url
	}
	return v, nil
}

func (n *fakeNavigator) Available() bool { return n.available }

// scriptedExtractor returns a fixed payload or panics on demand.
type scriptedExtractor struct {
	payload Object
	err     error
	panics  bool
}

func (e scriptedExtractor) Scrape(_ context.Context, _ PageVisit, _ Request) (Object, error) {
	if e.panics {
		panic("selector blew up")
	}
	return e.payload, e.err
}

type fakeTable struct {
	byType map[DataType]Extractor
}

func (t fakeTable) For(dt DataType) (Extractor, bool) {
	e, ok := t.byType[dt]
	return e, ok
}

type capturedPublish struct {
	Topic   string
	Payload any
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []capturedPublish
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, capturedPublish{Topic: topic, Payload: payload})
	return fmt.Sprintf("msg-%d", len(p.messages)), nil
}

type fakeSnapshots struct {
	mu   sync.Mutex
	keys []string
}

func (s *fakeSnapshots) PutSnapshot(_ context.Context, key string, _ []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	return "memory://" + key, nil
}

type fakeProber struct {
	ok map[string]bool
}

func (p fakeProber) Probe(domain, _ string) bool {
	return p.ok[domain]
}
