package scrape

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/poolspel/matchdata-crawler/internal/metrics"
)

// Retry budget: a task gets maxTaskAttempts tries, requeued after
// attempts × retryBaseDelay.
const (
	maxTaskAttempts = 3
	retryBaseDelay  = 30 * time.Second
)

// RequestProcessor executes one scrape request. The queue does not care how.
type RequestProcessor interface {
	Fetch(ctx context.Context, req Request) []Outcome
}

// QueuedTask is one unit of queued work.
type QueuedTask struct {
	ID        string
	Request   Request
	Priority  int
	CreatedAt time.Time
	Attempts  int

	// notBefore delays retried tasks; zero means runnable immediately.
	notBefore time.Time
	// seq breaks priority ties by arrival order.
	seq int64
}

// TaskState is the queue's view of a task's lifecycle.
type TaskState string

// Task states reported by Status.
const (
	TaskQueued    TaskState = "queued"
	TaskSkipped   TaskState = "skipped_fresh"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskRequeued  TaskState = "requeued"
	TaskFailed    TaskState = "failed"
)

// Queue is a priority-ordered task queue with adaptive pacing. Higher
// priority runs first; ties run in arrival order. Between task starts it
// enforces a jittered minimum gap picked from the current window phase —
// measured from the previous task's start, so time already spent working
// counts toward the gap.
type Queue struct {
	processor RequestProcessor
	gate      *FreshnessGate
	phases    PhaseProvider
	jitter    *Jitter
	clock     Clock
	sleeper   Sleeper
	ids       IDGenerator
	store     DataStore
	logger    *zap.Logger

	// mu guards the heap, seq, and states; enqueues arrive from API
	// handlers while the worker drains. lastStart belongs to the single
	// worker and needs no lock.
	mu     sync.Mutex
	tasks  taskHeap
	seq    int64
	states map[string]TaskState

	lastStart time.Time
}

// NewQueue wires a queue. All collaborators are required.
func NewQueue(
	processor RequestProcessor,
	gate *FreshnessGate,
	phases PhaseProvider,
	jitter *Jitter,
	clock Clock,
	sleeper Sleeper,
	ids IDGenerator,
	store DataStore,
	logger *zap.Logger,
) *Queue {
	q := &Queue{
		processor: processor,
		gate:      gate,
		phases:    phases,
		jitter:    jitter,
		clock:     clock,
		sleeper:   sleeper,
		ids:       ids,
		store:     store,
		logger:    logger,
		states:    make(map[string]TaskState),
	}
	heap.Init(&q.tasks)
	return q
}

// Enqueue adds a request unless its data is still fresh. When skipped it
// returns a synthetic task ID and queued=false.
func (q *Queue) Enqueue(ctx context.Context, req Request, priority int) (string, bool, error) {
	id, err := q.ids.NewID()
	if err != nil {
		return "", false, fmt.Errorf("new task id: %w", err)
	}
	fresh, err := q.gate.Fresh(ctx, req.MatchID, req.DataTypes)
	if err != nil {
		return "", false, fmt.Errorf("freshness check: %w", err)
	}
	if fresh {
		q.logger.Info("skip enqueue, data still fresh",
			zap.String("match_id", req.MatchID),
			zap.Int("data_types", len(req.DataTypes)),
		)
		q.setState(id, TaskSkipped)
		return id, false, nil
	}
	q.push(QueuedTask{
		ID:        id,
		Request:   req,
		Priority:  priority,
		CreatedAt: q.clock.Now(),
	})
	q.setState(id, TaskQueued)
	return id, true, nil
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks.Len()
}

// Status reports a task's lifecycle state.
func (q *Queue) Status(id string) (TaskState, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	state, ok := q.states[id]
	return state, ok
}

func (q *Queue) setState(id string, state TaskState) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.states[id] = state
}

// pushBack reinserts a popped task unchanged, keeping its sequence number so
// arrival order is preserved.
func (q *Queue) pushBack(task QueuedTask) {
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(&q.tasks, task)
	q.states[task.ID] = TaskQueued
	metrics.SetQueueDepth(q.tasks.Len())
}

// ProcessAll drains the queue sequentially until it is empty or the context
// ends. Tasks share one browser session and one circuit breaker, so there is
// deliberately no concurrency here.
func (q *Queue) ProcessAll(ctx context.Context) error {
	for q.Len() > 0 {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		task, wait := q.nextRunnable()
		if wait > 0 {
			q.sleeper.Sleep(ctx, wait)
			continue
		}
		q.pace(ctx)
		if ctx.Err() != nil {
			// The task was already popped; put it back so a shutdown
			// mid-pace loses nothing.
			q.pushBack(task)
			return ctx.Err()
		}
		q.runTask(ctx, task)
	}
	return nil
}

// Run drains the queue whenever it has work, until the context ends. This
// is the long-lived worker loop; ProcessAll remains for one-shot runs.
func (q *Queue) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if q.Len() == 0 {
			q.sleeper.Sleep(ctx, time.Second)
			continue
		}
		if err := q.ProcessAll(ctx); err != nil {
			return err
		}
	}
}

// nextRunnable pops the best runnable task, or reports how long until the
// earliest delayed task becomes runnable.
func (q *Queue) nextRunnable() (QueuedTask, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.clock.Now()
	var deferred []QueuedTask
	defer func() {
		for _, t := range deferred {
			heap.Push(&q.tasks, t)
		}
		metrics.SetQueueDepth(q.tasks.Len())
	}()
	for q.tasks.Len() > 0 {
		task := heap.Pop(&q.tasks).(QueuedTask)
		if task.notBefore.IsZero() || !task.notBefore.After(now) {
			return task, 0
		}
		deferred = append(deferred, task)
	}
	wait := time.Duration(0)
	for i, t := range deferred {
		d := t.notBefore.Sub(now)
		if i == 0 || d < wait {
			wait = d
		}
	}
	return QueuedTask{}, wait
}

// pace enforces the jittered minimum gap since the previous task's start.
func (q *Queue) pace(ctx context.Context) {
	if !q.lastStart.IsZero() {
		min, max := delayBounds(q.phases.WindowPhase().Intensity)
		need := q.jitter.Between(min, max)
		elapsed := q.clock.Now().Sub(q.lastStart)
		if elapsed < need {
			q.sleeper.Sleep(ctx, need-elapsed)
		}
	}
	q.lastStart = q.clock.Now()
}

func (q *Queue) runTask(ctx context.Context, task QueuedTask) {
	q.setState(task.ID, TaskRunning)
	outcomes := q.processor.Fetch(ctx, task.Request)
	failed := failedTypes(task.Request, outcomes)
	if len(failed) == 0 {
		q.setState(task.ID, TaskCompleted)
		q.logger.Info("task completed",
			zap.String("task_id", task.ID),
			zap.String("match_id", task.Request.MatchID),
			zap.Int("attempt", task.Attempts+1),
		)
		return
	}

	task.Attempts++
	if task.Attempts >= maxTaskAttempts {
		q.setState(task.ID, TaskFailed)
		q.logger.Warn("task dropped after final attempt",
			zap.String("task_id", task.ID),
			zap.String("match_id", task.Request.MatchID),
			zap.Int("attempts", task.Attempts),
		)
		q.logTerminalFailure(ctx, task, failed)
		return
	}

	// Retry only what failed, after a linear backoff.
	retry := task
	retry.Request.DataTypes = failed
	retry.notBefore = q.clock.Now().Add(time.Duration(task.Attempts) * retryBaseDelay)
	q.push(retry)
	q.setState(task.ID, TaskRequeued)
	q.logger.Info("task requeued",
		zap.String("task_id", task.ID),
		zap.Int("attempt", task.Attempts),
		zap.Int("remaining_types", len(failed)),
	)
}

func (q *Queue) push(task QueuedTask) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	task.seq = q.seq
	heap.Push(&q.tasks, task)
	metrics.SetQueueDepth(q.tasks.Len())
}

func (q *Queue) logTerminalFailure(ctx context.Context, task QueuedTask, failed []DataType) {
	for _, dt := range failed {
		op := Operation{
			MatchID:      task.Request.MatchID,
			DataType:     dt,
			Status:       OpFailed,
			ErrorMessage: "retry budget exhausted",
			RetryCount:   task.Attempts,
			At:           q.clock.Now(),
		}
		if err := q.store.LogOperation(ctx, op); err != nil {
			q.logger.Error("log terminal failure",
				zap.String("match_id", task.Request.MatchID),
				zap.String("data_type", string(dt)),
				zap.Error(err),
			)
		}
	}
}

// failedTypes lists requested data types without a successful outcome.
// Types the processor never reached (stop-on-rate-limit) count as failed.
func failedTypes(req Request, outcomes []Outcome) []DataType {
	succeeded := make(map[DataType]bool, len(outcomes))
	for _, o := range outcomes {
		if o.Success {
			succeeded[o.DataType] = true
		}
	}
	var failed []DataType
	for _, dt := range req.DataTypes {
		if !succeeded[dt] {
			failed = append(failed, dt)
		}
	}
	return failed
}

// delayBounds maps pacing intensity to the inter-task delay range.
func delayBounds(intensity Intensity) (time.Duration, time.Duration) {
	switch intensity {
	case IntensityVeryAggressive:
		return 2 * time.Second, 4 * time.Second
	case IntensityAggressive:
		return 3 * time.Second, 6 * time.Second
	default:
		return 5 * time.Second, 10 * time.Second
	}
}

// taskHeap orders by priority (higher first), then arrival.
type taskHeap []QueuedTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(QueuedTask)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// TimerSleeper sleeps on a timer, honoring context cancellation.
type TimerSleeper struct{}

// Sleep waits for d or until ctx is done.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
