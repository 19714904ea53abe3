package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"price-tracker-bot/internal/adapters/memory"
	"price-tracker-bot/internal/domain"
	"price-tracker-bot/internal/usecase/check"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type scriptedRunner struct {
	mu       sync.Mutex
	outcomes []check.Outcome
	calls    int
	jobs     chan domain.PriceCheckJob
}

func (r *scriptedRunner) Run(_ context.Context, job domain.PriceCheckJob) check.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.jobs != nil {
		r.jobs <- job
	}
	if len(r.outcomes) == 0 {
		return check.Outcome{Kind: check.OutcomeOK, Stage: check.StageDone}
	}
	out := r.outcomes[0]
	r.outcomes = r.outcomes[1:]
	return out
}

func (r *scriptedRunner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type ackRecorder struct {
	acks []bool
}

func (a *ackRecorder) ack(success bool) error {
	a.acks = append(a.acks, success)
	return nil
}

func retryable() check.Outcome {
	return check.Outcome{Kind: check.OutcomeRetryable, Stage: check.StagePersisting, Err: errors.New("db down")}
}

func newTestWorker(runner Runner, locker domain.Locker) *Worker {
	return New(memory.NewQueue(8), runner, locker, Config{MaxAttempts: 3, RetryDelay: time.Millisecond}, zerolog.Nop())
}

func TestProcessRetriesUntilSuccess(t *testing.T) {
	runner := &scriptedRunner{outcomes: []check.Outcome{retryable(), retryable()}}
	w := newTestWorker(runner, nil)

	out := w.Process(context.Background(), domain.PriceCheckJob{ProductID: 1})

	assert.Equal(t, check.OutcomeOK, out.Kind)
	assert.Equal(t, 3, runner.Calls())
}

func TestProcessStopsAfterMaxAttempts(t *testing.T) {
	runner := &scriptedRunner{outcomes: []check.Outcome{retryable(), retryable(), retryable(), retryable()}}
	w := newTestWorker(runner, nil)

	out := w.Process(context.Background(), domain.PriceCheckJob{ProductID: 1})

	assert.Equal(t, check.OutcomeRetryable, out.Kind)
	assert.Equal(t, 3, runner.Calls())
}

func TestProcessDoesNotRetryFatal(t *testing.T) {
	runner := &scriptedRunner{outcomes: []check.Outcome{{Kind: check.OutcomeFatal, Stage: check.StageFetching}}}
	w := newTestWorker(runner, nil)

	out := w.Process(context.Background(), domain.PriceCheckJob{ProductID: 1})

	assert.Equal(t, check.OutcomeFatal, out.Kind)
	assert.Equal(t, 1, runner.Calls())
}

func TestHandleRejectsInvalidJob(t *testing.T) {
	runner := &scriptedRunner{}
	w := newTestWorker(runner, nil)
	rec := &ackRecorder{}

	out := w.Handle(context.Background(), domain.PriceCheckJob{ProductID: 0}, rec.ack)

	assert.Equal(t, check.OutcomeFatal, out.Kind)
	assert.Equal(t, []bool{true}, rec.acks)
	assert.Zero(t, runner.Calls())
}

func TestHandleSkipsLockedProduct(t *testing.T) {
	locker := memory.NewLocker()
	release, ok, err := locker.TryLock(context.Background(), LockKey(5), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	runner := &scriptedRunner{}
	w := newTestWorker(runner, locker)
	rec := &ackRecorder{}

	out := w.Handle(context.Background(), domain.PriceCheckJob{ProductID: 5}, rec.ack)
	assert.Equal(t, check.OutcomeSkipped, out.Kind)
	assert.Zero(t, runner.Calls())
	assert.Equal(t, []bool{true}, rec.acks)

	// тестовый запуск не берёт блокировку
	out = w.Handle(context.Background(), domain.PriceCheckJob{ProductID: 5, MockScenario: "price-drop"}, rec.ack)
	assert.Equal(t, check.OutcomeOK, out.Kind)
}

func TestHandleReleasesLock(t *testing.T) {
	locker := memory.NewLocker()
	w := newTestWorker(&scriptedRunner{}, locker)
	rec := &ackRecorder{}

	w.Handle(context.Background(), domain.PriceCheckJob{ProductID: 7}, rec.ack)

	_, ok, err := locker.TryLock(context.Background(), LockKey(7), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHandleRequeuesOnShutdown(t *testing.T) {
	runner := &scriptedRunner{outcomes: []check.Outcome{retryable()}}
	w := New(memory.NewQueue(1), runner, nil, Config{MaxAttempts: 3, RetryDelay: time.Hour}, zerolog.Nop())
	rec := &ackRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := w.Handle(ctx, domain.PriceCheckJob{ProductID: 1}, rec.ack)

	assert.Equal(t, check.OutcomeRetryable, out.Kind)
	assert.Equal(t, []bool{false}, rec.acks)
}

func TestRunConsumesQueueAndStops(t *testing.T) {
	q := memory.NewQueue(8)
	runner := &scriptedRunner{jobs: make(chan domain.PriceCheckJob, 8)}
	w := New(q, runner, memory.NewLocker(), Config{Concurrency: 2, RetryDelay: time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, q.Enqueue(ctx, domain.PriceCheckJob{ID: "job", ProductID: i}))
	}
	seen := map[int64]bool{}
	for len(seen) < 3 {
		select {
		case job := <-runner.jobs:
			seen[job.ProductID] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("задачи не обработаны: %v", seen)
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("исполнитель не остановился")
	}
}

// contendingRunner на каждой попытке пробует занять блокировку того же товара.
type contendingRunner struct {
	locker   domain.Locker
	outcomes []check.Outcome
	acquired []bool
}

func (r *contendingRunner) Run(ctx context.Context, job domain.PriceCheckJob) check.Outcome {
	_, ok, _ := r.locker.TryLock(ctx, LockKey(job.ProductID), time.Minute)
	r.acquired = append(r.acquired, ok)
	out := r.outcomes[0]
	r.outcomes = r.outcomes[1:]
	return out
}

func TestLockOutlivesRetries(t *testing.T) {
	locker := memory.NewLocker()
	runner := &contendingRunner{
		locker:   locker,
		outcomes: []check.Outcome{retryable(), retryable(), {Kind: check.OutcomeOK, Stage: check.StageDone}},
	}
	cfg := Config{MaxAttempts: 3, RetryDelay: 30 * time.Millisecond, LockTTL: 40 * time.Millisecond}
	w := New(memory.NewQueue(1), runner, locker, cfg, zerolog.Nop())
	if w.cfg.LockTTL < 2*cfg.RetryDelay+3*attemptBudget {
		t.Fatalf("TTL блокировки не покрывает повторы: %s", w.cfg.LockTTL)
	}
	rec := &ackRecorder{}

	out := w.Handle(context.Background(), domain.PriceCheckJob{ProductID: 7}, rec.ack)

	assert.Equal(t, check.OutcomeOK, out.Kind)
	assert.Equal(t, []bool{false, false, false}, runner.acquired)
	assert.Equal(t, []bool{true}, rec.acks)
}

func TestLockTTLKeepsLargerConfig(t *testing.T) {
	w := New(memory.NewQueue(1), &scriptedRunner{}, nil, Config{MaxAttempts: 1, LockTTL: time.Hour}, zerolog.Nop())
	assert.Equal(t, time.Hour, w.cfg.LockTTL)
}
