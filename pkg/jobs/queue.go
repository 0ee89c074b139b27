package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrQueueFull  = errors.New("queue full")
	ErrNotRunning = errors.New("queue not running")
)

const maxBackoff = 30 * time.Second

// Job wraps one payload with its delivery bookkeeping.
type Job[T any] struct {
	ID       string
	Payload  T
	Attempt  int
	Enqueued time.Time
}

type Handler[T any] func(context.Context, Job[T]) error

// Config sizes the worker pool. Zero values get small defaults.
type Config struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Queue fans typed jobs out to a fixed set of goroutines. Failed jobs are
// retried with exponential backoff until MaxRetries is spent. Producers never
// block: a full buffer rejects the job.
type Queue[T any] struct {
	name     string
	handle   Handler[T]
	cfg      Config
	log      *zap.SugaredLogger
	ch       chan Job[T]
	draining chan struct{}

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
	timers map[*time.Timer]struct{}
	wg     sync.WaitGroup
}

func NewQueue[T any](name string, handle Handler[T], cfg Config) *Queue[T] {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Queue[T]{
		name:     name,
		handle:   handle,
		cfg:      cfg,
		log:      cfg.Logger.Sugar().With("queue", name),
		ch:       make(chan Job[T], cfg.BufferSize),
		draining: make(chan struct{}),
		timers:   make(map[*time.Timer]struct{}),
	}
}

// Start launches the workers. Later calls are ignored. The workers keep
// ctx's values but not its cancellation: they run until Stop.
func (q *Queue[T]) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ctx != nil {
		return
	}
	q.ctx, q.cancel = context.WithCancel(context.WithoutCancel(ctx))
	q.wg.Add(q.cfg.Workers)
	for i := 0; i < q.cfg.Workers; i++ {
		go q.work()
	}
	q.log.Infow("queue started", "workers", q.cfg.Workers, "buffer", q.cfg.BufferSize)
}

// Stop refuses new jobs and lets the workers finish everything buffered,
// including pending retries. When ctx ends first the running handlers are
// cancelled and whatever is left is discarded.
func (q *Queue[T]) Stop(ctx context.Context) {
	q.mu.Lock()
	if q.cancel == nil || q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.draining)
	cancel := q.cancel
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancel()
		q.log.Infow("queue drained and stopped")
	case <-ctx.Done():
		cancel()
		q.stopTimers()
		<-done
		q.log.Warnw("queue stopped before draining", "pending", len(q.ch), "error", ctx.Err())
	}
}

// TryEnqueue buffers job or fails with ErrQueueFull or ErrNotRunning.
func (q *Queue[T]) TryEnqueue(job Job[T]) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.ctx == nil || q.closed || q.ctx.Err() != nil {
		return fmt.Errorf("%s: %w", q.name, ErrNotRunning)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	select {
	case q.ch <- job:
		return nil
	default:
		return fmt.Errorf("%s: %w", q.name, ErrQueueFull)
	}
}

func (q *Queue[T]) Depth() int {
	return len(q.ch)
}

func (q *Queue[T]) work() {
	defer q.wg.Done()
	for q.ctx.Err() == nil {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.ch:
			q.process(job)
		case <-q.draining:
			q.drain()
			return
		}
	}
}

// drain empties the buffer once producers are shut out.
func (q *Queue[T]) drain() {
	for q.ctx.Err() == nil {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.ch:
			q.process(job)
		default:
			return
		}
	}
}

func (q *Queue[T]) process(job Job[T]) {
	if err := q.handle(q.ctx, job); err != nil {
		q.retry(job, err)
	}
}

func (q *Queue[T]) retry(job Job[T], err error) {
	if q.ctx.Err() != nil {
		return
	}
	job.Attempt++
	if job.Attempt > q.cfg.MaxRetries {
		q.log.Errorw("job failed permanently", "job_id", job.ID, "attempts", job.Attempt, "error", err)
		return
	}
	delay := backoff(q.cfg.RetryDelay, job.Attempt)
	q.log.Warnw("job failed, retrying", "job_id", job.ID, "attempt", job.Attempt, "delay", delay, "error", err)

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ctx.Err() != nil {
		return
	}
	q.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		defer q.wg.Done()
		q.mu.Lock()
		delete(q.timers, timer)
		q.mu.Unlock()
		q.redeliver(job)
	})
	q.timers[timer] = struct{}{}
}

// redeliver puts a retried job back in the buffer, or runs it on the
// calling goroutine when the buffer is full or the workers are draining.
func (q *Queue[T]) redeliver(job Job[T]) {
	if q.ctx.Err() != nil {
		q.log.Warnw("retry dropped", "job_id", job.ID, "attempt", job.Attempt)
		return
	}
	q.mu.RLock()
	if !q.closed {
		select {
		case q.ch <- job:
			q.mu.RUnlock()
			return
		default:
		}
	}
	q.mu.RUnlock()
	q.process(job)
}

func (q *Queue[T]) stopTimers() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for timer := range q.timers {
		if timer.Stop() {
			q.wg.Done()
		}
		delete(q.timers, timer)
	}
}

// backoff doubles base per attempt, capped at maxBackoff.
func backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
