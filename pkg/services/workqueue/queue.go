// Package workqueue runs background jobs on a worker pool with per-task
// retry limits, timeouts, and exponential backoff between attempts.
package workqueue

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config configures the queue's worker pool and retry backoff.
type Config struct {
	Workers        int           // Concurrent workers (default 4)
	Capacity       int           // Buffered queue depth (default 64)
	TaskTimeout    time.Duration // Per-attempt deadline (default 600s)
	InitialBackoff time.Duration // Backoff before the second attempt
	MaxBackoff     time.Duration // Backoff cap
	BackoffFactor  float64       // Multiplier for exponential backoff
}

// DefaultConfig returns sensible defaults. Backoff schedule: 2s, 4s, 8s,
// capped at 30s.
func DefaultConfig() Config {
	return Config{
		Workers:        4,
		Capacity:       64,
		TaskTimeout:    600 * time.Second,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
	}
}

// Queue dispatches tasks to a fixed pool of workers. Enqueue never blocks
// the caller beyond the buffered channel capacity.
type Queue struct {
	cfg    Config
	tasks  chan Task
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool

	logger *zap.Logger
}

// New creates and starts a work queue.
func New(logger *zap.Logger, cfg Config) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 64
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 600 * time.Second
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 2 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.BackoffFactor <= 1 {
		cfg.BackoffFactor = 2.0
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		cfg:    cfg,
		tasks:  make(chan Task, cfg.Capacity),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.Named("workqueue"),
	}

	for i := 0; i < cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}

	return q
}

// ErrQueueClosed is returned by Enqueue after Shutdown.
var ErrQueueClosed = errors.New("work queue is closed")

// ErrQueueFull is returned when the buffered queue is at capacity.
var ErrQueueFull = errors.New("work queue is full")

// Enqueue submits a task for background execution.
func (q *Queue) Enqueue(task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- task:
		q.logger.Info("task enqueued",
			zap.String("task_id", task.ID()),
			zap.String("task_name", task.Name()))
		return nil
	default:
		q.logger.Warn("queue at capacity, rejecting task",
			zap.String("task_id", task.ID()),
			zap.String("task_name", task.Name()))
		return ErrQueueFull
	}
}

// Shutdown stops accepting tasks and waits for in-flight work to finish,
// up to the context deadline. Pending queued tasks are drained first.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		// Give up waiting and cancel in-flight tasks.
		q.cancel()
		return ctx.Err()
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for task := range q.tasks {
		q.runTask(task)
	}
}

// runTask executes a task with its retry budget. A non-retryable error
// fails the task immediately; otherwise attempts are separated by
// exponential backoff with jitter.
func (q *Queue) runTask(task Task) {
	maxAttempts := task.MaxAttempts()
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := q.calculateBackoff(attempt)
			q.logger.Info("retrying task after backoff",
				zap.String("task_id", task.ID()),
				zap.String("task_name", task.Name()),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", maxAttempts),
				zap.Duration("backoff", backoff))

			select {
			case <-q.ctx.Done():
				q.failTask(task, q.ctx.Err())
				return
			case <-time.After(backoff):
			}
		}

		err := q.executeAttempt(task)
		if err == nil {
			q.logger.Info("task completed",
				zap.String("task_id", task.ID()),
				zap.String("task_name", task.Name()),
				zap.Int("attempt", attempt))
			return
		}
		lastErr = err

		if errors.Is(err, context.Canceled) {
			break
		}
		if !IsRetryable(err) {
			q.logger.Warn("non-retryable error, failing task immediately",
				zap.String("task_id", task.ID()),
				zap.String("task_name", task.Name()),
				zap.Error(err))
			break
		}

		q.logger.Warn("task attempt failed",
			zap.String("task_id", task.ID()),
			zap.String("task_name", task.Name()),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err))
	}

	q.failTask(task, lastErr)
}

// executeAttempt runs one attempt under the per-task timeout.
func (q *Queue) executeAttempt(task Task) error {
	ctx, cancel := context.WithTimeout(q.ctx, q.cfg.TaskTimeout)
	defer cancel()
	return task.Execute(ctx)
}

// failTask logs the terminal failure and invokes the task's failure hook if
// it has one. The hook gets a fresh context so it can still write state
// after the attempt context expired.
func (q *Queue) failTask(task Task, err error) {
	q.logger.Error("task failed",
		zap.String("task_id", task.ID()),
		zap.String("task_name", task.Name()),
		zap.Error(err))

	hook, ok := task.(FailureHook)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	hook.OnFailure(ctx, err)
}

// calculateBackoff computes the delay before the given attempt, with ±10%
// jitter to avoid thundering herds.
func (q *Queue) calculateBackoff(attempt int) time.Duration {
	backoff := float64(q.cfg.InitialBackoff) *
		math.Pow(q.cfg.BackoffFactor, float64(attempt-2))

	if backoff > float64(q.cfg.MaxBackoff) {
		backoff = float64(q.cfg.MaxBackoff)
	}

	jitter := backoff * 0.1 * (rand.Float64()*2 - 1)
	return time.Duration(backoff + jitter)
}
