package workqueue

import (
	"context"
	"errors"
)

// Task is the interface all background jobs implement. Jobs run on a worker
// pool separate from the request-handling path; the HTTP surface enqueues
// and returns immediately.
type Task interface {
	// ID returns a unique identifier for this task instance.
	ID() string

	// Name returns a human-readable name for logging.
	Name() string

	// MaxAttempts returns the total number of attempts allowed, including
	// the first. Must be at least 1.
	MaxAttempts() int

	// Execute runs the task. The context carries the task's deadline.
	Execute(ctx context.Context) error
}

// FailureHook is implemented by tasks that must record a terminal failure
// state even when Execute never reached its own error path. It runs once,
// after all attempts are exhausted or a non-retryable error occurs.
type FailureHook interface {
	OnFailure(ctx context.Context, err error)
}

// retryableError is the contract errors implement to opt in or out of
// retries. Errors that do not implement it are retried by default.
type retryableError interface {
	error
	Retryable() bool
}

// IsRetryable reports whether err should be retried. Errors are retryable
// unless they explicitly declare otherwise.
func IsRetryable(err error) bool {
	var re retryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return true
}
