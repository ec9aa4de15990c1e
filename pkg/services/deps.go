// Package services contains the business logic of ideaforge-engine: the
// solution lifecycle, the generation pipeline, and knowledge capture.
package services

import (
	"context"
	"time"

	"github.com/ideaforge-ai/ideaforge-engine/pkg/agent"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/learning"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/services/workqueue"
)

// now is swapped out by tests that assert on timestamps.
var now = time.Now

// AgentClient is the outbound contract to the agent service that performs
// document generation. Satisfied by *agent.Client.
type AgentClient interface {
	GenerateSolution(ctx context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error)
}

// LearningClient is the outbound contract to the learning service.
// Satisfied by *learning.Client.
type LearningClient interface {
	Capture(ctx context.Context, rec *learning.Record) (int64, error)
}

// TaskQueue is what services need from the work queue. Satisfied by
// *workqueue.Queue.
type TaskQueue interface {
	Enqueue(task workqueue.Task) error
}

// nonRetryableError marks an error as terminal so the work queue fails the
// task without burning remaining attempts.
type nonRetryableError struct {
	err error
}

func (e *nonRetryableError) Error() string   { return e.err.Error() }
func (e *nonRetryableError) Unwrap() error   { return e.err }
func (e *nonRetryableError) Retryable() bool { return false }

func nonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &nonRetryableError{err: err}
}
