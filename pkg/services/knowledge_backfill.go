package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/ideaforge-ai/ideaforge-engine/pkg/repositories"
)

// BackfillSummary reports one backfill sweep.
type BackfillSummary struct {
	Scanned  int `json:"scanned"`
	Skipped  int `json:"skipped"`
	Captured int `json:"captured"`
	Failed   int `json:"failed"`
}

// KnowledgeBackfill sweeps approved and completed solutions whose content
// was never forwarded to the learning service and dispatches captures for
// them. The idempotence filter lives here: already-captured solutions are
// skipped by the capture timestamp, so re-running a sweep dispatches nothing
// new.
type KnowledgeBackfill struct {
	solutions repositories.SolutionRepository
	learning  LearningClient
	logger    *zap.Logger
}

// NewKnowledgeBackfill creates a backfill sweeper.
func NewKnowledgeBackfill(solutions repositories.SolutionRepository, learningClient LearningClient, logger *zap.Logger) *KnowledgeBackfill {
	return &KnowledgeBackfill{
		solutions: solutions,
		learning:  learningClient,
		logger:    logger.Named("knowledge-backfill"),
	}
}

// Run performs one sweep, capturing synchronously up to limit solutions.
func (b *KnowledgeBackfill) Run(ctx context.Context, limit int) (*BackfillSummary, error) {
	if limit <= 0 {
		limit = 100
	}

	candidates, err := b.solutions.ListUncaptured(ctx, limit)
	if err != nil {
		return nil, err
	}

	summary := &BackfillSummary{Scanned: len(candidates)}

	for _, solution := range candidates {
		if solution.Metadata.KnowledgeCaptured() {
			summary.Skipped++
			continue
		}

		task := NewKnowledgeCaptureTask(solution.ID, CaptureScopeAll, b.solutions, b.learning, b.logger)
		if err := task.Execute(ctx); err != nil {
			summary.Failed++
			b.logger.Warn("backfill capture failed",
				zap.String("solution_id", solution.ID.String()),
				zap.Error(err))
			continue
		}
		summary.Captured++
	}

	b.logger.Info("backfill sweep finished",
		zap.Int("scanned", summary.Scanned),
		zap.Int("skipped", summary.Skipped),
		zap.Int("captured", summary.Captured),
		zap.Int("failed", summary.Failed))

	return summary, nil
}
