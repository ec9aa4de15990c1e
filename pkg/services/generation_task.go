package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ideaforge-ai/ideaforge-engine/pkg/agent"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/apperrors"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/logging"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/models"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/progress"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/repositories"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/services/workqueue"
)

// generationMaxAttempts bounds retries of a single generation run.
const generationMaxAttempts = 2

// GenerationTask drives one end-to-end generation run for one solution.
// It is the only writer of technical_solution and generated_at. Progress is
// reported through fixed milestones so polling clients see a stable contract.
type GenerationTask struct {
	solutionID  uuid.UUID
	isRepublish bool

	solutions repositories.SolutionRepository
	aiConfigs AIConfigService
	agent     AgentClient
	progress  progress.Store
	logger    *zap.Logger
}

// NewGenerationTask creates a generation task for the given solution.
func NewGenerationTask(
	solutionID uuid.UUID,
	isRepublish bool,
	solutions repositories.SolutionRepository,
	aiConfigs AIConfigService,
	agentClient AgentClient,
	store progress.Store,
	logger *zap.Logger,
) *GenerationTask {
	return &GenerationTask{
		solutionID:  solutionID,
		isRepublish: isRepublish,
		solutions:   solutions,
		aiConfigs:   aiConfigs,
		agent:       agentClient,
		progress:    store,
		logger:      logger.Named("generation"),
	}
}

func (t *GenerationTask) ID() string       { return t.solutionID.String() }
func (t *GenerationTask) Name() string     { return "solution_generation" }
func (t *GenerationTask) MaxAttempts() int { return generationMaxAttempts }

// Execute runs one generation attempt. Preconditions are re-validated here,
// not only at the publish surface, to close the race window between the
// guard check and the job actually starting.
func (t *GenerationTask) Execute(ctx context.Context) error {
	solution, err := t.solutions.GetByID(ctx, t.solutionID)
	if err != nil {
		return t.fail(ctx, nonRetryable(fmt.Errorf("load solution: %w", err)))
	}
	if !solution.HasRequirements() {
		return t.fail(ctx, nonRetryable(apperrors.ErrMissingRequirements))
	}

	if solution.Status != models.SolutionStatusGeneratingSolution {
		if !solution.Status.CanTransitionTo(models.SolutionStatusGeneratingSolution) {
			return t.fail(ctx, nonRetryable(
				fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidTransition,
					solution.Status, models.SolutionStatusGeneratingSolution)))
		}
		if err := t.solutions.UpdateStatus(ctx, t.solutionID, solution.Status, models.SolutionStatusGeneratingSolution); err != nil {
			return t.fail(ctx, fmt.Errorf("mark generating: %w", err))
		}
	}

	t.setProgress(ctx, progress.StatusStarting, 0, "Starting solution generation")
	t.setProgress(ctx, progress.StatusAnalyzing, 25, "Analyzing requirements")

	// Missing credentials are a configuration problem; retrying cannot fix it.
	aiConfig, err := t.aiConfigs.Resolve(ctx, solution.UserID)
	if err != nil {
		return t.fail(ctx, nonRetryable(fmt.Errorf("resolve AI credentials: %w", err)))
	}

	t.setProgress(ctx, progress.StatusGenerating, 50, "Generating technical solution")

	resp, err := t.agent.GenerateSolution(ctx, &agent.GenerateRequest{
		ThreadID:     solution.ThreadID,
		Requirements: *solution.Requirements,
		UserID:       solution.UserID,
		AIProvider:   string(aiConfig.Provider),
		AIAPIKey:     aiConfig.APIKey,
		IsRepublish:  t.isRepublish,
	})
	if err != nil {
		return t.fail(ctx, fmt.Errorf("generate solution: %w", err))
	}

	t.setProgress(ctx, progress.StatusSaving, 90, "Saving generated solution")

	meta := &models.SolutionMetadata{
		ModelUsed:   resp.Metadata.ModelUsed,
		WordCount:   resp.Metadata.WordCount,
		CharCount:   resp.Metadata.CharCount,
		IsRepublish: t.isRepublish,
	}
	if err := t.solutions.SaveGeneratedSolution(ctx, t.solutionID, resp.Solution, meta, models.SolutionStatusSolutionReady); err != nil {
		return t.fail(ctx, fmt.Errorf("save solution: %w", err))
	}

	t.setProgress(ctx, progress.StatusCompleted, 100, "Solution generated successfully")

	if err := t.progress.Release(ctx, t.solutionID); err != nil {
		t.logger.Warn("failed to release generation lock",
			zap.String("solution_id", t.solutionID.String()),
			zap.Error(err))
	}

	t.logger.Info("generation run completed",
		zap.String("solution_id", t.solutionID.String()),
		zap.Bool("is_republish", t.isRepublish),
		zap.String("model", resp.Metadata.ModelUsed))

	return nil
}

// OnFailure runs after all attempts are exhausted. It guarantees the
// terminal state is visible even if Execute never reached its own failure
// path: solution in generation_failed, progress record failed, lock released.
func (t *GenerationTask) OnFailure(ctx context.Context, err error) {
	t.markFailed(ctx, err)

	if relErr := t.progress.Release(ctx, t.solutionID); relErr != nil {
		t.logger.Warn("failed to release generation lock",
			zap.String("solution_id", t.solutionID.String()),
			zap.Error(relErr))
	}
}

// fail records the failure state and returns err so the queue's retry policy
// applies. The run lock stays held between attempts; OnFailure releases it.
func (t *GenerationTask) fail(ctx context.Context, err error) error {
	t.markFailed(ctx, err)
	return err
}

func (t *GenerationTask) markFailed(ctx context.Context, err error) {
	summary := logging.SanitizeError(err)

	t.logger.Error("generation run failed",
		zap.String("solution_id", t.solutionID.String()),
		zap.Bool("is_republish", t.isRepublish),
		zap.Error(err))

	solution, getErr := t.solutions.GetByID(ctx, t.solutionID)
	if getErr == nil && solution.Status != models.SolutionStatusGenerationFailed {
		if solution.Status.CanTransitionTo(models.SolutionStatusGenerationFailed) {
			if updErr := t.solutions.UpdateStatus(ctx, t.solutionID, solution.Status, models.SolutionStatusGenerationFailed); updErr != nil {
				t.logger.Error("failed to mark solution generation_failed",
					zap.String("solution_id", t.solutionID.String()),
					zap.Error(updErr))
			}
		}
	}

	if metaErr := t.solutions.MergeMetadata(ctx, t.solutionID, &models.SolutionMetadata{
		GenerationError: summary,
	}); metaErr != nil {
		t.logger.Warn("failed to record generation error in metadata",
			zap.String("solution_id", t.solutionID.String()),
			zap.Error(metaErr))
	}

	t.setProgress(ctx, progress.StatusFailed, 0, summary)
}

// setProgress writes a milestone. A progress write failure never aborts the
// run; the record is advisory.
func (t *GenerationTask) setProgress(ctx context.Context, status progress.Status, pct int, message string) {
	rec := progress.Record{Status: status, Progress: pct, Message: message}
	if err := t.progress.Set(ctx, t.solutionID, rec); err != nil {
		t.logger.Warn("failed to write progress record",
			zap.String("solution_id", t.solutionID.String()),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}

// Ensure GenerationTask satisfies the queue contracts at compile time.
var (
	_ workqueue.Task        = (*GenerationTask)(nil)
	_ workqueue.FailureHook = (*GenerationTask)(nil)
)
