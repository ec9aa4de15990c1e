package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ideaforge-ai/ideaforge-engine/pkg/apperrors"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/models"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/progress"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/repositories"
)

// CreateSolutionInput carries the fields needed to create a draft solution.
type CreateSolutionInput struct {
	ConversationID uuid.UUID
	ThreadID       string
	ProjectID      *uuid.UUID
	Title          string
	Description    string
	Requirements   string
}

// SolutionService is the synchronous control surface over the solution
// lifecycle. Long-running work is enqueued, never awaited.
type SolutionService interface {
	Create(ctx context.Context, userID string, input *CreateSolutionInput) (*models.Solution, error)
	List(ctx context.Context, userID string) ([]*models.Solution, error)
	Get(ctx context.Context, userID string, id uuid.UUID) (*models.Solution, error)

	// UpdateRequirements replaces the requirements text. Written by the
	// requirement-gathering flow; never touches technical_solution.
	UpdateRequirements(ctx context.Context, userID string, id uuid.UUID, requirements string) (*models.Solution, error)

	// Publish starts a generation run. Returns apperrors.ErrMissingRequirements
	// when requirements are empty and apperrors.ErrConflict when a run is
	// already in flight.
	Publish(ctx context.Context, userID string, id uuid.UUID) error

	// Republish restarts generation, overwriting the previous document.
	Republish(ctx context.Context, userID string, id uuid.UUID) error

	// Progress returns the current progress record, or the idle default when
	// none exists.
	Progress(ctx context.Context, userID string, id uuid.UUID) (progress.Record, error)

	ApproveRequirements(ctx context.Context, userID string, id uuid.UUID) (*models.Solution, error)

	// ApproveSolution completes the solution and dispatches knowledge capture.
	ApproveSolution(ctx context.Context, userID string, id uuid.UUID) (*models.Solution, error)

	Reject(ctx context.Context, userID string, id uuid.UUID) (*models.Solution, error)
}

// solutionService implements SolutionService.
type solutionService struct {
	solutions repositories.SolutionRepository
	aiConfigs AIConfigService
	agent     AgentClient
	learning  LearningClient
	progress  progress.Store
	queue     TaskQueue
	logger    *zap.Logger
}

// NewSolutionService creates a new solution service.
func NewSolutionService(
	solutions repositories.SolutionRepository,
	aiConfigs AIConfigService,
	agentClient AgentClient,
	learningClient LearningClient,
	store progress.Store,
	queue TaskQueue,
	logger *zap.Logger,
) SolutionService {
	return &solutionService{
		solutions: solutions,
		aiConfigs: aiConfigs,
		agent:     agentClient,
		learning:  learningClient,
		progress:  store,
		queue:     queue,
		logger:    logger.Named("solutions"),
	}
}

// Create inserts a new draft solution.
func (s *solutionService) Create(ctx context.Context, userID string, input *CreateSolutionInput) (*models.Solution, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, fmt.Errorf("title is required")
	}

	solution := &models.Solution{
		ConversationID: input.ConversationID,
		ThreadID:       input.ThreadID,
		UserID:         userID,
		ProjectID:      input.ProjectID,
		Title:          input.Title,
		Description:    input.Description,
		Status:         models.SolutionStatusDraft,
	}
	if req := strings.TrimSpace(input.Requirements); req != "" {
		solution.Requirements = &req
		solution.Status = models.SolutionStatusRequirementReady
	}

	created, err := s.solutions.Create(ctx, solution)
	if err != nil {
		return nil, err
	}

	s.logger.Info("solution created",
		zap.String("solution_id", created.ID.String()),
		zap.String("user_id", userID),
		zap.String("status", string(created.Status)))

	return created, nil
}

// List returns the caller's solutions, newest first.
func (s *solutionService) List(ctx context.Context, userID string) ([]*models.Solution, error) {
	return s.solutions.ListByUser(ctx, userID)
}

// Get returns a solution the caller owns.
func (s *solutionService) Get(ctx context.Context, userID string, id uuid.UUID) (*models.Solution, error) {
	return s.getOwned(ctx, userID, id)
}

// UpdateRequirements replaces the requirements text. When a draft or
// in-progress solution gains non-empty requirements it becomes
// requirement_ready.
func (s *solutionService) UpdateRequirements(ctx context.Context, userID string, id uuid.UUID, requirements string) (*models.Solution, error) {
	solution, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if solution.Status == models.SolutionStatusGeneratingSolution {
		return nil, apperrors.ErrConflict
	}
	if solution.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: solution is %s", apperrors.ErrInvalidTransition, solution.Status)
	}

	if err := s.solutions.SetRequirements(ctx, id, requirements); err != nil {
		return nil, err
	}

	if strings.TrimSpace(requirements) != "" &&
		(solution.Status == models.SolutionStatusDraft || solution.Status == models.SolutionStatusInProgress) {
		if err := s.solutions.UpdateStatus(ctx, id, solution.Status, models.SolutionStatusRequirementReady); err != nil {
			return nil, err
		}
	}

	return s.solutions.GetByID(ctx, id)
}

// Publish starts a generation run with isRepublish=false.
func (s *solutionService) Publish(ctx context.Context, userID string, id uuid.UUID) error {
	return s.startGeneration(ctx, userID, id, false)
}

// Republish restarts generation with isRepublish=true.
func (s *solutionService) Republish(ctx context.Context, userID string, id uuid.UUID) error {
	return s.startGeneration(ctx, userID, id, true)
}

// startGeneration validates, claims the run, and enqueues the orchestrator.
// The claim is a single atomic acquire on the progress store, so two
// concurrent publishes for the same id cannot both pass the guard.
func (s *solutionService) startGeneration(ctx context.Context, userID string, id uuid.UUID, isRepublish bool) error {
	solution, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return err
	}

	if !solution.HasRequirements() {
		return apperrors.ErrMissingRequirements
	}
	if !solution.Status.CanPublish() {
		return fmt.Errorf("%w: cannot publish from %s", apperrors.ErrInvalidTransition, solution.Status)
	}

	// A visible active record means a run is in flight; reject before even
	// attempting the claim.
	if rec, exists, err := s.progress.Get(ctx, id); err == nil && exists && rec.Status.Active() {
		return apperrors.ErrConflict
	}

	acquired, err := s.progress.Acquire(ctx, id)
	if err != nil {
		return fmt.Errorf("acquire generation claim: %w", err)
	}
	if !acquired {
		return apperrors.ErrConflict
	}

	task := NewGenerationTask(id, isRepublish, s.solutions, s.aiConfigs, s.agent, s.progress, s.logger)
	if err := s.queue.Enqueue(task); err != nil {
		if relErr := s.progress.Release(ctx, id); relErr != nil {
			s.logger.Warn("failed to release claim after enqueue failure",
				zap.String("solution_id", id.String()),
				zap.Error(relErr))
		}
		return fmt.Errorf("enqueue generation: %w", err)
	}

	s.logger.Info("generation run enqueued",
		zap.String("solution_id", id.String()),
		zap.String("user_id", userID),
		zap.Bool("is_republish", isRepublish))

	return nil
}

// Progress returns the progress record verbatim, or the idle default.
func (s *solutionService) Progress(ctx context.Context, userID string, id uuid.UUID) (progress.Record, error) {
	if _, err := s.getOwned(ctx, userID, id); err != nil {
		return progress.Record{}, err
	}

	rec, exists, err := s.progress.Get(ctx, id)
	if err != nil {
		return progress.Record{}, err
	}
	if !exists {
		return progress.IdleRecord(), nil
	}
	return rec, nil
}

// ApproveRequirements moves requirement_ready to approved.
func (s *solutionService) ApproveRequirements(ctx context.Context, userID string, id uuid.UUID) (*models.Solution, error) {
	solution, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if !solution.Status.CanTransitionTo(models.SolutionStatusApproved) {
		return nil, fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidTransition,
			solution.Status, models.SolutionStatusApproved)
	}

	if err := s.solutions.SetRequirementApproved(ctx, id, models.SolutionStatusApproved, now()); err != nil {
		return nil, err
	}

	s.logger.Info("requirements approved",
		zap.String("solution_id", id.String()),
		zap.String("user_id", userID))

	return s.solutions.GetByID(ctx, id)
}

// ApproveSolution moves solution_ready to completed and dispatches knowledge
// capture with scope all. Capture is dispatched once per approval event;
// failures there never surface to the caller.
func (s *solutionService) ApproveSolution(ctx context.Context, userID string, id uuid.UUID) (*models.Solution, error) {
	solution, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if !solution.Status.CanTransitionTo(models.SolutionStatusCompleted) {
		return nil, fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidTransition,
			solution.Status, models.SolutionStatusCompleted)
	}

	if err := s.solutions.SetSolutionApproved(ctx, id, models.SolutionStatusCompleted, now()); err != nil {
		return nil, err
	}

	task := NewKnowledgeCaptureTask(id, CaptureScopeAll, s.solutions, s.learning, s.logger)
	if err := s.queue.Enqueue(task); err != nil {
		s.logger.Error("failed to enqueue knowledge capture",
			zap.String("solution_id", id.String()),
			zap.Error(err))
	}

	s.logger.Info("solution approved",
		zap.String("solution_id", id.String()),
		zap.String("user_id", userID))

	return s.solutions.GetByID(ctx, id)
}

// Reject moves any non-terminal solution to rejected.
func (s *solutionService) Reject(ctx context.Context, userID string, id uuid.UUID) (*models.Solution, error) {
	solution, err := s.getOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if !solution.Status.CanTransitionTo(models.SolutionStatusRejected) {
		return nil, fmt.Errorf("%w: solution is %s", apperrors.ErrInvalidTransition, solution.Status)
	}

	if err := s.solutions.UpdateStatus(ctx, id, solution.Status, models.SolutionStatusRejected); err != nil {
		return nil, err
	}

	return s.solutions.GetByID(ctx, id)
}

// getOwned loads a solution and enforces ownership.
func (s *solutionService) getOwned(ctx context.Context, userID string, id uuid.UUID) (*models.Solution, error) {
	solution, err := s.solutions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !solution.OwnedBy(userID) {
		return nil, apperrors.ErrForbidden
	}
	return solution, nil
}

// Ensure solutionService implements SolutionService at compile time.
var _ SolutionService = (*solutionService)(nil)
