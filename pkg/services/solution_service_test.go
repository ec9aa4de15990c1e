package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ideaforge-ai/ideaforge-engine/pkg/apperrors"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/models"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/progress"
)

func newSolutionService(repo *mockSolutionRepo, store progress.Store, queue *mockQueue) SolutionService {
	return NewSolutionService(repo,
		&mockAIConfigService{config: &models.AIConfig{Provider: models.AIProviderOpenAI, APIKey: "sk-test"}},
		&mockAgentClient{}, newMockLearningClient(), store, queue, zap.NewNop())
}

func TestSolutionService_Publish_MissingRequirements(t *testing.T) {
	solution := testSolution("user-1", models.SolutionStatusRequirementReady)
	repo := newMockSolutionRepo(solution)
	queue := &mockQueue{}
	svc := newSolutionService(repo, progress.NewMemoryStore(), queue)

	err := svc.Publish(context.Background(), "user-1", solution.ID)

	assert.ErrorIs(t, err, apperrors.ErrMissingRequirements)
	assert.Empty(t, queue.enqueued(), "validation failure must not enqueue")

	got, _ := repo.GetByID(context.Background(), solution.ID)
	assert.Equal(t, models.SolutionStatusRequirementReady, got.Status, "validation failure must not mutate status")
}

func TestSolutionService_Publish_Success(t *testing.T) {
	solution := testSolution("user-1", models.SolutionStatusRequirementReady)
	solution.Requirements = strPtr("build a thing")
	repo := newMockSolutionRepo(solution)
	queue := &mockQueue{}
	svc := newSolutionService(repo, progress.NewMemoryStore(), queue)

	err := svc.Publish(context.Background(), "user-1", solution.ID)

	require.NoError(t, err)
	tasks := queue.enqueued()
	require.Len(t, tasks, 1)

	genTask, ok := tasks[0].(*GenerationTask)
	require.True(t, ok)
	assert.Equal(t, solution.ID.String(), genTask.ID())
	assert.False(t, genTask.isRepublish)
}

func TestSolutionService_Republish_SetsFlag(t *testing.T) {
	solution := testSolution("user-1", models.SolutionStatusSolutionReady)
	solution.Requirements = strPtr("build a thing")
	repo := newMockSolutionRepo(solution)
	queue := &mockQueue{}
	svc := newSolutionService(repo, progress.NewMemoryStore(), queue)

	err := svc.Republish(context.Background(), "user-1", solution.ID)

	require.NoError(t, err)
	tasks := queue.enqueued()
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].(*GenerationTask).isRepublish)
}

func TestSolutionService_Publish_ConflictWhileActive(t *testing.T) {
	solution := testSolution("user-1", models.SolutionStatusRequirementReady)
	solution.Requirements = strPtr("build a thing")
	repo := newMockSolutionRepo(solution)
	store := progress.NewMemoryStore()
	queue := &mockQueue{}
	svc := newSolutionService(repo, store, queue)

	// A run is visibly in flight.
	require.NoError(t, store.Set(context.Background(), solution.ID,
		progress.Record{Status: progress.StatusGenerating, Progress: 50}))

	err := svc.Publish(context.Background(), "user-1", solution.ID)

	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Empty(t, queue.enqueued())
}

func TestSolutionService_Publish_ConflictWhenClaimHeld(t *testing.T) {
	solution := testSolution("user-1", models.SolutionStatusRequirementReady)
	solution.Requirements = strPtr("build a thing")
	repo := newMockSolutionRepo(solution)
	store := progress.NewMemoryStore()
	queue := &mockQueue{}
	svc := newSolutionService(repo, store, queue)

	// The claim is held but no progress record was written yet. The atomic
	// acquire must still reject the second caller.
	acquired, err := store.Acquire(context.Background(), solution.ID)
	require.NoError(t, err)
	require.True(t, acquired)

	err = svc.Publish(context.Background(), "user-1", solution.ID)

	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Empty(t, queue.enqueued())
}

func TestSolutionService_Publish_ReleasesClaimOnEnqueueFailure(t *testing.T) {
	solution := testSolution("user-1", models.SolutionStatusRequirementReady)
	solution.Requirements = strPtr("build a thing")
	repo := newMockSolutionRepo(solution)
	store := progress.NewMemoryStore()
	queue := &mockQueue{err: assert.AnError}
	svc := newSolutionService(repo, store, queue)

	err := svc.Publish(context.Background(), "user-1", solution.ID)
	require.Error(t, err)

	// The claim must be free again so a later publish can proceed.
	acquired, acqErr := store.Acquire(context.Background(), solution.ID)
	require.NoError(t, acqErr)
	assert.True(t, acquired)
}

func TestSolutionService_Publish_NonOwner(t *testing.T) {
	solution := testSolution("user-1", models.SolutionStatusRequirementReady)
	solution.Requirements = strPtr("build a thing")
	repo := newMockSolutionRepo(solution)
	queue := &mockQueue{}
	svc := newSolutionService(repo, progress.NewMemoryStore(), queue)

	err := svc.Publish(context.Background(), "user-2", solution.ID)

	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	assert.Empty(t, queue.enqueued())
}

func TestSolutionService_Publish_InvalidStatus(t *testing.T) {
	solution := testSolution("user-1", models.SolutionStatusDraft)
	solution.Requirements = strPtr("build a thing")
	repo := newMockSolutionRepo(solution)
	queue := &mockQueue{}
	svc := newSolutionService(repo, progress.NewMemoryStore(), queue)

	err := svc.Publish(context.Background(), "user-1", solution.ID)

	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	assert.Empty(t, queue.enqueued())
}

func TestSolutionService_Progress_IdleDefault(t *testing.T) {
	solution := testSolution("user-1", models.SolutionStatusRequirementReady)
	repo := newMockSolutionRepo(solution)
	svc := newSolutionService(repo, progress.NewMemoryStore(), &mockQueue{})

	rec, err := svc.Progress(context.Background(), "user-1", solution.ID)

	require.NoError(t, err)
	assert.Equal(t, progress.StatusIdle, rec.Status)
	assert.Equal(t, 0, rec.Progress)
	assert.Equal(t, "No generation in progress", rec.Message)
}

func TestSolutionService_Progress_ReturnsRecordVerbatim(t *testing.T) {
	solution := testSolution("user-1", models.SolutionStatusGeneratingSolution)
	repo := newMockSolutionRepo(solution)
	store := progress.NewMemoryStore()
	svc := newSolutionService(repo, store, &mockQueue{})

	want := progress.Record{Status: progress.StatusAnalyzing, Progress: 25, Message: "Analyzing requirements"}
	require.NoError(t, store.Set(context.Background(), solution.ID, want))

	rec, err := svc.Progress(context.Background(), "user-1", solution.ID)

	require.NoError(t, err)
	assert.Equal(t, want, rec)
}

func TestSolutionService_ApproveRequirements(t *testing.T) {
	solution := testSolution("user-1", models.SolutionStatusRequirementReady)
	repo := newMockSolutionRepo(solution)
	svc := newSolutionService(repo, progress.NewMemoryStore(), &mockQueue{})

	updated, err := svc.ApproveRequirements(context.Background(), "user-1", solution.ID)

	require.NoError(t, err)
	assert.Equal(t, models.SolutionStatusApproved, updated.Status)
	assert.NotNil(t, updated.RequirementApprovedAt)
}

func TestSolutionService_ApproveSolution_DispatchesCaptureOnce(t *testing.T) {
	solution := testSolution("user-1", models.SolutionStatusSolutionReady)
	solution.Requirements = strPtr("build a thing")
	solution.TechnicalSolution = strPtr("the design")
	repo := newMockSolutionRepo(solution)
	queue := &mockQueue{}
	svc := newSolutionService(repo, progress.NewMemoryStore(), queue)

	updated, err := svc.ApproveSolution(context.Background(), "user-1", solution.ID)

	require.NoError(t, err)
	assert.Equal(t, models.SolutionStatusCompleted, updated.Status)
	assert.NotNil(t, updated.SolutionApprovedAt)

	tasks := queue.enqueued()
	require.Len(t, tasks, 1, "exactly one capture dispatch per approval event")
	captureTask, ok := tasks[0].(*KnowledgeCaptureTask)
	require.True(t, ok)
	assert.Equal(t, CaptureScopeAll, captureTask.scope)
}

func TestSolutionService_ApproveSolution_WrongStatus(t *testing.T) {
	solution := testSolution("user-1", models.SolutionStatusRequirementReady)
	repo := newMockSolutionRepo(solution)
	queue := &mockQueue{}
	svc := newSolutionService(repo, progress.NewMemoryStore(), queue)

	_, err := svc.ApproveSolution(context.Background(), "user-1", solution.ID)

	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	assert.Empty(t, queue.enqueued())
}

func TestSolutionService_Reject(t *testing.T) {
	t.Run("rejects non-terminal solution", func(t *testing.T) {
		solution := testSolution("user-1", models.SolutionStatusSolutionReady)
		repo := newMockSolutionRepo(solution)
		svc := newSolutionService(repo, progress.NewMemoryStore(), &mockQueue{})

		updated, err := svc.Reject(context.Background(), "user-1", solution.ID)

		require.NoError(t, err)
		assert.Equal(t, models.SolutionStatusRejected, updated.Status)
	})

	t.Run("refuses terminal solution", func(t *testing.T) {
		solution := testSolution("user-1", models.SolutionStatusCompleted)
		repo := newMockSolutionRepo(solution)
		svc := newSolutionService(repo, progress.NewMemoryStore(), &mockQueue{})

		_, err := svc.Reject(context.Background(), "user-1", solution.ID)

		assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	})
}

func TestSolutionService_UpdateRequirements(t *testing.T) {
	t.Run("draft becomes requirement_ready", func(t *testing.T) {
		solution := testSolution("user-1", models.SolutionStatusDraft)
		repo := newMockSolutionRepo(solution)
		svc := newSolutionService(repo, progress.NewMemoryStore(), &mockQueue{})

		updated, err := svc.UpdateRequirements(context.Background(), "user-1", solution.ID, "the requirements")

		require.NoError(t, err)
		assert.Equal(t, models.SolutionStatusRequirementReady, updated.Status)
		require.NotNil(t, updated.Requirements)
		assert.Equal(t, "the requirements", *updated.Requirements)
	})

	t.Run("rejected while generating", func(t *testing.T) {
		solution := testSolution("user-1", models.SolutionStatusGeneratingSolution)
		repo := newMockSolutionRepo(solution)
		svc := newSolutionService(repo, progress.NewMemoryStore(), &mockQueue{})

		_, err := svc.UpdateRequirements(context.Background(), "user-1", solution.ID, "new text")

		assert.ErrorIs(t, err, apperrors.ErrConflict)
	})

	t.Run("never touches technical solution", func(t *testing.T) {
		solution := testSolution("user-1", models.SolutionStatusSolutionReady)
		solution.Requirements = strPtr("old")
		solution.TechnicalSolution = strPtr("the generated document")
		repo := newMockSolutionRepo(solution)
		svc := newSolutionService(repo, progress.NewMemoryStore(), &mockQueue{})

		updated, err := svc.UpdateRequirements(context.Background(), "user-1", solution.ID, "new")

		require.NoError(t, err)
		require.NotNil(t, updated.TechnicalSolution)
		assert.Equal(t, "the generated document", *updated.TechnicalSolution)
	})
}

func TestSolutionService_Create(t *testing.T) {
	repo := newMockSolutionRepo()
	svc := newSolutionService(repo, progress.NewMemoryStore(), &mockQueue{})

	t.Run("draft without requirements", func(t *testing.T) {
		created, err := svc.Create(context.Background(), "user-1", &CreateSolutionInput{
			ConversationID: uuid.New(),
			ThreadID:       "thread-9",
			Title:          "New idea",
		})

		require.NoError(t, err)
		assert.Equal(t, models.SolutionStatusDraft, created.Status)
		assert.Equal(t, "user-1", created.UserID)
	})

	t.Run("requirement_ready with requirements", func(t *testing.T) {
		created, err := svc.Create(context.Background(), "user-1", &CreateSolutionInput{
			ConversationID: uuid.New(),
			Title:          "Another idea",
			Requirements:   "do the thing",
		})

		require.NoError(t, err)
		assert.Equal(t, models.SolutionStatusRequirementReady, created.Status)
	})

	t.Run("title required", func(t *testing.T) {
		_, err := svc.Create(context.Background(), "user-1", &CreateSolutionInput{})
		assert.Error(t, err)
	})
}
