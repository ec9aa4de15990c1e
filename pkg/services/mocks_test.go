package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ideaforge-ai/ideaforge-engine/pkg/agent"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/apperrors"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/learning"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/llm"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/models"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/progress"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/services/workqueue"
)

// mockSolutionRepo is an in-memory SolutionRepository.
type mockSolutionRepo struct {
	mu        sync.Mutex
	solutions map[uuid.UUID]*models.Solution

	createErr error
	updateErr error
	saveErr   error
}

func newMockSolutionRepo(solutions ...*models.Solution) *mockSolutionRepo {
	repo := &mockSolutionRepo{solutions: make(map[uuid.UUID]*models.Solution)}
	for _, s := range solutions {
		repo.solutions[s.ID] = s
	}
	return repo
}

func (r *mockSolutionRepo) Create(_ context.Context, solution *models.Solution) (*models.Solution, error) {
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if solution.ID == uuid.Nil {
		solution.ID = uuid.New()
	}
	solution.CreatedAt = time.Now()
	solution.UpdatedAt = solution.CreatedAt
	copied := *solution
	r.solutions[solution.ID] = &copied
	return solution, nil
}

func (r *mockSolutionRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Solution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	solution, ok := r.solutions[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *solution
	return &copied, nil
}

func (r *mockSolutionRepo) ListByUser(_ context.Context, userID string) ([]*models.Solution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Solution
	for _, s := range r.solutions {
		if s.UserID == userID {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *mockSolutionRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to models.SolutionStatus) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	solution, ok := r.solutions[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if solution.Status != from {
		return apperrors.ErrConflict
	}
	solution.Status = to
	return nil
}

func (r *mockSolutionRepo) SetRequirements(_ context.Context, id uuid.UUID, requirements string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	solution, ok := r.solutions[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	solution.Requirements = &requirements
	return nil
}

func (r *mockSolutionRepo) SetRequirementApproved(_ context.Context, id uuid.UUID, status models.SolutionStatus, approvedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	solution, ok := r.solutions[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	solution.Status = status
	solution.RequirementApprovedAt = &approvedAt
	return nil
}

func (r *mockSolutionRepo) SetSolutionApproved(_ context.Context, id uuid.UUID, status models.SolutionStatus, approvedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	solution, ok := r.solutions[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	solution.Status = status
	solution.SolutionApprovedAt = &approvedAt
	return nil
}

func (r *mockSolutionRepo) SaveGeneratedSolution(_ context.Context, id uuid.UUID, document string, meta *models.SolutionMetadata, status models.SolutionStatus) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	solution, ok := r.solutions[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	solution.TechnicalSolution = &document
	solution.Metadata = solution.Metadata.Merge(meta)
	solution.Status = status
	generatedAt := time.Now()
	solution.GeneratedAt = &generatedAt
	return nil
}

func (r *mockSolutionRepo) MergeMetadata(_ context.Context, id uuid.UUID, meta *models.SolutionMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	solution, ok := r.solutions[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	solution.Metadata = solution.Metadata.Merge(meta)
	return nil
}

func (r *mockSolutionRepo) ListUncaptured(_ context.Context, limit int) ([]*models.Solution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Solution
	for _, s := range r.solutions {
		if len(out) >= limit {
			break
		}
		if s.Status != models.SolutionStatusApproved && s.Status != models.SolutionStatusCompleted {
			continue
		}
		if s.Metadata.KnowledgeCaptured() {
			continue
		}
		copied := *s
		out = append(out, &copied)
	}
	return out, nil
}

// mockAIConfigService returns a fixed config or error.
type mockAIConfigService struct {
	config     *models.AIConfig
	resolveErr error
}

func (m *mockAIConfigService) Get(context.Context, string) (*models.AIConfig, error) {
	return m.config, nil
}

func (m *mockAIConfigService) Upsert(context.Context, string, models.AIProvider, string, string) (*models.AIConfig, error) {
	return m.config, nil
}

func (m *mockAIConfigService) Delete(context.Context, string) error { return nil }

func (m *mockAIConfigService) Test(context.Context, string) (*llm.TestResult, error) {
	return &llm.TestResult{Success: true}, nil
}

func (m *mockAIConfigService) Resolve(context.Context, string) (*models.AIConfig, error) {
	if m.resolveErr != nil {
		return nil, m.resolveErr
	}
	return m.config, nil
}

// mockAgentClient records requests and returns scripted responses.
type mockAgentClient struct {
	mu       sync.Mutex
	requests []*agent.GenerateRequest
	response *agent.GenerateResponse
	err      error
}

func (m *mockAgentClient) GenerateSolution(_ context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

// mockLearningClient records captures and can fail per knowledge type.
type mockLearningClient struct {
	mu      sync.Mutex
	records []*learning.Record
	nextID  int64
	failFor map[learning.KnowledgeType]error
}

func newMockLearningClient() *mockLearningClient {
	return &mockLearningClient{failFor: make(map[learning.KnowledgeType]error)}
}

func (m *mockLearningClient) Capture(_ context.Context, rec *learning.Record) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFor[rec.KnowledgeType]; err != nil {
		return 0, err
	}
	m.records = append(m.records, rec)
	m.nextID++
	return m.nextID, nil
}

// mockQueue captures enqueued tasks without running them.
type mockQueue struct {
	mu    sync.Mutex
	tasks []workqueue.Task
	err   error
}

func (q *mockQueue) Enqueue(task workqueue.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *mockQueue) enqueued() []workqueue.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]workqueue.Task(nil), q.tasks...)
}

// recordingStore wraps a progress store and keeps every record written, in
// order, so milestone sequences can be asserted.
type recordingStore struct {
	progress.Store
	mu      sync.Mutex
	history []progress.Record
}

func newRecordingStore() *recordingStore {
	return &recordingStore{Store: progress.NewMemoryStore()}
}

func (s *recordingStore) Set(ctx context.Context, solutionID uuid.UUID, rec progress.Record) error {
	s.mu.Lock()
	s.history = append(s.history, rec)
	s.mu.Unlock()
	return s.Store.Set(ctx, solutionID, rec)
}

func strPtr(s string) *string { return &s }

func testSolution(userID string, status models.SolutionStatus) *models.Solution {
	return &models.Solution{
		ID:             uuid.New(),
		ConversationID: uuid.New(),
		ThreadID:       "thread-1",
		UserID:         userID,
		Title:          "Inventory sync service",
		Status:         status,
	}
}
