package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ideaforge-ai/ideaforge-engine/pkg/auth"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/llm"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/models"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/progress"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/services"
)

// mockSolutionService is a configurable mock of services.SolutionService.
type mockSolutionService struct {
	createFn       func(ctx context.Context, userID string, input *services.CreateSolutionInput) (*models.Solution, error)
	listFn         func(ctx context.Context, userID string) ([]*models.Solution, error)
	getFn          func(ctx context.Context, userID string, id uuid.UUID) (*models.Solution, error)
	updateReqFn    func(ctx context.Context, userID string, id uuid.UUID, requirements string) (*models.Solution, error)
	publishFn      func(ctx context.Context, userID string, id uuid.UUID) error
	republishFn    func(ctx context.Context, userID string, id uuid.UUID) error
	progressFn     func(ctx context.Context, userID string, id uuid.UUID) (progress.Record, error)
	approveReqFn   func(ctx context.Context, userID string, id uuid.UUID) (*models.Solution, error)
	approveSolFn   func(ctx context.Context, userID string, id uuid.UUID) (*models.Solution, error)
	rejectFn       func(ctx context.Context, userID string, id uuid.UUID) (*models.Solution, error)
	publishCalls   int
	republishCalls int
}

func (m *mockSolutionService) Create(ctx context.Context, userID string, input *services.CreateSolutionInput) (*models.Solution, error) {
	return m.createFn(ctx, userID, input)
}

func (m *mockSolutionService) List(ctx context.Context, userID string) ([]*models.Solution, error) {
	return m.listFn(ctx, userID)
}

func (m *mockSolutionService) Get(ctx context.Context, userID string, id uuid.UUID) (*models.Solution, error) {
	return m.getFn(ctx, userID, id)
}

func (m *mockSolutionService) UpdateRequirements(ctx context.Context, userID string, id uuid.UUID, requirements string) (*models.Solution, error) {
	return m.updateReqFn(ctx, userID, id, requirements)
}

func (m *mockSolutionService) Publish(ctx context.Context, userID string, id uuid.UUID) error {
	m.publishCalls++
	return m.publishFn(ctx, userID, id)
}

func (m *mockSolutionService) Republish(ctx context.Context, userID string, id uuid.UUID) error {
	m.republishCalls++
	return m.republishFn(ctx, userID, id)
}

func (m *mockSolutionService) Progress(ctx context.Context, userID string, id uuid.UUID) (progress.Record, error) {
	return m.progressFn(ctx, userID, id)
}

func (m *mockSolutionService) ApproveRequirements(ctx context.Context, userID string, id uuid.UUID) (*models.Solution, error) {
	return m.approveReqFn(ctx, userID, id)
}

func (m *mockSolutionService) ApproveSolution(ctx context.Context, userID string, id uuid.UUID) (*models.Solution, error) {
	return m.approveSolFn(ctx, userID, id)
}

func (m *mockSolutionService) Reject(ctx context.Context, userID string, id uuid.UUID) (*models.Solution, error) {
	return m.rejectFn(ctx, userID, id)
}

// mockAIConfigService is a configurable mock of services.AIConfigService.
type mockAIConfigService struct {
	getFn     func(ctx context.Context, userID string) (*models.AIConfig, error)
	upsertFn  func(ctx context.Context, userID string, provider models.AIProvider, apiKey, model string) (*models.AIConfig, error)
	deleteFn  func(ctx context.Context, userID string) error
	testFn    func(ctx context.Context, userID string) (*llm.TestResult, error)
	resolveFn func(ctx context.Context, userID string) (*models.AIConfig, error)
}

func (m *mockAIConfigService) Get(ctx context.Context, userID string) (*models.AIConfig, error) {
	return m.getFn(ctx, userID)
}

func (m *mockAIConfigService) Upsert(ctx context.Context, userID string, provider models.AIProvider, apiKey, model string) (*models.AIConfig, error) {
	return m.upsertFn(ctx, userID, provider, apiKey, model)
}

func (m *mockAIConfigService) Delete(ctx context.Context, userID string) error {
	return m.deleteFn(ctx, userID)
}

func (m *mockAIConfigService) Test(ctx context.Context, userID string) (*llm.TestResult, error) {
	return m.testFn(ctx, userID)
}

func (m *mockAIConfigService) Resolve(ctx context.Context, userID string) (*models.AIConfig, error) {
	return m.resolveFn(ctx, userID)
}

// authedRequest builds a request carrying validated claims for userID and
// the solution id path value.
func authedRequest(method, target, userID string, id uuid.UUID, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	claims := &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: userID}}
	ctx := context.WithValue(req.Context(), auth.ClaimsKey, claims)
	req = req.WithContext(ctx)
	if id != uuid.Nil {
		req.SetPathValue("id", id.String())
	}
	return req
}
