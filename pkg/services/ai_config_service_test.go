package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ideaforge-ai/ideaforge-engine/pkg/apperrors"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/llm"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/models"
)

// mockAIConfigRepo is an in-memory AIConfigRepository holding plaintext keys.
type mockAIConfigRepo struct {
	configs map[string]*models.AIConfig
}

func newMockAIConfigRepo() *mockAIConfigRepo {
	return &mockAIConfigRepo{configs: make(map[string]*models.AIConfig)}
}

func (r *mockAIConfigRepo) Get(_ context.Context, userID string) (*models.AIConfig, error) {
	config, ok := r.configs[userID]
	if !ok {
		return nil, nil
	}
	copied := *config
	return &copied, nil
}

func (r *mockAIConfigRepo) Upsert(_ context.Context, config *models.AIConfig) error {
	copied := *config
	r.configs[config.UserID] = &copied
	return nil
}

func (r *mockAIConfigRepo) Delete(_ context.Context, userID string) error {
	delete(r.configs, userID)
	return nil
}

func (r *mockAIConfigRepo) UpdateTestResult(_ context.Context, userID string, success bool) error {
	config, ok := r.configs[userID]
	if !ok {
		return apperrors.ErrNotFound
	}
	config.LastTestSuccess = &success
	return nil
}

// mockTester returns a scripted result and records what it was asked.
type mockTester struct {
	result   *llm.TestResult
	provider models.AIProvider
	apiKey   string
}

func (m *mockTester) Test(_ context.Context, provider models.AIProvider, apiKey, model string) *llm.TestResult {
	m.provider = provider
	m.apiKey = apiKey
	return m.result
}

func TestAIConfigService_UpsertAndGet(t *testing.T) {
	repo := newMockAIConfigRepo()
	svc := NewAIConfigService(repo, &mockTester{}, zap.NewNop())

	config, err := svc.Upsert(context.Background(), "user-1", models.AIProviderOpenAI, "sk-verylongsecretkey", "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "sk-v...tkey", config.APIKey, "returned key must be masked")

	// The repo holds the real key; Get masks it.
	assert.Equal(t, "sk-verylongsecretkey", repo.configs["user-1"].APIKey)

	got, err := svc.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "sk-v...tkey", got.APIKey)
	assert.Equal(t, models.AIProviderOpenAI, got.Provider)
}

func TestAIConfigService_UpsertKeepsExistingKey(t *testing.T) {
	repo := newMockAIConfigRepo()
	svc := NewAIConfigService(repo, &mockTester{}, zap.NewNop())

	_, err := svc.Upsert(context.Background(), "user-1", models.AIProviderOpenAI, "sk-original", "")
	require.NoError(t, err)

	// Switching provider without re-entering the key keeps the stored one.
	_, err = svc.Upsert(context.Background(), "user-1", models.AIProviderAnthropic, "", "claude-sonnet")
	require.NoError(t, err)

	assert.Equal(t, "sk-original", repo.configs["user-1"].APIKey)
	assert.Equal(t, models.AIProviderAnthropic, repo.configs["user-1"].Provider)
}

func TestAIConfigService_UpsertRequiresKeyWhenNoneStored(t *testing.T) {
	svc := NewAIConfigService(newMockAIConfigRepo(), &mockTester{}, zap.NewNop())

	_, err := svc.Upsert(context.Background(), "user-1", models.AIProviderOpenAI, "", "")
	assert.Error(t, err)
}

func TestAIConfigService_UpsertRejectsUnknownProvider(t *testing.T) {
	svc := NewAIConfigService(newMockAIConfigRepo(), &mockTester{}, zap.NewNop())

	_, err := svc.Upsert(context.Background(), "user-1", models.AIProvider("gemini"), "key", "")
	assert.Error(t, err)
}

func TestAIConfigService_Resolve(t *testing.T) {
	repo := newMockAIConfigRepo()
	svc := NewAIConfigService(repo, &mockTester{}, zap.NewNop())

	t.Run("missing config", func(t *testing.T) {
		_, err := svc.Resolve(context.Background(), "user-1")
		assert.ErrorIs(t, err, apperrors.ErrAIConfigMissing)
	})

	t.Run("returns decrypted key", func(t *testing.T) {
		_, err := svc.Upsert(context.Background(), "user-1", models.AIProviderOpenAI, "sk-real", "")
		require.NoError(t, err)

		config, err := svc.Resolve(context.Background(), "user-1")
		require.NoError(t, err)
		assert.Equal(t, "sk-real", config.APIKey)
	})
}

func TestAIConfigService_Test(t *testing.T) {
	repo := newMockAIConfigRepo()
	tester := &mockTester{result: &llm.TestResult{Success: true, Message: "OpenAI connection successful"}}
	svc := NewAIConfigService(repo, tester, zap.NewNop())

	_, err := svc.Upsert(context.Background(), "user-1", models.AIProviderOpenAI, "sk-real", "")
	require.NoError(t, err)

	result, err := svc.Test(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "sk-real", tester.apiKey, "tester gets the stored key")

	require.NotNil(t, repo.configs["user-1"].LastTestSuccess)
	assert.True(t, *repo.configs["user-1"].LastTestSuccess)
}

func TestAIConfigService_Test_NoConfig(t *testing.T) {
	svc := NewAIConfigService(newMockAIConfigRepo(), &mockTester{}, zap.NewNop())

	_, err := svc.Test(context.Background(), "user-1")
	assert.ErrorIs(t, err, apperrors.ErrAIConfigMissing)
}
