package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ideaforge-ai/ideaforge-engine/pkg/apperrors"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/llm"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/models"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/repositories"
)

// AIConfigService manages per-user AI provider credentials.
type AIConfigService interface {
	// Get returns the user's config with the API key masked for display.
	// Returns nil, nil when no config exists.
	Get(ctx context.Context, userID string) (*models.AIConfig, error)

	// Upsert stores the user's provider and API key. The key is encrypted
	// at rest. An empty apiKey keeps the previously stored key.
	Upsert(ctx context.Context, userID string, provider models.AIProvider, apiKey, model string) (*models.AIConfig, error)

	// Delete removes the user's config.
	Delete(ctx context.Context, userID string) error

	// Test verifies the stored credentials against the provider and records
	// the outcome.
	Test(ctx context.Context, userID string) (*llm.TestResult, error)

	// Resolve returns the decrypted config for use by the generation
	// pipeline. Returns apperrors.ErrAIConfigMissing when the user has no
	// usable credentials.
	Resolve(ctx context.Context, userID string) (*models.AIConfig, error)
}

// aiConfigService implements AIConfigService.
type aiConfigService struct {
	repo   repositories.AIConfigRepository
	tester llm.CredentialTester
	logger *zap.Logger
}

// NewAIConfigService creates a new AI config service.
func NewAIConfigService(repo repositories.AIConfigRepository, tester llm.CredentialTester, logger *zap.Logger) AIConfigService {
	return &aiConfigService{
		repo:   repo,
		tester: tester,
		logger: logger.Named("ai-config"),
	}
}

// Get returns the user's config with the API key masked.
func (s *aiConfigService) Get(ctx context.Context, userID string) (*models.AIConfig, error) {
	config, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if config == nil {
		return nil, nil
	}
	config.APIKey = models.MaskedAPIKey(config.APIKey)
	return config, nil
}

// Upsert stores the user's provider and API key.
func (s *aiConfigService) Upsert(ctx context.Context, userID string, provider models.AIProvider, apiKey, model string) (*models.AIConfig, error) {
	if !provider.Valid() {
		return nil, fmt.Errorf("unsupported provider %q", provider)
	}

	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		// Keep the existing key so clients can change provider or model
		// without re-entering credentials.
		existing, err := s.repo.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		if existing == nil || existing.APIKey == "" {
			return nil, fmt.Errorf("api key is required")
		}
		apiKey = existing.APIKey
	}

	config := &models.AIConfig{
		UserID:   userID,
		Provider: provider,
		APIKey:   apiKey,
		Model:    model,
	}

	if err := s.repo.Upsert(ctx, config); err != nil {
		return nil, err
	}

	s.logger.Info("AI config updated",
		zap.String("user_id", userID),
		zap.String("provider", string(provider)))

	config.APIKey = models.MaskedAPIKey(config.APIKey)
	return config, nil
}

// Delete removes the user's config.
func (s *aiConfigService) Delete(ctx context.Context, userID string) error {
	if err := s.repo.Delete(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("AI config deleted", zap.String("user_id", userID))
	return nil
}

// Test verifies the stored credentials against the provider.
func (s *aiConfigService) Test(ctx context.Context, userID string) (*llm.TestResult, error) {
	config, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if config == nil || !config.HasKey() {
		return nil, apperrors.ErrAIConfigMissing
	}

	result := s.tester.Test(ctx, config.Provider, config.APIKey, config.Model)

	if err := s.repo.UpdateTestResult(ctx, userID, result.Success); err != nil {
		s.logger.Warn("failed to record test result",
			zap.String("user_id", userID),
			zap.Error(err))
	}

	return result, nil
}

// Resolve returns the decrypted config for the generation pipeline.
func (s *aiConfigService) Resolve(ctx context.Context, userID string) (*models.AIConfig, error) {
	config, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if config == nil || !config.HasKey() {
		return nil, apperrors.ErrAIConfigMissing
	}
	return config, nil
}

// Ensure aiConfigService implements AIConfigService at compile time.
var _ AIConfigService = (*aiConfigService)(nil)
