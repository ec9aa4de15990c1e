package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ideaforge-ai/ideaforge-engine/pkg/crypto"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/database"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/models"
)

// AIConfigRepository defines the interface for per-user AI configuration.
// API keys are encrypted before storage and decrypted after retrieval.
type AIConfigRepository interface {
	// Get retrieves the AI config for a user. Returns nil, nil if no config exists.
	Get(ctx context.Context, userID string) (*models.AIConfig, error)

	// Upsert creates or updates the AI config for a user.
	Upsert(ctx context.Context, config *models.AIConfig) error

	// Delete removes the AI config for a user.
	Delete(ctx context.Context, userID string) error

	// UpdateTestResult updates the last_tested_at and last_test_success fields.
	UpdateTestResult(ctx context.Context, userID string, success bool) error
}

// aiConfigRepository implements AIConfigRepository using PostgreSQL.
type aiConfigRepository struct {
	db        *database.DB
	encryptor *crypto.CredentialEncryptor
}

// NewAIConfigRepository creates a new AI config repository.
func NewAIConfigRepository(db *database.DB, encryptor *crypto.CredentialEncryptor) AIConfigRepository {
	return &aiConfigRepository{db: db, encryptor: encryptor}
}

// Get retrieves the AI config for a user.
func (r *aiConfigRepository) Get(ctx context.Context, userID string) (*models.AIConfig, error) {
	query := `
		SELECT user_id, provider, api_key_encrypted, model,
			last_tested_at, last_test_success, created_at, updated_at
		FROM ai_configs WHERE user_id = $1`

	var config models.AIConfig
	var keyEnc string

	err := r.db.QueryRow(ctx, query, userID).Scan(
		&config.UserID, &config.Provider, &keyEnc, &config.Model,
		&config.LastTestedAt, &config.LastTestSuccess,
		&config.CreatedAt, &config.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query ai_config: %w", err)
	}

	key, err := r.encryptor.Decrypt(keyEnc)
	if err != nil {
		return nil, fmt.Errorf("decrypt api key: %w", err)
	}
	config.APIKey = key

	return &config, nil
}

// Upsert creates or updates the AI config for a user.
func (r *aiConfigRepository) Upsert(ctx context.Context, config *models.AIConfig) error {
	keyEnc, err := r.encryptor.Encrypt(config.APIKey)
	if err != nil {
		return fmt.Errorf("encrypt api key: %w", err)
	}

	query := `
		INSERT INTO ai_configs (user_id, provider, api_key_encrypted, model, last_tested_at, last_test_success)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			provider = EXCLUDED.provider,
			api_key_encrypted = EXCLUDED.api_key_encrypted,
			model = EXCLUDED.model,
			last_tested_at = EXCLUDED.last_tested_at,
			last_test_success = EXCLUDED.last_test_success,
			updated_at = NOW()`

	_, err = r.db.Exec(ctx, query,
		config.UserID, config.Provider, keyEnc, config.Model,
		config.LastTestedAt, config.LastTestSuccess)
	if err != nil {
		return fmt.Errorf("upsert ai_config: %w", err)
	}
	return nil
}

// Delete removes the AI config for a user.
func (r *aiConfigRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM ai_configs WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete ai_config: %w", err)
	}
	return nil
}

// UpdateTestResult updates the test metadata fields.
func (r *aiConfigRepository) UpdateTestResult(ctx context.Context, userID string, success bool) error {
	query := `
		UPDATE ai_configs
		SET last_tested_at = $2, last_test_success = $3, updated_at = NOW()
		WHERE user_id = $1`

	result, err := r.db.Exec(ctx, query, userID, time.Now(), success)
	if err != nil {
		return fmt.Errorf("update test result: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("no ai_config to update")
	}
	return nil
}

// Ensure aiConfigRepository implements AIConfigRepository at compile time.
var _ AIConfigRepository = (*aiConfigRepository)(nil)
