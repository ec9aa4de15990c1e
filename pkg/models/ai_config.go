package models

import "time"

// AIProvider identifies which upstream AI vendor a user's key belongs to.
type AIProvider string

const (
	AIProviderOpenAI    AIProvider = "openai"
	AIProviderAnthropic AIProvider = "anthropic"
)

// Valid reports whether the provider is one we can route to.
func (p AIProvider) Valid() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic
}

// AIConfig is a user's AI provider configuration in decrypted form.
// The API key only exists in memory; at rest it is AES-GCM encrypted.
type AIConfig struct {
	UserID   string     `json:"user_id"`
	Provider AIProvider `json:"provider"`
	APIKey   string     `json:"api_key,omitempty"` // Decrypted
	Model    string     `json:"model,omitempty"`   // Optional override

	LastTestedAt    *time.Time `json:"last_tested_at,omitempty"`
	LastTestSuccess *bool      `json:"last_test_success,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasKey reports whether an API key is configured.
func (c *AIConfig) HasKey() bool {
	return c != nil && c.APIKey != ""
}

// MaskedAPIKey returns a masked form suitable for display: "sk-a...xyz".
func MaskedAPIKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
