package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CREDENTIALS_KEY", "test-passphrase")
	t.Setenv("AUTH_ENABLE_VERIFICATION", "false")
	t.Setenv("PGHOST", "db.internal")
	t.Setenv("AGENT_BASE_URL", "http://agent.internal:8001")
	t.Setenv("AGENT_TIMEOUT_SECONDS", "120")

	cfg, err := Load("test")
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Version)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "http://agent.internal:8001", cfg.Agent.BaseURL)
	assert.Equal(t, 120, cfg.Agent.TimeoutSeconds)
	assert.Equal(t, "8090", cfg.Port)
}

func TestLoadRequiresCredentialsKey(t *testing.T) {
	t.Setenv("CREDENTIALS_KEY", "")
	t.Setenv("AUTH_ENABLE_VERIFICATION", "false")

	_, err := Load("test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CREDENTIALS_KEY")
}

func TestLoadRequiresJWKSWhenVerifying(t *testing.T) {
	t.Setenv("CREDENTIALS_KEY", "test-passphrase")
	t.Setenv("AUTH_ENABLE_VERIFICATION", "true")
	t.Setenv("JWKS_ENDPOINTS", "")

	_, err := Load("test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWKS")
}

func TestParseJWKSEndpoints(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]string
	}{
		{
			name:  "empty",
			input: "",
			want:  map[string]string{},
		},
		{
			name:  "single pair",
			input: "https://auth.example.com=https://auth.example.com/.well-known/jwks.json",
			want: map[string]string{
				"https://auth.example.com": "https://auth.example.com/.well-known/jwks.json",
			},
		},
		{
			name:  "multiple pairs with whitespace",
			input: "https://a.example.com=https://a.example.com/jwks, https://b.example.com=https://b.example.com/jwks",
			want: map[string]string{
				"https://a.example.com": "https://a.example.com/jwks",
				"https://b.example.com": "https://b.example.com/jwks",
			},
		},
		{
			name:  "malformed pair skipped",
			input: "not-a-pair,https://a.example.com=https://a.example.com/jwks",
			want: map[string]string{
				"https://a.example.com": "https://a.example.com/jwks",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseJWKSEndpoints(tt.input))
		})
	}
}

func TestDatabaseConnectionString(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "ideaforge",
		Password: "secret",
		Database: "ideaforge_engine",
		SSLMode:  "disable",
	}
	assert.Equal(t,
		"host=localhost port=5432 user=ideaforge password=secret dbname=ideaforge_engine sslmode=disable",
		cfg.ConnectionString())
}
