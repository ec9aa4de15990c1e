// Package llm validates AI provider credentials before they are stored.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/sashabaranov/go-openai"

	"github.com/ideaforge-ai/ideaforge-engine/pkg/models"
)

// ErrorType indicates which configuration field caused the error.
type ErrorType string

const (
	ErrorTypeNone     ErrorType = ""
	ErrorTypeAuth     ErrorType = "auth"
	ErrorTypeModel    ErrorType = "model"
	ErrorTypeProvider ErrorType = "provider"
	ErrorTypeUnknown  ErrorType = "unknown"
)

// TestResult contains credential test results.
type TestResult struct {
	Success        bool      `json:"success"`
	Message        string    `json:"message"`
	ErrorType      ErrorType `json:"error_type,omitempty"`
	ResponseTimeMs int64     `json:"response_time_ms,omitempty"`
}

// CredentialTester verifies that a provider API key works.
// This interface enables mocking in tests.
type CredentialTester interface {
	// Test sends a minimal completion request to the provider.
	Test(ctx context.Context, provider models.AIProvider, apiKey, model string) *TestResult
}

// credentialTester implements CredentialTester with real API calls.
type credentialTester struct {
	timeout time.Duration
}

// NewCredentialTester creates a new tester.
func NewCredentialTester() CredentialTester {
	return &credentialTester{timeout: 30 * time.Second}
}

// Default models used when the config does not name one.
const (
	defaultOpenAIModel    = openai.GPT4oMini
	defaultAnthropicModel = string(anthropic.ModelClaude3Dot5HaikuLatest)
)

// Test sends a minimal completion request to the provider.
func (t *credentialTester) Test(ctx context.Context, provider models.AIProvider, apiKey, model string) *TestResult {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	switch provider {
	case models.AIProviderOpenAI:
		return t.testOpenAI(ctx, apiKey, model)
	case models.AIProviderAnthropic:
		return t.testAnthropic(ctx, apiKey, model)
	default:
		return &TestResult{
			Message:   fmt.Sprintf("Unsupported provider: %s", provider),
			ErrorType: ErrorTypeProvider,
		}
	}
}

func (t *credentialTester) testOpenAI(ctx context.Context, apiKey, model string) *TestResult {
	if model == "" {
		model = defaultOpenAIModel
	}
	client := openai.NewClient(apiKey)

	start := time.Now()

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "Say 'ok' and nothing else."},
		},
		MaxCompletionTokens: 10,
	})

	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		msg, errType := categorizeError("OpenAI", err)
		return &TestResult{Message: msg, ErrorType: errType, ResponseTimeMs: elapsed}
	}

	if len(resp.Choices) == 0 {
		return &TestResult{Message: "OpenAI returned no response", ErrorType: ErrorTypeUnknown}
	}

	return &TestResult{
		Success:        true,
		Message:        fmt.Sprintf("OpenAI connection successful (model: %s, %dms)", model, elapsed),
		ResponseTimeMs: elapsed,
	}
}

func (t *credentialTester) testAnthropic(ctx context.Context, apiKey, model string) *TestResult {
	if model == "" {
		model = defaultAnthropicModel
	}
	client := anthropic.NewClient(apiKey)

	start := time.Now()

	resp, err := client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(model),
		MaxTokens: 10,
		Messages: []anthropic.Message{
			anthropic.NewUserTextMessage("Say 'ok' and nothing else."),
		},
	})

	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		msg, errType := categorizeError("Anthropic", err)
		return &TestResult{Message: msg, ErrorType: errType, ResponseTimeMs: elapsed}
	}

	if len(resp.Content) == 0 {
		return &TestResult{Message: "Anthropic returned no response", ErrorType: ErrorTypeUnknown}
	}

	return &TestResult{
		Success:        true,
		Message:        fmt.Sprintf("Anthropic connection successful (model: %s, %dms)", model, elapsed),
		ResponseTimeMs: elapsed,
	}
}

func categorizeError(prefix string, err error) (string, ErrorType) {
	errStr := err.Error()
	lower := strings.ToLower(errStr)

	if strings.Contains(errStr, "401") || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") || strings.Contains(lower, "authentication") {
		return fmt.Sprintf("%s: Invalid API key", prefix), ErrorTypeAuth
	}

	if strings.Contains(lower, "model") && (strings.Contains(lower, "not found") ||
		strings.Contains(lower, "does not exist")) {
		return fmt.Sprintf("%s: Model not found", prefix), ErrorTypeModel
	}

	if strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") {
		return fmt.Sprintf("%s: Connection failed", prefix), ErrorTypeProvider
	}

	if strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded") {
		return fmt.Sprintf("%s: Connection timed out", prefix), ErrorTypeProvider
	}

	return fmt.Sprintf("%s: %s", prefix, errStr), ErrorTypeUnknown
}

// Ensure credentialTester implements CredentialTester at compile time.
var _ CredentialTester = (*credentialTester)(nil)
