// Package agent provides a client for the external agent service that
// performs the actual AI-driven document generation.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout is the maximum time to wait for a generation response.
// The agent performs multi-stage generation remotely, so runs routinely
// take minutes.
const DefaultTimeout = 5 * time.Minute

// GenerateRequest carries everything the agent needs to produce a
// technical solution document.
type GenerateRequest struct {
	ThreadID     string `json:"thread_id"`
	Requirements string `json:"requirements"`
	UserID       string `json:"user_id"`
	AIProvider   string `json:"ai_provider"`
	AIAPIKey     string `json:"ai_api_key"`
	IsRepublish  bool   `json:"is_republish"`
}

// GenerateMetadata is the provenance returned alongside the document.
type GenerateMetadata struct {
	ModelUsed string `json:"model_used"`
	WordCount int    `json:"word_count"`
	CharCount int    `json:"char_count"`
}

// GenerateResponse is the agent's successful reply.
type GenerateResponse struct {
	Solution string           `json:"solution"`
	Metadata GenerateMetadata `json:"metadata"`
}

// Error is returned for non-2xx agent responses. Server-side failures are
// retryable; client-side rejections are not.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("agent service returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("agent service returned status %d", e.StatusCode)
}

// Retryable implements the retry contract used by the work queue.
func (e *Error) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client calls the external agent service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates an agent service client. A zero timeout falls back to
// DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.Named("agent"),
	}
}

// GenerateSolution asks the agent to produce a technical solution from the
// gathered requirements. Blocks until the agent finishes or the timeout
// elapses.
func (c *Client) GenerateSolution(ctx context.Context, genReq *GenerateRequest) (*GenerateResponse, error) {
	endpoint, err := buildURL(c.baseURL, "api", "v1", "generate-solution")
	if err != nil {
		return nil, fmt.Errorf("build agent URL: %w", err)
	}

	body, err := json.Marshal(genReq)
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.Info("requesting solution generation",
		zap.String("thread_id", genReq.ThreadID),
		zap.String("provider", genReq.AIProvider),
		zap.Bool("is_republish", genReq.IsRepublish),
		zap.Int("requirements_len", len(genReq.Requirements)))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("agent service call failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, fmt.Errorf("call agent service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := readErrorMessage(resp.Body)
		c.logger.Error("agent service returned error",
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg),
			zap.Duration("elapsed", time.Since(start)))
		return nil, &Error{StatusCode: resp.StatusCode, Message: msg}
	}

	var genResp GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, fmt.Errorf("decode agent response: %w", err)
	}
	if genResp.Solution == "" {
		return nil, fmt.Errorf("agent returned an empty solution")
	}

	c.logger.Info("solution generated",
		zap.String("thread_id", genReq.ThreadID),
		zap.String("model", genResp.Metadata.ModelUsed),
		zap.Int("word_count", genResp.Metadata.WordCount),
		zap.Duration("elapsed", time.Since(start)))

	return &genResp, nil
}

// readErrorMessage pulls a human-readable message out of an error body.
func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var parsed struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Detail != "" {
			return parsed.Detail
		}
	}
	return string(raw)
}

// buildURL safely joins a base URL with path segments.
func buildURL(baseURL string, segments ...string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	elems := append([]string{u.Path}, segments...)
	u.Path = path.Join(elems...)
	return u.String(), nil
}
