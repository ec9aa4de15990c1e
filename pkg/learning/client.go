// Package learning provides a client for the external learning service that
// indexes approved content so future generations can draw on it.
package learning

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

// DefaultTimeout is the maximum time to wait for the learning service.
const DefaultTimeout = 30 * time.Second

// KnowledgeType classifies a captured artifact for downstream consumers.
type KnowledgeType string

const (
	KnowledgeTypeQAPair          KnowledgeType = "qa_pair"
	KnowledgeTypeSolutionPattern KnowledgeType = "solution_pattern"
)

// Record is one unit of approved knowledge submitted for indexing.
type Record struct {
	AgentTarget          string            `json:"agent_target"`
	KnowledgeType        KnowledgeType     `json:"knowledge_type"`
	SourceThreadID       string            `json:"source_thread_id,omitempty"`
	SourceConversationID string            `json:"source_conversation_id,omitempty"`
	Question             string            `json:"question"`
	Answer               string            `json:"answer"`
	Context              map[string]string `json:"context,omitempty"`
	ConfidenceScore      float64           `json:"confidence_score"`
}

// Client calls the external learning service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a learning service client.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: logger.Named("learning"),
	}
}

// Capture submits one knowledge record and returns the identifier the
// learning service assigned to it.
func (c *Client) Capture(ctx context.Context, rec *Record) (int64, error) {
	endpoint, err := buildURL(c.baseURL, "api", "v1", "learned-knowledge")
	if err != nil {
		return 0, fmt.Errorf("build learning URL: %w", err)
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("marshal knowledge record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("capturing knowledge",
		zap.String("agent_target", rec.AgentTarget),
		zap.String("knowledge_type", string(rec.KnowledgeType)),
		zap.String("source_thread_id", rec.SourceThreadID))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("call learning service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("learning service returned status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode learning response: %w", err)
	}
	if parsed.ID == 0 {
		return 0, fmt.Errorf("learning service returned no identifier")
	}

	c.logger.Info("knowledge captured",
		zap.Int64("knowledge_id", parsed.ID),
		zap.String("knowledge_type", string(rec.KnowledgeType)))

	return parsed.ID, nil
}

func buildURL(baseURL string, segments ...string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	elems := append([]string{u.Path}, segments...)
	u.Path = path.Join(elems...)
	return u.String(), nil
}
