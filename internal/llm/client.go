package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/talentcomp/comprec/internal/config"
	"github.com/talentcomp/comprec/internal/metrics"
)

// Client produces one completion for one prompt. Each agent role holds its
// own Client configured with that role's model parameters.
type Client interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// HTTPClient talks to an OpenAI-style /chat/completions endpoint.
type HTTPClient struct {
	baseURL string
	apiKey  string
	role    string
	model   string
	temp    float64
	maxTok  int
	http    *http.Client
	logger  *zap.Logger
}

// New builds a role client from the llm config section.
func New(cfg config.LLMConfig, role string, rc config.RoleConfig, logger *zap.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey(),
		role:    role,
		model:   rc.Model,
		temp:    rc.Temperature,
		maxTok:  rc.MaxTokens,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends one chat completion and returns the assistant text.
func (c *HTTPClient) Complete(ctx context.Context, system, user string) (string, error) {
	start := time.Now()
	text, err := c.complete(ctx, system, user)
	metrics.LLMCallDuration.WithLabelValues(c.role).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMCalls.WithLabelValues(c.role, "error").Inc()
		c.logger.Warn("LLM completion failed",
			zap.String("role", c.role),
			zap.String("model", c.model),
			zap.Error(err),
		)
		return "", err
	}
	metrics.LLMCalls.WithLabelValues(c.role, "ok").Inc()
	return text, nil
}

func (c *HTTPClient) complete(ctx context.Context, system, user string) (string, error) {
	msgs := make([]chatMessage, 0, 2)
	if system != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: system})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: user})

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: c.temp,
		MaxTokens:   c.maxTok,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("LLM call failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("HTTP %d from LLM service", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("LLM error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty completion")
	}
	return parsed.Choices[0].Message.Content, nil
}
