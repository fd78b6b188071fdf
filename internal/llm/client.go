// Package llm wraps the remote chat-completion endpoint behind a small
// resilient client.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stellarlinkco/mio/internal/config"
	"github.com/stellarlinkco/mio/internal/retry"
)

// Message is one role-tagged entry of the model context.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ErrEmptyCompletion reports a well-formed response that carried no usable
// content.
var ErrEmptyCompletion = errors.New("empty completion content")

// Client produces one completion for an ordered message context. The remote
// model may return different text for the same input across retries; callers
// must tolerate that.
type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

const (
	requestTimeout = 30 * time.Second
	maxAttempts    = 3
)

type HTTPClient struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	backoff     func(int) time.Duration
}

func NewHTTPClient(cfg *config.Config) *HTTPClient {
	return &HTTPClient{
		apiKey:      cfg.Provider.APIKey,
		baseURL:     cfg.Provider.BaseURL,
		model:       cfg.Agent.Model,
		temperature: cfg.Agent.Temperature,
		maxTokens:   cfg.Agent.MaxTokens,
		httpClient:  &http.Client{Timeout: requestTimeout},
		backoff:     retry.Linear(time.Second),
	}
}

func (c *HTTPClient) Complete(ctx context.Context, messages []Message) (string, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return "", fmt.Errorf("missing api key")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(c.baseURL), "/")
	if baseURL == "" {
		return "", fmt.Errorf("missing base url")
	}
	if c.model == "" {
		return "", fmt.Errorf("missing model")
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("empty message context")
	}

	var content string
	err := retry.Do(ctx, retry.Config{MaxAttempts: maxAttempts, Backoff: c.backoff}, func() error {
		result, err := c.sendChatCompletion(ctx, baseURL, messages)
		if err != nil {
			return err
		}
		content = result
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

func (c *HTTPClient) sendChatCompletion(ctx context.Context, baseURL string, messages []Message) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": c.temperature,
		"max_tokens":  c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("model http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}
