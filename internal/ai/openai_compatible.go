package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatConfig struct {
	BaseURL string
	APIKey  string
}

type CompletionRequest struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// OpenAICompatibleClient talks to any /chat/completions and /embeddings
// endpoint that follows the OpenAI wire format.
type OpenAICompatibleClient struct {
	httpClient *http.Client
	cfg        ChatConfig
}

func NewOpenAICompatibleClient(cfg ChatConfig, httpClient *http.Client) *OpenAICompatibleClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	return &OpenAICompatibleClient{
		httpClient: httpClient,
		cfg:        cfg,
	}
}

func (c *OpenAICompatibleClient) Complete(ctx context.Context, in CompletionRequest) (string, error) {
	reqBody := map[string]interface{}{
		"model":       in.Model,
		"messages":    in.Messages,
		"stream":      false,
		"temperature": in.Temperature,
	}
	if in.MaxTokens > 0 {
		reqBody["max_tokens"] = in.MaxTokens
	}

	raw, err := c.post(ctx, "/chat/completions", reqBody)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("parse llm json failed: %v: %w", err, ErrMalformed)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty llm choices: %w", ErrMalformed)
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

func (c *OpenAICompatibleClient) post(ctx context.Context, path string, body interface{}) ([]byte, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is not configured: %w", ErrAuthentication)
	}
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s failed: %v: %w", path, err, ErrProviderFailure)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response failed: %v: %w", err, ErrProviderFailure)
	}
	if resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}
