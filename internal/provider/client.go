package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Message is a chat message in the OpenAI-compatible wire format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is an OpenAI-compatible chat completion request.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// ChatResponse is an OpenAI-compatible chat completion response.
type ChatResponse struct {
	ID      string    `json:"id"`
	Model   string    `json:"model"`
	Choices []Choice  `json:"choices"`
	Error   *APIError `json:"error,omitempty"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (%s): %s", e.Type, e.Message)
}

// chatClient is the shared HTTP plumbing for chat-completion providers.
// Thread-safe for concurrent use.
type chatClient struct {
	cfg        Config
	httpClient *http.Client
}

func newChatClient(cfg Config) *chatClient {
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}
	return &chatClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
	}
}

func (c *chatClient) headers() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
		"Content-Type":  "application/json",
	}
}

// complete sends one chat completion and returns the assistant content.
// Failures are mapped onto the shared taxonomy so callers never see raw
// transport errors.
func (c *chatClient) complete(ctx context.Context, systemPrompt, userMessage string, maxTokens int) (string, error) {
	messages := []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userMessage},
	}
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}

	request := ChatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: c.cfg.Temperature,
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return "", WrapError(KindUnknown, "marshal chat request", err)
	}

	url := c.cfg.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", WrapError(KindUnknown, "build chat request", err)
	}
	for key, value := range c.headers() {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", WrapError(KindNetwork, "chat request failed", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", WrapError(KindNetwork, "read chat response", err)
	}

	if kind := classifyStatus(resp.StatusCode); kind != KindUnknown {
		if kind == KindRateLimited {
			// Keep "rate limit" in the message: failure reasons cross the
			// RPC boundary as strings and the queue keys its backoff on it.
			return "", NewError(kind, "provider rate limit: status 429")
		}
		return "", NewError(kind, fmt.Sprintf("chat request returned status %d", resp.StatusCode))
	}

	var chatResponse ChatResponse
	if err := json.Unmarshal(responseBody, &chatResponse); err != nil {
		return "", WrapError(KindTransient, "parse chat response", err)
	}
	if chatResponse.Error != nil && chatResponse.Error.Message != "" {
		return "", WrapError(KindTransient, "provider rejected request", chatResponse.Error)
	}
	if len(chatResponse.Choices) == 0 {
		return "", NewError(KindTransient, "no choices in chat response")
	}

	return chatResponse.Choices[0].Message.Content, nil
}
