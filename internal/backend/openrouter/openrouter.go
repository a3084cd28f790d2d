// Package openrouter invokes models through the OpenRouter gateway, which
// speaks the OpenAI chat-completions envelope.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ndthang/smart-router/internal/backend"
)

type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
	Model   string       `json:"model"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatUsage struct {
	TotalTokens int `json:"total_tokens"`
}

func New(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: "https://openrouter.ai/api/v1",
		http:    http.DefaultClient,
	}
}

func (c *Client) Name() string {
	return "openrouter"
}

func (c *Client) Generate(ctx context.Context, req *backend.Request) backend.Outcome {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, backend.CallTimeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return backend.ErrorOutcome(start, fmt.Sprintf("marshal request: %v", err))
	}

	url := fmt.Sprintf("%s/chat/completions", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return backend.ErrorOutcome(start, fmt.Sprintf("build request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return backend.ErrorOutcome(start, fmt.Sprintf("openrouter request failed: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return backend.ErrorOutcome(start, fmt.Sprintf("openrouter api error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return backend.ErrorOutcome(start, fmt.Sprintf("decode response: %v", err))
	}

	if len(chatResp.Choices) == 0 {
		return backend.ErrorOutcome(start, "openrouter api returned no choices")
	}

	tokens := chatResp.Usage.TotalTokens
	if tokens <= 0 {
		tokens = backend.FallbackTokenEstimate
	}

	return backend.Outcome{
		Text:       chatResp.Choices[0].Message.Content,
		TokenCount: tokens,
		LatencyMs:  float64(time.Since(start).Microseconds()) / 1000,
		Status:     backend.StatusSuccess,
	}
}
