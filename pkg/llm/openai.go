package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/codeready-toolchain/oasis/pkg/config"
)

// HTTPClient talks to one OpenAI-compatible chat completions endpoint.
// Works with OpenAI, OpenRouter, Groq, Ollama, vLLM, and anything else that
// implements the chat completions API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	model   string
	headers map[string]string

	temperature float64
	maxTokens   int

	client *http.Client
}

// NewHTTPClient builds a client from a provider configuration.
func NewHTTPClient(cfg *config.LLMProviderConfig) *HTTPClient {
	return &HTTPClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		headers:     cfg.Headers,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      &http.Client{},
	}
}

// NewEndpointClient builds a client for an arbitrary external endpoint
// (external experts carry their own endpoint, model, and headers).
func NewEndpointClient(endpoint, model string, headers map[string]string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(endpoint, "/"),
		model:   model,
		headers: headers,
		client:  &http.Client{},
	}
}

// chatRequest is the OpenAI chat completions request body.
type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// chatResponse is the subset of the response body we consume.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one non-streaming chat request and returns the assistant
// message text.
func (c *HTTPClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	body := chatRequest{
		Model:     c.model,
		Messages:  req.Messages,
		MaxTokens: c.maxTokens,
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = req.MaxTokens
	}
	temp := c.temperature
	if req.Temperature > 0 {
		temp = req.Temperature
	}
	if temp > 0 {
		body.Temperature = &temp
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrLLM, err)
	}

	url := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrLLM, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLLM, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &HTTPError{Status: resp.StatusCode, Body: string(raw)}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrLLM, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrLLM, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: response contains no choices", ErrLLM)
	}
	return parsed.Choices[0].Message.Content, nil
}
