package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"summarybot-ng/internal/errs"
)

// OpenAIBackend talks to an OpenAI-compatible chat-completions endpoint,
// the same bytes.NewBuffer/json.Marshal/http.NewRequestWithContext shape
// information-broker's callOllamaAPI uses against Ollama's endpoint.
type OpenAIBackend struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewOpenAIBackend(baseURL, apiKey string, timeout time.Duration) *OpenAIBackend {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIBackend{baseURL: baseURL, apiKey: apiKey, httpClient: &http.Client{Timeout: timeout}}
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
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (b *OpenAIBackend) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	start := time.Now()

	payload := chatRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("%w: marshal request: %v", errs.ErrLLMInvalid, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return CompletionResult{}, fmt.Errorf("%w: build request: %v", errs.ErrLLMInvalid, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("%w: %v", errs.ErrLLMTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("%w: read response: %v", errs.ErrLLMTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		err := fmt.Errorf("%w: rate limited", errs.ErrLLMTransient)
		return CompletionResult{}, WithRetryAfter(err, parseRetryAfter(resp.Header.Get("Retry-After")))
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return CompletionResult{}, fmt.Errorf("%w: authentication rejected", errs.ErrLLMRefused)
	case resp.StatusCode == http.StatusBadRequest:
		return CompletionResult{}, fmt.Errorf("%w: %s", errs.ErrLLMInvalid, string(raw))
	case resp.StatusCode >= 500:
		return CompletionResult{}, fmt.Errorf("%w: upstream status %d", errs.ErrLLMTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return CompletionResult{}, fmt.Errorf("%w: unexpected status %d", errs.ErrLLMInvalid, resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return CompletionResult{}, fmt.Errorf("%w: unmarshal response: %v", errs.ErrLLMTransient, err)
	}
	if parsed.Error != nil {
		if parsed.Error.Type == "content_filter" {
			return CompletionResult{}, fmt.Errorf("%w: %s", errs.ErrLLMRefused, parsed.Error.Message)
		}
		return CompletionResult{}, fmt.Errorf("%w: %s", errs.ErrLLMInvalid, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return CompletionResult{}, fmt.Errorf("%w: empty choices", errs.ErrLLMTransient)
	}

	return CompletionResult{
		Text:             parsed.Choices[0].Message.Content,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		Model:            req.Model,
		LatencyMs:        time.Since(start).Milliseconds(),
	}, nil
}

// parseRetryAfter accepts either form RFC 7231 allows: an integer number
// of seconds, or an HTTP-date. Returns 0 (fall back to backoff) when
// absent or unparseable.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}
