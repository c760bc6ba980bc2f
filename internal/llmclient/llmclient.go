// Package llmclient dispatches completion requests to a provider,
// bounding concurrency and retrying transient failures with exponential
// backoff in the same shape as information-broker's
// ArticleSummarizer.SummarizeArticle retry loop, generalized from a
// single Ollama backend to any provider behind the Complete interface.
package llmclient

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"summarybot-ng/internal/breaker"
	"summarybot-ng/internal/errs"
)

// CompletionRequest is what PromptBuilder hands LLMClient.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Model        string
	Temperature  float64
	MaxTokens    int
}

// CompletionResult is LLMClient's output, feeding ResponseParser and the
// Summary's generation metadata.
type CompletionResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	Model            string
	LatencyMs        int64
}

// Client is the capability SummaryEngine depends on.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
	EstimateCost(model string, promptTokens, completionTokens int) float64
}

// retryAfterError wraps a backend error with a provider-supplied
// retryAfter duration (e.g. from a rate-limit response's Retry-After
// header), so Complete's retry loop can honor it instead of falling
// back to exponential backoff. errors.Is still matches the wrapped
// sentinel since Unwrap delegates to it.
type retryAfterError struct {
	err   error
	after time.Duration
}

func (e *retryAfterError) Error() string { return e.err.Error() }
func (e *retryAfterError) Unwrap() error { return e.err }

// WithRetryAfter attaches a provider-supplied retry delay to err, for a
// Backend to return from Complete on a rate-limit response. A
// non-positive after leaves err untouched.
func WithRetryAfter(err error, after time.Duration) error {
	if after <= 0 {
		return err
	}
	return &retryAfterError{err: err, after: after}
}

func retryAfterFrom(err error) (time.Duration, bool) {
	var rae *retryAfterError
	if errors.As(err, &rae) {
		return rae.after, true
	}
	return 0, false
}

// RetryConfig tunes the backoff loop: delay = base*2^k + jitter[0,base).
type RetryConfig struct {
	MaxRetries int
	Base       time.Duration
	Jitter     func(time.Duration) time.Duration // overridable for deterministic tests
}

func defaultJitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(base)))
}

// Backend is the thin per-provider transport Complete delegates to,
// after bounded-concurrency/backoff/circuit-breaker wrapping.
type Backend interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// BoundedClient wraps a Backend with the semaphore, minimum dispatch
// spacing, retry, and circuit-breaker behavior spec.md §4.5 requires.
type BoundedClient struct {
	backend      Backend
	sem          chan struct{}
	minSpacing   time.Duration
	retry        RetryConfig
	cb           *breaker.Breaker
	costPerKTok  map[string]float64
	lastDispatch time.Time
	dispatchMu   chan struct{} // 1-buffered mutex guarding lastDispatch
}

// Config parameterizes NewBoundedClient.
type Config struct {
	Concurrency        int
	MinDispatchSpacing time.Duration
	MaxRetries         int
	BackoffBase        time.Duration
	CostPerKTokens     map[string]float64
}

func NewBoundedClient(backend Backend, cfg Config) *BoundedClient {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	base := cfg.BackoffBase
	if base <= 0 {
		base = time.Second
	}

	dispatchMu := make(chan struct{}, 1)
	dispatchMu <- struct{}{}

	return &BoundedClient{
		backend:     backend,
		sem:         make(chan struct{}, concurrency),
		minSpacing:  cfg.MinDispatchSpacing,
		retry:       RetryConfig{MaxRetries: maxRetries, Base: base, Jitter: defaultJitter},
		cb:          breaker.New("llmclient", breaker.DefaultConfig, nil),
		costPerKTok: cfg.CostPerKTokens,
		dispatchMu:  dispatchMu,
	}
}

// Complete acquires a concurrency slot, waits out minimum dispatch
// spacing, then retries the backend call with exponential backoff on
// transient failures. Non-retryable failures surface immediately.
func (c *BoundedClient) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return CompletionResult{}, ctx.Err()
	}
	defer func() { <-c.sem }()

	if err := c.waitForSpacing(ctx); err != nil {
		return CompletionResult{}, err
	}

	var lastErr error
	for attempt := 0; attempt < c.retry.MaxRetries; attempt++ {
		var result CompletionResult
		err := c.cb.Execute(func() error {
			var innerErr error
			result, innerErr = c.backend.Complete(ctx, req)
			return innerErr
		})
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !isRetryable(err) {
			return CompletionResult{}, err
		}

		if attempt == c.retry.MaxRetries-1 {
			break
		}

		delay := time.Duration(math.Pow(2, float64(attempt)))*c.retry.Base + c.retry.Jitter(c.retry.Base)
		if after, ok := retryAfterFrom(err); ok {
			delay = after
		}
		select {
		case <-ctx.Done():
			return CompletionResult{}, ctx.Err()
		case <-time.After(delay):
		}
	}

	return CompletionResult{}, lastErr
}

func isRetryable(err error) bool {
	switch {
	case errors.Is(err, errs.ErrLLMRefused), errors.Is(err, errs.ErrLLMInvalid):
		return false
	default:
		return true
	}
}

func (c *BoundedClient) waitForSpacing(ctx context.Context) error {
	if c.minSpacing <= 0 {
		return nil
	}

	select {
	case <-c.dispatchMu:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { c.dispatchMu <- struct{}{} }()

	elapsed := time.Since(c.lastDispatch)
	if elapsed < c.minSpacing {
		select {
		case <-time.After(c.minSpacing - elapsed):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.lastDispatch = time.Now()
	return nil
}

// EstimateCost looks up model in the configured per-1000-token rate
// table, falling back to "unknown-model".
func (c *BoundedClient) EstimateCost(model string, promptTokens, completionTokens int) float64 {
	rate, ok := c.costPerKTok[model]
	if !ok {
		rate = c.costPerKTok["unknown-model"]
	}
	totalKTokens := float64(promptTokens+completionTokens) / 1000.0
	return totalKTokens * rate
}
