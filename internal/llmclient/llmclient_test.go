package llmclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"summarybot-ng/internal/errs"
)

type flakyBackend struct {
	failures int
	calls    int
	err      error
}

func (f *flakyBackend) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return CompletionResult{}, f.err
	}
	return CompletionResult{Text: "ok", Model: req.Model}, nil
}

func noJitter(time.Duration) time.Duration { return 0 }

func TestBoundedClientRetriesTransientFailures(t *testing.T) {
	tests := []struct {
		name        string
		failures    int
		err         error
		expectErr   bool
		description string
	}{
		{
			name:        "succeeds after two transient failures",
			failures:    2,
			err:         errs.ErrLLMTransient,
			expectErr:   false,
			description: "maxRetries=3 covers two failed attempts then a success",
		},
		{
			name:        "exhausts retries on persistent transient failure",
			failures:    5,
			err:         errs.ErrLLMTransient,
			expectErr:   true,
			description: "more failures than maxRetries surfaces the last error",
		},
		{
			name:        "non-retryable failure surfaces immediately",
			failures:    5,
			err:         errs.ErrLLMRefused,
			expectErr:   true,
			description: "content-policy refusals should not be retried",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &flakyBackend{failures: tt.failures, err: tt.err}
			client := NewBoundedClient(backend, Config{Concurrency: 2, MaxRetries: 3, BackoffBase: time.Millisecond})
			client.retry.Jitter = noJitter

			_, err := client.Complete(context.Background(), CompletionRequest{Model: "gpt-4o-mini"})
			if tt.expectErr && err == nil {
				t.Fatalf("%s: expected error, got none", tt.description)
			}
			if !tt.expectErr && err != nil {
				t.Fatalf("%s: unexpected error: %v", tt.description, err)
			}

			if tt.name == "non-retryable failure surfaces immediately" && backend.calls != 1 {
				t.Errorf("%s: expected exactly 1 call, got %d", tt.description, backend.calls)
			}
		})
	}
}

type retryAfterBackend struct {
	calls int
}

func (b *retryAfterBackend) Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error) {
	b.calls++
	if b.calls == 1 {
		return CompletionResult{}, WithRetryAfter(errs.ErrLLMTransient, 20*time.Millisecond)
	}
	return CompletionResult{Text: "ok"}, nil
}

func TestCompleteHonorsProviderRetryAfter(t *testing.T) {
	backend := &retryAfterBackend{}
	// BackoffBase is deliberately huge: if the retry loop ignored
	// retryAfter and fell back to exponential backoff, this call would
	// block far longer than the test's deadline.
	client := NewBoundedClient(backend, Config{Concurrency: 1, MaxRetries: 2, BackoffBase: time.Hour})
	client.retry.Jitter = noJitter

	start := time.Now()
	_, err := client.Complete(context.Background(), CompletionRequest{Model: "gpt-4o-mini"})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed > time.Second {
		t.Fatalf("expected retry to honor the short retryAfter delay, took %v", elapsed)
	}
}

func TestEstimateCostFallsBackToUnknownModel(t *testing.T) {
	client := NewBoundedClient(&MockBackend{}, Config{
		CostPerKTokens: map[string]float64{"gpt-4o-mini": 0.1, "unknown-model": 1.0},
	})

	known := client.EstimateCost("gpt-4o-mini", 1000, 0)
	unknown := client.EstimateCost("some-future-model", 1000, 0)

	if known != 0.1 {
		t.Errorf("known model: got %v, want 0.1", known)
	}
	if unknown != 1.0 {
		t.Errorf("unknown model: got %v, want 1.0 (fallback rate)", unknown)
	}
}

func TestIsRetryable(t *testing.T) {
	if isRetryable(errs.ErrLLMRefused) {
		t.Error("ErrLLMRefused should not be retryable")
	}
	if isRetryable(errs.ErrLLMInvalid) {
		t.Error("ErrLLMInvalid should not be retryable")
	}
	if !isRetryable(errs.ErrLLMTransient) {
		t.Error("ErrLLMTransient should be retryable")
	}
	if !isRetryable(errors.New("some other transport error")) {
		t.Error("unrecognized errors should default to retryable")
	}
}
