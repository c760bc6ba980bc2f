// Package errs defines the error taxonomy shared by every component.
// Components wrap these sentinels with context via fmt.Errorf("...: %w", ...);
// CommandHandler and RestAdapter are the only layers that translate them to
// user-visible text.
package errs

import "errors"

var (
	// ErrUserInput covers validation failures: bad time range, unknown
	// length profile, too many channels.
	ErrUserInput = errors.New("user input invalid")

	// ErrPermission: invoker lacks channel read, or lacks admin for a
	// mutation.
	ErrPermission = errors.New("insufficient permissions")

	// ErrInsufficientContent: fewer than minMessages survived filtering.
	ErrInsufficientContent = errors.New("insufficient content")

	// ErrChannelAccess: the bot itself lacks access to the channel.
	ErrChannelAccess = errors.New("channel access denied")

	// ErrNotFound: missing primary key / deleted channel.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited: the invoker exceeded their per-user window.
	ErrRateLimited = errors.New("rate limited")

	// ErrLLMTransient: network/5xx/rate-limit from the LLM provider.
	// Retried inside LLMClient; if it escapes, callers surface it as
	// "temporarily unavailable".
	ErrLLMTransient = errors.New("llm transient failure")

	// ErrLLMRefused: provider rejected the request on content policy grounds.
	ErrLLMRefused = errors.New("llm refused request")

	// ErrLLMInvalid: malformed request rejected by the provider.
	ErrLLMInvalid = errors.New("llm invalid request")

	// ErrPromptTooLarge: even after elision, the prompt exceeds budget.
	ErrPromptTooLarge = errors.New("prompt too large")

	// ErrStoreTransient: I/O error from the store; caller retries with
	// backoff.
	ErrStoreTransient = errors.New("store transiently unavailable")

	// ErrStoreConstraint: uniqueness/foreign-key breach. A bug, logged at
	// error level rather than retried.
	ErrStoreConstraint = errors.New("store constraint violation")

	// ErrAborted: a long-running operation was cancelled mid-flight; the
	// SummaryEngine releases its single-flight slot with this result so
	// waiters can retry or fail.
	ErrAborted = errors.New("operation aborted")

	// ErrInternal: anything else. Surfaced as an opaque "internal error"
	// with a correlation identifier.
	ErrInternal = errors.New("internal error")
)
