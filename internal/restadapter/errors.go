package restadapter

import (
	"encoding/json"
	"errors"
	"net/http"

	"summarybot-ng/internal/errs"
)

// errorEnvelope is the stable JSON error shape spec.md 6/7 specify.
type errorEnvelope struct {
	ErrorCode  string `json:"errorCode"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string, retryAfterSeconds int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorEnvelope{ErrorCode: code, Message: message, RetryAfter: retryAfterSeconds})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeComponentError maps a component error (from the errs taxonomy)
// to an HTTP status and error code, the REST counterpart of
// commandhandler.UserMessage.
func writeComponentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrUserInput):
		writeError(w, http.StatusBadRequest, "user_input", err.Error(), 0)
	case errors.Is(err, errs.ErrPermission):
		writeError(w, http.StatusForbidden, "permission", "insufficient permissions", 0)
	case errors.Is(err, errs.ErrInsufficientContent):
		writeError(w, http.StatusUnprocessableEntity, "insufficient_content", err.Error(), 0)
	case errors.Is(err, errs.ErrChannelAccess):
		writeError(w, http.StatusForbidden, "channel_access", "the bot does not have access to that channel", 0)
	case errors.Is(err, errs.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "not found", 0)
	case errors.Is(err, errs.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded", 60)
	case errors.Is(err, errs.ErrLLMTransient), errors.Is(err, errs.ErrStoreTransient):
		writeError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "temporarily unavailable, please retry", 5)
	case errors.Is(err, errs.ErrLLMRefused), errors.Is(err, errs.ErrLLMInvalid):
		writeError(w, http.StatusUnprocessableEntity, "generation_failed", "a summary could not be generated for that content", 0)
	case errors.Is(err, errs.ErrPromptTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "prompt_too_large", "that time range is too large to summarize in one request", 0)
	default:
		writeError(w, http.StatusInternalServerError, "internal", "internal error", 0)
	}
}
