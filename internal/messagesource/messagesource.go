// Package messagesource adapts the chat platform's message history API to
// the narrow capability set SummaryEngine needs. The Discord
// implementation wraps its HTTP calls in a circuit breaker, the same
// protective layer information-broker's RSSMonitor puts around feed
// fetches.
package messagesource

import (
	"context"
	"time"

	"summarybot-ng/internal/domain"
)

// MessageSource is the capability set SummaryEngine depends on.
type MessageSource interface {
	// FetchRange returns every message in [start, end) for channelID, in
	// platform shape (pre-normalization). Implementations page internally.
	FetchRange(ctx context.Context, channelID string, start, end time.Time) ([]domain.RawMessage, error)

	// HasReadAccess reports whether the bot itself can read channelID.
	HasReadAccess(ctx context.Context, channelID string) (bool, error)

	// ResolveUserRoles returns the role identifiers guild member userID
	// holds in guildID, used by CommandHandler's permission checks.
	ResolveUserRoles(ctx context.Context, guildID, userID string) ([]string, error)
}

// Config selects and parameterizes a MessageSource implementation, the
// same Config -> concrete-type resolver shape as nevindra-oasis's
// provider/resolve package.
type Config struct {
	Backend      string // "discord" | "mock"
	BotToken     string
	RequestTimeout time.Duration
	PageSize     int
}

// Resolve builds the MessageSource named by cfg.Backend.
func Resolve(cfg Config) (MessageSource, error) {
	switch cfg.Backend {
	case "", "discord":
		return NewDiscordSource(cfg), nil
	case "mock":
		return NewMockSource(), nil
	default:
		return nil, unsupportedBackendError(cfg.Backend)
	}
}

type unsupportedBackendError string

func (e unsupportedBackendError) Error() string {
	return "messagesource: unsupported backend " + string(e)
}
