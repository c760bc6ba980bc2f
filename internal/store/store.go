// Package store is the persistence boundary. Store is a capability-set
// interface so SummaryEngine, CommandHandler, and Scheduler depend only
// on the operations they actually call; PostgresStore is the only
// production implementation, built on database/sql + lib/pq in the same
// transactional-upsert shape as information-broker's database_ops.go.
package store

import (
	"context"
	"time"

	"summarybot-ng/internal/domain"
)

// SummaryFilter narrows FindSummaries.
type SummaryFilter struct {
	ChannelID string
	GuildID   string
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
}

// Store is the full persistence surface. Individual components narrow
// this down to the methods they need via their own local interfaces.
type Store interface {
	SaveSummary(ctx context.Context, s *domain.Summary) error
	GetSummary(ctx context.Context, id string) (*domain.Summary, error)
	GetSummaryByFingerprint(ctx context.Context, fp domain.Fingerprint) (*domain.Summary, error)
	FindSummaries(ctx context.Context, f SummaryFilter) ([]*domain.Summary, error)
	DeleteSummary(ctx context.Context, id string) error
	CountSummaries(ctx context.Context, channelID string) (int, error)

	SaveGuildConfig(ctx context.Context, g *domain.GuildConfig) error
	GetGuildConfig(ctx context.Context, guildID string) (*domain.GuildConfig, error)
	DeleteGuildConfig(ctx context.Context, guildID string) error

	SaveScheduledTask(ctx context.Context, t *domain.ScheduledTask) error
	GetScheduledTask(ctx context.Context, id string) (*domain.ScheduledTask, error)
	DeleteScheduledTask(ctx context.Context, id string) error
	DueScheduledTasks(ctx context.Context, asOf time.Time) ([]*domain.ScheduledTask, error)
	ScheduledTasksByGuild(ctx context.Context, guildID string) ([]*domain.ScheduledTask, error)

	SaveTaskExecution(ctx context.Context, e *domain.TaskExecution) error
	GetTaskExecutions(ctx context.Context, taskID string, limit int) ([]*domain.TaskExecution, error)

	Ping(ctx context.Context) error
	Stats() (open, inUse, idle int)
}
