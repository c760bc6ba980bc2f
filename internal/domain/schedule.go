package domain

import "time"

// ScheduleKind enumerates the supported schedule descriptor shapes.
type ScheduleKind string

const (
	ScheduleOneShotAt    ScheduleKind = "one-shot-at"
	ScheduleDailyAt      ScheduleKind = "daily-at"
	ScheduleWeeklyAt     ScheduleKind = "weekly-at"
	ScheduleMonthlyOn    ScheduleKind = "monthly-on"
	ScheduleCronExpr     ScheduleKind = "cron-expression"
)

// Schedule is a tagged schedule descriptor. Exactly one of the fields
// relevant to Kind is meaningful; the rest are zero.
type Schedule struct {
	Kind ScheduleKind `json:"kind"`

	// ScheduleOneShotAt
	At time.Time `json:"at,omitzero"`

	// ScheduleDailyAt / ScheduleWeeklyAt / ScheduleMonthlyOn
	Hour   int `json:"hour,omitempty"`
	Minute int `json:"minute,omitempty"`

	// ScheduleWeeklyAt: 0=Sunday .. 6=Saturday
	Weekday time.Weekday `json:"weekday,omitempty"`

	// ScheduleMonthlyOn: day of month, 1-28 (to stay valid every month)
	DayOfMonth int `json:"dayOfMonth,omitempty"`

	// ScheduleCronExpr
	CronExpression string `json:"cronExpression,omitempty"`
}

// SinkKind enumerates delivery destination types.
type SinkKind string

const (
	SinkDiscordChannel SinkKind = "discord-channel"
	SinkWebhook        SinkKind = "webhook"
	SinkEmail          SinkKind = "email"
)

// Destination is one ordered delivery target for a ScheduledTask.
type Destination struct {
	Sink   SinkKind `json:"sink"`
	Target string   `json:"target"`
	Format string   `json:"format,omitempty"`
}

// ScheduledTask is a persisted, administrator-managed recurring (or
// one-shot) summarization job.
type ScheduledTask struct {
	ID                    string          `json:"id"`
	Name                  string          `json:"name"`
	ChannelID             string          `json:"channelId"`
	GuildID               string          `json:"guildId"`
	Schedule              Schedule        `json:"schedule"`
	Timezone              string          `json:"timezone"`
	Destinations          []Destination   `json:"destinations"`
	Options               SummaryOptions  `json:"options"`
	Active                bool            `json:"active"`
	CreatedAt             time.Time       `json:"createdAt"`
	CreatorID             string          `json:"creatorId"`
	LastRun               *time.Time      `json:"lastRun,omitempty"`
	NextRun               time.Time       `json:"nextRun"`
	ConsecutiveFailures   int             `json:"consecutiveFailureCount"`
	MaxFailures           int             `json:"maxFailures"`
	RetryDelayMinutes     int             `json:"retryDelayMinutes"`
}

// ExecutionStatus is the lifecycle state of a TaskExecution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// DeliveryResult records the outcome of delivering to one destination.
type DeliveryResult struct {
	Sink  SinkKind `json:"sink"`
	OK    bool     `json:"ok"`
	Error string   `json:"error,omitempty"`
}

// TaskExecution is an append-only record of one Scheduler run of a task.
type TaskExecution struct {
	ID                string           `json:"id"`
	TaskID            string           `json:"taskId"`
	Status            ExecutionStatus  `json:"status"`
	StartedAt         time.Time        `json:"startedAt"`
	CompletedAt       *time.Time       `json:"completedAt,omitempty"`
	SummaryID         string           `json:"summaryId,omitempty"`
	Error             string           `json:"error,omitempty"`
	DeliveryResults   []DeliveryResult `json:"deliveryResults,omitempty"`
	DurationMs        int64            `json:"durationMs"`
}
