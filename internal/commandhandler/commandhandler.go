// Package commandhandler implements the slash-command surface: deferred
// ack, per-user rate limiting, permission checks, dispatch to
// SummaryEngine or the scheduled-task store, and error-to-user-message
// translation, all per spec.md 4.9.
package commandhandler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"summarybot-ng/internal/domain"
	"summarybot-ng/internal/errs"
	"summarybot-ng/internal/metrics"
)

// MessageSource is the narrow slice of messagesource.MessageSource the
// handler needs for permission checks.
type MessageSource interface {
	ResolveUserRoles(ctx context.Context, guildID, userID string) ([]string, error)
}

// SummaryEngine is the narrow slice of summaryengine.Engine the handler
// dispatches to.
type SummaryEngine interface {
	Summarize(ctx context.Context, req domain.SummaryRequest) (*domain.Summary, error)
	EstimateCost(ctx context.Context, req domain.SummaryRequest) (float64, error)
}

// Store is the narrow slice of store.Store config/schedule mutations need.
type Store interface {
	GetGuildConfig(ctx context.Context, guildID string) (*domain.GuildConfig, error)
	SaveGuildConfig(ctx context.Context, g *domain.GuildConfig) error
	SaveScheduledTask(ctx context.Context, t *domain.ScheduledTask) error
	DeleteScheduledTask(ctx context.Context, id string) error
	ScheduledTasksByGuild(ctx context.Context, guildID string) ([]*domain.ScheduledTask, error)
}

// Cache is invalidated after a config write commits, so a stale
// in-memory or durable entry never outlives the config change that
// would have altered how it was generated.
type Cache interface {
	InvalidateGuild(ctx context.Context, guildID string) error
}

// Invocation describes who issued a command and from where.
type Invocation struct {
	UserID    string
	GuildID   string
	ChannelID string
}

// Result is the deferred response CommandHandler hands back to the
// chat-platform adapter to edit into the original deferred ack.
type Result struct {
	Text    string
	Summary *domain.Summary
}

// Handler is the CommandHandler component.
type Handler struct {
	source  MessageSource
	engine  SummaryEngine
	store   Store
	cache   Cache
	limits  *RateLimiter
	metrics *metrics.Metrics
}

func New(source MessageSource, engine SummaryEngine, st Store, cache Cache, m *metrics.Metrics) *Handler {
	return &Handler{
		source:  source,
		engine:  engine,
		store:   st,
		cache:   cache,
		limits:  NewRateLimiter(),
		metrics: m,
	}
}

// HandleSummarize runs the "/summarize" command: rate limit, then
// dispatch straight to SummaryEngine (which itself enforces channel
// access). Deferred ack is the caller's responsibility (the platform
// adapter sends one immediately on receipt, before calling this).
func (h *Handler) HandleSummarize(ctx context.Context, inv Invocation, req domain.SummaryRequest) (Result, error) {
	if ok, retryAfter := h.limits.AllowSummarize(inv.UserID, time.Now()); !ok {
		return Result{}, rateLimitedError(retryAfter)
	}

	summary, err := h.engine.Summarize(ctx, req)
	h.recordCommand("summarize", err)
	if err != nil {
		return Result{}, err
	}

	return Result{Text: summary.Body, Summary: summary}, nil
}

// HandleEstimate runs the cost-preview subcommand, a read-only operation
// exempt from the summarize rate limit since it never calls the LLM.
func (h *Handler) HandleEstimate(ctx context.Context, inv Invocation, req domain.SummaryRequest) (Result, error) {
	cost, err := h.engine.EstimateCost(ctx, req)
	h.recordCommand("estimate", err)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: fmt.Sprintf("Estimated cost: $%.4f", cost)}, nil
}

// HandleConfig applies a guild configuration mutation inside one Store
// transaction (SaveGuildConfig is itself transactional), requiring admin
// permission per GuildConfig.Permission, then invalidates the guild's
// cached summaries so a subsequent request can't serve results generated
// under the old options.
func (h *Handler) HandleConfig(ctx context.Context, inv Invocation, mutate func(*domain.GuildConfig)) (Result, error) {
	if ok, retryAfter := h.limits.AllowMutation(inv.UserID, time.Now()); !ok {
		return Result{}, rateLimitedError(retryAfter)
	}

	cfg, err := h.store.GetGuildConfig(ctx, inv.GuildID)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		h.recordCommand("config", err)
		return Result{}, err
	}
	if cfg == nil {
		cfg = &domain.GuildConfig{GuildID: inv.GuildID}
	}

	if err := h.checkAdminPermission(ctx, inv, cfg.Permission); err != nil {
		h.recordCommand("config", err)
		return Result{}, err
	}

	mutate(cfg)
	if !cfg.ChannelSetsDisjoint() {
		err := fmt.Errorf("%w: a channel cannot be both enabled and excluded", errs.ErrUserInput)
		h.recordCommand("config", err)
		return Result{}, err
	}

	cfg.UpdatedAt = time.Now()
	if err := h.store.SaveGuildConfig(ctx, cfg); err != nil {
		h.recordCommand("config", err)
		return Result{}, err
	}

	if h.cache != nil {
		if err := h.cache.InvalidateGuild(ctx, inv.GuildID); err != nil {
			h.recordCommand("config", err)
			return Result{}, fmt.Errorf("%w: invalidating cache after config change: %v", errs.ErrStoreTransient, err)
		}
	}

	h.recordCommand("config", nil)
	return Result{Text: "Configuration updated."}, nil
}

// HandleScheduleCreate creates or replaces a scheduled task. The
// scheduler itself has no in-memory task cache to invalidate (it
// re-queries DueScheduledTasks from Store on every tick), so no explicit
// reload signal is required beyond the Store write committing.
func (h *Handler) HandleScheduleCreate(ctx context.Context, inv Invocation, task *domain.ScheduledTask) (Result, error) {
	if ok, retryAfter := h.limits.AllowMutation(inv.UserID, time.Now()); !ok {
		return Result{}, rateLimitedError(retryAfter)
	}

	cfg, err := h.store.GetGuildConfig(ctx, inv.GuildID)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		h.recordCommand("schedule", err)
		return Result{}, err
	}
	var perm domain.PermissionConfig
	if cfg != nil {
		perm = cfg.Permission
	}

	if err := h.checkAdminPermission(ctx, inv, perm); err != nil {
		h.recordCommand("schedule", err)
		return Result{}, err
	}

	task.CreatorID = inv.UserID
	task.GuildID = inv.GuildID
	task.CreatedAt = time.Now()
	task.Active = true

	if err := h.store.SaveScheduledTask(ctx, task); err != nil {
		h.recordCommand("schedule", err)
		return Result{}, err
	}

	h.recordCommand("schedule", nil)
	return Result{Text: fmt.Sprintf("Scheduled task %q created, next run %s.", task.Name, task.NextRun.Format(time.RFC3339))}, nil
}

// HandleScheduleDelete removes a scheduled task after an admin check.
func (h *Handler) HandleScheduleDelete(ctx context.Context, inv Invocation, taskID string) (Result, error) {
	if ok, retryAfter := h.limits.AllowMutation(inv.UserID, time.Now()); !ok {
		return Result{}, rateLimitedError(retryAfter)
	}

	cfg, err := h.store.GetGuildConfig(ctx, inv.GuildID)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		h.recordCommand("schedule", err)
		return Result{}, err
	}
	var perm domain.PermissionConfig
	if cfg != nil {
		perm = cfg.Permission
	}

	if err := h.checkAdminPermission(ctx, inv, perm); err != nil {
		h.recordCommand("schedule", err)
		return Result{}, err
	}

	if err := h.store.DeleteScheduledTask(ctx, taskID); err != nil {
		h.recordCommand("schedule", err)
		return Result{}, err
	}

	h.recordCommand("schedule", nil)
	return Result{Text: "Scheduled task removed."}, nil
}

func (h *Handler) checkAdminPermission(ctx context.Context, inv Invocation, perm domain.PermissionConfig) error {
	if !perm.RequireAdminForConfig && len(perm.AllowedRoles) == 0 {
		return nil
	}

	roles, err := h.source.ResolveUserRoles(ctx, inv.GuildID, inv.UserID)
	if err != nil {
		return fmt.Errorf("%w: resolving roles: %v", errs.ErrInternal, err)
	}

	allowed := make(map[string]struct{}, len(perm.AllowedRoles))
	for _, r := range perm.AllowedRoles {
		allowed[r] = struct{}{}
	}
	for _, r := range roles {
		if _, ok := allowed[r]; ok {
			return nil
		}
	}

	return errs.ErrPermission
}

func (h *Handler) recordCommand(name string, err error) {
	if h.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	h.metrics.RecordCommand(name, status)
}

func rateLimitedError(retryAfter time.Duration) error {
	seconds := int(math.Ceil(retryAfter.Seconds()))
	return fmt.Errorf("%w: retry in %ds", errs.ErrRateLimited, seconds)
}

// UserMessage translates a component error into the exact user-facing
// text spec.md 7 assigns to each error kind. CommandHandler and
// RestAdapter are the only layers allowed to do this translation.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, errs.ErrUserInput):
		return err.Error()
	case errors.Is(err, errs.ErrPermission):
		return "Insufficient permissions."
	case errors.Is(err, errs.ErrInsufficientContent):
		return "Not enough messages in that range to summarize."
	case errors.Is(err, errs.ErrChannelAccess):
		return "The bot does not have access to that channel."
	case errors.Is(err, errs.ErrRateLimited):
		return "Rate limit exceeded: " + err.Error()
	case errors.Is(err, errs.ErrLLMTransient):
		return "The summarizer is temporarily unavailable, please retry shortly."
	case errors.Is(err, errs.ErrLLMRefused), errors.Is(err, errs.ErrLLMInvalid):
		return "A summary could not be generated for that content."
	case errors.Is(err, errs.ErrPromptTooLarge):
		return "That time range is too large to summarize in one request."
	case errors.Is(err, errs.ErrStoreTransient):
		return "A temporary storage error occurred, please retry."
	case errors.Is(err, errs.ErrStoreConstraint):
		return "Internal error."
	default:
		return "Internal error."
	}
}
