package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"summarybot-ng/internal/domain"
	"summarybot-ng/internal/errs"
)

// PostgresStore adapts Store onto database/sql + lib/pq, using the same
// tx.Begin/defer Rollback/Commit upsert pattern as information-broker's
// DatabaseOperations.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-opened, already-migrated *sql.DB.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Stats() (open, inUse, idle int) {
	st := s.db.Stats()
	return st.OpenConnections, st.InUse, st.Idle
}

func (s *PostgresStore) SaveSummary(ctx context.Context, sm *domain.Summary) error {
	body, err := json.Marshal(sm)
	if err != nil {
		return fmt.Errorf("%w: marshal summary: %v", errs.ErrInternal, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", errs.ErrStoreTransient, err)
	}
	defer tx.Rollback()

	fingerprint := string(sm.Fingerprint)
	if fingerprint == "" {
		fingerprint = fmt.Sprintf("%s:%d:%d", sm.ChannelID, sm.Start.Unix(), sm.End.Unix())
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO summaries (
			id, channel_id, guild_id, window_start, window_end,
			processed_count, fingerprint, body, schema_version, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			body = EXCLUDED.body,
			processed_count = EXCLUDED.processed_count,
			schema_version = EXCLUDED.schema_version
	`, sm.ID, sm.ChannelID, sm.GuildID, sm.Start, sm.End,
		sm.ProcessedCount, fingerprint, body, sm.SchemaVersion, sm.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: upsert summary: %v", errs.ErrStoreTransient, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", errs.ErrStoreTransient, err)
	}
	return nil
}

func (s *PostgresStore) GetSummary(ctx context.Context, id string) (*domain.Summary, error) {
	return s.scanSummary(ctx, `SELECT body FROM summaries WHERE id = $1`, id)
}

func (s *PostgresStore) GetSummaryByFingerprint(ctx context.Context, fp domain.Fingerprint) (*domain.Summary, error) {
	return s.scanSummary(ctx, `SELECT body FROM summaries WHERE fingerprint = $1`, string(fp))
}

func (s *PostgresStore) scanSummary(ctx context.Context, query string, arg any) (*domain.Summary, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStoreTransient, err)
	}

	var sm domain.Summary
	if err := json.Unmarshal(body, &sm); err != nil {
		return nil, fmt.Errorf("%w: unmarshal summary: %v", errs.ErrInternal, err)
	}
	return &sm, nil
}

// FindSummaries filters by channel and/or guild (either may be empty to
// leave that dimension unconstrained) and, when Since/Until are
// non-zero, to summaries whose window starts at or after Since and ends
// at or before Until.
func (s *PostgresStore) FindSummaries(ctx context.Context, f SummaryFilter) ([]*domain.Summary, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT body FROM summaries WHERE
		($1 = '' OR channel_id = $1) AND
		($2 = '' OR guild_id = $2) AND
		($3::timestamptz IS NULL OR window_start >= $3) AND
		($4::timestamptz IS NULL OR window_end <= $4)
		ORDER BY window_start DESC LIMIT $5 OFFSET $6`

	var since, until *time.Time
	if !f.Since.IsZero() {
		since = &f.Since
	}
	if !f.Until.IsZero() {
		until = &f.Until
	}

	rows, err := s.db.QueryContext(ctx, query, f.ChannelID, f.GuildID, since, until, limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStoreTransient, err)
	}
	defer rows.Close()

	var out []*domain.Summary
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrStoreTransient, err)
		}
		var sm domain.Summary
		if err := json.Unmarshal(body, &sm); err != nil {
			return nil, fmt.Errorf("%w: unmarshal summary: %v", errs.ErrInternal, err)
		}
		out = append(out, &sm)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteSummary(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM summaries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStoreTransient, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CountSummaries(ctx context.Context, channelID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM summaries WHERE channel_id = $1`, channelID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errs.ErrStoreTransient, err)
	}
	return count, nil
}

func (s *PostgresStore) SaveGuildConfig(ctx context.Context, g *domain.GuildConfig) error {
	opts, err := json.Marshal(g.DefaultOptions)
	if err != nil {
		return fmt.Errorf("%w: marshal options: %v", errs.ErrInternal, err)
	}
	perm, err := json.Marshal(g.Permission)
	if err != nil {
		return fmt.Errorf("%w: marshal permission: %v", errs.ErrInternal, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", errs.ErrStoreTransient, err)
	}
	defer tx.Rollback()

	g.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO guild_configs (
			guild_id, enabled_channels, excluded_channels, default_options,
			permission, webhook_enabled, webhook_secret, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (guild_id) DO UPDATE SET
			enabled_channels = EXCLUDED.enabled_channels,
			excluded_channels = EXCLUDED.excluded_channels,
			default_options = EXCLUDED.default_options,
			permission = EXCLUDED.permission,
			webhook_enabled = EXCLUDED.webhook_enabled,
			webhook_secret = EXCLUDED.webhook_secret,
			updated_at = EXCLUDED.updated_at
	`, g.GuildID, pq.Array(g.EnabledChannels), pq.Array(g.ExcludedChannels),
		opts, perm, g.WebhookEnabled, g.WebhookSecret, g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("%w: upsert guild config: %v", errs.ErrStoreTransient, err)
	}

	// Cache invalidation on config change is not part of this transaction:
	// the caller (commandhandler) calls Cache.InvalidateGuild after Commit
	// returns, since Cache has no visibility into *sql.Tx.

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", errs.ErrStoreTransient, err)
	}
	return nil
}

func (s *PostgresStore) GetGuildConfig(ctx context.Context, guildID string) (*domain.GuildConfig, error) {
	var g domain.GuildConfig
	var enabled, excluded pq.StringArray
	var opts, perm []byte

	err := s.db.QueryRowContext(ctx, `
		SELECT guild_id, enabled_channels, excluded_channels, default_options,
		       permission, webhook_enabled, webhook_secret, updated_at
		FROM guild_configs WHERE guild_id = $1
	`, guildID).Scan(&g.GuildID, &enabled, &excluded, &opts, &perm, &g.WebhookEnabled, &g.WebhookSecret, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStoreTransient, err)
	}

	g.EnabledChannels = enabled
	g.ExcludedChannels = excluded
	if err := json.Unmarshal(opts, &g.DefaultOptions); err != nil {
		return nil, fmt.Errorf("%w: unmarshal options: %v", errs.ErrInternal, err)
	}
	if err := json.Unmarshal(perm, &g.Permission); err != nil {
		return nil, fmt.Errorf("%w: unmarshal permission: %v", errs.ErrInternal, err)
	}
	return &g, nil
}

func (s *PostgresStore) DeleteGuildConfig(ctx context.Context, guildID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM guild_configs WHERE guild_id = $1`, guildID)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStoreTransient, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SaveScheduledTask(ctx context.Context, t *domain.ScheduledTask) error {
	schedule, err := json.Marshal(t.Schedule)
	if err != nil {
		return fmt.Errorf("%w: marshal schedule: %v", errs.ErrInternal, err)
	}
	dests, err := json.Marshal(t.Destinations)
	if err != nil {
		return fmt.Errorf("%w: marshal destinations: %v", errs.ErrInternal, err)
	}
	opts, err := json.Marshal(t.Options)
	if err != nil {
		return fmt.Errorf("%w: marshal options: %v", errs.ErrInternal, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", errs.ErrStoreTransient, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scheduled_tasks (
			id, name, channel_id, guild_id, schedule, timezone, destinations,
			options, active, created_at, creator_id, last_run, next_run,
			consecutive_failures, max_failures, retry_delay_minutes
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			schedule = EXCLUDED.schedule,
			timezone = EXCLUDED.timezone,
			destinations = EXCLUDED.destinations,
			options = EXCLUDED.options,
			active = EXCLUDED.active,
			last_run = EXCLUDED.last_run,
			next_run = EXCLUDED.next_run,
			consecutive_failures = EXCLUDED.consecutive_failures,
			max_failures = EXCLUDED.max_failures,
			retry_delay_minutes = EXCLUDED.retry_delay_minutes
	`, t.ID, t.Name, t.ChannelID, t.GuildID, schedule, t.Timezone, dests, opts,
		t.Active, t.CreatedAt, t.CreatorID, t.LastRun, t.NextRun,
		t.ConsecutiveFailures, t.MaxFailures, t.RetryDelayMinutes)
	if err != nil {
		return fmt.Errorf("%w: upsert scheduled task: %v", errs.ErrStoreTransient, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", errs.ErrStoreTransient, err)
	}
	return nil
}

func (s *PostgresStore) scanTask(row *sql.Row) (*domain.ScheduledTask, error) {
	var t domain.ScheduledTask
	var schedule, dests, opts []byte

	err := row.Scan(&t.ID, &t.Name, &t.ChannelID, &t.GuildID, &schedule, &t.Timezone, &dests,
		&opts, &t.Active, &t.CreatedAt, &t.CreatorID, &t.LastRun, &t.NextRun,
		&t.ConsecutiveFailures, &t.MaxFailures, &t.RetryDelayMinutes)
	if err == sql.ErrNoRows {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStoreTransient, err)
	}

	if err := json.Unmarshal(schedule, &t.Schedule); err != nil {
		return nil, fmt.Errorf("%w: unmarshal schedule: %v", errs.ErrInternal, err)
	}
	if err := json.Unmarshal(dests, &t.Destinations); err != nil {
		return nil, fmt.Errorf("%w: unmarshal destinations: %v", errs.ErrInternal, err)
	}
	if err := json.Unmarshal(opts, &t.Options); err != nil {
		return nil, fmt.Errorf("%w: unmarshal options: %v", errs.ErrInternal, err)
	}
	return &t, nil
}

const taskColumns = `id, name, channel_id, guild_id, schedule, timezone, destinations,
	options, active, created_at, creator_id, last_run, next_run,
	consecutive_failures, max_failures, retry_delay_minutes`

func (s *PostgresStore) GetScheduledTask(ctx context.Context, id string) (*domain.ScheduledTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = $1`, id)
	return s.scanTask(row)
}

func (s *PostgresStore) DeleteScheduledTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStoreTransient, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DueScheduledTasks returns every active task whose nextRun is at or
// before asOf, ordered oldest-due-first so the scheduler drains a
// backlog in arrival order.
func (s *PostgresStore) DueScheduledTasks(ctx context.Context, asOf time.Time) ([]*domain.ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM scheduled_tasks
		WHERE active = TRUE AND next_run <= $1
		ORDER BY next_run ASC
	`, asOf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStoreTransient, err)
	}
	defer rows.Close()

	var out []*domain.ScheduledTask
	for rows.Next() {
		var t domain.ScheduledTask
		var schedule, dests, opts []byte
		if err := rows.Scan(&t.ID, &t.Name, &t.ChannelID, &t.GuildID, &schedule, &t.Timezone, &dests,
			&opts, &t.Active, &t.CreatedAt, &t.CreatorID, &t.LastRun, &t.NextRun,
			&t.ConsecutiveFailures, &t.MaxFailures, &t.RetryDelayMinutes); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrStoreTransient, err)
		}
		if err := json.Unmarshal(schedule, &t.Schedule); err != nil {
			return nil, fmt.Errorf("%w: unmarshal schedule: %v", errs.ErrInternal, err)
		}
		if err := json.Unmarshal(dests, &t.Destinations); err != nil {
			return nil, fmt.Errorf("%w: unmarshal destinations: %v", errs.ErrInternal, err)
		}
		if err := json.Unmarshal(opts, &t.Options); err != nil {
			return nil, fmt.Errorf("%w: unmarshal options: %v", errs.ErrInternal, err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ScheduledTasksByGuild(ctx context.Context, guildID string) ([]*domain.ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM scheduled_tasks WHERE guild_id = $1 ORDER BY created_at`, guildID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStoreTransient, err)
	}
	defer rows.Close()

	var out []*domain.ScheduledTask
	for rows.Next() {
		var t domain.ScheduledTask
		var schedule, dests, opts []byte
		if err := rows.Scan(&t.ID, &t.Name, &t.ChannelID, &t.GuildID, &schedule, &t.Timezone, &dests,
			&opts, &t.Active, &t.CreatedAt, &t.CreatorID, &t.LastRun, &t.NextRun,
			&t.ConsecutiveFailures, &t.MaxFailures, &t.RetryDelayMinutes); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrStoreTransient, err)
		}
		json.Unmarshal(schedule, &t.Schedule)
		json.Unmarshal(dests, &t.Destinations)
		json.Unmarshal(opts, &t.Options)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveTaskExecution(ctx context.Context, e *domain.TaskExecution) error {
	results, err := json.Marshal(e.DeliveryResults)
	if err != nil {
		return fmt.Errorf("%w: marshal delivery results: %v", errs.ErrInternal, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO task_executions (
			id, task_id, status, started_at, completed_at, summary_id,
			error, delivery_results, duration_ms
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at,
			summary_id = EXCLUDED.summary_id,
			error = EXCLUDED.error,
			delivery_results = EXCLUDED.delivery_results,
			duration_ms = EXCLUDED.duration_ms
	`, e.ID, e.TaskID, e.Status, e.StartedAt, e.CompletedAt, e.SummaryID,
		e.Error, results, e.DurationMs)
	if err != nil {
		return fmt.Errorf("%w: upsert task execution: %v", errs.ErrStoreTransient, err)
	}
	return nil
}

func (s *PostgresStore) GetTaskExecutions(ctx context.Context, taskID string, limit int) ([]*domain.TaskExecution, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, status, started_at, completed_at, summary_id, error, delivery_results, duration_ms
		FROM task_executions WHERE task_id = $1 ORDER BY started_at DESC LIMIT $2
	`, taskID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrStoreTransient, err)
	}
	defer rows.Close()

	var out []*domain.TaskExecution
	for rows.Next() {
		var e domain.TaskExecution
		var results []byte
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Status, &e.StartedAt, &e.CompletedAt,
			&e.SummaryID, &e.Error, &results, &e.DurationMs); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrStoreTransient, err)
		}
		json.Unmarshal(results, &e.DeliveryResults)
		out = append(out, &e)
	}
	return out, rows.Err()
}
