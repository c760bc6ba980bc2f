package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"summarybot-ng/internal/domain"
)

// StoreDurable is the default durable cache tier: a dedicated
// summary_cache table, kept separate from the summaries table Store
// owns so that cache eviction (TTL expiry, or channel/guild scoped
// invalidation) never touches the persisted source-of-truth rows.
type StoreDurable struct {
	db *sql.DB
}

func NewStoreDurable(db *sql.DB) *StoreDurable {
	return &StoreDurable{db: db}
}

func (d *StoreDurable) Get(ctx context.Context, fingerprint domain.Fingerprint) (*domain.Summary, bool, error) {
	var body []byte
	err := d.db.QueryRowContext(ctx, `
		SELECT body FROM summary_cache WHERE fingerprint = $1 AND expires_at > NOW()
	`, string(fingerprint)).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: query summary_cache: %w", err)
	}

	var sm domain.Summary
	if err := json.Unmarshal(body, &sm); err != nil {
		return nil, false, fmt.Errorf("cache: unmarshal cached summary: %w", err)
	}
	return &sm, true, nil
}

func (d *StoreDurable) Put(ctx context.Context, fingerprint domain.Fingerprint, summary *domain.Summary, ttl time.Duration) error {
	body, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("cache: marshal summary: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO summary_cache (fingerprint, channel_id, guild_id, body, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (fingerprint) DO UPDATE SET
			channel_id = EXCLUDED.channel_id,
			guild_id = EXCLUDED.guild_id,
			body = EXCLUDED.body,
			expires_at = EXCLUDED.expires_at
	`, string(fingerprint), summary.ChannelID, summary.GuildID, body, time.Now().Add(ttl))
	if err != nil {
		return fmt.Errorf("cache: upsert summary_cache: %w", err)
	}
	return nil
}

// InvalidateChannel evicts cached entries for a channel. It never
// touches the summaries table: cache eviction and source-of-truth
// deletion are separate concerns.
func (d *StoreDurable) InvalidateChannel(ctx context.Context, channelID string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM summary_cache WHERE channel_id = $1`, channelID)
	if err != nil {
		return fmt.Errorf("cache: invalidate channel: %w", err)
	}
	return nil
}

func (d *StoreDurable) InvalidateGuild(ctx context.Context, guildID string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM summary_cache WHERE guild_id = $1`, guildID)
	if err != nil {
		return fmt.Errorf("cache: invalidate guild: %w", err)
	}
	return nil
}
