package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"summarybot-ng/internal/domain"
)

// RedisDurable is the optional Redis-backed durable tier, grounded on
// manifold's DedupeStore interface (Exists/Store keyed by a stable hash,
// backed by go-redis). Channel/guild invalidation use a Redis SET per
// channel/guild tracking member fingerprints, since Redis has no native
// prefix-delete.
type RedisDurable struct {
	client *redis.Client
}

func NewRedisDurable(addr string) *RedisDurable {
	return &RedisDurable{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func summaryKey(fp domain.Fingerprint) string   { return "summary:" + string(fp) }
func channelSetKey(channelID string) string     { return "summary-channel:" + channelID }
func guildSetKey(guildID string) string         { return "summary-guild:" + guildID }

func (r *RedisDurable) Get(ctx context.Context, fingerprint domain.Fingerprint) (*domain.Summary, bool, error) {
	raw, err := r.client.Get(ctx, summaryKey(fingerprint)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: redis get: %w", err)
	}

	var sm domain.Summary
	if err := json.Unmarshal(raw, &sm); err != nil {
		return nil, false, fmt.Errorf("cache: unmarshal cached summary: %w", err)
	}
	return &sm, true, nil
}

func (r *RedisDurable) Put(ctx context.Context, fingerprint domain.Fingerprint, summary *domain.Summary, ttl time.Duration) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("cache: marshal summary: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, summaryKey(fingerprint), raw, ttl)
	pipe.SAdd(ctx, channelSetKey(summary.ChannelID), string(fingerprint))
	pipe.SAdd(ctx, guildSetKey(summary.GuildID), string(fingerprint))
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("cache: redis pipeline: %w", err)
	}
	return nil
}

func (r *RedisDurable) InvalidateChannel(ctx context.Context, channelID string) error {
	return r.invalidateSet(ctx, channelSetKey(channelID))
}

func (r *RedisDurable) InvalidateGuild(ctx context.Context, guildID string) error {
	return r.invalidateSet(ctx, guildSetKey(guildID))
}

func (r *RedisDurable) invalidateSet(ctx context.Context, setKey string) error {
	fingerprints, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("cache: redis smembers: %w", err)
	}
	if len(fingerprints) == 0 {
		return nil
	}

	keys := make([]string, 0, len(fingerprints))
	for _, fp := range fingerprints {
		keys = append(keys, "summary:"+fp)
	}
	keys = append(keys, setKey)

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache: redis del: %w", err)
	}
	return nil
}
