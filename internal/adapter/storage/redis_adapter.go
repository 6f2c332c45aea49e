package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/guild-economy/internal/core/domain"
)

const leaderboardKeyPrefix = "leaderboard:"

var releaseLeaseScript = redis.NewScript(`
local key = KEYS[1]
local token = ARGV[1]

if redis.call('GET', key) == token then
	return redis.call('DEL', key)
end

return 0
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) AcquireLease(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}

	return token, true, nil
}

func (r *RedisAdapter) ReleaseLease(ctx context.Context, key, token string) error {
	return releaseLeaseScript.Run(ctx, r.client, []string{key}, token).Err()
}

func (r *RedisAdapter) GetLeaderboard(ctx context.Context, guildID string) ([]domain.LeaderboardEntry, bool, error) {
	raw, err := r.client.Get(ctx, leaderboardKeyPrefix+guildID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var entries []domain.LeaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false, fmt.Errorf("decode leaderboard: %w", err)
	}
	return entries, true, nil
}

func (r *RedisAdapter) SetLeaderboard(ctx context.Context, guildID string, entries []domain.LeaderboardEntry, ttl time.Duration) error {
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode leaderboard: %w", err)
	}
	return r.client.Set(ctx, leaderboardKeyPrefix+guildID, raw, ttl).Err()
}
