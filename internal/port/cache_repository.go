package port

import (
	"context"
	"time"

	"github.com/rl1809/guild-economy/internal/core/domain"
)

type CacheRepository interface {
	// AcquireLease sets key if absent and returns the owner token, ok is false if someone else holds it
	AcquireLease(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)

	// ReleaseLease deletes key only if it still holds token
	ReleaseLease(ctx context.Context, key, token string) error

	// GetLeaderboard returns a cached ranking, found is false on a miss
	GetLeaderboard(ctx context.Context, guildID string) (entries []domain.LeaderboardEntry, found bool, err error)

	SetLeaderboard(ctx context.Context, guildID string, entries []domain.LeaderboardEntry, ttl time.Duration) error
}
