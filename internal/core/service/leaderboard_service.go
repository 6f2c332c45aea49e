package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/rl1809/guild-economy/internal/core/domain"
	"github.com/rl1809/guild-economy/internal/port"
)

const DefaultLeaderboardSize = 10

// ErrEmptyLeaderboard is reported by the outer surfaces when a guild has no
// accounts to rank.
var ErrEmptyLeaderboard = errors.New("guild has no accounts")

type LeaderboardService struct {
	accounts port.AccountRepository
	cache    port.CacheRepository // optional
	cacheTTL time.Duration
	size     int
}

// NewLeaderboardService builds the service. A nil cache or a zero TTL reads
// the store on every call.
func NewLeaderboardService(accounts port.AccountRepository, cache port.CacheRepository, cacheTTL time.Duration, size int) *LeaderboardService {
	if size <= 0 {
		size = DefaultLeaderboardSize
	}
	return &LeaderboardService{
		accounts: accounts,
		cache:    cache,
		cacheTTL: cacheTTL,
		size:     size,
	}
}

func (s *LeaderboardService) Top(ctx context.Context, guildID string) ([]domain.LeaderboardEntry, error) {
	cached := s.cache != nil && s.cacheTTL > 0
	if cached {
		entries, found, err := s.cache.GetLeaderboard(ctx, guildID)
		if err != nil {
			log.Printf("[Leaderboard] cache read for guild %s failed: %v", guildID, err)
		} else if found {
			return entries, nil
		}
	}

	users, err := s.accounts.FindUsers(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	entries := Rank(users, s.size)

	if cached {
		if err := s.cache.SetLeaderboard(ctx, guildID, entries, s.cacheTTL); err != nil {
			log.Printf("[Leaderboard] cache write for guild %s failed: %v", guildID, err)
		}
	}
	return entries, nil
}

func (s *LeaderboardService) Stat(ctx context.Context, guildID, userID string) (*domain.Account, error) {
	acct, err := s.accounts.FindUser(ctx, guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if acct == nil {
		return nil, domain.Reject(domain.RejectUserNotFound)
	}
	return acct, nil
}

// Provision creates a zero-balance account. Trades never call it.
func (s *LeaderboardService) Provision(ctx context.Context, guildID, userID string) (*domain.Account, error) {
	if !domain.NewOwnerKey(guildID, userID).Valid() {
		return nil, domain.Reject(domain.RejectInvalidIdentity)
	}
	acct, err := s.accounts.CreateAccount(ctx, guildID, userID)
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	log.Printf("[Leaderboard] provisioned account %s", acct.Key())
	return acct, nil
}

// Rank orders accounts by balance, highest first, keeping the input order
// between equal balances, and returns at most size entries.
func Rank(users []domain.Account, size int) []domain.LeaderboardEntry {
	sorted := slices.Clone(users)
	slices.SortStableFunc(sorted, func(a, b domain.Account) int {
		return cmp.Compare(b.Balance, a.Balance)
	})
	if len(sorted) > size {
		sorted = sorted[:size]
	}

	entries := make([]domain.LeaderboardEntry, len(sorted))
	for i, u := range sorted {
		entries[i] = domain.LeaderboardEntry{Rank: i + 1, UserID: u.UserID, Balance: u.Balance}
	}
	return entries
}
