package port

import (
	"context"

	"github.com/rl1809/guild-economy/internal/core/domain"
)

type AccountRepository interface {
	// FindUser returns nil, nil when the account does not exist
	FindUser(ctx context.Context, guildID, userID string) (*domain.Account, error)

	// FindUsers returns the guild's accounts in creation order
	FindUsers(ctx context.Context, guildID string) ([]domain.Account, error)

	// UpdateUserBalance sets the balance and leaves every other field untouched
	UpdateUserBalance(ctx context.Context, guildID, userID string, newBalance int64) (domain.Confirmation, error)

	// CreateAccount provisions a zero-balance account
	CreateAccount(ctx context.Context, guildID, userID string) (*domain.Account, error)
}
