package port

import (
	"context"

	"github.com/rl1809/guild-economy/internal/core/domain"
)

type CatalogRepository interface {
	// FindItem returns nil, nil when the guild has no item with that name
	FindItem(ctx context.Context, guildID, name string) (*domain.Item, error)

	// FindItems returns the guild's items in the store's natural order
	FindItems(ctx context.Context, guildID string) ([]domain.Item, error)

	// FindOwnedItems returns every item with an owner entry for key
	FindOwnedItems(ctx context.Context, key domain.OwnerKey) ([]domain.Item, error)

	// UpdateItemOwnerCount sets the owner's quantity and, when newSupply is non-nil, the supply
	UpdateItemOwnerCount(ctx context.Context, guildID, name string, owner domain.OwnerKey, newCount int64, newSupply *int64) (domain.Confirmation, error)

	// RemoveItemOwner deletes the owner entry and, when newSupply is non-nil, sets the supply
	RemoveItemOwner(ctx context.Context, guildID, name string, owner domain.OwnerKey, newSupply *int64) (domain.Confirmation, error)

	// UpdateItemCost is used by repricing only
	UpdateItemCost(ctx context.Context, guildID, name string, cost int64) (domain.Confirmation, error)

	// SaveItem upserts an item by guild and name
	SaveItem(ctx context.Context, item domain.Item) error

	// Guilds lists every guild that has at least one item
	Guilds(ctx context.Context) ([]string, error)
}
