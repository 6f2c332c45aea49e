// Package storefakes provides in-memory store fakes for service and handler tests.
package storefakes

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/rl1809/guild-economy/internal/core/domain"
)

// ErrInjected is returned by a fake when a failure was requested.
var ErrInjected = errors.New("injected store failure")

// Catalog is an in-memory CatalogRepository. Items keep insertion order.
type Catalog struct {
	mu    sync.Mutex
	items []domain.Item

	// RejectOwnerUpdates makes owner updates report no match.
	RejectOwnerUpdates bool
	// FailOwnerUpdates makes owner updates return ErrInjected.
	FailOwnerUpdates bool
	// FailCostFor makes UpdateItemCost fail for the named items.
	FailCostFor map[string]bool

	OwnerUpdates int
	CostUpdates  int
}

func NewCatalog(items ...domain.Item) *Catalog {
	c := &Catalog{}
	for _, item := range items {
		c.items = append(c.items, copyItem(item))
	}
	return c
}

func (c *Catalog) indexOf(guildID, name string) int {
	for i := range c.items {
		if c.items[i].GuildID == guildID && c.items[i].Name == name {
			return i
		}
	}
	return -1
}

func (c *Catalog) FindItem(_ context.Context, guildID, name string) (*domain.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(guildID, name)
	if i < 0 {
		return nil, nil
	}
	item := copyItem(c.items[i])
	return &item, nil
}

func (c *Catalog) FindItems(_ context.Context, guildID string) ([]domain.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []domain.Item
	for _, item := range c.items {
		if item.GuildID == guildID {
			out = append(out, copyItem(item))
		}
	}
	return out, nil
}

func (c *Catalog) FindOwnedItems(_ context.Context, key domain.OwnerKey) ([]domain.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []domain.Item
	for _, item := range c.items {
		if item.GuildID != key.GuildID {
			continue
		}
		if _, ok := item.Owners[key.String()]; ok {
			out = append(out, copyItem(item))
		}
	}
	return out, nil
}

func (c *Catalog) UpdateItemOwnerCount(_ context.Context, guildID, name string, owner domain.OwnerKey, newCount int64, newSupply *int64) (domain.Confirmation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ownerUpdateFault(); err != nil {
		return domain.Confirmation{}, err
	}
	i := c.indexOf(guildID, name)
	if i < 0 || c.RejectOwnerUpdates {
		return domain.Confirmation{}, nil
	}
	c.OwnerUpdates++

	item := &c.items[i]
	if item.Owners == nil {
		item.Owners = make(map[string]int64)
	}
	prev, had := item.Owners[owner.String()]
	item.Owners[owner.String()] = newCount
	modified := !had || prev != newCount
	if newSupply != nil {
		modified = modified || item.Supply == nil || *item.Supply != *newSupply
		item.Supply = domain.Supply(*newSupply)
	}
	return domain.Confirmation{Matched: true, Modified: modified}, nil
}

func (c *Catalog) RemoveItemOwner(_ context.Context, guildID, name string, owner domain.OwnerKey, newSupply *int64) (domain.Confirmation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ownerUpdateFault(); err != nil {
		return domain.Confirmation{}, err
	}
	i := c.indexOf(guildID, name)
	if i < 0 || c.RejectOwnerUpdates {
		return domain.Confirmation{}, nil
	}
	c.OwnerUpdates++

	item := &c.items[i]
	_, had := item.Owners[owner.String()]
	delete(item.Owners, owner.String())
	modified := had
	if newSupply != nil {
		modified = modified || item.Supply == nil || *item.Supply != *newSupply
		item.Supply = domain.Supply(*newSupply)
	}
	return domain.Confirmation{Matched: true, Modified: modified}, nil
}

func (c *Catalog) ownerUpdateFault() error {
	if c.FailOwnerUpdates {
		return ErrInjected
	}
	return nil
}

func (c *Catalog) UpdateItemCost(_ context.Context, guildID, name string, cost int64) (domain.Confirmation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.FailCostFor[name] {
		return domain.Confirmation{}, fmt.Errorf("update cost of %s: %w", name, ErrInjected)
	}
	i := c.indexOf(guildID, name)
	if i < 0 {
		return domain.Confirmation{}, nil
	}
	c.CostUpdates++
	modified := c.items[i].Cost != cost
	c.items[i].Cost = cost
	c.items[i].UpdatedAt = time.Now()
	return domain.Confirmation{Matched: true, Modified: modified}, nil
}

func (c *Catalog) SaveItem(_ context.Context, item domain.Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.indexOf(item.GuildID, item.Name); i >= 0 {
		c.items[i] = copyItem(item)
		return nil
	}
	c.items = append(c.items, copyItem(item))
	return nil
}

func (c *Catalog) Guilds(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[string]bool)
	var out []string
	for _, item := range c.items {
		if !seen[item.GuildID] {
			seen[item.GuildID] = true
			out = append(out, item.GuildID)
		}
	}
	return out, nil
}

func copyItem(item domain.Item) domain.Item {
	if item.Owners != nil {
		item.Owners = maps.Clone(item.Owners)
	}
	if item.Supply != nil {
		item.Supply = domain.Supply(*item.Supply)
	}
	return item
}

// Accounts is an in-memory AccountRepository. Accounts keep creation order.
type Accounts struct {
	mu       sync.Mutex
	accounts []domain.Account

	// RejectBalanceUpdates makes balance updates report no match.
	RejectBalanceUpdates bool
	// FailBalanceUpdates makes balance updates return ErrInjected.
	FailBalanceUpdates bool

	BalanceUpdates int
}

func NewAccounts(accounts ...domain.Account) *Accounts {
	return &Accounts{accounts: append([]domain.Account(nil), accounts...)}
}

func (a *Accounts) indexOf(guildID, userID string) int {
	for i := range a.accounts {
		if a.accounts[i].GuildID == guildID && a.accounts[i].UserID == userID {
			return i
		}
	}
	return -1
}

func (a *Accounts) FindUser(_ context.Context, guildID, userID string) (*domain.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	i := a.indexOf(guildID, userID)
	if i < 0 {
		return nil, nil
	}
	acct := a.accounts[i]
	return &acct, nil
}

func (a *Accounts) FindUsers(_ context.Context, guildID string) ([]domain.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []domain.Account
	for _, acct := range a.accounts {
		if acct.GuildID == guildID {
			out = append(out, acct)
		}
	}
	return out, nil
}

func (a *Accounts) UpdateUserBalance(_ context.Context, guildID, userID string, newBalance int64) (domain.Confirmation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.FailBalanceUpdates {
		return domain.Confirmation{}, ErrInjected
	}
	i := a.indexOf(guildID, userID)
	if i < 0 || a.RejectBalanceUpdates {
		return domain.Confirmation{}, nil
	}
	a.BalanceUpdates++
	modified := a.accounts[i].Balance != newBalance
	a.accounts[i].Balance = newBalance
	return domain.Confirmation{Matched: true, Modified: modified}, nil
}

func (a *Accounts) CreateAccount(_ context.Context, guildID, userID string) (*domain.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.indexOf(guildID, userID) >= 0 {
		return nil, fmt.Errorf("%w: %s-%s", domain.ErrAccountExists, guildID, userID)
	}
	acct := domain.NewAccount(guildID, userID)
	acct.CreatedAt = time.Now()
	a.accounts = append(a.accounts, acct)
	return &acct, nil
}

// Cache is an in-memory CacheRepository. TTLs are ignored.
type Cache struct {
	mu      sync.Mutex
	leases  map[string]string
	boards  map[string][]domain.LeaderboardEntry
	counter int

	LeaderboardReads int
}

func NewCache() *Cache {
	return &Cache{
		leases: make(map[string]string),
		boards: make(map[string][]domain.LeaderboardEntry),
	}
}

func (c *Cache) AcquireLease(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, held := c.leases[key]; held {
		return "", false, nil
	}
	c.counter++
	token := fmt.Sprintf("token-%d", c.counter)
	c.leases[key] = token
	return token, true, nil
}

func (c *Cache) ReleaseLease(_ context.Context, key, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.leases[key] == token {
		delete(c.leases, key)
	}
	return nil
}

// Held reports whether a lease is currently held on key.
func (c *Cache) Held(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.leases[key]
	return ok
}

func (c *Cache) GetLeaderboard(_ context.Context, guildID string) ([]domain.LeaderboardEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.LeaderboardReads++
	entries, ok := c.boards[guildID]
	return entries, ok, nil
}

func (c *Cache) SetLeaderboard(_ context.Context, guildID string, entries []domain.LeaderboardEntry, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.boards[guildID] = append([]domain.LeaderboardEntry(nil), entries...)
	return nil
}
