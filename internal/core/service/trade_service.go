package service

import (
	"context"
	"fmt"
	"log"

	"github.com/rl1809/guild-economy/internal/core/domain"
	"github.com/rl1809/guild-economy/internal/port"
)

// TradeService applies buy and sell requests against the catalog and the
// account store. The two stores share no transaction: the catalog write is
// always confirmed before the balance write is issued.
type TradeService struct {
	catalog  port.CatalogRepository
	accounts port.AccountRepository
}

func NewTradeService(catalog port.CatalogRepository, accounts port.AccountRepository) *TradeService {
	return &TradeService{
		catalog:  catalog,
		accounts: accounts,
	}
}

func (s *TradeService) Execute(ctx context.Context, req domain.TransactionRequest) (*domain.TransactionResult, error) {
	switch req.Kind {
	case domain.TransactionBuy:
		return s.Buy(ctx, req)
	case domain.TransactionSell:
		return s.Sell(ctx, req)
	}
	return nil, fmt.Errorf("unknown transaction kind %q", req.Kind)
}

func (s *TradeService) Buy(ctx context.Context, req domain.TransactionRequest) (*domain.TransactionResult, error) {
	req.Kind = domain.TransactionBuy
	item, acct, err := s.load(ctx, req)
	if err != nil {
		return nil, err
	}

	key := req.OwnerKey()
	owned := item.Owned(key)

	if owned >= item.Max {
		return nil, domain.Reject(domain.RejectAlreadyAtCap)
	}
	if item.Supply != nil && req.Count > *item.Supply {
		ceiling := min(*item.Supply-owned, item.Max-owned)
		return nil, domain.RejectWithCeiling(domain.RejectInsufficientSupply, ceiling)
	}
	// compared without adding so a huge count cannot wrap around
	if req.Count > item.Max-owned {
		return nil, domain.RejectWithCeiling(domain.RejectExceedsMax, item.Max-owned)
	}

	total := item.Cost * req.Count
	if item.Cost != 0 && total/item.Cost != req.Count {
		return nil, domain.Reject(domain.RejectInsufficientFunds)
	}
	if total > acct.Balance {
		return nil, domain.Reject(domain.RejectInsufficientFunds)
	}

	result := &domain.TransactionResult{
		Kind:       domain.TransactionBuy,
		ItemName:   item.Name,
		Count:      req.Count,
		Amount:     total,
		NewBalance: acct.Balance - total,
		NewOwned:   owned + req.Count,
	}
	if item.Supply != nil {
		result.NewSupply = domain.Supply(*item.Supply - req.Count)
	}

	conf, err := s.catalog.UpdateItemOwnerCount(ctx, req.GuildID, item.Name, key, result.NewOwned, result.NewSupply)
	if err != nil {
		return nil, fmt.Errorf("update item owners: %w", err)
	}
	if !conf.Confirmed(true) {
		return nil, domain.Reject(domain.RejectCatalogUpdateRejected)
	}

	if err := s.applyBalance(ctx, req, result.NewBalance, total != 0); err != nil {
		return nil, err
	}

	result.Applied = true
	return result, nil
}

func (s *TradeService) Sell(ctx context.Context, req domain.TransactionRequest) (*domain.TransactionResult, error) {
	req.Kind = domain.TransactionSell
	item, acct, err := s.load(ctx, req)
	if err != nil {
		return nil, err
	}

	key := req.OwnerKey()
	owned := item.Owned(key)

	if owned < req.Count {
		return nil, domain.RejectWithCeiling(domain.RejectInsufficientOwned, owned)
	}

	proceeds := sellProceeds(item.Cost, req.Count)
	result := &domain.TransactionResult{
		Kind:       domain.TransactionSell,
		ItemName:   item.Name,
		Count:      req.Count,
		Amount:     proceeds,
		NewBalance: acct.Balance + proceeds,
		NewOwned:   owned - req.Count,
	}
	if item.Supply != nil {
		result.NewSupply = domain.Supply(*item.Supply + req.Count)
	}

	var conf domain.Confirmation
	if result.NewOwned == 0 {
		conf, err = s.catalog.RemoveItemOwner(ctx, req.GuildID, item.Name, key, result.NewSupply)
	} else {
		conf, err = s.catalog.UpdateItemOwnerCount(ctx, req.GuildID, item.Name, key, result.NewOwned, result.NewSupply)
	}
	if err != nil {
		return nil, fmt.Errorf("update item owners: %w", err)
	}
	if !conf.Confirmed(true) {
		return nil, domain.Reject(domain.RejectCatalogUpdateRejected)
	}

	if err := s.applyBalance(ctx, req, result.NewBalance, proceeds != 0); err != nil {
		return nil, err
	}

	result.Applied = true
	return result, nil
}

// Item returns the named item together with the caller's holding.
func (s *TradeService) Item(ctx context.Context, guildID, userID, name string) (*domain.ItemView, error) {
	if err := validateViewer(guildID, userID); err != nil {
		return nil, err
	}
	item, err := s.catalog.FindItem(ctx, guildID, name)
	if err != nil {
		return nil, fmt.Errorf("find item: %w", err)
	}
	if item == nil {
		return nil, domain.Reject(domain.RejectItemNotFound)
	}
	return &domain.ItemView{
		Item:  *item,
		Owned: item.Owned(domain.NewOwnerKey(guildID, userID)),
	}, nil
}

// Items lists the guild catalog with the caller's holdings, in catalog order.
func (s *TradeService) Items(ctx context.Context, guildID, userID string) ([]domain.ItemView, error) {
	if err := validateViewer(guildID, userID); err != nil {
		return nil, err
	}
	items, err := s.catalog.FindItems(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("find items: %w", err)
	}

	key := domain.NewOwnerKey(guildID, userID)
	views := make([]domain.ItemView, 0, len(items))
	for _, item := range items {
		views = append(views, domain.ItemView{Item: item, Owned: item.Owned(key)})
	}
	return views, nil
}

// Backpack lists what the user holds in the guild, in catalog order.
func (s *TradeService) Backpack(ctx context.Context, guildID, userID string) ([]domain.Holding, error) {
	key := domain.NewOwnerKey(guildID, userID)
	if !key.Valid() {
		return nil, domain.Reject(domain.RejectInvalidIdentity)
	}
	items, err := s.catalog.FindOwnedItems(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("find owned items: %w", err)
	}

	holdings := make([]domain.Holding, 0, len(items))
	for _, item := range items {
		n := item.Owned(key)
		if n <= 0 {
			continue
		}
		holdings = append(holdings, domain.Holding{ItemName: item.Name, Quantity: n, Max: item.Max})
	}
	return holdings, nil
}

// validateViewer checks the identity of a read-only caller. An anonymous
// viewer (empty user) is allowed and simply owns nothing.
func validateViewer(guildID, userID string) error {
	if !domain.ValidID(guildID) || (userID != "" && !domain.ValidID(userID)) {
		return domain.Reject(domain.RejectInvalidIdentity)
	}
	return nil
}

// load validates the request and fetches fresh state for it. Every decision
// in Buy and Sell is derived from these two reads.
func (s *TradeService) load(ctx context.Context, req domain.TransactionRequest) (*domain.Item, *domain.Account, error) {
	if req.Count <= 0 {
		return nil, nil, domain.Reject(domain.RejectInvalidQuantity)
	}
	if !req.OwnerKey().Valid() {
		return nil, nil, domain.Reject(domain.RejectInvalidIdentity)
	}

	item, err := s.catalog.FindItem(ctx, req.GuildID, req.ItemName)
	if err != nil {
		return nil, nil, fmt.Errorf("find item: %w", err)
	}
	if item == nil {
		return nil, nil, domain.Reject(domain.RejectItemNotFound)
	}

	acct, err := s.accounts.FindUser(ctx, req.GuildID, req.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("find user: %w", err)
	}
	if acct == nil {
		return nil, nil, domain.Reject(domain.RejectUserNotFound)
	}

	return item, acct, nil
}

func (s *TradeService) applyBalance(ctx context.Context, req domain.TransactionRequest, newBalance int64, expectChange bool) error {
	conf, err := s.accounts.UpdateUserBalance(ctx, req.GuildID, req.UserID, newBalance)
	if err == nil && conf.Confirmed(expectChange) {
		return nil
	}
	if err == nil {
		err = fmt.Errorf("balance update not confirmed (matched=%t modified=%t)", conf.Matched, conf.Modified)
	}

	log.Printf("CRITICAL: %s %d %q for %s applied to catalog but balance update failed: %v",
		req.Kind, req.Count, req.ItemName, req.OwnerKey(), err)
	return domain.RejectWithCause(domain.RejectPartialApplyBalanceFailed, err)
}
