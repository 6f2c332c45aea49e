package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/rl1809/guild-economy/internal/core/domain"
	"github.com/rl1809/guild-economy/internal/testkit/storefakes"
)

const (
	testGuild = "guild-1"
	testUser  = "user-1"
)

func sword(supply *int64) domain.Item {
	return domain.Item{
		GuildID:     testGuild,
		Name:        "Sword",
		Description: "pointy",
		Cost:        100,
		Max:         3,
		Supply:      supply,
		Owners:      map[string]int64{},
	}
}

func account(balance int64) domain.Account {
	acct := domain.NewAccount(testGuild, testUser)
	acct.Balance = balance
	return acct
}

func request(kind domain.TransactionKind, count int64) domain.TransactionRequest {
	return domain.TransactionRequest{
		Kind:     kind,
		GuildID:  testGuild,
		UserID:   testUser,
		ItemName: "Sword",
		Count:    count,
	}
}

func newTradeFixture(item domain.Item, balance int64) (*TradeService, *storefakes.Catalog, *storefakes.Accounts) {
	catalog := storefakes.NewCatalog(item)
	accounts := storefakes.NewAccounts(account(balance))
	return NewTradeService(catalog, accounts), catalog, accounts
}

func expectRejection(t *testing.T, err error, kind domain.RejectionKind, ceiling int64) {
	t.Helper()
	var rej *domain.RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("expected rejection %s, got: %v", kind, err)
	}
	if rej.Kind != kind {
		t.Fatalf("expected rejection %s, got %s", kind, rej.Kind)
	}
	if rej.HasCeiling() && rej.Ceiling != ceiling {
		t.Errorf("expected ceiling %d, got %d", ceiling, rej.Ceiling)
	}
}

func TestBuySell_SwordScenario(t *testing.T) {
	svc, catalog, _ := newTradeFixture(sword(domain.Supply(5)), 250)
	ctx := context.Background()

	res, err := svc.Buy(ctx, request(domain.TransactionBuy, 2))
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if res.NewOwned != 2 || res.NewBalance != 50 || res.NewSupply == nil || *res.NewSupply != 3 {
		t.Errorf("unexpected buy result: owned=%d balance=%d supply=%v", res.NewOwned, res.NewBalance, res.NewSupply)
	}

	_, err = svc.Buy(ctx, request(domain.TransactionBuy, 2))
	expectRejection(t, err, domain.RejectExceedsMax, 1)

	res, err = svc.Sell(ctx, request(domain.TransactionSell, 1))
	if err != nil {
		t.Fatalf("sell failed: %v", err)
	}
	if res.NewOwned != 1 || res.NewBalance != 130 || *res.NewSupply != 4 {
		t.Errorf("unexpected sell result: owned=%d balance=%d supply=%d", res.NewOwned, res.NewBalance, *res.NewSupply)
	}

	item, _ := catalog.FindItem(ctx, testGuild, "Sword")
	if item.Owned(domain.NewOwnerKey(testGuild, testUser)) != 1 || *item.Supply != 4 {
		t.Errorf("store not updated: owners=%v supply=%d", item.Owners, *item.Supply)
	}
}

func TestBuy_InfiniteSupplyStillCapped(t *testing.T) {
	item := sword(nil)
	item.Max = 5
	svc, _, _ := newTradeFixture(item, 1<<40)

	_, err := svc.Buy(context.Background(), request(domain.TransactionBuy, 1_000_000))
	expectRejection(t, err, domain.RejectExceedsMax, 5)
}

func TestBuy_InfiniteSupplyLeavesSupplyNil(t *testing.T) {
	svc, catalog, _ := newTradeFixture(sword(nil), 1000)

	res, err := svc.Buy(context.Background(), request(domain.TransactionBuy, 3))
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if res.NewSupply != nil {
		t.Errorf("expected nil supply, got %d", *res.NewSupply)
	}
	item, _ := catalog.FindItem(context.Background(), testGuild, "Sword")
	if !item.InfiniteSupply() {
		t.Error("expected supply to stay infinite")
	}
}

func TestBuy_AlreadyAtCap(t *testing.T) {
	item := sword(domain.Supply(10))
	item.Owners[domain.NewOwnerKey(testGuild, testUser).String()] = 3
	svc, _, _ := newTradeFixture(item, 1000)

	_, err := svc.Buy(context.Background(), request(domain.TransactionBuy, 1))
	if !errors.Is(err, domain.ErrAlreadyAtCap) {
		t.Errorf("expected ErrAlreadyAtCap, got: %v", err)
	}
}

func TestBuy_InsufficientSupplyCeiling(t *testing.T) {
	tests := []struct {
		name    string
		supply  int64
		max     int64
		owned   int64
		count   int64
		ceiling int64
	}{
		{"supply binds", 2, 10, 1, 5, 1},
		{"cap binds", 8, 4, 1, 9, 3},
		{"owned above supply clamps to zero", 1, 10, 4, 2, 0},
		{"sold out", 0, 3, 0, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := sword(domain.Supply(tt.supply))
			item.Max = tt.max
			if tt.owned > 0 {
				item.Owners[domain.NewOwnerKey(testGuild, testUser).String()] = tt.owned
			}
			svc, _, _ := newTradeFixture(item, 1<<40)

			_, err := svc.Buy(context.Background(), request(domain.TransactionBuy, tt.count))
			expectRejection(t, err, domain.RejectInsufficientSupply, tt.ceiling)
		})
	}
}

func TestBuy_InsufficientFunds(t *testing.T) {
	svc, catalog, accounts := newTradeFixture(sword(domain.Supply(5)), 199)

	_, err := svc.Buy(context.Background(), request(domain.TransactionBuy, 2))
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got: %v", err)
	}
	if catalog.OwnerUpdates != 0 || accounts.BalanceUpdates != 0 {
		t.Error("expected no writes on rejection")
	}
}

func TestBuy_InvalidQuantityBeforeLookup(t *testing.T) {
	svc := NewTradeService(storefakes.NewCatalog(), storefakes.NewAccounts())

	for _, count := range []int64{0, -1} {
		_, err := svc.Buy(context.Background(), request(domain.TransactionBuy, count))
		if !errors.Is(err, domain.ErrInvalidQuantity) {
			t.Errorf("count %d: expected ErrInvalidQuantity, got: %v", count, err)
		}
	}
}

func TestBuy_NotFound(t *testing.T) {
	svc := NewTradeService(storefakes.NewCatalog(sword(nil)), storefakes.NewAccounts())

	req := request(domain.TransactionBuy, 1)
	req.ItemName = "Shield"
	if _, err := svc.Buy(context.Background(), req); !errors.Is(err, domain.ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got: %v", err)
	}

	if _, err := svc.Buy(context.Background(), request(domain.TransactionBuy, 1)); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got: %v", err)
	}
}

func TestBuy_CatalogUpdateRejected(t *testing.T) {
	svc, catalog, accounts := newTradeFixture(sword(domain.Supply(5)), 250)
	catalog.RejectOwnerUpdates = true

	_, err := svc.Buy(context.Background(), request(domain.TransactionBuy, 1))
	if !errors.Is(err, domain.ErrCatalogUpdateRejected) {
		t.Errorf("expected ErrCatalogUpdateRejected, got: %v", err)
	}
	if accounts.BalanceUpdates != 0 {
		t.Error("balance must not be touched when the catalog update is not confirmed")
	}
}

func TestBuy_CatalogStoreError(t *testing.T) {
	svc, catalog, accounts := newTradeFixture(sword(domain.Supply(5)), 250)
	catalog.FailOwnerUpdates = true

	_, err := svc.Buy(context.Background(), request(domain.TransactionBuy, 1))
	if !errors.Is(err, storefakes.ErrInjected) {
		t.Errorf("expected wrapped store error, got: %v", err)
	}
	if accounts.BalanceUpdates != 0 {
		t.Error("balance must not be touched after a catalog failure")
	}
}

func TestBuy_PartialApplyBalanceFailed(t *testing.T) {
	svc, catalog, accounts := newTradeFixture(sword(domain.Supply(5)), 250)
	accounts.RejectBalanceUpdates = true
	ctx := context.Background()

	_, err := svc.Buy(ctx, request(domain.TransactionBuy, 1))
	if !errors.Is(err, domain.ErrPartialApplyBalanceFailed) {
		t.Fatalf("expected ErrPartialApplyBalanceFailed, got: %v", err)
	}
	var rej *domain.RejectionError
	if errors.As(err, &rej) && !rej.Retryable() {
		t.Error("partial apply should be retryable")
	}

	item, _ := catalog.FindItem(ctx, testGuild, "Sword")
	if item.Owned(domain.NewOwnerKey(testGuild, testUser)) != 1 {
		t.Error("catalog change should remain applied")
	}
	acct, _ := accounts.FindUser(ctx, testGuild, testUser)
	if acct.Balance != 250 {
		t.Errorf("expected untouched balance 250, got %d", acct.Balance)
	}
}

func TestBuy_PartialApplyOnStoreError(t *testing.T) {
	svc, _, accounts := newTradeFixture(sword(domain.Supply(5)), 250)
	accounts.FailBalanceUpdates = true

	_, err := svc.Buy(context.Background(), request(domain.TransactionBuy, 1))
	if !errors.Is(err, domain.ErrPartialApplyBalanceFailed) || !errors.Is(err, storefakes.ErrInjected) {
		t.Errorf("expected partial apply wrapping the store error, got: %v", err)
	}
}

func TestBuy_FreeItemDoesNotNeedBalanceChange(t *testing.T) {
	item := sword(nil)
	item.Cost = 0
	svc, _, _ := newTradeFixture(item, 0)

	res, err := svc.Buy(context.Background(), request(domain.TransactionBuy, 1))
	if err != nil {
		t.Fatalf("buy of free item failed: %v", err)
	}
	if res.NewBalance != 0 || res.NewOwned != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestSell_RemovesOwnerEntry(t *testing.T) {
	item := sword(domain.Supply(1))
	key := domain.NewOwnerKey(testGuild, testUser)
	item.Owners[key.String()] = 2
	svc, catalog, _ := newTradeFixture(item, 0)
	ctx := context.Background()

	res, err := svc.Sell(ctx, request(domain.TransactionSell, 2))
	if err != nil {
		t.Fatalf("sell failed: %v", err)
	}
	if res.NewOwned != 0 || res.NewBalance != 160 || *res.NewSupply != 3 {
		t.Errorf("unexpected result: %+v", res)
	}

	stored, _ := catalog.FindItem(ctx, testGuild, "Sword")
	if _, present := stored.Owners[key.String()]; present {
		t.Error("owner entry should be removed, not zeroed")
	}
}

func TestSell_InsufficientOwned(t *testing.T) {
	item := sword(nil)
	item.Owners[domain.NewOwnerKey(testGuild, testUser).String()] = 1
	svc, _, _ := newTradeFixture(item, 0)

	_, err := svc.Sell(context.Background(), request(domain.TransactionSell, 2))
	expectRejection(t, err, domain.RejectInsufficientOwned, 1)

	_, err = svc.Sell(context.Background(), request(domain.TransactionSell, 0))
	if !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got: %v", err)
	}
}

func TestSell_PartialApplyBalanceFailed(t *testing.T) {
	item := sword(domain.Supply(0))
	item.Owners[domain.NewOwnerKey(testGuild, testUser).String()] = 1
	svc, _, accounts := newTradeFixture(item, 0)
	accounts.RejectBalanceUpdates = true

	_, err := svc.Sell(context.Background(), request(domain.TransactionSell, 1))
	if !errors.Is(err, domain.ErrPartialApplyBalanceFailed) {
		t.Errorf("expected ErrPartialApplyBalanceFailed, got: %v", err)
	}
}

func TestSellProceeds_Rounding(t *testing.T) {
	tests := []struct {
		cost, count, want int64
	}{
		{1, 1, 1},   // 0.8
		{2, 1, 2},   // 1.6
		{3, 1, 2},   // 2.4
		{1, 3, 2},   // 2.4
		{7, 1, 6},   // 5.6
		{9, 1, 7},   // 7.2
		{100, 1, 80},
		{0, 4, 0},
	}
	for _, tt := range tests {
		if got := sellProceeds(tt.cost, tt.count); got != tt.want {
			t.Errorf("sellProceeds(%d, %d) = %d, want %d", tt.cost, tt.count, got, tt.want)
		}
	}
}

func TestBuyThenSell_NeverProfits(t *testing.T) {
	for cost := int64(0); cost <= 50; cost++ {
		for count := int64(1); count <= 4; count++ {
			item := sword(nil)
			item.Cost = cost
			item.Max = 4
			svc, _, _ := newTradeFixture(item, 1000)
			ctx := context.Background()

			if _, err := svc.Buy(ctx, request(domain.TransactionBuy, count)); err != nil {
				t.Fatalf("cost %d count %d: buy failed: %v", cost, count, err)
			}
			res, err := svc.Sell(ctx, request(domain.TransactionSell, count))
			if err != nil {
				t.Fatalf("cost %d count %d: sell failed: %v", cost, count, err)
			}
			if res.NewBalance > 1000 {
				t.Errorf("cost %d count %d: ended with %d > 1000", cost, count, res.NewBalance)
			}
		}
	}
}

func TestSupplyConservation(t *testing.T) {
	const total = 12
	item := sword(domain.Supply(total))
	item.Max = 6
	catalog := storefakes.NewCatalog(item)
	users := []string{"a", "b", "c"}
	var accts []domain.Account
	for _, u := range users {
		acct := domain.NewAccount(testGuild, u)
		acct.Balance = 10_000
		accts = append(accts, acct)
	}
	svc := NewTradeService(catalog, storefakes.NewAccounts(accts...))
	ctx := context.Background()

	steps := []struct {
		kind  domain.TransactionKind
		user  string
		count int64
	}{
		{domain.TransactionBuy, "a", 4},
		{domain.TransactionBuy, "b", 6},
		{domain.TransactionBuy, "c", 3}, // insufficient supply
		{domain.TransactionSell, "a", 1},
		{domain.TransactionBuy, "c", 3},
		{domain.TransactionSell, "b", 6},
		{domain.TransactionSell, "c", 4}, // insufficient owned
		{domain.TransactionBuy, "b", 2},
	}

	for i, step := range steps {
		req := domain.TransactionRequest{Kind: step.kind, GuildID: testGuild, UserID: step.user, ItemName: "Sword", Count: step.count}
		_, _ = svc.Execute(ctx, req)

		got, _ := catalog.FindItem(ctx, testGuild, "Sword")
		if sum := *got.Supply + got.TotalOwned(); sum != total {
			t.Fatalf("step %d: supply %d + owned %d = %d, want %d", i, *got.Supply, got.TotalOwned(), sum, total)
		}
		for k, n := range got.Owners {
			if n <= 0 || n > got.Max {
				t.Fatalf("step %d: owner %s holds %d", i, k, n)
			}
		}
	}
}

func TestBuy_PostStateProperty(t *testing.T) {
	for owned := int64(0); owned < 5; owned++ {
		for count := int64(1); owned+count <= 5; count++ {
			item := sword(domain.Supply(20))
			item.Max = 5
			item.Cost = 7
			if owned > 0 {
				item.Owners[domain.NewOwnerKey(testGuild, testUser).String()] = owned
			}
			svc, _, _ := newTradeFixture(item, 100)

			res, err := svc.Buy(context.Background(), request(domain.TransactionBuy, count))
			if err != nil {
				t.Fatalf("owned %d count %d: %v", owned, count, err)
			}
			if res.NewOwned != owned+count || res.NewBalance != 100-7*count || *res.NewSupply != 20-count {
				t.Errorf("owned %d count %d: unexpected post-state %+v", owned, count, res)
			}
		}
	}
}

// Concurrent buyers share no lock: each call runs check-then-act against its
// own read. The fake serializes single writes only, which mirrors the store.
func TestBuy_ConcurrentCallsComplete(t *testing.T) {
	item := sword(nil)
	item.Max = 1
	catalog := storefakes.NewCatalog(item)
	var accts []domain.Account
	for i := 0; i < 20; i++ {
		acct := domain.NewAccount(testGuild, string(rune('a'+i)))
		acct.Balance = 100
		accts = append(accts, acct)
	}
	svc := NewTradeService(catalog, storefakes.NewAccounts(accts...))

	var wg sync.WaitGroup
	errs := make(chan error, len(accts))
	for _, acct := range accts {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			req := domain.TransactionRequest{Kind: domain.TransactionBuy, GuildID: testGuild, UserID: userID, ItemName: "Sword", Count: 1}
			if _, err := svc.Buy(context.Background(), req); err != nil {
				errs <- err
			}
		}(acct.UserID)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}
	got, _ := catalog.FindItem(context.Background(), testGuild, "Sword")
	if len(got.Owners) != len(accts) {
		t.Errorf("expected %d owners, got %d", len(accts), len(got.Owners))
	}
}

func TestItemAndBackpack(t *testing.T) {
	key := domain.NewOwnerKey(testGuild, testUser)
	a := sword(nil)
	a.Owners[key.String()] = 2
	b := sword(domain.Supply(3))
	b.Name = "Shield"
	c := sword(nil)
	c.Name = "Bow"
	svc := NewTradeService(storefakes.NewCatalog(a, b, c), storefakes.NewAccounts())
	ctx := context.Background()

	view, err := svc.Item(ctx, testGuild, testUser, "Sword")
	if err != nil {
		t.Fatalf("item failed: %v", err)
	}
	if view.Owned != 2 {
		t.Errorf("expected owned 2, got %d", view.Owned)
	}
	if _, err := svc.Item(ctx, testGuild, testUser, "Axe"); !errors.Is(err, domain.ErrItemNotFound) {
		t.Errorf("expected ErrItemNotFound, got: %v", err)
	}

	holdings, err := svc.Backpack(ctx, testGuild, testUser)
	if err != nil {
		t.Fatalf("backpack failed: %v", err)
	}
	if len(holdings) != 1 || holdings[0].ItemName != "Sword" || holdings[0].Quantity != 2 {
		t.Errorf("unexpected backpack: %+v", holdings)
	}

	views, err := svc.Items(ctx, testGuild, testUser)
	if err != nil {
		t.Fatalf("items failed: %v", err)
	}
	if len(views) != 3 || views[0].Owned != 2 || views[1].Item.Name != "Shield" || views[2].Owned != 0 {
		t.Errorf("unexpected catalog listing: %+v", views)
	}
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{"", 1, false},
		{"3", 3, false},
		{" 7 ", 7, false},
		{"0", 0, true},
		{"-2", 0, true},
		{"two", 0, true},
		{"1.5", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseQuantity(tt.raw)
		if tt.wantErr {
			if !errors.Is(err, domain.ErrInvalidQuantity) {
				t.Errorf("ParseQuantity(%q): expected ErrInvalidQuantity, got %v", tt.raw, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseQuantity(%q) = %d, %v; want %d", tt.raw, got, err, tt.want)
		}
	}
}

func TestBuy_HugeCountOnInfiniteSupply(t *testing.T) {
	for _, cost := range []int64{0, 100} {
		item := sword(nil)
		item.Cost = cost
		item.Max = 5
		item.Owners[domain.NewOwnerKey(testGuild, testUser).String()] = 1
		svc, catalog, accounts := newTradeFixture(item, 250)
		ctx := context.Background()

		_, err := svc.Buy(ctx, request(domain.TransactionBuy, math.MaxInt64))
		expectRejection(t, err, domain.RejectExceedsMax, 4)

		if catalog.OwnerUpdates != 0 || accounts.BalanceUpdates != 0 {
			t.Errorf("cost %d: rejected buy must not write", cost)
		}
		got, _ := catalog.FindItem(ctx, testGuild, "Sword")
		if n := got.Owned(domain.NewOwnerKey(testGuild, testUser)); n != 1 {
			t.Errorf("cost %d: expected owned 1, got %d", cost, n)
		}
	}
}

func TestTrade_RejectsMalformedIdentity(t *testing.T) {
	ids := []string{"a.b", "$set", "", "a b", "owner.x.y"}
	for _, id := range ids {
		item := sword(nil)
		item.Cost = 0
		svc, catalog, accounts := newTradeFixture(item, 250)
		ctx := context.Background()

		for _, kind := range []domain.TransactionKind{domain.TransactionBuy, domain.TransactionSell} {
			req := request(kind, 1)
			req.UserID = id
			_, err := svc.Execute(ctx, req)
			if !errors.Is(err, domain.ErrInvalidIdentity) {
				t.Errorf("%s by %q: expected ErrInvalidIdentity, got: %v", kind, id, err)
			}
		}
		if _, err := svc.Backpack(ctx, testGuild, id); !errors.Is(err, domain.ErrInvalidIdentity) {
			t.Errorf("backpack of %q: expected ErrInvalidIdentity, got: %v", id, err)
		}
		if catalog.OwnerUpdates != 0 || accounts.BalanceUpdates != 0 {
			t.Errorf("%q: no store write expected", id)
		}
	}

	svc, _, _ := newTradeFixture(sword(nil), 250)
	if _, err := svc.Item(context.Background(), "guild.1", testUser, "Sword"); !errors.Is(err, domain.ErrInvalidIdentity) {
		t.Errorf("expected ErrInvalidIdentity for a dotted guild, got: %v", err)
	}
	if _, err := svc.Items(context.Background(), testGuild, ""); err != nil {
		t.Errorf("anonymous listing should be allowed, got: %v", err)
	}
}
