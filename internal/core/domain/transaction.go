package domain

type TransactionKind string

const (
	TransactionBuy  TransactionKind = "buy"
	TransactionSell TransactionKind = "sell"
)

type TransactionRequest struct {
	Kind     TransactionKind
	GuildID  string
	UserID   string
	ItemName string
	Count    int64
}

func (r TransactionRequest) OwnerKey() OwnerKey {
	return NewOwnerKey(r.GuildID, r.UserID)
}

// TransactionResult is the post-state of an applied buy or sell.
// NewSupply is nil when the item has infinite supply.
type TransactionResult struct {
	Kind       TransactionKind
	ItemName   string
	Count      int64
	Amount     int64 // paid on buy, received on sell
	NewBalance int64
	NewOwned   int64
	NewSupply  *int64
	Applied    bool
}

// Confirmation is a store's answer to a targeted update.
type Confirmation struct {
	Matched  bool
	Modified bool
}

// Confirmed reports whether the update found its record and, when a change
// was expected, actually changed it.
func (c Confirmation) Confirmed(expectChange bool) bool {
	if !c.Matched {
		return false
	}
	return c.Modified || !expectChange
}
