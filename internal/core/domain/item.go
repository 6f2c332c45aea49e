package domain

import "time"

// OwnerKey identifies a user inside a guild. It keys the owners map of an item.
type OwnerKey struct {
	GuildID string
	UserID  string
}

func NewOwnerKey(guildID, userID string) OwnerKey {
	return OwnerKey{GuildID: guildID, UserID: userID}
}

// String renders the key the way it is stored in an item's owners map.
func (k OwnerKey) String() string {
	return k.GuildID + "-" + k.UserID
}

const maxIDLength = 64

// ValidID reports whether id can be used as a guild or user identifier.
// Owner keys become document field names, so only letters, digits, '_' and
// '-' are allowed.
func ValidID(id string) bool {
	if id == "" || len(id) > maxIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}

func (k OwnerKey) Valid() bool {
	return ValidID(k.GuildID) && ValidID(k.UserID)
}

type PriceRange struct {
	Min int64 // percent
	Max int64 // percent
}

type Item struct {
	GuildID     string
	Name        string
	Description string
	Cost        int64
	Max         int64
	Supply      *int64 // nil means infinite
	Owners      map[string]int64
	AvgPrice    int64
	Multipliers PriceRange
	UpdatedAt   time.Time
}

// Owned returns the quantity held by key. A missing entry counts as zero.
func (i *Item) Owned(key OwnerKey) int64 {
	if i.Owners == nil {
		return 0
	}
	return i.Owners[key.String()]
}

func (i *Item) InfiniteSupply() bool {
	return i.Supply == nil
}

// TotalOwned sums every owner entry of the item.
func (i *Item) TotalOwned() int64 {
	var total int64
	for _, n := range i.Owners {
		total += n
	}
	return total
}

// Supply returns a pointer to a finite supply value.
func Supply(n int64) *int64 {
	return &n
}

// ItemView is an item as seen by one user.
type ItemView struct {
	Item  Item
	Owned int64
}

// Holding is one line of a user's backpack.
type Holding struct {
	ItemName string
	Quantity int64
	Max      int64
}
