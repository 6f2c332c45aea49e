package domain

import (
	"errors"
	"time"
)

// ErrAccountExists is returned when provisioning an account that is already there.
var ErrAccountExists = errors.New("account already exists")

type Bank struct {
	Money    int64
	Interest float64
	LastSeen int64
}

type Rewards struct {
	Daily  int64
	Hourly int64
}

// Account is a user's wallet inside one guild. Bank, Rewards and Prestige
// belong to other features and are carried through unchanged.
type Account struct {
	GuildID   string
	UserID    string
	Balance   int64
	Bank      Bank
	Rewards   Rewards
	Prestige  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a *Account) Key() OwnerKey {
	return NewOwnerKey(a.GuildID, a.UserID)
}

// NewAccount returns an account with the defaults used at provisioning time.
func NewAccount(guildID, userID string) Account {
	return Account{
		GuildID: guildID,
		UserID:  userID,
		Bank:    Bank{Interest: 0.01},
	}
}

type LeaderboardEntry struct {
	Rank    int    `json:"rank"`
	UserID  string `json:"user_id"`
	Balance int64  `json:"balance"`
}
