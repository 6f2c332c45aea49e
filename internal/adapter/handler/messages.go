package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rl1809/guild-economy/internal/core/domain"
	"github.com/rl1809/guild-economy/internal/core/service"
)

// Quantity accepts a JSON number or string and keeps the raw text for
// service.ParseQuantity.
type Quantity string

func (q *Quantity) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*q = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*q = Quantity(s)
		return nil
	}
	*q = Quantity(b)
	return nil
}

type TradeRequest struct {
	GuildID  string   `json:"guild_id"`
	UserID   string   `json:"user_id"`
	ItemName string   `json:"item_name"`
	Count    Quantity `json:"count"`
}

type TradeResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Kind      string `json:"kind,omitempty"`
	ItemName  string `json:"item_name,omitempty"`
	Count     int64  `json:"count,omitempty"`
	Amount    int64  `json:"amount"`
	Balance   int64  `json:"balance"`
	Owned     int64  `json:"owned"`
	Supply    *int64 `json:"supply"` // null is infinite
	Rejection string `json:"rejection,omitempty"`
	Ceiling   *int64 `json:"ceiling,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

type ItemRequest struct {
	GuildID  string `json:"guild_id"`
	UserID   string `json:"user_id"`
	ItemName string `json:"item_name"`
}

type ItemResponse struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Cost        int64  `json:"cost"`
	Max         int64  `json:"max"`
	Supply      *int64 `json:"supply"`
	Owned       int64  `json:"owned"`
}

type ItemListResponse struct {
	Items []ItemResponse `json:"items"`
}

type BackpackRequest struct {
	GuildID string `json:"guild_id"`
	UserID  string `json:"user_id"`
}

type HoldingResponse struct {
	ItemName string `json:"item_name"`
	Quantity int64  `json:"quantity"`
	Max      int64  `json:"max"`
}

type BackpackResponse struct {
	Holdings []HoldingResponse `json:"holdings"`
}

type AccountResponse struct {
	GuildID  string `json:"guild_id"`
	UserID   string `json:"user_id"`
	Balance  int64  `json:"balance"`
	Bank     int64  `json:"bank"`
	Prestige int64  `json:"prestige"`
}

type LeaderboardRequest struct {
	GuildID string `json:"guild_id"`
}

type LeaderboardResponse struct {
	Entries []domain.LeaderboardEntry `json:"entries"`
}

type SignalRequest struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Kind      string `json:"kind"`
}

type SignalResponse struct {
	Accepted bool `json:"accepted"`
}

type BrowseRequest struct {
	GuildID string `json:"guild_id"`
	UserID  string `json:"user_id"`
}

// BrowseEvent is one message on a browse stream: a page to draw, a consumed
// owner signal, or the end of the session.
type BrowseEvent struct {
	Type      string        `json:"type"`
	SessionID string        `json:"session_id,omitempty"`
	Item      *ItemResponse `json:"item,omitempty"`
	Footer    string        `json:"footer,omitempty"`
	Position  int           `json:"position,omitempty"`
	Total     int           `json:"total,omitempty"`
	Signal    string        `json:"signal,omitempty"`
}

const (
	eventPage   = "page"
	eventAck    = "ack"
	eventClosed = "closed"
)

func itemResponse(item domain.Item, owned int64) ItemResponse {
	return ItemResponse{
		Name:        item.Name,
		Description: item.Description,
		Cost:        item.Cost,
		Max:         item.Max,
		Supply:      item.Supply,
		Owned:       owned,
	}
}

func accountResponse(acct *domain.Account) AccountResponse {
	return AccountResponse{
		GuildID:  acct.GuildID,
		UserID:   acct.UserID,
		Balance:  acct.Balance,
		Bank:     acct.Bank.Money,
		Prestige: acct.Prestige,
	}
}

func tradeResponse(res *domain.TransactionResult) TradeResponse {
	return TradeResponse{
		Success:  res.Applied,
		Kind:     string(res.Kind),
		ItemName: res.ItemName,
		Count:    res.Count,
		Amount:   res.Amount,
		Balance:  res.NewBalance,
		Owned:    res.NewOwned,
		Supply:   res.NewSupply,
	}
}

func rejectionResponse(rej *domain.RejectionError) TradeResponse {
	resp := TradeResponse{
		Success:   false,
		Message:   rej.Error(),
		Rejection: string(rej.Kind),
		Retryable: rej.Retryable(),
	}
	if rej.HasCeiling() {
		ceiling := rej.Ceiling
		resp.Ceiling = &ceiling
	}
	return resp
}

// httpStatus maps a service outcome to a status code.
func httpStatus(err error) int {
	var rej *domain.RejectionError
	switch {
	case errors.Is(err, service.ErrEmptyCatalog), errors.Is(err, service.ErrEmptyLeaderboard),
		errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, domain.ErrAccountExists):
		return http.StatusConflict
	case errors.As(err, &rej):
		switch rej.Kind {
		case domain.RejectInvalidQuantity, domain.RejectInvalidIdentity:
			return http.StatusBadRequest
		case domain.RejectItemNotFound, domain.RejectUserNotFound:
			return http.StatusNotFound
		case domain.RejectPartialApplyBalanceFailed:
			return http.StatusServiceUnavailable
		}
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
