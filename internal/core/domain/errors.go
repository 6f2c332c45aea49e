package domain

import "fmt"

type RejectionKind string

const (
	RejectInvalidQuantity           RejectionKind = "invalid_quantity"
	RejectInvalidIdentity           RejectionKind = "invalid_identity"
	RejectItemNotFound              RejectionKind = "item_not_found"
	RejectUserNotFound              RejectionKind = "user_not_found"
	RejectAlreadyAtCap              RejectionKind = "already_at_cap"
	RejectInsufficientSupply        RejectionKind = "insufficient_supply"
	RejectExceedsMax                RejectionKind = "exceeds_max"
	RejectInsufficientFunds         RejectionKind = "insufficient_funds"
	RejectInsufficientOwned         RejectionKind = "insufficient_owned"
	RejectCatalogUpdateRejected     RejectionKind = "catalog_update_rejected"
	RejectPartialApplyBalanceFailed RejectionKind = "partial_apply_balance_failed"
)

// RejectionError is a typed refusal of a transaction. Two rejections are
// equal under errors.Is when their kinds match, so the exported sentinels
// below can be used as targets.
type RejectionError struct {
	Kind    RejectionKind
	Ceiling int64 // largest count the caller could use instead, when HasCeiling
	Cause   error
}

var (
	ErrInvalidQuantity           = &RejectionError{Kind: RejectInvalidQuantity}
	ErrInvalidIdentity           = &RejectionError{Kind: RejectInvalidIdentity}
	ErrItemNotFound              = &RejectionError{Kind: RejectItemNotFound}
	ErrUserNotFound              = &RejectionError{Kind: RejectUserNotFound}
	ErrAlreadyAtCap              = &RejectionError{Kind: RejectAlreadyAtCap}
	ErrInsufficientSupply        = &RejectionError{Kind: RejectInsufficientSupply}
	ErrExceedsMax                = &RejectionError{Kind: RejectExceedsMax}
	ErrInsufficientFunds         = &RejectionError{Kind: RejectInsufficientFunds}
	ErrInsufficientOwned         = &RejectionError{Kind: RejectInsufficientOwned}
	ErrCatalogUpdateRejected     = &RejectionError{Kind: RejectCatalogUpdateRejected}
	ErrPartialApplyBalanceFailed = &RejectionError{Kind: RejectPartialApplyBalanceFailed}
)

func Reject(kind RejectionKind) *RejectionError {
	return &RejectionError{Kind: kind}
}

func RejectWithCeiling(kind RejectionKind, ceiling int64) *RejectionError {
	if ceiling < 0 {
		ceiling = 0
	}
	return &RejectionError{Kind: kind, Ceiling: ceiling}
}

func RejectWithCause(kind RejectionKind, cause error) *RejectionError {
	return &RejectionError{Kind: kind, Cause: cause}
}

func (e *RejectionError) Error() string {
	msg := string(e.Kind)
	if e.HasCeiling() {
		msg = fmt.Sprintf("%s (ceiling %d)", msg, e.Ceiling)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *RejectionError) Unwrap() error {
	return e.Cause
}

func (e *RejectionError) Is(target error) bool {
	if t, ok := target.(*RejectionError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// HasCeiling reports whether the kind carries a purchasable/sellable ceiling.
func (e *RejectionError) HasCeiling() bool {
	switch e.Kind {
	case RejectInsufficientSupply, RejectExceedsMax, RejectInsufficientOwned:
		return true
	}
	return false
}

// Retryable marks failures where the caller may safely re-issue a request
// after checking state, as opposed to validation refusals.
func (e *RejectionError) Retryable() bool {
	return e.Kind == RejectPartialApplyBalanceFailed || e.Kind == RejectCatalogUpdateRejected
}
