package service

import (
	"strconv"
	"strings"

	"github.com/rl1809/guild-economy/internal/core/domain"
)

// ParseQuantity reads a count typed by a user. An empty value means one.
func ParseQuantity(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 1, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, domain.RejectWithCause(domain.RejectInvalidQuantity, err)
	}
	if n <= 0 {
		return 0, domain.Reject(domain.RejectInvalidQuantity)
	}
	return n, nil
}

// sellProceeds is 80% of cost*count rounded half away from zero. With an
// 8/10 ratio the fractional part is always a multiple of 0.2, so a .5 tie
// cannot occur for integer inputs.
func sellProceeds(cost, count int64) int64 {
	return (cost*count*8 + 5) / 10
}
