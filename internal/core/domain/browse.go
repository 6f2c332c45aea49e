package domain

import "fmt"

type SignalKind string

const (
	SignalFirst SignalKind = "first"
	SignalPrev  SignalKind = "prev"
	SignalNext  SignalKind = "next"
	SignalLast  SignalKind = "last"
	SignalOther SignalKind = "other"
)

// ParseSignalKind maps a raw navigation name to a kind. Anything unknown is
// SignalOther.
func ParseSignalKind(raw string) SignalKind {
	switch k := SignalKind(raw); k {
	case SignalFirst, SignalPrev, SignalNext, SignalLast:
		return k
	}
	return SignalOther
}

// Signal is one navigation event coming from the chat gateway.
type Signal struct {
	Kind         SignalKind
	SourceUserID string
}

// Page is what a browsing session asks the presentation layer to show.
type Page struct {
	SessionID string
	Item      Item
	Owned     int64
	Position  int // 1-based
	Total     int
}

func (p Page) Footer() string {
	return fmt.Sprintf("%d of %d", p.Position, p.Total)
}
