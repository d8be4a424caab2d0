package ports

import (
	"io"

	"github.com/bft-labs/lottery/internal/domain"
)

// BetSource yields an agency's local bets in file order.
type BetSource interface {
	// Next returns the next bet.
	// Returns io.EOF when the source is exhausted.
	Next() (domain.Bet, error)

	// Close releases the underlying file.
	Close() error
}

// ErrNoMoreBets indicates that the source is exhausted.
var ErrNoMoreBets = io.EOF
