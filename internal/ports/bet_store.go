package ports

import (
	"context"

	"github.com/bft-labs/lottery/internal/domain"
)

// BetStore is the shared, append-only ledger of every bet the server accepted.
// Implementations must be safe for concurrent use: appends and scans are
// mutually exclusive and an append is all-or-nothing.
type BetStore interface {
	// Append writes every bet in order. Either all of them are persisted or
	// none are; failures wrap domain.ErrStoreUnavailable.
	Append(ctx context.Context, bets []domain.Bet) error

	// Scan returns every bet ever appended.
	Scan(ctx context.Context) ([]domain.Bet, error)

	// Close releases the underlying medium. Later calls fail.
	Close() error
}
