package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/bft-labs/lottery/internal/domain"
	"github.com/bft-labs/lottery/internal/protocol"
)

// ErrBatchTooSmall is returned when a single bet does not fit the configured
// batch ceiling.
var ErrBatchTooSmall = errors.New("batch max size is too small to hold a single bet")

// Batcher accumulates bets until the encoded BET message would exceed the
// configured ceiling.
type Batcher struct {
	batch         *domain.Batch
	maxBatchBytes int
	lastSend      time.Time
}

// NewBatcher creates a new batcher. maxBatchBytes bounds the encoded message,
// kind byte included.
func NewBatcher(maxBatchBytes int) *Batcher {
	return &Batcher{
		batch:         domain.NewBatch(),
		maxBatchBytes: maxBatchBytes,
		lastSend:      time.Now(),
	}
}

// Add adds a bet to the batch. It returns false without adding when the bet
// does not fit next to the bets already batched; the caller should send the
// batch and add the bet again.
func (b *Batcher) Add(bet domain.Bet) (bool, error) {
	size, err := protocol.PayloadSize(protocol.BetPayload{Bet: bet})
	if err != nil {
		return false, err
	}

	// Check if this single bet exceeds the ceiling on its own
	if protocol.HeaderSize+size > b.maxBatchBytes {
		return false, fmt.Errorf("bet %s needs %d bytes, ceiling is %d: %w",
			bet.Document, protocol.HeaderSize+size, b.maxBatchBytes, ErrBatchTooSmall)
	}

	// Check if adding this bet would exceed the ceiling
	if protocol.HeaderSize+b.batch.TotalBytes+size > b.maxBatchBytes {
		return false, nil
	}

	b.batch.Add(bet, size)
	return true, nil
}

// EncodedSize returns the size of the BET message the current batch encodes to.
func (b *Batcher) EncodedSize() int {
	return protocol.HeaderSize + b.batch.TotalBytes
}

// Batch returns the current batch.
func (b *Batcher) Batch() *domain.Batch {
	return b.batch
}

// Reset clears the batch and updates the last send time.
func (b *Batcher) Reset() {
	b.batch.Reset()
	b.lastSend = time.Now()
}

// HasPending returns true if there are bets waiting to be sent.
func (b *Batcher) HasPending() bool {
	return !b.batch.Empty()
}

// TimeSinceLastSend returns the duration since the last send.
func (b *Batcher) TimeSinceLastSend() time.Duration {
	return time.Since(b.lastSend)
}
