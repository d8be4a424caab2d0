// Package barrier implements the draw gate: a one-shot countdown over agency
// completions that releases every current and future waiter exactly once.
package barrier

import (
	"context"
	"sync"
)

// Barrier opens after a fixed number of distinct agencies report completion.
// The zero value is not usable; construct with New.
type Barrier struct {
	mu        sync.Mutex
	remaining int
	finished  map[int]struct{}
	open      chan struct{}
}

// New returns a barrier waiting on agencyCount agencies. A non-positive count
// yields a barrier that is already open.
func New(agencyCount int) *Barrier {
	b := &Barrier{
		remaining: agencyCount,
		finished:  make(map[int]struct{}),
		open:      make(chan struct{}),
	}
	if agencyCount <= 0 {
		b.remaining = 0
		close(b.open)
	}
	return b
}

// MarkDone records that agency finished submitting. It returns counted=false
// when the agency was already recorded, and opened=true only for the call
// that opened the barrier. Calls after the barrier opened are tolerated and
// leave it open.
func (b *Barrier) MarkDone(agency int) (counted, opened bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, dup := b.finished[agency]; dup {
		return false, false
	}
	b.finished[agency] = struct{}{}

	if b.remaining == 0 {
		return true, false
	}
	b.remaining--
	if b.remaining == 0 {
		close(b.open)
		return true, true
	}
	return true, false
}

// Wait blocks until the barrier is open or ctx is done. It returns
// immediately once the barrier has opened.
func (b *Barrier) Wait(ctx context.Context) error {
	select {
	case <-b.open:
		return nil
	default:
	}
	select {
	case <-b.open:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed when the barrier opens.
func (b *Barrier) Done() <-chan struct{} {
	return b.open
}

// IsOpen reports whether the draw happened.
func (b *Barrier) IsOpen() bool {
	select {
	case <-b.open:
		return true
	default:
		return false
	}
}

// Remaining returns how many agencies have yet to finish.
func (b *Barrier) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}
