package domain

// Batch is a group of bets ready to be sent together.
// It maintains the invariant that Bets and Sizes have the same length.
type Batch struct {
	// Bets contains the bets in submission order.
	Bets []Bet

	// Sizes contains the encoded size of each bet's payload, length prefix included.
	Sizes []int

	// TotalBytes is the sum of Sizes.
	TotalBytes int
}

// NewBatch creates a new empty batch.
func NewBatch() *Batch {
	return &Batch{
		Bets:  make([]Bet, 0),
		Sizes: make([]int, 0),
	}
}

// Add appends a bet and its encoded size to the batch.
func (b *Batch) Add(bet Bet, size int) {
	b.Bets = append(b.Bets, bet)
	b.Sizes = append(b.Sizes, size)
	b.TotalBytes += size
}

// Size returns the number of bets in the batch.
func (b *Batch) Size() int {
	return len(b.Bets)
}

// Empty returns true if the batch has no bets.
func (b *Batch) Empty() bool {
	return len(b.Bets) == 0
}

// Reset clears the batch for reuse.
func (b *Batch) Reset() {
	b.Bets = b.Bets[:0]
	b.Sizes = b.Sizes[:0]
	b.TotalBytes = 0
}

// LastBet returns the last bet in the batch, or nil if empty.
func (b *Batch) LastBet() *Bet {
	if len(b.Bets) == 0 {
		return nil
	}
	return &b.Bets[len(b.Bets)-1]
}
