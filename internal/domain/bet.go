package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Bet is one wagered number for one person, submitted by one agency.
// Numeric-looking fields are kept as text so they round-trip exactly.
type Bet struct {
	// Agency identifies the submitting agency. Always positive.
	Agency int

	FirstName string
	LastName  string

	// Document is the bettor's identity number.
	Document string

	// Birthdate is text-encoded, usually YYYY-MM-DD.
	Birthdate string

	// Number is the wagered number.
	Number string
}

// Validate reports whether every field is present and the agency is positive.
func (b Bet) Validate() error {
	if b.Agency <= 0 {
		return fmt.Errorf("agency must be positive, got %d", b.Agency)
	}
	for _, f := range []struct{ name, value string }{
		{"first_name", b.FirstName},
		{"last_name", b.LastName},
		{"document", b.Document},
		{"birthdate", b.Birthdate},
		{"number", b.Number},
	} {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%s is empty", f.name)
		}
	}
	return nil
}

// WinningRule decides whether a bet won the draw. Implementations must be
// deterministic and free of side effects.
type WinningRule func(Bet) bool

// DefaultWinningNumber is the number drawn when none is configured.
const DefaultWinningNumber = 7574

// NumberRule returns a rule under which a bet wins when its number equals
// winning. Numbers are compared numerically so "07574" matches 7574; bets
// whose number does not parse never win.
func NumberRule(winning int) WinningRule {
	return func(b Bet) bool {
		n, err := strconv.Atoi(strings.TrimSpace(b.Number))
		if err != nil {
			return false
		}
		return n == winning
	}
}

// Winners filters bets down to the documents of agency's winning bets, in
// ledger order.
func Winners(bets []Bet, agency int, rule WinningRule) []string {
	var docs []string
	for _, b := range bets {
		if b.Agency == agency && rule(b) {
			docs = append(docs, b.Document)
		}
	}
	return docs
}
