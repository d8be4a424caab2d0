package fs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bft-labs/lottery/internal/domain"
	"github.com/bft-labs/lottery/internal/protocol"
)

// BetSource implements ports.BetSource over an agency's local bets file:
// newline-terminated first_name,last_name,document,birthdate,number records.
// The agency is not part of the record; it is supplied by the caller.
type BetSource struct {
	rc     io.ReadCloser
	r      *bufio.Reader
	agency int
	line   int
}

// NewBetSource reads records for agency from rc.
func NewBetSource(rc io.ReadCloser, agency int) *BetSource {
	return &BetSource{rc: rc, r: bufio.NewReader(rc), agency: agency}
}

// OpenBetSource opens the bets file at path for agency.
func OpenBetSource(path string, agency int) (*BetSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bets file: %w", err)
	}
	return NewBetSource(f, agency), nil
}

// Next returns the next bet. Blank lines are skipped. Returns io.EOF once the
// file is exhausted.
func (s *BetSource) Next() (domain.Bet, error) {
	for {
		raw, err := s.r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return domain.Bet{}, fmt.Errorf("read bets file: %w", err)
		}
		if raw == "" && err != nil {
			return domain.Bet{}, io.EOF
		}
		s.line++

		record := strings.TrimRight(raw, "\r\n")
		if strings.TrimSpace(record) == "" {
			if err != nil {
				return domain.Bet{}, io.EOF
			}
			continue
		}
		bet, derr := protocol.DecodeBet([]byte(record), s.agency)
		if derr != nil {
			return domain.Bet{}, fmt.Errorf("bets file line %d: %w", s.line, derr)
		}
		return bet, nil
	}
}

// Close closes the underlying file.
func (s *BetSource) Close() error {
	return s.rc.Close()
}
