package fs

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/bft-labs/lottery/internal/domain"
	"github.com/bft-labs/lottery/internal/protocol"
)

// maxRecordSize bounds a single ledger line when scanning.
const maxRecordSize = 1 << 20

// Ledger implements ports.BetStore as an append-only text file, one bet per
// line in BET payload field order.
//
// Appends and scans are serialized by an in-process mutex and, where the
// platform supports it, an exclusive flock on the file so that several
// processes may share one ledger.
type Ledger struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// OpenLedger opens or creates the ledger at path.
func OpenLedger(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("%w: ledger dir: %v", domain.ErrStoreUnavailable, err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: open ledger: %v", domain.ErrStoreUnavailable, err)
	}
	return &Ledger{path: path, file: f}, nil
}

// Append writes bets with a single write. If the write fails or is short the
// file is truncated back to its previous length so no partial batch remains.
func (l *Ledger) Append(ctx context.Context, bets []domain.Bet) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	for _, b := range bets {
		rec, err := protocol.FormatBetRecord(b)
		if err != nil {
			return fmt.Errorf("format bet %s: %w", b.Document, err)
		}
		buf.Write(rec)
		buf.WriteByte('\n')
	}
	if buf.Len() == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return fmt.Errorf("%w: ledger closed", domain.ErrStoreUnavailable)
	}

	unlock, err := lockFile(l.file)
	if err != nil {
		return fmt.Errorf("%w: lock ledger: %v", domain.ErrStoreUnavailable, err)
	}
	defer unlock()

	info, err := l.file.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat ledger: %v", domain.ErrStoreUnavailable, err)
	}
	prev := info.Size()

	n, err := l.file.Write(buf.Bytes())
	if err == nil && n != buf.Len() {
		err = io.ErrShortWrite
	}
	if err == nil {
		err = l.file.Sync()
	}
	if err != nil {
		_ = l.file.Truncate(prev)
		return fmt.Errorf("%w: append %d bets: %v", domain.ErrStoreUnavailable, len(bets), err)
	}
	return nil
}

// Scan reads every bet in the ledger.
func (l *Ledger) Scan(ctx context.Context) ([]domain.Bet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil, fmt.Errorf("%w: ledger closed", domain.ErrStoreUnavailable)
	}

	unlock, err := lockFile(l.file)
	if err != nil {
		return nil, fmt.Errorf("%w: lock ledger: %v", domain.ErrStoreUnavailable, err)
	}
	defer unlock()

	info, err := l.file.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat ledger: %v", domain.ErrStoreUnavailable, err)
	}

	sc := bufio.NewScanner(io.NewSectionReader(l.file, 0, info.Size()))
	sc.Buffer(make([]byte, 0, 4096), maxRecordSize)

	var bets []domain.Bet
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		b, err := protocol.DecodeBet(sc.Bytes(), 0)
		if err != nil {
			return nil, fmt.Errorf("%w: ledger line %d: %v", domain.ErrStoreUnavailable, line, err)
		}
		bets = append(bets, b)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read ledger: %v", domain.ErrStoreUnavailable, err)
	}
	return bets, nil
}

// Close closes the ledger file. Later Appends and Scans fail with
// domain.ErrStoreUnavailable.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Path returns the ledger file path.
func (l *Ledger) Path() string {
	return l.path
}
