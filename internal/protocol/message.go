package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/bft-labs/lottery/internal/domain"
)

const (
	kindSize         = 1
	lengthPrefixSize = 4
)

// Encoding errors. Both indicate a caller bug rather than bad input from a peer.
var (
	// ErrMixedKinds is returned when a payload's kind differs from its message's kind.
	ErrMixedKinds = errors.New("protocol: payload kind differs from message kind")

	// ErrFieldSeparator is returned when a field contains the field separator
	// or a line break and therefore cannot be encoded without escaping.
	ErrFieldSeparator = errors.New("protocol: field contains separator")
)

// Message is the unit of transmission: a kind and zero or more payloads of
// that kind.
type Message struct {
	Kind     Kind
	Payloads []Payload
}

// HeaderSize is the encoded size of an empty message.
const HeaderSize = kindSize

// Encode serializes m.
func Encode(m Message) ([]byte, error) {
	if !m.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %s", domain.ErrMalformedMessage, m.Kind)
	}
	buf := make([]byte, 0, 64)
	buf = append(buf, byte(m.Kind))
	for i, p := range m.Payloads {
		if p == nil || p.Kind() != m.Kind {
			return nil, fmt.Errorf("%s payload %d: %w", m.Kind, i, ErrMixedKinds)
		}
		body, err := marshalPayload(p)
		if err != nil {
			return nil, err
		}
		if uint64(len(body)) > math.MaxUint32 {
			return nil, fmt.Errorf("%s payload %d: %d bytes exceeds length prefix", m.Kind, i, len(body))
		}
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(body)))
		buf = append(buf, body...)
	}
	return buf, nil
}

// Decode parses one encoded message. Every failure wraps domain.ErrMalformedMessage.
func Decode(b []byte) (Message, error) {
	if len(b) < kindSize {
		return Message{}, fmt.Errorf("%w: empty message", domain.ErrMalformedMessage)
	}
	kind := Kind(b[0])
	decode, ok := decoders[kind]
	if !ok {
		return Message{}, fmt.Errorf("%w: unknown kind %s", domain.ErrMalformedMessage, kind)
	}

	m := Message{Kind: kind}
	rest := b[kindSize:]
	for i := 0; len(rest) > 0; i++ {
		if len(rest) < lengthPrefixSize {
			return Message{}, fmt.Errorf("%w: %s payload %d: truncated length prefix", domain.ErrMalformedMessage, kind, i)
		}
		n := binary.BigEndian.Uint32(rest)
		rest = rest[lengthPrefixSize:]
		if uint64(n) > uint64(len(rest)) {
			return Message{}, fmt.Errorf("%w: %s payload %d: length %d overruns %d remaining bytes", domain.ErrMalformedMessage, kind, i, n, len(rest))
		}
		p, err := decode(rest[:n])
		if err != nil {
			return Message{}, fmt.Errorf("%s payload %d: %w", kind, i, err)
		}
		m.Payloads = append(m.Payloads, p)
		rest = rest[n:]
	}
	return m, nil
}

// NewBetMessage builds a BET message carrying bets in order.
func NewBetMessage(bets []domain.Bet) Message {
	m := Message{Kind: KindBet, Payloads: make([]Payload, 0, len(bets))}
	for _, b := range bets {
		m.Payloads = append(m.Payloads, BetPayload{Bet: b})
	}
	return m
}

// NewAckMessage builds the ACK answering bets, one entry per bet in the same order.
func NewAckMessage(bets []domain.Bet) Message {
	m := Message{Kind: KindAck, Payloads: make([]Payload, 0, len(bets))}
	for _, b := range bets {
		m.Payloads = append(m.Payloads, AckPayload{Document: b.Document, Number: b.Number})
	}
	return m
}

// NewFinMessage builds the FIN message of agency.
func NewFinMessage(agency int) Message {
	return Message{Kind: KindFin, Payloads: []Payload{FinPayload{Agency: agency}}}
}

// NewQueryMessage builds the winners QUERY of agency.
func NewQueryMessage(agency int) Message {
	return Message{Kind: KindQuery, Payloads: []Payload{QueryPayload{Agency: agency}}}
}

// NewWinnerMessage builds a WINNER reply. An empty documents list is valid.
func NewWinnerMessage(documents []string) Message {
	m := Message{Kind: KindWinner, Payloads: make([]Payload, 0, len(documents))}
	for _, d := range documents {
		m.Payloads = append(m.Payloads, WinnerPayload{Document: d})
	}
	return m
}

// Bets returns the bets of a BET message.
func (m Message) Bets() []domain.Bet {
	bets := make([]domain.Bet, 0, len(m.Payloads))
	for _, p := range m.Payloads {
		if bp, ok := p.(BetPayload); ok {
			bets = append(bets, bp.Bet)
		}
	}
	return bets
}

// Acks returns the entries of an ACK message.
func (m Message) Acks() []AckPayload {
	acks := make([]AckPayload, 0, len(m.Payloads))
	for _, p := range m.Payloads {
		if ap, ok := p.(AckPayload); ok {
			acks = append(acks, ap)
		}
	}
	return acks
}

// Winners returns the documents of a WINNER message.
func (m Message) Winners() []string {
	docs := make([]string, 0, len(m.Payloads))
	for _, p := range m.Payloads {
		if wp, ok := p.(WinnerPayload); ok {
			docs = append(docs, wp.Document)
		}
	}
	return docs
}

// Agency returns the agency of a FIN or QUERY message, which must carry
// exactly one payload.
func (m Message) Agency() (int, error) {
	if len(m.Payloads) != 1 {
		return 0, fmt.Errorf("%w: %s carries %d payloads, want 1", domain.ErrProtocolViolation, m.Kind, len(m.Payloads))
	}
	switch p := m.Payloads[0].(type) {
	case FinPayload:
		return p.Agency, nil
	case QueryPayload:
		return p.Agency, nil
	default:
		return 0, fmt.Errorf("%w: %s carries no agency", domain.ErrProtocolViolation, m.Kind)
	}
}
