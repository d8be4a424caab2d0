package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bft-labs/lottery/internal/domain"
)

const fieldSeparator = ","

// Payload is one entry of a message. The set of implementations is closed:
// BetPayload, AckPayload, FinPayload, QueryPayload and WinnerPayload.
type Payload interface {
	Kind() Kind
	fields() []string
}

// BetPayload carries one bet from an agency to the server.
type BetPayload struct {
	domain.Bet
}

// AckPayload confirms one stored bet back to its agency.
type AckPayload struct {
	Document string
	Number   string
}

// FinPayload announces that an agency sent all of its bets.
type FinPayload struct {
	Agency int
}

// QueryPayload asks for an agency's winners.
type QueryPayload struct {
	Agency int
}

// WinnerPayload names the document of one winning bet.
type WinnerPayload struct {
	Document string
}

func (BetPayload) Kind() Kind    { return KindBet }
func (AckPayload) Kind() Kind    { return KindAck }
func (FinPayload) Kind() Kind    { return KindFin }
func (QueryPayload) Kind() Kind  { return KindQuery }
func (WinnerPayload) Kind() Kind { return KindWinner }

func (p BetPayload) fields() []string {
	return []string{strconv.Itoa(p.Agency), p.FirstName, p.LastName, p.Document, p.Birthdate, p.Number}
}

func (p AckPayload) fields() []string    { return []string{p.Document, p.Number} }
func (p FinPayload) fields() []string    { return []string{strconv.Itoa(p.Agency)} }
func (p QueryPayload) fields() []string  { return []string{strconv.Itoa(p.Agency)} }
func (p WinnerPayload) fields() []string { return []string{p.Document} }

// marshalPayload joins the payload fields. Fields holding the separator or a
// line break are rejected: the former would desynchronize decoding and the
// latter would split a ledger record.
func marshalPayload(p Payload) ([]byte, error) {
	fields := p.fields()
	for i, f := range fields {
		if strings.ContainsAny(f, fieldSeparator+"\r\n") {
			return nil, fmt.Errorf("%s field %d %q: %w", p.Kind(), i, f, ErrFieldSeparator)
		}
	}
	return []byte(strings.Join(fields, fieldSeparator)), nil
}

// PayloadSize returns the encoded size of p inside a message, length prefix included.
func PayloadSize(p Payload) (int, error) {
	b, err := marshalPayload(p)
	if err != nil {
		return 0, err
	}
	return lengthPrefixSize + len(b), nil
}

// splitFields splits a payload into exactly n fields.
func splitFields(kind Kind, b []byte, n int) ([]string, error) {
	if !utf8.Valid(b) {
		return nil, fmt.Errorf("%w: %s payload is not valid UTF-8", domain.ErrMalformedMessage, kind)
	}
	parts := strings.Split(string(b), fieldSeparator)
	if len(parts) != n {
		return nil, fmt.Errorf("%w: %s payload has %d fields, want %d", domain.ErrMalformedMessage, kind, len(parts), n)
	}
	return parts, nil
}

func parseAgency(kind Kind, s string) (int, error) {
	agency, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || agency <= 0 {
		return 0, fmt.Errorf("%w: %s agency %q is not a positive integer", domain.ErrMalformedMessage, kind, s)
	}
	return agency, nil
}

// DecodeBet decodes one BET payload. When agency is positive the record is
// expected to hold only first_name, last_name, document, birthdate and
// number, as in an agency's local bets file, and agency is used as the bet's
// agency. Otherwise the agency is read from the first field.
func DecodeBet(record []byte, agency int) (domain.Bet, error) {
	var bet domain.Bet
	if agency > 0 {
		parts, err := splitFields(KindBet, record, 5)
		if err != nil {
			return bet, err
		}
		bet = domain.Bet{Agency: agency, FirstName: parts[0], LastName: parts[1], Document: parts[2], Birthdate: parts[3], Number: parts[4]}
	} else {
		parts, err := splitFields(KindBet, record, 6)
		if err != nil {
			return bet, err
		}
		a, err := parseAgency(KindBet, parts[0])
		if err != nil {
			return bet, err
		}
		bet = domain.Bet{Agency: a, FirstName: parts[1], LastName: parts[2], Document: parts[3], Birthdate: parts[4], Number: parts[5]}
	}
	if err := bet.Validate(); err != nil {
		return domain.Bet{}, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	return bet, nil
}

// FormatBetRecord renders a bet as one ledger record, without a line break.
func FormatBetRecord(b domain.Bet) ([]byte, error) {
	return marshalPayload(BetPayload{Bet: b})
}

type payloadDecoder func([]byte) (Payload, error)

var decoders = map[Kind]payloadDecoder{
	KindBet: func(b []byte) (Payload, error) {
		bet, err := DecodeBet(b, 0)
		if err != nil {
			return nil, err
		}
		return BetPayload{Bet: bet}, nil
	},
	KindAck: func(b []byte) (Payload, error) {
		parts, err := splitFields(KindAck, b, 2)
		if err != nil {
			return nil, err
		}
		return AckPayload{Document: parts[0], Number: parts[1]}, nil
	},
	KindFin: func(b []byte) (Payload, error) {
		agency, err := parseAgency(KindFin, string(b))
		if err != nil {
			return nil, err
		}
		return FinPayload{Agency: agency}, nil
	},
	KindQuery: func(b []byte) (Payload, error) {
		agency, err := parseAgency(KindQuery, string(b))
		if err != nil {
			return nil, err
		}
		return QueryPayload{Agency: agency}, nil
	},
	KindWinner: func(b []byte) (Payload, error) {
		parts, err := splitFields(KindWinner, b, 1)
		if err != nil {
			return nil, err
		}
		return WinnerPayload{Document: parts[0]}, nil
	},
}
