package protocol

import "fmt"

// Kind tags a message and every payload it carries.
type Kind byte

// ACK and BET keep the tag values of the first protocol generation.
const (
	KindAck    Kind = 0
	KindBet    Kind = 1
	KindFin    Kind = 2
	KindQuery  Kind = 3
	KindWinner Kind = 4
)

// String returns the protocol name of the kind.
func (k Kind) String() string {
	switch k {
	case KindAck:
		return "ACK"
	case KindBet:
		return "BET"
	case KindFin:
		return "FIN"
	case KindQuery:
		return "QUERY"
	case KindWinner:
		return "WINNER"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", byte(k))
	}
}

// Valid reports whether k is one of the five known kinds.
func (k Kind) Valid() bool {
	return k <= KindWinner
}
