package domain

import "errors"

// Domain errors represent error conditions in the lottery domain.
// They are wrapped with context by the layers that detect them and can be
// checked with errors.Is.
var (
	// ErrEndOfStream is returned when the peer closes a connection before a
	// whole frame was delivered.
	ErrEndOfStream = errors.New("lottery: end of stream")

	// ErrMalformedMessage is returned when bytes cannot be decoded into a message.
	ErrMalformedMessage = errors.New("lottery: malformed message")

	// ErrProtocolViolation is returned when a message kind is not valid for the
	// receiver's state.
	ErrProtocolViolation = errors.New("lottery: protocol violation")

	// ErrAckMismatch is returned when an acknowledgement does not match the
	// batch it answers, entry by entry.
	ErrAckMismatch = errors.New("lottery: ack mismatch")

	// ErrStoreUnavailable is returned when the bet ledger cannot be read or written.
	ErrStoreUnavailable = errors.New("lottery: store unavailable")

	// ErrAlreadyRunning is returned when Start() is called on a running instance.
	ErrAlreadyRunning = errors.New("lottery: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped instance.
	ErrNotRunning = errors.New("lottery: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("lottery: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("lottery: invalid configuration")
)
