// Package transport frames opaque byte strings on a stream connection.
//
// Each frame is a 4-byte big-endian length followed by exactly that many
// bytes. Send and Receive hide partial writes and reads from callers; a peer
// that closes mid-frame surfaces as domain.ErrEndOfStream.
package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"time"

	"github.com/bft-labs/lottery/internal/domain"
	"github.com/bft-labs/lottery/internal/protocol"
)

const headerSize = 4

// ErrFrameTooLarge is returned for frames that do not fit the length prefix or
// exceed the receive ceiling configured with WithMaxFrameSize.
var ErrFrameTooLarge = errors.New("transport: frame too large")

// Conn is a framed connection. It is not safe for concurrent Sends or
// concurrent Receives; the protocol runs one request/response per connection.
type Conn struct {
	rw        io.ReadWriteCloser
	ioTimeout time.Duration
	maxFrame  uint32
}

// Option configures a Conn.
type Option func(*Conn)

// WithIOTimeout bounds every Send and Receive. Zero disables the deadline.
// It only applies when the underlying stream supports deadlines.
func WithIOTimeout(d time.Duration) Option {
	return func(c *Conn) { c.ioTimeout = d }
}

// WithMaxFrameSize rejects incoming frames whose length prefix exceeds n
// before any payload is allocated.
func WithMaxFrameSize(n uint32) Option {
	return func(c *Conn) { c.maxFrame = n }
}

// New wraps rw.
func New(rw io.ReadWriteCloser, opts ...Option) *Conn {
	c := &Conn{rw: rw, maxFrame: math.MaxUint32}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial opens a TCP connection to address and wraps it.
func Dial(ctx context.Context, address string, opts ...Option) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return New(nc, opts...), nil
}

// Send writes one frame. It returns only after every byte was accepted by the
// stream or an error occurred.
func (c *Conn) Send(frame []byte) error {
	if uint64(len(frame)) > math.MaxUint32 {
		return fmt.Errorf("send %d bytes: %w", len(frame), ErrFrameTooLarge)
	}
	c.setDeadline(func(d deadliner, t time.Time) error { return d.SetWriteDeadline(t) })

	buf := make([]byte, headerSize+len(frame))
	binary.BigEndian.PutUint32(buf[:headerSize], uint32(len(frame)))
	copy(buf[headerSize:], frame)
	if err := writeFull(c.rw, buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Receive reads one frame.
func (c *Conn) Receive() ([]byte, error) {
	c.setDeadline(func(d deadliner, t time.Time) error { return d.SetReadDeadline(t) })

	var header [headerSize]byte
	if _, err := io.ReadFull(c.rw, header[:]); err != nil {
		return nil, fmt.Errorf("read frame header: %w", endOfStream(err))
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > c.maxFrame {
		return nil, fmt.Errorf("frame length %d exceeds maximum %d: %w", n, c.maxFrame, ErrFrameTooLarge)
	}
	frame := make([]byte, n)
	if _, err := io.ReadFull(c.rw, frame); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", endOfStream(err))
	}
	return frame, nil
}

// SendMessage encodes m and sends it as one frame.
func (c *Conn) SendMessage(m protocol.Message) error {
	b, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return c.Send(b)
}

// ReceiveMessage receives one frame and decodes it.
func (c *Conn) ReceiveMessage() (protocol.Message, error) {
	b, err := c.Receive()
	if err != nil {
		return protocol.Message{}, err
	}
	return protocol.Decode(b)
}

// RemoteAddr returns the peer address, or "" when the stream has none.
func (c *Conn) RemoteAddr() string {
	if nc, ok := c.rw.(net.Conn); ok && nc.RemoteAddr() != nil {
		return nc.RemoteAddr().String()
	}
	return ""
}

// Close closes the underlying stream.
func (c *Conn) Close() error {
	return c.rw.Close()
}

type deadliner interface {
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

func (c *Conn) setDeadline(set func(deadliner, time.Time) error) {
	d, ok := c.rw.(deadliner)
	if !ok || c.ioTimeout <= 0 {
		return
	}
	_ = set(d, time.Now().Add(c.ioTimeout))
}

// writeFull loops until buf is fully written. Streams may accept fewer bytes
// than offered; a write that makes no progress without an error is reported
// as io.ErrShortWrite.
func writeFull(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		buf = buf[n:]
	}
	return nil
}

// endOfStream maps a premature close to domain.ErrEndOfStream, keeping the
// original error in the chain.
func endOfStream(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %w", domain.ErrEndOfStream, err)
	}
	return err
}
