package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bft-labs/lottery/internal/barrier"
	"github.com/bft-labs/lottery/internal/domain"
	"github.com/bft-labs/lottery/internal/ports"
	"github.com/bft-labs/lottery/internal/protocol"
	"github.com/bft-labs/lottery/internal/transport"
)

// DefaultMaxFrameSize bounds the frames a server accepts from agencies.
const DefaultMaxFrameSize = 16 << 20

// ServerConfig contains configuration for the lottery server.
type ServerConfig struct {
	// Address is the host:port to listen on.
	Address string

	// AgencyCount is the number of agencies that must finish before the draw.
	AgencyCount int

	// IOTimeout bounds each frame read or write. Zero disables it.
	// Waiting for the draw is never subject to it.
	IOTimeout time.Duration

	// MaxFrameSize rejects frames with a larger length prefix. Zero means
	// DefaultMaxFrameSize.
	MaxFrameSize uint32

	// WinningRule decides which stored bets win. Nil means the default
	// winning number.
	WinningRule domain.WinningRule
}

// ServerEventEmitter receives server events. All methods must be safe for
// concurrent use.
type ServerEventEmitter interface {
	OnConnection(kind protocol.Kind)
	OnBetsStored(count int)
	OnProtocolError(reason string)
	OnQueryWaiting(delta int)
	OnAgencyFinished(remaining int)
	OnDraw()
}

// Server accepts agency connections and serves one request per connection.
type Server struct {
	config    ServerConfig
	store     ports.BetStore
	barrier   *barrier.Barrier
	logger    ports.Logger
	emitter   ServerEventEmitter
	lifecycle *Lifecycle

	mu       sync.Mutex
	listener net.Listener
	conns    map[*transport.Conn]struct{}
	closing  bool
}

// NewServer creates a new server. emitter may be nil.
func NewServer(
	config ServerConfig,
	store ports.BetStore,
	logger ports.Logger,
	emitter ServerEventEmitter,
	stateEmitter EventEmitter,
) *Server {
	if config.MaxFrameSize == 0 {
		config.MaxFrameSize = DefaultMaxFrameSize
	}
	if config.WinningRule == nil {
		config.WinningRule = domain.NumberRule(domain.DefaultWinningNumber)
	}
	return &Server{
		config:    config,
		store:     store,
		barrier:   barrier.New(config.AgencyCount),
		logger:    logger,
		emitter:   emitter,
		lifecycle: NewLifecycle(logger, stateEmitter),
		conns:     make(map[*transport.Conn]struct{}),
	}
}

// Start binds the listener and begins accepting connections in the
// background. Canceling ctx closes the listener and every open connection;
// Stop must still be called to wait for the workers.
func (s *Server) Start(ctx context.Context) error {
	if !s.lifecycle.CanStart() {
		return domain.ErrAlreadyRunning
	}
	if err := s.lifecycle.TransitionTo(StateStarting, "start requested"); err != nil {
		return err
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.config.Address)
	if err != nil {
		_ = s.lifecycle.TransitionTo(StateCrashed, "listen failed")
		return fmt.Errorf("listen on %s: %w", s.config.Address, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.lifecycle.SetCancel(cancel)

	s.mu.Lock()
	s.listener = ln
	s.closing = false
	s.mu.Unlock()

	if err := s.lifecycle.TransitionTo(StateRunning, "listening"); err != nil {
		cancel()
		_ = ln.Close()
		return err
	}

	s.logger.Info("server listening",
		ports.String("address", ln.Addr().String()),
		ports.Int("agency_count", s.config.AgencyCount),
	)

	s.lifecycle.Go(func() { s.acceptLoop(runCtx) })
	s.lifecycle.Go(func() {
		<-runCtx.Done()
		s.closeAll()
	})

	return nil
}

// Stop closes the listener and every open connection, then waits for the
// workers with ShutdownTimeout.
func (s *Server) Stop() error {
	if !s.lifecycle.CanStop() {
		return domain.ErrNotRunning
	}
	if err := s.lifecycle.TransitionTo(StateStopping, "stop requested"); err != nil {
		return err
	}

	s.lifecycle.Cancel()
	s.closeAll()

	err := s.lifecycle.WaitWithTimeout(ShutdownTimeout)
	if err != nil {
		_ = s.lifecycle.TransitionTo(StateCrashed, "shutdown timeout")
		return err
	}
	return s.lifecycle.TransitionTo(StateStopped, "stopped")
}

// Run starts the server and blocks until ctx is canceled, then stops it.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Stop()
}

// Addr returns the listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Status returns the current lifecycle state.
func (s *Server) Status() State {
	return s.lifecycle.State()
}

// DrawDone is closed once every agency has finished.
func (s *Server) DrawDone() <-chan struct{} {
	return s.barrier.Done()
}

func (s *Server) acceptLoop(ctx context.Context) {
	b := newBackoff(DefaultBackoffInitial, DefaultBackoffMax)

	for {
		nc, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.logger.Debug("accept loop exiting")
				return
			}
			s.logger.Warn("accept failed",
				ports.Err(err),
				ports.Duration("backoff", b.Current()),
			)
			if !b.Wait(ctx) {
				return
			}
			continue
		}
		b.Reset()

		conn := transport.New(nc,
			transport.WithIOTimeout(s.config.IOTimeout),
			transport.WithMaxFrameSize(s.config.MaxFrameSize),
		)
		if !s.track(conn) {
			_ = conn.Close()
			return
		}
		s.lifecycle.Go(func() { s.handle(ctx, conn) })
	}
}

// track registers conn for shutdown. It returns false once shutdown began.
func (s *Server) track(conn *transport.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn *transport.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return
	}
	s.closing = true

	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Warn("failed to close listener", ports.Err(err))
		}
	}
	for conn := range s.conns {
		_ = conn.Close()
	}
}
