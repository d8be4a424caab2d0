package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bft-labs/lottery/internal/domain"
	"github.com/bft-labs/lottery/internal/ports"
	"github.com/bft-labs/lottery/internal/protocol"
	"github.com/bft-labs/lottery/internal/transport"
)

// connLogger prefixes every line with the connection's identifiers.
type connLogger struct {
	logger ports.Logger
	base   []ports.Field
}

func (l connLogger) with(fields []ports.Field) []ports.Field {
	return append(append(make([]ports.Field, 0, len(l.base)+len(fields)), l.base...), fields...)
}

func (l connLogger) Debug(msg string, fields ...ports.Field) { l.logger.Debug(msg, l.with(fields)...) }
func (l connLogger) Info(msg string, fields ...ports.Field)  { l.logger.Info(msg, l.with(fields)...) }
func (l connLogger) Warn(msg string, fields ...ports.Field)  { l.logger.Warn(msg, l.with(fields)...) }
func (l connLogger) Error(msg string, fields ...ports.Field) { l.logger.Error(msg, l.with(fields)...) }

// handle serves exactly one request on conn and closes it.
func (s *Server) handle(ctx context.Context, conn *transport.Conn) {
	log := connLogger{
		logger: s.logger,
		base: []ports.Field{
			ports.String("conn_id", uuid.NewString()),
			ports.String("remote", conn.RemoteAddr()),
		},
	}

	defer func() {
		s.untrack(conn)
		if err := conn.Close(); err != nil {
			log.Debug("close", ports.Action("close"), ports.Fail, ports.Err(err))
			return
		}
		log.Debug("close", ports.Action("close"), ports.Success)
	}()

	msg, err := conn.ReceiveMessage()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.reject(log, err)
		return
	}
	log.Debug("receive_message", ports.Action("receive_message"), ports.Success,
		ports.String("kind", msg.Kind.String()),
		ports.Int("payloads", len(msg.Payloads)),
	)
	if s.emitter != nil {
		s.emitter.OnConnection(msg.Kind)
	}

	switch msg.Kind {
	case protocol.KindBet:
		err = s.storeBets(ctx, log, conn, msg)
	case protocol.KindFin:
		err = s.finishAgency(log, msg)
	case protocol.KindQuery:
		err = s.queryWinners(ctx, log, conn, msg)
	default:
		err = fmt.Errorf("%w: %s is not a request", domain.ErrProtocolViolation, msg.Kind)
	}

	if err != nil {
		if ctx.Err() != nil {
			log.Debug("request abandoned on shutdown", ports.Err(err))
			return
		}
		s.reject(log, err)
	}
}

// reject logs a failed request. The connection is closed without reply.
func (s *Server) reject(log connLogger, err error) {
	reason := "io"
	switch {
	case errors.Is(err, domain.ErrEndOfStream):
		reason = "end_of_stream"
	case errors.Is(err, domain.ErrMalformedMessage):
		reason = "malformed"
	case errors.Is(err, domain.ErrProtocolViolation):
		reason = "violation"
	case errors.Is(err, domain.ErrStoreUnavailable):
		reason = "store"
	}
	if s.emitter != nil {
		s.emitter.OnProtocolError(reason)
	}
	log.Error("request failed", ports.Fail,
		ports.String("reason", reason),
		ports.Err(err),
	)
}

func (s *Server) storeBets(ctx context.Context, log connLogger, conn *transport.Conn, msg protocol.Message) error {
	bets := msg.Bets()

	if err := s.store.Append(ctx, bets); err != nil {
		log.Error("store_bet", ports.Action("store_bet"), ports.Fail,
			ports.Int("count", len(bets)),
			ports.Err(err),
		)
		return err
	}
	for _, bet := range bets {
		log.Info("store_bet", ports.Action("store_bet"), ports.Success,
			ports.Int("agency", bet.Agency),
			ports.String("document", bet.Document),
			ports.String("number", bet.Number),
		)
	}
	if s.emitter != nil {
		s.emitter.OnBetsStored(len(bets))
	}

	if err := conn.SendMessage(protocol.NewAckMessage(bets)); err != nil {
		log.Error("send_message", ports.Action("send_message"), ports.Fail,
			ports.String("kind", protocol.KindAck.String()),
			ports.Err(err),
		)
		return err
	}
	return nil
}

func (s *Server) finishAgency(log connLogger, msg protocol.Message) error {
	agency, err := msg.Agency()
	if err != nil {
		return err
	}

	counted, opened := s.barrier.MarkDone(agency)
	if !counted {
		log.Warn("agency already finished, ignoring", ports.Int("agency", agency))
		return nil
	}

	remaining := s.barrier.Remaining()
	log.Info("agency finished",
		ports.Int("agency", agency),
		ports.Int("remaining", remaining),
	)
	if s.emitter != nil {
		s.emitter.OnAgencyFinished(remaining)
	}

	if opened {
		log.Info("draw", ports.Action("draw"), ports.Success)
		if s.emitter != nil {
			s.emitter.OnDraw()
		}
	}
	return nil
}

func (s *Server) queryWinners(ctx context.Context, log connLogger, conn *transport.Conn, msg protocol.Message) error {
	agency, err := msg.Agency()
	if err != nil {
		return err
	}

	if !s.barrier.IsOpen() {
		log.Debug("query waiting for draw", ports.Int("agency", agency))
	}
	if s.emitter != nil {
		s.emitter.OnQueryWaiting(1)
	}
	err = s.barrier.Wait(ctx)
	if s.emitter != nil {
		s.emitter.OnQueryWaiting(-1)
	}
	if err != nil {
		return err
	}

	bets, err := s.store.Scan(ctx)
	if err != nil {
		log.Error("query_winners", ports.Action("query_winners"), ports.Fail,
			ports.Int("agency", agency),
			ports.Err(err),
		)
		return err
	}
	winners := domain.Winners(bets, agency, s.config.WinningRule)

	if err := conn.SendMessage(protocol.NewWinnerMessage(winners)); err != nil {
		log.Error("send_message", ports.Action("send_message"), ports.Fail,
			ports.String("kind", protocol.KindWinner.String()),
			ports.Err(err),
		)
		return err
	}
	log.Info("query_winners", ports.Action("query_winners"), ports.Success,
		ports.Int("agency", agency),
		ports.Int("winners", len(winners)),
	)
	return nil
}
