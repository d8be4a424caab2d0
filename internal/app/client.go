package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/bft-labs/lottery/internal/domain"
	"github.com/bft-labs/lottery/internal/ports"
	"github.com/bft-labs/lottery/internal/protocol"
	"github.com/bft-labs/lottery/internal/transport"
)

// ClientConfig contains configuration for an agency client run.
type ClientConfig struct {
	// ServerAddress is the host:port of the lottery server.
	ServerAddress string

	// Agency identifies this agency in FIN and QUERY requests.
	Agency int

	// LoopLapse bounds the time spent sending batches. Zero disables it.
	LoopLapse time.Duration

	// LoopPeriod is the pause between batches.
	LoopPeriod time.Duration

	// BatchMaxSize bounds the encoded size of each BET message.
	BatchMaxSize int

	// IOTimeout bounds each frame read or write, except the wait for
	// WINNER. Zero disables it.
	IOTimeout time.Duration
}

// Report summarizes a client run.
type Report struct {
	BetsSent int
	Batches  int
	TimedOut bool
	Winners  []string
}

// Client submits an agency's bets in batches, then announces completion and
// asks for its winners.
type Client struct {
	config  ClientConfig
	source  ports.BetSource
	logger  ports.Logger
	batcher *Batcher
}

// NewClient creates a new client reading bets from source.
func NewClient(config ClientConfig, source ports.BetSource, logger ports.Logger) *Client {
	return &Client{
		config:  config,
		source:  source,
		logger:  logger,
		batcher: NewBatcher(config.BatchMaxSize),
	}
}

// Run sends every bet from the source, then FIN, then QUERY, and returns the
// winners. If LoopLapse expires first the remaining bets are skipped and the
// run still finishes the agency; Report.TimedOut records it.
// Canceling ctx abandons the run.
func (c *Client) Run(ctx context.Context) (Report, error) {
	var report Report

	loopCtx, cancel := ctx, context.CancelFunc(func() {})
	if c.config.LoopLapse > 0 {
		loopCtx, cancel = context.WithTimeout(ctx, c.config.LoopLapse)
	}
	err := c.sendBets(loopCtx, &report)
	cancel()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return report, ctxErr
		}
		if !errors.Is(loopCtx.Err(), context.DeadlineExceeded) {
			return report, err
		}
		report.TimedOut = true
		c.logger.Warn("timeout", ports.Action("timeout"), ports.Fail,
			ports.Int("agency", c.config.Agency),
			ports.Duration("loop_lapse", c.config.LoopLapse),
			ports.Int("bets_sent", report.BetsSent),
		)
	}

	c.logger.Info("loop finished",
		ports.Int("agency", c.config.Agency),
		ports.Int("batches", report.Batches),
		ports.Int("bets_sent", report.BetsSent),
	)

	if err := c.finish(ctx); err != nil {
		return report, err
	}

	winners, err := c.queryWinners(ctx)
	if err != nil {
		return report, err
	}
	report.Winners = winners
	return report, nil
}

func (c *Client) sendBets(ctx context.Context, report *Report) error {
	var carry *domain.Bet

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		exhausted := false
		for {
			var bet domain.Bet
			if carry != nil {
				bet, carry = *carry, nil
			} else {
				next, err := c.source.Next()
				if errors.Is(err, ports.ErrNoMoreBets) {
					exhausted = true
					break
				}
				if err != nil {
					return fmt.Errorf("read bets: %w", err)
				}
				bet = next
			}

			added, err := c.batcher.Add(bet)
			if err != nil {
				return err
			}
			if !added {
				carry = &bet
				break
			}
		}

		if c.batcher.HasPending() {
			batch := c.batcher.Batch()
			if err := c.sendBatch(ctx, batch.Bets); err != nil {
				return err
			}
			report.Batches++
			report.BetsSent += batch.Size()
			c.batcher.Reset()
		}

		if exhausted {
			return nil
		}

		t := time.NewTimer(c.config.LoopPeriod)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (c *Client) sendBatch(ctx context.Context, bets []domain.Bet) error {
	conn, err := c.connect(ctx, transport.WithIOTimeout(c.config.IOTimeout))
	if err != nil {
		return err
	}
	defer c.close(conn)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := c.send(conn, protocol.NewBetMessage(bets)); err != nil {
		return err
	}

	msg, err := conn.ReceiveMessage()
	if err != nil {
		c.logger.Error("receive_message", ports.Action("receive_message"), ports.Fail,
			ports.Int("agency", c.config.Agency),
			ports.Err(err),
		)
		return fmt.Errorf("receive ack: %w", err)
	}
	if msg.Kind != protocol.KindAck {
		return fmt.Errorf("%w: got %s, want %s", domain.ErrProtocolViolation, msg.Kind, protocol.KindAck)
	}

	acks := msg.Acks()
	if err := validateAcks(bets, acks); err != nil {
		c.logger.Error("receive_message", ports.Action("receive_message"), ports.Fail,
			ports.Int("agency", c.config.Agency),
			ports.Err(err),
		)
		return err
	}
	for _, ack := range acks {
		c.logger.Info("bet_sent", ports.Action("bet_sent"), ports.Success,
			ports.String("document", ack.Document),
			ports.String("number", ack.Number),
		)
	}
	return nil
}

// validateAcks checks that acks acknowledge sent positionally.
func validateAcks(sent []domain.Bet, acks []protocol.AckPayload) error {
	if len(acks) != len(sent) {
		return fmt.Errorf("%w: sent %d bets, got %d acks", domain.ErrAckMismatch, len(sent), len(acks))
	}
	for i, ack := range acks {
		if ack.Document != sent[i].Document || ack.Number != sent[i].Number {
			return fmt.Errorf("%w: ack %d is %s/%s, want %s/%s", domain.ErrAckMismatch,
				i, ack.Document, ack.Number, sent[i].Document, sent[i].Number)
		}
	}
	return nil
}

func (c *Client) finish(ctx context.Context) error {
	conn, err := c.connect(ctx, transport.WithIOTimeout(c.config.IOTimeout))
	if err != nil {
		return err
	}
	defer c.close(conn)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	return c.send(conn, protocol.NewFinMessage(c.config.Agency))
}

// queryWinners blocks until the server has drawn. The wait is not subject to
// IOTimeout.
func (c *Client) queryWinners(ctx context.Context) ([]string, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer c.close(conn)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := c.send(conn, protocol.NewQueryMessage(c.config.Agency)); err != nil {
		return nil, err
	}

	msg, err := conn.ReceiveMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.Error("query_winners", ports.Action("query_winners"), ports.Fail,
			ports.Int("agency", c.config.Agency),
			ports.Err(err),
		)
		return nil, fmt.Errorf("receive winners: %w", err)
	}
	if msg.Kind != protocol.KindWinner {
		return nil, fmt.Errorf("%w: got %s, want %s", domain.ErrProtocolViolation, msg.Kind, protocol.KindWinner)
	}

	winners := msg.Winners()
	c.logger.Info("query_winners", ports.Action("query_winners"), ports.Success,
		ports.Int("agency", c.config.Agency),
		ports.Int("winners", len(winners)),
	)
	return winners, nil
}

func (c *Client) connect(ctx context.Context, opts ...transport.Option) (*transport.Conn, error) {
	conn, err := transport.Dial(ctx, c.config.ServerAddress, opts...)
	if err != nil {
		c.logger.Error("connect", ports.Action("connect"), ports.Fail,
			ports.String("address", c.config.ServerAddress),
			ports.Err(err),
		)
		return nil, err
	}
	c.logger.Debug("connect", ports.Action("connect"), ports.Success,
		ports.String("address", c.config.ServerAddress),
	)
	return conn, nil
}

func (c *Client) send(conn *transport.Conn, msg protocol.Message) error {
	if err := conn.SendMessage(msg); err != nil {
		c.logger.Error("send_message", ports.Action("send_message"), ports.Fail,
			ports.String("kind", msg.Kind.String()),
			ports.Err(err),
		)
		return fmt.Errorf("send %s: %w", msg.Kind, err)
	}
	c.logger.Debug("send_message", ports.Action("send_message"), ports.Success,
		ports.String("kind", msg.Kind.String()),
		ports.Int("payloads", len(msg.Payloads)),
	)
	return nil
}

func (c *Client) close(conn *transport.Conn) {
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.logger.Debug("close", ports.Action("close"), ports.Fail, ports.Err(err))
		return
	}
	c.logger.Debug("close", ports.Action("close"), ports.Success)
}
