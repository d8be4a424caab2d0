package app

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/bft-labs/lottery/internal/domain"
	"github.com/bft-labs/lottery/internal/ports"
	"github.com/bft-labs/lottery/internal/protocol"
	"github.com/bft-labs/lottery/internal/transport"
)

// sliceSource implements ports.BetSource over a fixed slice.
type sliceSource struct {
	bets []domain.Bet
}

func (s *sliceSource) Next() (domain.Bet, error) {
	if len(s.bets) == 0 {
		return domain.Bet{}, ports.ErrNoMoreBets
	}
	b := s.bets[0]
	s.bets = s.bets[1:]
	return b, nil
}

func (s *sliceSource) Close() error { return nil }

func agencyBets(agency int, numbers ...string) []domain.Bet {
	bets := make([]domain.Bet, len(numbers))
	for i, n := range numbers {
		bets[i] = testBet(agency, i, n)
	}
	return bets
}

func TestClient_Run(t *testing.T) {
	srv := startServer(t, 1)
	bets := agencyBets(1, "1234", "7574", "0001", "4242", "9999")

	client := NewClient(ClientConfig{
		ServerAddress: srv.addr,
		Agency:        1,
		LoopLapse:     10 * time.Second,
		LoopPeriod:    time.Millisecond,
		BatchMaxSize:  protocol.HeaderSize + 2*betSize(t, bets[0]),
		IOTimeout:     5 * time.Second,
	}, &sliceSource{bets: append([]domain.Bet(nil), bets...)}, &mockLogger{})

	report, err := client.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.BetsSent != 5 || report.Batches != 3 {
		t.Errorf("report = %+v, want 5 bets in 3 batches", report)
	}
	if report.TimedOut {
		t.Error("report.TimedOut = true")
	}
	if len(report.Winners) != 1 || report.Winners[0] != bets[1].Document {
		t.Errorf("winners = %v, want [%s]", report.Winners, bets[1].Document)
	}

	stored, err := srv.ledger.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(stored) != len(bets) {
		t.Fatalf("stored %d bets, want %d", len(stored), len(bets))
	}
	for i := range bets {
		if stored[i] != bets[i] {
			t.Errorf("stored[%d] = %+v, want %+v", i, stored[i], bets[i])
		}
	}
}

func TestClient_LoopLapseExpires(t *testing.T) {
	srv := startServer(t, 1)
	bets := agencyBets(1, "7574", "7574", "7574")

	client := NewClient(ClientConfig{
		ServerAddress: srv.addr,
		Agency:        1,
		LoopLapse:     200 * time.Millisecond,
		LoopPeriod:    time.Hour,
		BatchMaxSize:  protocol.HeaderSize + betSize(t, bets[0]),
		IOTimeout:     5 * time.Second,
	}, &sliceSource{bets: bets}, &mockLogger{})

	report, err := client.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !report.TimedOut {
		t.Error("report.TimedOut = false, want true")
	}
	if report.BetsSent != 1 || report.Batches != 1 {
		t.Errorf("report = %+v, want 1 bet in 1 batch", report)
	}
	// The agency still finishes and gets the winners it managed to submit.
	if len(report.Winners) != 1 {
		t.Errorf("winners = %v, want 1", report.Winners)
	}
}

func TestClient_CeilingTooSmall(t *testing.T) {
	client := NewClient(ClientConfig{
		ServerAddress: "127.0.0.1:1",
		Agency:        1,
		LoopPeriod:    time.Millisecond,
		BatchMaxSize:  8,
	}, &sliceSource{bets: agencyBets(1, "1")}, &mockLogger{})

	_, err := client.Run(context.Background())
	if !errors.Is(err, ErrBatchTooSmall) {
		t.Errorf("Run() error = %v, want ErrBatchTooSmall", err)
	}
}

// fakeServer answers every BET with reply(bets).
func fakeServer(t *testing.T, reply func([]domain.Bet) protocol.Message) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			conn := transport.New(nc)
			msg, err := conn.ReceiveMessage()
			if err == nil && msg.Kind == protocol.KindBet {
				_ = conn.SendMessage(reply(msg.Bets()))
			}
			_ = conn.Close()
		}
	}()

	return ln.Addr().String()
}

func TestClient_AckMismatch(t *testing.T) {
	tests := []struct {
		name  string
		reply func([]domain.Bet) protocol.Message
	}{
		{
			name: "missing ack",
			reply: func(bets []domain.Bet) protocol.Message {
				return protocol.NewAckMessage(bets[:len(bets)-1])
			},
		},
		{
			name: "wrong number",
			reply: func(bets []domain.Bet) protocol.Message {
				bets[0].Number = "0"
				return protocol.NewAckMessage(bets)
			},
		},
		{
			name: "reordered",
			reply: func(bets []domain.Bet) protocol.Message {
				bets[0], bets[1] = bets[1], bets[0]
				return protocol.NewAckMessage(bets)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr := fakeServer(t, tt.reply)
			client := NewClient(ClientConfig{
				ServerAddress: addr,
				Agency:        1,
				LoopPeriod:    time.Millisecond,
				BatchMaxSize:  1 << 16,
				IOTimeout:     5 * time.Second,
			}, &sliceSource{bets: agencyBets(1, "1", "2", "3")}, &mockLogger{})

			_, err := client.Run(context.Background())
			if !errors.Is(err, domain.ErrAckMismatch) {
				t.Errorf("Run() error = %v, want ErrAckMismatch", err)
			}
		})
	}
}

func TestClient_UnexpectedReplyKind(t *testing.T) {
	addr := fakeServer(t, func([]domain.Bet) protocol.Message {
		return protocol.NewWinnerMessage(nil)
	})
	client := NewClient(ClientConfig{
		ServerAddress: addr,
		Agency:        1,
		BatchMaxSize:  1 << 16,
	}, &sliceSource{bets: agencyBets(1, "1")}, &mockLogger{})

	if _, err := client.Run(context.Background()); !errors.Is(err, domain.ErrProtocolViolation) {
		t.Errorf("Run() error = %v, want ErrProtocolViolation", err)
	}
}

func TestClient_CancelWhileWaitingForDraw(t *testing.T) {
	srv := startServer(t, 2)

	client := NewClient(ClientConfig{
		ServerAddress: srv.addr,
		Agency:        1,
		LoopPeriod:    time.Millisecond,
		BatchMaxSize:  1 << 16,
		IOTimeout:     5 * time.Second,
	}, &sliceSource{bets: agencyBets(1, "1")}, &mockLogger{})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	report, err := client.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want context.DeadlineExceeded", err)
	}
	if report.BetsSent != 1 {
		t.Errorf("BetsSent = %d, want 1", report.BetsSent)
	}
}

func TestValidateAcks(t *testing.T) {
	sent := agencyBets(1, "10", "20")
	tests := []struct {
		name    string
		acks    []protocol.AckPayload
		wantErr bool
	}{
		{"match", []protocol.AckPayload{{Document: sent[0].Document, Number: "10"}, {Document: sent[1].Document, Number: "20"}}, false},
		{"short", []protocol.AckPayload{{Document: sent[0].Document, Number: "10"}}, true},
		{"extra", []protocol.AckPayload{{Document: sent[0].Document, Number: "10"}, {Document: sent[1].Document, Number: "20"}, {Document: "x", Number: "1"}}, true},
		{"swapped", []protocol.AckPayload{{Document: sent[1].Document, Number: "20"}, {Document: sent[0].Document, Number: "10"}}, true},
		{"wrong document", []protocol.AckPayload{{Document: "nope", Number: "10"}, {Document: sent[1].Document, Number: "20"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAcks(sent, tt.acks)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateAcks() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrAckMismatch) {
				t.Errorf("validateAcks() error = %v, want ErrAckMismatch", err)
			}
		})
	}
}
