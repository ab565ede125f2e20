package terminal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/signalctl/internal/iso"
	"github.com/danmuck/signalctl/internal/testutil/hosttest"
	"github.com/danmuck/signalctl/internal/testutil/testlog"
)

type matchRecorder struct {
	matches chan [2]iso.Transaction
}

func newMatchRecorder() *matchRecorder {
	return &matchRecorder{matches: make(chan [2]iso.Transaction, 16)}
}

func (r *matchRecorder) TransactionMatched(req, resp iso.Transaction) {
	r.matches <- [2]iso.Transaction{req, resp}
}

func (r *matchRecorder) wait(t *testing.T) (iso.Transaction, iso.Transaction) {
	t.Helper()
	select {
	case m := <-r.matches:
		return m[0], m[1]
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for match")
	}
	return iso.Transaction{}, iso.Transaction{}
}

// runSession starts s and returns an idempotent stop that yields Run's error.
func runSession(t *testing.T, s *Session) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	var (
		once   sync.Once
		runErr error
	)
	stop := func() error {
		once.Do(func() {
			cancel()
			runErr = <-done
		})
		return runErr
	}
	t.Cleanup(func() { _ = stop() })
	return stop
}

func TestSessionSendMatchesHostResponse(t *testing.T) {
	testlog.Start(t)
	codec := iso.NewJSONCodec(iso.DefaultSpec())
	port := hosttest.Start(t).Port
	s := NewSession(Options{Host: "127.0.0.1", Port: port}, codec, nil)
	rec := newMatchRecorder()
	s.SetMatchListener(rec)
	runSession(t, s)

	ctx := context.Background()
	var err error
	if callErr := s.Call(ctx, func() { err = s.Conn().Connect("", 0) }); callErr != nil || err != nil {
		t.Fatalf("connect call=%v err=%v", callErr, err)
	}
	conn, _ := s.Connection(ctx)
	if conn.Status != StateConnected {
		t.Fatalf("status=%s", conn.Status)
	}

	var sent iso.Transaction
	tx := iso.Transaction{MTI: "0200", Fields: map[string]string{"11": "000042", "4": "000000001000"}}
	if callErr := s.Call(ctx, func() { sent, err = s.Send(tx) }); callErr != nil || err != nil {
		t.Fatalf("send call=%v err=%v", callErr, err)
	}
	if sent.ID == "" || !sent.IsRequest || sent.SentAt.IsZero() {
		t.Fatalf("unexpected sent transaction: %+v", sent)
	}

	req, resp := rec.wait(t)
	if req.ID != sent.ID || resp.MatchID != sent.ID {
		t.Fatalf("match mismatch req=%q resp.match=%q sent=%q", req.ID, resp.MatchID, sent.ID)
	}
	if !resp.Success || resp.MTI != "0210" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	stored, ok, err := s.Transaction(ctx, sent.ID)
	if err != nil || !ok || !stored.Matched {
		t.Fatalf("stored=%+v ok=%v err=%v", stored, ok, err)
	}
	all, _ := s.Transactions(ctx)
	if len(all) != 2 {
		t.Fatalf("transactions=%d want 2", len(all))
	}
	rev, _ := s.Reversible(ctx)
	if len(rev) != 1 || rev[0].ID != sent.ID {
		t.Fatalf("reversible=%+v", rev)
	}

	if callErr := s.Call(ctx, func() { _, err = s.Send(iso.Transaction{ID: sent.ID, MTI: "0200"}) }); callErr != nil {
		t.Fatalf("call: %v", callErr)
	}
	if !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("err=%v want ErrDuplicateTransaction", err)
	}
}

func TestSessionSendClearsMatchState(t *testing.T) {
	testlog.Start(t)
	host := hosttest.Start(t)
	host.SetSilent(true)
	s := NewSession(Options{Host: "127.0.0.1", Port: host.Port}, iso.NewJSONCodec(iso.DefaultSpec()), nil)
	runSession(t, s)

	ctx := context.Background()
	tx := iso.Transaction{
		ID:         "A1",
		MTI:        "0210",
		IsRequest:  true,
		MatchID:    "X9",
		Matched:    true,
		Success:    true,
		Error:      "stale",
		ReceivedAt: time.Now(),
		Fields:     map[string]string{"11": "000001"},
	}
	var (
		sent iso.Transaction
		err  error
	)
	if callErr := s.Call(ctx, func() { sent, err = s.Send(tx) }); callErr != nil || err != nil {
		t.Fatalf("send call=%v err=%v", callErr, err)
	}
	if sent.IsRequest || sent.Matched || sent.Success || sent.MatchID != "" || sent.Error != "" || !sent.ReceivedAt.IsZero() {
		t.Fatalf("caller state leaked into sent transaction: %+v", sent)
	}

	if callErr := s.Call(ctx, func() { _, err = s.Reversals().Build(sent) }); callErr != nil {
		t.Fatalf("call: %v", callErr)
	}
	if !errors.Is(err, ErrLostResponse) {
		t.Fatalf("err=%v want ErrLostResponse", err)
	}
}

func TestSessionKeepAliveWhenConnected(t *testing.T) {
	testlog.Start(t)
	codec := iso.NewJSONCodec(iso.DefaultSpec())
	port := hosttest.Start(t).Port
	s := NewSession(Options{Host: "127.0.0.1", Port: port, KeepAliveInterval: 20 * time.Millisecond}, codec, nil)
	rec := newMatchRecorder()
	s.SetMatchListener(rec)
	runSession(t, s)

	var err error
	if callErr := s.Call(context.Background(), func() { err = s.Conn().Connect("", 0) }); callErr != nil || err != nil {
		t.Fatalf("connect call=%v err=%v", callErr, err)
	}
	req, resp := rec.wait(t)
	if !req.IsKeepAlive || req.MTI != "0800" || resp.MTI != "0810" {
		t.Fatalf("unexpected keep-alive exchange req=%+v resp=%+v", req, resp)
	}
}

func TestSessionRejectsWorkAfterStop(t *testing.T) {
	testlog.Start(t)
	s := NewSession(Options{}, iso.NewJSONCodec(iso.DefaultSpec()), nil)
	stop := runSession(t, s)

	if err := s.Call(context.Background(), func() {}); err != nil {
		t.Fatalf("call while running: %v", err)
	}
	if err := stop(); err != nil {
		t.Fatalf("run returned %v", err)
	}
	if err := s.Post(func() {}); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("err=%v want ErrSessionClosed", err)
	}
	if err := s.Run(context.Background()); !errors.Is(err, ErrSessionRunning) {
		t.Fatalf("second run err=%v", err)
	}
}

func TestSessionRecoversPanickingTask(t *testing.T) {
	testlog.Start(t)
	s := NewSession(Options{}, iso.NewJSONCodec(iso.DefaultSpec()), nil)
	runSession(t, s)
	_ = s.Post(func() { panic("boom") })
	ran := false
	if err := s.Call(context.Background(), func() { ran = true }); err != nil || !ran {
		t.Fatalf("loop did not survive panic: err=%v ran=%v", err, ran)
	}
}
