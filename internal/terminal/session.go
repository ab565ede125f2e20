package terminal

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/signalctl/internal/iso"
	"github.com/danmuck/signalctl/internal/observability"
	"github.com/rs/zerolog/log"
)

// MatchListener is notified on the session loop when an inbound response is
// matched to a stored request for the first time.
type MatchListener interface {
	TransactionMatched(request, response iso.Transaction)
}

// Session is the simulated terminal. All state is owned by the goroutine
// running Run; other goroutines schedule work with Post or Call.
type Session struct {
	opts      Options
	codec     iso.Codec
	conn      *ConnManager
	store     *Store
	reversals *ReversalBuilder
	listener  MatchListener

	queue   *taskQueue
	running atomic.Bool
	stopped chan struct{}
	stan    atomic.Uint32
}

func NewSession(opts Options, codec iso.Codec, dialer Dialer) *Session {
	opts = opts.WithDefaults()
	store := NewStore(opts.MaxTransactions)
	s := &Session{
		opts:      opts,
		codec:     codec,
		conn:      NewConnManager(opts, dialer),
		store:     store,
		reversals: NewReversalBuilder(store, codec),
		queue:     newTaskQueue(),
		stopped:   make(chan struct{}),
	}
	s.conn.SetHooks(s.onInboundFrame, s.onConnClosed)
	return s
}

// SetMatchListener installs l. Call before Run.
func (s *Session) SetMatchListener(l MatchListener) {
	s.listener = l
}

// Run drives the session loop until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrSessionRunning
	}
	defer s.shutdown()
	log.Info().Msg("terminal.Session.Run started")

	var (
		ticker   *time.Ticker
		tick     <-chan time.Time
		interval time.Duration
	)
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()
	for {
		if s.opts.KeepAliveInterval != interval {
			if ticker != nil {
				ticker.Stop()
				ticker, tick = nil, nil
			}
			interval = s.opts.KeepAliveInterval
			if interval > 0 {
				ticker = time.NewTicker(interval)
				tick = ticker.C
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-s.queue.notify:
			for _, fn := range s.queue.drain() {
				s.runTask(fn)
			}
		case <-tick:
			s.sendKeepAlive()
		}
	}
}

func (s *Session) shutdown() {
	dropped := s.queue.close()
	close(s.stopped)
	if s.conn.State() != StateDisconnected {
		if err := s.conn.Disconnect(); err != nil {
			log.Warn().Err(err).Msg("terminal.Session.shutdown disconnect failed")
		}
	}
	log.Info().Int("dropped_tasks", dropped).Msg("terminal.Session.Run stopped")
}

func (s *Session) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("terminal.Session.runTask recovered")
		}
	}()
	fn()
}

// Post schedules fn on the session loop.
func (s *Session) Post(fn func()) error {
	if !s.queue.push(fn) {
		return ErrSessionClosed
	}
	return nil
}

// Call runs fn on the session loop and waits for it to return.
func (s *Session) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := s.Post(func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-s.stopped:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Loop-owned accessors. Use only from tasks running on the session loop.

func (s *Session) Conn() *ConnManager { return s.conn }

func (s *Session) Store() *Store { return s.store }

func (s *Session) Reversals() *ReversalBuilder { return s.reversals }

func (s *Session) Codec() iso.Codec { return s.codec }

func (s *Session) Options() Options { return s.opts }

// ApplyOptions swaps options for subsequent operations. The live socket is
// left untouched.
func (s *Session) ApplyOptions(opts Options) {
	s.opts = opts.WithDefaults()
	s.conn.SetOptions(s.opts)
	s.store.max = s.opts.MaxTransactions
	log.Info().Str("host", s.opts.Host).Int("port", s.opts.Port).Msg("terminal.Session.ApplyOptions")
}

// SetSpec swaps the codec spec used by subsequent encode and decode calls.
func (s *Session) SetSpec(spec iso.Spec) {
	s.codec.SetSpec(spec)
	log.Info().Str("spec", spec.Name).Str("version", spec.Version).Msg("terminal.Session.SetSpec")
}

// Send assigns an id when missing, encodes tx and writes it to the host.
// Match and outcome state always starts clear; IsRequest follows the MTI.
// The transaction is stored whether or not the write succeeds.
func (s *Session) Send(tx iso.Transaction) (iso.Transaction, error) {
	tx = tx.Clone()
	if tx.ID == "" {
		tx.ID = iso.NewID()
	}
	tx.IsRequest = iso.IsRequestMTI(tx.MTI)
	tx.MatchID = ""
	tx.Matched = false
	tx.Success = false
	tx.Error = ""
	tx.SentAt = time.Time{}
	tx.ReceivedAt = time.Time{}
	if err := tx.Validate(); err != nil {
		return tx, err
	}
	if _, exists := s.store.Get(tx.ID); exists {
		return tx, fmt.Errorf("%w: %s", ErrDuplicateTransaction, tx.ID)
	}
	payload, err := s.codec.Encode(tx)
	if err != nil {
		return tx, &SendError{TransactionID: tx.ID, Err: err}
	}
	tx.SentAt = time.Now().UTC()
	if err := s.conn.Send(tx.ID, payload); err != nil {
		tx.Error = err.Error()
		s.store.Put(tx)
		log.Warn().Err(err).Str("trans_id", tx.ID).Str("mti", tx.MTI).Msg("terminal.Session.send failed")
		return tx, err
	}
	s.store.Put(tx)
	observability.RecordTransaction("outgoing", tx.MTI)
	log.Info().Str("trans_id", tx.ID).Str("mti", tx.MTI).Msg("terminal.Session.send")
	return tx, nil
}

func (s *Session) onInboundFrame(payload []byte) {
	if err := s.Post(func() { s.handleInbound(payload) }); err != nil {
		log.Debug().Err(err).Msg("terminal.Session.onInboundFrame dropped")
	}
}

func (s *Session) onConnClosed(conn net.Conn, cause error) {
	_ = s.Post(func() { s.conn.HandleClosed(conn, cause) })
}

func (s *Session) handleInbound(payload []byte) {
	tx, err := s.codec.Decode(payload)
	if err != nil {
		log.Error().Err(err).Int("bytes", len(payload)).Msg("terminal.Session.handleInbound decode failed")
		return
	}
	tx.ID = iso.NewID()
	tx.ReceivedAt = time.Now().UTC()
	observability.RecordTransaction("incoming", tx.MTI)

	if tx.IsRequest {
		s.store.Put(tx)
		log.Info().Str("trans_id", tx.ID).Str("mti", tx.MTI).Msg("terminal.Session.inbound request")
		return
	}
	tx.Success, tx.Error = s.codec.Outcome(tx)
	if id, ok := s.store.FindRequest(tx, s.codec.MatchFields()); ok {
		tx.MatchID = id
	}
	s.deliver(tx)
}

// deliver stores an inbound response and notifies the listener on its
// first match.
func (s *Session) deliver(resp iso.Transaction) {
	req, resp, matched := s.store.MatchInbound(resp)
	if !matched {
		return
	}
	log.Info().
		Str("trans_id", req.ID).
		Str("response_id", resp.ID).
		Bool("success", resp.Success).
		Msg("terminal.Session.matched")
	if s.listener != nil {
		s.listener.TransactionMatched(req, resp)
	}
}

func (s *Session) sendKeepAlive() {
	if !s.conn.IsConnected() {
		return
	}
	now := time.Now().UTC()
	tx := iso.Transaction{
		MTI:         s.opts.KeepAliveMTI,
		IsKeepAlive: true,
		Fields: map[string]string{
			"7":  now.Format("0102150405"),
			"11": fmt.Sprintf("%06d", s.stan.Add(1)%1000000),
			"70": "301",
		},
	}
	if _, err := s.Send(tx); err != nil {
		log.Warn().Err(err).Msg("terminal.Session.keepAlive failed")
	}
}

// Thread-safe getters. Each hops onto the loop and returns copies.

func (s *Session) Connection(ctx context.Context) (Connection, error) {
	var out Connection
	err := s.Call(ctx, func() { out = s.conn.Connection() })
	return out, err
}

func (s *Session) Transaction(ctx context.Context, id string) (iso.Transaction, bool, error) {
	var (
		out iso.Transaction
		ok  bool
	)
	err := s.Call(ctx, func() { out, ok = s.store.Get(id) })
	return out, ok, err
}

func (s *Session) Transactions(ctx context.Context) ([]iso.Transaction, error) {
	var out []iso.Transaction
	err := s.Call(ctx, func() { out = s.store.All() })
	return out, err
}

func (s *Session) Reversible(ctx context.Context) ([]iso.Transaction, error) {
	var out []iso.Transaction
	err := s.Call(ctx, func() { out = s.store.Reversible(s.codec) })
	return out, err
}

// Spec is safe from any goroutine; the codec publishes specs atomically.
func (s *Session) Spec() iso.Spec {
	return s.codec.Spec()
}

type taskQueue struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	notify chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{notify: make(chan struct{}, 1)}
}

func (q *taskQueue) push(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

func (q *taskQueue) drain() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.tasks
	q.tasks = nil
	return out
}

func (q *taskQueue) close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	n := len(q.tasks)
	q.tasks = nil
	return n
}
