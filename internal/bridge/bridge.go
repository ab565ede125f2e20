package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/signalctl/internal/config"
	"github.com/danmuck/signalctl/internal/iso"
	"github.com/danmuck/signalctl/internal/observability"
	"github.com/danmuck/signalctl/internal/terminal"
	"github.com/rs/zerolog/log"
)

var (
	ErrDispatch   = errors.New("bridge: no handler for request type")
	ErrBadRequest = errors.New("bridge: malformed request")
	ErrUpdate     = errors.New("bridge: update failed")
	ErrInternal   = errors.New("bridge: internal error")
)

type handler func(req Request)

type waiter struct {
	req      Request
	deadline time.Time
}

// Bridge turns API requests into terminal operations on the session loop
// and routes the answers back to the waiting callers.
type Bridge struct {
	session    *terminal.Session
	store      config.Persistence
	correlator *Correlator
	handlers   map[RequestType]handler

	cfgMu sync.RWMutex
	cfg   config.Config

	// loop-owned: transaction id -> request waiting for its host response
	awaiting map[string]waiter
}

var _ terminal.MatchListener = (*Bridge)(nil)

// New wires a bridge to session and registers it as the match listener.
// It panics when a request type has no handler.
func New(session *terminal.Session, store config.Persistence, cfg config.Config) *Bridge {
	b := &Bridge{
		session:    session,
		store:      store,
		correlator: NewCorrelator(cfg.API.WaitTimeout.Duration, cfg.API.LateAnswerTTL.Duration),
		cfg:        cfg,
		awaiting:   make(map[string]waiter),
	}
	b.handlers = map[RequestType]handler{
		OutgoingTransaction: b.handleOutgoing,
		ReverseTransaction:  b.handleReverse,
		Connect:             b.handleConnect,
		Disconnect:          b.handleDisconnect,
		Reconnect:           b.handleReconnect,
		GetConnection:       b.handleGetConnection,
		GetTransaction:      b.handleGetTransaction,
		GetTransactions:     b.handleGetTransactions,
		GetSpec:             b.handleGetSpec,
		UpdateSpec:          b.handleUpdateSpec,
		GetConfig:           b.handleGetConfig,
		UpdateConfig:        b.handleUpdateConfig,
	}
	if err := checkHandlers(b.handlers); err != nil {
		panic(err)
	}
	session.SetMatchListener(b)
	return b
}

func checkHandlers(handlers map[RequestType]handler) error {
	for _, t := range RequestTypes() {
		if handlers[t] == nil {
			return fmt.Errorf("%w: %s", ErrDispatch, t)
		}
	}
	return nil
}

// Config returns the active configuration.
func (b *Bridge) Config() config.Config {
	b.cfgMu.RLock()
	defer b.cfgMu.RUnlock()
	return b.cfg.Clone()
}

func (b *Bridge) setConfig(cfg config.Config) {
	b.cfgMu.Lock()
	b.cfg = cfg
	b.cfgMu.Unlock()
}

func (b *Bridge) Session() *terminal.Session {
	return b.session
}

func (b *Bridge) Pending() int {
	return b.correlator.Pending()
}

// Close fails all waiting callers.
func (b *Bridge) Close() {
	b.correlator.Close()
}

// Submit runs req on the terminal loop and waits for its answer. The
// returned request always carries an HTTP status; err is set when no
// answer arrived.
func (b *Bridge) Submit(ctx context.Context, req Request) (Request, error) {
	if req.Type.changesConnection() {
		if !b.session.Conn().Reserve() {
			req.Status = statusFor(terminal.ErrConnectionInProgress)
			req.Error = terminal.ErrConnectionInProgress.Error()
			observability.RecordBridgeRequest(req.Type.String(), req.Status)
			return req, nil
		}
	}

	var dispatched atomic.Bool
	res, err := b.correlator.Submit(ctx, req, func(r Request) {
		dispatched.Store(true)
		b.dispatch(r)
	})
	if req.Type.changesConnection() && !dispatched.Load() {
		b.session.Conn().Release()
	}
	if err != nil {
		res.Status = statusFor(err)
		res.Error = err.Error()
	}
	observability.RecordBridgeRequest(res.Type.String(), res.Status)
	return res, err
}

func (b *Bridge) dispatch(req Request) {
	err := b.session.Post(func() { b.handle(req) })
	if err == nil {
		return
	}
	if req.Type.changesConnection() {
		b.session.Conn().Release()
	}
	b.finish(req, nil, err)
}

// handle runs on the session loop.
func (b *Bridge) handle(req Request) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("request_id", req.ID.String()).
				Str("type", req.Type.String()).
				Msg("bridge.Bridge.handle recovered")
			b.finish(req, nil, fmt.Errorf("%w: %v", ErrInternal, r))
		}
	}()
	if req.Type.changesConnection() {
		defer b.session.Conn().Release()
	}
	h, ok := b.handlers[req.Type]
	if !ok {
		b.finish(req, nil, fmt.Errorf("%w: %s", ErrDispatch, req.Type))
		return
	}
	h(req)
}

func (b *Bridge) finish(req Request, resp any, err error) {
	if err != nil {
		req.Status = statusFor(err)
		req.Error = err.Error()
		ev := log.Warn()
		if req.Status >= http.StatusInternalServerError {
			ev = log.Error()
		}
		ev.Err(err).
			Str("request_id", req.ID.String()).
			Str("type", req.Type.String()).
			Int("status", req.Status).
			Msg("bridge.Bridge.finish failed")
	} else {
		req.Status = http.StatusOK
		req.Response = resp
	}
	b.correlator.Complete(req.ID, req)
}

// TransactionMatched completes the request waiting on request.ID with the
// host response.
func (b *Bridge) TransactionMatched(request, response iso.Transaction) {
	w, ok := b.awaiting[request.ID]
	if !ok {
		return
	}
	delete(b.awaiting, request.ID)
	b.finish(w.req, response, nil)
}

func (b *Bridge) await(txID string, req Request) {
	now := time.Now()
	for id, w := range b.awaiting {
		if now.After(w.deadline) {
			delete(b.awaiting, id)
		}
	}
	ttl := b.Config().API.WaitTimeout.Duration + b.Config().API.LateAnswerTTL.Duration
	b.awaiting[txID] = waiter{req: req, deadline: now.Add(ttl)}
}

func (b *Bridge) sendAndWait(req Request, tx iso.Transaction) {
	sent, err := b.session.Send(tx)
	if err != nil {
		b.finish(req, nil, err)
		return
	}
	if !b.Config().API.WaitRemoteResponse || !sent.IsRequest {
		b.finish(req, sent, nil)
		return
	}
	b.await(sent.ID, req)
}

func (b *Bridge) handleOutgoing(req Request) {
	if req.Transaction == nil {
		b.finish(req, nil, fmt.Errorf("%w: missing transaction", ErrBadRequest))
		return
	}
	tx := req.Transaction.Clone()
	// reversal and keep-alive marks come only from the terminal itself
	tx.IsReversal = false
	tx.IsKeepAlive = false
	b.sendAndWait(req, tx)
}

func (b *Bridge) handleReverse(req Request) {
	original, ok := b.session.Store().Get(req.TransactionID)
	if !ok {
		b.finish(req, nil, fmt.Errorf("%w: %s", terminal.ErrNotFound, req.TransactionID))
		return
	}
	reversal, err := b.session.Reversals().Build(original)
	if err != nil {
		b.finish(req, nil, err)
		return
	}
	b.sendAndWait(req, reversal)
}

func target(c *terminal.Connection) (string, int) {
	if c == nil {
		return "", 0
	}
	return c.Host, c.Port
}

func (b *Bridge) handleConnect(req Request) {
	conn := b.session.Conn()
	host, port := target(req.Connection)
	if err := conn.Connect(host, port); err != nil {
		b.finish(req, nil, err)
		return
	}
	b.finish(req, conn.Connection(), nil)
}

func (b *Bridge) handleDisconnect(req Request) {
	conn := b.session.Conn()
	if err := conn.Disconnect(); err != nil {
		b.finish(req, nil, err)
		return
	}
	b.finish(req, conn.Connection(), nil)
}

func (b *Bridge) handleReconnect(req Request) {
	conn := b.session.Conn()
	host, port := target(req.Connection)
	if err := conn.Reconnect(host, port); err != nil {
		b.finish(req, nil, err)
		return
	}
	b.finish(req, conn.Connection(), nil)
}

func (b *Bridge) handleGetConnection(req Request) {
	b.finish(req, b.session.Conn().Connection(), nil)
}

func (b *Bridge) handleGetTransaction(req Request) {
	tx, ok := b.session.Store().Get(req.TransactionID)
	if !ok {
		b.finish(req, nil, fmt.Errorf("%w: %s", terminal.ErrNotFound, req.TransactionID))
		return
	}
	b.finish(req, tx, nil)
}

func (b *Bridge) handleGetTransactions(req Request) {
	all := b.session.Store().All()
	out := make(map[string]iso.Transaction, len(all))
	for _, tx := range all {
		out[tx.ID] = tx
	}
	b.finish(req, out, nil)
}

func (b *Bridge) handleGetSpec(req Request) {
	b.finish(req, b.session.Spec(), nil)
}

func (b *Bridge) handleUpdateSpec(req Request) {
	if req.Spec == nil {
		b.finish(req, nil, fmt.Errorf("%w: missing specification", ErrBadRequest))
		return
	}
	if err := b.store.SaveSpec(*req.Spec); err != nil {
		b.finish(req, nil, fmt.Errorf("%w: %w", ErrUpdate, err))
		return
	}
	spec, err := b.store.LoadSpec()
	if err != nil {
		b.finish(req, nil, fmt.Errorf("%w: %w", ErrUpdate, err))
		return
	}
	b.session.SetSpec(spec)
	b.finish(req, spec, nil)
}

func (b *Bridge) handleGetConfig(req Request) {
	b.finish(req, b.Config(), nil)
}

func (b *Bridge) handleUpdateConfig(req Request) {
	if req.Config == nil {
		b.finish(req, nil, fmt.Errorf("%w: missing config", ErrBadRequest))
		return
	}
	if err := b.store.SaveConfig(*req.Config); err != nil {
		b.finish(req, nil, fmt.Errorf("%w: %w", ErrUpdate, err))
		return
	}
	cfg, err := b.store.LoadConfig()
	if err != nil {
		b.finish(req, nil, fmt.Errorf("%w: %w", ErrUpdate, err))
		return
	}
	prev := b.Config()
	b.setConfig(cfg)
	b.session.ApplyOptions(cfg.TerminalOptions())
	b.correlator.SetTimeout(cfg.API.WaitTimeout.Duration)
	if cfg.Transport.ClearOnHostChange && prev.Host != cfg.Host {
		b.session.Store().Reset()
		log.Info().Str("host", cfg.HostAddr()).Msg("bridge.Bridge.updateConfig host changed, history cleared")
	}
	b.finish(req, cfg, nil)
}

// statusFor maps an error to the HTTP status reported to the caller.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, terminal.ErrConnectionInProgress),
		errors.Is(err, terminal.ErrAlreadyConnected),
		errors.Is(err, terminal.ErrAlreadyDisconnected):
		return http.StatusNotAcceptable
	case errors.Is(err, terminal.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	case errors.Is(err, terminal.ErrTransactionSend),
		errors.Is(err, terminal.ErrDuplicateTransaction),
		errors.Is(err, terminal.ErrLostResponse),
		errors.Is(err, terminal.ErrNonReversibleMTI),
		errors.Is(err, iso.ErrInvalidTransaction),
		errors.Is(err, ErrUpdate):
		return http.StatusUnprocessableEntity
	case errors.Is(err, terminal.ErrConnect),
		errors.Is(err, terminal.ErrDisconnect),
		errors.Is(err, terminal.ErrCannotDisconnect),
		errors.Is(err, terminal.ErrHostRequired):
		return http.StatusBadGateway
	case errors.Is(err, terminal.ErrSessionClosed),
		errors.Is(err, ErrCorrelatorClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Present renders tx for API output according to the active config.
func (b *Bridge) Present(tx iso.Transaction) any {
	api := b.Config().API
	if api.HideSecrets {
		fields := api.SecretFields
		if len(fields) == 0 {
			fields = b.session.Spec().SecretFields()
		}
		tx = tx.MaskSecrets(fields)
	}
	if api.HideInternalFlags {
		return tx.Public()
	}
	return tx
}
