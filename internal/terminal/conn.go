package terminal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/signalctl/internal/observability"
	"github.com/danmuck/signalctl/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

func (s ConnState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Connection is the externally visible connection snapshot.
type Connection struct {
	Status ConnState `json:"status"`
	Host   string    `json:"host"`
	Port   int       `json:"port"`
}

// Dialer opens host connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ConnManager owns the single host TCP connection. Connect, Disconnect,
// Reconnect and Send must run on the session loop; State, InProgress and
// the reservation methods are safe from any goroutine.
type ConnManager struct {
	opts   Options
	dialer Dialer

	state    atomic.Int32
	reserved atomic.Bool

	conn       net.Conn
	readerDone chan struct{}
	host       string
	port       int
	lastHost   string
	lastPort   int

	hooksMu  sync.RWMutex
	onFrame  func([]byte)
	onClosed func(net.Conn, error)
}

func NewConnManager(opts Options, dialer Dialer) *ConnManager {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	return &ConnManager{
		opts:   opts.WithDefaults(),
		dialer: dialer,
	}
}

// SetHooks installs the reader callbacks. They are invoked on the reader
// goroutine and must not block.
func (m *ConnManager) SetHooks(onFrame func([]byte), onClosed func(net.Conn, error)) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.onFrame = onFrame
	m.onClosed = onClosed
}

// SetOptions replaces the options used by subsequent operations.
func (m *ConnManager) SetOptions(opts Options) {
	m.opts = opts.WithDefaults()
}

func (m *ConnManager) State() ConnState {
	return ConnState(m.state.Load())
}

func (m *ConnManager) IsConnected() bool {
	return m.State() == StateConnected
}

// InProgress reports a dial in flight or a reserved connection operation.
func (m *ConnManager) InProgress() bool {
	return m.State() == StateConnecting || m.reserved.Load()
}

// Reserve claims the connection-operation slot. Concurrent connection
// operations are rejected while it is held rather than queued.
func (m *ConnManager) Reserve() bool {
	if m.State() == StateConnecting {
		return false
	}
	return m.reserved.CompareAndSwap(false, true)
}

func (m *ConnManager) Release() {
	m.reserved.Store(false)
}

func (m *ConnManager) Connection() Connection {
	c := Connection{Status: m.State(), Host: m.host, Port: m.port}
	if c.Status != StateConnected {
		c.Host, c.Port = m.target("", 0, false)
	}
	return c
}

func (m *ConnManager) setState(s ConnState) {
	m.state.Store(int32(s))
	observability.SetConnectionState(int(s))
}

// target resolves explicit values, then the last used address when
// preferLast is set, then the configured host.
func (m *ConnManager) target(host string, port int, preferLast bool) (string, int) {
	host = strings.TrimSpace(host)
	if host == "" && preferLast {
		host = m.lastHost
	}
	if host == "" {
		host = m.opts.Host
	}
	if port <= 0 && preferLast {
		port = m.lastPort
	}
	if port <= 0 {
		port = m.opts.Port
	}
	return host, port
}

// Connect dials host:port, falling back to the configured address when
// either is omitted.
func (m *ConnManager) Connect(host string, port int) error {
	return m.connect(host, port, false)
}

func (m *ConnManager) connect(host string, port int, preferLast bool) error {
	switch m.State() {
	case StateConnecting:
		return ErrConnectionInProgress
	case StateConnected:
		return fmt.Errorf("%w: %s", ErrAlreadyConnected, net.JoinHostPort(m.host, strconv.Itoa(m.port)))
	}
	host, port = m.target(host, port, preferLast)
	if host == "" || port <= 0 {
		return ErrHostRequired
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	m.setState(StateConnecting)
	log.Info().Str("addr", addr).Msg("terminal.ConnManager.connect dialing")
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.ConnectTimeout)
	defer cancel()
	conn, err := m.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		m.setState(StateDisconnected)
		log.Warn().Err(err).Str("addr", addr).Msg("terminal.ConnManager.connect failed")
		return fmt.Errorf("%w: %s: %v", ErrConnect, addr, err)
	}

	done := make(chan struct{})
	m.conn = conn
	m.readerDone = done
	m.host, m.port = host, port
	m.lastHost, m.lastPort = host, port
	m.setState(StateConnected)
	go m.readLoop(conn, done, m.limits())
	log.Info().Str("addr", addr).Msg("terminal.ConnManager.connect connected")
	return nil
}

// Disconnect closes the socket and waits for the reader to stop.
func (m *ConnManager) Disconnect() error {
	if m.State() == StateDisconnected || m.conn == nil {
		return ErrAlreadyDisconnected
	}
	conn, done := m.conn, m.readerDone
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Warn().Err(err).Msg("terminal.ConnManager.disconnect close failed")
		return fmt.Errorf("%w: %v", ErrDisconnect, err)
	}
	timer := time.NewTimer(m.opts.DisconnectTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		return fmt.Errorf("%w: reader did not stop within %s", ErrDisconnect, m.opts.DisconnectTimeout)
	}
	m.clearIf(conn)
	log.Info().Str("host", m.host).Int("port", m.port).Msg("terminal.ConnManager.disconnect done")
	return nil
}

// Reconnect disconnects, retrying a bounded number of times, then connects
// to host:port or to the last used address.
func (m *ConnManager) Reconnect(host string, port int) error {
	backoff := BackoffConfig{
		InitialDelay: m.opts.ReconnectBackoff,
		Multiplier:   2,
		MaxDelay:     m.opts.DisconnectTimeout,
	}
	attempts := 0
	for m.State() != StateDisconnected {
		if attempts >= m.opts.ReconnectAttempts {
			log.Error().Int("attempts", attempts).Msg("terminal.ConnManager.reconnect socket still open")
			return fmt.Errorf("%w after %d attempts", ErrCannotDisconnect, attempts)
		}
		attempts++
		if err := m.Disconnect(); err != nil {
			log.Warn().Err(err).Int("attempt", attempts).Msg("terminal.ConnManager.reconnect disconnect failed")
			if delay := NextBackoffDelay(backoff, attempts, nil); delay > 0 {
				time.Sleep(delay)
			}
		}
	}
	return m.connect(host, port, true)
}

// HandleClosed records a reader-observed close for conn. Stale notifications
// for an earlier socket are ignored.
func (m *ConnManager) HandleClosed(conn net.Conn, err error) {
	if m.conn != conn {
		return
	}
	log.Warn().Err(err).Str("host", m.host).Int("port", m.port).Msg("terminal.ConnManager.reader closed")
	_ = conn.Close()
	m.clearIf(conn)
}

func (m *ConnManager) clearIf(conn net.Conn) {
	if m.conn != conn {
		return
	}
	m.conn = nil
	m.readerDone = nil
	m.setState(StateDisconnected)
}

// Send writes one framed payload, reconnecting first when the socket is down.
func (m *ConnManager) Send(txID string, payload []byte) error {
	if !m.IsConnected() {
		log.Warn().Str("trans_id", txID).Msg("terminal.ConnManager.send not connected, reconnecting")
		if err := m.Reconnect("", 0); err != nil {
			return &SendError{TransactionID: txID, Err: err}
		}
	}
	if !m.IsConnected() || m.conn == nil {
		return &SendError{TransactionID: txID, Err: ErrNotConnected}
	}
	if m.opts.WriteTimeout > 0 {
		_ = m.conn.SetWriteDeadline(time.Now().Add(m.opts.WriteTimeout))
	}
	if err := frame.WriteFrame(m.conn, payload, m.limits()); err != nil {
		return &SendError{TransactionID: txID, Err: err}
	}
	return nil
}

func (m *ConnManager) limits() frame.Limits {
	return frame.Limits{MaxPayloadBytes: m.opts.MaxFrameBytes}
}

// readLoop keeps the limits captured at connect; later option changes apply
// to the next connection.
func (m *ConnManager) readLoop(conn net.Conn, done chan struct{}, limits frame.Limits) {
	defer close(done)
	dec := frame.NewDecoder(limits)
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			payloads, ferr := dec.Feed(buf[:n])
			for _, p := range payloads {
				m.emitFrame(p)
			}
			if ferr != nil {
				log.Error().Err(ferr).Msg("terminal.ConnManager.readLoop framing error, dropping connection")
				m.emitClosed(conn, ferr)
				return
			}
		}
		if err != nil {
			m.emitClosed(conn, err)
			return
		}
	}
}

func (m *ConnManager) emitFrame(payload []byte) {
	m.hooksMu.RLock()
	fn := m.onFrame
	m.hooksMu.RUnlock()
	if fn != nil {
		fn(payload)
	}
}

func (m *ConnManager) emitClosed(conn net.Conn, err error) {
	m.hooksMu.RLock()
	fn := m.onClosed
	m.hooksMu.RUnlock()
	if fn != nil {
		fn(conn, err)
	}
}
