package hosttest

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/signalctl/internal/iso"
	"github.com/danmuck/signalctl/internal/protocol/frame"
)

// Host is a processing host stub. It answers every framed request with the
// matching response type, echoing fields 11 and 37.
type Host struct {
	Port int

	ln       net.Listener
	codec    *iso.JSONCodec
	mu       sync.Mutex
	code     string
	silent   bool
	delay    time.Duration
	received []iso.Transaction
}

func Start(t testing.TB) *Host {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("hosttest listen: %v", err)
	}
	h := &Host{
		Port:  ln.Addr().(*net.TCPAddr).Port,
		ln:    ln,
		codec: iso.NewJSONCodec(iso.DefaultSpec()),
		code:  "00",
	}
	t.Cleanup(func() { _ = ln.Close() })
	go h.accept()
	return h
}

// SetResponseCode changes field 39 of later responses.
func (h *Host) SetResponseCode(code string) {
	h.mu.Lock()
	h.code = code
	h.mu.Unlock()
}

// SetSilent stops the host from answering.
func (h *Host) SetSilent(silent bool) {
	h.mu.Lock()
	h.silent = silent
	h.mu.Unlock()
}

// SetDelay holds each later response for d before writing it.
func (h *Host) SetDelay(d time.Duration) {
	h.mu.Lock()
	h.delay = d
	h.mu.Unlock()
}

// Received returns every transaction the host decoded, in arrival order.
func (h *Host) Received() []iso.Transaction {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]iso.Transaction(nil), h.received...)
}

func (h *Host) accept() {
	for {
		c, err := h.ln.Accept()
		if err != nil {
			return
		}
		go h.serve(c)
	}
}

func (h *Host) serve(c net.Conn) {
	defer c.Close()
	for {
		raw, err := frame.ReadFrame(c, frame.DefaultLimits())
		if err != nil {
			return
		}
		req, err := h.codec.Decode(raw)
		if err != nil {
			return
		}
		h.mu.Lock()
		h.received = append(h.received, req)
		code, silent, delay := h.code, h.silent, h.delay
		h.mu.Unlock()
		if silent || !req.IsRequest {
			continue
		}

		fields := map[string]string{"38": "AUTH01", "39": code}
		for _, id := range []string{"11", "37"} {
			if v, ok := req.Fields[id]; ok {
				fields[id] = v
			}
		}
		resp, err := h.codec.Encode(iso.Transaction{MTI: iso.ResponseMTI(req.MTI), Fields: fields})
		if err != nil {
			return
		}
		if delay > 0 {
			time.Sleep(delay)
		}
		if err := frame.WriteFrame(c, resp, frame.DefaultLimits()); err != nil {
			return
		}
	}
}
