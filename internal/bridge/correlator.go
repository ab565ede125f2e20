package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/signalctl/internal/observability"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
)

var (
	ErrTimeout          = errors.New("bridge: timed out waiting for the terminal")
	ErrCorrelatorClosed = errors.New("bridge: correlator closed")
)

// Correlator pairs API callers with the terminal answer for their request.
// Each pending entry completes at most once.
type Correlator struct {
	mu      sync.Mutex
	timeout time.Duration
	pending map[uuid.UUID]chan Request
	closed  bool
	late    *cache.Cache
}

func NewCorrelator(timeout, lateTTL time.Duration) *Correlator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if lateTTL <= 0 {
		lateTTL = time.Minute
	}
	return &Correlator{
		timeout: timeout,
		pending: make(map[uuid.UUID]chan Request),
		late:    cache.New(lateTTL, 2*lateTTL),
	}
}

func (c *Correlator) SetTimeout(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	c.mu.Lock()
	c.timeout = timeout
	c.mu.Unlock()
}

// Submit assigns req a fresh id, registers it, hands it to dispatch and
// waits for Complete, ctx or the timeout. A timeout does not cancel the
// work dispatch started.
func (c *Correlator) Submit(ctx context.Context, req Request, dispatch func(Request)) (Request, error) {
	req.ID = uuid.New()
	ch := make(chan Request, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return req, ErrCorrelatorClosed
	}
	c.pending[req.ID] = ch
	timeout := c.timeout
	n := len(c.pending)
	c.mu.Unlock()
	observability.SetBridgePending(n)

	dispatch(req)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res, ok := <-ch:
		if !ok {
			return req, ErrCorrelatorClosed
		}
		return res, nil
	case <-timer.C:
		if res, done, err := c.abandon(req.ID, ch); done {
			if err != nil {
				return req, err
			}
			return res, nil
		}
		log.Warn().
			Str("request_id", req.ID.String()).
			Str("type", req.Type.String()).
			Dur("timeout", timeout).
			Msg("bridge.Correlator.Submit timed out")
		return req, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	case <-ctx.Done():
		if res, done, err := c.abandon(req.ID, ch); done {
			if err != nil {
				return req, err
			}
			return res, nil
		}
		return req, ctx.Err()
	}
}

// abandon drops a pending entry. When Complete or Close got there first it
// reports done with the delivered result or ErrCorrelatorClosed.
func (c *Correlator) abandon(id uuid.UUID, ch chan Request) (Request, bool, error) {
	c.mu.Lock()
	_, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
		c.late.SetDefault(id.String(), struct{}{})
	}
	n := len(c.pending)
	c.mu.Unlock()
	observability.SetBridgePending(n)
	if ok {
		return Request{}, false, nil
	}
	res, open := <-ch
	if !open {
		return Request{}, true, ErrCorrelatorClosed
	}
	return res, true, nil
}

// Complete delivers res to the caller waiting on id. Unknown or finished
// ids are ignored and reported false.
func (c *Correlator) Complete(id uuid.UUID, res Request) bool {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
		ch <- res
	}
	n := len(c.pending)
	c.mu.Unlock()

	if !ok {
		if _, late := c.late.Get(id.String()); late {
			log.Warn().Str("request_id", id.String()).Msg("bridge.Correlator.Complete discarding late answer")
		} else {
			log.Debug().Str("request_id", id.String()).Msg("bridge.Correlator.Complete unknown request")
		}
		return false
	}
	observability.SetBridgePending(n)
	return true
}

func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close fails every waiting caller and rejects new submissions.
func (c *Correlator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	observability.SetBridgePending(0)
}
