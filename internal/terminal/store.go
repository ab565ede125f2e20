package terminal

import (
	"slices"
	"sort"

	"github.com/danmuck/signalctl/internal/iso"
)

// ReversalLookup resolves the reversal message type for a request type.
type ReversalLookup interface {
	ReversalMTI(mti string) string
}

// Store is the session transaction history keyed by transaction id.
// Not safe for concurrent use; the session loop owns it.
type Store struct {
	items     map[string]iso.Transaction
	order     []string
	responses map[string]string // request id -> matched response id
	max       int
}

// NewStore keeps at most max transactions; zero means unbounded.
func NewStore(max int) *Store {
	return &Store{
		items:     make(map[string]iso.Transaction),
		responses: make(map[string]string),
		max:       max,
	}
}

func (s *Store) Len() int {
	return len(s.items)
}

// Put inserts or overwrites tx. A new id is appended to the history and the
// oldest entry is evicted once the bound is exceeded.
func (s *Store) Put(tx iso.Transaction) {
	if _, ok := s.items[tx.ID]; !ok {
		s.order = append(s.order, tx.ID)
	}
	s.items[tx.ID] = tx.Clone()
	for s.max > 0 && len(s.order) > s.max {
		oldest := s.order[0]
		s.order = slices.Delete(s.order, 0, 1)
		delete(s.items, oldest)
		delete(s.responses, oldest)
	}
}

func (s *Store) Get(id string) (iso.Transaction, bool) {
	tx, ok := s.items[id]
	if !ok {
		return iso.Transaction{}, false
	}
	return tx.Clone(), true
}

// All returns the history in insertion order.
func (s *Store) All() []iso.Transaction {
	out := make([]iso.Transaction, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id].Clone())
	}
	return out
}

// ResponseFor returns the response matched to requestID.
func (s *Store) ResponseFor(requestID string) (iso.Transaction, bool) {
	id, ok := s.responses[requestID]
	if !ok {
		return iso.Transaction{}, false
	}
	return s.Get(id)
}

// Reversible returns transactions whose message type has a reversal
// mapping, newest id first. Reversals themselves are excluded.
func (s *Store) Reversible(lookup ReversalLookup) []iso.Transaction {
	out := make([]iso.Transaction, 0)
	for _, id := range s.order {
		tx := s.items[id]
		if tx.IsReversal || lookup.ReversalMTI(tx.MTI) == "" {
			continue
		}
		out = append(out, tx.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// FindRequest returns the newest unmatched request that resp answers: same
// request message type and equal values for every present match field.
func (s *Store) FindRequest(resp iso.Transaction, matchFields []string) (string, bool) {
	wantMTI := iso.RequestMTI(resp.MTI)
	if wantMTI == "" || wantMTI == resp.MTI {
		return "", false
	}
	for i := len(s.order) - 1; i >= 0; i-- {
		tx := s.items[s.order[i]]
		if !tx.IsRequest || tx.Matched || tx.MTI != wantMTI {
			continue
		}
		if fieldsAgree(tx, resp, matchFields) {
			return tx.ID, true
		}
	}
	return "", false
}

func fieldsAgree(a, b iso.Transaction, ids []string) bool {
	compared := 0
	for _, id := range ids {
		av, aok := a.Field(id)
		bv, bok := b.Field(id)
		if !aok && !bok {
			continue
		}
		if av != bv {
			return false
		}
		compared++
	}
	return compared > 0 || len(ids) == 0
}

// MatchInbound stores resp and, when it references a stored request that
// has not been matched yet, marks both matched. It reports true only for
// the first match so repeated deliveries never re-trigger listeners.
func (s *Store) MatchInbound(resp iso.Transaction) (iso.Transaction, iso.Transaction, bool) {
	if prev, ok := s.items[resp.ID]; ok && prev.Matched {
		return iso.Transaction{}, iso.Transaction{}, false
	}
	req, ok := s.items[resp.MatchID]
	if resp.MatchID == "" || !ok || req.Matched {
		s.Put(resp)
		return iso.Transaction{}, iso.Transaction{}, false
	}
	resp.Matched = true
	req.Matched = true
	req.Success = resp.Success
	req.Error = resp.Error
	req.ReceivedAt = resp.ReceivedAt
	s.Put(resp)
	s.Put(req)
	s.responses[req.ID] = resp.ID
	return req.Clone(), resp.Clone(), true
}

// Reset drops the whole history.
func (s *Store) Reset() {
	s.items = make(map[string]iso.Transaction)
	s.responses = make(map[string]string)
	s.order = nil
}
