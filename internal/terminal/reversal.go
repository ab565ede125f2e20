package terminal

import (
	"fmt"

	"github.com/danmuck/signalctl/internal/iso"
)

// ReversalBuilder derives reversal messages from stored transactions.
type ReversalBuilder struct {
	store *Store
	codec iso.Codec
}

func NewReversalBuilder(store *Store, codec iso.Codec) *ReversalBuilder {
	return &ReversalBuilder{store: store, codec: codec}
}

// Build returns a new reversal request for the stored transaction with the
// id of original. The stored copy is authoritative. Checks run in order:
// existence, matched response, reversible message type.
func (b *ReversalBuilder) Build(original iso.Transaction) (iso.Transaction, error) {
	stored, ok := b.store.Get(original.ID)
	if !ok {
		return iso.Transaction{}, fmt.Errorf("%w: %s", ErrNotFound, original.ID)
	}
	if !stored.Matched {
		return iso.Transaction{}, fmt.Errorf("%w: %s", ErrLostResponse, stored.ID)
	}

	request, response := stored, iso.Transaction{}
	if stored.IsRequest {
		response, _ = b.store.ResponseFor(stored.ID)
	} else {
		req, found := b.store.Get(stored.MatchID)
		if stored.MatchID == "" || !found {
			return iso.Transaction{}, fmt.Errorf("%w: %s", ErrLostResponse, stored.ID)
		}
		request, response = req, stored
	}

	mti := b.codec.ReversalMTI(request.MTI)
	if mti == "" {
		return iso.Transaction{}, fmt.Errorf("%w: %s", ErrNonReversibleMTI, request.MTI)
	}
	return iso.Transaction{
		ID:         iso.NewID(),
		MTI:        mti,
		Fields:     b.codec.ReversalFields(request, response),
		IsRequest:  true,
		IsReversal: true,
	}, nil
}
