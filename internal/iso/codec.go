package iso

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
)

var ErrDecode = errors.New("iso: cannot decode message")

// Codec is the field-level message codec consumed by the terminal core.
type Codec interface {
	Encode(tx Transaction) ([]byte, error)
	Decode(raw []byte) (Transaction, error)
	// ReversalMTI returns "" when mti is not reversible.
	ReversalMTI(mti string) string
	// ReversalFields builds the data fields of a reversal for request.
	// response may be the zero value.
	ReversalFields(request, response Transaction) map[string]string
	// Outcome classifies a response message.
	Outcome(response Transaction) (bool, string)
	MatchFields() []string
	Spec() Spec
	SetSpec(spec Spec)
}

type wireMessage struct {
	MTI    string            `json:"mti"`
	Fields map[string]string `json:"fields"`
}

// JSONCodec carries MTI and fields as a JSON object. It stands in for the
// bitmap codec in tests and in the simulator binary.
type JSONCodec struct {
	spec atomic.Pointer[Spec]
}

var _ Codec = (*JSONCodec)(nil)

func NewJSONCodec(spec Spec) *JSONCodec {
	c := &JSONCodec{}
	c.SetSpec(spec)
	return c
}

func (c *JSONCodec) Spec() Spec {
	return c.spec.Load().Clone()
}

func (c *JSONCodec) SetSpec(spec Spec) {
	s := spec.Clone()
	c.spec.Store(&s)
}

func (c *JSONCodec) Encode(tx Transaction) ([]byte, error) {
	if !ValidMTI(tx.MTI) {
		return nil, fmt.Errorf("%w: message_type %q", ErrInvalidTransaction, tx.MTI)
	}
	fields := tx.Fields
	if fields == nil {
		fields = map[string]string{}
	}
	return json.Marshal(wireMessage{MTI: tx.MTI, Fields: fields})
}

func (c *JSONCodec) Decode(raw []byte) (Transaction, error) {
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Transaction{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if !ValidMTI(msg.MTI) {
		return Transaction{}, fmt.Errorf("%w: message_type %q", ErrDecode, msg.MTI)
	}
	if msg.Fields == nil {
		msg.Fields = map[string]string{}
	}
	spec := c.spec.Load()
	keepAlive := spec.KeepAliveMTI != "" &&
		(msg.MTI == spec.KeepAliveMTI || msg.MTI == ResponseMTI(spec.KeepAliveMTI))
	return Transaction{
		MTI:         msg.MTI,
		Fields:      msg.Fields,
		IsRequest:   IsRequestMTI(msg.MTI),
		IsKeepAlive: keepAlive,
	}, nil
}

func (c *JSONCodec) ReversalMTI(mti string) string {
	return c.spec.Load().Reversals[mti]
}

func (c *JSONCodec) ReversalFields(request, response Transaction) map[string]string {
	spec := c.spec.Load()
	out := make(map[string]string, len(spec.ReversalFields)+2)
	for _, id := range spec.ReversalFields {
		if v, ok := request.Fields[id]; ok {
			out[id] = v
		}
	}
	if auth, ok := response.Fields["38"]; ok {
		out["38"] = auth
	}
	out["90"] = request.MTI + padLeft(request.Fields["11"], 6) + padLeft(request.Fields["7"], 10)
	return out
}

func (c *JSONCodec) Outcome(response Transaction) (bool, string) {
	spec := c.spec.Load()
	if spec.ResponseCodeField == "" {
		return true, ""
	}
	code, ok := response.Fields[spec.ResponseCodeField]
	if !ok {
		return false, fmt.Sprintf("response has no field %s", spec.ResponseCodeField)
	}
	if slices.Contains(spec.SuccessCodes, code) {
		return true, ""
	}
	return false, fmt.Sprintf("declined with response code %q", code)
}

func padLeft(v string, n int) string {
	if len(v) >= n {
		return v[:n]
	}
	return strings.Repeat("0", n-len(v)) + v
}

func (c *JSONCodec) MatchFields() []string {
	return append([]string(nil), c.spec.Load().MatchFields...)
}
