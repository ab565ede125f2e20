package iso

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidTransaction = errors.New("iso: invalid transaction")

// Transaction is one financial message instance.
type Transaction struct {
	ID          string            `json:"trans_id"`
	MatchID     string            `json:"match_id,omitempty"`
	MTI         string            `json:"message_type"`
	Fields      map[string]string `json:"data_fields"`
	IsRequest   bool              `json:"is_request"`
	IsReversal  bool              `json:"is_reversal"`
	IsKeepAlive bool              `json:"is_keep_alive"`
	Matched     bool              `json:"matched"`
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
	SentAt      time.Time         `json:"sending_time,omitempty"`
	ReceivedAt  time.Time         `json:"receiving_time,omitempty"`
}

// NewID returns a time-ordered transaction id.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("%w: missing trans_id", ErrInvalidTransaction)
	}
	if !ValidMTI(t.MTI) {
		return fmt.Errorf("%w: message_type %q must be 4 digits", ErrInvalidTransaction, t.MTI)
	}
	for key := range t.Fields {
		if _, err := strconv.Atoi(key); err != nil {
			return fmt.Errorf("%w: field key %q is not numeric", ErrInvalidTransaction, key)
		}
	}
	return nil
}

// Clone returns a deep copy safe to hand across goroutines.
func (t Transaction) Clone() Transaction {
	out := t
	if t.Fields != nil {
		out.Fields = make(map[string]string, len(t.Fields))
		for k, v := range t.Fields {
			out.Fields[k] = v
		}
	}
	return out
}

// PublicTransaction is the client view without internal bookkeeping flags.
type PublicTransaction struct {
	ID         string            `json:"trans_id"`
	MatchID    string            `json:"match_id,omitempty"`
	MTI        string            `json:"message_type"`
	Fields     map[string]string `json:"data_fields"`
	IsReversal bool              `json:"is_reversal"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	SentAt     time.Time         `json:"sending_time,omitempty"`
	ReceivedAt time.Time         `json:"receiving_time,omitempty"`
}

func (t Transaction) Public() PublicTransaction {
	c := t.Clone()
	return PublicTransaction{
		ID:         c.ID,
		MatchID:    c.MatchID,
		MTI:        c.MTI,
		Fields:     c.Fields,
		IsReversal: c.IsReversal,
		Success:    c.Success,
		Error:      c.Error,
		SentAt:     c.SentAt,
		ReceivedAt: c.ReceivedAt,
	}
}

// Field returns one field value and whether it is set.
func (t Transaction) Field(id string) (string, bool) {
	v, ok := t.Fields[id]
	return v, ok
}

// FieldIDs returns set field ids in numeric order.
func (t Transaction) FieldIDs() []string {
	ids := make([]string, 0, len(t.Fields))
	for id := range t.Fields {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		if errA != nil || errB != nil {
			return ids[i] < ids[j]
		}
		return a < b
	})
	return ids
}

// MaskSecrets hides configured field values, keeping the last four characters.
func (t Transaction) MaskSecrets(fields []string) Transaction {
	out := t.Clone()
	for _, id := range fields {
		v, ok := out.Fields[id]
		if !ok {
			continue
		}
		out.Fields[id] = mask(v)
	}
	return out
}

func mask(v string) string {
	if len(v) <= 4 {
		return strings.Repeat("*", len(v))
	}
	return strings.Repeat("*", len(v)-4) + v[len(v)-4:]
}

// ValidMTI reports whether mti is a 4-digit message type indicator.
func ValidMTI(mti string) bool {
	if len(mti) != 4 {
		return false
	}
	for _, r := range mti {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IsRequestMTI applies the ISO function digit rule: even third digit is a request or advice.
func IsRequestMTI(mti string) bool {
	if !ValidMTI(mti) {
		return false
	}
	return (mti[2]-'0')%2 == 0
}

// ResponseMTI returns the response message type for a request message type.
func ResponseMTI(mti string) string {
	if !IsRequestMTI(mti) {
		return ""
	}
	return mti[:2] + string(mti[2]+1) + mti[3:]
}

// RequestMTI returns the request message type a response answers.
func RequestMTI(mti string) string {
	if !ValidMTI(mti) || IsRequestMTI(mti) {
		return ""
	}
	return mti[:2] + string(mti[2]-1) + mti[3:]
}
