package iso

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidSpec = errors.New("iso: invalid specification")

// FieldSpec describes one data element for clients; the core does not enforce it.
type FieldSpec struct {
	Description string `json:"description"`
	MaxLength   int    `json:"max_length,omitempty"`
	Secret      bool   `json:"secret,omitempty"`
}

// Spec is the live message specification document.
type Spec struct {
	Name              string               `json:"name"`
	Version           string               `json:"version"`
	Reversals         map[string]string    `json:"reversals"`
	ReversalFields    []string             `json:"reversal_fields"`
	MatchFields       []string             `json:"match_fields"`
	ResponseCodeField string               `json:"response_code_field"`
	SuccessCodes      []string             `json:"success_codes"`
	KeepAliveMTI      string               `json:"keep_alive_mti"`
	Fields            map[string]FieldSpec `json:"fields,omitempty"`
}

func DefaultSpec() Spec {
	return Spec{
		Name:    "signal",
		Version: "1",
		Reversals: map[string]string{
			"0100": "0400",
			"0200": "0400",
			"0120": "0420",
			"0220": "0420",
		},
		ReversalFields:    []string{"2", "3", "4", "7", "11", "12", "14", "22", "32", "37", "41", "42", "49"},
		MatchFields:       []string{"11", "37"},
		ResponseCodeField: "39",
		SuccessCodes:      []string{"00"},
		KeepAliveMTI:      "0800",
		Fields: map[string]FieldSpec{
			"2":  {Description: "Primary account number", MaxLength: 19, Secret: true},
			"3":  {Description: "Processing code", MaxLength: 6},
			"4":  {Description: "Amount, transaction", MaxLength: 12},
			"7":  {Description: "Transmission date and time", MaxLength: 10},
			"11": {Description: "System trace audit number", MaxLength: 6},
			"35": {Description: "Track 2 data", MaxLength: 37, Secret: true},
			"37": {Description: "Retrieval reference number", MaxLength: 12},
			"38": {Description: "Authorization identification response", MaxLength: 6},
			"39": {Description: "Response code", MaxLength: 2},
			"41": {Description: "Card acceptor terminal identification", MaxLength: 8},
			"90": {Description: "Original data elements", MaxLength: 42},
		},
	}
}

func (s Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidSpec)
	}
	for from, to := range s.Reversals {
		if !ValidMTI(from) {
			return fmt.Errorf("%w: reversal source %q", ErrInvalidSpec, from)
		}
		if to != "" && !ValidMTI(to) {
			return fmt.Errorf("%w: reversal target %q for %s", ErrInvalidSpec, to, from)
		}
	}
	if s.KeepAliveMTI != "" && !ValidMTI(s.KeepAliveMTI) {
		return fmt.Errorf("%w: keep_alive_mti %q", ErrInvalidSpec, s.KeepAliveMTI)
	}
	return nil
}

// SecretFields lists fields flagged secret.
func (s Spec) SecretFields() []string {
	out := make([]string, 0)
	for id, f := range s.Fields {
		if f.Secret {
			out = append(out, id)
		}
	}
	return out
}

func (s Spec) Clone() Spec {
	out := s
	out.Reversals = make(map[string]string, len(s.Reversals))
	for k, v := range s.Reversals {
		out.Reversals[k] = v
	}
	out.ReversalFields = append([]string(nil), s.ReversalFields...)
	out.MatchFields = append([]string(nil), s.MatchFields...)
	out.SuccessCodes = append([]string(nil), s.SuccessCodes...)
	if s.Fields != nil {
		out.Fields = make(map[string]FieldSpec, len(s.Fields))
		for k, v := range s.Fields {
			out.Fields[k] = v
		}
	}
	return out
}
