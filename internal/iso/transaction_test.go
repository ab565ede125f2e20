package iso

import (
	"errors"
	"reflect"
	"testing"
)

func TestMTIHelpers(t *testing.T) {
	cases := []struct {
		mti      string
		request  bool
		response string
		origin   string
	}{
		{mti: "0100", request: true, response: "0110"},
		{mti: "0210", request: false, origin: "0200"},
		{mti: "0420", request: true, response: "0430"},
		{mti: "0800", request: true, response: "0810"},
		{mti: "01x0", request: false},
	}
	for _, tc := range cases {
		if got := IsRequestMTI(tc.mti); got != tc.request {
			t.Fatalf("IsRequestMTI(%q)=%v", tc.mti, got)
		}
		if got := ResponseMTI(tc.mti); got != tc.response {
			t.Fatalf("ResponseMTI(%q)=%q", tc.mti, got)
		}
		if got := RequestMTI(tc.mti); got != tc.origin {
			t.Fatalf("RequestMTI(%q)=%q", tc.mti, got)
		}
	}
}

func TestTransactionValidate(t *testing.T) {
	if err := (Transaction{ID: "A1", MTI: "0100"}).Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := (Transaction{MTI: "0100"}).Validate(); !errors.Is(err, ErrInvalidTransaction) {
		t.Fatalf("expected missing id error, got %v", err)
	}
	if err := (Transaction{ID: "A1", MTI: "100"}).Validate(); !errors.Is(err, ErrInvalidTransaction) {
		t.Fatalf("expected bad mti error, got %v", err)
	}
	if err := (Transaction{ID: "A1", MTI: "0100", Fields: map[string]string{"x": "1"}}).Validate(); !errors.Is(err, ErrInvalidTransaction) {
		t.Fatalf("expected bad field key error, got %v", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	a := Transaction{ID: "A1", MTI: "0100", Fields: map[string]string{"4": "100"}}
	b := a.Clone()
	b.Fields["4"] = "200"
	if a.Fields["4"] != "100" {
		t.Fatalf("clone shares field map")
	}
}

func TestFieldIDsNumericOrder(t *testing.T) {
	tx := Transaction{Fields: map[string]string{"11": "", "2": "", "100": "", "4": ""}}
	if got := tx.FieldIDs(); !reflect.DeepEqual(got, []string{"2", "4", "11", "100"}) {
		t.Fatalf("unexpected order: %v", got)
	}
}

func TestMaskSecrets(t *testing.T) {
	tx := Transaction{Fields: map[string]string{"2": "4111111111111111", "35": "123", "4": "100"}}
	out := tx.MaskSecrets([]string{"2", "35", "52"})
	if out.Fields["2"] != "************1111" {
		t.Fatalf("unexpected pan mask: %q", out.Fields["2"])
	}
	if out.Fields["35"] != "***" {
		t.Fatalf("unexpected short mask: %q", out.Fields["35"])
	}
	if out.Fields["4"] != "100" || tx.Fields["2"] != "4111111111111111" {
		t.Fatalf("mask touched unrelated or original fields")
	}
}

func TestNewIDIsTimeOrdered(t *testing.T) {
	a := NewID()
	b := NewID()
	if a == b || b < a {
		t.Fatalf("expected increasing ids, got %q then %q", a, b)
	}
}

func TestPublicDropsInternalFlags(t *testing.T) {
	tx := Transaction{ID: "A1", MTI: "0200", IsRequest: true, IsKeepAlive: true, Matched: true,
		Fields: map[string]string{"11": "000001"}}
	pub := tx.Public()
	if pub.ID != "A1" || pub.MTI != "0200" || pub.Fields["11"] != "000001" {
		t.Fatalf("unexpected public view: %+v", pub)
	}
	pub.Fields["11"] = "x"
	if tx.Fields["11"] != "000001" {
		t.Fatalf("public view shares field map")
	}
}
