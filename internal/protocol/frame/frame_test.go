package frame

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	limits := Limits{MaxPayloadBytes: MaxWirePayload}
	for _, size := range []int{0, 1, 2, 255, 256, 4096, MaxWirePayload} {
		payload := bytes.Repeat([]byte{byte(size)}, size)
		wire, err := Encode(payload, limits)
		if err != nil {
			t.Fatalf("encode size=%d: %v", size, err)
		}
		if len(wire) != HeaderLen+size {
			t.Fatalf("unexpected wire len=%d size=%d", len(wire), size)
		}
		out, err := ReadFrame(bytes.NewReader(wire), limits)
		if err != nil {
			t.Fatalf("read size=%d: %v", size, err)
		}
		if !bytes.Equal(out, payload) {
			t.Fatalf("payload mismatch size=%d", size)
		}
	}
}

func TestEncodeHeaderIsBigEndianPayloadLength(t *testing.T) {
	wire, err := Encode([]byte("0100abc"), DefaultLimits())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if wire[0] != 0x00 || wire[1] != 0x07 {
		t.Fatalf("unexpected header: % x", wire[:2])
	}
}

func TestReadFrameRejectsOversizedHeader(t *testing.T) {
	limits := Limits{MaxPayloadBytes: 16}
	wire := []byte{0x00, 0x20}
	wire = append(wire, bytes.Repeat([]byte{'x'}, 32)...)
	r := bytes.NewReader(wire)
	_, err := ReadFrame(r, limits)
	if !errors.Is(err, ErrPayloadTooLarge) || !errors.Is(err, ErrFraming) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if r.Len() != 32 {
		t.Fatalf("expected body bytes untouched, remaining=%d", r.Len())
	}
}

func TestReadFrameShortHeader(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0x01}), DefaultLimits())
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestWriteFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, make([]byte, 17), Limits{MaxPayloadBytes: 16})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected nothing written, got %d bytes", buf.Len())
	}
}

type zeroWriter struct{}

func (zeroWriter) Write(p []byte) (int, error) { return 0, nil }

func TestWriteFrameZeroByteWrite(t *testing.T) {
	err := WriteFrame(zeroWriter{}, []byte("0800"), DefaultLimits())
	if !errors.Is(err, ErrShortWrite) {
		t.Fatalf("expected ErrShortWrite, got %v", err)
	}
}

func TestDecoderPartialArrivals(t *testing.T) {
	a, _ := Encode([]byte("first"), DefaultLimits())
	b, _ := Encode([]byte("second-message"), DefaultLimits())
	stream := append(append([]byte{}, a...), b...)

	d := NewDecoder(DefaultLimits())
	var got [][]byte
	for i := 0; i < len(stream); i++ {
		out, err := d.Feed(stream[i : i+1])
		if err != nil {
			t.Fatalf("feed byte %d: %v", i, err)
		}
		got = append(got, out...)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 payloads, got %d", len(got))
	}
	if string(got[0]) != "first" || string(got[1]) != "second-message" {
		t.Fatalf("unexpected payloads: %q %q", got[0], got[1])
	}
	if d.Buffered() != 0 {
		t.Fatalf("expected empty buffer, got %d", d.Buffered())
	}
}

func TestEmptyPayloadIsAFrameOnEveryPath(t *testing.T) {
	wire, err := Encode(nil, DefaultLimits())
	if err != nil {
		t.Fatalf("encode empty: %v", err)
	}
	if !bytes.Equal(wire, []byte{0x00, 0x00}) {
		t.Fatalf("unexpected wire: % x", wire)
	}
	out, err := ReadFrame(bytes.NewReader(wire), DefaultLimits())
	if err != nil || len(out) != 0 {
		t.Fatalf("read empty: out=%q err=%v", out, err)
	}

	d := NewDecoder(DefaultLimits())
	stream := append(append([]byte{}, wire...), 0x00, 0x01, 'x')
	got, err := d.Feed(stream)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(got) != 2 || len(got[0]) != 0 || string(got[1]) != "x" {
		t.Fatalf("unexpected payloads: %q", got)
	}
}

func TestDecoderHeaderAndBodySplit(t *testing.T) {
	wire, _ := Encode([]byte("0110resp"), DefaultLimits())
	d := NewDecoder(DefaultLimits())
	out, err := d.Feed(wire[:HeaderLen])
	if err != nil || len(out) != 0 {
		t.Fatalf("header only: out=%d err=%v", len(out), err)
	}
	out, err = d.Feed(wire[HeaderLen:])
	if err != nil {
		t.Fatalf("body: %v", err)
	}
	if len(out) != 1 || string(out[0]) != "0110resp" {
		t.Fatalf("unexpected payloads: %q", out)
	}
}

func TestDecoderOversizedPoisonsUntilReset(t *testing.T) {
	d := NewDecoder(Limits{MaxPayloadBytes: 4})
	_, err := d.Feed([]byte{0xFF, 0xFF, 'a', 'b'})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if d.Buffered() != 0 {
		t.Fatalf("expected no speculative buffering, got %d", d.Buffered())
	}
	if _, err := d.Feed([]byte{0x00, 0x01, 'z'}); !errors.Is(err, ErrDecoderPoisoned) {
		t.Fatalf("expected ErrDecoderPoisoned, got %v", err)
	}
	d.Reset()
	out, err := d.Feed([]byte{0x00, 0x01, 'z'})
	if err != nil || len(out) != 1 || string(out[0]) != "z" {
		t.Fatalf("after reset: out=%q err=%v", out, err)
	}
}
