package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderLen is the size of the big-endian length prefix.
const HeaderLen = 2

// MaxWirePayload is the largest payload a 2-byte header can describe.
const MaxWirePayload = 1<<16 - 1

var (
	ErrFraming         = errors.New("frame: framing error")
	ErrShortHeader     = fmt.Errorf("%w: short length header", ErrFraming)
	ErrPayloadTooLarge = fmt.Errorf("%w: payload too large", ErrFraming)
	ErrShortWrite      = fmt.Errorf("%w: short write", ErrFraming)
	ErrDecoderPoisoned = fmt.Errorf("%w: decoder poisoned by previous error", ErrFraming)
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes int
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 8 * 1024,
	}
}

func (l Limits) max() int {
	if l.MaxPayloadBytes <= 0 || l.MaxPayloadBytes > MaxWirePayload {
		return MaxWirePayload
	}
	return l.MaxPayloadBytes
}

// Encode prepends the length header to payload. An empty payload encodes
// to a bare 00 00 header.
func Encode(payload []byte, limits Limits) ([]byte, error) {
	if len(payload) > limits.max() {
		return nil, fmt.Errorf("%w: len=%d max=%d", ErrPayloadTooLarge, len(payload), limits.max())
	}
	out := make([]byte, HeaderLen+len(payload))
	binary.BigEndian.PutUint16(out[:HeaderLen], uint16(len(payload)))
	copy(out[HeaderLen:], payload)
	return out, nil
}

func WriteFrame(w io.Writer, payload []byte, limits Limits) error {
	buf, err := Encode(payload, limits)
	if err != nil {
		return err
	}
	n, err := w.Write(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("%w: wrote=%d want=%d", ErrShortWrite, n, len(buf))
	}
	return nil
}

func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	var hdr [HeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortHeader
		}
		return nil, err
	}
	size := int(binary.BigEndian.Uint16(hdr[:]))
	if size > limits.max() {
		return nil, fmt.Errorf("%w: declared=%d max=%d", ErrPayloadTooLarge, size, limits.max())
	}
	payload := make([]byte, size)
	if size > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

// Decoder reassembles frames from arbitrarily split stream chunks.
type Decoder struct {
	limits Limits
	buf    []byte
	err    error
}

func NewDecoder(limits Limits) *Decoder {
	return &Decoder{limits: limits}
}

// Feed appends chunk to the pending buffer and returns every complete payload.
// Once a header exceeds the limit the buffer is dropped and every later call
// fails until Reset.
func (d *Decoder) Feed(chunk []byte) ([][]byte, error) {
	if d.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecoderPoisoned, d.err)
	}
	d.buf = append(d.buf, chunk...)

	var out [][]byte
	for len(d.buf) >= HeaderLen {
		size := int(binary.BigEndian.Uint16(d.buf[:HeaderLen]))
		if size > d.limits.max() {
			d.err = fmt.Errorf("%w: declared=%d max=%d", ErrPayloadTooLarge, size, d.limits.max())
			d.buf = nil
			return out, d.err
		}
		if len(d.buf) < HeaderLen+size {
			break
		}
		payload := make([]byte, size)
		copy(payload, d.buf[HeaderLen:HeaderLen+size])
		d.buf = d.buf[HeaderLen+size:]
		out = append(out, payload)
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return out, nil
}

// Buffered reports how many bytes wait for the rest of their frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

func (d *Decoder) Reset() {
	d.buf = nil
	d.err = nil
}
