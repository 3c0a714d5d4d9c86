package state

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"lendingcore/native/lending/wad"
)

const (
	pubkeyLen  = solana.PublicKeyLength
	decimalLen = 16
)

// recordWriter wraps a borsh encoder with a sticky error so that layout code
// reads as a flat list of fields.
type recordWriter struct {
	buf bytes.Buffer
	enc *bin.Encoder
	err error
}

func newRecordWriter(size int) *recordWriter {
	w := &recordWriter{}
	w.buf.Grow(size)
	w.enc = bin.NewBorshEncoder(&w.buf)
	return w
}

func (w *recordWriter) u8(v uint8) {
	if w.err == nil {
		w.err = w.enc.WriteUint8(v)
	}
}

func (w *recordWriter) boolean(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

func (w *recordWriter) u16(v uint16) {
	if w.err == nil {
		w.err = w.enc.WriteUint16(v, bin.LE)
	}
}

func (w *recordWriter) u64(v uint64) {
	if w.err == nil {
		w.err = w.enc.WriteUint64(v, bin.LE)
	}
}

func (w *recordWriter) raw(b []byte) {
	if w.err == nil {
		w.err = w.enc.WriteBytes(b, false)
	}
}

func (w *recordWriter) pubkey(k solana.PublicKey) { w.raw(k[:]) }

func (w *recordWriter) decimal(d wad.Decimal) {
	var b [decimalLen]byte
	d.PutLE(b[:])
	w.raw(b[:])
}

func (w *recordWriter) zeros(n int) {
	if n > 0 {
		w.raw(make([]byte, n))
	}
}

// finish checks the written length against the record constant.
func (w *recordWriter) finish(kind string, size int) ([]byte, error) {
	if w.err != nil {
		return nil, fmt.Errorf("state: encode %s: %w", kind, w.err)
	}
	if w.buf.Len() != size {
		return nil, fmt.Errorf("state: encode %s: wrote %d bytes, layout is %d", kind, w.buf.Len(), size)
	}
	return w.buf.Bytes(), nil
}

// recordReader is the decoding counterpart of recordWriter.
type recordReader struct {
	kind  string
	dec   *bin.Decoder
	err   error
	field string
}

func newRecordReader(kind string, data []byte, size int) (*recordReader, error) {
	if len(data) != size {
		return nil, fmt.Errorf("%w: %s: length %d, want %d", ErrDecode, kind, len(data), size)
	}
	return &recordReader{kind: kind, dec: bin.NewBorshDecoder(data)}, nil
}

func (r *recordReader) fail(field string, err error) {
	if r.err == nil {
		r.err = err
		r.field = field
	}
}

func (r *recordReader) u8(field string) uint8 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint8()
	if err != nil {
		r.fail(field, err)
	}
	return v
}

// boolean accepts only 0 and 1.
func (r *recordReader) boolean(field string) bool {
	v := r.u8(field)
	switch v {
	case 0:
		return false
	case 1:
		return true
	default:
		r.fail(field, fmt.Errorf("invalid boolean byte 0x%02x", v))
		return false
	}
}

func (r *recordReader) u16(field string) uint16 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint16(bin.LE)
	if err != nil {
		r.fail(field, err)
	}
	return v
}

func (r *recordReader) u64(field string) uint64 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint64(bin.LE)
	if err != nil {
		r.fail(field, err)
	}
	return v
}

func (r *recordReader) raw(field string, n int) []byte {
	if r.err != nil {
		return make([]byte, n)
	}
	b, err := r.dec.ReadNBytes(n)
	if err != nil {
		r.fail(field, err)
		return make([]byte, n)
	}
	return b
}

func (r *recordReader) pubkey(field string) solana.PublicKey {
	return solana.PublicKeyFromBytes(r.raw(field, pubkeyLen))
}

func (r *recordReader) decimal(field string) wad.Decimal {
	return wad.FromLE(r.raw(field, decimalLen))
}

func (r *recordReader) skip(field string, n int) {
	r.raw(field, n)
}

// version reads the leading version byte and applies the forward
// compatibility guard.
func (r *recordReader) version() uint8 {
	v := r.u8("version")
	if r.err == nil && v > ProgramVersion {
		r.err = fmt.Errorf("%w: %s version %d, supported %d", ErrVersionMismatch, r.kind, v, ProgramVersion)
		r.field = "version"
	}
	return v
}

func (r *recordReader) done() error {
	if r.err == nil {
		return nil
	}
	if errors.Is(r.err, ErrVersionMismatch) || errors.Is(r.err, ErrDecode) {
		return r.err
	}
	return fmt.Errorf("%w: %s.%s: %v", ErrDecode, r.kind, r.field, r.err)
}
