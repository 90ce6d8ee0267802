// Package wirebuf implements a small length-prefixed, little-endian binary
// encoder/decoder for the primitive and composite kinds the replication
// core actually needs: fixed-width integers, length-prefixed byte strings,
// and length-prefixed vectors. It also exposes a placeholder API: reserve
// two bytes now, fill in a real length once the payload is known.
package wirebuf

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortBuffer is returned by Reader methods when the underlying buffer
// does not contain enough bytes to satisfy the read.
var ErrShortBuffer = errors.New("wirebuf: short buffer")

// Writer accumulates a little-endian, length-prefixed byte stream.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer, optionally pre-sized.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the accumulated buffer. The slice is owned by the Writer;
// callers that need to retain it must copy.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) WriteUint8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) WriteUint16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) WriteUint32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) WriteUint64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) WriteInt64(v int64) { w.WriteUint64(uint64(v)) }

// WriteBytes writes a uint32 length prefix followed by the raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteUint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteString writes a length-prefixed UTF-8 string.
func (w *Writer) WriteString(s string) { w.WriteBytes([]byte(s)) }

// Placeholder is a reservation into the Writer's buffer for a uint16 length
// that is not yet known. Call Patch once the payload following the
// placeholder has been written.
type Placeholder struct {
	offset int
}

// ReservePlaceholder writes two zero bytes and returns a handle that can
// later be patched with the number of bytes written since.
//
// The reservation is 2 bytes wide (a uint16 count), which is enough for
// any single field in this protocol (endpoint lists, signatures); use
// WriteBytes/WriteString directly for arbitrarily large payloads that need
// a uint32 length.
func (w *Writer) ReservePlaceholder() Placeholder {
	ph := Placeholder{offset: len(w.buf)}
	w.buf = append(w.buf, 0, 0)
	return ph
}

// Patch fills in the placeholder with the count of bytes written to the
// buffer since ReservePlaceholder was called for it.
func (w *Writer) Patch(ph Placeholder) {
	count := len(w.buf) - ph.offset - 2
	if count < 0 || count > 0xFFFF {
		panic(fmt.Sprintf("wirebuf: placeholder count %d out of range", count))
	}
	binary.LittleEndian.PutUint16(w.buf[ph.offset:ph.offset+2], uint16(count))
}

// Reader consumes a little-endian, length-prefixed byte stream written by
// Writer.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining reports how many unread bytes are left.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return ErrShortBuffer
	}
	return nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) ReadUint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

// ReadBytes reads a uint32-length-prefixed byte string.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, r.buf[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return b, nil
}

func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadPlaceholder reads back a 2-byte count written via Patch.
func (r *Reader) ReadPlaceholder() (uint16, error) {
	return r.ReadUint16()
}
