// Package codec implements the little-endian primitives shared by every
// on-disk container: fixed-width integers, floats, booleans, length-prefixed
// strings and raw byte blocks.
//
// Writer and Reader keep the first error they hit and turn every following
// call into a no-op, so a record can be encoded or decoded field by field and
// checked once with Err. Both track the absolute stream position, which is
// the only place offset arithmetic happens.
package codec

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Writer encodes primitives to an underlying stream.
type Writer struct {
	w   io.Writer
	pos int64
	buf [8]byte
	err error
}

// NewWriter returns a Writer whose position starts at offset. Pass the
// current size of the stream when appending to an existing file.
func NewWriter(w io.Writer, offset int64) *Writer {
	return &Writer{w: w, pos: offset}
}

// Pos returns the absolute position of the next byte to be written.
func (w *Writer) Pos() int64 {
	return w.pos
}

// Err returns the first error encountered.
func (w *Writer) Err() error {
	return w.err
}

func (w *Writer) write(p []byte) {
	if w.err != nil {
		return
	}
	n, err := w.w.Write(p)
	w.pos += int64(n)
	if err != nil {
		w.err = fmt.Errorf("failed to write at offset %d: %w", w.pos, err)
	}
}

func (w *Writer) U8(v uint8) {
	w.buf[0] = v
	w.write(w.buf[:1])
}

func (w *Writer) Bool(v bool) {
	if v {
		w.U8(1)
		return
	}
	w.U8(0)
}

func (w *Writer) U16(v uint16) {
	binary.LittleEndian.PutUint16(w.buf[:2], v)
	w.write(w.buf[:2])
}

func (w *Writer) I16(v int16) {
	w.U16(uint16(v))
}

func (w *Writer) U32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[:4], v)
	w.write(w.buf[:4])
}

func (w *Writer) I32(v int32) {
	w.U32(uint32(v))
}

func (w *Writer) U64(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[:8], v)
	w.write(w.buf[:8])
}

func (w *Writer) I64(v int64) {
	w.U64(uint64(v))
}

func (w *Writer) F32(v float32) {
	w.U32(math.Float32bits(v))
}

// Bytes writes p verbatim.
func (w *Writer) Bytes(p []byte) {
	if len(p) == 0 {
		return
	}
	w.write(p)
}

// String8 writes s prefixed with a 1-byte length.
func (w *Writer) String8(s string) {
	if len(s) > math.MaxUint8 {
		w.fail(fmt.Errorf("string of %d bytes exceeds 1-byte length prefix", len(s)))
		return
	}
	w.U8(uint8(len(s)))
	w.Bytes([]byte(s))
}

// String16 writes s prefixed with a 2-byte length.
func (w *Writer) String16(s string) {
	if len(s) > math.MaxUint16 {
		w.fail(fmt.Errorf("string of %d bytes exceeds 2-byte length prefix", len(s)))
		return
	}
	w.U16(uint16(len(s)))
	w.Bytes([]byte(s))
}

// String32 writes s prefixed with a 4-byte length.
func (w *Writer) String32(s string) {
	if int64(len(s)) > math.MaxUint32 {
		w.fail(fmt.Errorf("string of %d bytes exceeds 4-byte length prefix", len(s)))
		return
	}
	w.U32(uint32(len(s)))
	w.Bytes([]byte(s))
}

func (w *Writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

// PatchU32 overwrites a little-endian uint32 at an absolute offset.
func PatchU32(w io.WriterAt, off int64, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	if _, err := w.WriteAt(b[:], off); err != nil {
		return fmt.Errorf("failed to patch u32 at offset %d: %w", off, err)
	}
	return nil
}

// PatchI64 overwrites a little-endian int64 at an absolute offset.
func PatchI64(w io.WriterAt, off int64, v int64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	if _, err := w.WriteAt(b[:], off); err != nil {
		return fmt.Errorf("failed to patch i64 at offset %d: %w", off, err)
	}
	return nil
}
