package codec

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrMalformedRecord is returned when a stream ends inside a record or a
// declared length runs past the end of the stream.
var ErrMalformedRecord = errors.New("malformed record")

const readBufferSize = 64 * 1024

// Reader decodes primitives from an underlying stream.
type Reader struct {
	src  io.Reader
	br   *bufio.Reader
	pos  int64
	size int64
	buf  [8]byte
	err  error
}

// NewReader returns a Reader positioned at offset. size is the total length
// of the stream, or -1 if unknown; when known, declared lengths are checked
// against it before any allocation happens.
func NewReader(r io.Reader, offset, size int64) *Reader {
	return &Reader{
		src:  r,
		br:   bufio.NewReaderSize(r, readBufferSize),
		pos:  offset,
		size: size,
	}
}

// Pos returns the absolute position of the next byte to be read.
func (r *Reader) Pos() int64 {
	return r.pos
}

// Err returns the first error encountered.
func (r *Reader) Err() error {
	return r.err
}

// Remaining returns the number of unread bytes, or -1 if the size is unknown.
func (r *Reader) Remaining() int64 {
	if r.size < 0 {
		return -1
	}
	return r.size - r.pos
}

// AtEOF reports whether the stream is exhausted at a record boundary.
func (r *Reader) AtEOF() bool {
	if r.err != nil {
		return false
	}
	_, err := r.br.Peek(1)
	return errors.Is(err, io.EOF)
}

func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) read(p []byte) bool {
	if r.err != nil {
		return false
	}
	n, err := io.ReadFull(r.br, p)
	r.pos += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			r.fail(fmt.Errorf("%w: stream ended at offset %d, %d of %d bytes read", ErrMalformedRecord, r.pos, n, len(p)))
		} else {
			r.fail(fmt.Errorf("failed to read at offset %d: %w", r.pos, err))
		}
		return false
	}
	return true
}

func (r *Reader) checkLength(n int64) bool {
	if r.err != nil {
		return false
	}
	if n < 0 {
		r.fail(fmt.Errorf("%w: negative length %d at offset %d", ErrMalformedRecord, n, r.pos))
		return false
	}
	if r.size >= 0 && n > r.size-r.pos {
		r.fail(fmt.Errorf("%w: length %d at offset %d runs past end of stream (%d bytes)", ErrMalformedRecord, n, r.pos, r.size))
		return false
	}
	return true
}

func (r *Reader) U8() uint8 {
	if !r.read(r.buf[:1]) {
		return 0
	}
	return r.buf[0]
}

func (r *Reader) Bool() bool {
	return r.U8() != 0
}

func (r *Reader) U16() uint16 {
	if !r.read(r.buf[:2]) {
		return 0
	}
	return binary.LittleEndian.Uint16(r.buf[:2])
}

func (r *Reader) I16() int16 {
	return int16(r.U16())
}

func (r *Reader) U32() uint32 {
	if !r.read(r.buf[:4]) {
		return 0
	}
	return binary.LittleEndian.Uint32(r.buf[:4])
}

func (r *Reader) I32() int32 {
	return int32(r.U32())
}

func (r *Reader) U64() uint64 {
	if !r.read(r.buf[:8]) {
		return 0
	}
	return binary.LittleEndian.Uint64(r.buf[:8])
}

func (r *Reader) I64() int64 {
	return int64(r.U64())
}

func (r *Reader) F32() float32 {
	return math.Float32frombits(r.U32())
}

// Bytes reads exactly n bytes.
func (r *Reader) Bytes(n int64) []byte {
	if !r.checkLength(n) {
		return nil
	}
	p := make([]byte, n)
	if !r.read(p) {
		return nil
	}
	return p
}

// Skip advances past n bytes without decoding them. When the source is
// seekable, bytes beyond the read buffer are skipped with a seek.
func (r *Reader) Skip(n int64) {
	if !r.checkLength(n) {
		return
	}
	buffered := int64(r.br.Buffered())
	seeker, ok := r.src.(io.Seeker)
	if !ok || n <= buffered {
		discarded, err := r.br.Discard(int(n))
		r.pos += int64(discarded)
		if err != nil {
			r.fail(fmt.Errorf("%w: skip of %d bytes stopped at offset %d", ErrMalformedRecord, n, r.pos))
		}
		return
	}

	if _, err := seeker.Seek(n-buffered, io.SeekCurrent); err != nil {
		r.fail(fmt.Errorf("failed to seek at offset %d: %w", r.pos, err))
		return
	}
	r.br.Reset(r.src)
	r.pos += n
}

func (r *Reader) String8() string {
	return string(r.Bytes(int64(r.U8())))
}

func (r *Reader) String16() string {
	return string(r.Bytes(int64(r.U16())))
}

func (r *Reader) String32() string {
	return string(r.Bytes(int64(r.U32())))
}
