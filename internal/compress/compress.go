// Package compress provides the block compression used for frame payloads.
package compress

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
)

// Compression levels accepted by NewDeflate.
const (
	HuffmanOnly     = flate.HuffmanOnly
	DefaultLevel    = flate.DefaultCompression
	NoCompression   = flate.NoCompression
	BestSpeed       = flate.BestSpeed
	BestCompression = flate.BestCompression
)

// Codec compresses and decompresses independent byte blocks.
type Codec interface {
	// Compress appends the compressed form of src to dst and returns it.
	Compress(dst, src []byte) ([]byte, error)

	// Decompress appends the decompressed form of src to dst and returns it.
	// size is the expected decompressed length.
	Decompress(dst, src []byte, size int) ([]byte, error)
}

// Deflate is a raw DEFLATE block codec. Writers are pooled per instance.
type Deflate struct {
	level int
	pool  sync.Pool
}

// NewDeflate returns a Deflate codec at the given level (flate.NoCompression
// through flate.BestCompression, or flate.DefaultCompression).
func NewDeflate(level int) (*Deflate, error) {
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		return nil, fmt.Errorf("invalid compression level %d", level)
	}
	return &Deflate{level: level}, nil
}

// Level returns the configured compression level.
func (d *Deflate) Level() int {
	return d.level
}

func (d *Deflate) Compress(dst, src []byte) ([]byte, error) {
	buf := bytes.NewBuffer(dst)

	fw, _ := d.pool.Get().(*flate.Writer)
	if fw == nil {
		var err error
		fw, err = flate.NewWriter(buf, d.level)
		if err != nil {
			return dst, fmt.Errorf("failed to create deflate writer: %w", err)
		}
	} else {
		fw.Reset(buf)
	}
	defer d.pool.Put(fw)

	if _, err := fw.Write(src); err != nil {
		return dst, fmt.Errorf("failed to compress block: %w", err)
	}
	if err := fw.Close(); err != nil {
		return dst, fmt.Errorf("failed to flush compressed block: %w", err)
	}
	return buf.Bytes(), nil
}

func (d *Deflate) Decompress(dst, src []byte, size int) ([]byte, error) {
	fr := flate.NewReader(bytes.NewReader(src))
	defer fr.Close()

	start := len(dst)
	if cap(dst)-start < size {
		grown := make([]byte, start, start+size)
		copy(grown, dst)
		dst = grown
	}
	dst = dst[:start+size]
	if _, err := io.ReadFull(fr, dst[start:]); err != nil {
		return dst[:start], fmt.Errorf("failed to decompress block of %d bytes: %w", size, err)
	}
	return dst, nil
}
