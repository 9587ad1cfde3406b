package root

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// NoneRoot is the identity compression root: useful as an explicit,
// auditable "no compression" stage so the pipeline's signature list always
// names every configured concern.
type NoneRoot struct{ sequence int }

// NewNoneRoot builds a no-op compression stage at the given sequence.
func NewNoneRoot(sequence int) *NoneRoot { return &NoneRoot{sequence: sequence} }

func (r *NoneRoot) Signature() string { return "compression:none" }
func (r *NoneRoot) Sequence() int     { return r.sequence }
func (r *NoneRoot) OnStash(data []byte, _ *Context) ([]byte, error) { return data, nil }
func (r *NoneRoot) OnCrack(data []byte, _ *Context) ([]byte, error) { return data, nil }

// GzipRoot compresses/decompresses using klauspost/compress's drop-in gzip,
// a faster implementation of the standard library's format.
type GzipRoot struct {
	sequence int
	level    int
}

// NewGzipRoot builds a gzip compression stage. level follows
// compress/gzip's constants (gzip.DefaultCompression, etc).
func NewGzipRoot(sequence, level int) *GzipRoot {
	return &GzipRoot{sequence: sequence, level: level}
}

func (r *GzipRoot) Signature() string { return "compression:gzip" }
func (r *GzipRoot) Sequence() int     { return r.sequence }

func (r *GzipRoot) OnStash(data []byte, _ *Context) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, r.level)
	if err != nil {
		return nil, fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *GzipRoot) OnCrack(data []byte, _ *Context) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer reader.Close()
	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", err)
	}
	return out, nil
}

// BrotliRoot compresses/decompresses using andybalholm/brotli.
type BrotliRoot struct {
	sequence int
	quality  int
}

// NewBrotliRoot builds a brotli compression stage; quality ranges 0-11.
func NewBrotliRoot(sequence, quality int) *BrotliRoot {
	return &BrotliRoot{sequence: sequence, quality: quality}
}

func (r *BrotliRoot) Signature() string { return "compression:brotli" }
func (r *BrotliRoot) Sequence() int     { return r.sequence }

func (r *BrotliRoot) OnStash(data []byte, _ *Context) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, r.quality)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("brotli write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("brotli close: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *BrotliRoot) OnCrack(data []byte, _ *Context) ([]byte, error) {
	reader := brotli.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("brotli read: %w", err)
	}
	return out, nil
}
