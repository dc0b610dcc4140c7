package brotli

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

type writeCloser struct {
	w    io.Writer
	buf  bytes.Buffer
	br   *brotli.Writer
	size uint64
}

func (wc *writeCloser) Write(p []byte) (int, error) {
	wc.size += uint64(len(p)) //nolint:gosec

	n, err := wc.br.Write(p)
	if err != nil {
		return n, fmt.Errorf("brotli: error writing: %w", err)
	}

	return n, nil
}

// Close flushes the Brotli stream, then prepends the 16-byte frame header
// the 7-Zip Brotli coder expects, matching what [NewReader] strips off.
func (wc *writeCloser) Close() error {
	if err := wc.br.Close(); err != nil {
		return fmt.Errorf("brotli: error closing: %w", err)
	}

	hr := headerFrame{
		FrameMagic:       frameMagic,
		FrameSize:        frameSize,
		CompressedSize:   uint32(wc.buf.Len()), //nolint:gosec
		BrotliMagic:      brotliMagic,
		UncompressedSize: uint16((wc.size + 1<<16 - 1) >> 16), //nolint:gosec,mnd
	}

	if err := binary.Write(wc.w, binary.LittleEndian, hr); err != nil {
		return fmt.Errorf("brotli: error writing frame: %w", err)
	}

	if _, err := wc.buf.WriteTo(wc.w); err != nil {
		return fmt.Errorf("brotli: error writing body: %w", err)
	}

	return nil
}

// NewWriter returns a Compressor-shaped factory for a Brotli
// io.WriteCloser at the given quality level.
func NewWriter(quality int) func([]byte, io.Writer) (io.WriteCloser, error) {
	return func(_ []byte, w io.Writer) (io.WriteCloser, error) {
		wc := &writeCloser{w: w}
		wc.br = brotli.NewWriterLevel(&wc.buf, quality)

		return wc, nil
	}
}
