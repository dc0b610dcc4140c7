package zstd

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// NewWriter returns a Compressor-shaped factory for a Zstandard
// io.WriteCloser at the given encoder level.
func NewWriter(level zstd.EncoderLevel) func([]byte, io.Writer) (io.WriteCloser, error) {
	return func(_ []byte, w io.Writer) (io.WriteCloser, error) {
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(level))
		if err != nil {
			return nil, fmt.Errorf("zstd: error creating writer: %w", err)
		}

		return zw, nil
	}
}
