package lz4

import (
	"fmt"
	"io"

	lz4 "github.com/pierrec/lz4/v4"
)

// NewWriter returns a Compressor-shaped factory for an LZ4 io.WriteCloser
// at the given compression level (0 means the library default).
func NewWriter(level lz4.CompressionLevel) func([]byte, io.Writer) (io.WriteCloser, error) {
	return func(_ []byte, w io.Writer) (io.WriteCloser, error) {
		lw := lz4.NewWriter(w)

		if err := lw.Apply(lz4.CompressionLevelOption(level)); err != nil {
			return nil, fmt.Errorf("lz4: error configuring writer: %w", err)
		}

		return lw, nil
	}
}
