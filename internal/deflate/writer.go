package deflate

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// NewWriter returns a new DEFLATE io.WriteCloser at the given level (1-9,
// matching the 7z Level write option; 0 means the library default).
func NewWriter(level int) func([]byte, io.Writer) (io.WriteCloser, error) {
	return func(_ []byte, w io.Writer) (io.WriteCloser, error) {
		if level <= 0 {
			level = flate.DefaultCompression
		}

		fw, err := flate.NewWriter(w, level)
		if err != nil {
			return nil, fmt.Errorf("deflate: error creating writer: %w", err)
		}

		return fw, nil
	}
}
