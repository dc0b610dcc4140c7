package lzma2

import (
	"fmt"
	"io"

	"github.com/ulikunitz/xz/lzma"
)

// dictSizeProperty encodes a dictionary capacity as the single LZMA2
// property byte, inverting the formula [NewReader] uses to decode it:
// dictCap = (2 | (b&1)) << (b/2 + 11).
func dictSizeProperty(dictCap int) byte {
	for b := 0; b < 40; b++ { //nolint:mnd
		cap := (2 | (b & 1)) << (b/2 + 11) //nolint:mnd
		if cap >= dictCap {
			return byte(b) //nolint:gosec
		}
	}

	return 40 //nolint:mnd
}

// NewWriter returns the single-byte LZMA2 coder Properties for the given
// dictionary capacity and a Compressor-shaped factory producing an
// io.WriteCloser compressing into that configuration.
func NewWriter(dictCap int) ([]byte, func([]byte, io.Writer) (io.WriteCloser, error), error) {
	config := lzma.Writer2Config{DictCap: dictCap}
	if err := config.Verify(); err != nil {
		return nil, nil, fmt.Errorf("lzma2: error verifying config: %w", err)
	}

	properties := []byte{dictSizeProperty(dictCap)}

	factory := func(_ []byte, w io.Writer) (io.WriteCloser, error) {
		lw, err := config.NewWriter2(w)
		if err != nil {
			return nil, fmt.Errorf("lzma2: error creating writer: %w", err)
		}

		return lw, nil
	}

	return properties, factory, nil
}
