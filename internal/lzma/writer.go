package lzma

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ulikunitz/xz/lzma"
)

// headerSize is the size of the classic LZMA "alone" format header that
// ulikunitz/xz/lzma's Writer always emits: one properties byte, four
// little-endian dictionary-size bytes, eight little-endian
// uncompressed-size bytes. 7z stores the first five of those bytes as the
// coder's Properties and tracks size separately, so the writer here
// produces the full stream and splits it.
const headerSize = 13

type writeCloser struct {
	w   io.Writer
	buf bytes.Buffer
	lw  *lzma.Writer
}

func (wc *writeCloser) Write(p []byte) (int, error) {
	n, err := wc.lw.Write(p)
	if err != nil {
		return n, fmt.Errorf("lzma: error writing: %w", err)
	}

	return n, nil
}

// Close flushes the LZMA stream and writes the raw compressed body (with
// the alone-format header stripped) to the underlying writer; the
// properties are returned separately by [NewWriter].
func (wc *writeCloser) Close() error {
	if err := wc.lw.Close(); err != nil {
		return fmt.Errorf("lzma: error closing: %w", err)
	}

	body := wc.buf.Bytes()
	if len(body) < headerSize {
		return fmt.Errorf("lzma: short compressed stream") //nolint:err113
	}

	if _, err := wc.w.Write(body[headerSize:]); err != nil {
		return fmt.Errorf("lzma: error writing body: %w", err)
	}

	return nil
}

// NewWriter returns the 5-byte LZMA coder Properties for the given
// dictionary capacity and a Compressor-shaped factory that produces an
// io.WriteCloser compressing into that configuration.
func NewWriter(dictCap int) ([]byte, func([]byte, io.Writer) (io.WriteCloser, error), error) {
	cfg := lzma.WriterConfig{DictCap: dictCap, SizeInHeader: true, Size: 0, EOSMarker: true}
	if err := cfg.Verify(); err != nil {
		return nil, nil, fmt.Errorf("lzma: error verifying config: %w", err)
	}

	var header bytes.Buffer

	probe, err := cfg.NewWriter(&header)
	if err != nil {
		return nil, nil, fmt.Errorf("lzma: error creating probe writer: %w", err)
	}

	if err := probe.Close(); err != nil {
		return nil, nil, fmt.Errorf("lzma: error closing probe writer: %w", err)
	}

	properties := append([]byte(nil), header.Bytes()[:5]...) //nolint:mnd

	factory := func(_ []byte, w io.Writer) (io.WriteCloser, error) {
		wc := &writeCloser{w: w}

		lw, err := cfg.NewWriter(&wc.buf)
		if err != nil {
			return nil, fmt.Errorf("lzma: error creating writer: %w", err)
		}

		wc.lw = lw

		return wc, nil
	}

	return properties, factory, nil
}
