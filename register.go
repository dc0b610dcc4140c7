package sevenzip

import (
	"io"
	"sync"

	"github.com/andreyakinshin/zesven/internal/aes7z"
	"github.com/andreyakinshin/zesven/internal/bcj2"
	"github.com/andreyakinshin/zesven/internal/bra"
	"github.com/andreyakinshin/zesven/internal/brotli"
	"github.com/andreyakinshin/zesven/internal/bzip2"
	"github.com/andreyakinshin/zesven/internal/deflate"
	"github.com/andreyakinshin/zesven/internal/delta"
	"github.com/andreyakinshin/zesven/internal/lz4"
	"github.com/andreyakinshin/zesven/internal/lzma"
	"github.com/andreyakinshin/zesven/internal/lzma2"
	"github.com/andreyakinshin/zesven/internal/zstd"
	kzstd "github.com/klauspost/compress/zstd"
	lz4lib "github.com/pierrec/lz4/v4"
)

// Decompressor builds an [io.ReadCloser] for a single coder: properties
// holds the coder's raw property bytes, size is the coder's expected
// unpacked size, and readers holds one entry per coder input stream, in
// order.
type Decompressor func(properties []byte, size uint64, readers []io.ReadCloser) (io.ReadCloser, error)

// Compressor builds an [io.WriteCloser] for a single coder: properties
// holds the coder's raw property bytes (as will be stored alongside it in
// the archive header) and w is the sink the compressed bytes are written
// to. Compressors for coders whose properties are decided by the library
// itself (dictionary size, delta distance) are produced by each coder
// package's own NewWriter, which also returns the Properties to store;
// Compressor is the common shape [Writer] drives them through.
type Compressor func(properties []byte, w io.Writer) (io.WriteCloser, error)

var (
	decompressors sync.Map //nolint:gochecknoglobals
	compressors   sync.Map //nolint:gochecknoglobals
)

//nolint:gochecknoinits,mnd
func init() {
	RegisterDecompressor([]byte{0x00}, Decompressor(copyDecompressor))

	RegisterDecompressor([]byte{0x03}, Decompressor(delta.NewReader))
	RegisterDecompressor([]byte{0x04}, Decompressor(bra.NewBCJReader))
	RegisterDecompressor([]byte{0x05}, Decompressor(bra.NewPPCReader))
	RegisterDecompressor([]byte{0x06}, Decompressor(bra.NewIA64Reader))
	RegisterDecompressor([]byte{0x07}, Decompressor(bra.NewARMReader))
	RegisterDecompressor([]byte{0x08}, Decompressor(bra.NewARMTReader))
	RegisterDecompressor([]byte{0x09}, Decompressor(bra.NewSPARCReader))
	RegisterDecompressor([]byte{0x0a}, Decompressor(bra.NewARM64Reader))
	RegisterDecompressor([]byte{0x0b}, Decompressor(bra.NewRISCVReader))

	RegisterDecompressor([]byte{0x21}, Decompressor(lzma2.NewReader))
	RegisterDecompressor([]byte{0x03, 0x01, 0x01}, Decompressor(lzma.NewReader))
	RegisterDecompressor([]byte{0x03, 0x03, 0x01, 0x1b}, Decompressor(bcj2.NewReader))

	// Long-form BCJ method IDs; archives written by some encoders use
	// these instead of the short forms registered above. Short and long
	// forms decode identically, per the format's own "short and long IDs
	// are equivalent" convention.
	RegisterDecompressor([]byte{0x03, 0x03, 0x01, 0x03}, Decompressor(bra.NewBCJReader))
	RegisterDecompressor([]byte{0x03, 0x03, 0x02, 0x05}, Decompressor(bra.NewARMReader))
	RegisterDecompressor([]byte{0x03, 0x03, 0x03, 0x01}, Decompressor(bra.NewARMTReader))
	RegisterDecompressor([]byte{0x03, 0x03, 0x03, 0x05}, Decompressor(bra.NewARM64Reader))
	RegisterDecompressor([]byte{0x03, 0x03, 0x04, 0x01}, Decompressor(bra.NewIA64Reader))
	RegisterDecompressor([]byte{0x03, 0x03, 0x05, 0x01}, Decompressor(bra.NewPPCReader))
	RegisterDecompressor([]byte{0x03, 0x03, 0x08, 0x05}, Decompressor(bra.NewSPARCReader))

	RegisterDecompressor([]byte{0x04, 0x01, 0x08}, Decompressor(deflate.NewReader))
	RegisterDecompressor([]byte{0x04, 0x02, 0x02}, Decompressor(bzip2.NewReader))

	RegisterDecompressor([]byte{0x06, 0xf1, 0x07, 0x01}, Decompressor(aes7z.NewReader))

	// Community extension method IDs, as used by the 7-Zip-zstd fork.
	RegisterDecompressor([]byte{0x04, 0xf7, 0x11, 0x01}, Decompressor(zstd.NewReader))
	RegisterDecompressor([]byte{0x04, 0xf7, 0x11, 0x02}, Decompressor(brotli.NewReader))
	RegisterDecompressor([]byte{0x04, 0xf7, 0x11, 0x04}, Decompressor(lz4.NewReader))

	// PPMd, Lizard and LZ5 have no available pure-Go implementation in
	// this module's dependency set; registering them explicitly produces
	// a clean UnsupportedMethodError instead of a generic "unsupported
	// algorithm" failure when they're encountered.
	RegisterDecompressor([]byte{0x03, 0x04, 0x01}, unsupportedMethod([]byte{0x03, 0x04, 0x01}))
	RegisterDecompressor([]byte{0x04, 0xf7, 0x11, 0x05}, unsupportedMethod([]byte{0x04, 0xf7, 0x11, 0x05}))
	RegisterDecompressor([]byte{0x04, 0xf7, 0x11, 0x06}, unsupportedMethod([]byte{0x04, 0xf7, 0x11, 0x06}))

	// Compressors. Every self-inverse filter (Copy, Delta, the BCJ
	// family) shares its method ID with the matching decompressor above.
	// LZMA, LZMA2 and AES are not registered here because their
	// Properties depend on the chosen dictionary size / key derivation
	// parameters, which [Writer] threads through directly from
	// [WriteOptions] rather than through a parameterless registry slot;
	// BCJ2's write side needs a full range encoder that no library in
	// this dependency set provides, so it stays decode-only.
	RegisterCompressor([]byte{0x00}, Compressor(copyCompressor))
	RegisterCompressor([]byte{0x03}, Compressor(delta.NewWriter))
	RegisterCompressor([]byte{0x04}, Compressor(bra.NewBCJWriter))
	RegisterCompressor([]byte{0x05}, Compressor(bra.NewPPCWriter))
	RegisterCompressor([]byte{0x06}, Compressor(bra.NewIA64Writer))
	RegisterCompressor([]byte{0x07}, Compressor(bra.NewARMWriter))
	RegisterCompressor([]byte{0x08}, Compressor(bra.NewARMTWriter))
	RegisterCompressor([]byte{0x09}, Compressor(bra.NewSPARCWriter))
	RegisterCompressor([]byte{0x0a}, Compressor(bra.NewARM64Writer))
	RegisterCompressor([]byte{0x0b}, Compressor(bra.NewRISCVWriter))

	RegisterCompressor([]byte{0x04, 0x01, 0x08}, Compressor(deflate.NewWriter(0)))
	RegisterCompressor([]byte{0x04, 0xf7, 0x11, 0x01}, Compressor(zstd.NewWriter(kzstd.SpeedDefault)))
	RegisterCompressor([]byte{0x04, 0xf7, 0x11, 0x02}, Compressor(brotli.NewWriter(brotliDefaultQuality)))
	RegisterCompressor([]byte{0x04, 0xf7, 0x11, 0x04}, Compressor(lz4.NewWriter(lz4lib.Level5)))
}

const brotliDefaultQuality = 9

func copyDecompressor(_ []byte, _ uint64, readers []io.ReadCloser) (io.ReadCloser, error) {
	if len(readers) != 1 {
		return nil, errAlgorithm
	}

	return readers[0], nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func copyCompressor(_ []byte, w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

func unsupportedMethod(method []byte) Decompressor {
	return func(_ []byte, _ uint64, _ []io.ReadCloser) (io.ReadCloser, error) {
		return nil, &UnsupportedMethodError{Method: method}
	}
}

// RegisterDecompressor allows custom decompressors for a specified method
// ID.
func RegisterDecompressor(method []byte, dcomp Decompressor) {
	if _, dup := decompressors.LoadOrStore(string(method), dcomp); dup {
		panic("sevenzip: decompressor already registered")
	}
}

func decompressor(method []byte) Decompressor {
	di, ok := decompressors.Load(string(method))
	if !ok {
		return nil
	}

	return di.(Decompressor) //nolint:forcetypeassert
}

// RegisterCompressor allows custom compressors for a specified method ID.
func RegisterCompressor(method []byte, comp Compressor) {
	if _, dup := compressors.LoadOrStore(string(method), comp); dup {
		panic("sevenzip: compressor already registered")
	}
}

func compressor(method []byte) Compressor {
	ci, ok := compressors.Load(string(method))
	if !ok {
		return nil
	}

	return ci.(Compressor) //nolint:forcetypeassert
}
