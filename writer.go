package sevenzip

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"time"

	"github.com/andreyakinshin/zesven/internal/aes7z"
	"github.com/andreyakinshin/zesven/internal/bra"
	"github.com/andreyakinshin/zesven/internal/brotli"
	"github.com/andreyakinshin/zesven/internal/deflate"
	"github.com/andreyakinshin/zesven/internal/delta"
	"github.com/andreyakinshin/zesven/internal/lz4"
	"github.com/andreyakinshin/zesven/internal/lzma"
	"github.com/andreyakinshin/zesven/internal/lzma2"
	"github.com/andreyakinshin/zesven/internal/zstd"
	kzstd "github.com/klauspost/compress/zstd"
	lz4lib "github.com/pierrec/lz4/v4"
)

// Method selects the main compressor a [Writer] folder is built around.
// The zero value is MethodLZMA2, matching the method the reference
// implementation defaults to.
type Method int

const (
	MethodLZMA2 Method = iota
	MethodCopy
	MethodLZMA
	MethodDeflate
	MethodBZIP2
	MethodZstd
	MethodBrotli
	MethodLZ4
)

// FilterKind names a branch/delta filter a folder's coder chain runs
// before the main compressor.
type FilterKind int

const (
	// FilterBCJX86 applies the x86 branch-conversion filter.
	FilterBCJX86 FilterKind = iota
	// FilterDelta applies the delta filter.
	FilterDelta
)

// Filter is one entry of WriteOptions.Filters. DeltaDistance is only
// consulted when Kind is FilterDelta; it holds the distance minus one,
// the same encoding [internal/delta] uses.
type Filter struct {
	Kind          FilterKind
	DeltaDistance byte
}

// SolidMode controls how a [Writer] groups files into folders.
type SolidMode int

const (
	// SolidOff puts every file in its own folder.
	SolidOff SolidMode = iota
	// SolidBlock groups consecutive files until SolidBlockSize is reached.
	SolidBlock
	// SolidAll puts every file into a single folder.
	SolidAll
)

// WriteOptions configures a [Writer]. The zero value compresses each
// file independently with LZMA2 at the library's default dictionary
// size and level, with no password and no filters.
type WriteOptions struct {
	Method   Method
	Level    int
	DictSize uint32

	Solid          SolidMode
	SolidBlockSize uint64

	Password           string
	EncryptHeader      bool
	KeyIterationsPower byte

	Filters []Filter

	// SplitVolumeSize, when non-zero, is the target size of each member
	// of a multi-volume archive. Writer currently ignores it; volume
	// splitting is performed by the caller wrapping the returned stream
	// (see volume.go's reader-side counterpart).
	SplitVolumeSize uint64
}

var errWriterClosed = errors.New("sevenzip: writer closed")

type pendingEntry struct {
	header FileHeader
	buf    *bytes.Buffer
	isDir  bool
}

// Writer builds a 7z archive and streams it to an underlying io.Writer
// when Close is called. Because the signature header records the final
// location and CRC of the header section, Writer buffers every file and
// the fully assembled archive in memory and emits it in one pass at
// Close, rather than writing incrementally.
type Writer struct {
	sink   io.Writer
	opts   WriteOptions
	files  []*pendingEntry
	closed bool
}

// NewWriter returns a Writer that will emit a complete archive to sink
// when Close is called.
func NewWriter(sink io.Writer, opts WriteOptions) *Writer {
	return &Writer{sink: sink, opts: opts}
}

const defaultDictSize = 1 << 24

func (w *Writer) dictCap() int {
	if w.opts.DictSize > 0 {
		return int(w.opts.DictSize)
	}

	return defaultDictSize
}

func zstdEncoderLevel(level int) kzstd.EncoderLevel {
	switch {
	case level <= 0:
		return kzstd.SpeedDefault
	case level <= 2: //nolint:mnd
		return kzstd.SpeedFastest
	case level <= 5: //nolint:mnd
		return kzstd.SpeedDefault
	case level <= 7: //nolint:mnd
		return kzstd.SpeedBetterCompression
	default:
		return kzstd.SpeedBestCompression
	}
}

func brotliQuality(level int) int {
	const maxQuality = 11

	switch {
	case level <= 0:
		return 9 //nolint:mnd
	case level > maxQuality:
		return maxQuality
	default:
		return level
	}
}

// posixAttributes builds a 7z Attributes value carrying a POSIX mode,
// the inverse of [unixModeToFileMode]/[FileHeader.Mode].
func posixAttributes(unixMode uint32, isDir bool) uint32 {
	const fileAttributeUnixExtension = 0x8000

	attrs := uint32(fileAttributeUnixExtension)
	if isDir {
		attrs |= msdosDir
	}

	return attrs | unixMode<<16
}

// Create adds a new file entry and returns a writer the caller streams
// its uncompressed content to. The content is buffered until Close,
// when folders are assembled and compressed.
func (w *Writer) Create(name string) (io.Writer, error) {
	if w.closed {
		return nil, errWriterClosed
	}

	e := &pendingEntry{
		header: FileHeader{
			Name:       name,
			Modified:   time.Now(),
			Attributes: posixAttributes(sIFREG|0o644, false), //nolint:mnd
		},
		buf: new(bytes.Buffer),
	}

	w.files = append(w.files, e)

	return e.buf, nil
}

// CreateDir adds an empty directory entry.
func (w *Writer) CreateDir(name string) error {
	if w.closed {
		return errWriterClosed
	}

	e := &pendingEntry{
		header: FileHeader{
			Name:       name,
			Modified:   time.Now(),
			Attributes: posixAttributes(sIFDIR|0o755, true), //nolint:mnd
		},
		isDir: true,
	}
	e.header.isEmptyStream = true

	w.files = append(w.files, e)

	return nil
}

type coderStage struct {
	methodID   []byte
	properties []byte
	wc         io.WriteCloser
	written    uint64
}

type countingWriter struct {
	w io.Writer
	n *uint64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	*c.n += uint64(n) //nolint:gosec

	if err != nil {
		return n, fmt.Errorf("sevenzip: error writing coder stream: %w", err)
	}

	return n, nil
}

func (w *Writer) mainCoder(method Method, sink io.Writer) ([]byte, []byte, io.WriteCloser, error) {
	switch method {
	case MethodCopy:
		wc, err := copyCompressor(nil, sink)

		return []byte{0x00}, nil, wc, err
	case MethodLZMA2:
		props, factory, err := lzma2.NewWriter(w.dictCap())
		if err != nil {
			return nil, nil, nil, err
		}

		wc, err := factory(nil, sink)

		return []byte{0x21}, props, wc, err
	case MethodLZMA:
		props, factory, err := lzma.NewWriter(w.dictCap())
		if err != nil {
			return nil, nil, nil, err
		}

		wc, err := factory(nil, sink)

		return []byte{0x03, 0x01, 0x01}, props, wc, err
	case MethodDeflate:
		wc, err := deflate.NewWriter(w.opts.Level)(nil, sink)

		return []byte{0x04, 0x01, 0x08}, nil, wc, err
	case MethodZstd:
		wc, err := zstd.NewWriter(zstdEncoderLevel(w.opts.Level))(nil, sink)

		return []byte{0x04, 0xf7, 0x11, 0x01}, nil, wc, err
	case MethodBrotli:
		wc, err := brotli.NewWriter(brotliQuality(w.opts.Level))(nil, sink)

		return []byte{0x04, 0xf7, 0x11, 0x02}, nil, wc, err
	case MethodLZ4:
		wc, err := lz4.NewWriter(lz4lib.Level5)(nil, sink)

		return []byte{0x04, 0xf7, 0x11, 0x04}, nil, wc, err
	case MethodBZIP2:
		return nil, nil, nil, &UnsupportedMethodError{Method: []byte{0x04, 0x02, 0x02}}
	default:
		return nil, nil, nil, &UnsupportedMethodError{}
	}
}

func filterCoder(f Filter, sink io.Writer) ([]byte, []byte, io.WriteCloser, error) {
	switch f.Kind {
	case FilterBCJX86:
		wc, err := bra.NewBCJWriter(nil, sink)

		return []byte{0x04}, nil, wc, err
	case FilterDelta:
		props := []byte{f.DeltaDistance}

		wc, err := delta.NewWriter(props, sink)

		return []byte{0x03}, props, wc, err
	default:
		return nil, nil, nil, fmt.Errorf("sevenzip: unknown filter kind %d", f.Kind) //nolint:err113
	}
}

// buildFolder compresses chunks (each an independent file's raw bytes,
// or the single chunk of a header blob) into one pack stream, applying
// filters before method and, if useAES, AES-256 after it — the write
// order spec.md's writer algorithm calls for. It returns the resulting
// folder description, the concatenated compressed bytes, and one CRC-32
// per chunk.
func (w *Writer) buildFolder(
	method Method, filters []Filter, useAES bool, chunks [][]byte,
) (*folder, []byte, []uint32, error) {
	if useAES && w.opts.Password == "" {
		return nil, nil, nil, &PasswordRequiredError{}
	}

	packBuf := new(bytes.Buffer)

	var stages []*coderStage

	sink := io.Writer(packBuf)

	addStage := func(methodID, properties []byte, wc io.WriteCloser) {
		st := &coderStage{methodID: methodID, properties: properties, wc: wc}
		stages = append(stages, st)
		sink = &countingWriter{w: wc, n: &st.written}
	}

	if useAES {
		props, aw, err := aes7z.NewWriteCloser(sink, w.opts.Password, w.opts.KeyIterationsPower)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("sevenzip: error creating header encryption: %w", err)
		}

		addStage([]byte{0x06, 0xf1, 0x07, 0x01}, props, aw)
	}

	mainID, mainProps, mainWC, err := w.mainCoder(method, sink)
	if err != nil {
		return nil, nil, nil, err
	}

	addStage(mainID, mainProps, mainWC)

	for _, f := range filters {
		fID, fProps, fWC, err := filterCoder(f, sink)
		if err != nil {
			return nil, nil, nil, err
		}

		addStage(fID, fProps, fWC)
	}

	entry := sink

	crcs := make([]uint32, len(chunks))

	for i, chunk := range chunks {
		h := crc32.NewIEEE()
		if _, err := io.MultiWriter(entry, h).Write(chunk); err != nil {
			return nil, nil, nil, fmt.Errorf("sevenzip: error writing folder content: %w", err)
		}

		crcs[i] = h.Sum32()
	}

	for i := len(stages) - 1; i >= 0; i-- {
		if err := stages[i].wc.Close(); err != nil {
			return nil, nil, nil, fmt.Errorf("sevenzip: error closing coder: %w", err)
		}
	}

	n := len(stages)
	f := &folder{
		in: uint64(n), out: uint64(n), //nolint:gosec
		packedStreams: 1,
		coder:         make([]*coder, n),
		size:          make([]uint64, n),
		packed:        []uint64{0},
	}

	for i, st := range stages {
		f.coder[i] = &coder{id: st.methodID, in: 1, out: 1, properties: st.properties}
		f.size[i] = st.written
	}

	for i := 1; i < n; i++ {
		f.bindPair = append(f.bindPair, &bindPair{in: uint64(i), out: uint64(i - 1)}) //nolint:gosec
	}

	return f, packBuf.Bytes(), crcs, nil
}

func (w *Writer) partitionFolders() [][]*pendingEntry {
	limit := w.opts.SolidBlockSize
	if limit == 0 {
		limit = ^uint64(0)
	}

	var (
		folders      [][]*pendingEntry
		current      []*pendingEntry
		currentBytes uint64
	)

	flush := func() {
		if len(current) > 0 {
			folders = append(folders, current)
			current = nil
			currentBytes = 0
		}
	}

	for _, e := range w.files {
		if e.isDir || e.header.isEmptyStream {
			continue
		}

		switch w.opts.Solid {
		case SolidOff:
			folders = append(folders, []*pendingEntry{e})
		case SolidAll:
			current = append(current, e)
		case SolidBlock:
			size := uint64(e.buf.Len()) //nolint:gosec
			if len(current) > 0 && currentBytes+size > limit {
				flush()
			}

			current = append(current, e)
			currentBytes += size
		}
	}

	flush()

	return folders
}

// encodeHeader compresses (and, if requested, encrypts) the plain
// header bytes and returns the small EncodedHeader descriptor together
// with the packed header bytes; on disk the descriptor follows the pack
// region, per spec.md §4.10 step 4. bodyPackLen is the size of
// the pack region already written, since the header's own pack stream
// is appended immediately after it and shares the same coordinate
// origin (see streamsInfo.folderOffset).
func (w *Writer) encodeHeader(plain []byte, bodyPackLen uint64) ([]byte, []byte, error) {
	f, packed, _, err := w.buildFolder(MethodLZMA2, nil, w.opts.EncryptHeader, [][]byte{plain})
	if err != nil {
		return nil, nil, err
	}

	si := &streamsInfo{
		packInfo:   &packInfo{position: bodyPackLen, streams: 1, size: []uint64{uint64(len(packed))}},
		unpackInfo: &unpackInfo{folder: []*folder{f}},
	}

	var buf bytes.Buffer

	buf.WriteByte(idEncodedHeader)

	if err := writeStreamsInfo(&buf, si); err != nil {
		return nil, nil, err
	}

	return buf.Bytes(), packed, nil
}

// assemble encodes the header for plain, appends its pack stream to
// packed, and writes the signature header, pack region and header to
// sink — the tail end of spec.md §4.10's algorithm, shared with
// [Editor.Apply] which builds its own pack region and header bytes the
// same way a Writer does.
func (w *Writer) assemble(sink io.Writer, packed, plain []byte) error {
	descriptor, headerPacked, err := w.encodeHeader(plain, uint64(len(packed))) //nolint:gosec
	if err != nil {
		return err
	}

	fullPack := append(packed, headerPacked...) //nolint:gocritic

	start := startHeader{
		Offset: uint64(len(fullPack)),   //nolint:gosec
		Size:   uint64(len(descriptor)), //nolint:gosec
		CRC:    crc32.ChecksumIEEE(descriptor),
	}

	var startBuf bytes.Buffer
	if err := binary.Write(&startBuf, binary.LittleEndian, &start); err != nil {
		return fmt.Errorf("sevenzip: error encoding start header: %w", err)
	}

	sh := signatureHeader{
		Signature: [6]byte{'7', 'z', 0xbc, 0xaf, 0x27, 0x1c},
		Major:     0,
		Minor:     4, //nolint:mnd
		CRC:       crc32.ChecksumIEEE(startBuf.Bytes()),
	}

	if err := binary.Write(sink, binary.LittleEndian, &sh); err != nil {
		return fmt.Errorf("sevenzip: error writing signature header: %w", err)
	}

	if _, err := startBuf.WriteTo(sink); err != nil {
		return fmt.Errorf("sevenzip: error writing start header: %w", err)
	}

	if _, err := sink.Write(fullPack); err != nil {
		return fmt.Errorf("sevenzip: error writing pack region: %w", err)
	}

	if _, err := sink.Write(descriptor); err != nil {
		return fmt.Errorf("sevenzip: error writing header: %w", err)
	}

	return nil
}

// Close assembles every buffered file into folders, builds and encodes
// the header, and writes the complete archive to the underlying sink.
//
//nolint:funlen
func (w *Writer) Close() error {
	if w.closed {
		return errWriterClosed
	}

	w.closed = true

	for _, e := range w.files {
		if !e.isDir && e.buf.Len() == 0 {
			e.header.isEmptyStream = true
			e.header.isEmptyFile = true
		}
	}

	groups := w.partitionFolders()

	var (
		folders      []*folder
		packed       []byte
		streamCounts []uint64
		subSizes     []uint64
		subDigests   []uint32
		packSizes    []uint64
	)

	for _, group := range groups {
		chunks := make([][]byte, len(group))
		for i, e := range group {
			chunks[i] = e.buf.Bytes()
		}

		f, packedBytes, crcs, err := w.buildFolder(w.opts.Method, w.opts.Filters, w.opts.Password != "", chunks)
		if err != nil {
			return err
		}

		folders = append(folders, f)
		packed = append(packed, packedBytes...)
		packSizes = append(packSizes, uint64(len(packedBytes))) //nolint:gosec
		streamCounts = append(streamCounts, uint64(len(group))) //nolint:gosec

		for i, e := range group {
			e.header.CRC32 = crcs[i]
			e.header.UncompressedSize = uint64(e.buf.Len()) //nolint:gosec
			subSizes = append(subSizes, e.header.UncompressedSize)
			subDigests = append(subDigests, crcs[i])
		}
	}

	si := &streamsInfo{}
	if len(folders) > 0 {
		si.packInfo = &packInfo{position: 0, streams: uint64(len(folders)), size: packSizes} //nolint:gosec
		si.unpackInfo = &unpackInfo{folder: folders}
		si.subStreamsInfo = &subStreamsInfo{streams: streamCounts, size: subSizes, digest: subDigests}
	}

	fi := &filesInfo{file: make([]FileHeader, len(w.files))}
	for i, e := range w.files {
		fi.file[i] = e.header
	}

	hdr := &header{filesInfo: fi}
	if si.packInfo != nil {
		hdr.streamsInfo = si
	}

	var plain bytes.Buffer
	if err := writeHeader(&plain, hdr); err != nil {
		return err
	}

	return w.assemble(w.sink, packed, plain.Bytes())
}
