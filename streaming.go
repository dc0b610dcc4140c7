package sevenzip

import (
	"bytes"
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"
)

// MemoryBudget bounds the memory a [StreamingReader] will use while
// decoding, per spec.md §4.12.
type MemoryBudget struct {
	// MaxBufferBytes caps how many bytes a single [StreamingReader.Open]
	// read session may deliver in total; the Read call that takes the
	// count past it fails with [ResourceLimitExceededError].
	MaxBufferBytes int64

	// DecoderPoolCapacity bounds how many folders' [folderReadCloser]s
	// are kept resident at once; the least recently used is evicted
	// (and closed) when a new folder is decoded past this limit.
	DecoderPoolCapacity int

	// ReadBufferBytes is filled in with a default by normalization like
	// the other fields; no StreamingReader code path reads it.
	ReadBufferBytes int
}

// DefaultMemoryBudget returns reasonable defaults for [MemoryBudget]: four
// resident decoder pipelines, a 256 MiB decode buffer ceiling, and a
// 32 KiB read buffer.
func DefaultMemoryBudget() MemoryBudget {
	return MemoryBudget{
		MaxBufferBytes:      256 << 20, //nolint:mnd
		DecoderPoolCapacity: 4,         //nolint:mnd
		ReadBufferBytes:     32 << 10,  //nolint:mnd
	}
}

func (b MemoryBudget) normalize() MemoryBudget {
	if b.DecoderPoolCapacity <= 0 {
		b.DecoderPoolCapacity = DefaultMemoryBudget().DecoderPoolCapacity
	}

	if b.MaxBufferBytes <= 0 {
		b.MaxBufferBytes = DefaultMemoryBudget().MaxBufferBytes
	}

	if b.ReadBufferBytes <= 0 {
		b.ReadBufferBytes = DefaultMemoryBudget().ReadBufferBytes
	}

	return b
}

// StreamingReader wraps a [*Reader], replacing its per-folder stream pool
// with an LRU-evicting cache of [folderReadCloser]s keyed by folder index
// and capped at MemoryBudget.DecoderPoolCapacity, per spec.md §4.12. Public
// behaviour (entry listing, extraction semantics, CRC checking) is
// identical to [Reader]; only the decode-time memory ceiling differs.
type StreamingReader struct {
	r      *Reader
	budget MemoryBudget

	mu    sync.Mutex
	cache *lru.Cache[int, *folderReadCloser]
}

// NewStreamingReader wraps r with the given [MemoryBudget]. A zero-value
// budget is replaced field-by-field with [DefaultMemoryBudget]'s values.
func NewStreamingReader(r *Reader, budget MemoryBudget) (*StreamingReader, error) {
	budget = budget.normalize()

	sr := &StreamingReader{r: r, budget: budget}

	cache, err := lru.NewWithEvict[int, *folderReadCloser](budget.DecoderPoolCapacity,
		func(_ int, fr *folderReadCloser) {
			_ = fr.Close()
		})
	if err != nil {
		return nil, fmt.Errorf("sevenzip: error creating decoder pool: %w", err)
	}

	sr.cache = cache

	return sr, nil
}

// Entries returns the archive's file list, identical to [Reader.File].
func (sr *StreamingReader) Entries() []*File {
	return sr.r.File
}

func (sr *StreamingReader) decoderFor(folder int) (*folderReadCloser, bool, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	if fr, ok := sr.cache.Get(folder); ok {
		return fr, fr.hasEncryption, nil
	}

	fr, _, enc, err := sr.r.folderReader(sr.r.si, folder)
	if err != nil {
		return nil, enc, err
	}

	sr.cache.Add(folder, fr)

	return fr, enc, nil
}

// meteredReadCloser tracks how many bytes have flowed through one read
// session and fails once MaxBufferBytes is exceeded, per spec.md §4.12's
// "budget exceeded during a decode" clause.
type meteredReadCloser struct {
	io.ReadCloser
	limit int64
	seen  int64
}

func (m *meteredReadCloser) Read(p []byte) (int, error) {
	n, err := m.ReadCloser.Read(p)
	m.seen += int64(n)

	if m.seen > m.limit {
		return n, &ResourceLimitExceededError{Reason: "memory"}
	}

	return n, err //nolint:wrapcheck
}

// streamFile is the [StreamingReader.Open] counterpart of [fileReader]: it
// reads forward through the file's span of a shared, pooled
// [folderReadCloser], verifying the stored CRC-32 on Close, but — unlike
// [fileReader] — never returns its underlying reader to [Reader]'s
// intra-folder offset pool, since [StreamingReader] manages folder
// lifetime itself via its decoder LRU.
type streamFile struct {
	metered   *meteredReadCloser
	f         *File
	n         int64
	crc       hash32
	encrypted bool
}

type hash32 interface {
	io.Writer
	Sum32() uint32
}

func (s *streamFile) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if s.n <= 0 {
		return 0, io.EOF
	}

	if int64(len(p)) > s.n {
		p = p[0:s.n]
	}

	n, err := s.metered.Read(p)
	s.n -= int64(n)

	if n > 0 {
		s.crc.Write(p[:n]) //nolint:errcheck
	}

	return n, err //nolint:wrapcheck
}

func (s *streamFile) Close() error {
	if s.n == 0 && s.f.FileHeader.CRC32 != 0 && s.crc.Sum32() != s.f.FileHeader.CRC32 {
		if s.encrypted {
			return &BadPasswordOrCorruptError{Context: s.f.FileHeader.Name}
		}

		return &CorruptDataError{Context: s.f.FileHeader.Name}
	}

	return nil
}

// Open returns a metered, CRC-checked [io.ReadCloser] over f's content,
// building (or reusing, from the LRU decoder pool) the [folderReadCloser]
// for f's folder. Multiple files in the same solid folder share the one
// cached pipeline, exactly like [File.Open], but pipelines for folders
// outside the pool's capacity are evicted and rebuilt on next access
// instead of being kept resident forever.
func (sr *StreamingReader) Open(f *File) (io.ReadCloser, error) {
	if f.FileHeader.isEmptyStream || f.FileHeader.isEmptyFile {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}

	fr, encrypted, err := sr.decoderFor(f.folder)
	if err != nil {
		return nil, &ReadError{Encrypted: encrypted, Err: err}
	}

	if _, err := fr.Seek(f.offset, io.SeekStart); err != nil {
		return nil, &ReadError{Err: err, Encrypted: encrypted}
	}

	metered := &meteredReadCloser{
		ReadCloser: io.NopCloser(io.LimitReader(fr, int64(f.UncompressedSize))), //nolint:gosec
		limit:      sr.budget.MaxBufferBytes,
	}

	return &streamFile{
		metered:   metered,
		f:         f,
		n:         int64(f.UncompressedSize), //nolint:gosec
		crc:       crc32.NewIEEE(),
		encrypted: encrypted,
	}, nil
}

// Extract behaves exactly like [Reader.Extract], routing every regular
// file's decode through sr's bounded decoder pool instead of [Reader]'s
// own unbounded per-folder pool. Symlink targets are still read up front
// through [File.Open].
func (sr *StreamingReader) Extract(ctx context.Context, fsys afero.Fs, dest string, opts *ExtractOptions) error {
	return sr.r.extract(ctx, fsys, dest, opts, sr.Open)
}

// Test behaves exactly like [Reader.Test], routing every entry's decode
// through sr's bounded decoder pool instead of [Reader]'s own unbounded
// per-folder pool.
func (sr *StreamingReader) Test(ctx context.Context, opts *ExtractOptions) error {
	return sr.r.test(ctx, opts, sr.Open)
}

// Close releases sr's resident decoder pool, closing every cached
// [folderReadCloser].
func (sr *StreamingReader) Close() error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	sr.cache.Purge()

	return nil
}
