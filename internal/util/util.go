// Package util holds small stream helpers shared by the coder
// implementations and the archive reader.
package util

import (
	"bufio"
	"io"
)

// ReadCloser is an io.ReadCloser that also exposes io.ByteReader, which
// several coders (BCJ2, Deflate) need in order to read one byte at a time
// without pulling in a full bufio.Reader themselves.
type ReadCloser interface {
	io.ReadCloser
	io.ByteReader
}

// SizeReadSeekCloser is an io.ReadSeekCloser that also knows its own total
// size, used by the folder stream pool to validate seek bounds and to
// decide whether a reader has been drained to EOF before pooling it.
type SizeReadSeekCloser interface {
	io.ReadSeekCloser
	Size() int64
}

type nopCloser struct {
	io.Reader
}

func (nopCloser) Close() error { return nil }

// NopCloser returns a ReadCloser with a no-op Close method wrapping r, the
// same way io.NopCloser does, but typed so it can stand in for one of a
// folder's pack-stream inputs.
func NopCloser(r io.Reader) io.ReadCloser {
	return nopCloser{r}
}

type byteReadCloser struct {
	io.ReadCloser
	br io.ByteReader
}

func (b *byteReadCloser) ReadByte() (byte, error) {
	return b.br.ReadByte()
}

// ByteReadCloser adapts an io.ReadCloser so it also implements
// io.ByteReader, wrapping it in a bufio.Reader only when it doesn't
// already satisfy the interface.
func ByteReadCloser(rc io.ReadCloser) ReadCloser {
	if already, ok := rc.(ReadCloser); ok {
		return already
	}

	var br io.ByteReader
	if b, ok := rc.(io.ByteReader); ok {
		br = b
	} else {
		br = bufio.NewReader(rc)
	}

	return &byteReadCloser{ReadCloser: rc, br: br}
}

// CRC32Equal reports whether the IEEE CRC-32 checksum held in sum (as
// produced by a hash.Hash32's Sum(nil)) matches the little-endian uint32
// value expected, the form every section of the 7z header stores its
// digests in.
func CRC32Equal(sum []byte, expected uint32) bool {
	if len(sum) != 4 {
		return false
	}

	got := uint32(sum[0]) | uint32(sum[1])<<8 | uint32(sum[2])<<16 | uint32(sum[3])<<24

	return got == expected
}
