package sevenzip

import (
	"fmt"
	"io"
)

// Recover attempts to open an archive whose true start may be preceded by
// other bytes (an SFX stub the caller doesn't know the exact size of, or a
// junk prefix), per spec.md §4.8/§9's "Recovery" row.
//
// It runs the same search [NewReader] runs through [Reader.init]:
// [findSignature]'s 1 MiB scan window lists every byte offset where the
// magic `7z\xbc\xaf\x27\x1c` appears, and the candidates are tried in turn
// until one's start-header CRC validates. The header rooted at that offset
// is then parsed; if it fails to parse, no later candidate is tried.
// Recover adds no search of its own: it is a public, explicitly
// best-effort entry point callers can reach for when they know up front
// that they're dealing with a damaged or SFX-prefixed file.
//
// Recover never scans past the first 1 MiB of r, matching spec.md's
// bounded SFX-discovery window; it returns [errFormat] (wrapped) if that
// window holds no signature, and [errChecksum] (wrapped) if no
// candidate's start-header CRC validates.
func Recover(r io.ReaderAt, size int64) (*Reader, error) {
	if size < 0 {
		return nil, errNegativeSize
	}

	zr := new(Reader)

	if err := zr.init(r, size); err != nil {
		return nil, fmt.Errorf("sevenzip: recovery failed: %w", err)
	}

	return zr, nil
}

// RecoverWithPassword is [Recover] for an archive whose header (or
// content) is encrypted.
func RecoverWithPassword(r io.ReaderAt, size int64, password string) (*Reader, error) {
	if size < 0 {
		return nil, errNegativeSize
	}

	zr := new(Reader)
	zr.p = password

	if err := zr.init(r, size); err != nil {
		return nil, fmt.Errorf("sevenzip: recovery failed: %w", err)
	}

	return zr, nil
}
