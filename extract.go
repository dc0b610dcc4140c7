package sevenzip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ExtractOptions controls [Reader.Extract].
type ExtractOptions struct {
	// Concurrency bounds how many regular files may be decoded and
	// written in parallel.
	// Zero means a sensible default (four).
	Concurrency int

	// Limits overrides the resource limits enforced while extracting.
	// A nil value uses [DefaultResourceLimits].
	Limits *ResourceLimits

	// Links controls how symlink entries are handled. The zero value,
	// [LinkForbid], matches spec.md's "forbidden by default".
	Links LinkPolicy

	// Duplicates controls how colliding normalized paths are handled.
	// The zero value, [DuplicateStrict], rejects only byte-identical
	// collisions.
	Duplicates DuplicatePolicy

	// SkipUnsafe, when true, silently skips entries that fail the
	// safety kernel's path checks instead of aborting the whole
	// operation with a [PathUnsafeError].
	SkipUnsafe bool
}

func (o *ExtractOptions) concurrency() int {
	if o == nil || o.Concurrency <= 0 {
		return 4 //nolint:mnd
	}

	return o.Concurrency
}

func (o *ExtractOptions) limits() ResourceLimits {
	if o == nil || o.Limits == nil {
		return DefaultResourceLimits()
	}

	return *o.Limits
}

func (o *ExtractOptions) linkPolicy() LinkPolicy {
	if o == nil {
		return LinkForbid
	}

	return o.Links
}

func (o *ExtractOptions) skipUnsafe() bool {
	return o != nil && o.SkipUnsafe
}

var errSymlinkUnsupported = errors.New("sevenzip: target filesystem does not support symlinks")

// isPathUnsafe reports whether err is (or wraps) a [PathUnsafeError], the
// only error kind ExtractOptions.SkipUnsafe is allowed to swallow.
func isPathUnsafe(err error) bool {
	var e *PathUnsafeError

	return errors.As(err, &e)
}

// readSymlinkTargets reads the (tiny) content of every symlink entry in
// files up front, returning a name-to-is-symlink set and a name-to-target
// map used by [resolveSymlinkTarget] to validate chains under
// [LinkValidate].
func readSymlinkTargets(files []*File) (map[string]bool, map[string]string, error) {
	symlinks := make(map[string]bool)
	targets := make(map[string]string)

	for _, f := range files {
		if !f.isSymlink() {
			continue
		}

		name, err := sanitizeEntryName(f.Name)
		if err != nil {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, nil, fmt.Errorf("sevenzip: error reading symlink %s: %w", f.Name, err)
		}

		data, err := io.ReadAll(rc)

		if cerr := rc.Close(); cerr != nil && err == nil {
			err = cerr
		}

		if err != nil {
			return nil, nil, fmt.Errorf("sevenzip: error reading symlink %s: %w", f.Name, err)
		}

		symlinks[name] = true
		targets[name] = string(data)
	}

	return symlinks, targets, nil
}

// createSymlink applies opts.Links to one symlink entry: [LinkForbid]
// always fails, [LinkValidate] resolves the target through any chain of
// archive-internal symlinks (capped by ResourceLimits.MaxSymlinkChainDepth
// via guard) and rejects it if it would escape dest, and [LinkAllow]
// writes the target verbatim with no resolution.
func createSymlink(
	fsys afero.Fs, dest, name, target string, opts *ExtractOptions,
	symlinks map[string]bool, targets map[string]string, guard *symlinkDepthGuard,
) error {
	switch opts.linkPolicy() {
	case LinkForbid:
		return &PathUnsafeError{Name: name, Reason: "symlink forbidden by policy"}
	case LinkValidate:
		if _, err := resolveSymlinkTarget(symlinks, targets, name, target, guard); err != nil {
			return err
		}
	case LinkAllow:
	}

	linker, ok := fsys.(afero.Linker)
	if !ok {
		return &IoFailedError{Op: "symlink " + name, Err: errSymlinkUnsupported}
	}

	linkPath := filepath.Join(dest, filepath.FromSlash(name))

	if err := linker.SymlinkIfPossible(filepath.FromSlash(target), linkPath); err != nil {
		return &IoFailedError{Op: "symlink " + name, Err: err}
	}

	return nil
}

// Extract writes every regular file and directory in the archive beneath
// dest on fsys, applying the safety kernel's path normalization and anti-
// item handling, and enforcing the configured [ResourceLimits]. Regular
// files are decoded with up to opts.Concurrency workers in parallel. Once
// ctx is done or any entry fails, no further entry is started; entries
// already being written run to completion. Anti-items are removed after
// every regular file has been written.
func (z *Reader) Extract(ctx context.Context, fsys afero.Fs, dest string, opts *ExtractOptions) error {
	return z.extract(ctx, fsys, dest, opts, (*File).Open)
}

func (z *Reader) extract(
	ctx context.Context, fsys afero.Fs, dest string, opts *ExtractOptions,
	open func(*File) (io.ReadCloser, error),
) error {
	limits := opts.limits()
	z.limits = limits

	if err := z.checkLimits(limits); err != nil {
		return err
	}

	if err := fsys.MkdirAll(dest, 0o755); err != nil { //nolint:mnd
		return &IoFailedError{Op: "mkdir", Err: err}
	}

	symlinks, linkTargets, err := readSymlinkTargets(z.File)
	if err != nil {
		return err
	}

	var duplicates DuplicatePolicy
	if opts != nil {
		duplicates = opts.Duplicates
	}

	names := make([]string, 0, len(z.File))

	for _, f := range z.File {
		if name, err := sanitizeEntryName(f.Name); err == nil {
			names = append(names, name)
		}
	}

	if err := checkDuplicatePaths(names, duplicates); err != nil && !opts.skipUnsafe() {
		return err
	}

	// Directories and symlinks are applied first and sequentially:
	// cheap, and later regular-file writes may depend on the directory
	// tree already existing. Anti-items are only collected here and are
	// removed after every regular file has been written.
	var (
		regular []*File
		anti    []string
	)

	for _, f := range z.File {
		name, err := sanitizeEntryName(f.Name)
		if err != nil {
			if opts.skipUnsafe() {
				continue
			}

			return err
		}

		target := filepath.Join(dest, filepath.FromSlash(name))

		switch {
		case f.isAnti:
			anti = append(anti, target)
		case f.isSymlink():
			guard := &symlinkDepthGuard{max: limits.MaxSymlinkChainDepth}
			if err := createSymlink(fsys, dest, name, linkTargets[name], opts, symlinks, linkTargets, guard); err != nil {
				if opts.skipUnsafe() && isPathUnsafe(err) {
					continue
				}

				return err
			}
		case f.FileInfo().IsDir():
			if err := fsys.MkdirAll(target, 0o755); err != nil { //nolint:mnd
				return &IoFailedError{Op: "mkdir", Err: err}
			}
		default:
			if err := fsys.MkdirAll(filepath.Dir(target), 0o755); err != nil { //nolint:mnd
				return &IoFailedError{Op: "mkdir", Err: err}
			}

			regular = append(regular, f)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(opts.concurrency()))

	var total uint64

	for _, f := range regular {
		f := f

		if f.UncompressedSize > limits.MaxEntryUnpackedSize {
			return &ResourceLimitExceededError{Reason: "entry_unpacked_size"}
		}

		total += f.UncompressedSize
		if total > limits.MaxTotalUnpackedSize {
			return &ResourceLimitExceededError{Reason: "total_unpacked_size"}
		}

		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}

		g.Go(func() error {
			defer sem.Release(1)

			return extractOne(fsys, dest, f, open)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err //nolint:wrapcheck
	}

	for _, target := range anti {
		if err := fsys.RemoveAll(target); err != nil {
			return &IoFailedError{Op: "remove anti-item", Err: err}
		}
	}

	return nil
}

func extractOne(fsys afero.Fs, dest string, f *File, open func(*File) (io.ReadCloser, error)) (err error) {
	name, err := sanitizeEntryName(f.Name)
	if err != nil {
		return err
	}

	target := filepath.Join(dest, filepath.FromSlash(name))

	rc, err := open(f)
	if err != nil {
		return fmt.Errorf("sevenzip: error opening %s: %w", f.Name, err)
	}

	defer func() {
		err = errors.Join(err, rc.Close())
	}()

	w, err := fsys.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode().Perm())
	if err != nil {
		return &IoFailedError{Op: "create " + f.Name, Err: err}
	}

	defer func() {
		err = errors.Join(err, w.Close())
	}()

	if _, err = io.Copy(w, rc); err != nil {
		return fmt.Errorf("sevenzip: error extracting %s: %w", f.Name, err)
	}

	return nil
}

// Test reads and CRC-validates every file in the archive without writing
// anything to disk, returning the first integrity or decode error
// encountered.
func (z *Reader) Test(ctx context.Context, opts *ExtractOptions) error {
	return z.test(ctx, opts, (*File).Open)
}

func (z *Reader) test(ctx context.Context, opts *ExtractOptions, open func(*File) (io.ReadCloser, error)) error {
	limits := opts.limits()
	z.limits = limits

	if err := z.checkLimits(limits); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(opts.concurrency()))

	for _, f := range z.File {
		if f.isEmptyStream || f.isEmptyFile {
			continue
		}

		f := f

		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}

		g.Go(func() error {
			defer sem.Release(1)

			rc, err := open(f)
			if err != nil {
				return fmt.Errorf("sevenzip: error opening %s: %w", f.Name, err)
			}

			_, err = io.Copy(io.Discard, rc)

			return errors.Join(err, rc.Close())
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	return ctx.Err() //nolint:wrapcheck
}

func (z *Reader) checkLimits(limits ResourceLimits) error {
	if len(z.File) > limits.MaxEntries {
		return &ResourceLimitExceededError{Reason: "entry_count"}
	}

	return nil
}
