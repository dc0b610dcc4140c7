package sevenzip

import (
	"io"
	iofs "io/fs"
	"path"
	"strings"
	"sync/atomic"
)

// sanitizeEntryName validates a [FileHeader.Name] against the rules
// [Reader.Extract] applies before writing anything to disk: no NUL byte,
// no absolute path, no Windows drive letter, and no ../ segment that would
// escape the extraction root once the path is cleaned.
func sanitizeEntryName(name string) (string, error) {
	if strings.ContainsRune(name, 0) {
		return "", &PathUnsafeError{Name: name, Reason: "NUL byte in path"}
	}

	clean := strings.ReplaceAll(name, `\`, "/")

	if strings.HasPrefix(clean, "/") {
		return "", &PathUnsafeError{Name: name, Reason: "absolute path"}
	}

	if len(clean) >= 2 && clean[1] == ':' { //nolint:mnd
		return "", &PathUnsafeError{Name: name, Reason: "drive-relative path"}
	}

	cleaned := path.Clean(clean)

	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", &PathUnsafeError{Name: name, Reason: "path traversal"}
	}

	if cleaned == "." || cleaned == "" {
		return "", &PathUnsafeError{Name: name, Reason: "empty path"}
	}

	return cleaned, nil
}

// isSymlink reports whether a FileHeader's attributes mark it as a POSIX
// symbolic link.
func (h *FileHeader) isSymlink() bool {
	return h.Mode()&iofs.ModeSymlink != 0
}

// symlinkDepthGuard counts hops while a chain of symlinks is being
// resolved during extraction, returning [ResourceLimitExceededError]
// once the configured cap is exceeded.
type symlinkDepthGuard struct {
	max   int
	count int
}

func (g *symlinkDepthGuard) step() error {
	g.count++
	if g.count > g.max {
		return &ResourceLimitExceededError{Reason: "symlink_chain_depth"}
	}

	return nil
}

// DuplicatePolicy controls how [Reader.Extract] reacts to two entries
// that normalize to the same extraction path, per spec.md §4.8's
// "policy is configurable but defaults to strict" duplicate-detection
// rule.
type DuplicatePolicy int

const (
	// DuplicateStrict rejects byte-identical duplicate paths only. This
	// is the default.
	DuplicateStrict DuplicatePolicy = iota

	// DuplicateCaseFold additionally rejects paths that collide after
	// lower-casing with strings.ToLower, matching a case-insensitive target
	// filesystem (Windows, default macOS).
	DuplicateCaseFold
)

// checkDuplicatePaths applies policy to a list of already-normalized
// extraction paths, returning [PathUnsafeError] on the first collision.
func checkDuplicatePaths(names []string, policy DuplicatePolicy) error {
	seen := make(map[string]string, len(names))

	for _, name := range names {
		key := name
		if policy == DuplicateCaseFold {
			key = strings.ToLower(name)
		}

		if prior, ok := seen[key]; ok {
			return &PathUnsafeError{Name: name, Reason: "duplicate of " + prior}
		}

		seen[key] = name
	}

	return nil
}

// LinkPolicy controls how [Reader.Extract] handles entries whose
// attributes mark them as POSIX symbolic links, per spec.md §4.8/§6's
// ExtractOptions.link_policy.
type LinkPolicy int

const (
	// LinkForbid rejects any symlink entry with [PathUnsafeError] (or
	// silently skips it, if ExtractOptions.SkipUnsafe is set). This is
	// the default: spec.md requires links be "forbidden by default".
	LinkForbid LinkPolicy = iota

	// LinkValidate creates the symlink, but first resolves its target
	// through every other symlink entry in the archive (bounded by
	// [ResourceLimits.MaxSymlinkChainDepth]) and rejects it with
	// [PathUnsafeError] unless the fully resolved target stays within
	// the extraction root.
	LinkValidate

	// LinkAllow creates the symlink with its target written verbatim,
	// performing no resolution or root-containment check. Use only for
	// archives from a source you already trust.
	LinkAllow
)

// resolveSymlinkTarget validates target (the raw content of the symlink
// entry named linkName) under [LinkValidate]: it's cleaned relative to
// the link's own directory and rejected if it would escape the
// extraction root. If the resolved path happens to name another archive
// entry that is itself a symlink, resolution continues through
// linkTargets (every symlink entry's own raw content, read up front by
// the caller) up to guard's cap, matching spec.md's link-chain-depth
// limit.
func resolveSymlinkTarget(symlinks map[string]bool, linkTargets map[string]string, linkName, target string, guard *symlinkDepthGuard) (string, error) {
	if err := guard.step(); err != nil {
		return "", err
	}

	clean := strings.ReplaceAll(target, `\`, "/")
	if strings.HasPrefix(clean, "/") || (len(clean) >= 2 && clean[1] == ':') { //nolint:mnd
		return "", &PathUnsafeError{Name: target, Reason: "symlink target absolute"}
	}

	joined := path.Join(path.Dir(linkName), clean)

	if joined == ".." || strings.HasPrefix(joined, "../") {
		return "", &PathUnsafeError{Name: target, Reason: "symlink target escapes root"}
	}

	if !symlinks[joined] {
		return joined, nil
	}

	return resolveSymlinkTarget(symlinks, linkTargets, joined, linkTargets[joined], guard)
}

// ratioCounter accumulates the bytes a folder's decode pipeline has pulled
// from the pack region, shared between every leaf reader feeding the
// folder's coder DAG and the single [ratioGuardReadCloser] wrapping its
// final output.
type ratioCounter struct {
	in int64
}

func (c *ratioCounter) add(n int) {
	atomic.AddInt64(&c.in, int64(n))
}

func (c *ratioCounter) get() int64 {
	return atomic.LoadInt64(&c.in)
}

// countingReadCloser wraps one pack-stream-fed leaf reader of a folder's
// coder DAG, feeding every byte it yields into a shared [ratioCounter].
type countingReadCloser struct {
	io.ReadCloser
	counter *ratioCounter
}

func (c *countingReadCloser) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	c.counter.add(n)

	return n, err //nolint:wrapcheck
}

// ratioGuardReadCloser wraps a folder's final decoded output stream,
// comparing the bytes it has produced against the bytes its leaves have
// consumed from the pack region and failing closed once both the
// configured ratio and the floor in [ResourceLimits] are exceeded.
type ratioGuardReadCloser struct {
	io.ReadCloser
	limits  ResourceLimits
	counter *ratioCounter
	out     int64
}

func (r *ratioGuardReadCloser) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.out += int64(n)

	if gerr := r.limits.checkRatio(uint64(r.counter.get()), uint64(r.out)); gerr != nil { //nolint:gosec
		return n, gerr
	}

	return n, err //nolint:wrapcheck
}
