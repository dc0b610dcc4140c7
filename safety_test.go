package sevenzip

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/afero"
)

func TestSanitizeEntryNameRejectsTraversal(t *testing.T) {
	cases := []string{
		"../etc/passwd",
		"/etc/passwd",
		"a/../../b",
		`C:\windows\system32`,
	}

	for _, name := range cases {
		if _, err := sanitizeEntryName(name); err == nil {
			t.Errorf("sanitizeEntryName(%q): expected PathUnsafeError, got nil", name)
		}
	}
}

func TestSanitizeEntryNameAcceptsNormalPaths(t *testing.T) {
	cases := map[string]string{
		"a/b/c.txt":    "a/b/c.txt",
		"./foo.txt":    "foo.txt",
		`a\b\c.txt`:    "a/b/c.txt",
	}

	for in, want := range cases {
		got, err := sanitizeEntryName(in)
		if err != nil {
			t.Errorf("sanitizeEntryName(%q): unexpected error: %v", in, err)

			continue
		}

		if got != want {
			t.Errorf("sanitizeEntryName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtractRejectsPathTraversal(t *testing.T) {
	src := roundTripBytes(t, WriteOptions{Method: MethodCopy}, map[string]string{
		"../etc/passwd": "pwned",
	})

	r, err := NewReader(bytes.NewReader(src), int64(len(src)))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	fs := afero.NewMemMapFs()

	err = r.Extract(context.Background(), fs, "/out", nil)
	if err == nil {
		t.Fatal("Extract: expected PathUnsafeError, got nil")
	}

	if _, ok := err.(*PathUnsafeError); !ok { //nolint:errorlint
		t.Fatalf("Extract: got %T (%v), want *PathUnsafeError", err, err)
	}

	if exists, _ := afero.Exists(fs, "/etc/passwd"); exists {
		t.Error("Extract must not have written outside the extraction root")
	}
}

// infiniteZeroReadCloser simulates a decoder that keeps producing decoded
// output forever from a tiny input, the shape of a compression-bomb
// folder (spec §8 scenario 6: a 1 KiB pack stream declaring a 10 GiB
// unpack size).
type infiniteZeroReadCloser struct{}

func (infiniteZeroReadCloser) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}

	return len(p), nil
}

func (infiniteZeroReadCloser) Close() error { return nil }

func TestRatioGuardDetectsCompressionBomb(t *testing.T) {
	limits := DefaultResourceLimits()

	ratio := &ratioCounter{}
	ratio.add(1 << 10) //nolint:mnd // 1 KiB pack stream, as in scenario 6

	guarded := &ratioGuardReadCloser{ReadCloser: infiniteZeroReadCloser{}, limits: limits, counter: ratio}

	buf := make([]byte, 64<<10) //nolint:mnd

	var (
		total int64
		err   error
	)

	for {
		var n int

		n, err = guarded.Read(buf)
		total += int64(n)

		if err != nil {
			break
		}

		if total > int64(limits.MinRatioGuardSize)*2 { //nolint:mnd
			t.Fatal("ratio guard failed to trip before writing far more than the floor")
		}
	}

	rerr, ok := err.(*ResourceLimitExceededError) //nolint:errorlint
	if !ok {
		t.Fatalf("Read: got %T (%v), want *ResourceLimitExceededError", err, err)
	}

	if rerr.Reason != "ratio" {
		t.Errorf("Reason = %q, want %q", rerr.Reason, "ratio")
	}

	if total > int64(limits.MinRatioGuardSize)+int64(len(buf)) {
		t.Errorf("wrote %d bytes before tripping, want at most the floor (%d) plus one read", total, limits.MinRatioGuardSize)
	}
}

func TestCheckDuplicatePaths(t *testing.T) {
	if err := checkDuplicatePaths([]string{"a", "b", "c"}, DuplicateStrict); err != nil {
		t.Errorf("distinct paths: unexpected error: %v", err)
	}

	if err := checkDuplicatePaths([]string{"a", "b", "a"}, DuplicateStrict); err == nil {
		t.Error("exact duplicate: expected PathUnsafeError, got nil")
	}

	if err := checkDuplicatePaths([]string{"A", "a"}, DuplicateStrict); err != nil {
		t.Errorf("case-differing paths under DuplicateStrict: unexpected error: %v", err)
	}

	if err := checkDuplicatePaths([]string{"A", "a"}, DuplicateCaseFold); err == nil {
		t.Error("case-differing paths under DuplicateCaseFold: expected PathUnsafeError, got nil")
	}
}
