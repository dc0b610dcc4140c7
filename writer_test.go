package sevenzip

import (
	"bytes"
	"io"
	"testing"
)

// roundTrip writes the given name/content pairs with opts, reopens the
// resulting archive and returns the Reader for assertions.
func roundTrip(t *testing.T, opts WriteOptions, files map[string]string) *Reader {
	t.Helper()

	var buf bytes.Buffer

	w := NewWriter(&buf, opts)

	for _, name := range sortedKeys(files) {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("Create(%q): %v", name, err)
		}

		if _, err := io.WriteString(fw, files[name]); err != nil {
			t.Fatalf("write %q: %v", name, err)
		}
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	return r
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}

	return keys
}

func readFile(t *testing.T, r *Reader, name string) string {
	t.Helper()

	for _, f := range r.File {
		if f.Name != name {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			t.Fatalf("Open(%q): %v", name, err)
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read %q: %v", name, err)
		}

		return string(data)
	}

	t.Fatalf("file %q not found in archive", name)

	return ""
}

func TestWriterRoundTripCopy(t *testing.T) {
	files := map[string]string{
		"hello.txt": "hello, world",
		"empty.txt": "",
	}

	r := roundTrip(t, WriteOptions{Method: MethodCopy}, files)

	if got, want := len(r.File), len(files); got != want {
		t.Fatalf("len(r.File) = %d, want %d", got, want)
	}

	for name, want := range files {
		if got := readFile(t, r, name); got != want {
			t.Errorf("content of %q = %q, want %q", name, got, want)
		}
	}
}

func TestWriterRoundTripLZMA2(t *testing.T) {
	files := map[string]string{
		"a.txt": "the quick brown fox jumps over the lazy dog, repeated, repeated, repeated",
	}

	r := roundTrip(t, WriteOptions{Method: MethodLZMA2}, files)

	if got, want := readFile(t, r, "a.txt"), files["a.txt"]; got != want {
		t.Errorf("content = %q, want %q", got, want)
	}
}

func TestWriterRoundTripLargeFile(t *testing.T) {
	// Large enough that the coder's unpack size and the pack stream's
	// size both need more than one NUMBER extra byte to encode.
	var sb bytes.Buffer
	for i := 0; i < 4000; i++ {
		sb.WriteString("0123456789")
	}

	content := sb.String()

	r := roundTrip(t, WriteOptions{Method: MethodCopy}, map[string]string{"big.bin": content})

	if got := readFile(t, r, "big.bin"); got != content {
		t.Fatalf("content mismatch: got %d bytes, want %d bytes", len(got), len(content))
	}
}

func TestWriterRoundTripSolid(t *testing.T) {
	files := map[string]string{
		"a": "AAAAAAAAAA",
		"b": "BBBBBBBBBB",
		"c": "CCCCCCCCCC",
	}

	r := roundTrip(t, WriteOptions{Method: MethodLZMA2, Solid: SolidAll}, files)

	for name, want := range files {
		if got := readFile(t, r, name); got != want {
			t.Errorf("content of %q = %q, want %q", name, got, want)
		}
	}
}

func TestWriterRoundTripEncrypted(t *testing.T) {
	var buf bytes.Buffer

	opts := WriteOptions{
		Method:             MethodLZMA2,
		Password:           "test",
		EncryptHeader:      true,
		KeyIterationsPower: 4,
	}

	w := NewWriter(&buf, opts)

	fw, err := w.Create("secret.txt")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := io.WriteString(fw, "hello"); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len())); err == nil {
		t.Fatal("NewReader without password: expected error")
	} else if _, ok := asPasswordRequired(err); !ok {
		t.Fatalf("NewReader without password: got %v, want PasswordRequiredError", err)
	}

	if _, err := NewReaderWithPassword(bytes.NewReader(buf.Bytes()), int64(buf.Len()), "wrong"); err == nil {
		t.Fatal("NewReaderWithPassword(wrong): expected error")
	}

	r, err := NewReaderWithPassword(bytes.NewReader(buf.Bytes()), int64(buf.Len()), "test")
	if err != nil {
		t.Fatalf("NewReaderWithPassword(test): %v", err)
	}

	if got, want := readFile(t, r, "secret.txt"), "hello"; got != want {
		t.Errorf("content = %q, want %q", got, want)
	}
}

func asPasswordRequired(err error) (*PasswordRequiredError, bool) {
	for err != nil {
		if pr, ok := err.(*PasswordRequiredError); ok { //nolint:errorlint
			return pr, true
		}

		u, ok := err.(interface{ Unwrap() error }) //nolint:errorlint
		if !ok {
			break
		}

		err = u.Unwrap()
	}

	return nil, false
}

func TestWriterRoundTripEmptyDir(t *testing.T) {
	var buf bytes.Buffer

	w := NewWriter(&buf, WriteOptions{})

	if err := w.CreateDir("adir"); err != nil {
		t.Fatalf("CreateDir: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	if len(r.File) != 1 || r.File[0].Name != "adir/" || !r.File[0].FileInfo().IsDir() {
		t.Fatalf("expected a single directory entry named %q, got %+v", "adir/", r.File)
	}
}
