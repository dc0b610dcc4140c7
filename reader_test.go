package sevenzip

import (
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// writeArchiveFile writes files to a real .7z on disk via Writer, for
// exercising the OpenReader/OpenReaderWithPassword path-based entry points
// rather than the in-memory Reader used elsewhere in this package's tests.
func writeArchiveFile(t *testing.T, opts WriteOptions, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	name := filepath.Join(dir, "archive.7z")

	f, err := os.Create(name)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	w := NewWriter(f, opts)

	for _, n := range sortedKeys(files) {
		fw, err := w.Create(n)
		if err != nil {
			t.Fatalf("Create(%q): %v", n, err)
		}

		if _, err := io.WriteString(fw, files[n]); err != nil {
			t.Fatalf("write %q: %v", n, err)
		}
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Close file: %v", err)
	}

	return name
}

func TestOpenReaderFromPath(t *testing.T) {
	files := map[string]string{
		"one.txt": "one",
		"two.txt": "two",
	}

	name := writeArchiveFile(t, WriteOptions{Method: MethodLZMA2}, files)

	r, err := OpenReader(name)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()

	if got, want := len(r.File), len(files); got != want {
		t.Fatalf("len(r.File) = %d, want %d", got, want)
	}

	for _, file := range r.File {
		rc, err := file.Open()
		if err != nil {
			t.Fatalf("Open(%q): %v", file.Name, err)
		}

		data, err := io.ReadAll(rc)
		rc.Close()

		if err != nil {
			t.Fatalf("read %q: %v", file.Name, err)
		}

		if got, want := string(data), files[file.Name]; got != want {
			t.Errorf("content of %q = %q, want %q", file.Name, got, want)
		}
	}
}

func TestOpenReaderWithPasswordFromPath(t *testing.T) {
	opts := WriteOptions{
		Method:        MethodLZMA2,
		Password:      "hunter2",
		EncryptHeader: true,
	}

	name := writeArchiveFile(t, opts, map[string]string{"secret.txt": "shh"})

	if _, err := OpenReader(name); err == nil {
		t.Fatal("OpenReader without password: expected error")
	}

	r, err := OpenReaderWithPassword(name, "hunter2")
	if err != nil {
		t.Fatalf("OpenReaderWithPassword: %v", err)
	}
	defer r.Close()

	rc, err := r.File[0].Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if got, want := string(data), "shh"; got != want {
		t.Errorf("content = %q, want %q", got, want)
	}
}

func ExampleOpenReader() {
	files := map[string]string{"01": "a", "02": "b", "03": "c"}

	dir, err := os.MkdirTemp("", "sevenzip-example")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	name := filepath.Join(dir, "archive.7z")

	f, err := os.Create(name)
	if err != nil {
		panic(err)
	}

	w := NewWriter(f, WriteOptions{Method: MethodCopy})

	for _, n := range sortedKeys(files) {
		fw, err := w.Create(n)
		if err != nil {
			panic(err)
		}

		if _, err := io.WriteString(fw, files[n]); err != nil {
			panic(err)
		}
	}

	if err := w.Close(); err != nil {
		panic(err)
	}

	if err := f.Close(); err != nil {
		panic(err)
	}

	r, err := OpenReader(name)
	if err != nil {
		panic(err)
	}
	defer r.Close()

	for _, file := range r.File {
		println(file.Name)
	}
}

func TestReaderStoredCRCMatchesContent(t *testing.T) {
	name := writeArchiveFile(t, WriteOptions{Method: MethodCopy}, map[string]string{"a.txt": "hello"})

	r, err := OpenReader(name)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Close()

	rc, err := r.File[0].Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if got, want := crc32.ChecksumIEEE(data), r.File[0].CRC32; got != want {
		t.Errorf("CRC32 = %#x, want %#x", got, want)
	}
}
