package sevenzip

import (
	"bytes"
	"io"
	"testing"

	"github.com/spf13/afero"
)

func TestEditorDeleteRenameUpdate(t *testing.T) {
	src := roundTripBytes(t, WriteOptions{Method: MethodLZMA2}, map[string]string{
		"keep.txt":   "kept content",
		"remove.txt": "goes away",
		"old.txt":    "before update",
	})

	r, err := NewReader(bytes.NewReader(src), int64(len(src)))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	e := NewEditor(r, WriteOptions{Method: MethodLZMA2})
	e.Delete("remove.txt")
	e.Rename("old.txt", "new.txt")
	e.Update("keep.txt", []byte("updated content"))

	fs := afero.NewMemMapFs()

	out, err := fs.Create("out.7z")
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}

	if err := e.Apply(out); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if err := out.Close(); err != nil {
		t.Fatalf("close sink: %v", err)
	}

	data, err := afero.ReadFile(fs, "out.7z")
	if err != nil {
		t.Fatalf("read back sink: %v", err)
	}

	r2, err := NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("NewReader on edited archive: %v", err)
	}

	names := make(map[string]bool, len(r2.File))
	for _, f := range r2.File {
		names[f.Name] = true
	}

	if names["remove.txt"] {
		t.Error("remove.txt should have been deleted")
	}

	if names["old.txt"] {
		t.Error("old.txt should have been renamed away")
	}

	if !names["new.txt"] {
		t.Error("new.txt should be present after rename")
	}

	if got, want := readFile(t, r2, "new.txt"), "before update"; got != want {
		t.Errorf("new.txt content = %q, want %q", got, want)
	}

	if got, want := readFile(t, r2, "keep.txt"), "updated content"; got != want {
		t.Errorf("keep.txt content = %q, want %q", got, want)
	}
}

func TestEditorAdd(t *testing.T) {
	src := roundTripBytes(t, WriteOptions{Method: MethodCopy}, map[string]string{
		"a.txt": "aaaa",
	})

	r, err := NewReader(bytes.NewReader(src), int64(len(src)))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	e := NewEditor(r, WriteOptions{Method: MethodCopy})
	e.Add("b.txt", []byte("bbbb"), FileHeader{})

	fs := afero.NewMemMapFs()

	out, err := fs.Create("out.7z")
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}

	if err := e.Apply(out); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if err := out.Close(); err != nil {
		t.Fatalf("close sink: %v", err)
	}

	data, err := afero.ReadFile(fs, "out.7z")
	if err != nil {
		t.Fatalf("read back sink: %v", err)
	}

	r2, err := NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("NewReader on edited archive: %v", err)
	}

	if got, want := readFile(t, r2, "a.txt"), "aaaa"; got != want {
		t.Errorf("a.txt content = %q, want %q", got, want)
	}
}

// roundTripBytes is like roundTrip but returns the serialized archive
// bytes instead of an already-open Reader, for tests that need to build
// an Editor against it.
func roundTripBytes(t *testing.T, opts WriteOptions, files map[string]string) []byte {
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

	return buf.Bytes()
}
