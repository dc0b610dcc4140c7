package sevenzip

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/spf13/afero"
)

func TestStreamingReaderRoundTrip(t *testing.T) {
	src := roundTripBytes(t, WriteOptions{Method: MethodLZMA2, Solid: SolidAll}, map[string]string{
		"a.txt": "aaaaaaaaaa",
		"b.txt": "bbbbbbbbbb",
		"c.txt": "cccccccccc",
	})

	r, err := NewReader(bytes.NewReader(src), int64(len(src)))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	sr, err := NewStreamingReader(r, DefaultMemoryBudget())
	if err != nil {
		t.Fatalf("NewStreamingReader: %v", err)
	}
	defer sr.Close()

	want := map[string]string{"a.txt": "aaaaaaaaaa", "b.txt": "bbbbbbbbbb", "c.txt": "cccccccccc"}

	for _, f := range sr.Entries() {
		rc, err := sr.Open(f)
		if err != nil {
			t.Fatalf("Open(%q): %v", f.Name, err)
		}

		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read %q: %v", f.Name, err)
		}

		if err := rc.Close(); err != nil {
			t.Fatalf("close %q: %v", f.Name, err)
		}

		if got := string(data); got != want[f.Name] {
			t.Errorf("%q content = %q, want %q", f.Name, got, want[f.Name])
		}
	}
}

func TestStreamingReaderExtract(t *testing.T) {
	src := roundTripBytes(t, WriteOptions{Method: MethodCopy}, map[string]string{
		"x.txt": "hello streaming",
	})

	r, err := NewReader(bytes.NewReader(src), int64(len(src)))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	budget := DefaultMemoryBudget()
	budget.DecoderPoolCapacity = 1

	sr, err := NewStreamingReader(r, budget)
	if err != nil {
		t.Fatalf("NewStreamingReader: %v", err)
	}
	defer sr.Close()

	fs := afero.NewMemMapFs()

	if err := sr.Extract(context.Background(), fs, "/out", nil); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	data, err := afero.ReadFile(fs, "/out/x.txt")
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}

	if got, want := string(data), "hello streaming"; got != want {
		t.Errorf("extracted content = %q, want %q", got, want)
	}
}

func TestMemoryBudgetNormalize(t *testing.T) {
	b := MemoryBudget{}.normalize()

	if b.DecoderPoolCapacity != DefaultMemoryBudget().DecoderPoolCapacity {
		t.Errorf("DecoderPoolCapacity = %d, want default", b.DecoderPoolCapacity)
	}

	if b.MaxBufferBytes != DefaultMemoryBudget().MaxBufferBytes {
		t.Errorf("MaxBufferBytes = %d, want default", b.MaxBufferBytes)
	}
}
