package sevenzip

import (
	"bytes"
	"testing"
)

func TestRecoverFindsSignatureAfterJunkPrefix(t *testing.T) {
	archive := roundTripBytes(t, WriteOptions{Method: MethodCopy}, map[string]string{
		"a.txt": "recoverable",
	})

	junk := bytes.Repeat([]byte{0xAA}, 512)
	prefixed := append(junk, archive...) //nolint:gocritic

	r, err := Recover(bytes.NewReader(prefixed), int64(len(prefixed)))
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}

	if got, want := readFile(t, r, "a.txt"), "recoverable"; got != want {
		t.Errorf("content = %q, want %q", got, want)
	}
}

func TestRecoverFailsWithoutSignature(t *testing.T) {
	junk := bytes.Repeat([]byte{0xAA}, 2048)

	if _, err := Recover(bytes.NewReader(junk), int64(len(junk))); err == nil {
		t.Fatal("Recover: expected error for a buffer with no signature, got nil")
	}
}
