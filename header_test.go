package sevenzip

import (
	"bufio"
	"bytes"
	"hash/crc32"
	"testing"
)

func TestNumberRoundTrip(t *testing.T) {
	values := []uint64{
		0, 1, 127, 128, 255, 256, 1 << 13, 1<<13 - 1, 1 << 20, 1 << 34,
		20000, 1234567, 0x0102030405, 1<<63 - 1, 1 << 63, ^uint64(0),
	}

	for _, v := range values {
		var buf bytes.Buffer
		if err := writeNumber(&buf, v); err != nil {
			t.Fatalf("writeNumber(%d): %v", v, err)
		}

		got, err := readNumber(bufio.NewReader(&buf))
		if err != nil {
			t.Fatalf("readNumber after writeNumber(%d): %v", v, err)
		}

		if got != v {
			t.Errorf("round trip of %d produced %d", v, got)
		}
	}
}

func TestNumberAcceptsNonMinimalEncoding(t *testing.T) {
	// A first byte of 0x80 claims one extra byte is present; 0x00 as that
	// byte decodes to zero even though the minimal encoding of zero is a
	// single 0x00 byte. spec.md §4.2 requires decoders to accept this.
	r := bufio.NewReader(bytes.NewReader([]byte{0x80, 0x00}))

	got, err := readNumber(r)
	if err != nil {
		t.Fatalf("readNumber: %v", err)
	}

	if got != 0 {
		t.Errorf("readNumber(non-minimal zero) = %d, want 0", got)
	}
}

func TestBitFieldRoundTrip(t *testing.T) {
	cases := [][]bool{
		{},
		{true},
		{false},
		{true, false, true, false, true, false, true, false},
		{true, false, true, false, true, false, true, false, true},
		make([]bool, 17),
	}

	for _, v := range cases {
		var buf bytes.Buffer
		if err := writeBits(&buf, v); err != nil {
			t.Fatalf("writeBits: %v", err)
		}

		got, err := readBits(bufio.NewReader(&buf), len(v))
		if err != nil {
			t.Fatalf("readBits: %v", err)
		}

		if len(got) != len(v) {
			t.Fatalf("readBits returned %d bits, want %d", len(got), len(v))
		}

		for i := range v {
			if got[i] != v[i] {
				t.Errorf("bit %d = %v, want %v", i, got[i], v[i])
			}
		}
	}
}

func TestBooleanListRoundTrip(t *testing.T) {
	allTrue := make([]bool, 10)
	for i := range allTrue {
		allTrue[i] = true
	}

	mixed := []bool{true, false, true, true, false}

	for _, v := range [][]bool{allTrue, mixed} {
		var buf bytes.Buffer
		if err := writeBoolVector(&buf, v); err != nil {
			t.Fatalf("writeBoolVector: %v", err)
		}

		got, err := readBoolVector(bufio.NewReader(&buf), len(v))
		if err != nil {
			t.Fatalf("readBoolVector: %v", err)
		}

		for i := range v {
			if got[i] != v[i] {
				t.Errorf("bit %d = %v, want %v", i, got[i], v[i])
			}
		}
	}
}

func TestCRC32KnownVectors(t *testing.T) {
	if got := crc32.ChecksumIEEE(nil); got != 0 {
		t.Errorf("CRC32 of empty input = %#x, want 0", got)
	}

	if got := crc32.ChecksumIEEE([]byte("123456789")); got != 0xCBF43926 {
		t.Errorf("CRC32(%q) = %#x, want 0xCBF43926", "123456789", got)
	}
}

func TestUTF16StringRoundTrip(t *testing.T) {
	cases := []string{"", "hello", "héllo wörld", "日本語"}

	for _, s := range cases {
		var buf bytes.Buffer
		if err := writeUTF16String(&buf, s); err != nil {
			t.Fatalf("writeUTF16String(%q): %v", s, err)
		}

		got, err := readUTF16String(bufio.NewReader(&buf))
		if err != nil {
			t.Fatalf("readUTF16String after writeUTF16String(%q): %v", s, err)
		}

		if got != s {
			t.Errorf("round trip of %q produced %q", s, got)
		}
	}
}

func TestFiletimeRoundTrip(t *testing.T) {
	ft := uint64(130000000000000000)

	got := timeToFiletime(filetimeToTime(ft))
	if got != ft {
		t.Errorf("filetime round trip: got %d, want %d", got, ft)
	}
}
