package sevenzip

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/andreyakinshin/zesven/internal/util"
	"golang.org/x/text/encoding/unicode"
)

// Property IDs used throughout the header grammar. Names follow the
// reference 7z format document.
const (
	idEnd                  = 0x00
	idHeader               = 0x01
	idArchiveProperties    = 0x02
	idAdditionalStreams    = 0x03
	idMainStreamsInfo      = 0x04
	idFilesInfo            = 0x05
	idPackInfo             = 0x06
	idUnpackInfo           = 0x07
	idSubStreamsInfo       = 0x08
	idSize                 = 0x09
	idCRC                  = 0x0a
	idFolder               = 0x0b
	idCodersUnpackSize     = 0x0c
	idNumUnpackStream      = 0x0d
	idEmptyStream          = 0x0e
	idEmptyFile            = 0x0f
	idAnti                 = 0x10
	idName                 = 0x11
	idCTime                = 0x12
	idATime                = 0x13
	idMTime                = 0x14
	idWinAttributes        = 0x15
	idComment              = 0x16
	idEncodedHeader        = 0x17
	idStartPos             = 0x18
	idDummy                = 0x19
)

// maxHeaderRecursion is the default bound on how many levels of encoded
// header parsing will follow, the outermost encoded header counting as
// the first; a deeper one makes parsing give up.
const maxHeaderRecursion = 4

var (
	errUnexpectedID       = errors.New("sevenzip: unexpected property ID")
	errUnsupportedExtern  = errors.New("sevenzip: external data streams are not supported")
	errTooManyCoders      = errors.New("sevenzip: folder has no coders")
	errInvalidCoderFlags  = errors.New("sevenzip: reserved coder flag bits set")
	errInvalidCoderID     = errors.New("sevenzip: coder ID has invalid length")
	errAlternativeMethods = errors.New("sevenzip: alternative coder methods are not supported")
)

// byteReader is the minimal interface the header grammar needs: a plain
// byte stream plus single-byte reads, which is what bufio.Reader and
// util.ReadCloser both already satisfy.
type byteReader interface {
	io.Reader
	io.ByteReader
}

// readNumber decodes a 7z NUMBER: the number of leading one-bits (up to 8)
// in the first byte gives the count of following little-endian bytes that
// hold the low-order bits of the value; any remaining low bits of the
// first byte hold the high-order bits.
func readNumber(r io.ByteReader) (uint64, error) {
	first, err := r.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("sevenzip: error reading number: %w", err)
	}

	var (
		value uint64
		mask  byte = 0x80
	)

	for i := 0; i < 8; i++ {
		if first&mask == 0 {
			highPart := uint64(first & (mask - 1))

			return value | highPart<<(8*i), nil
		}

		b, err := r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("sevenzip: error reading number: %w", err)
		}

		value |= uint64(b) << (8 * i)
		mask >>= 1
	}

	return value, nil
}

// writeNumber encodes v using the minimal NUMBER form.
func writeNumber(w io.Writer, v uint64) error {
	var (
		first byte
		mask  byte = 0x80
		extra []byte
	)

	i := 0

	for ; i < 8; i++ {
		if v < uint64(1)<<(7*(i+1)) {
			first |= byte(v >> (8 * i)) //nolint:gosec

			break
		}

		first |= mask
		mask >>= 1
	}

	for j := 0; j < i; j++ {
		extra = append(extra, byte(v>>(8*j))) //nolint:gosec
	}

	if _, err := w.Write(append([]byte{first}, extra...)); err != nil {
		return fmt.Errorf("sevenzip: error writing number: %w", err)
	}

	return nil
}

func readNumberInt(r io.ByteReader) (int, error) {
	v, err := readNumber(r)
	if err != nil {
		return 0, err
	}

	return int(v), nil //nolint:gosec
}

// readBits reads a BitField of n booleans, MSB-first within each byte.
func readBits(r io.ByteReader, n int) ([]bool, error) {
	v := make([]bool, n)

	var (
		b    byte
		mask byte
	)

	for i := 0; i < n; i++ {
		if mask == 0 {
			var err error

			if b, err = r.ReadByte(); err != nil {
				return nil, fmt.Errorf("sevenzip: error reading bit field: %w", err)
			}

			mask = 0x80
		}

		v[i] = b&mask != 0
		mask >>= 1
	}

	return v, nil
}

func writeBits(w io.Writer, v []bool) error {
	buf := make([]byte, 0, (len(v)+7)/8)

	var (
		b    byte
		mask byte = 0x80
	)

	for _, bit := range v {
		if bit {
			b |= mask
		}

		mask >>= 1

		if mask == 0 {
			buf = append(buf, b)
			b, mask = 0, 0x80
		}
	}

	if mask != 0x80 {
		buf = append(buf, b)
	}

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("sevenzip: error writing bit field: %w", err)
	}

	return nil
}

// readBoolVector reads a BooleanList: a single byte that is either
// non-zero (every element true) or zero, in which case a BitField of n
// booleans follows.
func readBoolVector(r byteReader, n int) ([]bool, error) {
	allDefined, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("sevenzip: error reading boolean list: %w", err)
	}

	if allDefined != 0 {
		v := make([]bool, n)
		for i := range v {
			v[i] = true
		}

		return v, nil
	}

	return readBits(r, n)
}

func writeBoolVector(w io.Writer, v []bool) error {
	all := true

	for _, b := range v {
		if !b {
			all = false

			break
		}
	}

	if all {
		_, err := w.Write([]byte{1})
		if err != nil {
			return fmt.Errorf("sevenzip: error writing boolean list: %w", err)
		}

		return nil
	}

	if _, err := w.Write([]byte{0}); err != nil {
		return fmt.Errorf("sevenzip: error writing boolean list: %w", err)
	}

	return writeBits(w, v)
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM) //nolint:gochecknoglobals

// readUTF16String reads a NUL u16-terminated UTF-16LE string.
func readUTF16String(r byteReader) (string, error) {
	var raw []byte

	for {
		var u [2]byte

		if _, err := io.ReadFull(r, u[:]); err != nil {
			return "", fmt.Errorf("sevenzip: error reading string: %w", err)
		}

		if u[0] == 0 && u[1] == 0 {
			break
		}

		raw = append(raw, u[:]...)
	}

	out, err := utf16le.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("sevenzip: error decoding string: %w", err)
	}

	return string(out), nil
}

func writeUTF16String(w io.Writer, s string) error {
	enc, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return fmt.Errorf("sevenzip: error encoding string: %w", err)
	}

	if _, err := w.Write(enc); err != nil {
		return fmt.Errorf("sevenzip: error writing string: %w", err)
	}

	if _, err := w.Write([]byte{0, 0}); err != nil {
		return fmt.Errorf("sevenzip: error writing string terminator: %w", err)
	}

	return nil
}

const filetimeEpochDelta = 116444736000000000 // 100ns ticks between 1601-01-01 and 1970-01-01

func filetimeToTime(ft uint64) time.Time {
	if ft == 0 {
		return time.Time{}
	}

	ticks := int64(ft) - filetimeEpochDelta //nolint:gosec

	return time.Unix(ticks/10000000, (ticks%10000000)*100).UTC() //nolint:mnd
}

func timeToFiletime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}

	ticks := t.UTC().Unix()*10000000 + int64(t.Nanosecond())/100 + filetimeEpochDelta //nolint:mnd

	return uint64(ticks) //nolint:gosec
}

// readDigests reads the Digests structure: an AllAreDefined byte, an
// optional BitField, then a UINT32 CRC per defined entry. The returned
// slice always has length n, with zero standing in for "not present".
func readDigests(r byteReader, n int) ([]uint32, error) {
	defined, err := readBoolVector(r, n)
	if err != nil {
		return nil, err
	}

	out := make([]uint32, n)

	for i, d := range defined {
		if !d {
			continue
		}

		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, fmt.Errorf("sevenzip: error reading digest: %w", err)
		}

		out[i] = binary.LittleEndian.Uint32(buf[:])
	}

	return out, nil
}

// writeDigests writes every entry in values as defined; the Writer always
// has computed every CRC it emits.
func writeDigests(w io.Writer, values []uint32) error {
	defined := make([]bool, len(values))
	for i := range defined {
		defined[i] = true
	}

	if err := writeBoolVector(w, defined); err != nil {
		return err
	}

	for _, v := range values {
		var buf [4]byte

		binary.LittleEndian.PutUint32(buf[:], v)

		if _, err := w.Write(buf[:]); err != nil {
			return fmt.Errorf("sevenzip: error writing digest: %w", err)
		}
	}

	return nil
}

func readPackInfo(r byteReader) (*packInfo, error) {
	pos, err := readNumber(r)
	if err != nil {
		return nil, err
	}

	streams, err := readNumber(r)
	if err != nil {
		return nil, err
	}

	pi := &packInfo{position: pos, streams: streams}

	for {
		id, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("sevenzip: error reading pack info: %w", err)
		}

		switch id {
		case idSize:
			pi.size = make([]uint64, streams)

			for i := range pi.size {
				if pi.size[i], err = readNumber(r); err != nil {
					return nil, err
				}
			}
		case idCRC:
			if pi.digest, err = readDigests(r, int(streams)); err != nil { //nolint:gosec
				return nil, err
			}
		case idEnd:
			return pi, nil
		default:
			return nil, errUnexpectedID
		}
	}
}

func writePackInfo(w io.Writer, pi *packInfo) error {
	if err := writeNumber(w, pi.position); err != nil {
		return err
	}

	if err := writeNumber(w, pi.streams); err != nil {
		return err
	}

	if len(pi.size) > 0 {
		if _, err := w.Write([]byte{idSize}); err != nil {
			return fmt.Errorf("sevenzip: error writing pack info: %w", err)
		}

		for _, s := range pi.size {
			if err := writeNumber(w, s); err != nil {
				return err
			}
		}
	}

	if len(pi.digest) > 0 {
		if _, err := w.Write([]byte{idCRC}); err != nil {
			return fmt.Errorf("sevenzip: error writing pack info: %w", err)
		}

		if err := writeDigests(w, pi.digest); err != nil {
			return err
		}
	}

	_, err := w.Write([]byte{idEnd})
	if err != nil {
		return fmt.Errorf("sevenzip: error writing pack info: %w", err)
	}

	return nil
}

func readCoder(r byteReader) (*coder, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("sevenzip: error reading coder: %w", err)
	}

	if flags&0xc0 != 0 {
		return nil, errInvalidCoderFlags
	}

	idSize := int(flags & 0x0f)
	if idSize < 1 || idSize > 15 { //nolint:mnd
		return nil, errInvalidCoderID
	}

	id := make([]byte, idSize)
	if _, err := io.ReadFull(r, id); err != nil {
		return nil, fmt.Errorf("sevenzip: error reading coder ID: %w", err)
	}

	c := &coder{id: id, in: 1, out: 1}

	if flags&0x10 != 0 { // complex coder
		if c.in, err = readNumber(r); err != nil {
			return nil, err
		}

		if c.out, err = readNumber(r); err != nil {
			return nil, err
		}
	}

	if flags&0x20 != 0 { // has attributes/properties
		size, err := readNumberInt(r)
		if err != nil {
			return nil, err
		}

		c.properties = make([]byte, size)
		if _, err := io.ReadFull(r, c.properties); err != nil {
			return nil, fmt.Errorf("sevenzip: error reading coder properties: %w", err)
		}
	}

	if flags&0x80 != 0 {
		return nil, errAlternativeMethods
	}

	return c, nil
}

func writeCoder(w io.Writer, c *coder) error {
	var flags byte = byte(len(c.id)) //nolint:gosec

	complex := c.in != 1 || c.out != 1
	if complex {
		flags |= 0x10
	}

	if len(c.properties) > 0 {
		flags |= 0x20
	}

	if _, err := w.Write([]byte{flags}); err != nil {
		return fmt.Errorf("sevenzip: error writing coder: %w", err)
	}

	if _, err := w.Write(c.id); err != nil {
		return fmt.Errorf("sevenzip: error writing coder ID: %w", err)
	}

	if complex {
		if err := writeNumber(w, c.in); err != nil {
			return err
		}

		if err := writeNumber(w, c.out); err != nil {
			return err
		}
	}

	if len(c.properties) > 0 {
		if err := writeNumber(w, uint64(len(c.properties))); err != nil {
			return err
		}

		if _, err := w.Write(c.properties); err != nil {
			return fmt.Errorf("sevenzip: error writing coder properties: %w", err)
		}
	}

	return nil
}

//nolint:cyclop
func readFolder(r byteReader) (*folder, error) {
	numCoders, err := readNumberInt(r)
	if err != nil {
		return nil, err
	}

	if numCoders < 1 {
		return nil, errTooManyCoders
	}

	f := &folder{coder: make([]*coder, numCoders)}

	for i := range f.coder {
		if f.coder[i], err = readCoder(r); err != nil {
			return nil, err
		}

		f.in += f.coder[i].in
		f.out += f.coder[i].out
	}

	numBindPairs := f.out - 1
	f.bindPair = make([]*bindPair, numBindPairs)

	for i := range f.bindPair {
		in, err := readNumber(r)
		if err != nil {
			return nil, err
		}

		out, err := readNumber(r)
		if err != nil {
			return nil, err
		}

		f.bindPair[i] = &bindPair{in: in, out: out}
	}

	f.packedStreams = f.in - numBindPairs

	switch {
	case f.packedStreams == 1:
		for i := uint64(0); i < f.in; i++ {
			if f.findInBindPair(i) == nil {
				f.packed = []uint64{i}

				break
			}
		}
	default:
		f.packed = make([]uint64, f.packedStreams)

		for i := range f.packed {
			if f.packed[i], err = readNumber(r); err != nil {
				return nil, err
			}
		}
	}

	return f, nil
}

func writeFolder(w io.Writer, f *folder) error {
	if err := writeNumber(w, uint64(len(f.coder))); err != nil {
		return err
	}

	for _, c := range f.coder {
		if err := writeCoder(w, c); err != nil {
			return err
		}
	}

	for _, bp := range f.bindPair {
		if err := writeNumber(w, bp.in); err != nil {
			return err
		}

		if err := writeNumber(w, bp.out); err != nil {
			return err
		}
	}

	if f.packedStreams > 1 {
		for _, p := range f.packed {
			if err := writeNumber(w, p); err != nil {
				return err
			}
		}
	}

	return nil
}

//nolint:cyclop
func readUnpackInfo(r byteReader) (*unpackInfo, error) {
	id, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("sevenzip: error reading unpack info: %w", err)
	}

	if id != idFolder {
		return nil, errUnexpectedID
	}

	numFolders, err := readNumberInt(r)
	if err != nil {
		return nil, err
	}

	external, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("sevenzip: error reading unpack info: %w", err)
	}

	if external != 0 {
		return nil, errUnsupportedExtern
	}

	ui := &unpackInfo{folder: make([]*folder, numFolders)}

	for i := range ui.folder {
		if ui.folder[i], err = readFolder(r); err != nil {
			return nil, err
		}
	}

	if id, err = r.ReadByte(); err != nil {
		return nil, fmt.Errorf("sevenzip: error reading unpack info: %w", err)
	}

	if id != idCodersUnpackSize {
		return nil, errUnexpectedID
	}

	for _, f := range ui.folder {
		f.size = make([]uint64, len(f.coder))

		for i := range f.size {
			if f.size[i], err = readNumber(r); err != nil {
				return nil, err
			}
		}
	}

	for {
		if id, err = r.ReadByte(); err != nil {
			return nil, fmt.Errorf("sevenzip: error reading unpack info: %w", err)
		}

		switch id {
		case idCRC:
			if ui.digest, err = readDigests(r, len(ui.folder)); err != nil {
				return nil, err
			}
		case idEnd:
			return ui, nil
		default:
			return nil, errUnexpectedID
		}
	}
}

func writeUnpackInfo(w io.Writer, ui *unpackInfo) error {
	if _, err := w.Write([]byte{idFolder}); err != nil {
		return fmt.Errorf("sevenzip: error writing unpack info: %w", err)
	}

	if err := writeNumber(w, uint64(len(ui.folder))); err != nil {
		return err
	}

	if _, err := w.Write([]byte{0}); err != nil { // External == 0
		return fmt.Errorf("sevenzip: error writing unpack info: %w", err)
	}

	for _, f := range ui.folder {
		if err := writeFolder(w, f); err != nil {
			return err
		}
	}

	if _, err := w.Write([]byte{idCodersUnpackSize}); err != nil {
		return fmt.Errorf("sevenzip: error writing unpack info: %w", err)
	}

	for _, f := range ui.folder {
		for _, s := range f.size {
			if err := writeNumber(w, s); err != nil {
				return err
			}
		}
	}

	if len(ui.digest) > 0 {
		if _, err := w.Write([]byte{idCRC}); err != nil {
			return fmt.Errorf("sevenzip: error writing unpack info: %w", err)
		}

		if err := writeDigests(w, ui.digest); err != nil {
			return err
		}
	}

	_, err := w.Write([]byte{idEnd})
	if err != nil {
		return fmt.Errorf("sevenzip: error writing unpack info: %w", err)
	}

	return nil
}

//nolint:cyclop,funlen
func readSubStreamsInfo(r byteReader, ui *unpackInfo) (*subStreamsInfo, error) {
	ssi := &subStreamsInfo{streams: make([]uint64, len(ui.folder))}
	for i := range ssi.streams {
		ssi.streams[i] = 1
	}

	id, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("sevenzip: error reading substreams info: %w", err)
	}

	if id == idNumUnpackStream {
		for i := range ssi.streams {
			if ssi.streams[i], err = readNumber(r); err != nil {
				return nil, err
			}
		}

		if id, err = r.ReadByte(); err != nil {
			return nil, fmt.Errorf("sevenzip: error reading substreams info: %w", err)
		}
	}

	for i, f := range ui.folder {
		streams := ssi.streams[i]
		if streams == 0 {
			continue
		}

		var sum uint64

		if id == idSize {
			for j := uint64(1); j < streams; j++ {
				size, err := readNumber(r)
				if err != nil {
					return nil, err
				}

				sum += size
				ssi.size = append(ssi.size, size)
			}
		}

		ssi.size = append(ssi.size, f.unpackSize()-sum)
	}

	if id == idSize {
		if id, err = r.ReadByte(); err != nil {
			return nil, fmt.Errorf("sevenzip: error reading substreams info: %w", err)
		}
	}

	numUnknownDigests := 0

	for i := range ui.folder {
		if ssi.streams[i] != 1 || len(ui.digest) == 0 || ui.digest[i] == 0 {
			numUnknownDigests += int(ssi.streams[i]) //nolint:gosec
		}
	}

	if id == idCRC {
		unknown, err := readDigests(r, numUnknownDigests)
		if err != nil {
			return nil, err
		}

		ssi.digest = make([]uint32, 0, len(ssi.size))
		u := 0

		for i := range ui.folder {
			if ssi.streams[i] == 1 && len(ui.digest) > 0 && ui.digest[i] != 0 {
				ssi.digest = append(ssi.digest, ui.digest[i])

				continue
			}

			for j := uint64(0); j < ssi.streams[i]; j++ {
				ssi.digest = append(ssi.digest, unknown[u])
				u++
			}
		}

		if id, err = r.ReadByte(); err != nil {
			return nil, fmt.Errorf("sevenzip: error reading substreams info: %w", err)
		}
	}

	if id != idEnd {
		return nil, errUnexpectedID
	}

	return ssi, nil
}

func writeSubStreamsInfo(w io.Writer, ssi *subStreamsInfo) error {
	needCounts := false

	for _, s := range ssi.streams {
		if s != 1 {
			needCounts = true

			break
		}
	}

	if needCounts {
		if _, err := w.Write([]byte{idNumUnpackStream}); err != nil {
			return fmt.Errorf("sevenzip: error writing substreams info: %w", err)
		}

		for _, s := range ssi.streams {
			if err := writeNumber(w, s); err != nil {
				return err
			}
		}
	}

	if _, err := w.Write([]byte{idSize}); err != nil {
		return fmt.Errorf("sevenzip: error writing substreams info: %w", err)
	}

	idx := 0

	for _, streams := range ssi.streams {
		for j := uint64(0); j < streams; j++ {
			if j != streams-1 {
				if err := writeNumber(w, ssi.size[idx]); err != nil {
					return err
				}
			}

			idx++
		}
	}

	if len(ssi.digest) > 0 {
		if _, err := w.Write([]byte{idCRC}); err != nil {
			return fmt.Errorf("sevenzip: error writing substreams info: %w", err)
		}

		if err := writeDigests(w, ssi.digest); err != nil {
			return err
		}
	}

	_, err := w.Write([]byte{idEnd})
	if err != nil {
		return fmt.Errorf("sevenzip: error writing substreams info: %w", err)
	}

	return nil
}

func readStreamsInfo(r byteReader) (*streamsInfo, error) {
	si := new(streamsInfo)

	id, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("sevenzip: error reading streams info: %w", err)
	}

	if id == idPackInfo {
		if si.packInfo, err = readPackInfo(r); err != nil {
			return nil, err
		}

		if id, err = r.ReadByte(); err != nil {
			return nil, fmt.Errorf("sevenzip: error reading streams info: %w", err)
		}
	}

	if id == idUnpackInfo {
		if si.unpackInfo, err = readUnpackInfo(r); err != nil {
			return nil, err
		}

		if id, err = r.ReadByte(); err != nil {
			return nil, fmt.Errorf("sevenzip: error reading streams info: %w", err)
		}
	}

	if id == idSubStreamsInfo {
		if si.unpackInfo == nil {
			return nil, errUnexpectedID
		}

		if si.subStreamsInfo, err = readSubStreamsInfo(r, si.unpackInfo); err != nil {
			return nil, err
		}

		if id, err = r.ReadByte(); err != nil {
			return nil, fmt.Errorf("sevenzip: error reading streams info: %w", err)
		}
	}

	if id != idEnd {
		return nil, errUnexpectedID
	}

	return si, nil
}

func writeStreamsInfo(w io.Writer, si *streamsInfo) error {
	if si.packInfo != nil {
		if _, err := w.Write([]byte{idPackInfo}); err != nil {
			return fmt.Errorf("sevenzip: error writing streams info: %w", err)
		}

		if err := writePackInfo(w, si.packInfo); err != nil {
			return err
		}
	}

	if si.unpackInfo != nil {
		if _, err := w.Write([]byte{idUnpackInfo}); err != nil {
			return fmt.Errorf("sevenzip: error writing streams info: %w", err)
		}

		if err := writeUnpackInfo(w, si.unpackInfo); err != nil {
			return err
		}
	}

	if si.subStreamsInfo != nil {
		if _, err := w.Write([]byte{idSubStreamsInfo}); err != nil {
			return fmt.Errorf("sevenzip: error writing streams info: %w", err)
		}

		if err := writeSubStreamsInfo(w, si.subStreamsInfo); err != nil {
			return err
		}
	}

	_, err := w.Write([]byte{idEnd})
	if err != nil {
		return fmt.Errorf("sevenzip: error writing streams info: %w", err)
	}

	return nil
}

// skipProperty discards a size-prefixed, forward-compatible property
// value: the mechanism used by ArchiveProperties and by every per-file
// property in FilesInfo.
func skipProperty(r byteReader) error {
	size, err := readNumber(r)
	if err != nil {
		return err
	}

	if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil { //nolint:gosec
		return fmt.Errorf("sevenzip: error skipping property: %w", err)
	}

	return nil
}

func readArchiveProperties(r byteReader) error {
	for {
		id, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("sevenzip: error reading archive properties: %w", err)
		}

		if id == idEnd {
			return nil
		}

		if err := skipProperty(r); err != nil {
			return err
		}
	}
}

// readAdditionalStreamsInfo parses, but discards, the deprecated
// AdditionalStreamsInfo section (property ID 0x03). Readers must accept
// it for backward compatibility; writers never emit it.
func readAdditionalStreamsInfo(r byteReader) error {
	_, err := readStreamsInfo(r)

	return err
}

//nolint:cyclop,funlen,gocognit
func readFilesInfo(r byteReader) (*filesInfo, error) {
	numFiles, err := readNumberInt(r)
	if err != nil {
		return nil, err
	}

	files := make([]FileHeader, numFiles)

	var (
		emptyStream []bool
		emptyFile   []bool
		anti        []bool
		numEmpty    int
	)

	for {
		id, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("sevenzip: error reading files info: %w", err)
		}

		if id == idEnd {
			break
		}

		size, err := readNumber(r)
		if err != nil {
			return nil, err
		}

		lr := &io.LimitedReader{R: r, N: int64(size)} //nolint:gosec
		br := &limitedByteReader{lr}

		switch id {
		case idEmptyStream:
			if emptyStream, err = readBits(br, numFiles); err != nil {
				return nil, err
			}

			for _, b := range emptyStream {
				if b {
					numEmpty++
				}
			}
		case idEmptyFile:
			if emptyFile, err = readBits(br, numEmpty); err != nil {
				return nil, err
			}
		case idAnti:
			if anti, err = readBits(br, numEmpty); err != nil {
				return nil, err
			}
		case idName:
			external, err := br.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("sevenzip: error reading names: %w", err)
			}

			if external != 0 {
				return nil, errUnsupportedExtern
			}

			for i := range files {
				if files[i].Name, err = readUTF16String(br); err != nil {
					return nil, err
				}
			}
		case idCTime, idATime, idMTime:
			t, err := readFiletimeVector(br, numFiles)
			if err != nil {
				return nil, err
			}

			for i := range files {
				switch id {
				case idCTime:
					files[i].Created = t[i]
				case idATime:
					files[i].Accessed = t[i]
				case idMTime:
					files[i].Modified = t[i]
				}
			}
		case idWinAttributes:
			defined, err := readBoolVector(br, numFiles)
			if err != nil {
				return nil, err
			}

			external, err := br.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("sevenzip: error reading attributes: %w", err)
			}

			if external != 0 {
				return nil, errUnsupportedExtern
			}

			for i := range files {
				if !defined[i] {
					continue
				}

				var buf [4]byte
				if _, err := io.ReadFull(br, buf[:]); err != nil {
					return nil, fmt.Errorf("sevenzip: error reading attributes: %w", err)
				}

				files[i].Attributes = binary.LittleEndian.Uint32(buf[:])
			}
		case idComment:
			if err := readComments(br, files); err != nil {
				return nil, err
			}
		case idDummy, idStartPos:
			// No documented semantics; consumed by the LimitedReader discard below.
		default:
			// Unknown property: already scoped by the LimitedReader.
		}

		if lr.N > 0 {
			if _, err := io.CopyN(io.Discard, lr, lr.N); err != nil {
				return nil, fmt.Errorf("sevenzip: error discarding property: %w", err)
			}
		}
	}

	applyEmptyFlags(files, emptyStream, emptyFile, anti)

	return &filesInfo{file: files}, nil
}

func applyEmptyFlags(files []FileHeader, emptyStream, emptyFile, anti []bool) {
	e := 0

	for i := range files {
		if len(emptyStream) > 0 && emptyStream[i] {
			files[i].isEmptyStream = true

			if len(emptyFile) > e && emptyFile[e] {
				files[i].isEmptyFile = true
			}

			if len(anti) > e && anti[e] {
				files[i].isAnti = true
			}

			e++
		}
	}
}

func readFiletimeVector(r byteReader, n int) ([]time.Time, error) {
	defined, err := readBoolVector(r, n)
	if err != nil {
		return nil, err
	}

	external, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("sevenzip: error reading timestamps: %w", err)
	}

	if external != 0 {
		return nil, errUnsupportedExtern
	}

	out := make([]time.Time, n)

	for i, d := range defined {
		if !d {
			continue
		}

		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, fmt.Errorf("sevenzip: error reading timestamp: %w", err)
		}

		out[i] = filetimeToTime(binary.LittleEndian.Uint64(buf[:]))
	}

	return out, nil
}

// readComments applies a simple interpretation of the rarely used Comment
// property: a BooleanList marking which files carry a comment, an
// external byte, then for every marked file a NUL-terminated UTF-16LE
// string. Apart from the leading BooleanList this is the Name property's
// layout, since the format document leaves Comment's exact semantics
// unspecified beyond "per file string data".
func readComments(r byteReader, files []FileHeader) error {
	defined, err := readBoolVector(r, len(files))
	if err != nil {
		return err
	}

	external, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("sevenzip: error reading comments: %w", err)
	}

	if external != 0 {
		return errUnsupportedExtern
	}

	for i, d := range defined {
		if !d {
			continue
		}

		if files[i].Comment, err = readUTF16String(r); err != nil {
			return err
		}
	}

	return nil
}

// limitedByteReader adapts an io.LimitedReader, which only exposes Read,
// to the byteReader interface the grammar helpers require.
type limitedByteReader struct {
	*io.LimitedReader
}

func (l *limitedByteReader) ReadByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(l, buf[:]); err != nil {
		return 0, err //nolint:wrapcheck
	}

	return buf[0], nil
}

//nolint:cyclop,funlen
func writeFilesInfo(w io.Writer, fi *filesInfo) error {
	if err := writeNumber(w, uint64(len(fi.file))); err != nil {
		return err
	}

	emptyStream := make([]bool, len(fi.file))

	var (
		emptyFile []bool
		anti      []bool
		anyEmpty  bool
	)

	for i, f := range fi.file {
		if f.isEmptyStream {
			emptyStream[i] = true
			anyEmpty = true

			emptyFile = append(emptyFile, f.isEmptyFile)
			anti = append(anti, f.isAnti)
		}
	}

	if anyEmpty {
		buf := new(bytes.Buffer)
		if err := writeBits(buf, emptyStream); err != nil {
			return err
		}

		if err := writeFilesProperty(w, idEmptyStream, buf.Bytes()); err != nil {
			return err
		}

		buf = new(bytes.Buffer)
		if err := writeBits(buf, emptyFile); err != nil {
			return err
		}

		if err := writeFilesProperty(w, idEmptyFile, buf.Bytes()); err != nil {
			return err
		}

		buf = new(bytes.Buffer)
		if err := writeBits(buf, anti); err != nil {
			return err
		}

		if err := writeFilesProperty(w, idAnti, buf.Bytes()); err != nil {
			return err
		}
	}

	nameBuf := new(bytes.Buffer)
	nameBuf.WriteByte(0) // External == 0

	for _, f := range fi.file {
		if err := writeUTF16String(nameBuf, f.Name); err != nil {
			return err
		}
	}

	if err := writeFilesProperty(w, idName, nameBuf.Bytes()); err != nil {
		return err
	}

	for _, tp := range []struct {
		id   byte
		pick func(FileHeader) time.Time
	}{
		{idCTime, func(f FileHeader) time.Time { return f.Created }},
		{idATime, func(f FileHeader) time.Time { return f.Accessed }},
		{idMTime, func(f FileHeader) time.Time { return f.Modified }},
	} {
		id, pick := tp.id, tp.pick
		buf := new(bytes.Buffer)

		defined := make([]bool, len(fi.file))
		for i := range defined {
			defined[i] = !pick(fi.file[i]).IsZero()
		}

		if err := writeBoolVector(buf, defined); err != nil {
			return err
		}

		buf.WriteByte(0) // External == 0

		for i, d := range defined {
			if !d {
				continue
			}

			var ft [8]byte

			binary.LittleEndian.PutUint64(ft[:], timeToFiletime(pick(fi.file[i])))
			buf.Write(ft[:])
		}

		if err := writeFilesProperty(w, id, buf.Bytes()); err != nil {
			return err
		}
	}

	attrBuf := new(bytes.Buffer)

	defined := make([]bool, len(fi.file))
	for i := range defined {
		defined[i] = fi.file[i].Attributes != 0
	}

	if err := writeBoolVector(attrBuf, defined); err != nil {
		return err
	}

	attrBuf.WriteByte(0) // External == 0

	for i, d := range defined {
		if !d {
			continue
		}

		var a [4]byte

		binary.LittleEndian.PutUint32(a[:], fi.file[i].Attributes)
		attrBuf.Write(a[:])
	}

	if err := writeFilesProperty(w, idWinAttributes, attrBuf.Bytes()); err != nil {
		return err
	}

	_, err := w.Write([]byte{idEnd})
	if err != nil {
		return fmt.Errorf("sevenzip: error writing files info: %w", err)
	}

	return nil
}

func writeFilesProperty(w io.Writer, id byte, data []byte) error {
	if _, err := w.Write([]byte{id}); err != nil {
		return fmt.Errorf("sevenzip: error writing files info property: %w", err)
	}

	if err := writeNumber(w, uint64(len(data))); err != nil {
		return err
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("sevenzip: error writing files info property: %w", err)
	}

	return nil
}

func readHeader(r byteReader) (*header, error) {
	h := new(header)

	for {
		id, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("sevenzip: error reading header: %w", err)
		}

		switch id {
		case idArchiveProperties:
			if err := readArchiveProperties(r); err != nil {
				return nil, err
			}
		case idAdditionalStreams:
			if err := readAdditionalStreamsInfo(r); err != nil {
				return nil, err
			}
		case idMainStreamsInfo:
			if h.streamsInfo, err = readStreamsInfo(r); err != nil {
				return nil, err
			}
		case idFilesInfo:
			if h.filesInfo, err = readFilesInfo(r); err != nil {
				return nil, err
			}
		case idEnd:
			return h, nil
		default:
			return nil, errUnexpectedID
		}
	}
}

func writeHeader(w io.Writer, h *header) error {
	if _, err := w.Write([]byte{idHeader}); err != nil {
		return fmt.Errorf("sevenzip: error writing header: %w", err)
	}

	if h.streamsInfo != nil {
		if _, err := w.Write([]byte{idMainStreamsInfo}); err != nil {
			return fmt.Errorf("sevenzip: error writing header: %w", err)
		}

		if err := writeStreamsInfo(w, h.streamsInfo); err != nil {
			return err
		}
	}

	if h.filesInfo != nil {
		if _, err := w.Write([]byte{idFilesInfo}); err != nil {
			return fmt.Errorf("sevenzip: error writing header: %w", err)
		}

		if err := writeFilesInfo(w, h.filesInfo); err != nil {
			return err
		}
	}

	_, err := w.Write([]byte{idEnd})
	if err != nil {
		return fmt.Errorf("sevenzip: error writing header: %w", err)
	}

	return nil
}

// readEncodedHeader decodes an encoded header (folder 0 of si) and parses
// the result, which is either a plain header or another encoded header.
// depth is 1 for the outermost encoded header; a depth above
// ResourceLimits.MaxHeaderRecursionDepth fails with
// [ResourceLimitExceededError].
func (z *Reader) readEncodedHeader(si *streamsInfo, depth int) (h *header, err error) {
	limits := z.limitsOrDefault()

	if depth > limits.MaxHeaderRecursionDepth {
		return nil, &ResourceLimitExceededError{Reason: "header_recursion"}
	}

	if si.Folders() != 1 {
		return nil, errOneHeaderStream
	}

	fr, crc, encrypted, err := z.folderReader(si, 0)
	if err != nil {
		return nil, &ReadError{Encrypted: encrypted, Err: err}
	}

	if size := fr.Size(); size > 0 && uint64(size) > limits.MaxHeaderSize { //nolint:gosec
		_ = fr.Close()

		return nil, &ResourceLimitExceededError{Reason: "header_size"}
	}

	defer func() {
		err = errors.Join(err, fr.Close())
	}()

	br := util.ByteReadCloser(fr)

	id, err := br.ReadByte()
	if err != nil {
		return nil, &ReadError{Encrypted: fr.hasEncryption, Err: fmt.Errorf("sevenzip: error reading header id: %w", err)}
	}

	switch id {
	case idHeader:
		if h, err = readHeader(br); err != nil {
			return nil, &ReadError{Encrypted: fr.hasEncryption, Err: err}
		}
	case idEncodedHeader:
		nested, err := readStreamsInfo(br)
		if err != nil {
			return nil, &ReadError{Encrypted: fr.hasEncryption, Err: err}
		}

		if h, err = z.readEncodedHeader(nested, depth+1); err != nil {
			return nil, err
		}
	default:
		return nil, errUnexpectedID
	}

	if crc != 0 && !util.CRC32Equal(fr.Checksum(), crc) {
		return nil, errChecksum
	}

	return h, nil
}
