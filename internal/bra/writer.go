package bra

import (
	"errors"
	"fmt"
	"io"
)

type writeCloser struct {
	w    io.Writer
	buf  []byte
	conv converter
}

var errShortWrite = errors.New("bra: short write")

// Write buffers the whole stream before converting it, since the branch
// filters look ahead across the buffer they're given and 7-Zip's own
// encoder runs them over the complete input in one pass.
func (wc *writeCloser) Write(p []byte) (int, error) {
	wc.buf = append(wc.buf, p...)

	return len(p), nil
}

func (wc *writeCloser) Close() error {
	wc.conv.Convert(wc.buf, true)

	n, err := wc.w.Write(wc.buf)
	if err != nil {
		return fmt.Errorf("bra: error writing: %w", err)
	}

	if n != len(wc.buf) {
		return errShortWrite
	}

	return nil
}

func newWriter(w io.Writer, conv converter) (io.WriteCloser, error) {
	return &writeCloser{w: w, conv: conv}, nil
}

// NewBCJWriter returns a new x86 BCJ io.WriteCloser.
func NewBCJWriter(_ []byte, w io.Writer) (io.WriteCloser, error) { return newWriter(w, new(bcj)) }

// NewPPCWriter returns a new PPC BCJ io.WriteCloser.
func NewPPCWriter(_ []byte, w io.Writer) (io.WriteCloser, error) { return newWriter(w, new(ppc)) }

// NewIA64Writer returns a new IA-64 BCJ io.WriteCloser.
func NewIA64Writer(_ []byte, w io.Writer) (io.WriteCloser, error) { return newWriter(w, new(ia64)) }

// NewARMWriter returns a new ARM BCJ io.WriteCloser.
func NewARMWriter(_ []byte, w io.Writer) (io.WriteCloser, error) { return newWriter(w, new(arm)) }

// NewARMTWriter returns a new ARM-Thumb BCJ io.WriteCloser.
func NewARMTWriter(_ []byte, w io.Writer) (io.WriteCloser, error) { return newWriter(w, new(armt)) }

// NewSPARCWriter returns a new SPARC BCJ io.WriteCloser.
func NewSPARCWriter(_ []byte, w io.Writer) (io.WriteCloser, error) { return newWriter(w, new(sparc)) }

// NewARM64Writer returns a new ARM64 BCJ io.WriteCloser.
func NewARM64Writer(_ []byte, w io.Writer) (io.WriteCloser, error) { return newWriter(w, new(arm64)) }

// NewRISCVWriter returns a new RISC-V BCJ io.WriteCloser. Like
// [NewRISCVReader] this is an identity pass-through; see riscv.go.
func NewRISCVWriter(_ []byte, w io.Writer) (io.WriteCloser, error) { return newWriter(w, new(riscv)) }
