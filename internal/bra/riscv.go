package bra

import "io"

// riscv is a structural placeholder for the RISC-V branch-conversion
// filter. Unlike the x86/ARM/ARM64/PPC/SPARC/IA64 filters above, no
// reference implementation of this one was available to ground a
// byte-exact port against, so it is wired up as an identity pass-through,
// and so is [NewRISCVWriter]: data passes through both unchanged, and
// content that another encoder ran through a real RISC-V branch filter is
// returned still converted. See the accompanying design notes.
type riscv struct{}

func (c *riscv) Size() int { return 2 }

func (c *riscv) Convert(b []byte, _ bool) int {
	return len(b) - len(b)%c.Size()
}

// NewRISCVReader returns a new RISC-V io.ReadCloser.
func NewRISCVReader(_ []byte, _ uint64, readers []io.ReadCloser) (io.ReadCloser, error) {
	return newReader(readers, new(riscv))
}
