package bra

import "io"

//nolint:gochecknoglobals
var ia64BranchTable = [32]byte{
	0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
	4, 4, 6, 6, 0, 0, 7, 7,
	4, 4, 0, 0, 4, 4, 0, 0,
}

type ia64 struct{}

func (c *ia64) Size() int { return 16 }

//nolint:mnd,cyclop
func (c *ia64) Convert(b []byte, encoding bool) int {
	if len(b) < c.Size() {
		return 0
	}

	var i int

	limit := len(b) - 16

	for i = 0; i <= limit; i += 16 {
		template := b[i] & 0x1f
		mask := ia64BranchTable[template]

		bitPos := 5

		for slot := 0; slot < 3; slot++ {
			if mask>>uint(slot)&1 == 0 {
				bitPos += 41

				continue
			}

			bytePos := bitPos >> 3
			bitRes := bitPos & 7

			var instruction uint64
			for j := 0; j < 6; j++ {
				instruction |= uint64(b[i+j+bytePos]) << (8 * j)
			}

			instNorm := instruction >> uint(bitRes) //nolint:gosec

			if instNorm>>37&0xf == 0x5 && instNorm>>9&0x7 == 0 {
				src := uint32(instNorm>>13) & 0xfffff
				src |= uint32(instNorm>>36) & 1 << 20
				src <<= 4

				var dest uint32

				if encoding {
					dest = uint32(i) + src //nolint:gosec
				} else {
					dest = src - uint32(i) //nolint:gosec
				}

				dest >>= 4

				instNorm &^= uint64(0x8fffff) << 13
				instNorm |= uint64(dest&0xfffff) << 13
				instNorm |= uint64(dest&0x100000) << (36 - 20)

				instruction &= 1<<uint(bitRes) - 1 //nolint:gosec
				instruction |= instNorm << uint(bitRes)

				for j := 0; j < 6; j++ {
					b[i+j+bytePos] = byte(instruction >> (8 * j)) //nolint:gosec
				}
			}

			bitPos += 41
		}
	}

	return i
}

// NewIA64Reader returns a new IA-64 (Itanium) io.ReadCloser.
func NewIA64Reader(_ []byte, _ uint64, readers []io.ReadCloser) (io.ReadCloser, error) {
	return newReader(readers, new(ia64))
}
