package sevenzip

import (
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"strings"

	"github.com/spf13/afero"
	"go4.org/readerutil"
)

// multiVolumeReaderAt generalizes the teacher's inline ".001"-suffix
// handling in the original openReader into a reusable type: a contiguous
// virtual byte-space stitched from an ordered list of `name.7z.NNN`
// volumes via [readerutil.MultiReaderAt] (the teacher's own dependency).
//
// openMultiVolume's sequential probe stops at the first volume it can't
// open, the same assumption the teacher's inline version made (numbered
// volumes are contiguous, so the first gap is the end of the archive).
// What's added here is that a read reaching past the combined size of
// every volume actually found reports [VolumeMissingError] for the next
// expected index, rather than a bare truncated-read/EOF: any folder or
// header byte range that legitimately extends past what was found can
// only mean the volume holding it never opened.
type multiVolumeReaderAt struct {
	mr        *readerutil.MultiReaderAt
	nextIndex int
}

func (m *multiVolumeReaderAt) Size() int64 { return m.mr.Size() }

func (m *multiVolumeReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > m.mr.Size() {
		return 0, &VolumeMissingError{Index: m.nextIndex}
	}

	return m.mr.ReadAt(p, off) //nolint:wrapcheck
}

// openMultiVolume opens name's sibling numbered volumes in order (name is
// the first part, e.g. "archive.7z.001"), stopping at the first index
// that doesn't exist.
func openMultiVolume(fs afero.Fs, name, ext string, first afero.File, firstSize int64) (*multiVolumeReaderAt, []afero.File, error) {
	files := []afero.File{first}
	sr := []readerutil.SizeReaderAt{io.NewSectionReader(first, 0, firstSize)}

	base := strings.TrimSuffix(name, ext)
	index := 2

	for ; ; index++ {
		f, err := fs.Open(fmt.Sprintf("%s.%03d", base, index))
		if err != nil {
			if errors.Is(err, iofs.ErrNotExist) {
				break
			}

			return nil, nil, closeAllAndWrap(files, err)
		}

		info, err := f.Stat()
		if err != nil {
			files = append(files, f)

			return nil, nil, closeAllAndWrap(files, err)
		}

		files = append(files, f)
		sr = append(sr, io.NewSectionReader(f, 0, info.Size()))
	}

	mr := readerutil.NewMultiReaderAt(sr...)

	return &multiVolumeReaderAt{mr: mr, nextIndex: index}, files, nil
}

func closeAllAndWrap(files []afero.File, err error) error {
	errs := make([]error, 0, len(files)+1)
	errs = append(errs, err)

	for _, f := range files {
		errs = append(errs, f.Close())
	}

	return fmt.Errorf("sevenzip: error opening volume: %w", errors.Join(errs...))
}
