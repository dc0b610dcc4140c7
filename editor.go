package sevenzip

import (
	"bytes"
	"fmt"
	"io"

	"github.com/spf13/afero"
)

type editKind int

const (
	editDelete editKind = iota
	editRename
	editAdd
	editUpdate
)

type editOp struct {
	kind    editKind
	path    string
	newPath string
	data    []byte
	header  FileHeader
}

// Editor queues Delete/Rename/Add/Update operations against an already
// opened archive and, on Apply, rebuilds the archive reflecting them.
// Folders untouched by any Delete or Update are copied pack-byte-for-
// pack-byte without ever being decoded; a folder containing a deleted
// or updated file is fully decoded and its surviving files re-encoded,
// one file per folder. Renames only ever change a FileHeader's Name,
// so they never force a folder to be touched.
type Editor struct {
	r    *Reader
	ops  []editOp
	opts WriteOptions
}

// NewEditor returns an Editor queuing changes against r. opts controls
// how any re-encoded or newly added content is compressed; it plays the
// same role WriteOptions plays for a plain [Writer].
func NewEditor(r *Reader, opts WriteOptions) *Editor {
	return &Editor{r: r, opts: opts}
}

// Delete queues the removal of the file at path.
func (e *Editor) Delete(path string) {
	e.ops = append(e.ops, editOp{kind: editDelete, path: path})
}

// Rename queues changing the file at oldPath's name to newPath.
func (e *Editor) Rename(oldPath, newPath string) {
	e.ops = append(e.ops, editOp{kind: editRename, path: oldPath, newPath: newPath})
}

// Add queues a new file at path with the given content. header supplies
// the metadata (timestamps, Attributes) to store; its Name and size
// fields are overwritten from path and data.
func (e *Editor) Add(path string, data []byte, header FileHeader) {
	header.Name = path
	e.ops = append(e.ops, editOp{kind: editAdd, path: path, data: data, header: header})
}

// Update queues replacing the content of the file at path with data.
func (e *Editor) Update(path string, data []byte) {
	e.ops = append(e.ops, editOp{kind: editUpdate, path: path, data: data})
}

// folderPackedSize returns the total size, in bytes, of folder's pack
// streams, mirroring the running-index walk streamsInfo.folderOffset
// uses to locate where they start.
func folderPackedSize(si *streamsInfo, folder int) int64 {
	k := uint64(0)
	for i := 0; i < folder; i++ {
		k += si.unpackInfo.folder[i].packedStreams
	}

	var size int64

	for j := k; j < k+si.unpackInfo.folder[folder].packedStreams; j++ {
		size += int64(si.packInfo.size[j]) //nolint:gosec
	}

	return size
}

// Apply builds the edited archive and writes it to sink.
//
//nolint:funlen,cyclop,gocognit
func (e *Editor) Apply(sink afero.File) error {
	deleted := make(map[string]bool)
	renamed := make(map[string]string)
	updated := make(map[string][]byte)

	for _, op := range e.ops {
		switch op.kind {
		case editDelete:
			deleted[op.path] = true
		case editRename:
			renamed[op.path] = op.newPath
		case editUpdate:
			updated[op.path] = op.data
		case editAdd:
		}
	}

	touched := make(map[int]bool)

	for _, f := range e.r.File {
		if f.isEmptyStream || f.isEmptyFile {
			continue
		}

		if deleted[f.Name] || updated[f.Name] != nil {
			touched[f.folder] = true
		}
	}

	w := &Writer{opts: e.opts}

	var (
		folders      []*folder
		packed       []byte
		packSizes    []uint64
		streamCounts []uint64
		subSizes     []uint64
		subDigests   []uint32
		files        []FileHeader
	)

	for idx := 0; idx < e.r.si.Folders(); idx++ {
		var folderFiles []*File

		for _, f := range e.r.File {
			if !f.isEmptyStream && !f.isEmptyFile && f.folder == idx {
				folderFiles = append(folderFiles, f)
			}
		}

		if len(folderFiles) == 0 {
			continue
		}

		if !touched[idx] {
			size := folderPackedSize(e.r.si, idx)
			section := io.NewSectionReader(e.r.r, e.r.start+e.r.si.folderOffset(idx), size)

			buf := new(bytes.Buffer)
			if _, err := io.Copy(buf, section); err != nil {
				return fmt.Errorf("sevenzip: error copying folder: %w", err)
			}

			folders = append(folders, e.r.si.unpackInfo.folder[idx])
			packed = append(packed, buf.Bytes()...)
			packSizes = append(packSizes, uint64(size))                   //nolint:gosec
			streamCounts = append(streamCounts, uint64(len(folderFiles))) //nolint:gosec

			for _, f := range folderFiles {
				name := f.Name
				if n, ok := renamed[name]; ok {
					name = n
				}

				fh := f.FileHeader
				fh.Name = name
				files = append(files, fh)
				subSizes = append(subSizes, fh.UncompressedSize)
				subDigests = append(subDigests, fh.CRC32)
			}

			continue
		}

		// Touched: every surviving file is decoded, then each gets its
		// own fresh folder. This gives up the solid grouping the
		// original archive may have used for this folder, but keeps the
		// rebuild simple and correct; a single deleted or updated file
		// otherwise forces every sibling sharing its folder to be
		// recompressed anyway.
		for _, f := range folderFiles {
			if deleted[f.Name] {
				continue
			}

			var data []byte

			if u, ok := updated[f.Name]; ok {
				data = u
			} else {
				rc, err := f.Open()
				if err != nil {
					return fmt.Errorf("sevenzip: error opening %s: %w", f.Name, err)
				}

				buf := new(bytes.Buffer)
				_, copyErr := io.Copy(buf, rc)
				closeErr := rc.Close()

				if copyErr != nil {
					return fmt.Errorf("sevenzip: error reading %s: %w", f.Name, copyErr)
				}

				if closeErr != nil {
					return fmt.Errorf("sevenzip: error closing %s: %w", f.Name, closeErr)
				}

				data = buf.Bytes()
			}

			name := f.Name
			if n, ok := renamed[name]; ok {
				name = n
			}

			nf, packedBytes, crcs, err := w.buildFolder(e.opts.Method, e.opts.Filters, e.opts.Password != "", [][]byte{data})
			if err != nil {
				return err
			}

			folders = append(folders, nf)
			packed = append(packed, packedBytes...)
			packSizes = append(packSizes, uint64(len(packedBytes))) //nolint:gosec
			streamCounts = append(streamCounts, 1)

			fh := f.FileHeader
			fh.Name = name
			fh.CRC32 = crcs[0]
			fh.UncompressedSize = uint64(len(data)) //nolint:gosec
			files = append(files, fh)
			subSizes = append(subSizes, fh.UncompressedSize)
			subDigests = append(subDigests, crcs[0])
		}
	}

	// Directories and empty files carry no pack bytes; pass them through
	// minus deletions, with renames applied.
	for _, f := range e.r.File {
		if !f.isEmptyStream && !f.isEmptyFile {
			continue
		}

		if deleted[f.Name] {
			continue
		}

		name := f.Name
		if n, ok := renamed[name]; ok {
			name = n
		}

		fh := f.FileHeader
		fh.Name = name
		files = append(files, fh)
	}

	for _, op := range e.ops {
		if op.kind != editAdd {
			continue
		}

		if len(op.data) == 0 {
			fh := op.header
			fh.isEmptyStream = true
			fh.isEmptyFile = true
			files = append(files, fh)

			continue
		}

		nf, packedBytes, crcs, err := w.buildFolder(e.opts.Method, e.opts.Filters, e.opts.Password != "", [][]byte{op.data})
		if err != nil {
			return err
		}

		folders = append(folders, nf)
		packed = append(packed, packedBytes...)
		packSizes = append(packSizes, uint64(len(packedBytes))) //nolint:gosec
		streamCounts = append(streamCounts, 1)

		fh := op.header
		fh.CRC32 = crcs[0]
		fh.UncompressedSize = uint64(len(op.data)) //nolint:gosec
		files = append(files, fh)
		subSizes = append(subSizes, fh.UncompressedSize)
		subDigests = append(subDigests, crcs[0])
	}

	si := &streamsInfo{}
	if len(folders) > 0 {
		si.packInfo = &packInfo{position: 0, streams: uint64(len(folders)), size: packSizes} //nolint:gosec
		si.unpackInfo = &unpackInfo{folder: folders}
		si.subStreamsInfo = &subStreamsInfo{streams: streamCounts, size: subSizes, digest: subDigests}
	}

	hdr := &header{filesInfo: &filesInfo{file: files}}
	if si.packInfo != nil {
		hdr.streamsInfo = si
	}

	var plain bytes.Buffer
	if err := writeHeader(&plain, hdr); err != nil {
		return err
	}

	return w.assemble(sink, packed, plain.Bytes())
}
