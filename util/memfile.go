package util

import "github.com/pkg/errors"

// MemFile is an in-memory File backing, sized up front like a block
// device. It exists for tests across the imsm packages that need a File
// without touching a real disk.
type MemFile struct {
	buf []byte
}

// NewMemFile returns a MemFile of exactly size bytes, zero-filled.
func NewMemFile(size int64) *MemFile {
	return &MemFile{buf: make([]byte, size)}
}

func (f *MemFile) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(f.buf)) {
		return 0, errors.Errorf("read at %d out of range (size %d)", off, len(f.buf))
	}
	n := copy(p, f.buf[off:])
	return n, nil
}

func (f *MemFile) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(f.buf)) {
		return 0, errors.Errorf("write at %d length %d out of range (size %d)", off, len(p), len(f.buf))
	}
	n := copy(f.buf[off:], p)
	return n, nil
}

func (f *MemFile) Size() (int64, error) { return int64(len(f.buf)), nil }

func (f *MemFile) Close() error { return nil }
