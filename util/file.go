// Package util holds small helpers shared across the imsm packages, in the
// same spirit as github.com/diskfs/go-diskfs/util: a narrow File interface
// so the core never depends on *os.File directly, plus sector-alignment
// arithmetic used throughout anchor I/O.
package util

import (
	"io"

	"github.com/pkg/errors"
)

// File is the minimal handle the imsm core needs from a block device or a
// regular file standing in for one in tests. *os.File satisfies it.
type File interface {
	io.ReaderAt
	io.WriterAt
	Close() error
}

// SectorSize is the fixed logical sector size the MPB format is defined in
// terms of; IMSM does not support any other sector size.
const SectorSize = 512

// RoundUpSector rounds n up to the next multiple of SectorSize.
func RoundUpSector(n int) int {
	if n%SectorSize == 0 {
		return n
	}
	return (n/SectorSize + 1) * SectorSize
}

// SectorCount returns the number of whole sectors needed to hold n bytes.
func SectorCount(n int) int {
	return RoundUpSector(n) / SectorSize
}

// ReadFullAt reads exactly len(buf) bytes at off, treating a short read as
// an error rather than silently returning partial data.
func ReadFullAt(f File, buf []byte, off int64) error {
	n, err := f.ReadAt(buf, off)
	if err != nil {
		return errors.Wrapf(err, "read %d bytes at offset %d", len(buf), off)
	}
	if n != len(buf) {
		return errors.Errorf("short read at offset %d: got %d of %d bytes", off, n, len(buf))
	}
	return nil
}

// WriteFullAt writes exactly len(buf) bytes at off.
func WriteFullAt(f File, buf []byte, off int64) error {
	n, err := f.WriteAt(buf, off)
	if err != nil {
		return errors.Wrapf(err, "write %d bytes at offset %d", len(buf), off)
	}
	if n != len(buf) {
		return errors.Errorf("short write at offset %d: wrote %d of %d bytes", off, n, len(buf))
	}
	return nil
}
