package imsm

import (
	"encoding/binary"
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"

	"github.com/intel-raid/imsm/util"
)

const anchorOffsetFromEnd = 1024 // dsize - 1024 (§4.3, §6)

// anchorOffset returns the byte offset of the anchor sector given the
// device's size in bytes.
func anchorOffset(dsize int64) int64 {
	return dsize - anchorOffsetFromEnd
}

// ReadMPB reads and decodes the MPB from disk at dsize bytes, following
// §4.3: read the anchor sector, and if mpb_size implies an extended tail,
// read the sectors immediately preceding the anchor and concatenate before
// decoding.
func ReadMPB(disk util.File, dsize int64) (*Super, error) {
	anchor := make([]byte, util.SectorSize)
	if err := util.ReadFullAt(disk, anchor, anchorOffset(dsize)); err != nil {
		return nil, errors.Wrap(err, "reading anchor sector")
	}

	if len(anchor) < 40 {
		return nil, errors.Wrap(ErrBadSize, "anchor shorter than header")
	}
	mpbSize := decodeMPBSizeField(anchor)
	if mpbSize <= util.SectorSize {
		return Decode(anchor)
	}

	extSectors := util.SectorCount(int(mpbSize)) - 1
	buf := make([]byte, util.SectorCount(int(mpbSize))*util.SectorSize)
	extOff := anchorOffset(dsize) - int64(extSectors)*util.SectorSize
	if err := util.ReadFullAt(disk, buf[util.SectorSize:], extOff); err != nil {
		return nil, errors.Wrap(err, "reading extended mpb")
	}
	copy(buf[:util.SectorSize], anchor)

	return Decode(buf)
}

// decodeMPBSizeField extracts mpb_size without fully decoding, so ReadMPB
// can decide whether an extended read is needed.
func decodeMPBSizeField(anchor []byte) uint32 {
	return binary.LittleEndian.Uint32(anchor[36:40])
}

// WriteMPB serializes s and writes it to disk at dsize bytes. When the
// encoded size is extended, the tail is written first and the anchor
// sector last (§4.3): the format tolerates a torn write because a reload
// will either see the new anchor with a matching checksum, or fall back to
// another member's higher-generation copy.
func WriteMPB(disk util.File, dsize int64, s *Super) error {
	buf, err := Encode(s)
	if err != nil {
		return errors.Wrap(err, "encoding mpb")
	}

	if len(buf) > util.SectorSize {
		tail := buf[util.SectorSize:]
		sectors := len(tail) / util.SectorSize
		extOff := anchorOffset(dsize) - int64(sectors)*util.SectorSize
		if err := util.WriteFullAt(disk, tail, extOff); err != nil {
			return errors.Wrap(err, "writing extended mpb")
		}
	}

	if err := util.WriteFullAt(disk, buf[:util.SectorSize], anchorOffset(dsize)); err != nil {
		return errors.Wrap(err, "writing anchor sector")
	}
	return nil
}

// ZeroAnchor overwrites the anchor sector with zeros, used when removing a
// disk from a container (§4.3).
func ZeroAnchor(disk util.File, dsize int64) error {
	zero := make([]byte, util.SectorSize)
	return errors.Wrap(util.WriteFullAt(disk, zero, anchorOffset(dsize)), "zeroing anchor sector")
}

// CompressionFormat selects the codec DumpAnchor compresses with.
type CompressionFormat int

const (
	FormatLZ4 CompressionFormat = iota
	FormatXZ
)

// DumpAnchor reads the raw anchor sector and writes a compressed copy of
// it to w, for attaching to a bug report without shipping a whole disk
// image (§4.3 supplemented debug dump). lz4 favors a fast, low-overhead
// copy; xz favors a smaller one for long-term storage.
func DumpAnchor(disk util.File, dsize int64, w io.Writer, format CompressionFormat) error {
	raw := make([]byte, util.SectorSize)
	if err := util.ReadFullAt(disk, raw, anchorOffset(dsize)); err != nil {
		return errors.Wrap(err, "reading anchor sector for dump")
	}

	switch format {
	case FormatLZ4:
		zw := lz4.NewWriter(w)
		if _, err := zw.Write(raw); err != nil {
			return errors.Wrap(err, "lz4-compressing anchor dump")
		}
		return errors.Wrap(zw.Close(), "closing lz4 anchor dump")
	case FormatXZ:
		zw, err := xz.NewWriter(w)
		if err != nil {
			return errors.Wrap(err, "opening xz anchor dump")
		}
		if _, err := zw.Write(raw); err != nil {
			return errors.Wrap(err, "xz-compressing anchor dump")
		}
		return errors.Wrap(zw.Close(), "closing xz anchor dump")
	default:
		return errors.Errorf("imsm: unknown compression format %d", format)
	}
}
