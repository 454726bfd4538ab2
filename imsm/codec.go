package imsm

import (
	"encoding/binary"
	"strings"

	"github.com/pkg/errors"
)

// Fixed-portion byte sizes of the wire layout (§3, §4.1), named and sized
// to match mdadm's struct imsm_super / imsm_disk / imsm_dev / imsm_vol /
// imsm_map exactly.
const (
	mpbHeaderSize  = 216 // sig(32) + check_sum(4) + mpb_size(4) + family_num(4) + generation_num(4) + reserved(8) + num_disks(1) + num_raid_devs(1) + fill(2) + filler(156)
	diskRecordSize = 48  // serial(16) + total_blocks(4) + scsi_id(4) + status(4) + filler(20)
	devHeaderSize  = 80  // volume(16) + size_low(4) + size_high(4) + status(4) + reserved_blocks(4) + filler(48)
	volHeaderSize  = 32  // reserved(8) + migr_state(1) + migr_type(1) + dirty(1) + fill(1) + filler(20)
	mapHeaderSize  = 52  // pba_of_lba0(4) + blocks_per_member(4) + num_data_stripes(4) + blocks_per_strip(2) + map_state(1) + raid_level(1) + num_members(1) + reserved(3) + filler(28) + disk_ord_tbl[0](4)
)

// checksumWords returns the modular sum of all whole 32-bit little-endian
// words of buf[0:mpbSize], minus the value currently stored in the
// check_sum field (bytes [32:36]) — §4.1 checksum().
//
// Because the check_sum field's own contribution is subtracted back out,
// this is well defined regardless of what value currently sits in that
// field: it always yields the sum of every *other* word.
func checksumWords(buf []byte, mpbSize int) uint32 {
	var sum uint32
	for off := 0; off+4 <= mpbSize; off += 4 {
		sum += binary.LittleEndian.Uint32(buf[off : off+4])
	}
	stored := binary.LittleEndian.Uint32(buf[32:36])
	return sum - stored
}

// decodeMap reads one Map starting at off, returning the map and the
// offset immediately past its disk_ord_tbl tail.
func decodeMap(b []byte, off int) (Map, int, error) {
	if off+mapHeaderSize > len(b) {
		return Map{}, 0, errors.Wrap(ErrBadSize, "truncated map header")
	}
	m := Map{
		PBAOfLBA0:       binary.LittleEndian.Uint32(b[off : off+4]),
		BlocksPerMember: binary.LittleEndian.Uint32(b[off+4 : off+8]),
		NumDataStripes:  binary.LittleEndian.Uint32(b[off+8 : off+12]),
		BlocksPerStrip:  binary.LittleEndian.Uint16(b[off+12 : off+14]),
		State:           MapState(b[off+14]),
		Level:           RaidLevel(b[off+15]),
		NumMembers:      b[off+16],
	}
	// disk_ord_tbl begins at off+48 (after the 3 reserved bytes and the
	// 7-word filler following num_members) and holds NumMembers entries,
	// the first of which is folded into mapHeaderSize.
	tblOff := off + 48
	n := int(m.NumMembers)
	if n == 0 {
		n = 1 // the format always carries at least one slot
	}
	end := tblOff + 4*n
	if end > len(b) {
		return Map{}, 0, errors.Wrap(ErrBadSize, "truncated disk_ord_tbl")
	}
	m.DiskOrdTbl = make([]uint32, n)
	for i := 0; i < n; i++ {
		m.DiskOrdTbl[i] = binary.LittleEndian.Uint32(b[tblOff+4*i : tblOff+4*i+4])
	}
	return m, off + sizeofMap(m.NumMembers), nil
}

func encodeMap(b []byte, off int, m *Map) int {
	binary.LittleEndian.PutUint32(b[off:off+4], m.PBAOfLBA0)
	binary.LittleEndian.PutUint32(b[off+4:off+8], m.BlocksPerMember)
	binary.LittleEndian.PutUint32(b[off+8:off+12], m.NumDataStripes)
	binary.LittleEndian.PutUint16(b[off+12:off+14], m.BlocksPerStrip)
	b[off+14] = byte(m.State)
	b[off+15] = byte(m.Level)
	b[off+16] = m.NumMembers
	tblOff := off + 48
	for i, v := range m.DiskOrdTbl {
		binary.LittleEndian.PutUint32(b[tblOff+4*i:tblOff+4*i+4], v)
	}
	return off + sizeofMap(m.NumMembers)
}

func decodeDevice(b []byte, off int) (Device, int, error) {
	if off+devHeaderSize+volHeaderSize > len(b) {
		return Device{}, 0, errors.Wrap(ErrBadSize, "truncated device header")
	}
	var dev Device
	copy(dev.Name[:], b[off:off+MaxRaidSerialLen])
	dev.ArraySizeLow = binary.LittleEndian.Uint32(b[off+16 : off+20])
	dev.ArraySizeHigh = binary.LittleEndian.Uint32(b[off+20 : off+24])
	dev.Status = binary.LittleEndian.Uint32(b[off+24 : off+28])
	dev.ReservedBlocks = binary.LittleEndian.Uint32(b[off+28 : off+32])

	volOff := off + devHeaderSize
	dev.Vol.MigrState = b[volOff+8]
	dev.Vol.MigrType = b[volOff+9]
	dev.Vol.Dirty = b[volOff+10] != 0

	mapOff := volOff + volHeaderSize
	m0, next, err := decodeMap(b, mapOff)
	if err != nil {
		return Device{}, 0, err
	}
	dev.Vol.Map0 = m0

	if dev.Vol.migrating() {
		m1, after, err := decodeMap(b, next)
		if err != nil {
			return Device{}, 0, err
		}
		dev.Vol.Map1 = &m1
		next = after
	}
	return dev, next, nil
}

func encodeDevice(b []byte, off int, dev *Device) int {
	copy(b[off:off+MaxRaidSerialLen], dev.Name[:])
	binary.LittleEndian.PutUint32(b[off+16:off+20], dev.ArraySizeLow)
	binary.LittleEndian.PutUint32(b[off+20:off+24], dev.ArraySizeHigh)
	binary.LittleEndian.PutUint32(b[off+24:off+28], dev.Status)
	binary.LittleEndian.PutUint32(b[off+28:off+32], dev.ReservedBlocks)

	volOff := off + devHeaderSize
	b[volOff+8] = dev.Vol.MigrState
	b[volOff+9] = dev.Vol.MigrType
	if dev.Vol.Dirty {
		b[volOff+10] = 1
	} else {
		b[volOff+10] = 0
	}

	mapOff := volOff + volHeaderSize
	next := encodeMap(b, mapOff, &dev.Vol.Map0)
	if dev.Vol.migrating() && dev.Vol.Map1 != nil {
		next = encodeMap(b, next, dev.Vol.Map1)
	}
	return next
}

// Decode parses a raw MPB byte buffer into a Super. It validates the
// signature, the declared size against the buffer and the computed tail,
// and the arithmetic checksum (§4.1, §8 property 2).
func Decode(b []byte) (*Super, error) {
	if len(b) < mpbHeaderSize {
		return nil, errors.Wrap(ErrBadSize, "buffer shorter than mpb header")
	}
	sig := b[0:MaxSignatureLength]
	if !strings.HasPrefix(string(sig), MPBSignature) {
		return nil, ErrBadSignature
	}
	version := strings.TrimRight(string(sig[len(MPBSignature):MaxSignatureLength]), "\x00")
	if len(version) != 6 || !isDottedVersion(version) {
		return nil, errors.Wrap(ErrBadVersion, version)
	}

	checkSum := binary.LittleEndian.Uint32(b[32:36])
	mpbSize := binary.LittleEndian.Uint32(b[36:40])
	if int(mpbSize) > len(b) || mpbSize < mpbHeaderSize {
		return nil, errors.Wrapf(ErrBadSize, "mpb_size %d out of range for %d byte buffer", mpbSize, len(b))
	}

	s := &Super{
		Version:       version,
		CheckSum:      checkSum,
		MPBSize:       mpbSize,
		FamilyNum:     binary.LittleEndian.Uint32(b[40:44]),
		GenerationNum: binary.LittleEndian.Uint32(b[44:48]),
		NumDisks:      b[56],
		NumRaidDevs:   b[57],
	}
	if s.NumRaidDevs > MaxRaidDevs {
		return nil, errors.Wrapf(ErrBadSize, "num_raid_devs %d exceeds %d", s.NumRaidDevs, MaxRaidDevs)
	}

	off := mpbHeaderSize
	diskTblEnd := off + int(s.NumDisks)*diskRecordSize
	if diskTblEnd > int(mpbSize) {
		return nil, errors.Wrap(ErrBadSize, "disk table overruns mpb_size")
	}
	s.Disks = make([]Disk, s.NumDisks)
	for i := 0; i < int(s.NumDisks); i++ {
		s.Disks[i] = decodeDisk(b, off+i*diskRecordSize)
	}
	off = diskTblEnd

	s.Devices = make([]Device, s.NumRaidDevs)
	for i := 0; i < int(s.NumRaidDevs); i++ {
		dev, next, err := decodeDevice(b, off)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding device %d", i)
		}
		s.Devices[i] = dev
		off = next
	}

	if off > int(mpbSize) {
		return nil, errors.Wrap(ErrBadSize, "device tail overruns mpb_size")
	}

	computed := checksumWords(b, int(mpbSize))
	if computed != checkSum {
		return nil, errors.Wrapf(ErrBadChecksum, "computed %08x stored %08x", computed, checkSum)
	}

	return s, nil
}

func decodeDisk(b []byte, off int) Disk {
	var d Disk
	copy(d.Serial[:], b[off:off+MaxRaidSerialLen])
	d.TotalBlocks = binary.LittleEndian.Uint32(b[off+16 : off+20])
	d.SCSIID = binary.LittleEndian.Uint32(b[off+20 : off+24])
	d.Status = DiskStatus(binary.LittleEndian.Uint32(b[off+24 : off+28]))
	return d
}

func encodeDisk(b []byte, off int, d *Disk) {
	copy(b[off:off+MaxRaidSerialLen], d.Serial[:])
	binary.LittleEndian.PutUint32(b[off+16:off+20], d.TotalBlocks)
	binary.LittleEndian.PutUint32(b[off+20:off+24], d.SCSIID)
	binary.LittleEndian.PutUint32(b[off+24:off+28], uint32(d.Status))
}

// encodedSize computes the tail-walk size of s: header + disk table +
// every device record's (possibly migrating) map tail, rounded up to a
// full sector (§3 invariant 1).
func encodedSize(s *Super) int {
	off := mpbHeaderSize + len(s.Disks)*diskRecordSize
	for i := range s.Devices {
		off += sizeofDevice(&s.Devices[i])
	}
	return roundUpSector(off)
}

func roundUpSector(n int) int {
	const sector = 512
	if n%sector == 0 {
		return n
	}
	return (n/sector + 1) * sector
}

// Encode serializes s, recomputing mpb_size, zeroing reserved regions and
// writing the checksum last (§4.1). It returns a 512-byte-aligned buffer.
func Encode(s *Super) ([]byte, error) {
	if len(s.Disks) != int(s.NumDisks) {
		return nil, errors.Errorf("NumDisks %d does not match %d Disks entries", s.NumDisks, len(s.Disks))
	}
	if len(s.Devices) != int(s.NumRaidDevs) {
		return nil, errors.Errorf("NumRaidDevs %d does not match %d Devices entries", s.NumRaidDevs, len(s.Devices))
	}
	size := encodedSize(s)
	b := make([]byte, size)

	copy(b[0:], []byte(MPBSignature))
	copy(b[len(MPBSignature):MaxSignatureLength], []byte(s.Version))

	binary.LittleEndian.PutUint32(b[36:40], uint32(size))
	binary.LittleEndian.PutUint32(b[40:44], s.FamilyNum)
	binary.LittleEndian.PutUint32(b[44:48], s.GenerationNum)
	b[56] = s.NumDisks
	b[57] = s.NumRaidDevs

	off := mpbHeaderSize
	for i := range s.Disks {
		encodeDisk(b, off+i*diskRecordSize, &s.Disks[i])
	}
	off += len(s.Disks) * diskRecordSize

	for i := range s.Devices {
		off = encodeDevice(b, off, &s.Devices[i])
	}

	sum := checksumWords(b, size)
	binary.LittleEndian.PutUint32(b[32:36], sum)
	s.MPBSize = uint32(size)
	s.CheckSum = sum

	return b, nil
}

func isDottedVersion(v string) bool {
	dots := 0
	for _, c := range v {
		switch {
		case c == '.':
			dots++
		case c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return dots == 2
}
