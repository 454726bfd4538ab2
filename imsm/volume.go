package imsm

import "github.com/pkg/errors"

// VolumeSpec describes a volume creation request, the Go analogue of the
// original's mdu_array_info_t parameters consumed by init_super_imsm_volume
// (§4.6).
type VolumeSpec struct {
	Name       string
	Level      int // 0, 1, 5, or 10 (stored as Raid1 with >2 members)
	RaidDisks  int
	ChunkBytes uint32 // ignored for RAID-1
	// SizeSectors is the per-member size in 512-byte sectors (info->size*2
	// in the original, which works in KiB and doubles to sectors).
	SizeSectors uint32
}

// blocksPerStrip mirrors info_to_blocks_per_strip: fixed at 128 for
// RAID-1, otherwise derived from the chunk size.
func blocksPerStrip(spec VolumeSpec) uint16 {
	if spec.Level == 1 {
		return 128
	}
	return uint16(spec.ChunkBytes >> 9)
}

// numDataStripes mirrors info_to_num_data_stripes. SizeSectors already
// equals the original's info->size*2, so it is divided by the strip size
// directly.
func numDataStripes(spec VolumeSpec, bps uint16) uint32 {
	stripes := uint64(spec.SizeSectors) / uint64(bps)
	if spec.Level == 1 {
		stripes /= 2
	}
	return uint32(stripes)
}

// disksToMPBSize computes the worst-case MPB buffer size for a container
// with the given number of disks: two volumes, each with a current and a
// migration map, each potentially spanning every disk (§4.6,
// disks_to_mpb_size in the original).
func disksToMPBSize(disks int) int {
	size := mpbHeaderSize + diskRecordSize // struct imsm_super already counts disk[0]
	if disks > 1 {
		size += (disks - 1) * diskRecordSize
	}
	size += 2 * (devHeaderSize + volHeaderSize + mapHeaderSize) // 2 imsm_dev, each with 1 map
	size += 2 * mapHeaderSize                                   // up to 4 maps total per container
	if disks > 1 {
		size += 4 * (disks - 1) * 4 // 4 possible disk_ord_tbl's, each up to num_disks long
	}
	return size
}

// EnsureCapacity raises s.MPBSize, if needed, to the worst-case size of a
// container with numDisks disks, after init_super_imsm_volume's
// reallocation (§4.6); it never lowers it. No buffer is held between
// writes: Encode sizes its buffer from the records s actually holds and
// resets MPBSize to that size.
func EnsureCapacity(s *Super, numDisks int) {
	needed := uint32(roundUpSector(disksToMPBSize(numDisks)))
	if needed > s.MPBSize {
		s.MPBSize = needed
	}
}

// AddVolume appends a new device record implementing spec to s, returning
// its index. It rejects a third volume and a RAID-1 with more than two
// members; it does not check spec.RaidDisks against the number of disks
// in the container. The caller is
// expected to have already validated placement with FindVolumeOffset and
// EnsureCapacity (§4.6).
func AddVolume(s *Super, spec VolumeSpec, pbaOfLBA0 uint32) (int, error) {
	if len(s.Devices) >= MaxRaidDevs {
		return 0, errors.Wrap(ErrOverCapacity, "container already has 2 volumes")
	}
	if spec.Level == 1 && spec.RaidDisks > 2 {
		return 0, errors.Wrap(ErrOverCapacity, "imsm raid1 supports at most 2 members")
	}

	idx := len(s.Devices)
	bps := blocksPerStrip(spec)

	var dev Device
	copy(dev.Name[:], []byte(spec.Name))
	dev.setArraySize(arrayBlocks(spec))

	level := RaidLevel(spec.Level)
	if spec.Level == 10 {
		level = Raid1
	}

	state := StateUninitialized
	if spec.Level == 0 {
		state = StateNormal
	}

	dev.Vol = Volume{
		Map0: Map{
			PBAOfLBA0:       pbaOfLBA0,
			BlocksPerMember: spec.SizeSectors,
			NumDataStripes:  numDataStripes(spec, bps),
			BlocksPerStrip:  bps,
			State:           state,
			Level:           level,
			NumMembers:      byte(spec.RaidDisks),
			DiskOrdTbl:      make([]uint32, spec.RaidDisks),
		},
	}

	s.Devices = append(s.Devices, dev)
	s.NumRaidDevs = byte(len(s.Devices))
	return idx, nil
}

// arrayBlocks computes the total addressable size of the volume. For
// RAID-1 the array size equals one member's size; for RAID-0/5/10 it
// scales with the data-disk count, mirroring mdadm's calc_array_size
// closely enough for this engine's own invariants (exact reshape-aware
// accounting is out of scope — §1 Non-goals).
func arrayBlocks(spec VolumeSpec) uint64 {
	switch spec.Level {
	case 1:
		return uint64(spec.SizeSectors)
	case 5:
		return uint64(spec.SizeSectors) * uint64(spec.RaidDisks-1)
	case 10:
		return uint64(spec.SizeSectors) * uint64(spec.RaidDisks/2)
	default: // 0
		return uint64(spec.SizeSectors) * uint64(spec.RaidDisks)
	}
}

// AssociateMember records that the disk at diskIdx backs slot in the
// volume at devIdx, setting CONFIGURED|USABLE on it (§4.6 "initialized in
// add_to_super", add_to_super_imsm_volume in the original).
func AssociateMember(s *Super, devIdx, slot, diskIdx int) error {
	dev := s.DeviceAt(devIdx)
	if dev == nil {
		return errors.Errorf("no device at index %d", devIdx)
	}
	if slot < 0 || slot >= len(dev.Vol.Map0.DiskOrdTbl) {
		return errors.Errorf("slot %d out of range for %d members", slot, len(dev.Vol.Map0.DiskOrdTbl))
	}
	disk := s.DiskAt(diskIdx)
	if disk == nil {
		return errors.Wrapf(ErrUnknownDisk, "index %d", diskIdx)
	}
	dev.Vol.Map0.DiskOrdTbl[slot] = uint32(diskIdx)
	disk.Status |= ConfiguredDisk | UsableDisk
	return nil
}
