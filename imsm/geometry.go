package imsm

import "sort"

// Extent is a contiguous member-disk range used by one volume, or the
// trailing sentinel with Size == 0 marking the disk's usable end (§4.5).
type Extent struct {
	Start uint32
	Size  uint32
}

// AvailSize returns the number of sectors usable for containers/volumes on
// a disk of the given total size, i.e. everything before the trailing
// reserved region (§4.5, avail_size_imsm in the original).
func AvailSize(totalBlocks uint32) uint32 {
	if totalBlocks < imsmTrailingSectors {
		return 0
	}
	return totalBlocks - imsmTrailingSectors
}

// Extents returns the sorted extent list for the disk at diskIdx: one
// (start, size) pair per volume membership found by walking every
// device's primary map, terminated by the sentinel (total_blocks -
// MPBSectorCnt - IMSMReservedSectors, 0) (§4.5, get_extents in the original).
//
// Only a volume's primary map (Map0) is considered, matching the
// original: a migration's second map is parsed but never consulted for
// space accounting (§1 Non-goals — no migration-in-progress recovery).
func Extents(s *Super, diskIdx int) []Extent {
	disk := s.DiskAt(diskIdx)
	if disk == nil {
		return nil
	}

	var ext []Extent
	for i := range s.Devices {
		m := &s.Devices[i].Vol.Map0
		for slot := 0; slot < int(m.NumMembers); slot++ {
			if DiskIndex(m, slot) == diskIdx {
				ext = append(ext, Extent{Start: m.PBAOfLBA0, Size: m.BlocksPerMember})
			}
		}
	}

	sort.Slice(ext, func(i, j int) bool { return ext[i].Start < ext[j].Start })

	sentinel := Extent{Start: 0, Size: 0}
	if disk.TotalBlocks >= imsmTrailingSectors {
		sentinel.Start = disk.TotalBlocks - imsmTrailingSectors
	}
	return append(ext, sentinel)
}

// MaxFreeGap returns the size in sectors of the largest contiguous free
// gap on the disk at diskIdx — used when validating space for a single
// named device rather than a whole new volume (§4.5).
func MaxFreeGap(s *Super, diskIdx int) uint32 {
	ext := Extents(s, diskIdx)
	if ext == nil {
		return 0
	}
	var pos, max uint32
	for i := 0; ; i++ {
		gap := ext[i].Start - pos
		if gap > max {
			max = gap
		}
		pos = ext[i].Start + ext[i].Size
		if ext[i].Size == 0 {
			break
		}
	}
	return max
}

// HasRoomFor reports whether ext contains a free gap covering
// [start, start+size) (§4.9 step 3, the activate_spare extent search).
func HasRoomFor(ext []Extent, start, size uint32) bool {
	var pos uint32
	for i := 0; ; i++ {
		if start >= pos && start+size <= ext[i].Start {
			return true
		}
		pos = ext[i].Start + ext[i].Size
		if ext[i].Size == 0 {
			break
		}
	}
	return false
}

// FindVolumeOffset searches the container's disks for a common starting
// offset at which at least raiddisks of them have a free gap of at least
// sizeSectors, returning that offset (§4.5, the `dev == nil` branch of
// validate_geometry_imsm_volume).
//
// minSize of 0 is raised to MPBSectorCnt+IMSMReservedSectors, matching the
// original's floor for an as-yet-unsized volume.
func FindVolumeOffset(s *Super, raiddisks int, sizeSectors uint32) (offset uint32, qualifying int, ok bool) {
	minSize := sizeSectors
	if minSize == 0 {
		minSize = imsmTrailingSectors
	}

	var startOffset *uint32
	dcnt := 0

	for diskIdx := 0; diskIdx < len(s.Disks); diskIdx++ {
		ext := Extents(s, diskIdx)
		if ext == nil {
			continue
		}

		var pos uint32
		found := false
		for i := 0; ; i++ {
			esize := ext[i].Start - pos
			if esize >= minSize {
				found = true
			}
			if found && startOffset == nil {
				off := pos
				startOffset = &off
				break
			} else if found && pos != *startOffset {
				found = false
				break
			} else if found {
				break
			}
			size := ext[i].Size
			pos = ext[i].Start + size
			if size == 0 {
				break
			}
		}
		if found {
			dcnt++
		}
	}

	if dcnt < raiddisks || startOffset == nil {
		return 0, dcnt, false
	}
	return *startOffset, dcnt, true
}
