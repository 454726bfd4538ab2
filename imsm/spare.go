package imsm

// SparePick is a candidate activate_spare assignment produced by
// PickSpares: disk diskIdx has room to fill slot of the volume at devIdx
// starting at offset (§4.9).
type SparePick struct {
	DiskIdx int
	DevIdx  int
	Slot    int
	Offset  uint32
}

// degradedSlot locates the first map slot that has no live backing disk —
// either the disk index is unresolvable or the disk is marked failed.
func degradedSlot(s *Super, m *Map) int {
	for slot := 0; slot < int(m.NumMembers); slot++ {
		disk := s.DiskAt(DiskIndex(m, slot))
		if disk == nil || disk.Status.Has(FailedDisk) {
			return slot
		}
	}
	return -1
}

// alreadyMember reports whether diskIdx already backs some slot of m.
func alreadyMember(m *Map, diskIdx int) bool {
	for slot := 0; slot < int(m.NumMembers); slot++ {
		if DiskIndex(m, slot) == diskIdx {
			return true
		}
	}
	return false
}

// PickSpares scans every degraded volume in s and, for each, looks for an
// unused SPARE disk in the container with enough free space to take over
// the first failed slot, in container disk-table order (§4.9,
// imsm_activate_spare in the original — the record-building half; applying
// a pick is ProcessActivateSpare in update.go).
//
// A disk already backing the same volume, or lacking the SpareDisk bit, is
// never considered. At most one pick per degraded volume is returned per
// call; callers loop calling PickSpares/ProcessActivateSpare/resync until
// no more picks are produced, matching the original's one-spare-at-a-time
// rebuild pacing.
func PickSpares(s *Super) []SparePick {
	var picks []SparePick

	for devIdx := range s.Devices {
		m := &s.Devices[devIdx].Vol.Map0
		if m.State != StateDegraded {
			continue
		}
		slot := degradedSlot(s, m)
		if slot < 0 {
			continue
		}

		for diskIdx := range s.Disks {
			disk := &s.Disks[diskIdx]
			if !disk.Status.Has(SpareDisk) {
				continue
			}
			if alreadyMember(m, diskIdx) {
				continue
			}
			ext := Extents(s, diskIdx)
			if ext == nil {
				continue
			}
			offset := m.PBAOfLBA0
			if !HasRoomFor(ext, offset, m.BlocksPerMember) {
				continue
			}
			picks = append(picks, SparePick{DiskIdx: diskIdx, DevIdx: devIdx, Slot: slot, Offset: offset})
			break
		}
	}

	return picks
}
