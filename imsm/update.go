package imsm

import (
	bitset "github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"
)

// ActivateSpareUpdate records a single spare-for-failed-slot replacement
// (§4.8). It has no link to a further record: a monitor cycle that
// activates several spares applies one record per spare.
type ActivateSpareUpdate struct {
	DiskIdx int // container disk-table index of the replacement disk
	Slot    int // map slot being replaced
	Array   int // device index of the affected volume
}

// CreateArrayUpdate records a full device record ready to be appended as
// the container's next volume (§4.8).
type CreateArrayUpdate struct {
	Device Device
	DevIdx int
}

// PrepareUpdate runs off the critical path before ProcessCreateArray and
// raises s.MPBSize, through EnsureCapacity, to the worst-case size for the
// container's disk count (§4.8 "Prepare"). ActivateSpareUpdate has no
// prepare step, since it never grows the MPB.
func PrepareUpdate(s *Super, u *CreateArrayUpdate) {
	EnsureCapacity(s, len(s.Disks))
}

// ProcessActivateSpare applies one activate_spare record (§4.8 step list,
// imsm_process_update's update_activate_spare case).
func (mon *Monitor) ProcessActivateSpare(u ActivateSpareUpdate) error {
	s := mon.Super
	disk := s.DiskAt(u.DiskIdx)
	if disk == nil {
		mon.Log.WithField("disk_idx", u.DiskIdx).Warn("imsm: activate_spare passed an unknown disk_idx")
		return errors.Wrapf(ErrUnknownDisk, "disk_idx %d", u.DiskIdx)
	}
	dev := s.DeviceAt(u.Array)
	if dev == nil {
		return errors.Errorf("imsm: activate_spare: no array %d", u.Array)
	}
	m := &dev.Vol.Map0
	if u.Slot < 0 || u.Slot >= int(m.NumMembers) {
		return errors.Errorf("imsm: activate_spare: slot %d out of range", u.Slot)
	}

	victim := DiskIndex(m, u.Slot)
	m.DiskOrdTbl[u.Slot] = uint32(u.DiskIdx)
	disk.Status |= ConfiguredDisk

	// map unique/live arrays using the spare: members = redundant arrays,
	// found = redundant arrays that already include this disk.
	members := bitset.New(uint(len(s.Devices)))
	found := bitset.New(uint(len(s.Devices)))
	for inst := range s.Devices {
		dm := &s.Devices[inst].Vol.Map0
		if dm.Level > 0 {
			members.Set(uint(inst))
		}
		for slot := 0; slot < int(dm.NumMembers); slot++ {
			if DiskIndex(dm, slot) == u.DiskIdx {
				found.Set(uint(inst))
				break
			}
		}
	}
	if found.Count() >= members.Count() {
		disk.Status &^= SpareDisk
	}

	// count arrays still referencing the victim disk
	victimRefs := 0
	for inst := range s.Devices {
		dm := &s.Devices[inst].Vol.Map0
		for slot := 0; slot < int(dm.NumMembers); slot++ {
			if DiskIndex(dm, slot) == victim {
				victimRefs++
			}
		}
	}
	if victimRefs == 0 {
		if vd := s.DiskAt(victim); vd != nil {
			vd.Status &^= ConfiguredDisk | UsableDisk
		}
	}

	mon.PendingUpdates++
	return nil
}

// disksOverlap reports whether m1 and m2 share any member disk index
// (§4.8 step 3, disks_overlap in the original).
func disksOverlap(m1, m2 *Map) bool {
	for i := 0; i < int(m1.NumMembers); i++ {
		idx := DiskIndex(m1, i)
		for j := 0; j < int(m2.NumMembers); j++ {
			if idx == DiskIndex(m2, j) {
				return true
			}
		}
	}
	return false
}

// ProcessCreateArray applies one create_array record (§4.8,
// imsm_process_update's update_create_array case).
func (mon *Monitor) ProcessCreateArray(u CreateArrayUpdate) error {
	s := mon.Super

	if u.DevIdx < len(s.Devices) {
		return errors.Wrapf(ErrRaceLost, "subarray %d already defined", u.DevIdx)
	}
	if u.DevIdx != len(s.Devices) {
		return errors.Wrapf(ErrRaceLost, "cannot create arrays out of sequence (dev_idx=%d, num_raid_devs=%d)", u.DevIdx, len(s.Devices))
	}

	newMap := &u.Device.Vol.Map0
	newStart := uint64(newMap.PBAOfLBA0)
	newEnd := newStart + uint64(newMap.BlocksPerMember)

	overlap := false
	for i := range s.Devices {
		m := &s.Devices[i].Vol.Map0
		start := uint64(m.PBAOfLBA0)
		end := start + uint64(m.BlocksPerMember)
		ivOverlap := (newStart >= start && newStart <= end) || (start >= newStart && start <= newEnd)
		if ivOverlap {
			overlap = true
		}
		if ivOverlap && disksOverlap(m, newMap) {
			return errors.Wrap(ErrRaceLost, "arrays overlap")
		}
	}

	if int(newMap.NumMembers) > len(s.Disks) {
		return errors.Wrap(ErrOverCapacity, "num_members out of range")
	}

	s.Devices = append(s.Devices, u.Device)
	s.NumRaidDevs = byte(len(s.Devices))
	dev := &s.Devices[len(s.Devices)-1]
	m := &dev.Vol.Map0

	for i := 0; i < int(m.NumMembers); i++ {
		disk := s.DiskAt(DiskIndex(m, i))
		if disk == nil {
			continue
		}
		disk.Status |= ConfiguredDisk
		if overlap {
			disk.Status &^= SpareDisk
		}
	}

	mon.PendingUpdates++
	return nil
}
