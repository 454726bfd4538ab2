package imsm

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/intel-raid/imsm/util"
)

// DiskObservedState is the bit-set the monitor's poll loop reports per
// member disk each cycle (§4.7).
type DiskObservedState uint32

const (
	DiskFaulty DiskObservedState = 1 << iota
	DiskInSync
)

func (s DiskObservedState) Has(bit DiskObservedState) bool { return s&bit == bit }

// Monitor drives §4.7's state machine and §4.8's apply step against a
// single container's Super. Per §5 it is the only mutator of the MPB
// buffer after initial load. Update records (update.go) are applied by
// calling ProcessActivateSpare or ProcessCreateArray directly; this
// package has no update queue of its own.
type Monitor struct {
	Super          *Super
	PendingUpdates int
	Log            logrus.FieldLogger
}

// NewMonitor constructs a Monitor over s. A nil log falls back to the
// standard logger, the same default LoadSuper uses.
func NewMonitor(s *Super, log logrus.FieldLogger) *Monitor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Monitor{Super: s, Log: log}
}

// CountFailed counts the member disks of map that have FailedDisk set
// (§4.7, imsm_count_failed).
func CountFailed(s *Super, m *Map) int {
	failed := 0
	for slot := 0; slot < int(m.NumMembers); slot++ {
		disk := s.DiskAt(DiskIndex(m, slot))
		if disk != nil && disk.Status.Has(FailedDisk) {
			failed++
		}
	}
	return failed
}

// CheckDegraded computes the map_state implied by failed member count per
// the §4.7 table (imsm_check_degraded in the original). RAID-10 walks
// adjacent pairs of two slots; the trailing slot of an odd NumMembers is
// treated as its own singleton pair (SPEC_FULL.md §E — the original's loop
// is undefined for that case).
func CheckDegraded(s *Super, m *Map, failed int) MapState {
	if failed == 0 {
		return m.State
	}

	switch m.EffectiveLevel() {
	case 0:
		return StateFailed
	case 1:
		if failed < int(m.NumMembers) {
			return StateDegraded
		}
		return StateFailed
	case 5:
		if failed < 2 {
			return StateDegraded
		}
		return StateFailed
	case 10:
		const mirrorSize = 2
		pairFailed := 0
		for i := 0; i < int(m.NumMembers); i++ {
			disk := s.DiskAt(DiskIndex(m, i))
			if disk != nil && disk.Status.Has(FailedDisk) {
				pairFailed++
			}
			if pairFailed >= mirrorSize {
				return StateFailed
			}
			if (i+1)%mirrorSize == 0 {
				pairFailed = 0
			}
		}
		return StateDegraded
	default:
		return m.State
	}
}

// SetDisk applies one poll cycle's observation for the member disk
// backing map slot n of the volume at devIdx (§4.7, imsm_set_disk).
// workingInSync is the caller's count of currently in-sync devices across
// the whole array, needed to detect a DEGRADED -> NORMAL promotion; pass
// it as -1 if unknown (the promotion check is then skipped for this call).
func (mon *Monitor) SetDisk(devIdx, slot int, observed DiskObservedState, workingInSync int) error {
	dev := mon.Super.DeviceAt(devIdx)
	if dev == nil {
		return errors.Errorf("imsm: set_disk: no device %d", devIdx)
	}
	m := &dev.Vol.Map0
	if slot < 0 || slot >= int(m.NumMembers) {
		return errors.Errorf("imsm: set_disk %d out of range 0..%d", slot, int(m.NumMembers)-1)
	}

	disk := mon.Super.DiskAt(DiskIndex(m, slot))
	if disk == nil {
		return errors.Errorf("imsm: set_disk: slot %d has no backing disk", slot)
	}

	newFailure := false
	if observed.Has(DiskFaulty) && !disk.Status.Has(FailedDisk) {
		disk.Status |= FailedDisk
		newFailure = true
		mon.PendingUpdates++
	}

	failed := 0
	if newFailure && m.State != StateFailed {
		failed = CountFailed(mon.Super, m)
	}

	if failed > 0 {
		m.State = CheckDegraded(mon.Super, m, failed)
	} else if m.State == StateDegraded && workingInSync >= 0 {
		if workingInSync == int(m.NumMembers) {
			m.State = StateNormal
			mon.PendingUpdates++
		}
	}

	return nil
}

// SetArrayState refreshes map_state and the dirty bit for the volume at
// devIdx. Per §4.7 it is only meaningful when the array has no active
// resync (resync_start == ~0 in the original); the caller is responsible
// for only invoking it in that circumstance.
func (mon *Monitor) SetArrayState(devIdx int, consistent bool) error {
	dev := mon.Super.DeviceAt(devIdx)
	if dev == nil {
		return errors.Errorf("imsm: set_array_state: no device %d", devIdx)
	}
	m := &dev.Vol.Map0

	failed := CountFailed(mon.Super, m)
	mapState := CheckDegraded(mon.Super, m, failed)
	if failed == 0 {
		mapState = StateNormal
	}
	if m.State != mapState {
		mon.Log.WithField("volume", devIdx).WithField("state", mapState).Debug("imsm: map_state changed")
		m.State = mapState
		mon.PendingUpdates++
	}

	dirty := !consistent
	if dev.Vol.Dirty != dirty {
		dev.Vol.Dirty = dirty
		mon.PendingUpdates++
	}
	return nil
}

// SyncTarget is one member disk's write handle, as needed by SyncMetadata.
type SyncTarget struct {
	ID    string
	File  util.File
	DSize int64
}

// SyncMetadata flushes the MPB to every disk in targets when pending
// updates are non-zero, incrementing generation_num exactly once for the
// whole flush (§4.7, §8 property 3). A write failure on one disk is
// logged and does not prevent attempts on the others; the first error
// encountered, if any, is returned once all targets have been attempted.
func (mon *Monitor) SyncMetadata(targets []SyncTarget) error {
	if mon.PendingUpdates == 0 {
		return nil
	}

	mon.Super.GenerationNum++

	var firstErr error
	for _, t := range targets {
		if err := WriteMPB(t.File, t.DSize, mon.Super); err != nil {
			mon.Log.WithError(err).WithField("device", t.ID).Warn("imsm: sync_metadata write failed")
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "writing mpb to %s", t.ID)
			}
			continue
		}
	}

	mon.PendingUpdates = 0
	return firstErr
}
