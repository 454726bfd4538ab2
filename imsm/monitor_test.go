package imsm

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func containerForMonitor(level RaidLevel, numMembers int) *Super {
	s := &Super{Version: VersionRAID5, NumDisks: byte(numMembers), NumRaidDevs: 1}
	s.Disks = make([]Disk, numMembers)
	var dev Device
	dev.Vol.Map0 = Map{
		Level:      level,
		NumMembers: byte(numMembers),
		State:      StateNormal,
		DiskOrdTbl: make([]uint32, numMembers),
	}
	for i := range dev.Vol.Map0.DiskOrdTbl {
		dev.Vol.Map0.DiskOrdTbl[i] = uint32(i)
	}
	s.Devices = []Device{dev}
	return s
}

func newTestMonitor(s *Super) *Monitor {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel) // keep test output quiet
	return NewMonitor(s, log)
}

func TestCheckDegradedRaid0AnyFailureIsFailed(t *testing.T) {
	s := containerForMonitor(Raid0, 4)
	m := &s.Devices[0].Vol.Map0
	if got := CheckDegraded(s, m, 1); got != StateFailed {
		t.Errorf("raid0 with 1 failure = %v, want failed", got)
	}
}

func TestCheckDegradedRaid1DegradesUntilAllFail(t *testing.T) {
	s := containerForMonitor(Raid1, 2)
	m := &s.Devices[0].Vol.Map0
	if got := CheckDegraded(s, m, 1); got != StateDegraded {
		t.Errorf("raid1 with 1/2 failed = %v, want degraded", got)
	}
	if got := CheckDegraded(s, m, 2); got != StateFailed {
		t.Errorf("raid1 with 2/2 failed = %v, want failed", got)
	}
}

func TestCheckDegradedRaid5ToleratesOneFailure(t *testing.T) {
	s := containerForMonitor(Raid5, 4)
	m := &s.Devices[0].Vol.Map0
	if got := CheckDegraded(s, m, 1); got != StateDegraded {
		t.Errorf("raid5 with 1 failure = %v, want degraded", got)
	}
	if got := CheckDegraded(s, m, 2); got != StateFailed {
		t.Errorf("raid5 with 2 failures = %v, want failed", got)
	}
}

func TestCheckDegradedRaid10SurvivesOnePerPair(t *testing.T) {
	// 4 members -> two mirrored pairs (0,1) and (2,3).
	s := containerForMonitor(Raid1, 4)
	m := &s.Devices[0].Vol.Map0
	s.Disks[0].Status |= FailedDisk
	s.Disks[2].Status |= FailedDisk
	if got := CheckDegraded(s, m, CountFailed(s, m)); got != StateDegraded {
		t.Errorf("one failure per mirror pair = %v, want degraded", got)
	}
}

func TestCheckDegradedRaid10FailsOnBothOfAPair(t *testing.T) {
	s := containerForMonitor(Raid1, 4)
	m := &s.Devices[0].Vol.Map0
	s.Disks[0].Status |= FailedDisk
	s.Disks[1].Status |= FailedDisk
	if got := CheckDegraded(s, m, CountFailed(s, m)); got != StateFailed {
		t.Errorf("both members of a mirror pair failed = %v, want failed", got)
	}
}

func TestSetDiskMarksFailureAndDegrades(t *testing.T) {
	s := containerForMonitor(Raid5, 3)
	mon := newTestMonitor(s)

	if err := mon.SetDisk(0, 1, DiskFaulty, -1); err != nil {
		t.Fatalf("SetDisk: %v", err)
	}
	if !s.Disks[1].Status.Has(FailedDisk) {
		t.Error("disk 1 was not marked failed")
	}
	if s.Devices[0].Vol.Map0.State != StateDegraded {
		t.Errorf("map_state = %v, want degraded", s.Devices[0].Vol.Map0.State)
	}
	if mon.PendingUpdates == 0 {
		t.Error("expected a pending update after a new failure")
	}
}

func TestSetDiskPromotesBackToNormal(t *testing.T) {
	s := containerForMonitor(Raid5, 3)
	mon := newTestMonitor(s)
	s.Devices[0].Vol.Map0.State = StateDegraded

	if err := mon.SetDisk(0, 0, DiskInSync, 3); err != nil {
		t.Fatalf("SetDisk: %v", err)
	}
	if s.Devices[0].Vol.Map0.State != StateNormal {
		t.Errorf("map_state = %v, want normal after full resync", s.Devices[0].Vol.Map0.State)
	}
}

func TestSetArrayStateTracksDirty(t *testing.T) {
	s := containerForMonitor(Raid5, 3)
	mon := newTestMonitor(s)

	if err := mon.SetArrayState(0, false); err != nil {
		t.Fatalf("SetArrayState: %v", err)
	}
	if !s.Devices[0].Vol.Dirty {
		t.Error("expected Dirty=true when consistent=false")
	}
	if mon.PendingUpdates == 0 {
		t.Error("expected a pending update for the dirty-bit change")
	}
}

func TestSyncMetadataIncrementsGenerationOnceForAllTargets(t *testing.T) {
	s := containerForMonitor(Raid5, 2)
	mon := newTestMonitor(s)
	mon.PendingUpdates = 1
	startGen := s.GenerationNum

	f1 := newTestFile(t)
	f2 := newTestFile(t)
	targets := []SyncTarget{
		{ID: "d1", File: f1, DSize: testDiskSize},
		{ID: "d2", File: f2, DSize: testDiskSize},
	}

	if err := mon.SyncMetadata(targets); err != nil {
		t.Fatalf("SyncMetadata: %v", err)
	}
	if s.GenerationNum != startGen+1 {
		t.Errorf("GenerationNum = %d, want %d (incremented exactly once)", s.GenerationNum, startGen+1)
	}
	if mon.PendingUpdates != 0 {
		t.Error("PendingUpdates should reset to 0 after a successful sync")
	}
}

func TestSyncMetadataNoopWhenNoPendingUpdates(t *testing.T) {
	s := containerForMonitor(Raid5, 2)
	mon := newTestMonitor(s)
	startGen := s.GenerationNum

	if err := mon.SyncMetadata(nil); err != nil {
		t.Fatalf("SyncMetadata: %v", err)
	}
	if s.GenerationNum != startGen {
		t.Error("GenerationNum must not change when there are no pending updates")
	}
}
