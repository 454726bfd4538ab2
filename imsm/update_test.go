package imsm

import "testing"

func containerWithSpare(level RaidLevel, numMembers, extraSpares int) *Super {
	s := &Super{Version: VersionRAID5, NumRaidDevs: 1}
	s.Disks = make([]Disk, numMembers+extraSpares)
	for i := range s.Disks {
		s.Disks[i].TotalBlocks = 10_000_000
	}
	for i := numMembers; i < numMembers+extraSpares; i++ {
		s.Disks[i].Status = SpareDisk
	}
	s.NumDisks = byte(len(s.Disks))

	var dev Device
	dev.Vol.Map0 = Map{
		PBAOfLBA0:       2048,
		BlocksPerMember: 100_000,
		Level:           level,
		NumMembers:      byte(numMembers),
		State:           StateNormal,
		DiskOrdTbl:      make([]uint32, numMembers),
	}
	for i := range dev.Vol.Map0.DiskOrdTbl {
		dev.Vol.Map0.DiskOrdTbl[i] = uint32(i)
		s.Disks[i].Status = ConfiguredDisk | UsableDisk
	}
	s.Devices = []Device{dev}
	return s
}

func TestProcessActivateSpareReplacesSlot(t *testing.T) {
	s := containerWithSpare(Raid5, 3, 1)
	s.Disks[0].Status |= FailedDisk
	mon := newTestMonitor(s)

	if err := mon.ProcessActivateSpare(ActivateSpareUpdate{DiskIdx: 3, Slot: 0, Array: 0}); err != nil {
		t.Fatalf("ProcessActivateSpare: %v", err)
	}

	m := &s.Devices[0].Vol.Map0
	if DiskIndex(m, 0) != 3 {
		t.Errorf("disk_ord_tbl[0] = %d, want 3", DiskIndex(m, 0))
	}
	if !s.Disks[3].Status.Has(ConfiguredDisk) {
		t.Error("replacement disk was not marked configured")
	}
	if s.Disks[3].Status.Has(SpareDisk) {
		t.Error("replacement disk should no longer be a spare once it backs the only redundant array")
	}
	if s.Disks[0].Status.Has(ConfiguredDisk) || s.Disks[0].Status.Has(UsableDisk) {
		t.Error("the victim disk should be cleared once no array references it")
	}
	if mon.PendingUpdates != 1 {
		t.Errorf("PendingUpdates = %d, want 1", mon.PendingUpdates)
	}
}

func TestProcessActivateSpareUnknownDisk(t *testing.T) {
	s := containerWithSpare(Raid5, 3, 1)
	mon := newTestMonitor(s)
	if err := mon.ProcessActivateSpare(ActivateSpareUpdate{DiskIdx: 99, Slot: 0, Array: 0}); err == nil {
		t.Fatal("expected ErrUnknownDisk for an out-of-range disk index")
	}
}

func TestProcessActivateSpareKeepsSpareBitWhenOtherArrayStillNeedsIt(t *testing.T) {
	s := containerWithSpare(Raid5, 3, 1)
	// add a second redundant volume that the spare disk does not yet back
	var dev2 Device
	dev2.Vol.Map0 = Map{
		Level:      Raid1,
		NumMembers: 2,
		DiskOrdTbl: []uint32{1, 2},
	}
	s.Devices = append(s.Devices, dev2)
	s.NumRaidDevs = 2

	mon := newTestMonitor(s)
	if err := mon.ProcessActivateSpare(ActivateSpareUpdate{DiskIdx: 3, Slot: 0, Array: 0}); err != nil {
		t.Fatalf("ProcessActivateSpare: %v", err)
	}
	if !s.Disks[3].Status.Has(SpareDisk) {
		t.Error("disk should remain a spare: it does not yet back every redundant array")
	}
}

func TestProcessCreateArrayAppendsDevice(t *testing.T) {
	s := containerWithSpare(Raid5, 3, 0)
	mon := newTestMonitor(s)

	var dev Device
	copy(dev.Name[:], "vol1")
	dev.Vol.Map0 = Map{
		PBAOfLBA0:       500_000,
		BlocksPerMember: 50_000,
		Level:           Raid0,
		NumMembers:      3,
		DiskOrdTbl:      []uint32{0, 1, 2},
	}

	if err := mon.ProcessCreateArray(CreateArrayUpdate{Device: dev, DevIdx: 1}); err != nil {
		t.Fatalf("ProcessCreateArray: %v", err)
	}
	if len(s.Devices) != 2 {
		t.Fatalf("len(Devices) = %d, want 2", len(s.Devices))
	}
	if s.NumRaidDevs != 2 {
		t.Errorf("NumRaidDevs = %d, want 2", s.NumRaidDevs)
	}
}

func TestProcessCreateArrayRejectsOutOfSequence(t *testing.T) {
	s := containerWithSpare(Raid5, 3, 0)
	mon := newTestMonitor(s)
	var dev Device
	dev.Vol.Map0 = Map{NumMembers: 3, DiskOrdTbl: []uint32{0, 1, 2}}

	if err := mon.ProcessCreateArray(CreateArrayUpdate{Device: dev, DevIdx: 5}); err == nil {
		t.Fatal("expected ErrRaceLost for an out-of-sequence dev_idx")
	}
	if err := mon.ProcessCreateArray(CreateArrayUpdate{Device: dev, DevIdx: 0}); err == nil {
		t.Fatal("expected ErrRaceLost: dev_idx 0 is already defined")
	}
}

func TestProcessCreateArrayRejectsOverlap(t *testing.T) {
	s := containerWithSpare(Raid5, 3, 0)
	mon := newTestMonitor(s)

	var dev Device
	dev.Vol.Map0 = Map{
		PBAOfLBA0:       2048, // collides with the existing volume's range
		BlocksPerMember: 50_000,
		Level:           Raid0,
		NumMembers:      3,
		DiskOrdTbl:      []uint32{0, 1, 2}, // and shares disks
	}

	if err := mon.ProcessCreateArray(CreateArrayUpdate{Device: dev, DevIdx: 1}); err == nil {
		t.Fatal("expected ErrRaceLost for an overlapping device placement")
	}
}

func TestDisksOverlap(t *testing.T) {
	a := &Map{NumMembers: 2, DiskOrdTbl: []uint32{0, 1}}
	b := &Map{NumMembers: 2, DiskOrdTbl: []uint32{1, 2}}
	c := &Map{NumMembers: 2, DiskOrdTbl: []uint32{2, 3}}
	if !disksOverlap(a, b) {
		t.Error("a and b share disk 1 and should overlap")
	}
	if disksOverlap(a, c) {
		t.Error("a and c share no disks and should not overlap")
	}
}
