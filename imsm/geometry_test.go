package imsm

import "testing"

func containerWithOneVolume(diskCount int, pba, blocksPerMember uint32) *Super {
	s := &Super{Version: VersionRAID5, NumDisks: byte(diskCount), NumRaidDevs: 1}
	s.Disks = make([]Disk, diskCount)
	for i := range s.Disks {
		s.Disks[i].TotalBlocks = 10_000_000
	}
	var dev Device
	dev.Vol.Map0 = Map{
		PBAOfLBA0:       pba,
		BlocksPerMember: blocksPerMember,
		Level:           Raid5,
		NumMembers:      byte(diskCount),
		DiskOrdTbl:      make([]uint32, diskCount),
	}
	for i := range dev.Vol.Map0.DiskOrdTbl {
		dev.Vol.Map0.DiskOrdTbl[i] = uint32(i)
	}
	s.Devices = []Device{dev}
	return s
}

func TestAvailSizeBelowReservedIsZero(t *testing.T) {
	if got := AvailSize(100); got != 0 {
		t.Errorf("AvailSize(100) = %d, want 0", got)
	}
}

func TestAvailSizeSubtractsTrailingReserve(t *testing.T) {
	total := uint32(imsmTrailingSectors + 500)
	if got := AvailSize(total); got != 500 {
		t.Errorf("AvailSize(%d) = %d, want 500", total, got)
	}
}

func TestExtentsAreSortedAndTerminated(t *testing.T) {
	s := containerWithOneVolume(3, 2048, 100_000)
	ext := Extents(s, 0)
	if len(ext) != 2 {
		t.Fatalf("Extents returned %d entries, want 2 (volume + sentinel)", len(ext))
	}
	if ext[0].Start != 2048 || ext[0].Size != 100_000 {
		t.Errorf("first extent = %+v, want {2048 100000}", ext[0])
	}
	if ext[1].Size != 0 {
		t.Errorf("sentinel extent has nonzero size: %+v", ext[1])
	}
	if ext[1].Start != 10_000_000-imsmTrailingSectors {
		t.Errorf("sentinel start = %d, want %d", ext[1].Start, 10_000_000-imsmTrailingSectors)
	}
}

func TestExtentsDisjoint(t *testing.T) {
	s := containerWithOneVolume(3, 2048, 100_000)
	// Add a second volume on the same disk occupying a later range.
	var dev2 Device
	dev2.Vol.Map0 = Map{
		PBAOfLBA0:       200_000,
		BlocksPerMember: 50_000,
		Level:           Raid0,
		NumMembers:      3,
		DiskOrdTbl:      []uint32{0, 1, 2},
	}
	s.Devices = append(s.Devices, dev2)
	s.NumRaidDevs = 2

	ext := Extents(s, 0)
	for i := 1; i < len(ext); i++ {
		prevEnd := ext[i-1].Start + ext[i-1].Size
		if ext[i].Start < prevEnd {
			t.Fatalf("extents overlap: %+v then %+v", ext[i-1], ext[i])
		}
	}
}

func TestHasRoomForFindsGapBeforeVolume(t *testing.T) {
	s := containerWithOneVolume(3, 200_000, 100_000)
	ext := Extents(s, 0)
	if !HasRoomFor(ext, 2048, 50_000) {
		t.Error("expected room before the existing volume")
	}
	if HasRoomFor(ext, 190_000, 50_000) {
		t.Error("expected no room overlapping the existing volume")
	}
}

func TestFindVolumeOffsetRequiresEnoughQualifyingDisks(t *testing.T) {
	s := containerWithOneVolume(4, 2048, 100_000)
	_, qualifying, ok := FindVolumeOffset(s, 5, 50_000)
	if ok {
		t.Fatal("expected failure: only 4 disks available for a 5-disk request")
	}
	if qualifying != 4 {
		t.Errorf("qualifying = %d, want 4", qualifying)
	}
}

func TestFindVolumeOffsetFindsCommonGap(t *testing.T) {
	s := containerWithOneVolume(3, 200_000, 100_000)
	offset, qualifying, ok := FindVolumeOffset(s, 3, 50_000)
	if !ok {
		t.Fatal("expected a common offset before the existing volume")
	}
	if qualifying != 3 {
		t.Errorf("qualifying = %d, want 3", qualifying)
	}
	if offset >= 200_000 {
		t.Errorf("offset %d should fall before the existing volume at 200000", offset)
	}
}
