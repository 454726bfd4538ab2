package imsm

import (
	"testing"

	"github.com/go-test/deep"
	"github.com/intel-raid/imsm/util"
)

func TestWriteReadMPBRoundTrip(t *testing.T) {
	const diskSize = 4 << 20 // 4 MiB
	f := util.NewMemFile(diskSize)

	s := sampleSuper()
	if err := WriteMPB(f, diskSize, s); err != nil {
		t.Fatalf("WriteMPB: %v", err)
	}

	got, err := ReadMPB(f, diskSize)
	if err != nil {
		t.Fatalf("ReadMPB: %v", err)
	}

	if diff := deep.Equal(s, got); diff != nil {
		t.Errorf("anchor round trip mismatch: %v", diff)
	}
}

func TestReadMPBHandlesExtendedTail(t *testing.T) {
	const diskSize = 4 << 20
	f := util.NewMemFile(diskSize)

	// Build a super whose device table spans many disks so the encoded
	// size is forced past one sector.
	s := sampleSuper()
	for i := 0; i < 20; i++ {
		var d Disk
		d.SetSerial("EXTRA0000000000")
		d.TotalBlocks = 1_000_000
		s.Disks = append(s.Disks, d)
	}
	s.NumDisks = byte(len(s.Disks))

	if err := WriteMPB(f, diskSize, s); err != nil {
		t.Fatalf("WriteMPB: %v", err)
	}
	if s.MPBSize <= util.SectorSize {
		t.Fatalf("test setup failed to exceed one sector: mpb_size=%d", s.MPBSize)
	}

	got, err := ReadMPB(f, diskSize)
	if err != nil {
		t.Fatalf("ReadMPB: %v", err)
	}
	if diff := deep.Equal(s, got); diff != nil {
		t.Errorf("extended-tail round trip mismatch: %v", diff)
	}
}

func TestZeroAnchorClearsSignature(t *testing.T) {
	const diskSize = 4 << 20
	f := util.NewMemFile(diskSize)
	s := sampleSuper()
	if err := WriteMPB(f, diskSize, s); err != nil {
		t.Fatalf("WriteMPB: %v", err)
	}
	if err := ZeroAnchor(f, diskSize); err != nil {
		t.Fatalf("ZeroAnchor: %v", err)
	}
	if _, err := ReadMPB(f, diskSize); err == nil {
		t.Fatal("expected ReadMPB to fail against a zeroed anchor")
	}
}
