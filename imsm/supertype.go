package imsm

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// TextVersion derives the container/subarray path mdadm surfaces as an
// array's text_version, e.g. "/md0/1" (§6, §D.2; getinfo_super_imsm in the
// original: `sprintf(info->text_version, "/%s/%d", devnum2devname(...),
// info->container_member)`).
func (s *Super) TextVersion(containerName string, subarrayIndex int) string {
	return fmt.Sprintf("/%s/%d", containerName, subarrayIndex)
}

// levelName renders a RaidLevel/EffectiveLevel pairing the way mdadm's own
// text reports do.
func levelName(level int) string {
	switch level {
	case 0:
		return "raid0"
	case 1:
		return "raid1"
	case 5:
		return "raid5"
	case 10:
		return "raid10"
	default:
		return fmt.Sprintf("raid%d", level)
	}
}

// Examine renders a full multi-line textual report of s, the Go analogue
// of `mdadm --examine` against an IMSM member (§D supplemented feature,
// examine_super_imsm in the original).
func (s *Super) Examine() string {
	var b strings.Builder
	fmt.Fprintf(&b, "          Magic : %s\n", MPBSignature)
	fmt.Fprintf(&b, "        Version : %s\n", s.Version)
	fmt.Fprintf(&b, "    Orig Family : %08x\n", s.FamilyNum)
	fmt.Fprintf(&b, "     Generation : %08x\n", s.GenerationNum)
	fmt.Fprintf(&b, "           Disks : %d\n", s.NumDisks)
	fmt.Fprintf(&b, "    RAID Devices : %d\n", s.NumRaidDevs)

	for i := range s.Disks {
		d := &s.Disks[i]
		fmt.Fprintf(&b, "\n  Disk%02d Serial : %s\n", i, d.SerialString())
		fmt.Fprintf(&b, "          State : %s\n", diskStatusString(d.Status))
		fmt.Fprintf(&b, "             Id : %08x\n", d.SCSIID)
		fmt.Fprintf(&b, "    Total Blocks : %d\n", d.TotalBlocks)
	}

	for i := range s.Devices {
		dev := &s.Devices[i]
		m := &dev.Vol.Map0
		fmt.Fprintf(&b, "\n[%s]:\n", dev.NameString())
		fmt.Fprintf(&b, "           Raid Level : %s\n", levelName(m.EffectiveLevel()))
		fmt.Fprintf(&b, "              Members : %d\n", m.NumMembers)
		fmt.Fprintf(&b, "           Array Size : %d\n", dev.ArraySize())
		fmt.Fprintf(&b, "          Per Dev Size : %d\n", m.BlocksPerMember)
		fmt.Fprintf(&b, "         Sector Offset : %d\n", m.PBAOfLBA0)
		fmt.Fprintf(&b, "           Chunk Size : %d sectors\n", m.BlocksPerStrip)
		fmt.Fprintf(&b, "            Map State : %s\n", m.State)
		fmt.Fprintf(&b, "                Dirty : %t\n", dev.Vol.Dirty)
	}

	return b.String()
}

// BriefExamine renders the container-level one-line summary mdadm's
// --examine --brief prints against an IMSM member (§6, §D supplemented
// feature; brief_examine_super_imsm in the original:
// `printf("ARRAY /dev/imsm family=%08x metadata=external:imsm\n", ...)`).
func (s *Super) BriefExamine() string {
	return fmt.Sprintf("ARRAY /dev/imsm family=%08x metadata=external:imsm", s.FamilyNum)
}

func diskStatusString(st DiskStatus) string {
	var flags []string
	if st.Has(ConfiguredDisk) {
		flags = append(flags, "configured")
	}
	if st.Has(FailedDisk) {
		flags = append(flags, "failed")
	}
	if st.Has(SpareDisk) {
		flags = append(flags, "spare")
	}
	if st.Has(UsableDisk) {
		flags = append(flags, "usable")
	}
	if len(flags) == 0 {
		return "unknown"
	}
	return strings.Join(flags, ",")
}

// CompareResult is the outcome of comparing two supers believed to
// describe the same container, the Go analogue of compare_super's int
// return (§D supplemented feature).
type CompareResult struct {
	Equal  bool
	Reason string
}

// Compare reports whether a and b describe the same container generation,
// checking in order: family number, generation number, disk and device
// counts, then each disk's serial. Device records themselves are not
// compared (§D).
func Compare(a, b *Super) CompareResult {
	if a.FamilyNum != b.FamilyNum {
		return CompareResult{Equal: false, Reason: "family_num mismatch"}
	}
	if a.GenerationNum != b.GenerationNum {
		return CompareResult{Equal: false, Reason: "generation_num mismatch"}
	}
	if a.NumDisks != b.NumDisks || a.NumRaidDevs != b.NumRaidDevs {
		return CompareResult{Equal: false, Reason: "disk/device count mismatch"}
	}
	for i := range a.Disks {
		if a.Disks[i].SerialString() != b.Disks[i].SerialString() {
			return CompareResult{Equal: false, Reason: fmt.Sprintf("disk %d serial mismatch", i)}
		}
	}
	return CompareResult{Equal: true}
}

// SuperHandler is the dispatch surface a container manager drives a
// metadata engine through, the Go analogue of mdadm's `struct superswitch`
// restricted to the operations this engine implements (§6). IMSMHandler is
// the only implementation; the interface exists so callers (and tests) can
// substitute a fake without depending on imsm's internals.
type SuperHandler interface {
	// MatchMetadataDesc reports whether desc names this engine: "imsm",
	// "external:imsm", or any string beginning with "imsm/".
	MatchMetadataDesc(desc string) bool

	// LoadSuper performs a quorum load across members.
	LoadSuper(members []MemberDevice) (*LoadedSuper, error)

	// InitSuper creates an empty container super sized for numDisks.
	InitSuper(numDisks int) *Super

	// AddToSuper records disk as occupying disk-table slot diskIdx.
	AddToSuper(s *Super, diskIdx int, disk Disk) error

	// StoreSuper encodes and writes s to one target.
	StoreSuper(s *Super, target SyncTarget) error

	// ValidateGeometry finds a placement for spec, or ok=false if none
	// of the container's disks have room.
	ValidateGeometry(s *Super, raiddisks int, sizeSectors uint32) (offset uint32, ok bool)

	// GetInfoSuper summarizes the volume at devIdx.
	GetInfoSuper(s *Super, devIdx int) (VolumeInfo, error)

	// ExamineSuper renders s as a full textual report.
	ExamineSuper(s *Super) string

	// CompareSuper reports whether a and b are the same container
	// generation.
	CompareSuper(a, b *Super) CompareResult
}

// VolumeInfo is the summary GetInfoSuper returns, the Go analogue of
// mdu_array_info_t as populated by getinfo_super_imsm (§6).
type VolumeInfo struct {
	Name        string
	Level       int
	RaidDisks   int
	ArraySize   uint64
	ChunkSectors uint16
	State       MapState
}

// IMSMHandler is the concrete SuperHandler backing this package's engine.
type IMSMHandler struct{}

var _ SuperHandler = IMSMHandler{}

func (IMSMHandler) MatchMetadataDesc(desc string) bool {
	return desc == "imsm" || desc == "external:imsm" || strings.HasPrefix(desc, "imsm/")
}

func (IMSMHandler) LoadSuper(members []MemberDevice) (*LoadedSuper, error) {
	return LoadSuper(members, nil)
}

func (IMSMHandler) InitSuper(numDisks int) *Super {
	s := &Super{Version: VersionRAID5}
	EnsureCapacity(s, numDisks)
	return s
}

func (IMSMHandler) AddToSuper(s *Super, diskIdx int, disk Disk) error {
	for len(s.Disks) <= diskIdx {
		s.Disks = append(s.Disks, Disk{})
	}
	s.Disks[diskIdx] = disk
	s.NumDisks = byte(len(s.Disks))
	EnsureCapacity(s, len(s.Disks))
	return nil
}

func (IMSMHandler) StoreSuper(s *Super, target SyncTarget) error {
	return WriteMPB(target.File, target.DSize, s)
}

func (IMSMHandler) ValidateGeometry(s *Super, raiddisks int, sizeSectors uint32) (uint32, bool) {
	offset, _, ok := FindVolumeOffset(s, raiddisks, sizeSectors)
	return offset, ok
}

func (IMSMHandler) GetInfoSuper(s *Super, devIdx int) (VolumeInfo, error) {
	dev := s.DeviceAt(devIdx)
	if dev == nil {
		return VolumeInfo{}, errors.Errorf("imsm: no device %d", devIdx)
	}
	m := &dev.Vol.Map0
	return VolumeInfo{
		Name:         dev.NameString(),
		Level:        m.EffectiveLevel(),
		RaidDisks:    int(m.NumMembers),
		ArraySize:    dev.ArraySize(),
		ChunkSectors: m.BlocksPerStrip,
		State:        m.State,
	}, nil
}

func (IMSMHandler) ExamineSuper(s *Super) string { return s.Examine() }

func (IMSMHandler) CompareSuper(a, b *Super) CompareResult { return Compare(a, b) }
