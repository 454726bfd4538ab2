package imsm

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/intel-raid/imsm/util"
)

// MemberDevice is one block device externally discovered to (possibly)
// belong to a container (§4.4). ID is an opaque deterministic identifier
// (e.g. "major:minor") used only to break generation-number ties the same
// way twice.
type MemberDevice struct {
	ID     string
	File   util.File
	DSize  int64
	Serial [16]byte
}

// ResolvedMember pairs a MemberDevice with its slot in the authoritative
// super's disk table, or -1 if the device is a candidate spare whose
// serial is absent from that table.
type ResolvedMember struct {
	Device MemberDevice
	Index  int
}

// LoadedSuper is the result of a quorum load across a device set: the
// authoritative Super plus every member resolved against its disk table.
type LoadedSuper struct {
	Super   *Super
	Members []ResolvedMember
}

// LoadSuper assembles a consistent in-memory super by reading every
// member's MPB, discarding copies that fail signature or checksum,
// picking the highest generation_num (ties broken by MemberDevice.ID),
// re-reading that member as authoritative, then resolving every other
// member's disk-table slot by serial (§4.4, §8 property 4).
func LoadSuper(members []MemberDevice, log logrus.FieldLogger) (*LoadedSuper, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	type candidate struct {
		dev MemberDevice
		s   *Super
	}
	var candidates []candidate

	for _, m := range members {
		s, err := ReadMPB(m.File, m.DSize)
		if err != nil {
			log.WithError(err).WithField("device", m.ID).Debug("imsm: discarding member, mpb did not validate")
			continue
		}
		candidates = append(candidates, candidate{dev: m, s: s})
	}

	if len(candidates) == 0 {
		return nil, ErrNoValidCopy
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		switch {
		case c.s.GenerationNum > best.s.GenerationNum:
			best = c
		case c.s.GenerationNum == best.s.GenerationNum && c.dev.ID < best.dev.ID:
			best = c
		}
	}

	authoritative, err := ReadMPB(best.dev.File, best.dev.DSize)
	if err != nil {
		return nil, errors.Wrapf(err, "re-reading authoritative member %s", best.dev.ID)
	}

	loaded := &LoadedSuper{Super: authoritative}
	for _, m := range members {
		idx := -1
		for i := range authoritative.Disks {
			if serialsEqual(authoritative.Disks[i].Serial, m.Serial) {
				idx = i
				break
			}
		}
		loaded.Members = append(loaded.Members, ResolvedMember{Device: m, Index: idx})
	}

	return loaded, nil
}
