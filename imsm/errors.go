package imsm

import "github.com/pkg/errors"

// Sentinel root causes (§7). Callers recover the one that applies via
// errors.Cause(err) == imsm.ErrBadChecksum, etc. Where a failure matches one
// of these, the function returns it, wrapped with errors.Wrap/Wrapf where
// context (device name, offset, index) is added. Other failures, such as an
// out-of-range device or slot index or an underlying read/write error, carry
// no sentinel cause; ErrIO and ErrNoSpace are not returned by this package.
var (
	// ErrBadSignature: the buffer does not begin with MPBSignature.
	ErrBadSignature = errors.New("imsm: bad signature")
	// ErrBadVersion: the signature prefix matched but the version suffix did not.
	ErrBadVersion = errors.New("imsm: unrecognized version")
	// ErrBadSize: the declared mpb_size is inconsistent with the buffer.
	ErrBadSize = errors.New("imsm: bad mpb size")
	// ErrBadChecksum: the whole-block arithmetic checksum did not verify.
	ErrBadChecksum = errors.New("imsm: bad checksum")
	// ErrIO: a read/write/seek/ioctl failed.
	ErrIO = errors.New("imsm: i/o error")
	// ErrNoSpace: geometry validation found no disk set large enough.
	ErrNoSpace = errors.New("imsm: not enough space")
	// ErrOverCapacity: a third volume, third container, or >2-member RAID-1 was attempted.
	ErrOverCapacity = errors.New("imsm: over capacity")
	// ErrRaceLost: create_array lost a race or arrived out of sequence.
	ErrRaceLost = errors.New("imsm: update lost race")
	// ErrUnknownDisk: activate_spare referenced a disk no longer in the container.
	ErrUnknownDisk = errors.New("imsm: unknown disk index")
	// ErrNoValidCopy: every member's MPB failed signature or checksum.
	ErrNoValidCopy = errors.New("imsm: no valid mpb found on any member")
)
