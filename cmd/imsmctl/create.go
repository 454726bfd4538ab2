package main

import (
	"fmt"
	"os"

	satoriuuid "github.com/satori/go.uuid"
	"github.com/spf13/cobra"

	"github.com/intel-raid/imsm/imsm"
	"github.com/intel-raid/imsm/util"
)

var (
	createLevel      int
	createChunkKB    uint32
	createSizeMB     uint32
	createName       string
)

var createCmd = &cobra.Command{
	Use:                   "create DEVICE...",
	Short:                 "Create a new IMSM container and a single volume spanning DEVICE...",
	Args:                  cobra.MinimumNArgs(2),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCreate(args)
	},
}

func init() {
	createCmd.Flags().IntVar(&createLevel, "level", 5, "RAID level: 0, 1, 5, or 10")
	createCmd.Flags().Uint32Var(&createChunkKB, "chunk", 64, "chunk size in KiB (ignored for RAID-1)")
	createCmd.Flags().Uint32Var(&createSizeMB, "size", 0, "per-member volume size in MiB (0 = use all available space)")
	createCmd.Flags().StringVar(&createName, "name", "", "volume name (defaults to a generated identifier)")
	rootCmd.AddCommand(createCmd)
}

func runCreate(paths []string) error {
	type member struct {
		path string
		f    *os.File
		size int64
	}
	members := make([]member, 0, len(paths))
	for _, p := range paths {
		f, err := os.OpenFile(p, os.O_RDWR, 0)
		if err != nil {
			return fmt.Errorf("opening %s: %w", p, err)
		}
		defer f.Close()
		size, err := sizeOf(f)
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		members = append(members, member{path: p, f: f, size: size})
	}

	handler := imsm.IMSMHandler{}
	s := handler.InitSuper(len(members))

	// A container's FamilyNum only has to be unique to the host; a
	// UUIDv4's first four bytes are plenty, and it doubles as a diagnostic id to
	// match against a crash report tied to the same create invocation.
	familyUUID := satoriuuid.NewV4()
	familyBytes := familyUUID.Bytes()
	s.FamilyNum = uint32(familyBytes[0])<<24 | uint32(familyBytes[1])<<16 | uint32(familyBytes[2])<<8 | uint32(familyBytes[3])

	minAvail := ^uint32(0)
	for i, m := range members {
		disk := imsm.Disk{TotalBlocks: uint32(m.size / int64(util.SectorSize))}
		disk.SetSerial(diskSerial(m.path, m.f))
		disk.Status = imsm.SpareDisk | imsm.UsableDisk
		if err := handler.AddToSuper(s, i, disk); err != nil {
			return err
		}
		if avail := imsm.AvailSize(disk.TotalBlocks); avail < minAvail {
			minAvail = avail
		}
	}

	sizeSectors := createSizeMB * (1024 * 1024 / util.SectorSize)
	if sizeSectors == 0 || sizeSectors > minAvail {
		sizeSectors = minAvail
	}

	offset, qualifying, ok := imsm.FindVolumeOffset(s, len(members), sizeSectors)
	if !ok {
		return fmt.Errorf("no common offset found on %d of %d disks for a %d sector volume", qualifying, len(members), sizeSectors)
	}

	name := createName
	if name == "" {
		name = fmt.Sprintf("vol-%s", runID[:8])
	}

	spec := imsm.VolumeSpec{
		Name:        name,
		Level:       createLevel,
		RaidDisks:   len(members),
		ChunkBytes:  createChunkKB * 1024,
		SizeSectors: sizeSectors,
	}
	devIdx, err := imsm.AddVolume(s, spec, offset)
	if err != nil {
		return err
	}
	for slot := range members {
		if err := imsm.AssociateMember(s, devIdx, slot, slot); err != nil {
			return err
		}
	}

	for i, m := range members {
		target := imsm.SyncTarget{ID: m.path, File: m.f, DSize: m.size}
		if err := handler.StoreSuper(s, target); err != nil {
			return fmt.Errorf("writing metadata to %s: %w", m.path, err)
		}
		logger().WithField("device", m.path).WithField("disk_idx", i).Info("imsmctl: metadata written")
	}

	fmt.Printf("created %s: level=%d members=%d size=%d sectors family=%08x\n",
		name, createLevel, len(members), sizeSectors, s.FamilyNum)
	return nil
}

// diskSerial attempts a real SCSI INQUIRY, falling back to a
// path-derived serial when the collaborator isn't available — e.g. when
// DEVICE is a regular file standing in for a block device in a test rig.
func diskSerial(path string, f *os.File) string {
	dev := &imsm.SGDevice{FD: int(f.Fd())}
	serial, err := imsm.ReadSerial(dev)
	if err != nil {
		logger().WithField("device", path).WithError(err).Debug("imsmctl: falling back to a path-derived serial")
		return path
	}
	return string(serial[:])
}
