package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/intel-raid/imsm/imsm"
)

var monitorInterval time.Duration

var monitorCmd = &cobra.Command{
	Use:                   "monitor DEVICE...",
	Short:                 "Poll a container's members, react to failures and pick spares",
	Args:                  cobra.MinimumNArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMonitor(args)
	},
}

func init() {
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", 5*time.Second, "poll interval")
	rootCmd.AddCommand(monitorCmd)
}

// openMember is one member disk kept open for the lifetime of the monitor
// loop, paired with the SyncTarget SyncMetadata needs to flush to it.
type openMember struct {
	id   string
	file *os.File
	size int64
}

func runMonitor(paths []string) error {
	opened := make([]openMember, 0, len(paths))
	members := make([]imsm.MemberDevice, 0, len(paths))
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
		opened = append(opened, openMember{id: p, file: f, size: size})
		members = append(members, imsm.MemberDevice{ID: p, File: f, DSize: size})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log := logger()
	for {
		if err := pollOnce(log, opened, members); err != nil {
			log.WithError(err).Error("imsmctl: poll cycle failed")
		}

		select {
		case <-ctx.Done():
			log.Info("imsmctl: monitor stopping")
			return nil
		case <-time.After(monitorInterval):
		}
	}
}

// pollOnce runs one monitor cycle: reload the container by quorum, check
// every volume for a needed spare, apply any pick, and flush the result
// back to every member if anything changed.
func pollOnce(log *logrus.Entry, opened []openMember, members []imsm.MemberDevice) error {
	loaded, err := imsm.LoadSuper(members, log.Logger)
	if err != nil {
		return err
	}

	mon := imsm.NewMonitor(loaded.Super, log.Logger)

	for _, pick := range imsm.PickSpares(loaded.Super) {
		log.WithField("disk_idx", pick.DiskIdx).WithField("volume", pick.DevIdx).Info("imsmctl: activating spare")
		if err := mon.ProcessActivateSpare(imsm.ActivateSpareUpdate{
			DiskIdx: pick.DiskIdx,
			Slot:    pick.Slot,
			Array:   pick.DevIdx,
		}); err != nil {
			log.WithError(err).Warn("imsmctl: activate_spare rejected")
		}
	}

	for i := range loaded.Super.Devices {
		m := &loaded.Super.Devices[i].Vol.Map0
		log.WithField("volume", i).WithField("state", m.State.String()).Debug("imsmctl: volume state")
	}

	targets := make([]imsm.SyncTarget, 0, len(opened))
	for _, m := range opened {
		targets = append(targets, imsm.SyncTarget{ID: m.id, File: m.file, DSize: m.size})
	}
	return mon.SyncMetadata(targets)
}
