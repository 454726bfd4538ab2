package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/intel-raid/imsm/imsm"
)

var (
	examineBrief          bool
	examineDumpCompressed string
	examineDumpFormat     string
)

var examineCmd = &cobra.Command{
	Use:                   "examine DEVICE...",
	Short:                 "Decode and display the IMSM metadata on one or more block devices",
	Args:                  cobra.MinimumNArgs(1),
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, path := range args {
			if err := examineOne(path); err != nil {
				logger().WithField("device", path).Error(err)
			}
		}
		return nil
	},
}

func init() {
	examineCmd.Flags().BoolVarP(&examineBrief, "brief", "b", false, "print the one-line --brief form")
	examineCmd.Flags().StringVar(&examineDumpCompressed, "dump-compressed", "", "write the raw anchor sector, compressed, to this file for bug reports")
	examineCmd.Flags().StringVar(&examineDumpFormat, "dump-format", "lz4", "compression format for --dump-compressed: lz4 or xz")
	rootCmd.AddCommand(examineCmd)
}

func examineOne(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dsize, err := sizeOf(f)
	if err != nil {
		return err
	}

	s, err := imsm.ReadMPB(f, dsize)
	if err != nil {
		return err
	}

	if examineDumpCompressed != "" {
		if err := dumpAnchorTo(path, dsize, examineDumpCompressed, examineDumpFormat); err != nil {
			logger().WithField("device", path).WithError(err).Warn("imsmctl: dump-compressed failed")
		}
	}

	fmt.Printf("%s:\n", path)
	if examineBrief {
		fmt.Println(s.BriefExamine())
	} else {
		fmt.Println(s.Examine())
	}
	return nil
}

func sizeOf(f *os.File) (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// dumpAnchorTo re-reads the raw anchor sector and writes a compressed copy
// to outPath via imsm.DumpAnchor, in the codec named by format.
func dumpAnchorTo(path string, dsize int64, outPath, format string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var codec imsm.CompressionFormat
	switch format {
	case "lz4":
		codec = imsm.FormatLZ4
	case "xz":
		codec = imsm.FormatXZ
	default:
		return fmt.Errorf("unknown --dump-format %q: want lz4 or xz", format)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	return imsm.DumpAnchor(f, dsize, out, codec)
}
