// Command imsmctl is a small operator CLI over the imsm package: examine a
// container's metadata, create a new container/volume across a set of
// block devices, or run the monitor loop against an already-created one.
package main

import (
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var log = logrus.New()

// runID correlates every log line emitted by one invocation, the way a
// long-running daemon tags a request id onto its whole call chain.
var runID = uuid.New().String()

var rootCmd = &cobra.Command{
	Use:   "imsmctl",
	Short: "Inspect and drive Intel Matrix Storage Manager containers",
}

var verbose bool

func init() {
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stdout)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cobra.OnInitialize(func() {
		if verbose {
			log.SetLevel(logrus.DebugLevel)
		}
	})
}

// logger returns the run-scoped log entry every subcommand should log
// through, so every line carries the same correlation id.
func logger() *logrus.Entry {
	return log.WithField("run", runID)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.WithField("run", runID).Error(err)
		os.Exit(1)
	}
}
