package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ambience-earth/ambience/internal/constants"
	"github.com/ambience-earth/ambience/internal/eventlog"
	"github.com/ambience-earth/ambience/internal/region"
)

var (
	logPath  string
	logSize  int64
	lightsOn uint16
)

var rootCmd = &cobra.Command{
	Use:     "feedlog",
	Short:   "Inspect an ambience event log image",
	Version: constants.Version,
	Long: `feedlog reads the event log file written by the ambience daemon.
Stop the daemon before running write operations such as wipe.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&logPath, "log", "l", "", "path to the event log image (required)")
	rootCmd.PersistentFlags().Int64Var(&logSize, "size", 0, "log image size in bytes (default: size of the existing file)")
	rootCmd.PersistentFlags().Uint16Var(&lightsOn, "lights-on", 6*60, "lights-on time in minutes after midnight, for light-day keys")
	rootCmd.MarkPersistentFlagRequired("log")

	rootCmd.AddCommand(latestCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(dailyCmd)
	rootCmd.AddCommand(wipeCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(exportCmd)
}

// openLog opens an existing log image. The file is never resized unless
// --size is given explicitly.
func openLog() (*eventlog.Store, func(), error) {
	fi, err := os.Stat(logPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("log image %s does not exist", logPath)
		}
		return nil, nil, err
	}
	size := logSize
	if size == 0 {
		size = fi.Size()
	}

	r, err := region.OpenFile(logPath, size)
	if err != nil {
		return nil, nil, err
	}
	store, err := eventlog.Open(r)
	if err != nil {
		r.Close()
		return nil, nil, fmt.Errorf("could not open event log: %w", err)
	}
	store.SetLightsOn(lightsOn)

	closer := func() {
		if err := r.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not sync log image: %v\n", err)
		}
		r.Close()
	}
	return store, closer, nil
}
