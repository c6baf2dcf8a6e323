package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ambience-earth/ambience/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Copy the log into a SQLite database",
	Long: `export writes every log entry into the feed_events table of a SQLite
database. Entries already present are skipped, so the same database can be
refreshed from newer images.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("sqlite")
		deviceID, _ := cmd.Flags().GetString("device-id")
		tz, _ := cmd.Flags().GetString("timezone")

		loc, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("invalid timezone %q: %w", tz, err)
		}

		store, closeLog, err := openLog()
		if err != nil {
			return err
		}
		defer closeLog()

		archive, err := export.Open(dbPath)
		if err != nil {
			return err
		}
		defer archive.Close()

		events := export.Events(store, deviceID, "", loc, time.Now())
		added, err := archive.Write(events)
		if err != nil {
			return err
		}
		total, err := archive.Count(deviceID)
		if err != nil {
			return err
		}
		fmt.Printf("Exported %d new entries to %s (%d stored for %s)\n", added, dbPath, total, deviceID)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("sqlite", "feedlog.db", "path of the SQLite database to write")
	exportCmd.Flags().String("device-id", "ambience", "device id recorded with each entry")
	exportCmd.Flags().String("timezone", "Local", "timezone of the log's dates")
}
