package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ambience-earth/ambience/internal/eventlog"
	"github.com/ambience-earth/ambience/internal/rtc"
)

var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Print the newest log entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeLog, err := openLog()
		if err != nil {
			return err
		}
		defer closeLog()

		e, ok := store.Latest()
		if !ok {
			fmt.Println("Log is empty.")
			return nil
		}
		store.GotoLatest()
		printEntryDetail(store.AbsoluteNumber(), e)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List recent log entries, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("count")

		store, closeLog, err := openLog()
		if err != nil {
			return err
		}
		defer closeLog()

		entries := store.Recent(n)
		if len(entries) == 0 {
			fmt.Println("Log is empty.")
			return nil
		}

		fmt.Printf("%-6s %-9s %-16s %-5s %-14s %-6s %-7s %s\n", "SEQ", "TYPE", "DATE", "SLOT", "STOP", "ML", "SOIL", "DAY")
		fmt.Println(strings.Repeat("-", 80))
		for _, e := range entries {
			fmt.Printf("%-6d %-9s %-16s %-5s %-14s %-6s %-7s %d\n",
				e.Seq,
				e.Type,
				formatDate(entryDate(e)),
				slotColumn(e),
				stopColumn(e),
				mlColumn(e),
				soilColumn(e),
				e.LightDayKey)
		}
		return nil
	},
}

var dailyCmd = &cobra.Command{
	Use:   "daily [light-day-key]",
	Short: "Summarise one light day (default: today)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var key uint16
		if len(args) == 1 {
			k, err := strconv.ParseUint(args[0], 10, 16)
			if err != nil || k == 0 {
				return fmt.Errorf("invalid light-day key %q", args[0])
			}
			key = uint16(k)
		} else {
			key = rtc.LightDayKey(rtc.FromTime(time.Now()), lightsOn)
		}

		store, closeLog, err := openLog()
		if err != nil {
			return err
		}
		defer closeLog()

		sum := store.DailyTotalRange(key)
		fmt.Printf("Light day %d\n", key)
		fmt.Printf("  Feeds:    %d\n", sum.Feeds)
		fmt.Printf("  Total:    %d ml\n", sum.TotalMl)
		if sum.HasSnapshots {
			fmt.Printf("  Moisture: %d%% .. %d%%\n", sum.MinPercent, sum.MaxPercent)
		} else {
			fmt.Println("  Moisture: no snapshots")
		}
		return nil
	},
}

var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Erase every log entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return fmt.Errorf("refusing to wipe %s without --yes", logPath)
		}

		store, closeLog, err := openLog()
		if err != nil {
			return err
		}
		defer closeLog()

		if err := store.Wipe(); err != nil {
			return fmt.Errorf("could not wipe log: %w", err)
		}
		fmt.Printf("Wiped %s\n", logPath)
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the log layout and fill level",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeLog, err := openLog()
		if err != nil {
			return err
		}
		defer closeLog()

		layout := store.Layout()
		entries := store.Recent(layout.Slots)
		fmt.Printf("Image:        %s\n", logPath)
		fmt.Printf("Format:       v%d\n", eventlog.FormatVersion)
		fmt.Printf("Slots:        %d\n", layout.Slots)
		fmt.Printf("Head records: %d\n", layout.RingRecords)
		fmt.Printf("Entries:      %d\n", len(entries))
		fmt.Printf("Epoch:        %d\n", store.Epoch())
		if len(entries) > 0 {
			fmt.Printf("Newest:       #%d %s\n", entries[0].Seq, formatDate(entryDate(entries[0])))
			oldest := entries[len(entries)-1]
			fmt.Printf("Oldest:       #%d %s\n", oldest.Seq, formatDate(entryDate(oldest)))
		}
		return nil
	},
}

func init() {
	listCmd.Flags().IntP("count", "n", 20, "number of entries to show")
	wipeCmd.Flags().Bool("yes", false, "confirm the wipe")
}

func printEntryDetail(number uint32, e eventlog.Entry) {
	fmt.Printf("Entry #%d (seq %d)\n", number, e.Seq)
	fmt.Printf("  Type:      %s\n", e.Type)
	fmt.Printf("  Start:     %s\n", formatDate(e.Start))
	if e.Type == eventlog.TypeFeed {
		fmt.Printf("  End:       %s\n", formatDate(e.End))
		fmt.Printf("  Slot:      S%d\n", e.SlotIndex+1)
		fmt.Printf("  Started:   %s\n", e.StartReason)
		fmt.Printf("  Stopped:   %s\n", e.StopReason)
		fmt.Printf("  Volume:    %d ml (day %d ml)\n", e.FeedMl, e.DailyTotalMl)
		fmt.Printf("  Duration:  %s\n", time.Duration(e.DurationMs())*time.Millisecond)
		fmt.Printf("  Soil:      %d%% -> %d%%\n", e.SoilBefore, e.SoilAfter)
		if e.Has(eventlog.FlagRunoffMissing) {
			fmt.Println("  Warning:   expected runoff was not seen")
		}
		if e.Has(eventlog.FlagRunoffUnexpected) {
			fmt.Println("  Warning:   runoff seen on a slot that avoids it")
		}
	} else if e.Type == eventlog.TypeValuesSnapshot {
		fmt.Printf("  Soil:      %d%%\n", e.SoilBefore)
	}
	if e.HasBaseline() {
		fmt.Printf("  Baseline:  %d%%\n", e.BaselinePercent)
	}
	if e.DrybackPercent != eventlog.DrybackUnset {
		fmt.Printf("  Dryback:   %d%%\n", e.DrybackPercent)
	}
	fmt.Printf("  Light day: %d\n", e.LightDayKey)
}

func entryDate(e eventlog.Entry) rtc.DateTime {
	if e.Type == eventlog.TypeFeed && e.End.Valid() {
		return e.End
	}
	return e.Start
}

func formatDate(d rtc.DateTime) string {
	if !d.Valid() {
		return "-"
	}
	return d.Time(time.UTC).Format("2006-01-02 15:04")
}

func slotColumn(e eventlog.Entry) string {
	if e.Type != eventlog.TypeFeed {
		return "-"
	}
	return fmt.Sprintf("S%d", e.SlotIndex+1)
}

func stopColumn(e eventlog.Entry) string {
	if e.Type != eventlog.TypeFeed {
		return "-"
	}
	return e.StopReason.String()
}

func mlColumn(e eventlog.Entry) string {
	if e.Type != eventlog.TypeFeed {
		return "-"
	}
	return strconv.Itoa(int(e.FeedMl))
}

func soilColumn(e eventlog.Entry) string {
	if e.Type == eventlog.TypeFeed {
		return fmt.Sprintf("%d>%d", e.SoilBefore, e.SoilAfter)
	}
	return fmt.Sprintf("%d", e.SoilBefore)
}
