package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/archivist/pkg/archive"
	"mercator-hq/archivist/pkg/cli"
)

var growthCmd = &cobra.Command{
	Use:   "growth",
	Short: "Track table growth against archiving thresholds",
}

var growthTrackFlags struct {
	tables []string
}

var growthTrackCmd = &cobra.Command{
	Use:   "track",
	Short: "Sample row counts and sizes",
	Long: `Sample row counts and sizes for tables and record a growth snapshot.

Without --table every table with a retention policy is sampled.`,
	RunE: runGrowthTrack,
}

var growthNeedsCmd = &cobra.Command{
	Use:   "needs",
	Short: "List tables due for archiving",
	RunE:  runGrowthNeeds,
}

func init() {
	rootCmd.AddCommand(growthCmd)
	growthCmd.AddCommand(growthTrackCmd, growthNeedsCmd)

	growthTrackCmd.Flags().StringSliceVarP(&growthTrackFlags.tables, "table", "t", nil, "tables to sample (repeatable)")
}

func runGrowthTrack(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	tables := growthTrackFlags.tables
	if len(tables) == 0 {
		tables = a.policies.Tables()
	}
	if len(tables) == 0 {
		return cli.NewConfigError("retention.policies", "no tables to track; pass --table or configure policies")
	}

	ctx, cancel := commandContext()
	defer cancel()

	progress := cli.NewUnitProgress(os.Stderr, "tables")
	progress.Start(int64(len(tables)))

	snapshots := make([]*archive.TableGrowthSnapshot, 0, len(tables))
	for i, table := range tables {
		snap, err := a.svc.TrackTableGrowth(ctx, table)
		if err != nil {
			progress.Error(err)
			return cli.NewCommandError("growth track", err)
		}
		snapshots = append(snapshots, snap)
		progress.Update(int64(i + 1))
	}
	progress.Finish()

	return a.output(snapshots, func() {
		fmt.Printf("%-24s  %12s  %10s  %s\n", "TABLE", "ROWS", "SIZE", "LAST ARCHIVE")
		for _, s := range snapshots {
			last := "-"
			if s.LastArchiveDate != nil {
				last = s.LastArchiveDate.Format(time.RFC3339)
			}
			fmt.Printf("%-24s  %12d  %10s  %s\n", s.Table, s.RowCount, cli.FormatBytes(s.SizeBytes), last)
		}
	})
}

func runGrowthNeeds(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()

	tables, err := a.svc.GetTablesNeedingArchival(ctx)
	if err != nil {
		return cli.NewCommandError("growth needs", err)
	}
	sort.Strings(tables)

	return a.output(tables, func() {
		if len(tables) == 0 {
			fmt.Println("✓ No tables over their growth thresholds")
			return
		}
		for _, t := range tables {
			fmt.Println(t)
		}
	})
}
