package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/archivist/pkg/cli"
)

var autoCmd = &cobra.Command{
	Use:   "auto",
	Short: "Archive every flagged table with auto_archive enabled",
	Long: `Archive every table whose latest growth snapshot exceeds a threshold and
whose retention policy has auto_archive enabled. A failure on one table does
not stop the others.

This is the same pass 'archivist serve' runs on the retention schedule.`,
	RunE: runAuto,
}

func init() {
	rootCmd.AddCommand(autoCmd)
}

func runAuto(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()

	result, err := a.svc.RunAuto(ctx)
	if err != nil {
		return cli.NewCommandError("auto", err)
	}

	if err := a.output(result, func() {
		fmt.Printf("Archived: %d  Skipped: %d  Failed: %d\n", len(result.Archived), len(result.Skipped), len(result.Errors))
		for _, r := range result.Results {
			fmt.Printf("  %-24s  %-16s  %d records\n", r.Table, r.Outcome, r.RecordCount)
		}
		for _, e := range result.Errors {
			fmt.Printf("  ✗ %s: %s\n", e.Table, e.Reason)
		}
	}); err != nil {
		return err
	}

	if len(result.Errors) > 0 {
		return cli.NewCommandError("auto", fmt.Errorf("%d table(s) failed", len(result.Errors)))
	}
	return nil
}
