package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/archivist/pkg/archive"
	"mercator-hq/archivist/pkg/cli"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Run, verify and inspect archives",
	Long: `Run, verify and inspect archives.

Subcommands:
  run      - Archive a table's rows older than a cutoff
  verify   - Re-check an archive file against its catalog record
  resume   - Finish source deletion for a verified archive
  list     - List a table's archives, most recent first
  show     - Show one archive record
  summary  - Summarise archives per table`,
}

var archiveRunFlags struct {
	table  string
	cutoff string
	days   int
}

var archiveRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Archive a table's rows older than a cutoff",
	Long: `Archive a table's rows older than a cutoff.

Rows are written to a compressed archive file, verified against the catalog
record, and only then deleted from the source table. Without --cutoff or
--days the cutoff comes from the table's retention policy.

Examples:
  # Use the retention policy
  archivist archive run --table audit_logs

  # Archive everything before 2025-01-01
  archivist archive run --table audit_logs --cutoff 2025-01-01

  # Archive rows older than 30 days
  archivist archive run --table sessions --days 30`,
	RunE: runArchiveRun,
}

var archiveListFlags struct {
	table string
	limit int
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a table's archives",
	RunE:  runArchiveList,
}

var archiveVerifyCmd = &cobra.Command{
	Use:   "verify <uuid>",
	Short: "Verify an archive file against its catalog record",
	Args:  cobra.ExactArgs(1),
	RunE:  runArchiveVerify,
}

var archiveResumeCmd = &cobra.Command{
	Use:   "resume <uuid>",
	Short: "Finish source deletion for a verified archive",
	Args:  cobra.ExactArgs(1),
	RunE:  runArchiveResume,
}

var archiveShowCmd = &cobra.Command{
	Use:   "show <uuid>",
	Short: "Show an archive record",
	Args:  cobra.ExactArgs(1),
	RunE:  runArchiveShow,
}

var archiveSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarise archives per table",
	RunE:  runArchiveSummary,
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.AddCommand(archiveRunCmd, archiveListCmd, archiveVerifyCmd, archiveResumeCmd, archiveShowCmd, archiveSummaryCmd)

	archiveRunCmd.Flags().StringVarP(&archiveRunFlags.table, "table", "t", "", "table to archive (required)")
	archiveRunCmd.Flags().StringVar(&archiveRunFlags.cutoff, "cutoff", "", "archive rows older than this time (RFC3339 or YYYY-MM-DD)")
	archiveRunCmd.Flags().IntVar(&archiveRunFlags.days, "days", 0, "archive rows older than this many days")
	archiveRunCmd.MarkFlagRequired("table")

	archiveListCmd.Flags().StringVarP(&archiveListFlags.table, "table", "t", "", "table to list (required)")
	archiveListCmd.Flags().IntVarP(&archiveListFlags.limit, "limit", "n", 20, "maximum archives to list (0 for all)")
	archiveListCmd.MarkFlagRequired("table")
}

func runArchiveRun(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	cutoff, err := resolveCutoff(archiveRunFlags.cutoff, archiveRunFlags.days, time.Now().UTC(),
		func() (time.Time, bool) { return a.svc.PolicyCutoff(archiveRunFlags.table) })
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	result, err := a.svc.ArchiveTable(ctx, archiveRunFlags.table, cutoff)
	if err != nil {
		return cli.NewCommandError("archive run", err)
	}

	if err := a.output(result, func() { printArchiveResult(result, cutoff) }); err != nil {
		return err
	}
	if result.Err != nil {
		return cli.NewCommandError("archive run", result.Err)
	}
	return nil
}

func printArchiveResult(r *archive.ArchiveResult, cutoff time.Time) {
	switch {
	case r.Success && r.Outcome == archive.OutcomeNoop:
		fmt.Printf("✓ No rows in %s older than %s\n", r.Table, cutoff.Format(time.RFC3339))
		return
	case r.Success:
		fmt.Printf("✓ Archived %s\n", r.Table)
	default:
		fmt.Printf("✗ Archive of %s ended with outcome %s\n", r.Table, r.Outcome)
	}

	if r.ArchiveUUID != "" {
		fmt.Printf("  Archive:  %s\n", r.ArchiveUUID)
		fmt.Printf("  File:     %s (%s)\n", r.FilePath, cli.FormatBytes(r.FileSizeBytes))
	}
	fmt.Printf("  Records:  %d\n", r.RecordCount)
	fmt.Printf("  Deleted:  %d\n", r.DeletedCount)
	fmt.Printf("  Duration: %s\n", r.Duration.Round(time.Millisecond))
	if r.Outcome == archive.OutcomePartialDeletion && r.ArchiveUUID != "" {
		fmt.Printf("  Resume with: archivist archive resume %s\n", r.ArchiveUUID)
	}
}

func runArchiveVerify(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()

	id := args[0]
	ok, err := a.svc.VerifyArchive(ctx, id)
	var verr *archive.VerificationError
	if err != nil && !errors.As(err, &verr) {
		return cli.NewCommandError("archive verify", err)
	}

	record, err := a.svc.GetArchive(ctx, id)
	if err != nil {
		return cli.NewCommandError("archive verify", err)
	}

	// A verified record keeps its status; the mismatch comes back as an error.
	reason := record.Error
	if verr != nil {
		reason = verr.Error()
	}

	out := map[string]any{"uuid": id, "verified": ok, "status": record.Status, "error": reason}
	if err := a.output(out, func() {
		if ok {
			fmt.Printf("✓ Archive %s matches its catalog record\n", record.ShortID())
		} else {
			fmt.Printf("✗ Archive %s failed verification: %s\n", record.ShortID(), reason)
		}
	}); err != nil {
		return err
	}

	if !ok {
		if verr == nil {
			verr = archive.NewVerificationError(id, reason, nil)
		}
		return cli.NewCommandError("archive verify", verr)
	}
	return nil
}

func runArchiveResume(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()

	result, err := a.svc.ResumeDeletion(ctx, args[0])
	if err != nil {
		return cli.NewCommandError("archive resume", err)
	}

	if err := a.output(result, func() {
		if result.Success {
			fmt.Printf("✓ Source deletion complete for %s (%d rows deleted)\n", result.Table, result.DeletedCount)
		} else {
			fmt.Printf("✗ Source deletion for %s stopped after %d rows: %s\n", result.Table, result.DeletedCount, result.Error)
		}
	}); err != nil {
		return err
	}
	if result.Err != nil {
		return cli.NewCommandError("archive resume", result.Err)
	}
	return nil
}

func runArchiveList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()

	records, err := a.svc.GetTableArchives(ctx, archiveListFlags.table, archiveListFlags.limit)
	if err != nil {
		return cli.NewCommandError("archive list", err)
	}

	return a.output(records, func() {
		if len(records) == 0 {
			fmt.Printf("No archives for %s\n", archiveListFlags.table)
			return
		}
		fmt.Printf("%-8s  %-9s  %-20s  %10s  %10s  %s\n", "ID", "STATUS", "CUTOFF", "RECORDS", "SIZE", "DELETION")
		for _, r := range records {
			deletion := "complete"
			if !r.DeletionComplete {
				deletion = fmt.Sprintf("%d rows", r.DeletedCount)
			}
			fmt.Printf("%-8s  %-9s  %-20s  %10d  %10s  %s\n",
				r.ShortID(), r.Status, r.CutoffDate.Format(time.RFC3339), r.RecordCount, cli.FormatBytes(r.FileSizeBytes), deletion)
		}
	})
}

func runArchiveShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()

	r, err := a.svc.GetArchive(ctx, args[0])
	if err != nil {
		if errors.Is(err, archive.ErrArchiveNotFound) {
			return cli.NewCommandError("archive show", fmt.Errorf("no archive %s", args[0]))
		}
		return cli.NewCommandError("archive show", err)
	}

	return a.output(r, func() {
		fmt.Printf("Archive %s\n", r.UUID)
		fmt.Printf("  Table:     %s\n", r.Table)
		fmt.Printf("  Status:    %s\n", r.Status)
		if r.Error != "" {
			fmt.Printf("  Error:     %s\n", r.Error)
		}
		fmt.Printf("  Cutoff:    %s\n", r.CutoffDate.Format(time.RFC3339))
		if r.PeriodStart != nil {
			fmt.Printf("  Period:    %s to %s\n", r.PeriodStart.Format(time.RFC3339), r.CutoffDate.Format(time.RFC3339))
		}
		fmt.Printf("  Records:   %d\n", r.RecordCount)
		fmt.Printf("  File:      %s (%s)\n", r.FilePath, cli.FormatBytes(r.FileSizeBytes))
		fmt.Printf("  Checksum:  %s\n", r.Checksum)
		fmt.Printf("  Deleted:   %d (complete: %t)\n", r.DeletedCount, r.DeletionComplete)
	})
}

func runArchiveSummary(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext()
	defer cancel()

	summary, err := a.svc.GetArchiveSummary(ctx)
	if err != nil {
		return cli.NewCommandError("archive summary", err)
	}

	return a.output(summary, func() {
		fmt.Printf("%-24s  %8s  %8s  %12s  %10s  %s\n", "TABLE", "ARCHIVES", "FAILED", "RECORDS", "SIZE", "LAST ARCHIVE")
		for _, t := range summary.Tables {
			last := "-"
			if t.LastArchive != nil {
				last = t.LastArchive.Format(time.RFC3339)
			}
			fmt.Printf("%-24s  %8d  %8d  %12d  %10s  %s\n",
				t.Table, t.Archives, t.Failed, t.Records, cli.FormatBytes(t.Bytes), last)
			if t.IncompleteDeletions > 0 {
				fmt.Printf("  %d archive(s) with incomplete source deletion\n", t.IncompleteDeletions)
			}
		}
		fmt.Printf("\nTotal: %d archives, %d records, %s\n", summary.Archives, summary.Records, cli.FormatBytes(summary.Bytes))
	})
}
