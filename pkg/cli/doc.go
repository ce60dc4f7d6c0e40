/*
Package cli provides command-line helpers for the archivist command.

Output Formatting:

Command results can be written as text, JSON or CSV:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, result); err != nil {
		return err
	}

CSV output is available for archived rows and search results; columns are
the sorted union of the row keys.

Exit Codes:

ExitCode maps archive errors to distinct process exit codes so scripts can
tell a held lock from a failed verification without parsing output.

Progress Reporting:

For multi-table operations, use the progress reporter:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(int64(len(tables)))
	for i, table := range tables {
		// Do work
		progress.Update(int64(i + 1))
	}
	progress.Finish()

Signal Handling:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()
	// Cancelled on SIGINT or SIGTERM
*/
package cli
