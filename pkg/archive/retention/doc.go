// Package retention drives automatic archiving.
//
// Runner.RunAuto asks the growth tracker which tables need archiving and
// archives those whose retention policy enables auto-archive, with the cutoff
// derived from the policy's archive_after_days. Tables run in parallel up to
// the configured concurrency; a failing table, including one whose archive
// lock is held elsewhere, is reported without affecting the others.
//
// Scheduler runs RunAuto on a cron schedule for long-running deployments:
//
//	runner := retention.NewRunner(writer, tracker, policies, 2, collector)
//	scheduler := retention.NewScheduler(runner, "0 3 * * *")
//	if err := scheduler.Start(ctx); err != nil {
//	    return err
//	}
//	defer scheduler.Stop()
package retention
