// Package writer implements archive runs.
//
// A run moves the rows of one table older than a cutoff into a compressed
// archive file, in this order:
//
//  1. Take the table's archive lock in the catalog.
//  2. Finish any incomplete deletion left by an earlier run.
//  3. Select matching rows page by page in cursor order and stream them
//     into a JSON-lines gzip file (temp file, fsync, rename).
//  4. Register the file as pending.
//  5. Verify checksum, size and record count.
//  6. Mark the archive verified and delete exactly the archived rows
//     (timestamp before cutoff and cursor at most the highest extracted),
//     checkpointing progress in the catalog.
//  7. Release the lock.
//
// Source rows are only deleted for verified archives. A failed deletion
// leaves the archive verified with a resumable checkpoint.
package writer
