/*
Package fsm implements the File State Machine: the per-file engine that walks an archive header stream (via pkg/codec),
maps each entry onto a filesystem action, and executes it with correct
hard-link, suffix-renaming, permission, and crash-recovery semantics.

The engine is a stage dispatcher driven from a loop — MAP, MKDIRS,
PROCESS, FINI, with UNDO as a peer stage rather than an exception
path — plus directory-depth bookkeeping (dnlx), a last-directory cache
(ldn), and hard-link set resolution.

# Install loop

	INIT (read header, locate FI entry)
	  │
	  ▼
	NOTIFY (progress callback; may abort)
	  │
	  ▼
	MAP (lstat disk, plan action)
	  │
	  ▼
	PROCESS (materialize: regular/symlink/dir/fifo/device, hard links,
	         then commit: suffix rename, chmod, utime, chown, context)

There is no separate FINI step after NOTIFY: each file is committed
inside PROCESS, right after its content is written.

Any non-nil error from INIT, MAP or PROCESS, and an abort from NOTIFY,
transitions to UNDO (unlink the ";tid" temp, remove still-empty
directories this run created, record the failed-file slot) and stops
the loop. A clean end of archive (codec.ErrTrailer) ends the loop with
no error.

The ";tid" working-suffix discipline (pkg/fsm/suffix.go) is what makes
install crash-recoverable: a crash
between WRITE and RENAME leaves both the old and the new content on
disk under distinct names, so the next run can finish or discard the
temp without touching any other file.
*/
package fsm
