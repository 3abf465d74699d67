/*
Package metrics defines and registers the Prometheus metrics exposed by
the package-management engine: disk-space accounting, problem-set
counts, orderer relaxations, and FSM/transaction timings.

# Metrics Catalog

Record Store:

pkgtx_packages_installed:
  - Type: Gauge
  - Description: total packages currently tracked in the record store

Disk-space accounting:

pkgtx_fs_blocks_free{mountpoint}:
  - Type: Gauge
  - Description: free blocks remaining after the running transaction's debits

pkgtx_fs_inodes_free{mountpoint}:
  - Type: Gauge
  - Description: free inodes remaining after the running transaction's debits

Problem set:

pkgtx_problems_total{kind}:
  - Type: Counter
  - Description: problems recorded by kind (REQUIRES, CONFLICT, DISKSPACE, ...)

Orderer:

pkgtx_unordered_elements_total:
  - Type: Counter
  - Description: elements the orderer placed only by dropping an edge

FSM and transaction timings:

pkgtx_fsm_stage_duration_seconds{stage,goal}:
  - Type: Histogram
  - Description: time spent in each FSM stage, labeled by goal (pkginstall/pkgerase)

pkgtx_transaction_duration_seconds:
  - Type: Histogram
  - Description: time taken for a full run() to complete

pkgtx_files_processed_total{action}:
  - Type: Counter
  - Description: files processed by direction (install, erase)

pkgtx_transactions_total{outcome}:
  - Type: Counter
  - Description: transaction runs by outcome (ok, failed, aborted)

pkgtx_rollbacks_total:
  - Type: Counter
  - Description: inverse-transaction rollbacks executed

# Usage

	timer := metrics.NewTimer()
	// ... drive the FSM for one file ...
	timer.ObserveDurationVec(metrics.FSMStageDuration, "process", "pkginstall")

	http.Handle("/metrics", metrics.Handler())
*/
package metrics
