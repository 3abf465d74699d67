/*
Package journal durably records FSM pending writes and their commits so
a transaction interrupted mid-install can be resumed or cleaned up.
It implements pkg/fsm.JournalRecorder.

The storage engine is hashicorp/raft-boltdb's BoltStore, reused purely
as an append-only durable log (its raft.LogStore methods); no raft.Raft
instance is ever constructed here and no consensus runs.
*/
package journal
