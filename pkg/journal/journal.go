// Package journal implements the durable write-ahead log backing FSM
// crash recovery alongside the ";tid" suffix discipline: every
// CREATE/BACKUP/ALTNAME/SAVE write records
// its temp path before the commit rename, and the record is cleared
// once the rename lands. On restart, Pending(tid) replays the log and
// reports every path whose temp write was never confirmed committed, so
// the caller can finish or discard it before resuming the transaction.
//
// It implements pkg/fsm.JournalRecorder.
//
// The storage engine is raftboltdb.BoltStore reused as a plain durable
// append-only log: no raft.Raft instance is ever constructed and no
// consensus runs — there is nothing here to agree on, only one
// process's own crash-recovery record.
package journal

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// opKind distinguishes a pending write from its eventual commit.
type opKind string

const (
	opPending   opKind = "pending"
	opCommitted opKind = "committed"
)

type record struct {
	Op       opKind `json:"op"`
	TID      uint32 `json:"tid"`
	Path     string `json:"path"`
	TempPath string `json:"temp_path,omitempty"`
}

// Entry is one unresolved write the journal recovered: a path whose
// ";tid" temp was recorded as pending but never confirmed committed.
type Entry struct {
	Path     string
	TempPath string
}

// Journal is a durable, bbolt-backed append-only log of FSM pending and
// committed writes, used to recover after a crash between WRITE and
// RENAME.
type Journal struct {
	mu    sync.Mutex
	store *raftboltdb.BoltStore
	next  uint64
}

// Open opens (creating if absent) the journal file at path.
func Open(path string) (*Journal, error) {
	store, err := raftboltdb.NewBoltStore(path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	last, err := store.LastIndex()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("journal: last index: %w", err)
	}
	return &Journal{store: store, next: last + 1}, nil
}

func (j *Journal) Close() error {
	return j.store.Close()
}

func (j *Journal) append(r record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("journal: encode record: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	idx := j.next
	if err := j.store.StoreLog(&raft.Log{Index: idx, Data: data}); err != nil {
		return fmt.Errorf("journal: store log: %w", err)
	}
	j.next++
	return nil
}

// RecordPending satisfies pkg/fsm.JournalRecorder: called after the
// ";tid" temp is written, before the commit rename.
func (j *Journal) RecordPending(tid uint32, path, tempPath string) error {
	return j.append(record{Op: opPending, TID: tid, Path: path, TempPath: tempPath})
}

// RecordCommitted satisfies pkg/fsm.JournalRecorder: called once the
// commit rename has landed, clearing the pending entry for path.
func (j *Journal) RecordCommitted(tid uint32, path string) error {
	return j.append(record{Op: opCommitted, TID: tid, Path: path})
}

// Pending replays the log for the given tid and returns every path
// whose pending write was never confirmed committed — the set a
// restarted transaction must finish or discard before resuming.
func (j *Journal) Pending(tid uint32) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	first, err := j.store.FirstIndex()
	if err != nil {
		return nil, fmt.Errorf("journal: first index: %w", err)
	}
	last, err := j.store.LastIndex()
	if err != nil {
		return nil, fmt.Errorf("journal: last index: %w", err)
	}

	open := make(map[string]string)
	var order []string

	for idx := first; idx <= last && idx > 0; idx++ {
		var l raft.Log
		if err := j.store.GetLog(idx, &l); err != nil {
			if err == raft.ErrLogNotFound {
				continue
			}
			return nil, fmt.Errorf("journal: get log %d: %w", idx, err)
		}
		var r record
		if err := json.Unmarshal(l.Data, &r); err != nil {
			return nil, fmt.Errorf("journal: decode log %d: %w", idx, err)
		}
		if r.TID != tid {
			continue
		}
		switch r.Op {
		case opPending:
			if _, exists := open[r.Path]; !exists {
				order = append(order, r.Path)
			}
			open[r.Path] = r.TempPath
		case opCommitted:
			delete(open, r.Path)
		}
	}

	entries := make([]Entry, 0, len(open))
	for _, p := range order {
		if temp, ok := open[p]; ok {
			entries = append(entries, Entry{Path: p, TempPath: temp})
		}
	}
	return entries, nil
}

// Compact discards the entire log once a transaction has fully
// committed or fully rolled back and its journal history is no longer
// needed for recovery. One journal file backs one transaction at a
// time ("distinct TEs in the same transaction are driven
// sequentially"), so a full-range delete is equivalent to a per-tid
// one and avoids a second index just to filter by tid.
func (j *Journal) Compact(tid uint32) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	first, err := j.store.FirstIndex()
	if err != nil {
		return fmt.Errorf("journal: first index: %w", err)
	}
	last, err := j.store.LastIndex()
	if err != nil {
		return fmt.Errorf("journal: last index: %w", err)
	}
	if first == 0 || last == 0 || first > last {
		return nil
	}
	return j.store.DeleteRange(first, last)
}
