package journal_test

import (
	"path/filepath"
	"testing"

	"github.com/pkgtx/corepm/pkg/journal"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) *journal.Journal {
	t.Helper()
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

// TestPendingSurvivesWithoutCommit covers crash recovery:
// a WRITE recorded without a matching commit must still be visible to
// Pending() so a restarted run can recover it.
func TestPendingSurvivesWithoutCommit(t *testing.T) {
	j := newTestJournal(t)

	require.NoError(t, j.RecordPending(42, "/usr/bin/alpha", "/usr/bin/alpha;0000002a"))

	entries, err := j.Pending(42)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "/usr/bin/alpha", entries[0].Path)
	require.Equal(t, "/usr/bin/alpha;0000002a", entries[0].TempPath)
}

func TestCommittedClearsPending(t *testing.T) {
	j := newTestJournal(t)

	require.NoError(t, j.RecordPending(7, "/etc/alpha.conf", "/etc/alpha.conf;00000007"))
	require.NoError(t, j.RecordCommitted(7, "/etc/alpha.conf"))

	entries, err := j.Pending(7)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestPendingIsolatedByTID(t *testing.T) {
	j := newTestJournal(t)

	require.NoError(t, j.RecordPending(1, "/a", "/a;1"))
	require.NoError(t, j.RecordPending(2, "/b", "/b;2"))
	require.NoError(t, j.RecordCommitted(2, "/b"))

	entries1, err := j.Pending(1)
	require.NoError(t, err)
	require.Len(t, entries1, 1)

	entries2, err := j.Pending(2)
	require.NoError(t, err)
	require.Empty(t, entries2)
}

func TestCompactClearsLog(t *testing.T) {
	j := newTestJournal(t)

	require.NoError(t, j.RecordPending(3, "/c", "/c;3"))
	require.NoError(t, j.Compact(3))

	entries, err := j.Pending(3)
	require.NoError(t, err)
	require.Empty(t, entries)
}
