package transaction

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pkgtx/corepm/pkg/types"
)

func TestAdjFSBlocks(t *testing.T) {
	tests := []struct {
		name    string
		bytes   int64
		blksize int64
		want    int64
	}{
		{"zero bytes cost nothing", 0, 4096, 0},
		{"one block plus margin rounds up to two", 4096, 4096, 2},
		{"margin is five percent", 100 * 4096 * 20 / 21, 4096, 100},
		{"zero blksize falls back to 4096", 4096, 0, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, adjFSBlocks(tc.bytes, tc.blksize))
		})
	}
}

func testTracker(freeBlocks, freeInodes int64) *diskTracker {
	return &diskTracker{mounts: []mount{{
		path:       "/",
		blockSize:  4096,
		freeBlocks: freeBlocks,
		freeInodes: freeInodes,
	}}}
}

// TestDebitWithinFreeSpaceNeverReports: an install fitting into free
// space minus the five-percent margin raises no problem.
func TestDebitWithinFreeSpaceNeverReports(t *testing.T) {
	tr := testTracker(100, 100)
	// 90 raw blocks debits 95 adjusted, inside the 100 free.
	problems := tr.debit("/usr/bin/alpha", 90*4096, "alpha-1.0-1", 0)
	require.Empty(t, problems)
}

func TestDebitReportsDiskSpaceWhenExhausted(t *testing.T) {
	tr := testTracker(10, 100)
	problems := tr.debit("/usr/bin/alpha", 100*4096, "alpha-1.0-1", 0)
	require.Len(t, problems, 1)
	require.Equal(t, types.ProblemDiskSpace, problems[0].Kind)
	require.Equal(t, "alpha-1.0-1", problems[0].PrimaryNEVR)
	require.Equal(t, "/", problems[0].Str)
}

func TestDebitReportsDiskNodesWhenExhausted(t *testing.T) {
	tr := testTracker(1000, 0)
	problems := tr.debit("/usr/bin/alpha", 1, "alpha-1.0-1", 0)
	require.Len(t, problems, 1)
	require.Equal(t, types.ProblemDiskNodes, problems[0].Kind)
}

func TestDebitFilterFlagsSilenceProblems(t *testing.T) {
	tr := testTracker(0, 0)
	problems := tr.debit("/usr/bin/alpha", 4096, "alpha-1.0-1",
		types.FilterDiskSpace|types.FilterDiskNodes)
	require.Empty(t, problems)
}

// TestDebitAccumulatesAcrossFiles: the running balance carries over, so
// many small files exhaust a filesystem one debit at a time.
func TestDebitAccumulatesAcrossFiles(t *testing.T) {
	tr := testTracker(5, 100)
	require.Empty(t, tr.debit("/a", 4096, "alpha-1.0-1", 0)) // 2 adjusted, 3 left
	require.Empty(t, tr.debit("/b", 4096, "alpha-1.0-1", 0)) // 1 left
	problems := tr.debit("/c", 4096, "alpha-1.0-1", 0)
	require.Len(t, problems, 1)
	require.Equal(t, types.ProblemDiskSpace, problems[0].Kind)
}
