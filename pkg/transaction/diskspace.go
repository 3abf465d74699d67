package transaction

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"syscall"

	"github.com/pkgtx/corepm/pkg/metrics"
	"github.com/pkgtx/corepm/pkg/types"
)

// mount is one enumerated filesystem.
type mount struct {
	path       string
	blockSize  int64
	freeBlocks int64
	freeInodes int64
}

// diskTracker debits free blocks/inodes per target filesystem as files
// are planned for creation or replacement: mounted filesystems are
// enumerated once, then each planned file debits its target
// filesystem's free-block count by adjFSBlocks(bytes) and its free-inode
// count by 1.
type diskTracker struct {
	mounts []mount // sorted by path length descending, longest-prefix-match first
}

// adjFSBlocks implements the 5%-margin debit formula.
func adjFSBlocks(bytes int64, blksize int64) int64 {
	if blksize <= 0 {
		blksize = 4096
	}
	num := bytes * 21
	return (num + 20*blksize - 1) / (20 * blksize)
}

// newDiskTracker enumerates every mounted filesystem by reading
// /proc/mounts and statfs-ing each mountpoint; rootDir does not filter
// the list.
func newDiskTracker(rootDir string) (*diskTracker, error) {
	f, err := os.Open("/proc/mounts")
	if err != nil {
		return nil, fmt.Errorf("transaction: open /proc/mounts: %w", err)
	}
	defer f.Close()

	var mounts []mount
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		path := fields[1]

		var stat syscall.Statfs_t
		if err := syscall.Statfs(path, &stat); err != nil {
			continue
		}
		mounts = append(mounts, mount{
			path:       path,
			blockSize:  int64(stat.Bsize),
			freeBlocks: int64(stat.Bavail),
			freeInodes: int64(stat.Ffree),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("transaction: scan /proc/mounts: %w", err)
	}

	sort.Slice(mounts, func(i, j int) bool { return len(mounts[i].path) > len(mounts[j].path) })
	return &diskTracker{mounts: mounts}, nil
}

// mountFor returns the longest-prefix-matching mount for an absolute
// path, or ok=false if none was enumerated (e.g. under test, where
// rootDir lives on whatever filesystem t.TempDir() returned).
func (d *diskTracker) mountFor(path string) (*mount, bool) {
	for i := range d.mounts {
		m := &d.mounts[i]
		if m.path == "/" || strings.HasPrefix(path, m.path) {
			return m, true
		}
	}
	return nil, false
}

// debit applies one file's space and inode cost against its target
// filesystem, returning a DISKSPACE/DISKNODES problem if the running
// balance goes negative and the corresponding filter flag is not set
//
func (d *diskTracker) debit(path string, size int64, nevr string, filter types.FilterFlag) []types.Problem {
	m, ok := d.mountFor(path)
	if !ok {
		return nil
	}

	var problems []types.Problem

	blocks := adjFSBlocks(size, m.blockSize)
	m.freeBlocks -= blocks
	if m.freeBlocks < 0 && filter&types.FilterDiskSpace == 0 {
		problems = append(problems, types.Problem{
			Kind:        types.ProblemDiskSpace,
			PrimaryNEVR: nevr,
			Str:         m.path,
			Num:         uint64(-m.freeBlocks),
		})
	}

	m.freeInodes--
	if m.freeInodes < 0 && filter&types.FilterDiskNodes == 0 {
		problems = append(problems, types.Problem{
			Kind:        types.ProblemDiskNodes,
			PrimaryNEVR: nevr,
			Str:         m.path,
			Num:         uint64(-m.freeInodes),
		})
	}

	metrics.FSBlocksFree.WithLabelValues(m.path).Set(float64(m.freeBlocks))
	metrics.FSInodesFree.WithLabelValues(m.path).Set(float64(m.freeInodes))

	return problems
}
