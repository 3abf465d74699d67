package fsm

import (
	"fmt"

	"github.com/pkgtx/corepm/pkg/header"
	"github.com/pkgtx/corepm/pkg/types"
)

// FileInfo is one entry of a File Info Set: a file's header
// attributes plus the action the planner has assigned it.
type FileInfo struct {
	Index      int
	DirName    string
	BaseName   string
	Mode       uint32
	UID        uint32
	GID        uint32
	Size       int64
	MTime      int64
	Digest     string
	DigestAlgo uint32
	Linkto     string
	Flags      types.FileFlag
	Ino        uint64
	Rdev       uint32
	Context    string

	Action   types.FileAction
	MapFlags types.MapFlag

	// OldDigest is the digest recorded for this same path by the
	// previously installed package, set by the caller when this FI
	// belongs to an upgrade. A nil OldDigest means "not an upgrade of
	// this file" (the BACKUP/SAVE/ALTNAME planning).
	OldDigest *string
}

// Path is dirName + baseName, the file's full archive-relative path.
func (f FileInfo) Path() string { return f.DirName + f.BaseName }

// IsDir reports whether this entry's mode bits mark it a directory.
func (f FileInfo) IsDir() bool { return f.Mode&0170000 == 0040000 }

// IsSymlink reports whether this entry's mode bits mark it a symlink.
func (f FileInfo) IsSymlink() bool { return f.Mode&0170000 == 0120000 }

// IsRegular reports whether this entry's mode bits mark it a regular file.
func (f FileInfo) IsRegular() bool { return f.Mode&0170000 == 0100000 }

// FI is the File Info Set for one transaction element: every file
// declared by a header, plus identity metadata and a cursor.
type FI struct {
	NEVR   types.NEVR
	Files  []FileInfo
	byPath map[string]int
	cursor int
}

// BuildFI derives a File Info Set from h's file-info arrays.
func BuildFI(h *header.Header) (*FI, error) {
	basenames := stringArray(h, header.TagBasenames)
	dirnames := stringArray(h, header.TagDirnames)
	dirIdx := uintArray(h, header.TagDirIndexes)
	modes := uintArray(h, header.TagFileModes)
	sizes := uintArray(h, header.TagFileSizes)
	digests := stringArray(h, header.TagFileDigests)
	algos := uintArray(h, header.TagFileDigestAlgos)
	linktos := stringArray(h, header.TagFileLinktos)
	flags := uintArray(h, header.TagFileFlags)
	mtimes := uintArray(h, header.TagFileMtimes)
	rdevs := uintArray(h, header.TagFileRdevs)
	inodes := uintArray(h, header.TagFileInodes)
	contexts := stringArray(h, header.TagFileContexts)

	n := len(basenames)
	fi := &FI{NEVR: h.NEVR(), Files: make([]FileInfo, n), byPath: make(map[string]int, n)}

	for i := 0; i < n; i++ {
		var dn string
		if i < len(dirIdx) {
			di := int(dirIdx[i])
			if di < 0 || di >= len(dirnames) {
				return nil, fmt.Errorf("fsm: file %d: dirindex %d out of range", i, di)
			}
			dn = dirnames[di]
		}

		f := FileInfo{
			Index:    i,
			DirName:  dn,
			BaseName: basenames[i],
		}
		if i < len(modes) {
			f.Mode = uint32(modes[i])
		}
		if i < len(sizes) {
			f.Size = int64(sizes[i])
		}
		if i < len(mtimes) {
			f.MTime = int64(mtimes[i])
		}
		if i < len(digests) {
			f.Digest = digests[i]
		}
		if i < len(algos) {
			f.DigestAlgo = uint32(algos[i])
		}
		if i < len(linktos) {
			f.Linkto = linktos[i]
		}
		if i < len(flags) {
			f.Flags = types.FileFlag(flags[i])
		}
		if i < len(rdevs) {
			f.Rdev = uint32(rdevs[i])
		}
		if i < len(inodes) {
			f.Ino = inodes[i]
		}
		if i < len(contexts) {
			f.Context = contexts[i]
		}

		fi.Files[i] = f
		fi.byPath[f.Path()] = i
	}

	return fi, nil
}

// Reindex rebuilds the path lookup table after the planner has rewritten
// file paths, e.g. through a relocation table.
func (fi *FI) Reindex() {
	fi.byPath = make(map[string]int, len(fi.Files))
	for i := range fi.Files {
		fi.byPath[fi.Files[i].Path()] = i
	}
}

// IndexOf returns the FI index for an archive-relative path, emulating
// the binary-searched normalized-path lookup of INIT.
func (fi *FI) IndexOf(path string) (int, bool) {
	i, ok := fi.byPath[path]
	return i, ok
}

// Next advances the cursor and returns the next FileInfo, or ok=false
// at the end of the set.
func (fi *FI) Next() (*FileInfo, bool) {
	if fi.cursor >= len(fi.Files) {
		return nil, false
	}
	f := &fi.Files[fi.cursor]
	fi.cursor++
	return f, true
}

// HardLinkGroups partitions Files by Ino into sets with more than one
// member.
func (fi *FI) HardLinkGroups() map[uint64][]int {
	groups := make(map[uint64][]int)
	for i, f := range fi.Files {
		if !f.IsRegular() || f.Ino == 0 {
			continue
		}
		groups[f.Ino] = append(groups[f.Ino], i)
	}
	for ino, members := range groups {
		if len(members) < 2 {
			delete(groups, ino)
		}
	}
	return groups
}

func stringArray(h *header.Header, tag header.Tag) []string {
	_, v, ok := h.Get(tag)
	if !ok {
		return nil
	}
	arr, _ := v.([]string)
	return arr
}

func uintArray(h *header.Header, tag header.Tag) []uint64 {
	_, v, ok := h.Get(tag)
	if !ok {
		return nil
	}
	arr, _ := v.([]uint64)
	return arr
}
