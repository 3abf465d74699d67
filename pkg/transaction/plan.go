package transaction

import (
	"sort"
	"strings"

	"github.com/pkgtx/corepm/pkg/fsm"
	"github.com/pkgtx/corepm/pkg/types"
)

// filterFor maps each problem kind to the filter flag that silences it.
// Kinds with no entry (REQUIRES, CONFLICT, BADPRETRANS) cannot be
// filtered away.
var filterFor = map[types.ProblemKind]types.FilterFlag{
	types.ProblemBadArch:         types.FilterIgnoreArch,
	types.ProblemBadOS:           types.FilterIgnoreOS,
	types.ProblemPkgInstalled:    types.FilterReplacePkg,
	types.ProblemBadRelocate:     types.FilterForceRelocate,
	types.ProblemNewFileConflict: types.FilterReplaceNewFiles,
	types.ProblemFileConflict:    types.FilterReplaceOldFiles,
	types.ProblemOldPackage:      types.FilterOldPackage,
	types.ProblemDiskSpace:       types.FilterDiskSpace,
	types.ProblemDiskNodes:       types.FilterDiskNodes,
}

// ignored reports whether the environment's filter flags silence kind.
func (ts *TS) ignored(kind types.ProblemKind) bool {
	flag, ok := filterFor[kind]
	return ok && ts.env.FilterFlags&flag != 0
}

// identityProblems checks each ADDED element's arch/os against the
// environment and its version against what is already installed:
// a mismatched arch raises BADARCH, a mismatched os BADOS, an
// exact reinstall PKG_INSTALLED, and a downgrade marked as an upgrade
// OLDPACKAGE.
func (ts *TS) identityProblems() []types.Problem {
	var problems []types.Problem
	for _, el := range ts.elements {
		if el.Kind != types.TEAdded || el.Header == nil {
			continue
		}

		if el.NEVR.Arch != "" && el.NEVR.Arch != "noarch" && ts.env.Arch != "" && el.NEVR.Arch != ts.env.Arch {
			if !ts.ignored(types.ProblemBadArch) {
				problems = append(problems, types.Problem{
					Kind:        types.ProblemBadArch,
					PrimaryNEVR: el.NEVR.String(),
					Str:         el.NEVR.Arch,
				})
			}
		}
		if el.NEVR.OS != "" && ts.env.OS != "" && el.NEVR.OS != ts.env.OS {
			if !ts.ignored(types.ProblemBadOS) {
				problems = append(problems, types.Problem{
					Kind:        types.ProblemBadOS,
					PrimaryNEVR: el.NEVR.String(),
					Str:         el.NEVR.OS,
				})
			}
		}

		keys, err := ts.store.FindByName(el.NEVR.Name)
		if err != nil {
			ts.log.Warn().Err(err).Str("name", el.NEVR.Name).Msg("installed-version lookup failed")
			continue
		}
		erased := ts.erasedKeys()
		for _, k := range keys {
			h, err := ts.store.Get(k)
			if err != nil {
				continue
			}
			inst := h.NEVR()
			cmp := types.CompareEVR(el.NEVR.EVR, inst.EVR)
			switch {
			case cmp == 0 && !el.IsUpgrade && !erased[k]:
				if !ts.ignored(types.ProblemPkgInstalled) {
					problems = append(problems, types.Problem{
						Kind:        types.ProblemPkgInstalled,
						PrimaryNEVR: el.NEVR.String(),
						AltNEVR:     inst.String(),
					})
				}
			case cmp < 0 && el.IsUpgrade:
				if !ts.ignored(types.ProblemOldPackage) {
					problems = append(problems, types.Problem{
						Kind:        types.ProblemOldPackage,
						PrimaryNEVR: el.NEVR.String(),
						AltNEVR:     inst.String(),
					})
				}
			}
		}
	}
	return problems
}

// supersedes reports whether the ADDED element replaces the REMOVED one:
// either the removed element was implicitly scheduled by the added
// element's obsoletes, or the two share a name and the install is
// flagged as an upgrade.
func supersedes(added, removed *Element) bool {
	if added.Kind != types.TEAdded || removed.Kind != types.TERemoved {
		return false
	}
	if removed.obsoletedBy != "" {
		return removed.obsoletedBy == added.NEVR.String()
	}
	return added.IsUpgrade && removed.NEVR.Name != "" && removed.NEVR.Name == added.NEVR.Name
}

// elementFI returns the element's File Info Set, loading it from the
// record store for REMOVED elements that were scheduled by pkgKey alone
// (implicit obsoletes removals). The loaded header and FI stay on the
// element so Run reuses them.
func (ts *TS) elementFI(el *Element) *fsm.FI {
	if el.fi != nil {
		return el.fi
	}
	if el.PkgKey == 0 {
		return nil
	}
	h, err := ts.store.Get(el.PkgKey)
	if err != nil {
		ts.log.Warn().Err(err).Uint64("pkgKey", el.PkgKey).Msg("load removed record failed")
		return nil
	}
	fi, err := fsm.BuildFI(h)
	if err != nil {
		ts.log.Warn().Err(err).Uint64("pkgKey", el.PkgKey).Msg("build removed file set failed")
		return nil
	}
	el.Header = h
	el.NEVR = h.NEVR()
	el.fi = fi
	return fi
}

// prepareUpgrades links each superseding ADDED element to the REMOVED
// element it replaces. The old package's per-file digests flow into the
// new element's OldDigest slots, which is what lets the install planner
// discriminate CREATE/SAVE/ALTNAME for config files; and every path both
// packages own is marked SKIP on the erase side, so the paired erase
// never undoes the files the install just laid down.
func (ts *TS) prepareUpgrades() {
	for _, added := range ts.elements {
		if added.Kind != types.TEAdded || added.fi == nil {
			continue
		}
		for _, removed := range ts.elements {
			if !supersedes(added, removed) {
				continue
			}
			oldFI := ts.elementFI(removed)
			if oldFI == nil {
				continue
			}
			for i := range added.fi.Files {
				f := &added.fi.Files[i]
				idx, ok := oldFI.IndexOf(f.Path())
				if !ok {
					continue
				}
				old := &oldFI.Files[idx]
				if old.Digest != "" {
					d := old.Digest
					f.OldDigest = &d
				}
				old.Action = types.FASkip
			}
		}
	}
}

// fingerprint is one normalized absolute path's claim in the transaction,
// recorded in the set-wide table that detects file conflicts.
type fingerprint struct {
	owner  *Element
	index  int
	digest string
	mode   uint32
}

// fileConflictProblems builds the fingerprint table over every ADDED
// element's files and reports NEW_FILE_CONFLICT when two added packages
// claim the same path with different content, and FILE_CONFLICT when an
// added package claims a path an installed record (not scheduled for
// removal in this set) owns with different content. Directories never
// conflict, and identical digest+mode claims coexist silently.
func (ts *TS) fileConflictProblems() []types.Problem {
	var problems []types.Problem
	table := make(map[string]fingerprint)
	erased := ts.erasedKeys()

	for _, el := range ts.elements {
		if el.Kind != types.TEAdded || el.fi == nil {
			continue
		}
		for i := range el.fi.Files {
			f := &el.fi.Files[i]
			if f.IsDir() {
				continue
			}
			path := normalizePath(f.Path())
			fp := fingerprint{owner: el, index: i, digest: f.Digest, mode: f.Mode}

			if prev, dup := table[path]; dup {
				if prev.owner != el && (prev.digest != fp.digest || prev.mode != fp.mode) && !ts.ignored(types.ProblemNewFileConflict) {
					problems = append(problems, types.Problem{
						Kind:        types.ProblemNewFileConflict,
						PrimaryNEVR: el.NEVR.String(),
						AltNEVR:     prev.owner.NEVR.String(),
						Str:         path,
					})
				}
				continue
			}
			table[path] = fp

			if ts.ignored(types.ProblemFileConflict) {
				continue
			}
			keys, err := ts.store.FindByBasename(f.BaseName)
			if err != nil {
				continue
			}
			for _, k := range keys {
				if erased[k] {
					continue
				}
				owner, ownerFile, ok := ts.installedFile(k, path)
				if !ok {
					continue
				}
				if ownerFile.Digest != f.Digest || ownerFile.Mode != f.Mode {
					problems = append(problems, types.Problem{
						Kind:        types.ProblemFileConflict,
						PrimaryNEVR: el.NEVR.String(),
						AltNEVR:     owner,
						Str:         path,
					})
				}
			}
		}
	}
	return problems
}

// installedFile looks up path in the installed record at pkgKey,
// returning the owning NEVR string and the file's recorded attributes.
// File info sets for installed records are cached per Check call.
func (ts *TS) installedFile(pkgKey uint64, path string) (string, *fsm.FileInfo, bool) {
	fi, ok := ts.installedFICache[pkgKey]
	if !ok {
		h, err := ts.store.Get(pkgKey)
		if err != nil {
			return "", nil, false
		}
		fi, err = fsm.BuildFI(h)
		if err != nil {
			return "", nil, false
		}
		ts.installedFICache[pkgKey] = fi
	}
	idx, ok := fi.IndexOf(path)
	if !ok {
		return "", nil, false
	}
	return fi.NEVR.String(), &fi.Files[idx], true
}

func normalizePath(p string) string {
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return p
}

// applyRelocations rewrites each file's directory through the relocation
// table and returns the old prefixes that matched nothing, which Check
// reports as BADRELOCATE.
func applyRelocations(fi *fsm.FI, relocs map[string]string) (unmatched []string) {
	if len(relocs) == 0 {
		return nil
	}
	prefixes := make([]string, 0, len(relocs))
	for oldPrefix := range relocs {
		prefixes = append(prefixes, oldPrefix)
	}
	// Longest prefix wins, and ties resolve the same way on every run.
	sort.Slice(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) > len(prefixes[j])
		}
		return prefixes[i] < prefixes[j]
	})

	matched := make(map[string]bool, len(relocs))
	for i := range fi.Files {
		f := &fi.Files[i]
		for _, oldPrefix := range prefixes {
			if strings.HasPrefix(f.DirName, oldPrefix) {
				f.DirName = relocs[oldPrefix] + f.DirName[len(oldPrefix):]
				matched[oldPrefix] = true
				break
			}
		}
	}
	fi.Reindex()
	for oldPrefix := range relocs {
		if !matched[oldPrefix] {
			unmatched = append(unmatched, oldPrefix)
		}
	}
	sort.Strings(unmatched)
	return unmatched
}
