// Package solver implements the Dependency Solver: for
// each added element, every requires must be satisfied somewhere in
// (installed ∪ added) \ (removed ∪ erased), no conflicts member may
// satisfy a conflicts dependency, and an obsoletes dependency marks a
// matching installed package for implicit removal.
//
// The installed universe is read by listing every record in pkg/store
// and loading its header; the store's secondary indices are not used
// for these lookups.
package solver

import (
	"fmt"

	"github.com/pkgtx/corepm/pkg/header"
	"github.com/pkgtx/corepm/pkg/store"
	"github.com/pkgtx/corepm/pkg/types"
)

// Candidate is one ADDED element's dependency surface, as seen by the
// solver. pkg/transaction builds these from its Elements.
type Candidate struct {
	NEVR      types.NEVR
	Provides  []types.Dependency
	Requires  []types.Dependency
	Conflicts []types.Dependency
	Obsoletes []types.Dependency
}

// Input is one Check() call's universe: the installed record store,
// every ADDED candidate in the transaction, and the installed pkgKeys
// already scheduled for erasure (explicit addErase), which drop out of
// the installed universe for dependency purposes. Flags switches off
// whole dependency classes.
type Input struct {
	Store   store.Store
	Added   []Candidate
	Removed map[uint64]bool
	Flags   types.DepFlag
}

// Result is the outcome of one Check() call.
type Result struct {
	Problems []types.Problem

	// Obsoleted holds installed pkgKeys matched by some Added
	// candidate's Obsoletes dependency: "Obsoletes act
	// like deletion predicates: ... marks the matching installed
	// record as an implicit removal paired with E." pkg/transaction
	// pairs each with its obsoleting install for the Orderer's
	// upgrade-adjacency constraint.
	Obsoleted map[uint64]string // pkgKey -> obsoleting candidate's NEVR string
}

type installedPkg struct {
	pkgKey    uint64
	nevr      types.NEVR
	provides  []types.Dependency
	requires  []types.Dependency
	conflicts []types.Dependency
}

// Check runs the solver over (installed ∪ Added) \ Removed.
func Check(in Input) (Result, error) {
	res := Result{Obsoleted: make(map[uint64]string)}

	installed, err := loadInstalled(in.Store, in.Removed)
	if err != nil {
		return res, err
	}

	for _, c := range in.Added {
		if in.Flags&types.DepNoRequires == 0 {
			for _, req := range c.Requires {
				if !satisfiedBy(req, c.NEVR, in.Added, installed) {
					res.Problems = append(res.Problems, types.Problem{
						Kind:        types.ProblemRequires,
						PrimaryNEVR: c.NEVR.String(),
						Str:         depString(req),
					})
				}
			}
		}

		if in.Flags&types.DepNoConflicts == 0 {
			for _, conf := range c.Conflicts {
				if blocker, ok := conflictedBy(conf, c.NEVR, in.Added, installed); ok {
					res.Problems = append(res.Problems, types.Problem{
						Kind:        types.ProblemConflict,
						PrimaryNEVR: c.NEVR.String(),
						AltNEVR:     blocker,
						Str:         depString(conf),
					})
				}
			}
		}

		if in.Flags&types.DepNoObsoletes != 0 {
			continue
		}
		for _, obs := range c.Obsoletes {
			for _, inst := range installed {
				for _, p := range inst.provides {
					if p.Name == obs.Name && types.EVRSatisfies(p.EVR, obs.Flags, obs.EVR) {
						res.Obsoleted[inst.pkgKey] = c.NEVR.String()
						break
					}
				}
			}
		}
	}

	return res, nil
}

func loadInstalled(s store.Store, removed map[uint64]bool) ([]installedPkg, error) {
	keys, err := s.List()
	if err != nil {
		return nil, fmt.Errorf("solver: list installed: %w", err)
	}

	out := make([]installedPkg, 0, len(keys))
	for _, k := range keys {
		if removed[k] {
			continue
		}
		h, err := s.Get(k)
		if err != nil {
			return nil, fmt.Errorf("solver: get pkgKey %d: %w", k, err)
		}
		out = append(out, installedPkg{
			pkgKey:    k,
			nevr:      h.NEVR(),
			provides:  depsFromHeader(h, header.TagProvideName, header.TagProvideVersion, header.TagProvideFlags),
			requires:  depsFromHeader(h, header.TagRequireName, header.TagRequireVersion, header.TagRequireFlags),
			conflicts: depsFromHeader(h, header.TagConflictName, header.TagConflictVersion, header.TagConflictFlags),
		})
	}
	return out, nil
}

// DepsFromHeader exposes depsFromHeader for callers (pkg/transaction)
// that need to build a Candidate from a *header.Header.
func DepsFromHeader(h *header.Header, nameTag, verTag, flagTag header.Tag) []types.Dependency {
	return depsFromHeader(h, nameTag, verTag, flagTag)
}

func depsFromHeader(h *header.Header, nameTag, verTag, flagTag header.Tag) []types.Dependency {
	_, nv, ok := h.Get(nameTag)
	if !ok {
		return nil
	}
	names, _ := nv.([]string)

	var vers []string
	if _, vv, ok := h.Get(verTag); ok {
		vers, _ = vv.([]string)
	}
	var flags []uint64
	if _, fv, ok := h.Get(flagTag); ok {
		flags, _ = fv.([]uint64)
	}

	out := make([]types.Dependency, len(names))
	for i, n := range names {
		d := types.Dependency{Name: n}
		if i < len(vers) && vers[i] != "" {
			if evr, err := types.ParseEVR(vers[i]); err == nil {
				d.EVR = evr
			}
		}
		if i < len(flags) {
			d.Flags = types.SenseFlag(flags[i])
		}
		out[i] = d
	}
	return out
}

func satisfiedBy(req types.Dependency, self types.NEVR, added []Candidate, installed []installedPkg) bool {
	for _, c := range added {
		for _, p := range c.Provides {
			if p.Name == req.Name && types.EVRSatisfies(p.EVR, req.Flags, req.EVR) {
				return true
			}
		}
	}
	for _, inst := range installed {
		for _, p := range inst.provides {
			if p.Name == req.Name && types.EVRSatisfies(p.EVR, req.Flags, req.EVR) {
				return true
			}
		}
	}
	return false
}

func conflictedBy(conf types.Dependency, self types.NEVR, added []Candidate, installed []installedPkg) (string, bool) {
	for _, c := range added {
		if c.NEVR.String() == self.String() {
			continue
		}
		for _, p := range c.Provides {
			if p.Name == conf.Name && types.EVRSatisfies(p.EVR, conf.Flags, conf.EVR) {
				return c.NEVR.String(), true
			}
		}
	}
	for _, inst := range installed {
		for _, p := range inst.provides {
			if p.Name == conf.Name && types.EVRSatisfies(p.EVR, conf.Flags, conf.EVR) {
				return inst.nevr.String(), true
			}
		}
	}
	return "", false
}

func depString(d types.Dependency) string {
	if d.EVR.Version == "" {
		return d.Name
	}
	return d.Name + " " + d.EVR.String()
}
