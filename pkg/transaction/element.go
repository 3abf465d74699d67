// Package transaction implements the Transaction Engine façade:
// AddInstall/AddErase build Transaction Elements, Check runs the
// Dependency Solver and the conflict planner, Order runs the Orderer,
// and Run drives the FSM per element in order, committing each to the
// Record Store.
//
// A plan is batched first, then each element is driven through its
// lifecycle in order, stopping and reporting on the first unrecoverable
// failure.
package transaction

import (
	"github.com/pkgtx/corepm/pkg/fsm"
	"github.com/pkgtx/corepm/pkg/header"
	"github.com/pkgtx/corepm/pkg/solver"
	"github.com/pkgtx/corepm/pkg/types"
)

// Element is one Transaction Element: either an ADDED
// install, owning its header and retrieval key, or a REMOVED erase,
// owning its header and the installed pkgKey it came from.
type Element struct {
	id   int
	Kind types.TEKind

	Header *header.Header
	NEVR   types.NEVR

	// Key is the retrieval key an ArchiveOpener uses to find this
	// element's archive payload. Generated by AddInstall if the caller
	// passes an empty key.
	Key string

	// PkgKey is the installed record's primary key, set for REMOVED
	// elements (addErase's "offset") and for ADDED elements once Run
	// commits them to the store.
	PkgKey uint64

	IsUpgrade bool
	Relocs    map[string]string

	// badRelocs holds relocation prefixes that matched no file in this
	// element; Check reports each as BADRELOCATE.
	badRelocs []string

	// obsoletedBy names the ADDED element whose obsoletes dependency
	// scheduled this REMOVED element, pairing the two for ordering.
	obsoletedBy string

	fi *fsm.FI
}

// candidate adapts this element into the solver's narrow input shape.
func (e *Element) candidate() solver.Candidate {
	return solver.Candidate{
		NEVR:      e.NEVR,
		Provides:  solver.DepsFromHeader(e.Header, header.TagProvideName, header.TagProvideVersion, header.TagProvideFlags),
		Requires:  solver.DepsFromHeader(e.Header, header.TagRequireName, header.TagRequireVersion, header.TagRequireFlags),
		Conflicts: solver.DepsFromHeader(e.Header, header.TagConflictName, header.TagConflictVersion, header.TagConflictFlags),
		Obsoletes: solver.DepsFromHeader(e.Header, header.TagObsoleteName, header.TagObsoleteVersion, header.TagObsoleteFlags),
	}
}
