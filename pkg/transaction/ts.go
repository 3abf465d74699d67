package transaction

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pkgtx/corepm/pkg/config"
	"github.com/pkgtx/corepm/pkg/fsm"
	"github.com/pkgtx/corepm/pkg/header"
	"github.com/pkgtx/corepm/pkg/journal"
	"github.com/pkgtx/corepm/pkg/metrics"
	"github.com/pkgtx/corepm/pkg/order"
	"github.com/pkgtx/corepm/pkg/solver"
	"github.com/pkgtx/corepm/pkg/store"
	"github.com/pkgtx/corepm/pkg/types"
)

// advertisedCapabilities are the rpmlib(...) features this engine
// understands. A header requiring anything outside this set cannot be
// processed; AddInstall reports it with rc=2.
var advertisedCapabilities = map[string]bool{
	"rpmlib(CompressedFileNames)":    true,
	"rpmlib(PayloadFilesHavePrefix)": true,
	"rpmlib(PayloadIsCpio)":          true,
	"rpmlib(PayloadIsTar)":           true,
	"rpmlib(PayloadIsAr)":            true,
	"rpmlib(HeaderTagArray)":         true,
}

// SolveFunc is the resolve-missing callback: it receives each REQUIRES
// problem the solver found and may inject an augmenting package into the
// set (via AddInstall) before returning retry=true, which re-runs the
// solver over the widened universe.
type SolveFunc func(p types.Problem) (retry bool)

// TS is the Transaction Set: it owns its Elements, a Record Store
// handle, and the Solver/Orderer results computed by Check/Order.
type TS struct {
	env   *config.Environment
	store store.Store
	jrnl  *journal.Journal
	log   zerolog.Logger

	tid      uint32
	elements []*Element
	nextID   int

	solve SolveFunc

	problems []types.Problem
	order    []int // element ids, set by Order
	ran      []*Element

	installedFICache map[uint64]*fsm.FI
}

// New constructs a Transaction Set bound to st and env. jrnl may be nil,
// in which case crash recovery is disabled.
func New(env *config.Environment, st store.Store, jrnl *journal.Journal, tid uint32, logger zerolog.Logger) *TS {
	return &TS{env: env, store: st, jrnl: jrnl, tid: tid, log: logger, installedFICache: make(map[uint64]*fsm.FI)}
}

// SetSolveCallback installs fn as the resolve-missing callback consulted
// by Check. Must not be called while Run is in progress.
func (ts *TS) SetSolveCallback(fn SolveFunc) {
	ts.solve = fn
}

func (ts *TS) allocID() int {
	ts.nextID++
	return ts.nextID
}

// AddInstall creates an ADDED Transaction Element from h. A non-empty
// relocs table rewrites matching directory prefixes in the element's file
// set; prefixes that match no file surface as BADRELOCATE problems at
// Check time. Returns 0 ok, 1 on a malformed header, 2 if h requires
// rpmlib features this engine does not advertise.
func (ts *TS) AddInstall(h *header.Header, key string, isUpgrade bool, relocs map[string]string) (int, error) {
	if err := h.Validate(); err != nil {
		return 1, fmt.Errorf("transaction: addInstall: %w", err)
	}
	if missing, ok := unadvertisedCapability(h); ok {
		return 2, fmt.Errorf("transaction: addInstall: header requires unadvertised capability %q", missing)
	}

	fi, err := fsm.BuildFI(h)
	if err != nil {
		return 1, fmt.Errorf("transaction: addInstall: %w", err)
	}
	badRelocs := applyRelocations(fi, relocs)

	if key == "" {
		key = uuid.NewString()
	}

	el := &Element{
		id:        ts.allocID(),
		Kind:      types.TEAdded,
		Header:    h,
		NEVR:      h.NEVR(),
		Key:       key,
		IsUpgrade: isUpgrade,
		Relocs:    relocs,
		badRelocs: badRelocs,
		fi:        fi,
	}
	ts.elements = append(ts.elements, el)
	return 0, nil
}

// AddErase creates a REMOVED Transaction Element for the installed
// record at offset (pkgKey).
func (ts *TS) AddErase(h *header.Header, offset uint64) (int, error) {
	fi, err := fsm.BuildFI(h)
	if err != nil {
		return 1, fmt.Errorf("transaction: addErase: %w", err)
	}

	el := &Element{
		id:     ts.allocID(),
		Kind:   types.TERemoved,
		Header: h,
		NEVR:   h.NEVR(),
		PkgKey: offset,
		fi:     fi,
	}
	ts.elements = append(ts.elements, el)
	return 0, nil
}

func unadvertisedCapability(h *header.Header) (string, bool) {
	_, v, ok := h.Get(header.TagRequireName)
	if !ok {
		return "", false
	}
	names, _ := v.([]string)
	for _, n := range names {
		if strings.HasPrefix(n, "rpmlib(") && !advertisedCapabilities[n] {
			return n, true
		}
	}
	return "", false
}

// erasedKeys returns the pkgKeys of every REMOVED element, the
// "removed-records" universe the Solver must exclude.
func (ts *TS) erasedKeys() map[uint64]bool {
	out := make(map[uint64]bool)
	for _, el := range ts.elements {
		if el.Kind == types.TERemoved {
			out[el.PkgKey] = true
		}
	}
	return out
}

// maxSolvePasses bounds how many times a solve callback can widen the
// set before Check gives up and reports what remains unsatisfied.
const maxSolvePasses = 16

// appendProblems records problems on the set and bumps the per-kind
// counters.
func (ts *TS) appendProblems(problems []types.Problem) {
	ts.problems = append(ts.problems, problems...)
	for _, p := range problems {
		metrics.ProblemsTotal.WithLabelValues(p.Kind.String()).Inc()
	}
}

// Check runs the planner over the current element set: identity checks
// (arch/os/already-installed/downgrade), the Dependency Solver with the
// resolve-missing callback loop, relocation validation, the file-conflict
// fingerprint pass, and disk-space accounting. Problems are appended to
// the set; the return is 0 whenever checking itself completed, whether
// or not problems were found.
func (ts *TS) Check() (int, error) {
	ts.installedFICache = make(map[uint64]*fsm.FI)

	ts.appendProblems(ts.identityProblems())

	var res solver.Result
	for pass := 0; ; pass++ {
		var candidates []solver.Candidate
		for _, el := range ts.elements {
			if el.Kind == types.TEAdded {
				candidates = append(candidates, el.candidate())
			}
		}

		var err error
		res, err = solver.Check(solver.Input{
			Store:   ts.store,
			Added:   candidates,
			Removed: ts.erasedKeys(),
			Flags:   ts.env.DepFlags,
		})
		if err != nil {
			return 1, fmt.Errorf("transaction: check: %w", err)
		}

		if ts.solve == nil || pass >= maxSolvePasses {
			break
		}
		retry := false
		for _, p := range res.Problems {
			if p.Kind == types.ProblemRequires && ts.solve(p) {
				retry = true
			}
		}
		if !retry {
			break
		}
	}
	ts.appendProblems(res.Problems)

	for pkgKey, byNEVR := range res.Obsoleted {
		ts.elements = append(ts.elements, &Element{
			id:          ts.allocID(),
			Kind:        types.TERemoved,
			PkgKey:      pkgKey,
			obsoletedBy: byNEVR,
		})
	}

	ts.prepareUpgrades()

	if !ts.ignored(types.ProblemBadRelocate) {
		var relocProblems []types.Problem
		for _, el := range ts.elements {
			for _, prefix := range el.badRelocs {
				relocProblems = append(relocProblems, types.Problem{
					Kind:        types.ProblemBadRelocate,
					PrimaryNEVR: el.NEVR.String(),
					Str:         prefix,
				})
			}
		}
		ts.appendProblems(relocProblems)
	}

	ts.appendProblems(ts.fileConflictProblems())
	ts.appendProblems(ts.checkDiskSpace())

	return 0, nil
}

// checkDiskSpace runs disk-space accounting over every ADDED element's
// regular files.
func (ts *TS) checkDiskSpace() []types.Problem {
	tracker, err := newDiskTracker(ts.env.RootDir)
	if err != nil {
		ts.log.Warn().Err(err).Msg("disk-space accounting unavailable")
		return nil
	}

	var problems []types.Problem
	for _, el := range ts.elements {
		if el.Kind != types.TEAdded || el.fi == nil {
			continue
		}
		for _, f := range el.fi.Files {
			if !f.IsRegular() {
				continue
			}
			path := ts.env.RootDir + "/" + f.Path()
			problems = append(problems, tracker.debit(path, f.Size, el.NEVR.String(), ts.env.FilterFlags)...)
		}
	}
	return problems
}

// Order runs the Orderer over the current element set and returns the
// count of elements that could not be strictly ordered.
func (ts *TS) Order() (int, error) {
	nodes := make([]order.Node, 0, len(ts.elements))
	for _, el := range ts.elements {
		var provides, requires []types.Dependency
		if el.Header != nil {
			provides = solver.DepsFromHeader(el.Header, header.TagProvideName, header.TagProvideVersion, header.TagProvideFlags)
			requires = solver.DepsFromHeader(el.Header, header.TagRequireName, header.TagRequireVersion, header.TagRequireFlags)
		}
		nodes = append(nodes, order.Node{
			ID:       el.id,
			Kind:     el.Kind,
			NEVR:     el.NEVR.String(),
			Provides: provides,
			Requires: requires,
		})
	}

	pairs := upgradePairs(ts.elements)

	res := order.Order(order.Input{Nodes: nodes, UpgradePairs: pairs})
	ts.order = res.Order
	if res.Unordered > 0 {
		metrics.UnorderedElementsTotal.Add(float64(res.Unordered))
	}
	return res.Unordered, nil
}

// upgradePairs pairs each upgrading or obsoleting ADDED element with the
// REMOVED element it supersedes, so the Orderer can place the erase
// immediately after the install.
func upgradePairs(elements []*Element) []order.UpgradePair {
	var pairs []order.UpgradePair
	for _, added := range elements {
		for _, removed := range elements {
			if supersedes(added, removed) {
				pairs = append(pairs, order.UpgradePair{InstallID: added.id, EraseID: removed.id})
			}
		}
	}
	return pairs
}

// Problems returns the accumulated problem set.
func (ts *TS) Problems() []types.Problem {
	return ts.problems
}
