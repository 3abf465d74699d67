// Package order implements the Orderer: a Knuth/Kahn
// topological sort over transaction elements by successor count, with
// deterministic cycle breaking and upgrade-pair adjacency.
//
// The graph is supplied by the caller rather than derived from a live
// object store, so the package stays free of transaction and storage
// dependencies.
package order

import (
	"sort"

	"github.com/pkgtx/corepm/pkg/types"
)

// Node is one transaction element as seen by the Orderer. pkg/transaction
// builds these from its Elements; the Orderer never looks past this
// narrow shape, so it has no dependency on pkg/transaction.
type Node struct {
	ID       int
	Kind     types.TEKind
	NEVR     string
	Provides []types.Dependency
	Requires []types.Dependency
}

// UpgradePair names an ADDED node id and the REMOVED node id it
// obsoletes or upgrades; the Orderer splices the erase to immediately
// follow the install.
type UpgradePair struct {
	InstallID int
	EraseID   int
}

// Input is one Order() call's graph.
type Input struct {
	Nodes        []Node
	UpgradePairs []UpgradePair
}

// Result is the ordered id sequence plus the count of elements the
// Orderer could not place without dropping an edge. Depth records each
// node's distance from a dependency root, diagnostic side data some
// callers use to group output or parallelize within a tree.
type Result struct {
	Order     []int
	Unordered int
	Depth     map[int]int
}

type edge struct {
	from, to int // from must precede to
	// requirer/capability identify the edge for the deterministic
	// cycle-breaking tie-break (lexicographically-greatest pair drops
	// first).
	requirer, capability string
}

// Order runs the Kahn topological sort over in's element graph.
func Order(in Input) Result {
	byID := make(map[int]*Node, len(in.Nodes))
	for i := range in.Nodes {
		byID[in.Nodes[i].ID] = &in.Nodes[i]
	}

	edges := buildEdges(in.Nodes)

	// adjacency: from -> []to, and in-degree (successor count reversed:
	// Kahn here counts predecessors remaining, standard formulation).
	succ := make(map[int][]edge)
	indeg := make(map[int]int)
	for _, n := range in.Nodes {
		indeg[n.ID] = 0
	}
	for _, e := range edges {
		succ[e.from] = append(succ[e.from], e)
		indeg[e.to]++
	}

	ids := make([]int, 0, len(in.Nodes))
	for _, n := range in.Nodes {
		ids = append(ids, n.ID)
	}
	sort.Ints(ids)

	ready := make([]int, 0, len(ids))
	for _, id := range ids {
		if indeg[id] == 0 {
			ready = append(ready, id)
		}
	}

	placed := make(map[int]bool, len(ids))
	depth := make(map[int]int, len(ids))
	var out []int
	unordered := 0

	for len(placed) < len(ids) {
		if len(ready) == 0 {
			// Cycle: drop the lexicographically-greatest (requirer,
			// capability) pair among remaining edges whose "to" is not
			// yet placed, so the break point is a deterministic
			// function of the input graph.
			if !breakOneEdge(edges, placed, indeg, &ready) {
				// No breakable edge: emit the rest in stable id order.
				for _, id := range ids {
					if !placed[id] {
						out = append(out, id)
						placed[id] = true
						unordered++
					}
				}
				break
			}
			if len(ready) > 0 {
				unordered++
			}
			continue
		}

		sort.Ints(ready)
		id := ready[0]
		ready = ready[1:]
		if placed[id] {
			continue
		}
		out = append(out, id)
		placed[id] = true

		for _, e := range succ[id] {
			if placed[e.to] {
				continue
			}
			if d := depth[id] + 1; d > depth[e.to] {
				depth[e.to] = d
			}
			indeg[e.to]--
			if indeg[e.to] == 0 {
				ready = append(ready, e.to)
			}
		}
	}

	out = spliceUpgradePairs(out, in.UpgradePairs)

	return Result{Order: out, Unordered: unordered, Depth: depth}
}

// buildEdges derives precedence edges from each node's requires against
// every other node's provides: ADDED(A) -> ADDED(B) when A
// requires a capability B provides (B installs first); REMOVED edges run
// the opposite direction, since erase order is the reverse of install.
func buildEdges(nodes []Node) []edge {
	var edges []edge
	for _, a := range nodes {
		for _, req := range a.Requires {
			for _, b := range nodes {
				if b.ID == a.ID {
					continue
				}
				if !provides(b, req) {
					continue
				}
				switch {
				case a.Kind == types.TEAdded && b.Kind == types.TEAdded:
					// install B before install A
					edges = append(edges, edge{from: b.ID, to: a.ID, requirer: a.NEVR, capability: req.Name})
				case a.Kind == types.TERemoved && b.Kind == types.TERemoved:
					// erase A before erase B (reverse of install order)
					edges = append(edges, edge{from: a.ID, to: b.ID, requirer: a.NEVR, capability: req.Name})
				}
			}
		}
	}
	return edges
}

func provides(n Node, req types.Dependency) bool {
	for _, p := range n.Provides {
		if p.Name == req.Name && types.EVRSatisfies(p.EVR, req.Flags, req.EVR) {
			return true
		}
	}
	return false
}

// breakOneEdge drops the lexicographically-greatest (requirer,
// capability) edge whose endpoints are both unplaced and whose "to"
// still has a nonzero indegree, and moves "to" into ready once its
// indegree reaches zero. Returns false if no such edge exists.
func breakOneEdge(edges []edge, placed map[int]bool, indeg map[int]int, ready *[]int) bool {
	best := -1
	for i, e := range edges {
		if placed[e.to] || indeg[e.to] == 0 {
			continue
		}
		if placed[e.from] {
			continue
		}
		if best == -1 || breakKey(edges[i]) > breakKey(edges[best]) {
			best = i
		}
	}
	if best == -1 {
		return false
	}
	indeg[edges[best].to]--
	if indeg[edges[best].to] == 0 {
		*ready = append(*ready, edges[best].to)
	}
	return true
}

func breakKey(e edge) string {
	return e.requirer + "\x00" + e.capability
}

// spliceUpgradePairs moves each EraseID to immediately follow its
// InstallID, so an upgrade's install lands right before the erase of the
// version it supersedes. Applied as a post-pass over the Kahn output.
func spliceUpgradePairs(order []int, pairs []UpgradePair) []int {
	if len(pairs) == 0 {
		return order
	}
	present := make(map[int]bool, len(order))
	for _, id := range order {
		present[id] = true
	}
	// Erases that will be re-emitted after their install are suppressed
	// at their natural position up front, so an erase sorted ahead of its
	// install is moved, not duplicated.
	spliced := make(map[int]bool, len(pairs))
	for _, p := range pairs {
		if present[p.InstallID] && present[p.EraseID] {
			spliced[p.EraseID] = true
		}
	}
	out := make([]int, 0, len(order))
	for _, id := range order {
		if spliced[id] {
			continue
		}
		out = append(out, id)
		for _, p := range pairs {
			if p.InstallID == id && spliced[p.EraseID] {
				out = append(out, p.EraseID)
				spliced[p.EraseID] = false
			}
		}
	}
	return out
}
