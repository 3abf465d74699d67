package order_test

import (
	"testing"

	"github.com/pkgtx/corepm/pkg/order"
	"github.com/pkgtx/corepm/pkg/types"
	"github.com/stretchr/testify/require"
)

func dep(name string) types.Dependency { return types.Dependency{Name: name} }

// TestLinearInstallOrder mirrors install(A) -> install(B) when A
// requires a capability B provides: B must come before A.
func TestLinearInstallOrder(t *testing.T) {
	nodes := []order.Node{
		{ID: 1, Kind: types.TEAdded, NEVR: "a-1-1", Requires: []types.Dependency{dep("cap-b")}},
		{ID: 2, Kind: types.TEAdded, NEVR: "b-1-1", Provides: []types.Dependency{dep("cap-b")}},
	}

	res := order.Order(order.Input{Nodes: nodes})
	require.Equal(t, 0, res.Unordered)
	require.Equal(t, []int{2, 1}, res.Order)
}

func TestEraseOrderReversed(t *testing.T) {
	nodes := []order.Node{
		{ID: 1, Kind: types.TERemoved, NEVR: "a-1-1", Requires: []types.Dependency{dep("cap-b")}},
		{ID: 2, Kind: types.TERemoved, NEVR: "b-1-1", Provides: []types.Dependency{dep("cap-b")}},
	}

	res := order.Order(order.Input{Nodes: nodes})
	require.Equal(t, 0, res.Unordered)
	require.Equal(t, []int{1, 2}, res.Order)
}

// TestCycleBreaking: H5 requires a cap
// provided by H6, H6 requires(POST) cap provided by H5. order() must
// still emit both ids and report a non-zero unordered count.
func TestCycleBreaking(t *testing.T) {
	nodes := []order.Node{
		{ID: 5, Kind: types.TEAdded, NEVR: "h5-1-1",
			Requires: []types.Dependency{dep("cap-post-h6")},
			Provides: []types.Dependency{dep("cap-pre-h5")}},
		{ID: 6, Kind: types.TEAdded, NEVR: "h6-1-1",
			Requires: []types.Dependency{dep("cap-pre-h5")},
			Provides: []types.Dependency{dep("cap-post-h6")}},
	}

	res := order.Order(order.Input{Nodes: nodes})
	require.Len(t, res.Order, 2)
	require.ElementsMatch(t, []int{5, 6}, res.Order)
	require.Greater(t, res.Unordered, 0)
}

func TestUpgradePairAdjacency(t *testing.T) {
	nodes := []order.Node{
		{ID: 1, Kind: types.TEAdded, NEVR: "app-2-1"},
		{ID: 2, Kind: types.TERemoved, NEVR: "app-1-1"},
		{ID: 3, Kind: types.TEAdded, NEVR: "other-1-1"},
	}

	res := order.Order(order.Input{
		Nodes:        nodes,
		UpgradePairs: []order.UpgradePair{{InstallID: 1, EraseID: 2}},
	})

	require.Equal(t, 0, res.Unordered)
	idx1, idx2 := indexOf(res.Order, 1), indexOf(res.Order, 2)
	require.Equal(t, idx1+1, idx2)
}

// TestUpgradePairEraseSortedFirst: when the Kahn pass happens to place
// the erase before its install, splicing must move it, not duplicate it.
func TestUpgradePairEraseSortedFirst(t *testing.T) {
	nodes := []order.Node{
		{ID: 1, Kind: types.TERemoved, NEVR: "app-1-1"},
		{ID: 2, Kind: types.TEAdded, NEVR: "app-2-1"},
	}

	res := order.Order(order.Input{
		Nodes:        nodes,
		UpgradePairs: []order.UpgradePair{{InstallID: 2, EraseID: 1}},
	})

	require.Equal(t, []int{2, 1}, res.Order)
}

func indexOf(xs []int, v int) int {
	for i, x := range xs {
		if x == v {
			return i
		}
	}
	return -1
}
