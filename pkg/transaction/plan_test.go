package transaction

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pkgtx/corepm/pkg/header"
	"github.com/pkgtx/corepm/pkg/types"
)

func problemKinds(problems []types.Problem) []types.ProblemKind {
	kinds := make([]types.ProblemKind, len(problems))
	for i, p := range problems {
		kinds[i] = p.Kind
	}
	return kinds
}

// TestCheckReportsPkgInstalled: adding the exact version already in the
// store, without the upgrade flag, raises PKG_INSTALLED; the replacepkg
// filter silences it.
func TestCheckReportsPkgInstalled(t *testing.T) {
	ts, st, _ := newTestTS(t)
	content := []byte("alpha body")
	installed := buildHeader(t, "alpha", "/usr/bin/alpha", content, nil)
	_, err := st.Put(installed)
	require.NoError(t, err)

	again := buildHeader(t, "alpha", "/usr/bin/alpha", content, nil)
	_, err = ts.AddInstall(again, "alpha-key", false, nil)
	require.NoError(t, err)

	_, err = ts.Check()
	require.NoError(t, err)
	require.Contains(t, problemKinds(ts.Problems()), types.ProblemPkgInstalled)

	ts2, _, _ := newTestTSOnExisting(t, st, t.TempDir())
	ts2.env.FilterFlags = types.FilterReplacePkg
	_, err = ts2.AddInstall(again, "alpha-key", false, nil)
	require.NoError(t, err)
	_, err = ts2.Check()
	require.NoError(t, err)
	require.NotContains(t, problemKinds(ts2.Problems()), types.ProblemPkgInstalled)
}

// TestCheckReportsOldPackageOnDowngrade: upgrading to a lower version
// raises OLDPACKAGE unless the oldpackage filter is set.
func TestCheckReportsOldPackageOnDowngrade(t *testing.T) {
	ts, st, _ := newTestTS(t)
	installed := buildHeader(t, "alpha", "/usr/bin/alpha", []byte("new"), nil)
	pkgKey, err := st.Put(installed)
	require.NoError(t, err)

	older := buildHeader(t, "alpha", "/usr/bin/alpha", []byte("old"), nil)
	require.NoError(t, older.Put(header.TagVersion, types.TypeString, "0.9"))
	_, err = ts.AddInstall(older, "alpha-key", true, nil)
	require.NoError(t, err)
	_, err = ts.AddErase(installed, pkgKey)
	require.NoError(t, err)

	_, err = ts.Check()
	require.NoError(t, err)
	require.Contains(t, problemKinds(ts.Problems()), types.ProblemOldPackage)
}

// TestCheckReportsBadArch: a header built for a different machine
// architecture raises BADARCH; noarch never does.
func TestCheckReportsBadArch(t *testing.T) {
	ts, _, _ := newTestTS(t)
	ts.env.Arch = "x86_64"
	ts.env.OS = "linux"

	h := buildHeader(t, "alpha", "/usr/bin/alpha", []byte("x"), nil)
	require.NoError(t, h.Put(header.TagArch, types.TypeString, "aarch64"))
	require.NoError(t, h.Put(header.TagOS, types.TypeString, "linux"))
	_, err := ts.AddInstall(h, "alpha-key", false, nil)
	require.NoError(t, err)

	_, err = ts.Check()
	require.NoError(t, err)
	require.Contains(t, problemKinds(ts.Problems()), types.ProblemBadArch)
	require.NotContains(t, problemKinds(ts.Problems()), types.ProblemBadOS)

	ts2, _, _ := newTestTS(t)
	ts2.env.Arch = "x86_64"
	noarch := buildHeader(t, "beta", "/usr/bin/beta", []byte("x"), nil)
	require.NoError(t, noarch.Put(header.TagArch, types.TypeString, "noarch"))
	_, err = ts2.AddInstall(noarch, "beta-key", false, nil)
	require.NoError(t, err)
	_, err = ts2.Check()
	require.NoError(t, err)
	require.Empty(t, ts2.Problems())
}

// TestCheckNewFileConflict: two packages added in the same set claiming
// one path with different content conflict; identical claims coexist.
func TestCheckNewFileConflict(t *testing.T) {
	ts, _, _ := newTestTS(t)
	a := buildHeader(t, "alpha", "/usr/bin/shared", []byte("from alpha"), nil)
	b := buildHeader(t, "beta", "/usr/bin/shared", []byte("from beta"), nil)

	_, err := ts.AddInstall(a, "a-key", false, nil)
	require.NoError(t, err)
	_, err = ts.AddInstall(b, "b-key", false, nil)
	require.NoError(t, err)

	_, err = ts.Check()
	require.NoError(t, err)
	require.Contains(t, problemKinds(ts.Problems()), types.ProblemNewFileConflict)

	same := []byte("same bytes")
	ts2, _, _ := newTestTS(t)
	c := buildHeader(t, "gamma", "/usr/bin/shared", same, nil)
	d := buildHeader(t, "delta", "/usr/bin/shared", same, nil)
	_, err = ts2.AddInstall(c, "c-key", false, nil)
	require.NoError(t, err)
	_, err = ts2.AddInstall(d, "d-key", false, nil)
	require.NoError(t, err)
	_, err = ts2.Check()
	require.NoError(t, err)
	require.Empty(t, ts2.Problems())
}

// TestCheckFileConflictWithInstalled: an added package claiming a path
// an installed record owns with different content raises FILE_CONFLICT;
// the replaceoldfiles filter silences it.
func TestCheckFileConflictWithInstalled(t *testing.T) {
	ts, st, _ := newTestTS(t)
	owner := buildHeader(t, "alpha", "/usr/bin/shared", []byte("installed content"), nil)
	_, err := st.Put(owner)
	require.NoError(t, err)

	claimer := buildHeader(t, "beta", "/usr/bin/shared", []byte("different content"), nil)
	_, err = ts.AddInstall(claimer, "beta-key", false, nil)
	require.NoError(t, err)

	_, err = ts.Check()
	require.NoError(t, err)
	require.Contains(t, problemKinds(ts.Problems()), types.ProblemFileConflict)

	ts2, _, _ := newTestTSOnExisting(t, st, t.TempDir())
	ts2.env.FilterFlags = types.FilterReplaceOldFiles
	_, err = ts2.AddInstall(claimer, "beta-key", false, nil)
	require.NoError(t, err)
	_, err = ts2.Check()
	require.NoError(t, err)
	require.NotContains(t, problemKinds(ts2.Problems()), types.ProblemFileConflict)
}

// TestAddInstallAppliesRelocations: a matching relocation prefix rewrites
// the file set; a prefix matching nothing surfaces as BADRELOCATE.
func TestAddInstallAppliesRelocations(t *testing.T) {
	ts, _, _ := newTestTS(t)
	h := buildHeader(t, "alpha", "/opt/old/bin/alpha", []byte("x"), nil)

	relocs := map[string]string{
		"/opt/old/": "/opt/new/",
		"/missing/": "/elsewhere/",
	}
	_, err := ts.AddInstall(h, "alpha-key", false, relocs)
	require.NoError(t, err)

	el := ts.elements[0]
	idx, ok := el.fi.IndexOf("/opt/new/bin/alpha")
	require.True(t, ok)
	require.Equal(t, "alpha", el.fi.Files[idx].BaseName)
	_, ok = el.fi.IndexOf("/opt/old/bin/alpha")
	require.False(t, ok)

	_, err = ts.Check()
	require.NoError(t, err)
	var found *types.Problem
	probs := ts.Problems()
	for i := range probs {
		if probs[i].Kind == types.ProblemBadRelocate {
			found = &probs[i]
		}
	}
	require.NotNil(t, found)
	require.Equal(t, "/missing/", found.Str)
}

// TestSolveCallbackRetries: the resolve-missing callback injects a
// provider for an unsatisfied requires, and the re-run leaves no
// problems.
func TestSolveCallbackRetries(t *testing.T) {
	ts, _, _ := newTestTS(t)
	app := buildHeader(t, "app", "/usr/bin/app", []byte("app"), []string{"libbar"})
	_, err := ts.AddInstall(app, "app-key", false, nil)
	require.NoError(t, err)

	injected := false
	ts.SetSolveCallback(func(p types.Problem) bool {
		if injected || p.Str != "libbar" {
			return false
		}
		lib := buildHeader(t, "libbar", "/usr/lib/libbar.so", []byte("lib"), nil)
		_, err := ts.AddInstall(lib, "libbar-key", false, nil)
		require.NoError(t, err)
		injected = true
		return true
	})

	_, err = ts.Check()
	require.NoError(t, err)
	require.True(t, injected)
	require.Empty(t, ts.Problems())
}

// TestRunHonorsTestFlag: a test transaction fires callbacks but leaves
// the filesystem and store untouched.
func TestRunHonorsTestFlag(t *testing.T) {
	ts, st, root := newTestTS(t)
	ts.env.TransFlags = types.TransTest
	content := []byte("never written")
	h := buildHeader(t, "alpha", "/usr/bin/alpha", content, nil)

	_, err := ts.AddInstall(h, "alpha-key", false, nil)
	require.NoError(t, err)
	_, err = ts.Order()
	require.NoError(t, err)

	var progressed int
	newProbs, err := ts.Run(nil, func(ev Event) bool {
		if ev.Kind == NotifyTransProgress {
			progressed++
		}
		return false
	})
	require.NoError(t, err)
	require.Equal(t, 0, newProbs)
	require.Equal(t, 1, progressed)

	_, err = os.Stat(root + "/usr/bin/alpha")
	require.True(t, os.IsNotExist(err))
	keys, err := st.List()
	require.NoError(t, err)
	require.Empty(t, keys)
}

// TestRollbackUndoesCommittedInstall: after a successful run, Rollback
// erases the installed files and store records it committed.
func TestRollbackUndoesCommittedInstall(t *testing.T) {
	ts, st, root := newTestTS(t)
	content := []byte("hello world")
	h := buildHeader(t, "alpha", "/usr/bin/alpha", content, nil)

	_, err := ts.AddInstall(h, "alpha-key", false, nil)
	require.NoError(t, err)
	_, err = ts.Order()
	require.NoError(t, err)

	opener := memArchiveOpener{archives: map[string][]byte{
		"alpha-key": buildArchiveFor(t, "/usr/bin/alpha", content),
	}}
	_, err = ts.Run(opener, nil)
	require.NoError(t, err)
	require.FileExists(t, root+"/usr/bin/alpha")

	failed := ts.Rollback(nil)
	require.Equal(t, 0, failed)

	_, err = os.Stat(root + "/usr/bin/alpha")
	require.True(t, os.IsNotExist(err))
	keys, err := st.List()
	require.NoError(t, err)
	require.Empty(t, keys)
}
