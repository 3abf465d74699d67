package store

import (
	"testing"

	"github.com/pkgtx/corepm/pkg/header"
	"github.com/pkgtx/corepm/pkg/types"
	"github.com/stretchr/testify/require"
)

func buildHeader(t *testing.T, name string, provides, requires []string) *header.Header {
	t.Helper()
	h := header.New()
	require.NoError(t, h.Put(header.TagName, types.TypeString, name))
	require.NoError(t, h.Put(header.TagVersion, types.TypeString, "1.0"))
	require.NoError(t, h.Put(header.TagRelease, types.TypeString, "1"))
	require.NoError(t, h.Put(header.TagProvideName, types.TypeStringArray, provides))
	require.NoError(t, h.Put(header.TagRequireName, types.TypeStringArray, requires))
	require.NoError(t, h.Put(header.TagBasenames, types.TypeStringArray, []string{name}))
	require.NoError(t, h.Put(header.TagSigMD5, types.TypeString, "md5-"+name))
	return h
}

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStorePutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	h := buildHeader(t, "alpha", []string{"alpha"}, nil)

	key, err := s.Put(h)
	require.NoError(t, err)

	got, err := s.Get(key)
	require.NoError(t, err)
	n := got.NEVR()
	require.Equal(t, "alpha", n.Name)
}

func TestStoreFindByNameAndProvide(t *testing.T) {
	s := newTestStore(t)
	h1 := buildHeader(t, "alpha", []string{"alpha", "libalpha.so.1"}, nil)
	h2 := buildHeader(t, "beta", []string{"beta"}, []string{"libalpha.so.1"})

	k1, err := s.Put(h1)
	require.NoError(t, err)
	k2, err := s.Put(h2)
	require.NoError(t, err)

	byName, err := s.FindByName("alpha")
	require.NoError(t, err)
	require.Equal(t, []uint64{k1}, byName)

	byProvide, err := s.FindByProvide("libalpha.so.1")
	require.NoError(t, err)
	require.Equal(t, []uint64{k1}, byProvide)

	byRequire, err := s.FindByRequire("libalpha.so.1")
	require.NoError(t, err)
	require.Equal(t, []uint64{k2}, byRequire)
}

func TestStoreDelUnwindsIndices(t *testing.T) {
	s := newTestStore(t)
	h := buildHeader(t, "alpha", []string{"alpha"}, nil)
	key, err := s.Put(h)
	require.NoError(t, err)

	require.NoError(t, s.Del(key))

	_, err = s.Get(key)
	require.Error(t, err)

	byName, err := s.FindByName("alpha")
	require.NoError(t, err)
	require.Empty(t, byName)
}

func TestStoreFindByCachePkgPath(t *testing.T) {
	s := newTestStore(t)
	h := buildHeader(t, "alpha", nil, nil)
	require.NoError(t, h.Put(tagCachePkgPath, types.TypeString, "/var/cache/corepm/alpha-1.0-1.pkg"))

	key, err := s.Put(h)
	require.NoError(t, err)

	found, err := s.FindByCachePkgPath("/var/cache/corepm/alpha-1.0-1.pkg")
	require.NoError(t, err)
	require.Equal(t, []uint64{key}, found)
}
