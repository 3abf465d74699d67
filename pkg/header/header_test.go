package header

import (
	"testing"

	"github.com/pkgtx/corepm/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSampleHeader(t *testing.T) *Header {
	t.Helper()
	h := New()
	require.NoError(t, h.Put(TagName, types.TypeString, "alpha"))
	require.NoError(t, h.Put(TagVersion, types.TypeString, "1.0"))
	require.NoError(t, h.Put(TagRelease, types.TypeString, "1"))
	require.NoError(t, h.Put(TagArch, types.TypeString, "noarch"))
	require.NoError(t, h.Put(TagBasenames, types.TypeStringArray, []string{"alpha", "alpha.conf"}))
	require.NoError(t, h.Put(TagDirnames, types.TypeStringArray, []string{"/usr/bin/", "/etc/"}))
	require.NoError(t, h.Put(TagDirIndexes, types.TypeInt32, []uint64{0, 1}))
	require.NoError(t, h.Put(TagFileModes, types.TypeInt16, []uint64{0755, 0644}))
	require.NoError(t, h.Put(TagFileSizes, types.TypeInt32, []uint64{100, 42}))
	require.NoError(t, h.Put(TagFileDigests, types.TypeStringArray, []string{"deadbeef", "cafef00d"}))
	require.NoError(t, h.Put(TagFileDigestAlgos, types.TypeInt32, []uint64{uint64(DigestSHA1), uint64(DigestSHA1)}))
	require.NoError(t, h.Put(TagFileLinktos, types.TypeStringArray, []string{"", ""}))
	require.NoError(t, h.Put(TagFileFlags, types.TypeInt32, []uint64{0, 1}))
	require.NoError(t, h.Put(TagFileUsername, types.TypeStringArray, []string{"root", "root"}))
	require.NoError(t, h.Put(TagFileGroupname, types.TypeStringArray, []string{"root", "root"}))
	require.NoError(t, h.Put(TagFileMtimes, types.TypeInt32, []uint64{1000, 1001}))
	require.NoError(t, h.Put(TagFileRdevs, types.TypeInt16, []uint64{0, 0}))
	require.NoError(t, h.Put(TagFileInodes, types.TypeInt32, []uint64{1, 2}))
	require.NoError(t, h.Put(TagFileColors, types.TypeInt32, []uint64{0, 0}))
	require.NoError(t, h.Put(TagFileStates, types.TypeInt8, []uint64{0, 0}))
	require.NoError(t, h.Put(TagFileContexts, types.TypeStringArray, []string{"", ""}))
	return h
}

func TestHeaderRoundTrip(t *testing.T) {
	h := buildSampleHeader(t)
	require.NoError(t, h.Validate())

	blob, err := h.Serialize()
	require.NoError(t, err)

	reloaded, err := Load(blob)
	require.NoError(t, err)

	want := h.Iter()
	got := reloaded.Iter()
	require.Equal(t, len(want), len(got))
	for i := range want {
		assert.Equal(t, want[i].Tag, got[i].Tag)
		assert.Equal(t, want[i].Type, got[i].Type)
		assert.Equal(t, want[i].Value, got[i].Value)
	}
}

func TestHeaderValidateCatchesLengthMismatch(t *testing.T) {
	h := buildSampleHeader(t)
	require.NoError(t, h.Put(TagFileSizes, types.TypeInt32, []uint64{100}))
	err := h.Validate()
	assert.Error(t, err)
}

func TestHeaderValidateCatchesMixedDigestAlgos(t *testing.T) {
	h := buildSampleHeader(t)
	require.NoError(t, h.Put(TagFileDigestAlgos, types.TypeInt32, []uint64{uint64(DigestSHA1), uint64(DigestMD5)}))
	err := h.Validate()
	assert.ErrorIs(t, err, ErrMixedDigestAlgos)
}

func TestHeaderValidateCatchesDirIndexOutOfRange(t *testing.T) {
	h := buildSampleHeader(t)
	require.NoError(t, h.Put(TagDirIndexes, types.TypeInt32, []uint64{0, 5}))
	err := h.Validate()
	assert.Error(t, err)
}

func TestHeaderNEVR(t *testing.T) {
	h := buildSampleHeader(t)
	n := h.NEVR()
	assert.Equal(t, "alpha", n.Name)
	assert.Equal(t, "1.0", n.EVR.Version)
	assert.Equal(t, "1", n.EVR.Release)
	assert.Equal(t, "noarch", n.Arch)
}

func TestHeaderSprintf(t *testing.T) {
	h := buildSampleHeader(t)
	out, err := h.Sprintf("%{name}-%{version}-%{release}", nil)
	require.NoError(t, err)
	assert.Equal(t, "alpha-1.0-1", out)

	ext := map[string]ExtensionFunc{
		"installpath": func(h *Header) (string, error) { return "/usr/bin/alpha", nil },
	}
	out, err = h.Sprintf("%{name} installs to %{:installpath}", ext)
	require.NoError(t, err)
	assert.Equal(t, "alpha installs to /usr/bin/alpha", out)
}

func TestHeaderSprintfArrayIteration(t *testing.T) {
	h := buildSampleHeader(t)
	out, err := h.Sprintf("[%{dirnames}%{basenames} (%{filesizes})\n]", nil)
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/alpha (100)\n/etc/alpha.conf (42)\n", out)
}

func TestHeaderSprintfArrayIterationEmpty(t *testing.T) {
	h := New()
	require.NoError(t, h.Put(TagName, types.TypeString, "empty"))
	out, err := h.Sprintf("%{name}[ file %{basenames}]", nil)
	require.NoError(t, err)
	assert.Equal(t, "empty", out)
}

func TestHeaderSprintfConditional(t *testing.T) {
	h := buildSampleHeader(t)
	out, err := h.Sprintf("%{?arch:arch is %{arch}}", nil)
	require.NoError(t, err)
	assert.Equal(t, "arch is noarch", out)

	out, err = h.Sprintf("%{!?epoch:no epoch}", nil)
	require.NoError(t, err)
	assert.Equal(t, "no epoch", out)

	out, err = h.Sprintf("%{?epoch:has epoch}", nil)
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestHeaderPutTypeMismatchRejected(t *testing.T) {
	h := New()
	require.NoError(t, h.Put(TagName, types.TypeString, "alpha"))
	err := h.Put(TagName, types.TypeInt32, []uint64{1})
	assert.Error(t, err)
}
