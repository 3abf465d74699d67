package archive

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"testing"

	"github.com/pkgtx/corepm/pkg/header"
	"github.com/pkgtx/corepm/pkg/types"
	"github.com/stretchr/testify/require"
)

// buildLead encodes a minimal 96-byte Lead for name.
func buildLead(t *testing.T, name string) []byte {
	t.Helper()
	var buf [leadSize]byte
	binary.BigEndian.PutUint32(buf[0:4], LeadMagic)
	buf[4] = 3
	buf[5] = 0
	copy(buf[10:76], name)
	return buf[:]
}

// buildBlob serializes h and pads the result to an 8-byte boundary when
// padTo8 is set, mirroring the signature-header alignment rule.
func buildBlob(t *testing.T, h *header.Header, padTo8 bool) []byte {
	t.Helper()
	data, err := h.Serialize()
	require.NoError(t, err)
	if padTo8 {
		if pad := (8 - len(data)%8) % 8; pad > 0 {
			data = append(data, make([]byte, pad)...)
		}
	}
	return data
}

func buildPackageFile(t *testing.T, compressor string, payload []byte) []byte {
	t.Helper()

	sigHdr := header.New()
	require.NoError(t, sigHdr.Put(header.TagSigMD5, types.TypeBin, []byte("0123456789abcdef")))

	metaHdr := header.New()
	require.NoError(t, metaHdr.Put(header.TagName, types.TypeString, "sample"))
	require.NoError(t, metaHdr.Put(header.TagVersion, types.TypeString, "1.0"))
	require.NoError(t, metaHdr.Put(header.TagRelease, types.TypeString, "1"))
	require.NoError(t, metaHdr.Put(header.TagArch, types.TypeString, "noarch"))
	require.NoError(t, metaHdr.Put(header.TagPayloadCompressor, types.TypeString, compressor))

	var out bytes.Buffer
	out.Write(buildLead(t, "sample-1.0-1"))
	out.Write(buildBlob(t, sigHdr, true))
	out.Write(buildBlob(t, metaHdr, false))

	switch compressor {
	case "gzip", "":
		gz := gzip.NewWriter(&out)
		_, err := gz.Write(payload)
		require.NoError(t, err)
		require.NoError(t, gz.Close())
	case "none", "uncompressed":
		out.Write(payload)
	default:
		t.Fatalf("buildPackageFile: unhandled compressor %q in test helper", compressor)
	}

	return out.Bytes()
}

func TestOpenRoundTripGzip(t *testing.T) {
	payload := []byte("a cpio stream would go here")
	raw := buildPackageFile(t, "gzip", payload)

	pkg, err := Open(bytes.NewReader(raw))
	require.NoError(t, err)
	defer pkg.Close()

	require.Equal(t, LeadMagic, uint32(LeadMagic))
	require.Equal(t, "sample-1.0-1", pkg.Lead.Name)

	_, name, ok := pkg.Header.Get(header.TagName)
	require.True(t, ok)
	require.Equal(t, "sample", name)

	got := make([]byte, len(payload))
	_, err = pkg.Payload.Read(got)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestOpenUncompressedPayload(t *testing.T) {
	payload := []byte("raw archive bytes")
	raw := buildPackageFile(t, "none", payload)

	pkg, err := Open(bytes.NewReader(raw))
	require.NoError(t, err)
	defer pkg.Close()

	got := make([]byte, len(payload))
	_, err = pkg.Payload.Read(got)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestOpenRejectsBadMagic(t *testing.T) {
	raw := buildPackageFile(t, "gzip", []byte("x"))
	raw[0] = 0

	_, err := Open(bytes.NewReader(raw))
	require.Error(t, err)
}

func TestOpenRejectsUnsupportedCompressor(t *testing.T) {
	sigHdr := header.New()
	require.NoError(t, sigHdr.Put(header.TagSigMD5, types.TypeBin, []byte("0123456789abcdef")))

	metaHdr := header.New()
	require.NoError(t, metaHdr.Put(header.TagName, types.TypeString, "sample"))
	require.NoError(t, metaHdr.Put(header.TagPayloadCompressor, types.TypeString, "xz"))

	var out bytes.Buffer
	out.Write(buildLead(t, "sample-1.0-1"))
	out.Write(buildBlob(t, sigHdr, true))
	out.Write(buildBlob(t, metaHdr, false))
	out.Write([]byte("unreadable xz stream"))

	_, err := Open(bytes.NewReader(out.Bytes()))
	require.ErrorIs(t, err, ErrUnsupportedCompressor)
}
