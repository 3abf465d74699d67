package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, dialect func() Dialect, entries []Entry, payloads [][]byte) []Entry {
	t.Helper()

	var buf bytes.Buffer
	w := dialect()
	for i, e := range entries {
		require.NoError(t, w.HeaderWrite(&buf, e))
		_, err := buf.Write(payloads[i])
		require.NoError(t, err)
		if pad := PadLen(int64(len(payloads[i])), w.Blksize()); pad > 0 {
			buf.Write(make([]byte, pad))
		}
	}
	require.NoError(t, w.TrailerWrite(&buf))

	r := dialect()
	var got []Entry
	for {
		e, err := r.HeaderRead(&buf)
		if errors.Is(err, ErrTrailer) {
			break
		}
		require.NoError(t, err)
		data := make([]byte, e.Size)
		_, err = buf.Read(data)
		require.NoError(t, err)
		if pad := PadLen(e.Size, r.Blksize()); pad > 0 {
			buf.Next(int(pad))
		}
		got = append(got, e)
	}
	return got
}

func TestCPIORoundTrip(t *testing.T) {
	entries := []Entry{
		{Path: "usr/bin/alpha", Mode: 0100755, Size: 5, NLink: 1, MTime: 1000, Ino: 1},
		{Path: "etc/alpha.conf", Mode: 0100644, Size: 3, NLink: 1, MTime: 1001, Ino: 2},
	}
	payloads := [][]byte{[]byte("ab"), []byte("xyz")}
	entries[0].Size = int64(len(payloads[0]))
	entries[1].Size = int64(len(payloads[1]))

	got := roundTrip(t, NewCPIO, entries, payloads)
	require.Len(t, got, 2)
	assert.Equal(t, "usr/bin/alpha", got[0].Path)
	assert.Equal(t, uint32(0100755), got[0].Mode)
	assert.Equal(t, "etc/alpha.conf", got[1].Path)
	assert.Equal(t, int64(3), got[1].Size)
}

func TestTarRoundTrip(t *testing.T) {
	entries := []Entry{
		{Path: "usr/bin/alpha", Mode: 0755, MTime: 1000},
		{Path: "etc/alpha.conf", Mode: 0644, MTime: 1001},
	}
	payloads := [][]byte{[]byte("ab"), []byte("xyz")}
	entries[0].Size = int64(len(payloads[0]))
	entries[1].Size = int64(len(payloads[1]))

	got := roundTrip(t, NewTar, entries, payloads)
	require.Len(t, got, 2)
	assert.Equal(t, "usr/bin/alpha", got[0].Path)
	assert.Equal(t, uint32(0755), got[0].Mode)
	assert.Equal(t, "etc/alpha.conf", got[1].Path)
}

func TestTarLongNameSplitsIntoPrefix(t *testing.T) {
	longDir := ""
	for i := 0; i < 10; i++ {
		longDir += "areallylongdirname/"
	}
	path := longDir + "alpha.conf"
	entries := []Entry{{Path: path, Mode: 0644}}
	payloads := [][]byte{[]byte("x")}
	entries[0].Size = 1

	got := roundTrip(t, NewTar, entries, payloads)
	require.Len(t, got, 1)
	assert.Equal(t, path, got[0].Path)
}

// TestTarLongLinkRoundTrip: a path too long for the ustar name/prefix
// split goes through the GNU LongLink member and still round-trips.
func TestTarLongLinkRoundTrip(t *testing.T) {
	longDir := ""
	for i := 0; i < 20; i++ {
		longDir += "averyverylongdirectoryname/"
	}
	path := longDir + "alpha.conf"
	require.Greater(t, len(path), 255)

	entries := []Entry{{Path: path, Mode: 0644, MTime: 1002}}
	payloads := [][]byte{[]byte("x")}
	entries[0].Size = 1

	got := roundTrip(t, NewTar, entries, payloads)
	require.Len(t, got, 1)
	assert.Equal(t, path, got[0].Path)
	assert.Equal(t, uint32(0644), got[0].Mode)
}

func TestARRoundTripShortAndLongNames(t *testing.T) {
	entries := []Entry{
		{Path: "short.o", Mode: 0644, MTime: 5},
		{Path: "a-rather-long-object-filename-that-exceeds-fifteen-bytes.o", Mode: 0644, MTime: 6},
	}
	payloads := [][]byte{[]byte("obj1"), []byte("obj2data")}
	entries[0].Size = int64(len(payloads[0]))
	entries[1].Size = int64(len(payloads[1]))

	got := roundTrip(t, NewAR, entries, payloads)
	require.Len(t, got, 2)
	assert.Equal(t, "short.o", got[0].Path)
	assert.Equal(t, "a-rather-long-object-filename-that-exceeds-fifteen-bytes.o", got[1].Path)
	assert.Equal(t, int64(len(payloads[1])), got[1].Size)
}

// TestARLongNameUsesSVR4Table pins the wire format: a long member name
// lands in a "//" table member terminated "/\n", and the member header
// references it as "/<offset>".
func TestARLongNameUsesSVR4Table(t *testing.T) {
	var buf bytes.Buffer
	w := NewAR()
	long := "a-rather-long-object-filename.o"
	require.Greater(t, len(long), 15)
	require.NoError(t, w.HeaderWrite(&buf, Entry{Path: long, Mode: 0644}))

	raw := buf.String()
	assert.Contains(t, raw, "//")
	assert.Contains(t, raw, long+"/\n")
	assert.Contains(t, raw, "/0 ")
}

func TestCPIOBadMagicRejected(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("notacpiomagicheader")
	buf.Write(bytes.Repeat([]byte("x"), cpioHdrLen))
	d := NewCPIO()
	_, err := d.HeaderRead(&buf)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestARBadMagicRejected(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("notthemagic")
	d := NewAR()
	_, err := d.HeaderRead(&buf)
	assert.ErrorIs(t, err, ErrBadMagic)
}
