package codec

import (
	"errors"
	"io"
)

// Entry describes one archive member: the metadata carried by a payload
// header, independent of which dialect encoded it.
type Entry struct {
	Path     string
	Mode     uint32
	UID      uint32
	GID      uint32
	Size     int64
	NLink    uint32
	MTime    int64
	Rdev     uint32
	Ino      uint64
	Devmajor uint32
	Devminor uint32
	Linkname string
}

// ErrTrailer is returned by HeaderRead to signal a clean end of archive.
// It is a sentinel, not a failure: the FSM's install/erase loop treats it
// as normal termination.
var ErrTrailer = errors.New("codec: archive trailer")

// ErrBadMagic is returned when a dialect's fixed magic bytes don't match.
var ErrBadMagic = errors.New("codec: bad magic")

// ErrBadHeader is returned when a header's fields fail to parse (bad hex,
// bad octal, unterminated name, checksum mismatch). A truncated read is
// reported as the wrapped I/O error instead.
var ErrBadHeader = errors.New("codec: bad header")

// ErrHdrSize is returned when a header claims a size inconsistent with
// the dialect's fixed-header length (e.g. a name too long for its field).
var ErrHdrSize = errors.New("codec: header size")

// Dialect streams one archive format's headers. A Dialect instance is
// stateful across a single archive: constructors return a fresh value
// per archive, not a shared singleton.
type Dialect interface {
	// HeaderRead consumes one member header from r and returns its
	// Entry. The data payload itself (Entry.Size bytes, pre-padding) must
	// be read separately by the caller before the next HeaderRead. At a
	// clean end of archive, HeaderRead returns ErrTrailer.
	HeaderRead(r io.Reader) (Entry, error)

	// HeaderWrite emits one member header for e.
	HeaderWrite(w io.Writer, e Entry) error

	// TrailerWrite emits the dialect's end-of-archive marker.
	TrailerWrite(w io.Writer) error

	// Blksize is the padding quantum applied after each data payload.
	Blksize() int
}

// PadLen returns the number of pad bytes needed to round n up to the
// dialect's block size.
func PadLen(n int64, blksize int) int64 {
	if blksize <= 1 {
		return 0
	}
	rem := n % int64(blksize)
	if rem == 0 {
		return 0
	}
	return int64(blksize) - rem
}

// CopyPayload copies exactly e.Size bytes from r to w, then discards the
// dialect's trailing pad bytes from r. Used by callers that stream a
// payload between HeaderRead calls.
func CopyPayload(w io.Writer, r io.Reader, size int64, blksize int) error {
	if _, err := io.CopyN(w, r, size); err != nil {
		return err
	}
	if pad := PadLen(size, blksize); pad > 0 {
		if _, err := io.CopyN(io.Discard, r, pad); err != nil {
			return err
		}
	}
	return nil
}

// SkipPayload discards e.Size payload bytes plus padding without copying
// them anywhere, used on erase/verify paths that only need headers.
func SkipPayload(r io.Reader, size int64, blksize int) error {
	if _, err := io.CopyN(io.Discard, r, size); err != nil {
		return err
	}
	if pad := PadLen(size, blksize); pad > 0 {
		if _, err := io.CopyN(io.Discard, r, pad); err != nil {
			return err
		}
	}
	return nil
}
