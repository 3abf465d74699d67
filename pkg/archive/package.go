// Package archive parses the on-disk package file layout:
// a fixed Lead, a signature header blob, the metadata header blob, and a
// compressed payload stream. It exposes the decompressed payload as a
// plain reader; choosing the archive dialect from the header's
// PAYLOADFORMAT tag is left to the caller (pkg/transaction does it).
//
// Open (and OpenFile, which wraps it) parses the whole layout and picks
// the decompressor from the PAYLOADCOMPRESSOR tag.
package archive

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/pkgtx/corepm/pkg/header"
)

// LeadMagic is the 4-byte magic starting every package file
const LeadMagic uint32 = 0xEDABEEDB

const leadSize = 96

// Lead is the fixed 96-byte header at the start of a package file.
type Lead struct {
	VersionMajor byte
	VersionMinor byte
	Type         uint16 // 0 = binary, 1 = source
	Archnum      uint16
	Name         string // NEVR string, NUL-padded to 66 bytes on disk
	Osnum        uint16
	SigType      uint16
}

// ReadLead parses the 96-byte Lead from r.
func ReadLead(r io.Reader) (Lead, error) {
	var buf [leadSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Lead{}, fmt.Errorf("archive: read lead: %w", err)
	}

	magic := binary.BigEndian.Uint32(buf[0:4])
	if magic != LeadMagic {
		return Lead{}, fmt.Errorf("archive: bad lead magic %#x", magic)
	}

	l := Lead{
		VersionMajor: buf[4],
		VersionMinor: buf[5],
		Type:         binary.BigEndian.Uint16(buf[6:8]),
		Archnum:      binary.BigEndian.Uint16(buf[8:10]),
		Name:         cString(buf[10:76]),
		Osnum:        binary.BigEndian.Uint16(buf[76:78]),
		SigType:      binary.BigEndian.Uint16(buf[78:80]),
	}
	return l, nil
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// readBlob reads one 8-byte-aligned header blob: 8-byte magic+version,
// a 4-byte index-entry count, a 4-byte data length, the index entries,
// then the data region. It returns the raw bytes suitable for
// header.Load, and pads the following read to the next 8-byte boundary
// as signature headers require.
func readBlob(r io.Reader, padTo8 bool) ([]byte, error) {
	var fixed [16]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, fmt.Errorf("archive: read blob prefix: %w", err)
	}
	nindex := binary.BigEndian.Uint32(fixed[8:12])
	dlen := binary.BigEndian.Uint32(fixed[12:16])

	indexBytes := int64(nindex) * 16
	body := make([]byte, indexBytes+int64(dlen))
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("archive: read blob body: %w", err)
	}

	full := append(append([]byte{}, fixed[:]...), body...)

	if padTo8 {
		total := len(full)
		if pad := (8 - total%8) % 8; pad > 0 {
			if _, err := io.CopyN(io.Discard, r, int64(pad)); err != nil {
				return nil, fmt.Errorf("archive: read blob pad: %w", err)
			}
		}
	}
	return full, nil
}

// Package is one opened package file: its parsed metadata Header and a
// reader positioned at the start of the decompressed payload archive
// (the cpio/tar/ar stream a pkg/codec.Dialect consumes).
type Package struct {
	Lead      Lead
	SigHeader *header.Header
	Header    *header.Header
	Payload   io.Reader

	closer io.Closer
}

// Close releases the underlying file, if Open opened one.
func (p *Package) Close() error {
	if p.closer != nil {
		return p.closer.Close()
	}
	return nil
}

// Open parses Lead, signature header, and metadata header from r in
// sequence, then wraps the remainder in the decompressor named by the
// metadata header's PAYLOADCOMPRESSOR tag.
func Open(r io.Reader) (*Package, error) {
	br := bufio.NewReader(r)

	lead, err := ReadLead(br)
	if err != nil {
		return nil, err
	}

	sigBytes, err := readBlob(br, true)
	if err != nil {
		return nil, fmt.Errorf("archive: signature header: %w", err)
	}
	sigHdr, err := header.Load(sigBytes)
	if err != nil {
		return nil, fmt.Errorf("archive: parse signature header: %w", err)
	}

	hdrBytes, err := readBlob(br, false)
	if err != nil {
		return nil, fmt.Errorf("archive: metadata header: %w", err)
	}
	hdr, err := header.Load(hdrBytes)
	if err != nil {
		return nil, fmt.Errorf("archive: parse metadata header: %w", err)
	}

	payload, err := decompressor(hdr, br)
	if err != nil {
		return nil, err
	}

	return &Package{Lead: lead, SigHeader: sigHdr, Header: hdr, Payload: payload}, nil
}

// OpenFile opens path and parses it with Open, returning a Package whose
// Close disposes of the file handle too.
func OpenFile(path string) (*Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	pkg, err := Open(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	pkg.closer = f
	return pkg, nil
}

// decompressor selects the payload decompressor named by the header's
// PAYLOADCOMPRESSOR tag: gzip and bzip2 via the standard library, zstd
// via github.com/klauspost/compress. xz and lzma packages are rejected
// with ErrUnsupportedCompressor.
func decompressor(hdr *header.Header, r io.Reader) (io.Reader, error) {
	name := "gzip"
	if _, v, ok := hdr.Get(header.TagPayloadCompressor); ok {
		if s, ok := v.(string); ok && s != "" {
			name = s
		}
	}

	switch name {
	case "gzip", "":
		return gzip.NewReader(r)
	case "bzip2":
		return bzip2.NewReader(r), nil
	case "zstd":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("archive: zstd: %w", err)
		}
		return zr.IOReadCloser(), nil
	case "none", "uncompressed":
		return r, nil
	default:
		return nil, fmt.Errorf("archive: %w: %q", ErrUnsupportedCompressor, name)
	}
}

// ErrUnsupportedCompressor is returned by Open when a package names a
// PAYLOADCOMPRESSOR this engine has no decoder for.
var ErrUnsupportedCompressor = fmt.Errorf("archive: unsupported payload compressor")
