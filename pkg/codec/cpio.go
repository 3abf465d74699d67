package codec

import (
	"fmt"
	"io"
)

const (
	cpioMagic      = "070701"
	cpioHdrLen     = 110
	cpioTrailer    = "TRAILER!!!"
	cpioFieldWidth = 8
)

// cpioDialect implements the "newc" cpio format used by RPM payloads:
// a 110-byte fixed ASCII-hex header per member, followed by the
// NUL-terminated pathname and the file data, each padded to a 4-byte
// boundary. HeaderRead accepts both the "070701" and the "070702" (crc)
// magic without verifying the check field; HeaderWrite always emits
// "070701".
type cpioDialect struct{}

// NewCPIO returns a fresh cpio (newc) dialect instance.
func NewCPIO() Dialect { return &cpioDialect{} }

func (d *cpioDialect) Blksize() int { return 4 }

func (d *cpioDialect) HeaderRead(r io.Reader) (Entry, error) {
	var buf [cpioHdrLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Entry{}, fmt.Errorf("codec: cpio: read header: %w", err)
	}
	if m := string(buf[0:6]); m != cpioMagic && m != "070702" {
		return Entry{}, fmt.Errorf("%w: cpio: got %q", ErrBadMagic, buf[0:6])
	}

	fields := make([]uint64, 12)
	for i := 0; i < 12; i++ {
		off := 6 + i*cpioFieldWidth
		v, err := parseHex8(buf[off : off+cpioFieldWidth])
		if err != nil {
			return Entry{}, fmt.Errorf("%w: cpio: field %d: %v", ErrBadHeader, i, err)
		}
		fields[i] = v
	}

	ino, mode, uid, gid, nlink, mtime, filesize := fields[0], fields[1], fields[2], fields[3], fields[4], fields[5], fields[6]
	devmajor, devminor, rdevmajor, rdevminor, namesize := fields[7], fields[8], fields[9], fields[10], fields[11]
	_ = rdevmajor
	_ = rdevminor

	nameBuf := make([]byte, namesize)
	if _, err := io.ReadFull(r, nameBuf); err != nil {
		return Entry{}, fmt.Errorf("codec: cpio: read name: %w", err)
	}
	if namesize == 0 || nameBuf[namesize-1] != 0 {
		return Entry{}, fmt.Errorf("%w: cpio: name not NUL-terminated", ErrBadHeader)
	}
	name := string(nameBuf[:namesize-1])

	if pad := PadLen(int64(cpioHdrLen)+int64(namesize), 4); pad > 0 {
		if _, err := io.CopyN(io.Discard, r, pad); err != nil {
			return Entry{}, fmt.Errorf("codec: cpio: skip name pad: %w", err)
		}
	}

	if name == cpioTrailer {
		return Entry{}, ErrTrailer
	}

	return Entry{
		Path:     name,
		Mode:     uint32(mode),
		UID:      uint32(uid),
		GID:      uint32(gid),
		Size:     int64(filesize),
		NLink:    uint32(nlink),
		MTime:    int64(mtime),
		Rdev:     uint32(rdevmajor<<16 | rdevminor),
		Ino:      ino,
		Devmajor: uint32(devmajor),
		Devminor: uint32(devminor),
	}, nil
}

func (d *cpioDialect) HeaderWrite(w io.Writer, e Entry) error {
	return d.writeMember(w, e.Path, e)
}

func (d *cpioDialect) TrailerWrite(w io.Writer) error {
	return d.writeMember(w, cpioTrailer, Entry{NLink: 1})
}

func (d *cpioDialect) writeMember(w io.Writer, name string, e Entry) error {
	nameBytes := append([]byte(name), 0)

	var hdr [cpioHdrLen]byte
	copy(hdr[0:6], cpioMagic)
	writeHex8(hdr[6+0*8:], e.Ino)
	writeHex8(hdr[6+1*8:], uint64(e.Mode))
	writeHex8(hdr[6+2*8:], uint64(e.UID))
	writeHex8(hdr[6+3*8:], uint64(e.GID))
	writeHex8(hdr[6+4*8:], uint64(e.NLink))
	writeHex8(hdr[6+5*8:], uint64(e.MTime))
	writeHex8(hdr[6+6*8:], uint64(e.Size))
	writeHex8(hdr[6+7*8:], uint64(e.Devmajor))
	writeHex8(hdr[6+8*8:], uint64(e.Devminor))
	writeHex8(hdr[6+9*8:], uint64(e.Rdev>>16))
	writeHex8(hdr[6+10*8:], uint64(e.Rdev&0xffff))
	writeHex8(hdr[6+11*8:], uint64(len(nameBytes)))

	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("codec: cpio: write header: %w", err)
	}
	if _, err := w.Write(nameBytes); err != nil {
		return fmt.Errorf("codec: cpio: write name: %w", err)
	}
	if pad := PadLen(int64(cpioHdrLen)+int64(len(nameBytes)), 4); pad > 0 {
		if _, err := w.Write(make([]byte, pad)); err != nil {
			return fmt.Errorf("codec: cpio: write name pad: %w", err)
		}
	}
	return nil
}

func parseHex8(b []byte) (uint64, error) {
	var v uint64
	for _, c := range b {
		var d uint64
		switch {
		case c >= '0' && c <= '9':
			d = uint64(c - '0')
		case c >= 'a' && c <= 'f':
			d = uint64(c-'a') + 10
		case c >= 'A' && c <= 'F':
			d = uint64(c-'A') + 10
		default:
			return 0, fmt.Errorf("invalid hex digit %q", c)
		}
		v = v<<4 | d
	}
	return v, nil
}

func writeHex8(dst []byte, v uint64) {
	const hexDigits = "0123456789abcdef"
	for i := 7; i >= 0; i-- {
		dst[i] = hexDigits[v&0xf]
		v >>= 4
	}
}
