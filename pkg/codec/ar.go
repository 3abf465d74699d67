package codec

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	arGlobalMagic   = "!<arch>\n"
	arHdrLen        = 60
	arEndMagic      = "`\n"
	arLongTableName = "//"
)

// arDialect implements the SVR4 "ar" archive format used for static
// library and source-package container payloads: an 8-byte global magic
// once per archive, then a run of 60-byte member headers. Short names
// are stored in the 16-byte name field with a "/" terminator; names
// that don't fit go into the "//" long-name table member and the member
// header references them as "/<offset>". The table is streamed: each
// long name is emitted as a "//" chunk immediately before the member
// that needs it, with offsets counted over the concatenation of every
// chunk, so a reader that appends "//" data as it arrives resolves both
// this layout and the conventional single up-front table.
type arDialect struct {
	magicDone bool
	magicSent bool
	longTable []byte
}

// NewAR returns a fresh ar dialect instance.
func NewAR() Dialect { return &arDialect{} }

func (d *arDialect) Blksize() int { return 2 }

func (d *arDialect) HeaderRead(r io.Reader) (Entry, error) {
	if !d.magicDone {
		var m [8]byte
		if _, err := io.ReadFull(r, m[:]); err != nil {
			return Entry{}, fmt.Errorf("codec: ar: read global magic: %w", err)
		}
		if string(m[:]) != arGlobalMagic {
			return Entry{}, fmt.Errorf("%w: ar: got %q", ErrBadMagic, m[:])
		}
		d.magicDone = true
	}

	for {
		var hdr [arHdrLen]byte
		_, err := io.ReadFull(r, hdr[:])
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Entry{}, ErrTrailer
		}
		if err != nil {
			return Entry{}, fmt.Errorf("codec: ar: read header: %w", err)
		}

		if string(hdr[58:60]) != arEndMagic {
			return Entry{}, fmt.Errorf("%w: ar: bad end magic %q", ErrBadHeader, hdr[58:60])
		}

		name := strings.TrimRight(string(hdr[0:16]), " ")
		mtime, err := parseDecimalField(hdr[16:28])
		if err != nil {
			return Entry{}, fmt.Errorf("%w: ar: mtime: %v", ErrBadHeader, err)
		}
		uid, err := parseDecimalField(hdr[28:34])
		if err != nil {
			return Entry{}, fmt.Errorf("%w: ar: uid: %v", ErrBadHeader, err)
		}
		gid, err := parseDecimalField(hdr[34:40])
		if err != nil {
			return Entry{}, fmt.Errorf("%w: ar: gid: %v", ErrBadHeader, err)
		}
		mode, err := parseArOctalMode(hdr[40:48])
		if err != nil {
			return Entry{}, fmt.Errorf("%w: ar: mode: %v", ErrBadHeader, err)
		}
		size, err := parseDecimalField(hdr[48:58])
		if err != nil {
			return Entry{}, fmt.Errorf("%w: ar: size: %v", ErrBadHeader, err)
		}

		// Long-name table member: append its data to the accumulated
		// table and loop for the member that references it.
		if name == arLongTableName {
			data := make([]byte, size)
			if _, err := io.ReadFull(r, data); err != nil {
				return Entry{}, fmt.Errorf("codec: ar: read long-name table: %w", err)
			}
			d.longTable = append(d.longTable, data...)
			if size%2 == 1 {
				if _, err := io.CopyN(io.Discard, r, 1); err != nil {
					return Entry{}, fmt.Errorf("codec: ar: skip table pad: %w", err)
				}
			}
			continue
		}

		if ref, ok := strings.CutPrefix(name, "/"); ok && isAllDigits(ref) {
			offset, err := strconv.ParseInt(ref, 10, 64)
			if err != nil {
				return Entry{}, fmt.Errorf("%w: ar: long-name offset: %v", ErrBadHeader, err)
			}
			name, err = d.resolveLongName(offset)
			if err != nil {
				return Entry{}, err
			}
		} else {
			name = strings.TrimSuffix(name, "/")
		}

		return Entry{
			Path:  name,
			Mode:  uint32(mode),
			UID:   uint32(uid),
			GID:   uint32(gid),
			Size:  int64(size),
			MTime: int64(mtime),
			NLink: 1,
		}, nil
	}
}

// resolveLongName returns the table entry starting at offset: bytes up
// to the "/\n" terminator (a bare "\n" is also accepted, as some
// writers omit the slash).
func (d *arDialect) resolveLongName(offset int64) (string, error) {
	if offset < 0 || offset >= int64(len(d.longTable)) {
		return "", fmt.Errorf("%w: ar: long-name offset %d outside table", ErrBadHeader, offset)
	}
	rest := d.longTable[offset:]
	end := 0
	for end < len(rest) && rest[end] != '\n' {
		end++
	}
	if end == len(rest) {
		return "", fmt.Errorf("%w: ar: unterminated long-name entry at offset %d", ErrBadHeader, offset)
	}
	return strings.TrimSuffix(string(rest[:end]), "/"), nil
}

func (d *arDialect) HeaderWrite(w io.Writer, e Entry) error {
	if !d.magicSent {
		if _, err := io.WriteString(w, arGlobalMagic); err != nil {
			return fmt.Errorf("codec: ar: write global magic: %w", err)
		}
		d.magicSent = true
	}

	nameField := ""
	if len(e.Path)+1 <= 16 {
		nameField = e.Path + "/"
	} else {
		offset := len(d.longTable)
		chunk := []byte(e.Path + "/\n")
		if err := d.writeLongTableChunk(w, chunk); err != nil {
			return err
		}
		d.longTable = append(d.longTable, chunk...)
		nameField = "/" + strconv.Itoa(offset)
	}

	var hdr [arHdrLen]byte
	for i := range hdr[0:16] {
		hdr[i] = ' '
	}
	copy(hdr[0:16], nameField)
	putDecimalField(hdr[16:28], uint64(e.MTime))
	putDecimalField(hdr[28:34], uint64(e.UID))
	putDecimalField(hdr[34:40], uint64(e.GID))
	putArOctalMode(hdr[40:48], e.Mode)
	putDecimalField(hdr[48:58], uint64(e.Size))
	copy(hdr[58:60], arEndMagic)

	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("codec: ar: write header: %w", err)
	}
	return nil
}

// writeLongTableChunk emits one "//" member carrying chunk, padded to
// the 2-byte boundary with a newline.
func (d *arDialect) writeLongTableChunk(w io.Writer, chunk []byte) error {
	var hdr [arHdrLen]byte
	for i := range hdr[0:16] {
		hdr[i] = ' '
	}
	copy(hdr[0:16], arLongTableName)
	putDecimalField(hdr[16:28], 0)
	putDecimalField(hdr[28:34], 0)
	putDecimalField(hdr[34:40], 0)
	putArOctalMode(hdr[40:48], 0)
	putDecimalField(hdr[48:58], uint64(len(chunk)))
	copy(hdr[58:60], arEndMagic)

	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("codec: ar: write long-name table header: %w", err)
	}
	if _, err := w.Write(chunk); err != nil {
		return fmt.Errorf("codec: ar: write long-name table: %w", err)
	}
	if len(chunk)%2 == 1 {
		if _, err := w.Write([]byte{'\n'}); err != nil {
			return fmt.Errorf("codec: ar: write table pad: %w", err)
		}
	}
	return nil
}

func (d *arDialect) TrailerWrite(w io.Writer) error {
	return nil
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func parseDecimalField(b []byte) (uint64, error) {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

func putDecimalField(dst []byte, v uint64) {
	s := strconv.FormatUint(v, 10)
	copy(dst, s)
	for i := len(s); i < len(dst); i++ {
		dst[i] = ' '
	}
}

func parseArOctalMode(b []byte) (uint64, error) {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 8, 32)
}

func putArOctalMode(dst []byte, mode uint32) {
	s := strconv.FormatUint(uint64(mode), 8)
	copy(dst, s)
	for i := len(s); i < len(dst); i++ {
		dst[i] = ' '
	}
}
