package header

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/pkgtx/corepm/pkg/types"
)

var magic = [4]byte{0x8e, 0xad, 0xe8, 0x01}

const formatVersion = 1

// entry is one tag's stored value. Value holds one of: uint64 (scalar
// ints, widened for storage), []uint64 (int arrays), string, []byte,
// []string (string arrays and i18n string arrays).
type entry struct {
	Type  types.TagType
	Value interface{}
	Count int
}

// Header is the typed tag→value dictionary behind every package. The
// zero value is not usable; use New.
type Header struct {
	tags map[Tag]entry
}

// New returns an empty, mutable Header.
func New() *Header {
	return &Header{tags: make(map[Tag]entry)}
}

// Get returns the type and array value stored for tag, or ok=false if
// the tag is absent. The returned value is a borrowed view: callers must
// not mutate slices returned here.
func (h *Header) Get(tag Tag) (types.TagType, interface{}, bool) {
	e, ok := h.tags[tag]
	if !ok {
		return types.TypeNull, nil, false
	}
	return e.Type, e.Value, true
}

// Put stores value under tag with the given type. A tag's type is fixed
// by its first Put; subsequent Puts of a different type are rejected
// ("each tag has exactly one type").
func (h *Header) Put(tag Tag, typ types.TagType, value interface{}) error {
	if existing, ok := h.tags[tag]; ok && existing.Type != typ {
		return fmt.Errorf("header: tag %d already has type %v, cannot put %v", tag, existing.Type, typ)
	}
	count := arrayLen(typ, value)
	h.tags[tag] = entry{Type: typ, Value: value, Count: count}
	return nil
}

func arrayLen(typ types.TagType, value interface{}) int {
	switch typ {
	case types.TypeStringArray, types.TypeI18NString:
		if v, ok := value.([]string); ok {
			return len(v)
		}
	case types.TypeBin:
		if v, ok := value.([]byte); ok {
			return len(v)
		}
	case types.TypeInt8, types.TypeInt16, types.TypeInt32, types.TypeInt64:
		if v, ok := value.([]uint64); ok {
			return len(v)
		}
	case types.TypeString:
		return 1
	}
	return 1
}

// Del removes tag, if present.
func (h *Header) Del(tag Tag) {
	delete(h.tags, tag)
}

// TagEntry is one (tag, type, value) triple yielded by Iter.
type TagEntry struct {
	Tag   Tag
	Type  types.TagType
	Value interface{}
}

// Iter yields every stored tag in a stable (ascending tag-number) order.
// The iteration order is unspecified but stable -- we pick ascending
// for determinism across the whole codebase (serialize/sprintf/tests all
// rely on it).
func (h *Header) Iter() []TagEntry {
	tags := make([]Tag, 0, len(h.tags))
	for t := range h.tags {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })

	out := make([]TagEntry, 0, len(tags))
	for _, t := range tags {
		e := h.tags[t]
		out = append(out, TagEntry{Tag: t, Type: e.Type, Value: e.Value})
	}
	return out
}

// NEVR reconstructs the package identity from the standard identity tags.
func (h *Header) NEVR() types.NEVR {
	var n types.NEVR
	if _, v, ok := h.Get(TagName); ok {
		n.Name, _ = v.(string)
	}
	if _, v, ok := h.Get(TagEpoch); ok {
		if arr, ok := v.([]uint64); ok && len(arr) > 0 {
			e := int(arr[0])
			n.EVR.Epoch = &e
		}
	}
	if _, v, ok := h.Get(TagVersion); ok {
		n.EVR.Version, _ = v.(string)
	}
	if _, v, ok := h.Get(TagRelease); ok {
		n.EVR.Release, _ = v.(string)
	}
	if _, v, ok := h.Get(TagArch); ok {
		n.Arch, _ = v.(string)
	}
	if _, v, ok := h.Get(TagOS); ok {
		n.OS, _ = v.(string)
	}
	return n
}

// ErrMixedDigestAlgos is returned by Validate when the per-file
// digest-algorithm array disagrees internally; a header naming more than
// one algorithm is rejected as malformed.
var ErrMixedDigestAlgos = fmt.Errorf("header: mixed file digest algorithms")

// Validate checks the cross-tag invariants: all file-info
// arrays share one length F, dir indexes lie in [0, D), and the
// file-digest-algorithm array (if present) names a single algorithm.
func (h *Header) Validate() error {
	var dirCount = -1
	if _, v, ok := h.Get(TagDirnames); ok {
		if arr, ok := v.([]string); ok {
			dirCount = len(arr)
		}
	}

	fileCount := -1
	for _, t := range fileInfoTags {
		_, v, ok := h.Get(t)
		if !ok {
			continue
		}
		n := reflectLen(v)
		if fileCount == -1 {
			fileCount = n
		} else if n != fileCount {
			return fmt.Errorf("header: file array length mismatch for tag %d: got %d, want %d", t, n, fileCount)
		}
	}

	if dirCount >= 0 {
		if _, v, ok := h.Get(TagDirIndexes); ok {
			if arr, ok := v.([]uint64); ok {
				for _, idx := range arr {
					if int(idx) < 0 || int(idx) >= dirCount {
						return fmt.Errorf("header: dirindex %d out of range [0,%d)", idx, dirCount)
					}
				}
			}
		}
	}

	if _, v, ok := h.Get(TagFileDigestAlgos); ok {
		if arr, ok := v.([]uint64); ok && len(arr) > 0 {
			first := arr[0]
			for _, a := range arr[1:] {
				if a != first {
					return ErrMixedDigestAlgos
				}
			}
			if _, ok := digestLength(uint32(first)); !ok {
				return fmt.Errorf("header: unknown digest algorithm %d", first)
			}
		}
	}

	return nil
}

func reflectLen(v interface{}) int {
	switch vv := v.(type) {
	case []string:
		return len(vv)
	case []uint64:
		return len(vv)
	case []byte:
		return len(vv)
	default:
		return -1
	}
}

// Serialize packs the header into its on-disk wire format:
// 8-byte magic+version, 4-byte index count, 4-byte data length, then N
// 16-byte index entries followed by the packed data region.
func (h *Header) Serialize() ([]byte, error) {
	entries := h.Iter()

	var data bytes.Buffer
	type idxEnt struct {
		tag, typ, offset, count uint32
	}
	idx := make([]idxEnt, 0, len(entries))

	for _, e := range entries {
		offset := uint32(data.Len())
		count, err := encodeValue(&data, e.Type, e.Value)
		if err != nil {
			return nil, fmt.Errorf("header: serialize tag %d: %w", e.Tag, err)
		}
		idx = append(idx, idxEnt{uint32(e.Tag), uint32(e.Type), offset, uint32(count)})
	}

	var out bytes.Buffer
	out.Write(magic[:])
	var verBuf [4]byte
	binary.BigEndian.PutUint32(verBuf[:], formatVersion)
	out.Write(verBuf[:])

	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(len(idx)))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(data.Len()))
	out.Write(hdr[:])

	for _, ie := range idx {
		var b [16]byte
		binary.BigEndian.PutUint32(b[0:4], ie.tag)
		binary.BigEndian.PutUint32(b[4:8], ie.typ)
		binary.BigEndian.PutUint32(b[8:12], ie.offset)
		binary.BigEndian.PutUint32(b[12:16], ie.count)
		out.Write(b[:])
	}
	out.Write(data.Bytes())

	return out.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, typ types.TagType, value interface{}) (count int, err error) {
	switch typ {
	case types.TypeString:
		s, _ := value.(string)
		buf.WriteString(s)
		buf.WriteByte(0)
		return 1, nil
	case types.TypeStringArray, types.TypeI18NString:
		arr, _ := value.([]string)
		for _, s := range arr {
			buf.WriteString(s)
			buf.WriteByte(0)
		}
		return len(arr), nil
	case types.TypeBin:
		b, _ := value.([]byte)
		buf.Write(b)
		return len(b), nil
	case types.TypeInt8:
		arr, _ := value.([]uint64)
		for _, v := range arr {
			buf.WriteByte(byte(v))
		}
		return len(arr), nil
	case types.TypeInt16:
		arr, _ := value.([]uint64)
		var b [2]byte
		for _, v := range arr {
			binary.BigEndian.PutUint16(b[:], uint16(v))
			buf.Write(b[:])
		}
		return len(arr), nil
	case types.TypeInt32:
		arr, _ := value.([]uint64)
		var b [4]byte
		for _, v := range arr {
			binary.BigEndian.PutUint32(b[:], uint32(v))
			buf.Write(b[:])
		}
		return len(arr), nil
	case types.TypeInt64:
		arr, _ := value.([]uint64)
		var b [8]byte
		for _, v := range arr {
			binary.BigEndian.PutUint64(b[:], v)
			buf.Write(b[:])
		}
		return len(arr), nil
	default:
		return 0, fmt.Errorf("unsupported tag type %v", typ)
	}
}

// Load parses the wire format produced by Serialize, inverse of
// Serialize, tag-by-tag.
func Load(data []byte) (*Header, error) {
	if len(data) < 16 {
		return nil, fmt.Errorf("header: truncated blob (%d bytes)", len(data))
	}
	if !bytes.Equal(data[0:4], magic[:]) {
		return nil, fmt.Errorf("header: bad magic")
	}
	ver := binary.BigEndian.Uint32(data[4:8])
	if ver != formatVersion {
		return nil, fmt.Errorf("header: unsupported format version %d", ver)
	}
	nIdx := binary.BigEndian.Uint32(data[8:12])
	dataLen := binary.BigEndian.Uint32(data[12:16])

	idxStart := 16
	idxBytes := int(nIdx) * 16
	if len(data) < idxStart+idxBytes {
		return nil, fmt.Errorf("header: truncated index")
	}
	dataStart := idxStart + idxBytes
	if len(data) < dataStart+int(dataLen) {
		return nil, fmt.Errorf("header: truncated data region")
	}
	region := data[dataStart : dataStart+int(dataLen)]

	h := New()
	for i := 0; i < int(nIdx); i++ {
		off := idxStart + i*16
		tag := Tag(binary.BigEndian.Uint32(data[off : off+4]))
		typ := types.TagType(binary.BigEndian.Uint32(data[off+4 : off+8]))
		offset := binary.BigEndian.Uint32(data[off+8 : off+12])
		count := binary.BigEndian.Uint32(data[off+12 : off+16])

		value, err := decodeValue(region, offset, typ, count)
		if err != nil {
			return nil, fmt.Errorf("header: decode tag %d: %w", tag, err)
		}
		if err := h.Put(tag, typ, value); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func decodeValue(region []byte, offset uint32, typ types.TagType, count uint32) (interface{}, error) {
	rest := region[offset:]
	switch typ {
	case types.TypeString:
		s, _, err := readCString(rest)
		return s, err
	case types.TypeStringArray, types.TypeI18NString:
		out := make([]string, 0, count)
		for i := uint32(0); i < count; i++ {
			s, n, err := readCString(rest)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
			rest = rest[n:]
		}
		return out, nil
	case types.TypeBin:
		return append([]byte(nil), rest[:count]...), nil
	case types.TypeInt8:
		out := make([]uint64, count)
		for i := uint32(0); i < count; i++ {
			out[i] = uint64(rest[i])
		}
		return out, nil
	case types.TypeInt16:
		out := make([]uint64, count)
		for i := uint32(0); i < count; i++ {
			out[i] = uint64(binary.BigEndian.Uint16(rest[i*2:]))
		}
		return out, nil
	case types.TypeInt32:
		out := make([]uint64, count)
		for i := uint32(0); i < count; i++ {
			out[i] = uint64(binary.BigEndian.Uint32(rest[i*4:]))
		}
		return out, nil
	case types.TypeInt64:
		out := make([]uint64, count)
		for i := uint32(0); i < count; i++ {
			out[i] = binary.BigEndian.Uint64(rest[i*8:])
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported tag type %v", typ)
	}
}

func readCString(b []byte) (string, int, error) {
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), i + 1, nil
		}
	}
	return "", 0, fmt.Errorf("unterminated string")
}
