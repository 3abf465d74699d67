package header

import (
	"fmt"
	"strconv"
	"strings"
)

// ExtensionFunc computes a computed "extension" tag value, e.g.
// "sha1hdr" or "installpath".
type ExtensionFunc func(h *Header) (string, error)

// Sprintf evaluates a header format string: literal text passes
// through; "%{tagname}" is replaced with a tag's value; "%{tagname:ext}"
// is resolved through the extensions registry; "%{?tagname:subformat}"
// (and its negation "%{!?tagname:subformat}") emits subformat only when
// tagname is present in the header, with subformat itself evaluated
// recursively so a conditional can nest further %{...} references; and
// a "[...]" block repeats its contents once per element of whichever
// array tag inside it is longest, rebinding every array-typed %{...}
// reference in the block to that element on each pass. Scalar tags
// referenced inside a bracket repeat unchanged on every pass.
func (h *Header) Sprintf(format string, extensions map[string]ExtensionFunc) (string, error) {
	return h.evalFormat(format, extensions, -1)
}

// evalFormat evaluates format once. idx < 0 means top-level context,
// where array tags are comma-joined; idx >= 0 means we are unrolling one
// pass of a "[...]" block, where array tags resolve to element idx.
func (h *Header) evalFormat(format string, extensions map[string]ExtensionFunc, idx int) (string, error) {
	var out strings.Builder
	i := 0
	for i < len(format) {
		switch format[i] {
		case '%':
			if i+1 < len(format) && format[i+1] == '%' {
				out.WriteByte('%')
				i += 2
				continue
			}
			if i+1 >= len(format) || format[i+1] != '{' {
				return "", fmt.Errorf("header: sprintf: stray %% at offset %d", i)
			}
			end, err := matchDelim(format, i+2, '{', '}')
			if err != nil {
				return "", err
			}
			expr := format[i+2 : end]
			i = end + 1

			val, err := h.evalExpr(expr, extensions, idx)
			if err != nil {
				return "", err
			}
			out.WriteString(val)

		case '[':
			end, err := matchDelim(format, i+1, '[', ']')
			if err != nil {
				return "", err
			}
			block := format[i+1 : end]
			i = end + 1

			n := h.arrayLenIn(block, extensions)
			for j := 0; j < n; j++ {
				seg, err := h.evalFormat(block, extensions, j)
				if err != nil {
					return "", err
				}
				out.WriteString(seg)
			}

		default:
			out.WriteByte(format[i])
			i++
		}
	}
	return out.String(), nil
}

// matchDelim finds the index of the close delimiter matching the open
// delimiter already consumed just before start, counting nested pairs
// so a conditional's subformat (or a bracket block) may itself embed
// further %{...} or [...] expressions.
func matchDelim(s string, start int, open, close byte) (int, error) {
	depth := 1
	for i := start; i < len(s); i++ {
		switch s[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("header: sprintf: unterminated %q starting at offset %d", open, start)
}

// splitTopLevelColon returns the offset of the first ':' in s that is
// not nested inside a %{...} reference, or -1 if there is none.
func splitTopLevelColon(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
		case ':':
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// evalExpr evaluates the contents of one %{...}: a conditional
// ("?name:sub" / "!?name:sub"), an extension call ("name:ext" or
// ":ext"), or a plain tag reference ("name").
func (h *Header) evalExpr(expr string, extensions map[string]ExtensionFunc, idx int) (string, error) {
	negate := false
	rest := expr
	conditional := false
	switch {
	case strings.HasPrefix(expr, "!?"):
		negate = true
		rest = expr[2:]
		conditional = true
	case strings.HasPrefix(expr, "?"):
		rest = expr[1:]
		conditional = true
	}

	if conditional {
		name := rest
		sub := ""
		if colon := splitTopLevelColon(rest); colon >= 0 {
			name = rest[:colon]
			sub = rest[colon+1:]
		}
		present := h.tagPresent(name, extensions)
		if present != negate {
			return h.evalFormat(sub, extensions, idx)
		}
		return "", nil
	}

	name := expr
	ext := ""
	if colon := splitTopLevelColon(expr); colon >= 0 {
		name = expr[:colon]
		ext = expr[colon+1:]
	}
	return h.resolveField(name, ext, extensions, idx)
}

func (h *Header) resolveField(name, ext string, extensions map[string]ExtensionFunc, idx int) (string, error) {
	if ext != "" {
		fn, ok := extensions[ext]
		if !ok {
			return "", fmt.Errorf("header: sprintf: unknown extension %q", ext)
		}
		return fn(h)
	}
	if fn, ok := extensions[name]; ok {
		return fn(h)
	}

	tag, found := h.lookupTagByName(name)
	if !found {
		return "", fmt.Errorf("header: sprintf: unknown tag %q", name)
	}

	_, v, ok := h.Get(tag)
	if !ok {
		return "(none)", nil
	}
	return formatValue(v, idx), nil
}

// lookupTagByName resolves a format-string tag name to its registered
// Tag, checking the well-known tag table first and the arbitrary-tag
// table second.
func (h *Header) lookupTagByName(name string) (Tag, bool) {
	for t, n := range tagNames {
		if n == name {
			return t, true
		}
	}
	if t, ok := arbitraryTags[name]; ok {
		return t, true
	}
	return 0, false
}

// tagPresent reports whether name resolves to an extension, or to a tag
// actually stored in the header.
func (h *Header) tagPresent(name string, extensions map[string]ExtensionFunc) bool {
	if _, ok := extensions[name]; ok {
		return true
	}
	tag, found := h.lookupTagByName(name)
	if !found {
		return false
	}
	_, _, ok := h.Get(tag)
	return ok
}

// arrayLenIn scans block for top-level %{...} references and returns
// the length of the longest array-typed tag any of them names; 0 if
// block names no array tag, in which case the enclosing "[...]" block
// contributes nothing.
func (h *Header) arrayLenIn(block string, extensions map[string]ExtensionFunc) int {
	maxLen := 0
	i := 0
	for i < len(block) {
		if block[i] == '%' && i+1 < len(block) && block[i+1] == '{' {
			end, err := matchDelim(block, i+2, '{', '}')
			if err != nil {
				i++
				continue
			}
			expr := block[i+2 : end]
			i = end + 1

			name := expr
			if strings.HasPrefix(name, "!?") {
				name = name[2:]
			} else if strings.HasPrefix(name, "?") {
				name = name[1:]
			}
			if colon := splitTopLevelColon(name); colon >= 0 {
				name = name[:colon]
			}
			if n := h.tagArrayLen(name, extensions); n > maxLen {
				maxLen = n
			}
			continue
		}
		i++
	}
	return maxLen
}

func (h *Header) tagArrayLen(name string, extensions map[string]ExtensionFunc) int {
	if _, ok := extensions[name]; ok {
		return 0
	}
	tag, found := h.lookupTagByName(name)
	if !found {
		return 0
	}
	_, v, ok := h.Get(tag)
	if !ok {
		return 0
	}
	switch vv := v.(type) {
	case []string:
		return len(vv)
	case []uint64:
		return len(vv)
	default:
		return 0
	}
}

// formatValue renders v for the format string. idx < 0 joins array
// values with ", "; idx >= 0 (inside a "[...]" unroll) picks out a
// single element, or "" if idx is past the end of this particular
// array (arrays referenced together in one block may differ in
// length).
func formatValue(v interface{}, idx int) string {
	switch vv := v.(type) {
	case string:
		return vv
	case []string:
		if idx >= 0 {
			if idx < len(vv) {
				return vv[idx]
			}
			return ""
		}
		return strings.Join(vv, ", ")
	case []byte:
		return fmt.Sprintf("%x", vv)
	case []uint64:
		if idx >= 0 {
			if idx < len(vv) {
				return strconv.FormatUint(vv[idx], 10)
			}
			return ""
		}
		parts := make([]string, len(vv))
		for i, n := range vv {
			parts[i] = strconv.FormatUint(n, 10)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("%v", vv)
	}
}
