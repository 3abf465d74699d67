package types

import (
	"fmt"
	"strconv"
	"strings"
)

// EVR is a package's epoch/version/release triple. A nil Epoch compares
// as epoch 0.
type EVR struct {
	Epoch   *int
	Version string
	Release string
}

func (e EVR) epoch() int {
	if e.Epoch == nil {
		return 0
	}
	return *e.Epoch
}

func (e EVR) String() string {
	if e.Epoch != nil {
		return fmt.Sprintf("%d:%s-%s", *e.Epoch, e.Version, e.Release)
	}
	return fmt.Sprintf("%s-%s", e.Version, e.Release)
}

// NEVR is a package identity: name plus EVR plus arch/os.
type NEVR struct {
	Name    string
	EVR     EVR
	Arch    string
	OS      string
}

func (n NEVR) String() string {
	if n.Arch != "" {
		return fmt.Sprintf("%s-%s.%s", n.Name, n.EVR.String(), n.Arch)
	}
	return fmt.Sprintf("%s-%s", n.Name, n.EVR.String())
}

// CompareEVR implements the total order over version triples: epoch
// compares numerically, then version and release each compare via
// rpmvercmp.
func CompareEVR(a, b EVR) int {
	if c := a.epoch() - b.epoch(); c != 0 {
		if c < 0 {
			return -1
		}
		return 1
	}
	if c := rpmvercmp(a.Version, b.Version); c != 0 {
		return c
	}
	return rpmvercmp(a.Release, b.Release)
}

// EVRSatisfies reports whether candidate EVR c satisfies a dependency
// requirement of sense flags against EVR r (e.g. "foo >= 1.2-1").
func EVRSatisfies(c EVR, flags SenseFlag, r EVR) bool {
	if flags&(SenseLT|SenseGT|SenseEQ) == 0 {
		return true
	}
	cmp := CompareEVR(c, r)
	if cmp < 0 && flags&SenseLT != 0 {
		return true
	}
	if cmp > 0 && flags&SenseGT != 0 {
		return true
	}
	if cmp == 0 && flags&SenseEQ != 0 {
		return true
	}
	return false
}

func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// rpmvercmp compares two version (or release) strings using the classic
// RPM algorithm: strip non-alphanumeric/non-tilde runs, then compare
// alternating digit/alpha segments. A leading tilde sorts before
// anything, including the empty string.
func rpmvercmp(a, b string) int {
	if a == b {
		return 0
	}

	for len(a) > 0 || len(b) > 0 {
		// Skip everything that isn't alphanumeric or '~'.
		for len(a) > 0 && !isAlpha(a[0]) && !isDigit(a[0]) && a[0] != '~' {
			a = a[1:]
		}
		for len(b) > 0 && !isAlpha(b[0]) && !isDigit(b[0]) && b[0] != '~' {
			b = b[1:]
		}

		// Tilde: sorts before anything, including absence.
		if len(a) > 0 && a[0] == '~' || len(b) > 0 && b[0] == '~' {
			aTilde := len(a) > 0 && a[0] == '~'
			bTilde := len(b) > 0 && b[0] == '~'
			if aTilde && !bTilde {
				return -1
			}
			if !aTilde && bTilde {
				return 1
			}
			a = a[1:]
			b = b[1:]
			continue
		}

		if len(a) == 0 || len(b) == 0 {
			break
		}

		var aSeg, bSeg string
		var numeric bool
		if isDigit(a[0]) {
			aSeg, a = takeWhile(a, isDigit)
			bSeg, b = takeWhile(b, isDigit)
			numeric = true
		} else {
			aSeg, a = takeWhile(a, isAlpha)
			bSeg, b = takeWhile(b, isAlpha)
			numeric = false
		}

		if bSeg == "" {
			// a has a segment where b has none of the same class: numeric wins,
			// alpha loses (matches rpmvercmp's "whichever segment is numeric is
			// greater" / "arbitrary fall back" rule for the original pair).
			if numeric {
				return 1
			}
			return -1
		}

		if numeric {
			aSeg = strings.TrimLeft(aSeg, "0")
			bSeg = strings.TrimLeft(bSeg, "0")
			if len(aSeg) != len(bSeg) {
				if len(aSeg) > len(bSeg) {
					return 1
				}
				return -1
			}
			// Equal length numeric strings compare lexicographically, which
			// matches numeric order once leading zeros are stripped.
			if aSeg != bSeg {
				if aSeg > bSeg {
					return 1
				}
				return -1
			}
			continue
		}

		if aSeg != bSeg {
			if aSeg > bSeg {
				return 1
			}
			return -1
		}
	}

	if len(a) == len(b) {
		return 0
	}
	if len(a) > 0 {
		return 1
	}
	return -1
}

func takeWhile(s string, pred func(byte) bool) (taken, rest string) {
	i := 0
	for i < len(s) && pred(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

// ParseEVR parses an "[epoch:]version[-release]" string.
func ParseEVR(s string) (EVR, error) {
	var evr EVR
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		e, err := strconv.Atoi(s[:idx])
		if err != nil {
			return evr, fmt.Errorf("invalid epoch in %q: %w", s, err)
		}
		evr.Epoch = &e
		s = s[idx+1:]
	}
	if idx := strings.LastIndexByte(s, '-'); idx >= 0 {
		evr.Version = s[:idx]
		evr.Release = s[idx+1:]
	} else {
		evr.Version = s
	}
	return evr, nil
}
