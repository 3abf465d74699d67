/*
Package header implements the tag→value dictionary that is a package's
parsed metadata: a typed mapping from numeric tag
identifier to an array of one of a handful of scalar types, immutable
once loaded, reference-counted conceptually but owned outright here (see
DESIGN.md's owner/borrow discipline for Header/FI/TS/TE).

# Architecture

	┌─────────────────────── HEADER ─────────────────────────────┐
	│                                                              │
	│  map[tag]Entry{Type, Value}      Put/Get/Del/Iter            │
	│         │                                                    │
	│         ▼                                                    │
	│  Serialize()  ──────▶  8-byte magic+version, index table,    │
	│                        packed big-endian data region          │
	│         ▲                                                    │
	│         │                                                    │
	│  Load(bytes)  ◀──────  inverse of Serialize; round-trips      │
	│                        tag-by-tag                │
	│                                                              │
	│  Sprintf(fmt, extensions)  -- %{TAG} / %{TAG:ext} evaluator   │
	└──────────────────────────────────────────────────────────────┘

Tag numbers and their expected types live in tagtable.go. An
arbitrary-tag table lets callers round-trip tags this package doesn't
know by name.

Header.Validate enforces the cross-tag invariants: every
file-info array shares one length F, FILEDIRINDEXES values lie in
[0, D), and FILEDIGESTALGOS — if present at all — names exactly one
algorithm throughout (a mixed array is ErrMixedDigestAlgos).
*/
package header
