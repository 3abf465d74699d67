/*
Package types holds the scalar vocabulary shared by every pkgtx package:
tag types, sense flags, file actions, problem kinds, and the EVR version
comparison used by the dependency solver.

Nothing in this package touches the filesystem, a header blob, or a
database. It exists so that pkg/header, pkg/fsm, pkg/solver, pkg/order,
and pkg/transaction can agree on names and bit layouts without importing
each other.

# Architecture

	┌──────────────────────── TYPES ────────────────────────────┐
	│                                                             │
	│  NEVR / EVR          Dependency            FileAction       │
	│  (identity,          (name, EVR,           (planner output  │
	│   rpmvercmp)          sense flags)          per file)       │
	│                                                             │
	│  TagType             ProblemKind           TransFlag /      │
	│  (header value        (problem              VSFlag /        │
	│   kinds)               classification)      DepFlag /       │
	│                                             FilterFlag       │
	└─────────────────────────────────────────────────────────────┘

# EVR comparison

NEVR identifies a package by (name, epoch, version, release). CompareEVR
implements the rpmvercmp total order: epoch compares numerically (a
missing epoch is 0), then version and release are split into alternating
runs of digits and letters and compared segment by segment, with a
leading '~' sorting before everything, including the empty string.

# File actions

FileAction is the per-file state assigned by the transaction planner
before an install or erase runs; see pkg/fsm for how each action maps to
a write path and a commit-time rename (the suffix discipline table).
*/
package types
