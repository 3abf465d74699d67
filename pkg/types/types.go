package types

// TagType is the wire type of a header tag value. A header tag has
// exactly one type, fixed at first put.
type TagType uint32

const (
	TypeNull TagType = iota
	TypeChar
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeString
	TypeBin
	TypeStringArray
	TypeI18NString
)

// SenseFlag is the comparison sense attached to a dependency (requires,
// provides, conflicts, obsoletes).
type SenseFlag uint32

const (
	SenseAny SenseFlag = 0
	SenseLT  SenseFlag = 1 << iota
	SenseGT
	SenseEQ
	SenseFound
)

const SenseLE = SenseLT | SenseEQ
const SenseGE = SenseGT | SenseEQ

// FileAction is the per-file action assigned by the transaction planner.
// An action is assigned at most once before commit.
type FileAction int

const (
	FAUnknown FileAction = iota
	FACreate
	FACopyIn
	FACopyOut
	FABackup
	FASave
	FAAltName
	FAErase
	FASkip
	FASkipNState
	FASkipNetShared
	FASkipColor
)

func (a FileAction) Skipped() bool {
	switch a {
	case FASkip, FASkipNState, FASkipNetShared, FASkipColor:
		return true
	}
	return false
}

func (a FileAction) String() string {
	switch a {
	case FAUnknown:
		return "unknown"
	case FACreate:
		return "create"
	case FACopyIn:
		return "copyin"
	case FACopyOut:
		return "copyout"
	case FABackup:
		return "backup"
	case FASave:
		return "save"
	case FAAltName:
		return "altname"
	case FAErase:
		return "erase"
	case FASkip:
		return "skip"
	case FASkipNState:
		return "skip-nstate"
	case FASkipNetShared:
		return "skip-netshared"
	case FASkipColor:
		return "skip-color"
	default:
		return "invalid"
	}
}

// MapFlag controls which file attributes the FSM applies while laying a
// file down.
type MapFlag uint32

const (
	MapPath MapFlag = 1 << iota
	MapMode
	MapUID
	MapGID
	MapType
	MapFollowSymlinks
	MapAddDot
	MapAllHardLinks
	MapAbsolute
	MapSBitCheck
	MapPayloadList
	MapPayloadExtract
)

// FileFlag marks per-file attributes carried in the header's FILEFLAGS
// array (config backup handling, missingok erase
// tolerance, ghost/doc bookkeeping).
type FileFlag uint32

const (
	FileConfig FileFlag = 1 << iota
	FileDoc
	FileGhost
	FileMissingOK
	FileNoReplace
	FileNetShared
)

// Goal is the direction an FSM run or transaction element drives files.
type Goal int

const (
	GoalUnknown Goal = iota
	GoalPkgInstall
	GoalPkgErase
	GoalPkgBuild
	GoalPkgCommit
)

// TEKind distinguishes the two Transaction Element variants.
type TEKind int

const (
	TEAdded TEKind = iota
	TERemoved
)

// TransFlag is the Transaction Set-wide behavior bitmask.
type TransFlag uint32

const (
	TransTest TransFlag = 1 << iota
	TransNoScripts
	TransNoTriggers
	TransNoFDigests
	TransNoContexts
	TransPkgCommit
	TransCommit
	TransJustDB
	TransNoPost
	TransNoPre
	TransAnaconda
	TransRepackage
	TransAllFiles
	TransChainsaw
)

// VSFlag is the verification-flags bitmask.
type VSFlag uint32

const (
	VSNoSHA1Header VSFlag = 1 << iota
	VSNoMD5Header
	VSNoDSAHeader
	VSNoRSAHeader
	VSNoSHA1
	VSNoMD5
	VSNoDSA
	VSNoRSA
	VSNoHdrChk
	VSNeedPayload
)

// DepFlag toggles which dependency classes the solver evaluates.
type DepFlag uint32

const (
	DepNoSuggest DepFlag = 1 << iota
	DepAnaconda
	DepNoConflicts
	DepNoObsoletes
	DepNoProvides
	DepNoRequires
)

// FilterFlag selects which problem kinds a run silently ignores.
type FilterFlag uint32

const (
	FilterIgnoreOS FilterFlag = 1 << iota
	FilterIgnoreArch
	FilterReplacePkg
	FilterForceRelocate
	FilterReplaceNewFiles
	FilterReplaceOldFiles
	FilterOldPackage
	FilterDiskSpace
	FilterDiskNodes
)

// ProblemKind classifies a Problem.
type ProblemKind int

const (
	ProblemBadArch ProblemKind = iota
	ProblemBadOS
	ProblemPkgInstalled
	ProblemBadRelocate
	ProblemRequires
	ProblemConflict
	ProblemNewFileConflict
	ProblemFileConflict
	ProblemOldPackage
	ProblemDiskSpace
	ProblemDiskNodes
	ProblemBadPretrans
)

func (k ProblemKind) String() string {
	names := [...]string{
		"BADARCH", "BADOS", "PKG_INSTALLED", "BADRELOCATE", "REQUIRES",
		"CONFLICT", "NEW_FILE_CONFLICT", "FILE_CONFLICT", "OLDPACKAGE",
		"DISKSPACE", "DISKNODES", "BADPRETRANS",
	}
	if int(k) < 0 || int(k) >= len(names) {
		return "UNKNOWN"
	}
	return names[k]
}

// Problem is a structured, filterable conflict report.
type Problem struct {
	Kind        ProblemKind
	PrimaryNEVR string
	AltNEVR     string
	Key         string
	Str         string
	Num         uint64
	Ignored     bool
}

// Dependency is one entry of a provides/requires/conflicts/obsoletes array.
type Dependency struct {
	Name  string
	EVR   EVR
	Flags SenseFlag
}
