package fsm

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/pkgtx/corepm/pkg/codec"
	"github.com/pkgtx/corepm/pkg/header"
	"github.com/pkgtx/corepm/pkg/metrics"
	"github.com/pkgtx/corepm/pkg/types"
)

// NotifyKind classifies a callback event raised during an Install/Erase
// run.
type NotifyKind int

const (
	NotifyInstProgress NotifyKind = iota
	NotifyUninstProgress
)

// Event is delivered to a NotifyFunc once per processed file.
type Event struct {
	Kind    NotifyKind
	Current int64
	Total   int64
	Path    string
}

// NotifyFunc is called once per file, before that file's action is
// planned and its content processed. Returning abort=true stops the run:
// Install unwinds via UNDO and returns ErrAborted; Erase stops before
// touching the current file and returns ErrAborted.
type NotifyFunc func(Event) (abort bool)

// JournalRecorder is the narrow interface the FSM needs from a
// crash-recovery log: record a file as pending before it's renamed into
// place, and as committed once the rename succeeds, so an interrupted
// run can be finished or unwound. pkg/transaction wires in the concrete pkg/journal
// implementation; pkg/fsm never imports it directly.
type JournalRecorder interface {
	RecordPending(tid uint32, path, tempPath string) error
	RecordCommitted(tid uint32, path string) error
}

// Options configures one Engine run.
type Options struct {
	RootDir         string
	TID             uint32
	Flags           types.TransFlag
	Notify          NotifyFunc
	Journal         JournalRecorder
	ContextPatterns []ContextPattern

	// Async dispatches each file's PROCESS stage onto its own
	// goroutine, joined before the next archive header is read. It changes nothing about
	// ordering or outcome, only where the bytes get copied.
	Async bool
}

// Engine drives one File State Machine run over a File Info Set: the
// install loop (INIT/MAP/MKDIRS/PROCESS/FINI, UNDO on error) and the
// erase loop (PROCESS/RMDIRS).
type Engine struct {
	opts Options
	dirs *dirTracker
	log  zerolog.Logger

	// FailedFile is set when Install/Erase returns an error tied to one
	// file, naming that file. It stays empty when Install cannot read an
	// archive header or Erase fails to remove a directory.
	FailedFile string
}

// New constructs an Engine rooted at opts.RootDir.
func New(opts Options, logger zerolog.Logger) *Engine {
	return &Engine{
		opts: opts,
		dirs: newDirTracker(opts.RootDir),
		log:  logger,
	}
}

func newDigestHash(algo uint32) hash.Hash {
	switch algo {
	case header.DigestMD5:
		return md5.New()
	case header.DigestSHA1:
		return sha1.New()
	case header.DigestSHA256:
		return sha256.New()
	case header.DigestSHA512:
		return sha512.New()
	default:
		return nil
	}
}

func (e *Engine) fileDigestOnDisk(path string, algo uint32) (string, error) {
	h := newDigestHash(algo)
	if h == nil {
		return "", nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Install streams archive through dialect, laying down every file
// described by fi under opts.RootDir.
func (e *Engine) Install(dialect codec.Dialect, archive io.Reader, fi *FI) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.FSMStageDuration, "total", "install")

	groups := fi.HardLinkGroups()
	sets := make(map[uint64]*hardLinkSet, len(groups))
	for ino, members := range groups {
		sets[ino] = newHardLinkSet(ino, members)
	}

	total := len(fi.Files)
	cur := 0
	for {
		entry, err := dialect.HeaderRead(archive)
		if errors.Is(err, codec.ErrTrailer) {
			break
		}
		if err != nil {
			e.dirs.undoCreated()
			return &StageError{Stage: StageInit, Err: err}
		}

		idx, ok := fi.IndexOf(entry.Path)
		if !ok {
			_ = codec.SkipPayload(archive, entry.Size, dialect.Blksize())
			e.FailedFile = entry.Path
			e.dirs.undoCreated()
			return &StageError{Stage: StageMap, Path: entry.Path, Err: ErrUnmappedFile}
		}
		f := &fi.Files[idx]
		cur++

		if e.opts.Notify != nil {
			if abort := e.opts.Notify(Event{Kind: NotifyInstProgress, Current: int64(cur), Total: int64(total), Path: f.Path()}); abort {
				_ = codec.SkipPayload(archive, entry.Size, dialect.Blksize())
				e.FailedFile = f.Path()
				e.dirs.undoCreated()
				return ErrAborted
			}
		}

		action, err := e.planInstallAction(f)
		if err != nil {
			e.FailedFile = f.Path()
			e.dirs.undoCreated()
			return &StageError{Stage: StageMap, Path: f.Path(), Err: err}
		}
		f.Action = action

		if f.Action.Skipped() {
			if err := codec.SkipPayload(archive, entry.Size, dialect.Blksize()); err != nil {
				e.FailedFile = f.Path()
				e.dirs.undoCreated()
				return &StageError{Stage: StageProcess, Path: f.Path(), Err: err}
			}
			continue
		}

		var procErr error
		if set, isMember := sets[f.Ino]; isMember {
			procErr = e.runStage(func() error { return e.processHardLinkMember(dialect, archive, entry, f, set) })
		} else {
			procErr = e.runStage(func() error { return e.processEntry(dialect, archive, entry, f) })
		}
		if procErr != nil {
			e.FailedFile = f.Path()
			e.undo(f)
			return &StageError{Stage: StageProcess, Path: f.Path(), Err: procErr}
		}
	}
	return nil
}

// runStage optionally dispatches fn to a goroutine, joining before
// returning, per Options.Async.
func (e *Engine) runStage(fn func() error) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.FSMStageDuration, "process", "install")

	if !e.opts.Async {
		return fn()
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()
	return <-done
}

// undo discards the failed file's ";tid" temp, if its action stages one,
// and removes any still-empty directories this run created.
func (e *Engine) undo(f *FileInfo) {
	if writesTemp(f.Action) {
		fullPath := filepath.Join(e.opts.RootDir, f.Path())
		_ = os.Remove(fullPath + tidSuffix(e.opts.TID))
	}
	e.dirs.undoCreated()
}

// planInstallAction assigns the CREATE/BACKUP/SAVE/ALTNAME/SKIP action
// for one file about to be laid down.
func (e *Engine) planInstallAction(f *FileInfo) (types.FileAction, error) {
	fullPath := filepath.Join(e.opts.RootDir, f.Path())
	_, err := os.Lstat(fullPath)
	exists := err == nil
	if err != nil && !os.IsNotExist(err) {
		return types.FAUnknown, err
	}

	if f.Flags&types.FileGhost != 0 {
		return types.FASkipNState, nil
	}
	if f.IsDir() || !exists {
		return types.FACreate, nil
	}

	if f.Flags&types.FileConfig != 0 {
		if f.OldDigest == nil {
			// Fresh install over a foreign file at this path: preserve it.
			return types.FABackup, nil
		}
		onDisk, derr := e.fileDigestOnDisk(fullPath, f.DigestAlgo)
		if derr != nil {
			return types.FAUnknown, derr
		}
		switch {
		case onDisk != *f.OldDigest:
			// Locally modified since install: keep the admin's edits as
			// .rpmsave and put the new content live.
			return types.FASave, nil
		case f.Digest != *f.OldDigest:
			return types.FAAltName, nil
		default:
			return types.FACreate, nil
		}
	}

	if f.Flags&types.FileNoReplace != 0 {
		return types.FASave, nil
	}
	return types.FACreate, nil
}

// planEraseAction assigns BACKUP/ERASE/SKIP for one file being removed.
func (e *Engine) planEraseAction(f *FileInfo) types.FileAction {
	if f.Flags&types.FileGhost != 0 {
		return types.FASkipNState
	}
	if f.Flags&types.FileConfig != 0 {
		fullPath := filepath.Join(e.opts.RootDir, f.Path())
		if onDisk, err := e.fileDigestOnDisk(fullPath, f.DigestAlgo); err == nil && onDisk != "" && onDisk != f.Digest {
			return types.FABackup
		}
	}
	return types.FAErase
}

func (e *Engine) processEntry(dialect codec.Dialect, archive io.Reader, entry codec.Entry, f *FileInfo) error {
	fullPath := filepath.Join(e.opts.RootDir, f.Path())

	switch {
	case f.IsDir():
		if err := codec.SkipPayload(archive, entry.Size, dialect.Blksize()); err != nil {
			return err
		}
		if err := e.dirs.ensureDir(f.Path(), os.FileMode(f.Mode&0777)); err != nil {
			return err
		}
		return e.applyMeta(fullPath, f)

	case f.IsSymlink():
		if err := codec.SkipPayload(archive, entry.Size, dialect.Blksize()); err != nil {
			return err
		}
		if err := e.dirs.ensureDir(f.DirName, 0755); err != nil {
			return err
		}
		target := f.Linkto
		if target == "" {
			target = entry.Linkname
		}
		if _, err := os.Lstat(fullPath); err == nil {
			if err := os.Remove(fullPath); err != nil {
				return fmt.Errorf("fsm: remove existing symlink %s: %w", fullPath, err)
			}
		}
		if err := os.Symlink(target, fullPath); err != nil {
			return fmt.Errorf("fsm: symlink %s: %w", fullPath, err)
		}
		_ = os.Lchown(fullPath, int(f.UID), int(f.GID))
		return nil

	case f.IsRegular():
		if err := e.dirs.ensureDir(f.DirName, 0755); err != nil {
			return err
		}
		tempPath, err := e.writeRegularTemp(dialect, archive, entry, f, fullPath)
		if err != nil {
			return err
		}
		return e.commitRegular(f, fullPath, tempPath, types.GoalPkgInstall)

	default:
		if err := codec.SkipPayload(archive, entry.Size, dialect.Blksize()); err != nil {
			return err
		}
		return e.mknodEntry(fullPath, f)
	}
}

func (e *Engine) processHardLinkMember(dialect codec.Dialect, archive io.Reader, entry codec.Entry, f *FileInfo, set *hardLinkSet) error {
	fullPath := filepath.Join(e.opts.RootDir, f.Path())
	complete := set.saveMember(f.Index)

	if entry.Size > 0 && set.CreatorIndex < 0 {
		if err := e.dirs.ensureDir(f.DirName, 0755); err != nil {
			return err
		}
		tempPath, err := e.writeRegularTemp(dialect, archive, entry, f, fullPath)
		if err != nil {
			return err
		}
		if err := e.commitRegular(f, fullPath, tempPath, types.GoalPkgInstall); err != nil {
			return err
		}
		set.CreatorIndex = f.Index
		set.CreatorPath = fullPath
	} else {
		if err := codec.SkipPayload(archive, entry.Size, dialect.Blksize()); err != nil {
			return err
		}
		if set.CreatorPath != "" {
			if err := e.linkMember(set.CreatorPath, fullPath, f); err != nil {
				return err
			}
		} else {
			set.pending = append(set.pending, fullPath)
		}
	}

	if complete {
		if set.CreatorPath == "" {
			return fmt.Errorf("%w: ino %d", ErrMissingHardlink, set.Ino)
		}
		for _, p := range set.pending {
			if err := e.linkMember(set.CreatorPath, p, f); err != nil {
				return err
			}
		}
		set.pending = nil
		if set.missingMembers() {
			return fmt.Errorf("%w: ino %d", ErrMissingHardlink, set.Ino)
		}
	}
	return nil
}

func (e *Engine) linkMember(creatorPath, fullPath string, f *FileInfo) error {
	if err := e.dirs.ensureDir(filepath.Dir(fullPath), 0755); err != nil {
		return err
	}
	if _, err := os.Lstat(fullPath); err == nil {
		if err := e.deescalate(fullPath); err != nil {
			return err
		}
		if err := os.Remove(fullPath); err != nil {
			return fmt.Errorf("fsm: remove existing %s: %w", fullPath, err)
		}
	}
	if err := os.Link(creatorPath, fullPath); err != nil {
		return fmt.Errorf("fsm: link %s -> %s: %w", fullPath, creatorPath, err)
	}
	return nil
}

// writeRegularTemp writes entry's payload to fullPath's ";tid" temp name,
// verifying the digest when the header declares one.
func (e *Engine) writeRegularTemp(dialect codec.Dialect, archive io.Reader, entry codec.Entry, f *FileInfo, fullPath string) (string, error) {
	tempPath := fullPath + tidSuffix(e.opts.TID)
	file, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(f.Mode&0777))
	if err != nil {
		return "", fmt.Errorf("fsm: create %s: %w", tempPath, err)
	}

	var h hash.Hash
	if e.opts.Flags&types.TransNoFDigests == 0 {
		h = newDigestHash(f.DigestAlgo)
	}
	var w io.Writer = file
	if h != nil {
		w = io.MultiWriter(file, h)
	}

	if err := codec.CopyPayload(w, archive, entry.Size, dialect.Blksize()); err != nil {
		file.Close()
		os.Remove(tempPath)
		return "", fmt.Errorf("fsm: write %s: %w", tempPath, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("fsm: close %s: %w", tempPath, err)
	}

	if h != nil && f.Digest != "" {
		if sum := hex.EncodeToString(h.Sum(nil)); sum != f.Digest {
			os.Remove(tempPath)
			return "", ErrDigestMismatch
		}
	}

	if e.opts.Journal != nil {
		if err := e.opts.Journal.RecordPending(e.opts.TID, fullPath, tempPath); err != nil {
			e.log.Warn().Err(err).Str("path", fullPath).Msg("journal record-pending failed")
		}
	}
	return tempPath, nil
}

// commitRegular renames tempPath into place, preserving any pre-existing
// instance per the suffix discipline, then applies
// ownership/mode/mtime/context. ALTNAME never touches the existing
// file: the new content commits to path.rpmnew instead.
func (e *Engine) commitRegular(f *FileInfo, fullPath, tempPath string, goal types.Goal) error {
	finalPath := fullPath
	if f.Action == types.FAAltName {
		finalPath = fullPath + ".rpmnew"
	} else if suffix := commitSuffix(f.Action, goal); suffix != "" {
		if err := e.deescalate(fullPath); err != nil && !os.IsNotExist(err) {
			return err
		}
		if err := os.Rename(fullPath, fullPath+suffix); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("fsm: backup rename %s: %w", fullPath, err)
		}
	} else if _, err := os.Lstat(fullPath); err == nil {
		if err := e.deescalate(fullPath); err != nil {
			return err
		}
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		return fmt.Errorf("fsm: commit rename %s: %w", tempPath, err)
	}
	if e.opts.Journal != nil {
		if err := e.opts.Journal.RecordCommitted(e.opts.TID, finalPath); err != nil {
			e.log.Warn().Err(err).Str("path", finalPath).Msg("journal record-committed failed")
		}
	}
	return e.applyMeta(finalPath, f)
}

func (e *Engine) mknodEntry(fullPath string, f *FileInfo) error {
	if err := e.dirs.ensureDir(f.DirName, 0755); err != nil {
		return err
	}
	if _, err := os.Lstat(fullPath); err == nil {
		if err := e.deescalate(fullPath); err != nil {
			return err
		}
		if err := os.Remove(fullPath); err != nil {
			return fmt.Errorf("fsm: remove existing %s: %w", fullPath, err)
		}
	}
	if err := syscall.Mknod(fullPath, f.Mode, int(f.Rdev)); err != nil {
		return fmt.Errorf("fsm: mknod %s: %w", fullPath, err)
	}
	return e.applyMeta(fullPath, f)
}

// applyMeta applies mode/mtime/ownership/context to an already-committed
// path. Chown failures from lack of privilege are logged, not fatal: many
// install targets in test and unprivileged-dev environments can't chown.
func (e *Engine) applyMeta(path string, f *FileInfo) error {
	if !f.IsSymlink() {
		if err := os.Chmod(path, os.FileMode(f.Mode&0777)); err != nil {
			return fmt.Errorf("fsm: chmod %s: %w", path, err)
		}
		if f.MTime > 0 {
			mt := time.Unix(f.MTime, 0)
			if err := os.Chtimes(path, mt, mt); err != nil {
				return fmt.Errorf("fsm: utime %s: %w", path, err)
			}
		}
	}

	if err := os.Lchown(path, int(f.UID), int(f.GID)); err != nil && !os.IsPermission(err) {
		return fmt.Errorf("fsm: chown %s: %w", path, err)
	}

	if ctx := resolveContext(f.Context, path, e.opts.ContextPatterns); ctx != "" {
		e.log.Debug().Str("path", path).Str("context", ctx).Msg("security context resolved (label application requires a selinux-aware runtime)")
	}
	return nil
}

// deescalate strips setuid/setgid bits from an existing path before it is
// unlinked or overwritten, so a half-written replacement is never briefly
// reachable under the old file's privileged mode.
func (e *Engine) deescalate(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil
	}
	if info.Mode()&(os.ModeSetuid|os.ModeSetgid) != 0 {
		return os.Chmod(path, info.Mode().Perm())
	}
	return nil
}

// Erase removes every file fi describes from opts.RootDir, then cleans
// up directories the package owns, leaving any it did not create.
func (e *Engine) Erase(fi *FI) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.FSMStageDuration, "total", "erase")

	var dirPaths []string
	total := len(fi.Files)

	for i := range fi.Files {
		f := &fi.Files[i]
		if e.opts.Notify != nil {
			if abort := e.opts.Notify(Event{Kind: NotifyUninstProgress, Current: int64(i + 1), Total: int64(total), Path: f.Path()}); abort {
				e.FailedFile = f.Path()
				return ErrAborted
			}
		}

		// A SKIP assigned by the transaction planner (e.g. a path the
		// superseding package also owns) is final; only unplanned files
		// get an erase action here.
		if f.Action.Skipped() {
			continue
		}
		f.Action = e.planEraseAction(f)
		if f.Action.Skipped() {
			continue
		}

		fullPath := filepath.Join(e.opts.RootDir, f.Path())
		if f.IsDir() {
			dirPaths = append(dirPaths, fullPath)
			continue
		}

		if suffix := commitSuffix(f.Action, types.GoalPkgErase); suffix != "" {
			if err := e.deescalate(fullPath); err != nil && !os.IsNotExist(err) {
				e.FailedFile = f.Path()
				return &StageError{Stage: StageProcess, Path: f.Path(), Err: err}
			}
			if err := os.Rename(fullPath, fullPath+suffix); err != nil && !os.IsNotExist(err) {
				e.FailedFile = f.Path()
				return &StageError{Stage: StageProcess, Path: f.Path(), Err: err}
			}
			continue
		}

		if err := e.deescalate(fullPath); err != nil && !os.IsNotExist(err) {
			e.FailedFile = f.Path()
			return &StageError{Stage: StageProcess, Path: f.Path(), Err: err}
		}
		if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
			e.FailedFile = f.Path()
			return &StageError{Stage: StageProcess, Path: f.Path(), Err: err}
		}
	}

	sort.Slice(dirPaths, func(i, j int) bool { return len(dirPaths[i]) > len(dirPaths[j]) })
	for _, d := range dirPaths {
		err := os.Remove(d)
		if err == nil || os.IsNotExist(err) || isNotEmpty(err) {
			continue
		}
		return &StageError{Stage: StageRmdirs, Path: d, Err: err}
	}
	return nil
}

func isNotEmpty(err error) bool {
	var perr *os.PathError
	if errors.As(err, &perr) {
		return errors.Is(perr.Err, syscall.ENOTEMPTY)
	}
	return errors.Is(err, syscall.ENOTEMPTY)
}
