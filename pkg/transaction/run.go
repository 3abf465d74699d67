package transaction

import (
	"fmt"

	"github.com/pkgtx/corepm/pkg/codec"
	"github.com/pkgtx/corepm/pkg/fsm"
	"github.com/pkgtx/corepm/pkg/header"
	"github.com/pkgtx/corepm/pkg/metrics"
	"github.com/pkgtx/corepm/pkg/types"
)

// journalRecorder adapts ts.jrnl to fsm.JournalRecorder without the
// classic nil-pointer-in-interface trap: a nil *journal.Journal boxed
// directly into an interface value is non-nil, so fsm.Engine would call
// RecordPending/RecordCommitted on a nil receiver instead of skipping
// the journal entirely.
func (ts *TS) journalRecorder() fsm.JournalRecorder {
	if ts.jrnl == nil {
		return nil
	}
	return ts.jrnl
}

func dialectFor(h *header.Header) (codec.Dialect, error) {
	_, v, ok := h.Get(header.TagPayloadFormat)
	format, _ := v.(string)
	if !ok || format == "" {
		format = "cpio"
	}
	switch format {
	case "cpio":
		return codec.NewCPIO(), nil
	case "tar":
		return codec.NewTar(), nil
	case "ar":
		return codec.NewAR(), nil
	default:
		return nil, fmt.Errorf("transaction: unknown payload format %q", format)
	}
}

// Run is the main driver: for each TE in Order's output, ADDED drives
// the FSM with goal PKGINSTALL then record-store add; REMOVED drives
// goal PKGERASE then record-store remove. On any unignored problem, Run
// stops and returns the count of new problems. Under the test flag the
// drive loop is skipped entirely: callbacks still fire, nothing is
// mutated.
func (ts *TS) Run(opener ArchiveOpener, notify NotifyFunc) (int, error) {
	timer := metrics.NewTimer()
	outcome := "ok"
	defer func() {
		timer.ObserveDuration(metrics.TransactionDuration)
		metrics.TransactionsTotal.WithLabelValues(outcome).Inc()
	}()

	byID := make(map[int]*Element, len(ts.elements))
	for _, el := range ts.elements {
		byID[el.id] = el
	}

	order := ts.order
	if len(order) == 0 {
		for _, el := range ts.elements {
			order = append(order, el.id)
		}
	}

	if ts.env.TransFlags&types.TransTest != 0 {
		fire(notify, Event{Kind: NotifyTransStart, Total: len(order)})
		for i, id := range order {
			if el, ok := byID[id]; ok {
				fire(notify, Event{Kind: NotifyTransProgress, Current: i + 1, Total: len(order), Key: el.Key, NEVR: el.NEVR.String()})
			}
		}
		fire(notify, Event{Kind: NotifyTransStop, Total: len(order)})
		ts.log.Info().Int("elements", len(order)).Msg("test transaction: no filesystem or store changes made")
		return 0, nil
	}

	fire(notify, Event{Kind: NotifyTransStart, Total: len(order)})

	var ran []*Element
	for i, id := range order {
		el, ok := byID[id]
		if !ok {
			continue
		}

		abort := fire(notify, Event{Kind: NotifyTransProgress, Current: i + 1, Total: len(order), Key: el.Key, NEVR: el.NEVR.String()})
		if abort {
			newProbs := ts.rollbackRan(ran, notify)
			outcome = "aborted"
			return newProbs + 1, ErrAborted
		}

		var err error
		switch el.Kind {
		case types.TEAdded:
			err = ts.runInstall(el, opener, notify)
		case types.TERemoved:
			err = ts.runErase(el, notify)
		}

		if err != nil {
			newProbs := ts.rollbackRan(ran, notify)
			ts.problems = append(ts.problems, types.Problem{
				Kind:        types.ProblemBadPretrans,
				PrimaryNEVR: el.NEVR.String(),
				Str:         err.Error(),
			})
			metrics.ProblemsTotal.WithLabelValues(types.ProblemBadPretrans.String()).Inc()
			fire(notify, Event{Kind: NotifyTransStop, Total: len(order)})
			outcome = "failed"
			return newProbs + 1, fmt.Errorf("transaction: run: element %s: %w", el.NEVR.String(), err)
		}

		if el.Kind == types.TEAdded {
			metrics.FilesProcessedTotal.WithLabelValues("install").Add(float64(len(el.fi.Files)))
		} else {
			metrics.FilesProcessedTotal.WithLabelValues("erase").Add(float64(len(el.fi.Files)))
		}

		ran = append(ran, el)
	}

	ts.ran = ran
	fire(notify, Event{Kind: NotifyTransStop, Total: len(order)})
	return 0, nil
}

// Rollback re-runs an inverse transaction over everything the last Run
// committed, newest first. It is advisory: it cannot defend against
// out-of-process interference, and a REMOVED element's files cannot be
// restored without the original archive, so those are logged and
// counted as failures rather than undone. Returns the count of elements that could
// not be rolled back.
func (ts *TS) Rollback(notify NotifyFunc) int {
	failed := ts.rollbackRan(ts.ran, notify)
	ts.ran = nil
	return failed
}

func (ts *TS) runInstall(el *Element, opener ArchiveOpener, notify NotifyFunc) error {
	fire(notify, Event{Kind: NotifyInstStart, Key: el.Key, NEVR: el.NEVR.String()})

	if ts.env.TransFlags&types.TransJustDB != 0 {
		pkgKey, err := ts.store.Put(el.Header)
		if err != nil {
			return fmt.Errorf("record store put: %w", err)
		}
		el.PkgKey = pkgKey
		metrics.PackagesInstalled.Inc()
		fire(notify, Event{Kind: NotifyInstStop, Key: el.Key, NEVR: el.NEVR.String()})
		return nil
	}

	archive, err := opener.OpenInstallArchive(el.Key)
	if err != nil {
		fire(notify, Event{Kind: NotifyUnpackError, Key: el.Key, NEVR: el.NEVR.String()})
		return fmt.Errorf("open archive: %w", err)
	}
	defer archive.Close()

	dialect, err := dialectFor(el.Header)
	if err != nil {
		return err
	}

	engine := fsm.New(fsm.Options{
		RootDir: ts.env.RootDir,
		TID:     ts.tid,
		Flags:   ts.env.TransFlags,
		Journal: ts.journalRecorder(),
		Notify: func(ev fsm.Event) bool {
			return fire(notify, Event{Kind: NotifyInstProgress, Current: int(ev.Current), Total: int(ev.Total), Key: el.Key, NEVR: el.NEVR.String()})
		},
	}, ts.log)

	if err := engine.Install(dialect, archive, el.fi); err != nil {
		fire(notify, Event{Kind: NotifyCpioError, Key: el.Key, NEVR: el.NEVR.String()})
		return err
	}

	pkgKey, err := ts.store.Put(el.Header)
	if err != nil {
		return fmt.Errorf("record store put: %w", err)
	}
	el.PkgKey = pkgKey
	metrics.PackagesInstalled.Inc()

	fire(notify, Event{Kind: NotifyInstStop, Key: el.Key, NEVR: el.NEVR.String()})
	return nil
}

func (ts *TS) runErase(el *Element, notify NotifyFunc) error {
	if el.fi == nil {
		h, err := ts.store.Get(el.PkgKey)
		if err != nil {
			return fmt.Errorf("load erase record: %w", err)
		}
		fi, err := fsm.BuildFI(h)
		if err != nil {
			return err
		}
		el.Header = h
		el.NEVR = h.NEVR()
		el.fi = fi
	}

	fire(notify, Event{Kind: NotifyUninstStart, NEVR: el.NEVR.String()})

	if ts.env.TransFlags&types.TransJustDB != 0 {
		if el.PkgKey != 0 {
			if err := ts.store.Del(el.PkgKey); err != nil {
				return fmt.Errorf("record store del: %w", err)
			}
			metrics.PackagesInstalled.Dec()
		}
		fire(notify, Event{Kind: NotifyUninstStop, NEVR: el.NEVR.String()})
		return nil
	}

	engine := fsm.New(fsm.Options{
		RootDir: ts.env.RootDir,
		TID:     ts.tid,
		Flags:   ts.env.TransFlags,
		Journal: ts.journalRecorder(),
		Notify: func(ev fsm.Event) bool {
			return fire(notify, Event{Kind: NotifyUninstProgress, Current: int(ev.Current), Total: int(ev.Total), NEVR: el.NEVR.String()})
		},
	}, ts.log)

	if err := engine.Erase(el.fi); err != nil {
		return err
	}

	if el.PkgKey != 0 {
		if err := ts.store.Del(el.PkgKey); err != nil {
			return fmt.Errorf("record store del: %w", err)
		}
		metrics.PackagesInstalled.Dec()
	}

	fire(notify, Event{Kind: NotifyUninstStop, NEVR: el.NEVR.String()})
	return nil
}

func fire(notify NotifyFunc, ev Event) bool {
	if notify == nil {
		return false
	}
	return notify(ev)
}

// ErrAborted is returned by Run when the notify callback requests abort.
var ErrAborted = fmt.Errorf("transaction: run aborted by notify callback")

// rollbackRan undoes the committed elements in ran, newest first. ADDED
// elements are erased from disk and the store; a REMOVED element's files
// cannot be un-erased without the original archive, so those only log a
// warning and count as failures.
func (ts *TS) rollbackRan(ran []*Element, notify NotifyFunc) int {
	metrics.RollbacksTotal.Inc()
	newProbs := 0
	for i := len(ran) - 1; i >= 0; i-- {
		el := ran[i]
		switch el.Kind {
		case types.TEAdded:
			if el.fi != nil {
				engine := fsm.New(fsm.Options{RootDir: ts.env.RootDir, TID: ts.tid, Flags: ts.env.TransFlags, Journal: ts.journalRecorder()}, ts.log)
				if err := engine.Erase(el.fi); err != nil {
					ts.log.Warn().Err(err).Str("nevr", el.NEVR.String()).Msg("rollback erase failed")
					newProbs++
				}
			}
			if el.PkgKey != 0 {
				if err := ts.store.Del(el.PkgKey); err == nil {
					metrics.PackagesInstalled.Dec()
				}
			}
		case types.TERemoved:
			ts.log.Warn().Str("nevr", el.NEVR.String()).Msg("rollback cannot restore an erased package without its original archive")
			newProbs++
		}
	}
	return newProbs
}
