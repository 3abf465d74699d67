package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/pkgtx/corepm/pkg/archive"
	"github.com/pkgtx/corepm/pkg/log"
	"github.com/pkgtx/corepm/pkg/transaction"
)

var installCmd = &cobra.Command{
	Use:   "install <package-file>...",
	Short: "Install or upgrade one or more package files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runInstall,
}

// fileOpener satisfies transaction.ArchiveOpener by re-opening the
// package file named by its retrieval key and handing back its payload
// stream, the INST_OPEN_FILE/INST_CLOSE_FILE callback pair.
type fileOpener struct{}

func (fileOpener) OpenInstallArchive(key string) (io.ReadCloser, error) {
	pkg, err := archive.OpenFile(key)
	if err != nil {
		return nil, err
	}
	return &packagePayload{pkg: pkg}, nil
}

// packagePayload adapts an *archive.Package's Payload reader, which has
// no Close of its own, to io.ReadCloser by closing the underlying
// Package (and so the file handle) on Close.
type packagePayload struct {
	pkg *archive.Package
}

func (p *packagePayload) Read(b []byte) (int, error) { return p.pkg.Payload.Read(b) }
func (p *packagePayload) Close() error               { return p.pkg.Close() }

func runInstall(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	st, err := openStore(env)
	if err != nil {
		return err
	}
	defer st.Close()

	jrnl, err := openJournal()
	if err != nil {
		return err
	}
	if jrnl != nil {
		defer jrnl.Close()
	}

	maybeServeMetrics(st, jrnl)

	logger := log.WithComponent("transaction")
	tid := uint32(time.Now().Unix())
	ts := transaction.New(env, st, jrnl, tid, logger)

	for _, path := range args {
		pkg, err := archive.OpenFile(path)
		if err != nil {
			return fmt.Errorf("pkgtx: open %s: %w", path, err)
		}
		h := pkg.Header
		pkg.Close()

		existing, err := st.FindByName(h.NEVR().Name)
		if err != nil {
			return fmt.Errorf("pkgtx: lookup installed %s: %w", h.NEVR().Name, err)
		}
		isUpgrade := len(existing) > 0

		if rc, err := ts.AddInstall(h, path, isUpgrade, nil); err != nil {
			return fmt.Errorf("pkgtx: addInstall %s: %w", path, err)
		} else if rc != 0 {
			return fmt.Errorf("pkgtx: addInstall %s: rc=%d", path, rc)
		}

		for _, pkgKey := range existing {
			oldHdr, err := st.Get(pkgKey)
			if err != nil {
				return fmt.Errorf("pkgtx: load installed record %d: %w", pkgKey, err)
			}
			if _, err := ts.AddErase(oldHdr, pkgKey); err != nil {
				return fmt.Errorf("pkgtx: addErase %s: %w", oldHdr.NEVR().String(), err)
			}
		}
	}

	if rc, err := ts.Check(); err != nil || rc != 0 {
		return fmt.Errorf("pkgtx: check: %w", err)
	}
	if problems := ts.Problems(); len(problems) > 0 {
		for _, p := range problems {
			fmt.Printf("problem: %s %s: %s\n", p.Kind.String(), p.PrimaryNEVR, p.Str)
		}
		return fmt.Errorf("pkgtx: %d unresolved problem(s)", len(problems))
	}

	unordered, err := ts.Order()
	if err != nil {
		return fmt.Errorf("pkgtx: order: %w", err)
	}
	if unordered > 0 {
		fmt.Printf("warning: %d element(s) could not be strictly ordered\n", unordered)
	}

	if flagTest {
		fmt.Println("test run: check and order completed, no filesystem changes made")
		return nil
	}

	notify := func(ev transaction.Event) bool {
		switch ev.Kind {
		case transaction.NotifyInstStart:
			fmt.Printf("Installing %s\n", ev.NEVR)
		case transaction.NotifyUninstStart:
			fmt.Printf("Replacing %s\n", ev.NEVR)
		}
		return false
	}

	if _, err := ts.Run(fileOpener{}, notify); err != nil {
		return fmt.Errorf("pkgtx: run: %w", err)
	}
	fmt.Println("done")
	return nil
}
