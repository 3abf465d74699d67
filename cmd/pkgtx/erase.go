package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pkgtx/corepm/pkg/log"
	"github.com/pkgtx/corepm/pkg/transaction"
)

var eraseCmd = &cobra.Command{
	Use:   "erase <package-name>...",
	Short: "Remove one or more installed packages by name",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runErase,
}

func runErase(cmd *cobra.Command, args []string) error {
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

	for _, name := range args {
		keys, err := st.FindByName(name)
		if err != nil {
			return fmt.Errorf("pkgtx: lookup %s: %w", name, err)
		}
		if len(keys) == 0 {
			return fmt.Errorf("pkgtx: package %q is not installed", name)
		}
		for _, pkgKey := range keys {
			h, err := st.Get(pkgKey)
			if err != nil {
				return fmt.Errorf("pkgtx: load record %d: %w", pkgKey, err)
			}
			if _, err := ts.AddErase(h, pkgKey); err != nil {
				return fmt.Errorf("pkgtx: addErase %s: %w", name, err)
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

	if _, err := ts.Order(); err != nil {
		return fmt.Errorf("pkgtx: order: %w", err)
	}

	if flagTest {
		fmt.Println("test run: check and order completed, no filesystem changes made")
		return nil
	}

	notify := func(ev transaction.Event) bool {
		if ev.Kind == transaction.NotifyUninstStart {
			fmt.Printf("Erasing %s\n", ev.NEVR)
		}
		return false
	}

	if _, err := ts.Run(nil, notify); err != nil {
		return fmt.Errorf("pkgtx: run: %w", err)
	}
	fmt.Println("done")
	return nil
}
