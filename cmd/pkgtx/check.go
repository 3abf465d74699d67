package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pkgtx/corepm/pkg/archive"
	"github.com/pkgtx/corepm/pkg/log"
	"github.com/pkgtx/corepm/pkg/transaction"
)

var checkCmd = &cobra.Command{
	Use:   "check <package-file>...",
	Short: "Check dependencies and ordering for package files without installing",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	st, err := openStore(env)
	if err != nil {
		return err
	}
	defer st.Close()

	logger := log.WithComponent("transaction")
	tid := uint32(time.Now().Unix())
	ts := transaction.New(env, st, nil, tid, logger)

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
		if rc, err := ts.AddInstall(h, path, len(existing) > 0, nil); err != nil {
			return fmt.Errorf("pkgtx: addInstall %s: %w", path, err)
		} else if rc != 0 {
			return fmt.Errorf("pkgtx: addInstall %s: rc=%d", path, rc)
		}
	}

	if _, err := ts.Check(); err != nil {
		return fmt.Errorf("pkgtx: check: %w", err)
	}
	unordered, err := ts.Order()
	if err != nil {
		return fmt.Errorf("pkgtx: order: %w", err)
	}
	if unordered > 0 {
		fmt.Printf("warning: %d element(s) could not be strictly ordered\n", unordered)
	}

	problems := ts.Problems()
	for _, p := range problems {
		fmt.Printf("problem: %s %s: %s\n", p.Kind.String(), p.PrimaryNEVR, p.Str)
	}
	if len(problems) > 0 {
		return fmt.Errorf("pkgtx: %d problem(s)", len(problems))
	}
	fmt.Println("ok")
	return nil
}
