package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the installed-package record store",
	RunE:  runQuery,
}

func runQuery(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	st, err := openStore(env)
	if err != nil {
		return err
	}
	defer st.Close()

	keys, err := st.List()
	if err != nil {
		return fmt.Errorf("pkgtx: list: %w", err)
	}
	for _, pkgKey := range keys {
		h, err := st.Get(pkgKey)
		if err != nil {
			return fmt.Errorf("pkgtx: get %d: %w", pkgKey, err)
		}
		fmt.Printf("%d\t%s\n", pkgKey, h.NEVR().String())
	}
	return nil
}
