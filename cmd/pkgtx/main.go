// Command pkgtx is the thin CLI wiring over pkg/transaction: persistent
// flags set up logging and the process environment in a cobra
// PersistentPreRunE-style init, and each subcommand does nothing but
// parse arguments and call straight into the engine. No transaction
// logic lives here.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/pkgtx/corepm/pkg/config"
	"github.com/pkgtx/corepm/pkg/journal"
	"github.com/pkgtx/corepm/pkg/log"
	"github.com/pkgtx/corepm/pkg/metrics"
	"github.com/pkgtx/corepm/pkg/store"
	"github.com/pkgtx/corepm/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

var (
	flagEnvFile    string
	flagRootDir    string
	flagDBDir      string
	flagJournalDir string
	flagNoJournal  bool
	flagTest       bool
	flagMetricsAddr string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "pkgtx",
	Short:   "pkgtx is a transactional package-install engine core",
	Version: Version,
	Long: `pkgtx drives package installs and erasures through a
dependency-checked, topologically-ordered, crash-recoverable sequence
of filesystem mutations.

It is the CLI wiring over the transaction engine: dependency
resolution, ordering, and the per-file state machine live in
pkg/transaction, pkg/solver, pkg/order, and pkg/fsm.`,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("pkgtx version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env", "", "Environment YAML file (rootDir/dbPath/flags), overrides --root/--db")
	rootCmd.PersistentFlags().StringVar(&flagRootDir, "root", "/", "Filesystem root for every path operation")
	rootCmd.PersistentFlags().StringVar(&flagDBDir, "db", "/var/lib/pkgtx", "Record store directory")
	rootCmd.PersistentFlags().StringVar(&flagJournalDir, "journal", "/var/lib/pkgtx/journal", "Crash-recovery journal directory")
	rootCmd.PersistentFlags().BoolVar(&flagNoJournal, "no-journal", false, "Disable the crash-recovery journal")
	rootCmd.PersistentFlags().BoolVar(&flagTest, "test", false, "Dry run: check and order only, never touch the filesystem")
	rootCmd.PersistentFlags().StringVar(&flagMetricsAddr, "metrics-addr", "", "If set, serve Prometheus metrics on this address while running (e.g. :9105)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(eraseCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(queryCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// loadEnvironment resolves the Environment either from --env or from
// the --root/--db/--test flags directly.
func loadEnvironment() (*config.Environment, error) {
	if flagEnvFile != "" {
		return config.Load(flagEnvFile)
	}
	env := config.Default()
	env.RootDir = flagRootDir
	env.DBPath = flagDBDir
	if flagTest {
		env.TransFlags |= types.TransTest
	}
	return env, nil
}

func openStore(env *config.Environment) (store.Store, error) {
	if err := os.MkdirAll(env.DBPath, 0755); err != nil {
		return nil, fmt.Errorf("pkgtx: create db dir %s: %w", env.DBPath, err)
	}
	return store.NewBoltStore(env.DBPath)
}

func openJournal() (*journal.Journal, error) {
	if flagNoJournal {
		return nil, nil
	}
	if err := os.MkdirAll(flagJournalDir, 0755); err != nil {
		return nil, fmt.Errorf("pkgtx: create journal dir %s: %w", flagJournalDir, err)
	}
	return journal.Open(flagJournalDir + "/pkgtx.journal")
}

// maybeServeMetrics starts a background Prometheus /metrics endpoint,
// along with /health, /ready, and /live, for the duration of this
// invocation. st and jrnl (jrnl may be nil under --no-journal) are
// registered as health components before the mux starts serving.
func maybeServeMetrics(st store.Store, jrnl *journal.Journal) {
	metrics.SetVersion(Version)
	metrics.RegisterComponent("store", st != nil, "")
	if jrnl != nil {
		metrics.RegisterComponent("journal", true, "")
	} else {
		metrics.RegisterComponent("journal", true, "disabled (--no-journal)")
	}

	if flagMetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())
	go func() {
		if err := http.ListenAndServe(flagMetricsAddr, mux); err != nil {
			log.Logger.Warn().Err(err).Msg("metrics server stopped")
		}
	}()
}
