// Package cli implements the recall command-line surface: query, ingest,
// doctor, stats, export, import, compact, and version, wired directly
// onto the core's driving/driven ports with no service layer of its own.
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/recall/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/recall/internal/config"
	"github.com/custodia-labs/recall/internal/logger"
)

// version is set at build time via -ldflags -X; "dev" otherwise.
var version = "dev"

var (
	flagStorePath string
	flagVerbose   bool
)

var rootCmd = &cobra.Command{
	Use:   "recall",
	Short: "A local, single-file hybrid document store",
	Long: `recall is a local, single-file document store that serves hybrid
(lexical + semantic) retrieval over an evolving corpus, plus budgeted
context assembly with full provenance. One SQLite file on disk, one
writer at a time, stable machine-readable output.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetVerbose(flagVerbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagStorePath, "store", "", "path to the recall store file (overrides recall.toml)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log pipeline detail to stderr")
}

// Execute runs the root command, returning the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

// loadConfig resolves recall.toml starting from the current directory,
// applying a --store override if given.
func loadConfig() (config.Ctx, error) {
	ctx, err := config.LoadFromCwd()
	if err != nil {
		return config.Ctx{}, err
	}
	if flagStorePath != "" {
		ctx.Config.StorePath = flagStorePath
	}
	return ctx, nil
}

// openStore resolves configuration and opens the store at its resolved
// path. Callers are responsible for closing the returned store.
func openStore(readOnly bool) (*sqlite.Store, config.Ctx, error) {
	ctx, err := loadConfig()
	if err != nil {
		return nil, config.Ctx{}, err
	}
	opts := sqlite.Options{
		ReadOnly:    readOnly,
		LockTimeout: time.Duration(ctx.Config.BusyTimeoutMs) * time.Millisecond,
		AnnSeed:     ctx.Config.AnnSeed,
		AnnBits:     ctx.Config.AnnBits,
	}
	s, err := sqlite.Open(ctx.StorePath(), opts)
	if err != nil {
		return nil, config.Ctx{}, err
	}
	return s, ctx, nil
}
