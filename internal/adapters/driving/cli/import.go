package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/response"
)

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Restore a doc/chunk set previously produced by export",
	Long: `Restores docs and chunks from newline-delimited JSON, read from the
given file or, with no argument, from stdin. Rows upsert by id, and the
vector index is rebuilt for every chunk touched.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	r := cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return writeErr(cmd, domain.Wrap(domain.KindIO, "open import file", err))
		}
		defer f.Close()
		r = f
	}

	s, _, err := openStore(false)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer s.Close()

	if err := s.Import(context.Background(), r); err != nil {
		return writeErr(cmd, err)
	}
	return response.Write(cmd.OutOrStdout(), response.Ok())
}
