package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/recall/internal/core/domain"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Stream the live doc/chunk set as newline-delimited JSON",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "write to this file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, _ []string) error {
	s, _, err := openStore(true)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer s.Close()

	w := cmd.OutOrStdout()
	if exportOut != "" {
		f, err := os.Create(exportOut)
		if err != nil {
			return writeErr(cmd, domain.Wrap(domain.KindIO, "create export file", err))
		}
		defer f.Close()
		w = f
	}

	if err := s.Export(context.Background(), w); err != nil {
		return writeErr(cmd, err)
	}
	return nil
}
