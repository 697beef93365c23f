package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/recall/internal/response"
)

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Physically remove tombstoned rows and rebuild the lexical index",
	RunE:  runCompact,
}

func init() {
	rootCmd.AddCommand(compactCmd)
}

func runCompact(cmd *cobra.Command, _ []string) error {
	s, _, err := openStore(false)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer s.Close()

	if err := s.Compact(context.Background()); err != nil {
		return writeErr(cmd, err)
	}
	return response.Write(cmd.OutOrStdout(), response.Ok())
}
