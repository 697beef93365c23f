package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/recall/internal/response"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the live corpus",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	s, _, err := openStore(true)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer s.Close()

	stats, err := s.Stats(context.Background())
	if err != nil {
		return writeErr(cmd, err)
	}

	resp := response.Ok().WithStats(response.Stats{
		Snapshot: stats.Snapshot,
		Corpus:   &response.CorpusStats{Docs: stats.DocCount, Chunks: stats.ChunkCount, Bytes: stats.TotalBytes},
	})
	return response.Write(cmd.OutOrStdout(), resp)
}
