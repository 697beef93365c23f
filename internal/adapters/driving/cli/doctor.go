package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/recall/internal/response"
)

var doctorFix bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check chunk rows against the lexical and vector indexes",
	Long: `Cross-checks every live chunk row against the lexical and vector
indexes that describe it, reporting entries missing from either index and
index entries with no matching chunk. With --fix, repairs index-only
discrepancies; chunk data itself is never touched.`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "repair discrepancies found")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	s, _, err := openStore(false)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer s.Close()

	report, err := s.Doctor(context.Background(), doctorFix)
	if err != nil {
		return writeErr(cmd, err)
	}

	resp := response.Ok().WithDiagnostics(map[string]any{
		"clean":                report.Clean(),
		"repaired":             report.Repaired,
		"missing_from_lexical": report.MissingFromLexical,
		"missing_from_vector":  report.MissingFromVector,
		"orphan_vector":        report.OrphanVector,
	})
	return response.Write(cmd.OutOrStdout(), resp)
}
