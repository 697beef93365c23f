package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/recall/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/recall/internal/config"
	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/services"
	"github.com/custodia-labs/recall/internal/embedding"
	"github.com/custodia-labs/recall/internal/response"
)

var (
	queryExplain          bool
	querySnapshot         string
	queryContextBudget    int
	queryContextDiversity int
	queryJSON             bool
	queryStream           bool
)

var queryCmd = &cobra.Command{
	Use:   "query [rql]",
	Short: "Run an RQL query against the store",
	Long: `Runs an RQL statement (pipeline or legacy form) against the store:
validates and compiles the filter, generates lexical and/or semantic
candidates, fuses and orders scores, paginates against a snapshot, and
optionally packs a context window.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().BoolVar(&queryExplain, "explain", false, "include per-stage timing and candidate counts")
	queryCmd.Flags().StringVar(&querySnapshot, "snapshot", "", "pin results to this snapshot token instead of the current one")
	queryCmd.Flags().IntVar(&queryContextBudget, "context-budget", 0, "pack a context window of at most this many tokens")
	queryCmd.Flags().IntVar(&queryContextDiversity, "context-diversity", 0, "cap packed chunks per doc (0 means no cap)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "force the JSON envelope even on a terminal")
	queryCmd.Flags().BoolVar(&queryStream, "stream", false, "emit newline-delimited JSON (envelope, then one result per line) instead of a single indented object")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	s, ctx, err := openStore(true)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer s.Close()

	planner := buildPlanner(s, ctx.Config)
	req := domain.QueryRequest{
		RQL:              args[0],
		Snapshot:         querySnapshot,
		Explain:          queryExplain,
		ContextBudget:    queryContextBudget,
		ContextDiversity: queryContextDiversity,
	}

	result, err := planner.Query(context.Background(), req)
	if err != nil {
		return writeErr(cmd, err)
	}

	if wantsTable(cmd) {
		printResultTable(cmd, result)
		return nil
	}

	resp := response.Ok().WithQuery(response.Query{
		Text: args[0], Limit: result.EffectiveLimit, Offset: result.EffectiveOffset,
		Snapshot: result.Stats.Snapshot,
	})

	results := make([]any, len(result.Results))
	for i, sc := range result.Results {
		results[i] = response.ResultFromScoredChunk(sc, result.Fields)
	}
	resp = resp.WithResults(results).WithStats(response.Stats{
		TotalHits: len(result.Results), Snapshot: result.Stats.Snapshot,
		Corpus: &response.CorpusStats{Docs: result.Stats.DocCount, Chunks: result.Stats.ChunkCount, Bytes: result.Stats.TotalBytes},
	})

	var warnings []string
	for _, w := range result.Warnings {
		msg := w.Code + ": " + w.Message
		if w.Detail != "" {
			msg += " (" + w.Detail + ")"
		}
		warnings = append(warnings, msg)
	}
	resp = resp.WithWarnings(warnings)

	if result.Explain != nil {
		resp = resp.WithExplain(response.ExplainFromDomain(result.Explain))
	}
	if result.Context != nil {
		resp = resp.WithContext(response.ContextFromPacked(result.Context))
	}

	if queryStream {
		return response.WriteStream(cmd.OutOrStdout(), resp)
	}
	return response.Write(cmd.OutOrStdout(), resp)
}

// buildPlanner wires a services.Planner from the store's own lexical and
// vector indexes plus the resolved configuration's embedder and fusion
// weights.
func buildPlanner(s *sqlite.Store, cfg config.Config) *services.Planner {
	embedder := embedding.NewHashEmbedder(cfg.EmbeddingDim)
	weights := services.Weights{Lexical: cfg.BM25Weight, Semantic: cfg.VectorWeight}
	return services.NewPlanner(s, s.LexicalIndex(), s.VectorIndex(), embedder, weights, cfg.MaxLimit, cfg.MinCandidates)
}

func writeErr(cmd *cobra.Command, err error) error {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		derr = domain.Wrap(domain.KindIO, err.Error(), err)
	}
	_ = response.Write(cmd.OutOrStdout(), response.Err(derr))
	return fmt.Errorf("%s", derr.Message)
}

// wantsTable reports whether output should be a human-readable table:
// stdout is a terminal, and neither --json nor --stream was given.
func wantsTable(cmd *cobra.Command) bool {
	if queryJSON || queryStream {
		return false
	}
	f, ok := cmd.OutOrStdout().(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func printResultTable(cmd *cobra.Command, result *domain.QueryResult) {
	if len(result.Results) == 0 {
		cmd.Println("No results.")
		return
	}
	cmd.Printf("%d result(s) (snapshot %s)\n\n", len(result.Results), result.Stats.Snapshot)
	for i, sc := range result.Results {
		cmd.Printf("[%d] %s (score %.4f)\n", i+1, sc.Doc.Path, sc.Score)
		snippet := sc.Chunk.Text
		if len(snippet) > 160 {
			snippet = snippet[:160] + "..."
		}
		cmd.Printf("    %s\n\n", snippet)
	}
}
