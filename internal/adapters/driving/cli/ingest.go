package cli

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/recall/internal/chunker"
	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/embedding"
	"github.com/custodia-labs/recall/internal/ids"
	"github.com/custodia-labs/recall/internal/response"
)

var (
	ingestTag    string
	ingestSource string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Chunk, embed, and insert a document",
	Long: `Reads a file, normalizes its path and content hash, windows it into
overlapping chunks (chunk_tokens/overlap_tokens from recall.toml), embeds
each chunk with the configured embedder, and inserts the result as a
single transaction. This is the reference producer the core's insert_doc
interface is designed for; any producer that can build the same shape
can replace it.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTag, "tag", "", "free-form tag stored on the doc")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "free-form source label stored on the doc")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	path := args[0]
	content, err := os.ReadFile(path)
	if err != nil {
		return writeErr(cmd, domain.Wrap(domain.KindIO, "read file", err))
	}
	info, err := os.Stat(path)
	if err != nil {
		return writeErr(cmd, domain.Wrap(domain.KindIO, "stat file", err))
	}

	s, ctx, err := openStore(false)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer s.Close()

	normalized := ids.NormalizePath(path)
	hash := sha256.Sum256(content)
	hashHex := hex.EncodeToString(hash[:])
	docID := ids.DocID(normalized, hashHex)

	embedder := embedding.NewHashEmbedder(ctx.Config.EmbeddingDim)
	windows := chunker.Split(string(content), ctx.Config.ChunkTokens, ctx.Config.OverlapTokens)
	chunks := make([]domain.InsertChunk, len(windows))
	for i, w := range windows {
		chunks[i] = domain.InsertChunk{Offset: w.Offset, Tokens: w.Tokens, Text: w.Text, Embedding: embedder.Embed(w.Text)}
	}

	doc := domain.Doc{
		ID: docID, Path: normalized, Hash: hashHex,
		MTime: info.ModTime().UTC().Format(time.RFC3339), Tag: ingestTag, Source: ingestSource,
		Meta: map[string]any{},
	}

	inserted, insertedChunks, err := s.InsertDoc(context.Background(), doc, chunks)
	if err != nil {
		return writeErr(cmd, err)
	}

	resp := response.Ok().WithDiagnostics(map[string]any{
		"doc_id": inserted.ID, "path": inserted.Path, "chunks": len(insertedChunks),
	})
	return response.Write(cmd.OutOrStdout(), resp)
}
