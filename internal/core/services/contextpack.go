package services

import (
	"strings"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/ids"
)

// PackContext assembles a budgeted context window from an ordered result
// set. Iteration follows the results' existing order; diversity <= 0
// means no per-doc cap.
func PackContext(results []domain.ScoredChunk, budgetTokens, diversity int) *domain.PackedContext {
	used := 0
	var textParts []string
	var packed []domain.PackedChunk
	seen := make(map[string]bool)
	perDoc := make(map[string]int)

	for _, item := range results {
		chunk := item.Chunk
		if seen[chunk.ID] {
			continue
		}
		if diversity > 0 && perDoc[item.Doc.ID] >= diversity {
			continue
		}

		remaining := budgetTokens - used
		if remaining <= 0 {
			break
		}

		text, tokenCount := takeTokens(chunk.Text, remaining)
		if tokenCount == 0 {
			continue
		}

		used += tokenCount
		perDoc[item.Doc.ID]++
		seen[chunk.ID] = true

		textParts = append(textParts, text)
		packed = append(packed, domain.PackedChunk{
			Path:   item.Doc.Path,
			Hash:   item.Doc.Hash,
			MTime:  item.Doc.MTime,
			Offset: chunk.Offset,
			Tokens: tokenCount,
			Text:   text,
		})
	}

	return &domain.PackedContext{
		Text:         strings.Join(textParts, "\n\n"),
		BudgetTokens: budgetTokens,
		UsedTokens:   used,
		Chunks:       packed,
	}
}

// takeTokens returns chunk text truncated to at most limit whitespace
// tokens, and how many tokens it actually contains.
func takeTokens(text string, limit int) (string, int) {
	tokens := ids.Tokens(text)
	if len(tokens) == 0 {
		return "", 0
	}
	if len(tokens) <= limit {
		return text, len(tokens)
	}
	return strings.Join(tokens[:limit], " "), limit
}
