// Package chunker implements the reference ingest producer's text
// splitter: fixed-size, overlapping windows over whitespace tokens. The
// core never calls this; it only consumes the offset/tokens/text triples
// an external producer (the recall ingest command, here) supplies.
package chunker

import (
	"strings"

	"github.com/custodia-labs/recall/internal/ids"
)

// Chunk is one windowed span of source text, prior to embedding.
type Chunk struct {
	Offset int
	Tokens int
	Text   string
}

// Split windows text into chunks of at most size whitespace tokens, each
// chunk overlapping the previous by overlap tokens. Offset is the token
// index of the chunk's first token within text. A non-positive size
// produces a single chunk holding all of text.
func Split(text string, size, overlap int) []Chunk {
	tokens := ids.Tokens(text)
	if len(tokens) == 0 {
		return nil
	}
	if size <= 0 {
		return []Chunk{{Offset: 0, Tokens: len(tokens), Text: text}}
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}

	stride := size - overlap
	var out []Chunk
	for start := 0; start < len(tokens); start += stride {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		window := tokens[start:end]
		out = append(out, Chunk{Offset: start, Tokens: len(window), Text: strings.Join(window, " ")})
		if end == len(tokens) {
			break
		}
	}
	return out
}
