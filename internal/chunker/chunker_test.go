package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplit_SingleChunkWhenShorterThanSize(t *testing.T) {
	chunks := Split("alpha beta gamma", 10, 2)
	require.Len(t, chunks, 1)
	require.Equal(t, 0, chunks[0].Offset)
	require.Equal(t, 3, chunks[0].Tokens)
}

func TestSplit_WindowsWithOverlap(t *testing.T) {
	text := strings.Join([]string{"a", "b", "c", "d", "e", "f"}, " ")
	chunks := Split(text, 4, 2)
	require.Len(t, chunks, 2)
	require.Equal(t, 0, chunks[0].Offset)
	require.Equal(t, "a b c d", chunks[0].Text)
	require.Equal(t, 2, chunks[1].Offset)
	require.Equal(t, "c d e f", chunks[1].Text)
}

func TestSplit_OverlapClampedBelowSize(t *testing.T) {
	chunks := Split("a b c d e f", 3, 10)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		require.LessOrEqual(t, c.Tokens, 3)
	}
}

func TestSplit_NonPositiveSizeReturnsWholeText(t *testing.T) {
	chunks := Split("a b c", 0, 0)
	require.Len(t, chunks, 1)
	require.Equal(t, "a b c", chunks[0].Text)
}

func TestSplit_EmptyTextReturnsNoChunks(t *testing.T) {
	require.Empty(t, Split("   ", 5, 1))
}

func TestSplit_LastWindowCoversTail(t *testing.T) {
	text := "a b c d e"
	chunks := Split(text, 3, 1)
	last := chunks[len(chunks)-1]
	require.Equal(t, "c d e", last.Text)
}
