package transfer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDocAndChunk_RoundTripThroughScan(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeDoc(&buf, DocRecord{ID: "d1", Path: "a.md", Hash: "h1", MTime: "2026-01-01T00:00:00Z"}))
	require.NoError(t, EncodeChunk(&buf, ChunkRecord{ID: "c1", DocID: "d1", Offset: 0, Tokens: 2, Text: "hi there", Embedding: EncodeEmbedding([]byte{1, 2, 3})}))

	var docs []DocRecord
	var chunks []ChunkRecord
	err := Scan(&buf, func(line Line) error {
		switch {
		case line.Doc != nil:
			docs = append(docs, *line.Doc)
		case line.Chunk != nil:
			chunks = append(chunks, *line.Chunk)
		}
		return nil
	})
	require.NoError(t, err)

	require.Len(t, docs, 1)
	require.Equal(t, "d1", docs[0].ID)
	require.Equal(t, "doc", docs[0].Type)

	require.Len(t, chunks, 1)
	require.Equal(t, "c1", chunks[0].ID)
	require.Equal(t, "chunk", chunks[0].Type)

	blob, err := DecodeEmbedding(chunks[0].Embedding)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, blob)
}

func TestScan_SkipsBlankLines(t *testing.T) {
	r := strings.NewReader("\n{\"type\":\"doc\",\"id\":\"d1\",\"path\":\"a.md\"}\n\n")
	var n int
	err := Scan(r, func(Line) error { n++; return nil })
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestScan_UnknownTypeErrors(t *testing.T) {
	r := strings.NewReader(`{"type":"widget"}`)
	err := Scan(r, func(Line) error { return nil })
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown line type")
}

func TestScan_MalformedLineErrors(t *testing.T) {
	r := strings.NewReader(`not json`)
	err := Scan(r, func(Line) error { return nil })
	require.Error(t, err)
}

func TestScan_PropagatesCallbackError(t *testing.T) {
	r := strings.NewReader("{\"type\":\"doc\",\"id\":\"d1\"}\n{\"type\":\"doc\",\"id\":\"d2\"}\n")
	var seen int
	err := Scan(r, func(Line) error {
		seen++
		if seen == 1 {
			return errStop
		}
		return nil
	})
	require.ErrorIs(t, err, errStop)
	require.Equal(t, 1, seen)
}

var errStop = stopError("stop")

type stopError string

func (e stopError) Error() string { return string(e) }
