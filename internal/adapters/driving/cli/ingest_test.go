package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIngestCmd_InsertsDocAndReportsChunkCount(t *testing.T) {
	store := filepath.Join(t.TempDir(), "recall.db")
	doc := filepath.Join(t.TempDir(), "note.md")
	require.NoError(t, os.WriteFile(doc, []byte("alpha beta gamma delta epsilon"), 0o644))

	out, err := execRoot(t, "--store", store, "ingest", "--tag", "notes", doc)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Equal(t, true, decoded["ok"])
	diag, ok := decoded["diagnostics"].(map[string]any)
	require.True(t, ok)
	require.NotEmpty(t, diag["doc_id"])
}

func TestIngestCmd_MissingFileReturnsErrorEnvelope(t *testing.T) {
	store := filepath.Join(t.TempDir(), "recall.db")
	out, err := execRoot(t, "--store", store, "ingest", filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Equal(t, false, decoded["ok"])
}
