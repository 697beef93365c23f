package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func execRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestQueryCmd_EmptyStoreReturnsOkEnvelope(t *testing.T) {
	store := filepath.Join(t.TempDir(), "recall.db")
	out, err := execRoot(t, "--store", store, "query", "--json", "FROM chunk SELECT *;")
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Equal(t, true, decoded["ok"])
}

func TestQueryCmd_IngestThenQueryFindsMatch(t *testing.T) {
	store := filepath.Join(t.TempDir(), "recall.db")
	doc := filepath.Join(t.TempDir(), "note.txt")
	require.NoError(t, os.WriteFile(doc, []byte("hybrid retrieval over sqlite documents"), 0o644))

	_, err := execRoot(t, "--store", store, "ingest", doc)
	require.NoError(t, err)

	out, err := execRoot(t, "--store", store, "query", "--json", `FROM chunk USING lexical("sqlite") SELECT *;`)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Equal(t, true, decoded["ok"])
	results, ok := decoded["results"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, results)
}

func TestQueryCmd_InvalidRQLReturnsErrorEnvelope(t *testing.T) {
	store := filepath.Join(t.TempDir(), "recall.db")
	out, err := execRoot(t, "--store", store, "query", "--json", "not valid rql")
	require.Error(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Equal(t, false, decoded["ok"])
	require.NotNil(t, decoded["error"])
}
