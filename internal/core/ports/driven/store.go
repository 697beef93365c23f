package driven

import (
	"context"
	"io"

	"github.com/custodia-labs/recall/internal/core/domain"
)

// Store persists docs and chunks, maintains lexical/vector index
// consistency within each write transaction, and owns the single-writer
// lock, migrations, and snapshot token. Backed by a single SQLite file
// (modernc.org/sqlite, no cgo).
type Store interface {
	// Close releases the store's resources and, for a write-opened store,
	// unlinks the lock file.
	Close() error

	// InsertDoc atomically replaces any existing doc at the same path:
	// tombstones the old doc/chunks (if present), inserts the new doc and
	// its chunks, and updates the lexical and vector indexes. All-or-
	// nothing per call.
	InsertDoc(ctx context.Context, doc domain.Doc, chunks []domain.InsertChunk) (domain.Doc, []domain.Chunk, error)

	// Tombstone marks the doc matching id-or-path, and all its chunks, as
	// deleted. Returns domain.ErrNotFound if nothing matches.
	Tombstone(ctx context.Context, idOrPath string) error

	// Compact removes tombstoned rows permanently and rebuilds the
	// lexical/vector indexes from what remains.
	Compact(ctx context.Context) error

	// Doctor checks chunk rows against the lexical/vector indexes and,
	// when fix is true, repairs index-only discrepancies (never deletes
	// chunk data).
	Doctor(ctx context.Context, fix bool) (domain.ConsistencyReport, error)

	// SnapshotToken returns the maximum mtime across live docs right now,
	// or the empty-store sentinel if there are none.
	SnapshotToken(ctx context.Context) (string, error)

	// Stats summarizes the live corpus.
	Stats(ctx context.Context) (domain.CorpusStats, error)

	// Export streams the live doc/chunk set as newline-delimited JSON.
	Export(ctx context.Context, w io.Writer) error

	// Import restores a doc/chunk set previously produced by Export,
	// rebuilding the vector index afterwards. Transactional: a failure
	// partway through leaves the store as it was before the call.
	Import(ctx context.Context, r io.Reader) error

	// GetDoc looks up a live doc by ID.
	GetDoc(ctx context.Context, id string) (domain.Doc, error)

	// GetDocByPath looks up a live doc by its normalized path.
	GetDocByPath(ctx context.Context, path string) (domain.Doc, error)

	// GetChunksByIDs hydrates chunk IDs (as returned by the lexical or
	// vector index) into full Chunk and parent Doc rows, restricted to
	// live rows no newer than snapshot.
	GetChunksByIDs(ctx context.Context, ids []string, snapshot string) (map[string]domain.Chunk, map[string]domain.Doc, error)

	// ListDocs returns live docs matching predicate at snapshot, ordered
	// by order (falling back to the canonical doc.path,doc.id order),
	// then limited/offset.
	ListDocs(ctx context.Context, predicate domain.Predicate, snapshot string, order domain.SortKey, limit, offset int) ([]domain.Doc, error)

	// ListChunks returns live chunks (with their parent docs) matching
	// predicate at snapshot, ordered by order (falling back to the
	// canonical doc.path,chunk.offset,chunk.id order), then limited/offset.
	ListChunks(ctx context.Context, predicate domain.Predicate, snapshot string, order domain.SortKey, limit, offset int) ([]domain.ScoredChunk, error)
}
