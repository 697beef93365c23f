// Package sqlite is Recall's sole storage adapter: one SQLite file
// (modernc.org/sqlite, no cgo) holding doc/chunk rows, an FTS5 lexical
// index kept in sync by triggers, and a deterministic LSH vector index.
// A sidecar lock file enforces single-writer/multi-reader access.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // driver registration

	"github.com/custodia-labs/recall/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/embedding"
	"github.com/custodia-labs/recall/internal/ids"
	"github.com/custodia-labs/recall/internal/logger"
	"github.com/custodia-labs/recall/internal/transfer"
)

// Store is Recall's driven.Store implementation. A single *Store also
// exposes the lexical and vector indexes, since all three share one
// SQLite connection and one on-disk file.
type Store struct {
	db   *sql.DB
	path string
	lock *fileLock

	lex *lexicalIndex
	vec *vectorIndex
}

var _ driven.Store = (*Store)(nil)

// Options configures Open.
type Options struct {
	// ReadOnly skips holding the write lock; used by commands that only
	// ever read (e.g. a second concurrent `recall query`). A read-only
	// open whose schema is missing or out of date takes the lock just
	// long enough to run the migrations.
	ReadOnly bool

	// LockTimeout bounds how long Open waits for the write lock, and
	// how long SQLite itself waits on its own busy handler. Zero means
	// the 5s default (config.Default's busy_timeout_ms).
	LockTimeout time.Duration

	// AnnSeed is the LSH seed to persist into meta on a store's first
	// write-open (config's ann_seed). Ignored once a store already has
	// one recorded, per the determinism invariant in §4.4.
	AnnSeed uint64

	// AnnBits is the LSH bucket width (sign bits per band) to persist
	// into meta on a store's first write-open (config's ann_bits).
	// Ignored once a store already has one recorded, for the same
	// reason as AnnSeed.
	AnnBits int
}

// Open opens (creating if absent) the SQLite file at path, acquires the
// single-writer lock unless ReadOnly, and runs any pending migrations.
func Open(path string, opts Options) (*Store, error) {
	timeout := opts.LockTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(ON)", path, timeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, domain.Wrap(domain.KindIO, "open database", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, domain.Wrap(domain.KindIO, "ping database", err)
	}

	s := &Store{db: db, path: path, lex: &lexicalIndex{db: db}, vec: &vectorIndex{db: db}}

	if !opts.ReadOnly {
		lock := newFileLock(path)
		if err := lock.Acquire(timeout); err != nil {
			db.Close()
			return nil, err
		}
		s.lock = lock

		if err := s.migrate(); err != nil {
			lock.Release()
			db.Close()
			return nil, err
		}

		seed, err := s.ensureAnnSeed(opts.AnnSeed)
		if err != nil {
			lock.Release()
			db.Close()
			return nil, err
		}
		s.vec.seed = seed

		bits, err := s.ensureAnnBits(opts.AnnBits)
		if err != nil {
			lock.Release()
			db.Close()
			return nil, err
		}
		s.vec.rows = bits
	} else {
		var current int
		if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil || current != schemaVersion {
			lock := newFileLock(path)
			if err := lock.Acquire(timeout); err != nil {
				db.Close()
				return nil, err
			}
			merr := s.migrate()
			lock.Release()
			if merr != nil {
				db.Close()
				return nil, merr
			}
		}
		s.vec.seed = s.readAnnSeed(opts.AnnSeed)
		s.vec.rows = s.readAnnBits(opts.AnnBits)
	}

	return s, nil
}

// ensureAnnSeed returns the store's persisted LSH seed, writing
// configured into meta on first use if none is recorded yet.
func (s *Store) ensureAnnSeed(configured uint64) (uint64, error) {
	seed, found, err := s.lookupAnnSeed()
	if err != nil {
		return 0, err
	}
	if found {
		return seed, nil
	}
	if configured == 0 {
		configured = defaultAnnSeed
	}
	if _, err := s.db.Exec(`INSERT INTO meta (key, value) VALUES ('ann_seed', ?)`, strconv.FormatUint(configured, 10)); err != nil {
		return 0, domain.Wrap(domain.KindIO, "seed ann_seed", err)
	}
	return configured, nil
}

// readAnnSeed returns the store's persisted LSH seed, falling back to
// fallback (or defaultAnnSeed) when the meta table has none or doesn't
// exist yet — the case for a read-only open of a store that no
// write-open has ever seeded.
func (s *Store) readAnnSeed(fallback uint64) uint64 {
	seed, found, err := s.lookupAnnSeed()
	if err != nil || !found {
		if fallback == 0 {
			return defaultAnnSeed
		}
		return fallback
	}
	return seed
}

func (s *Store) lookupAnnSeed() (seed uint64, found bool, err error) {
	var raw string
	err = s.db.QueryRow(`SELECT value FROM meta WHERE key = 'ann_seed'`).Scan(&raw)
	switch {
	case err == nil:
		seed, perr := strconv.ParseUint(raw, 10, 64)
		if perr != nil {
			return 0, false, domain.Wrap(domain.KindIO, "parse ann_seed", perr)
		}
		return seed, true, nil
	case err == sql.ErrNoRows:
		return 0, false, nil
	default:
		return 0, false, domain.Wrap(domain.KindIO, "read ann_seed", err)
	}
}

// ensureAnnBits returns the store's persisted LSH bucket width, writing
// configured into meta on first use if none is recorded yet.
func (s *Store) ensureAnnBits(configured int) (int, error) {
	bits, found, err := s.lookupAnnBits()
	if err != nil {
		return 0, err
	}
	if found {
		return bits, nil
	}
	if configured == 0 {
		configured = defaultAnnBits
	}
	configured = clampAnnBits(configured)
	if _, err := s.db.Exec(`INSERT INTO meta (key, value) VALUES ('ann_bits', ?)`, strconv.Itoa(configured)); err != nil {
		return 0, domain.Wrap(domain.KindIO, "seed ann_bits", err)
	}
	return configured, nil
}

// readAnnBits returns the store's persisted LSH bucket width, falling
// back to fallback (or defaultAnnBits) when the meta table has none or
// doesn't exist yet — the case for a read-only open of a store that no
// write-open has ever seeded.
func (s *Store) readAnnBits(fallback int) int {
	bits, found, err := s.lookupAnnBits()
	if err != nil || !found {
		if fallback == 0 {
			return defaultAnnBits
		}
		return clampAnnBits(fallback)
	}
	return bits
}

func (s *Store) lookupAnnBits() (bits int, found bool, err error) {
	var raw string
	err = s.db.QueryRow(`SELECT value FROM meta WHERE key = 'ann_bits'`).Scan(&raw)
	switch {
	case err == nil:
		bits, perr := strconv.Atoi(raw)
		if perr != nil {
			return 0, false, domain.Wrap(domain.KindIO, "parse ann_bits", perr)
		}
		return clampAnnBits(bits), true, nil
	case err == sql.ErrNoRows:
		return 0, false, nil
	default:
		return 0, false, domain.Wrap(domain.KindIO, "read ann_bits", err)
	}
}

// LexicalIndex returns the driven.LexicalIndex backed by this store.
func (s *Store) LexicalIndex() driven.LexicalIndex { return s.lex }

// VectorIndex returns the driven.VectorIndex backed by this store.
func (s *Store) VectorIndex() driven.VectorIndex { return s.vec }

func (s *Store) Close() error {
	err := s.db.Close()
	if s.lock != nil {
		if lerr := s.lock.Release(); lerr != nil && err == nil {
			err = lerr
		}
	}
	return err
}

const schemaVersion = 1

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, applied_at TEXT)`); err != nil {
		return domain.Wrap(domain.KindMigrationFailed, "create schema_migrations", err)
	}

	var current int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return domain.Wrap(domain.KindMigrationFailed, "read schema version", err)
	}
	if current > schemaVersion {
		return domain.NewError(domain.KindSchemaTooNew, fmt.Sprintf("store schema version %d is newer than this build supports (%d)", current, schemaVersion))
	}

	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return domain.Wrap(domain.KindMigrationFailed, "read migrations", err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		content, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return domain.Wrap(domain.KindMigrationFailed, "read migration "+name, err)
		}
		tx, err := s.db.Begin()
		if err != nil {
			return domain.Wrap(domain.KindMigrationFailed, "begin migration tx", err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return domain.Wrap(domain.KindMigrationFailed, "apply migration "+name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, version, time.Now().UTC().Format(time.RFC3339)); err != nil {
			tx.Rollback()
			return domain.Wrap(domain.KindMigrationFailed, "record migration "+name, err)
		}
		if err := tx.Commit(); err != nil {
			return domain.Wrap(domain.KindMigrationFailed, "commit migration "+name, err)
		}
		logger.Info("applied migration %s", name)
	}
	return nil
}

// InsertDoc atomically replaces any live doc at the same path.
func (s *Store) InsertDoc(ctx context.Context, doc domain.Doc, chunks []domain.InsertChunk) (domain.Doc, []domain.Chunk, error) {
	dim, err := s.embeddingDim(ctx, chunks)
	if err != nil {
		return domain.Doc{}, nil, err
	}
	for _, c := range chunks {
		if len(c.Embedding) != dim {
			return domain.Doc{}, nil, domain.NewError(domain.KindValidation,
				fmt.Sprintf("chunk embedding has dimension %d, store is configured for %d", len(c.Embedding), dim))
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Doc{}, nil, domain.Wrap(domain.KindIO, "begin insert tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE chunk SET deleted = 1 WHERE doc_id IN (SELECT id FROM doc WHERE path = ? AND id != ? AND deleted = 0)`, doc.Path, doc.ID); err != nil {
		return domain.Doc{}, nil, domain.Wrap(domain.KindIO, "tombstone superseded chunks", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE doc SET deleted = 1 WHERE path = ? AND id != ? AND deleted = 0`, doc.Path, doc.ID); err != nil {
		return domain.Doc{}, nil, domain.Wrap(domain.KindIO, "tombstone superseded doc", err)
	}

	metaJSON, err := json.Marshal(doc.Meta)
	if err != nil {
		return domain.Doc{}, nil, domain.Wrap(domain.KindValidation, "marshal doc meta", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO doc (id, path, hash, mtime, tag, source, meta, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(id) DO UPDATE SET
			path = excluded.path, hash = excluded.hash, mtime = excluded.mtime,
			tag = excluded.tag, source = excluded.source, meta = excluded.meta, deleted = 0
	`, doc.ID, doc.Path, doc.Hash, doc.MTime, doc.Tag, doc.Source, string(metaJSON))
	if err != nil {
		return domain.Doc{}, nil, domain.Wrap(domain.KindIO, "upsert doc", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM ann_lsh WHERE chunk_id IN (SELECT id FROM chunk WHERE doc_id = ?)`, doc.ID); err != nil {
		return domain.Doc{}, nil, domain.Wrap(domain.KindIO, "clear stale vector entries", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk WHERE doc_id = ?`, doc.ID); err != nil {
		return domain.Doc{}, nil, domain.Wrap(domain.KindIO, "clear stale chunks", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunk (id, doc_id, offset, tokens, text, embedding, deleted) VALUES (?, ?, ?, ?, ?, ?, 0)`)
	if err != nil {
		return domain.Doc{}, nil, domain.Wrap(domain.KindIO, "prepare chunk insert", err)
	}
	defer stmt.Close()

	lshStmt, err := tx.PrepareContext(ctx, `INSERT INTO ann_lsh (chunk_id, band, bucket) VALUES (?, ?, ?)`)
	if err != nil {
		return domain.Doc{}, nil, domain.Wrap(domain.KindIO, "prepare lsh insert", err)
	}
	defer lshStmt.Close()

	out := make([]domain.Chunk, len(chunks))
	for i, ic := range chunks {
		chunkID := ids.ChunkID(doc.ID, ic.Offset)
		blob := embedding.ToBytes(ic.Embedding)
		if _, err := stmt.ExecContext(ctx, chunkID, doc.ID, ic.Offset, ic.Tokens, ic.Text, blob); err != nil {
			return domain.Doc{}, nil, domain.Wrap(domain.KindIO, "insert chunk", err)
		}
		for band, bucket := range s.vec.lshBuckets(ic.Embedding) {
			if _, err := lshStmt.ExecContext(ctx, chunkID, band, bucket); err != nil {
				return domain.Doc{}, nil, domain.Wrap(domain.KindIO, "insert lsh bucket", err)
			}
		}
		out[i] = domain.Chunk{ID: chunkID, DocID: doc.ID, Offset: ic.Offset, Tokens: ic.Tokens, Text: ic.Text, Embedding: ic.Embedding}
	}

	if err := tx.Commit(); err != nil {
		return domain.Doc{}, nil, domain.Wrap(domain.KindIO, "commit insert tx", err)
	}
	doc.Deleted = false
	return doc, out, nil
}

// embeddingDim returns the store's fixed embedding dimension, seeding it
// from the first chunk ever inserted if the meta table has none yet.
func (s *Store) embeddingDim(ctx context.Context, chunks []domain.InsertChunk) (int, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'embedding_dim'`).Scan(&raw)
	switch {
	case err == nil:
		var dim int
		if _, err := fmt.Sscanf(raw, "%d", &dim); err != nil {
			return 0, domain.Wrap(domain.KindIO, "parse embedding_dim", err)
		}
		return dim, nil
	case err != sql.ErrNoRows:
		return 0, domain.Wrap(domain.KindIO, "read embedding_dim", err)
	}

	if len(chunks) == 0 {
		return 0, nil
	}
	dim := len(chunks[0].Embedding)
	if _, err := s.db.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES ('embedding_dim', ?)`, fmt.Sprintf("%d", dim)); err != nil {
		return 0, domain.Wrap(domain.KindIO, "seed embedding_dim", err)
	}
	return dim, nil
}

func (s *Store) Tombstone(ctx context.Context, idOrPath string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE doc SET deleted = 1 WHERE (id = ? OR path = ?) AND deleted = 0`, idOrPath, idOrPath)
	if err != nil {
		return domain.Wrap(domain.KindIO, "tombstone doc", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrNotFound
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE chunk SET deleted = 1 WHERE doc_id IN (SELECT id FROM doc WHERE (id = ? OR path = ?))`, idOrPath, idOrPath); err != nil {
		return domain.Wrap(domain.KindIO, "tombstone chunks", err)
	}
	return nil
}

func (s *Store) Compact(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Wrap(domain.KindIO, "begin compact tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM ann_lsh WHERE chunk_id IN (SELECT id FROM chunk WHERE deleted = 1)`); err != nil {
		return domain.Wrap(domain.KindIO, "compact vector entries", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk WHERE deleted = 1`); err != nil {
		return domain.Wrap(domain.KindIO, "compact chunks", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk WHERE doc_id IN (SELECT id FROM doc WHERE deleted = 1)`); err != nil {
		return domain.Wrap(domain.KindIO, "compact orphaned chunks", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM doc WHERE deleted = 1`); err != nil {
		return domain.Wrap(domain.KindIO, "compact docs", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Wrap(domain.KindIO, "commit compact tx", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO chunk_fts(chunk_fts) VALUES ('rebuild')`)
	if err != nil {
		return domain.Wrap(domain.KindIO, "rebuild fts index", err)
	}
	return nil
}

// Doctor cross-checks chunk rows against the lexical/vector indexes.
func (s *Store) Doctor(ctx context.Context, fix bool) (domain.ConsistencyReport, error) {
	var report domain.ConsistencyReport

	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk.id FROM chunk
		LEFT JOIN chunk_fts ON chunk_fts.rowid = chunk.rowid
		WHERE chunk.deleted = 0 AND chunk_fts.rowid IS NULL`)
	if err != nil {
		return report, domain.Wrap(domain.KindIO, "doctor: scan lexical gaps", err)
	}
	report.MissingFromLexical, err = scanIDs(rows)
	if err != nil {
		return report, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT chunk.id FROM chunk
		LEFT JOIN ann_lsh ON ann_lsh.chunk_id = chunk.id
		WHERE chunk.deleted = 0
		GROUP BY chunk.id
		HAVING COUNT(ann_lsh.band) < ?`, lshBands)
	if err != nil {
		return report, domain.Wrap(domain.KindIO, "doctor: scan vector gaps", err)
	}
	report.MissingFromVector, err = scanIDs(rows)
	if err != nil {
		return report, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT DISTINCT ann_lsh.chunk_id FROM ann_lsh
		LEFT JOIN chunk ON chunk.id = ann_lsh.chunk_id
		WHERE chunk.id IS NULL OR chunk.deleted = 1`)
	if err != nil {
		return report, domain.Wrap(domain.KindIO, "doctor: scan orphan vector", err)
	}
	report.OrphanVector, err = scanIDs(rows)
	if err != nil {
		return report, err
	}

	if fix && (len(report.MissingFromLexical) > 0 || len(report.MissingFromVector) > 0 || len(report.OrphanVector) > 0) {
		if err := s.repair(ctx, report); err != nil {
			return report, err
		}
		report.Repaired = true
	}
	return report, nil
}

func (s *Store) repair(ctx context.Context, report domain.ConsistencyReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Wrap(domain.KindIO, "begin repair tx", err)
	}
	defer tx.Rollback()

	for _, id := range report.OrphanVector {
		if _, err := tx.ExecContext(ctx, `DELETE FROM ann_lsh WHERE chunk_id = ?`, id); err != nil {
			return domain.Wrap(domain.KindIO, "repair: drop orphan vector entry", err)
		}
	}
	for _, id := range report.MissingFromLexical {
		var text string
		if err := tx.QueryRowContext(ctx, `SELECT text FROM chunk WHERE id = ?`, id).Scan(&text); err != nil {
			continue
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO chunk_fts(rowid, text) SELECT rowid, ? FROM chunk WHERE id = ?`, text, id); err != nil {
			return domain.Wrap(domain.KindIO, "repair: reindex lexical entry", err)
		}
	}
	for _, id := range report.MissingFromVector {
		var blob []byte
		if err := tx.QueryRowContext(ctx, `SELECT embedding FROM chunk WHERE id = ?`, id).Scan(&blob); err != nil {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM ann_lsh WHERE chunk_id = ?`, id); err != nil {
			return domain.Wrap(domain.KindIO, "repair: clear partial vector entry", err)
		}
		for band, bucket := range s.vec.lshBuckets(embedding.FromBytes(blob)) {
			if _, err := tx.ExecContext(ctx, `INSERT INTO ann_lsh (chunk_id, band, bucket) VALUES (?, ?, ?)`, id, band, bucket); err != nil {
				return domain.Wrap(domain.KindIO, "repair: reindex vector entry", err)
			}
		}
	}
	return tx.Commit()
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.Wrap(domain.KindIO, "scan id", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) SnapshotToken(ctx context.Context) (string, error) {
	var token sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT MAX(mtime) FROM doc WHERE deleted = 0`).Scan(&token)
	if err != nil {
		return "", domain.Wrap(domain.KindIO, "read snapshot token", err)
	}
	return token.String, nil
}

func (s *Store) Stats(ctx context.Context) (domain.CorpusStats, error) {
	var stats domain.CorpusStats
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM doc WHERE deleted = 0`).Scan(&stats.DocCount)
	if err != nil {
		return stats, domain.Wrap(domain.KindIO, "count docs", err)
	}
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(LENGTH(text)), 0) FROM chunk WHERE deleted = 0`).Scan(&stats.ChunkCount, &stats.TotalBytes)
	if err != nil {
		return stats, domain.Wrap(domain.KindIO, "count chunks", err)
	}
	stats.Snapshot, err = s.SnapshotToken(ctx)
	if err != nil {
		return stats, err
	}
	return stats, nil
}

// Export streams all live docs, then all live chunks, as newline-
// delimited type-tagged JSON — the same shape original_source's
// transfer module writes, less its size field (this schema has no
// per-doc byte count; Stats.TotalBytes covers that at the corpus level).
func (s *Store) Export(ctx context.Context, w io.Writer) error {
	docRows, err := s.db.QueryContext(ctx, `SELECT id, path, hash, mtime, tag, source, meta FROM doc WHERE deleted = 0 ORDER BY path`)
	if err != nil {
		return domain.Wrap(domain.KindIO, "export: query docs", err)
	}
	defer docRows.Close()

	for docRows.Next() {
		var rec transfer.DocRecord
		var metaJSON string
		if err := docRows.Scan(&rec.ID, &rec.Path, &rec.Hash, &rec.MTime, &rec.Tag, &rec.Source, &metaJSON); err != nil {
			return domain.Wrap(domain.KindIO, "export: scan doc", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &rec.Meta); err != nil {
			return domain.Wrap(domain.KindIO, "export: unmarshal doc meta", err)
		}
		if err := transfer.EncodeDoc(w, rec); err != nil {
			return domain.Wrap(domain.KindIO, "export: write doc line", err)
		}
	}
	if err := docRows.Err(); err != nil {
		return domain.Wrap(domain.KindIO, "export: iterate docs", err)
	}

	chunkRows, err := s.db.QueryContext(ctx, `
		SELECT chunk.id, chunk.doc_id, chunk.offset, chunk.tokens, chunk.text, chunk.embedding
		FROM chunk JOIN doc ON doc.id = chunk.doc_id
		WHERE chunk.deleted = 0 AND doc.deleted = 0
		ORDER BY doc.path, chunk.offset`)
	if err != nil {
		return domain.Wrap(domain.KindIO, "export: query chunks", err)
	}
	defer chunkRows.Close()

	for chunkRows.Next() {
		var rec transfer.ChunkRecord
		var blob []byte
		if err := chunkRows.Scan(&rec.ID, &rec.DocID, &rec.Offset, &rec.Tokens, &rec.Text, &blob); err != nil {
			return domain.Wrap(domain.KindIO, "export: scan chunk", err)
		}
		rec.Embedding = transfer.EncodeEmbedding(blob)
		if err := transfer.EncodeChunk(w, rec); err != nil {
			return domain.Wrap(domain.KindIO, "export: write chunk line", err)
		}
	}
	return chunkRows.Err()
}

// Import restores a doc/chunk set previously produced by Export. Docs
// and chunks upsert independently by id (order-insensitive, matching
// the reference importer: foreign keys are checked at commit), then the vector index is rebuilt for any
// chunk row Import touched.
func (s *Store) Import(ctx context.Context, r io.Reader) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Wrap(domain.KindIO, "begin import tx", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `PRAGMA defer_foreign_keys = ON`); err != nil {
		return domain.Wrap(domain.KindIO, "import: defer foreign keys", err)
	}

	var touchedChunks []string
	err = transfer.Scan(r, func(line transfer.Line) error {
		switch {
		case line.Doc != nil:
			return s.importDoc(ctx, tx, *line.Doc)
		case line.Chunk != nil:
			id, err := s.importChunk(ctx, tx, *line.Chunk)
			if err != nil {
				return err
			}
			touchedChunks = append(touchedChunks, id)
			return nil
		default:
			return nil
		}
	})
	if err != nil {
		return domain.Wrap(domain.KindValidation, "import", err)
	}

	for _, id := range touchedChunks {
		if _, err := tx.ExecContext(ctx, `DELETE FROM ann_lsh WHERE chunk_id = ?`, id); err != nil {
			return domain.Wrap(domain.KindIO, "import: clear vector entries", err)
		}
		var blob []byte
		if err := tx.QueryRowContext(ctx, `SELECT embedding FROM chunk WHERE id = ?`, id).Scan(&blob); err != nil {
			return domain.Wrap(domain.KindIO, "import: reread embedding", err)
		}
		for band, bucket := range s.vec.lshBuckets(embedding.FromBytes(blob)) {
			if _, err := tx.ExecContext(ctx, `INSERT INTO ann_lsh (chunk_id, band, bucket) VALUES (?, ?, ?)`, id, band, bucket); err != nil {
				return domain.Wrap(domain.KindIO, "import: insert lsh bucket", err)
			}
		}
	}

	return tx.Commit()
}

func (s *Store) importDoc(ctx context.Context, tx *sql.Tx, rec transfer.DocRecord) error {
	metaJSON, err := json.Marshal(rec.Meta)
	if err != nil {
		return domain.Wrap(domain.KindValidation, "import: marshal doc meta", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO doc (id, path, hash, mtime, tag, source, meta, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(id) DO UPDATE SET
			path = excluded.path, hash = excluded.hash, mtime = excluded.mtime,
			tag = excluded.tag, source = excluded.source, meta = excluded.meta, deleted = 0
	`, rec.ID, rec.Path, rec.Hash, rec.MTime, rec.Tag, rec.Source, string(metaJSON))
	if err != nil {
		return domain.Wrap(domain.KindIO, "import: upsert doc", err)
	}
	return nil
}

func (s *Store) importChunk(ctx context.Context, tx *sql.Tx, rec transfer.ChunkRecord) (string, error) {
	blob, err := transfer.DecodeEmbedding(rec.Embedding)
	if err != nil {
		return "", domain.Wrap(domain.KindValidation, "import: decode embedding", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO chunk (id, doc_id, offset, tokens, text, embedding, deleted)
		VALUES (?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(id) DO UPDATE SET
			doc_id = excluded.doc_id, offset = excluded.offset, tokens = excluded.tokens,
			text = excluded.text, embedding = excluded.embedding, deleted = 0
	`, rec.ID, rec.DocID, rec.Offset, rec.Tokens, rec.Text, blob)
	if err != nil {
		return "", domain.Wrap(domain.KindIO, "import: upsert chunk", err)
	}
	return rec.ID, nil
}

func (s *Store) GetDoc(ctx context.Context, id string) (domain.Doc, error) {
	return s.getDocBy(ctx, "id", id)
}

func (s *Store) GetDocByPath(ctx context.Context, path string) (domain.Doc, error) {
	return s.getDocBy(ctx, "path", path)
}

func (s *Store) getDocBy(ctx context.Context, column, value string) (domain.Doc, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT id, path, hash, mtime, tag, source, meta, deleted FROM doc WHERE %s = ? AND deleted = 0`, column), value)
	var d domain.Doc
	var metaJSON string
	if err := row.Scan(&d.ID, &d.Path, &d.Hash, &d.MTime, &d.Tag, &d.Source, &metaJSON, &d.Deleted); err != nil {
		if err == sql.ErrNoRows {
			return domain.Doc{}, domain.ErrNotFound
		}
		return domain.Doc{}, domain.Wrap(domain.KindIO, "get doc", err)
	}
	if err := json.Unmarshal([]byte(metaJSON), &d.Meta); err != nil {
		return domain.Doc{}, domain.Wrap(domain.KindIO, "unmarshal doc meta", err)
	}
	return d, nil
}

func (s *Store) GetChunksByIDs(ctx context.Context, chunkIDs []string, snapshot string) (map[string]domain.Chunk, map[string]domain.Doc, error) {
	chunks := make(map[string]domain.Chunk, len(chunkIDs))
	docs := make(map[string]domain.Doc)
	if len(chunkIDs) == 0 {
		return chunks, docs, nil
	}

	var sb strings.Builder
	args := make([]any, 0, len(chunkIDs)+1)
	sb.WriteString(`
		SELECT chunk.id, chunk.doc_id, chunk.offset, chunk.tokens, chunk.text, chunk.embedding,
		       doc.id, doc.path, doc.hash, doc.mtime, doc.tag, doc.source, doc.meta
		FROM chunk JOIN doc ON doc.id = chunk.doc_id
		WHERE chunk.deleted = 0 AND doc.deleted = 0 AND chunk.id IN (`)
	for i, id := range chunkIDs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("?")
		args = append(args, id)
	}
	sb.WriteString(")")
	if snapshot != "" {
		sb.WriteString(" AND doc.mtime <= ?")
		args = append(args, snapshot)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, nil, domain.Wrap(domain.KindIO, "hydrate chunk ids", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c domain.Chunk
		var d domain.Doc
		var blob []byte
		var metaJSON string
		if err := rows.Scan(&c.ID, &c.DocID, &c.Offset, &c.Tokens, &c.Text, &blob,
			&d.ID, &d.Path, &d.Hash, &d.MTime, &d.Tag, &d.Source, &metaJSON); err != nil {
			return nil, nil, domain.Wrap(domain.KindIO, "scan hydrated row", err)
		}
		c.Embedding = embedding.FromBytes(blob)
		if err := json.Unmarshal([]byte(metaJSON), &d.Meta); err != nil {
			return nil, nil, domain.Wrap(domain.KindIO, "unmarshal doc meta", err)
		}
		chunks[c.ID] = c
		docs[d.ID] = d
	}
	return chunks, docs, rows.Err()
}

func (s *Store) ListDocs(ctx context.Context, predicate domain.Predicate, snapshot string, order domain.SortKey, limit, offset int) ([]domain.Doc, error) {
	var sb strings.Builder
	var args []any
	sb.WriteString(`SELECT id, path, hash, mtime, tag, source, meta FROM doc WHERE deleted = 0`)
	if snapshot != "" {
		sb.WriteString(" AND mtime <= ?")
		args = append(args, snapshot)
	}
	if !predicate.Empty() {
		sb.WriteString(" AND (")
		sb.WriteString(predicate.SQL)
		sb.WriteString(")")
		args = append(args, predicate.Args...)
	}
	sb.WriteString(orderClause("doc", order, "path ASC, id ASC"))
	sb.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, domain.Wrap(domain.KindIO, "list docs", err)
	}
	defer rows.Close()

	var out []domain.Doc
	for rows.Next() {
		var d domain.Doc
		var metaJSON string
		if err := rows.Scan(&d.ID, &d.Path, &d.Hash, &d.MTime, &d.Tag, &d.Source, &metaJSON); err != nil {
			return nil, domain.Wrap(domain.KindIO, "scan doc", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &d.Meta); err != nil {
			return nil, domain.Wrap(domain.KindIO, "unmarshal doc meta", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) ListChunks(ctx context.Context, predicate domain.Predicate, snapshot string, order domain.SortKey, limit, offset int) ([]domain.ScoredChunk, error) {
	var sb strings.Builder
	var args []any
	sb.WriteString(`
		SELECT chunk.id, chunk.doc_id, chunk.offset, chunk.tokens, chunk.text, chunk.embedding,
		       doc.id, doc.path, doc.hash, doc.mtime, doc.tag, doc.source, doc.meta
		FROM chunk JOIN doc ON doc.id = chunk.doc_id
		WHERE chunk.deleted = 0 AND doc.deleted = 0`)
	if snapshot != "" {
		sb.WriteString(" AND doc.mtime <= ?")
		args = append(args, snapshot)
	}
	if !predicate.Empty() {
		sb.WriteString(" AND (")
		sb.WriteString(predicate.SQL)
		sb.WriteString(")")
		args = append(args, predicate.Args...)
	}
	sb.WriteString(orderClause("doc", order, "doc.path ASC, chunk.offset ASC, chunk.id ASC"))
	sb.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, domain.Wrap(domain.KindIO, "list chunks", err)
	}
	defer rows.Close()

	var out []domain.ScoredChunk
	for rows.Next() {
		var c domain.Chunk
		var d domain.Doc
		var blob []byte
		var metaJSON string
		if err := rows.Scan(&c.ID, &c.DocID, &c.Offset, &c.Tokens, &c.Text, &blob,
			&d.ID, &d.Path, &d.Hash, &d.MTime, &d.Tag, &d.Source, &metaJSON); err != nil {
			return nil, domain.Wrap(domain.KindIO, "scan chunk", err)
		}
		c.Embedding = embedding.FromBytes(blob)
		if err := json.Unmarshal([]byte(metaJSON), &d.Meta); err != nil {
			return nil, domain.Wrap(domain.KindIO, "unmarshal doc meta", err)
		}
		out = append(out, domain.ScoredChunk{Doc: d, Chunk: c})
	}
	return out, rows.Err()
}

// orderClause builds "ORDER BY <user field> [DESC], <fallback>", falling
// back entirely to fallback when order names no field.
func orderClause(table string, order domain.SortKey, fallback string) string {
	if order.Field == "" {
		return " ORDER BY " + fallback
	}
	col := order.Field
	if strings.HasPrefix(col, "meta.") {
		col = fmt.Sprintf("json_extract(%s.meta, '$.%s')", table, strings.TrimPrefix(col, "meta."))
	} else {
		col = table + "." + col
	}
	dir := "ASC"
	if order.Desc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, %s", col, dir, fallback)
}
