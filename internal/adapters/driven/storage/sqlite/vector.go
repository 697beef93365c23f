package sqlite

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/embedding"
)

// lshBands is fixed: it shapes the ann_lsh table (one row per chunk per
// band) rather than a per-store tunable. vectorIndex.rows, the number of
// sign bits per band's bucket, is config's ann_bits, persisted into meta on
// a store's first write-open like ann_seed (see Store.ensureAnnBits) so
// a store's bucket width never drifts across runs.
const lshBands = 4

// defaultAnnBits matches config.Default's ann_bits.
const defaultAnnBits = 16

// defaultAnnSeed matches config.Default's ann_seed; used only when a
// store's meta table has never recorded one (see Store.ensureAnnSeed).
const defaultAnnSeed = 42

// minAnnBits and maxAnnBits bound a configured ann_bits the same way
// the original signature scheme clamps its bit count: at least one
// hyperplane, and narrow enough that a bucket string stays cheap.
const (
	minAnnBits = 1
	maxAnnBits = 63
)

func clampAnnBits(bits int) int {
	if bits < minAnnBits {
		return minAnnBits
	}
	if bits > maxAnnBits {
		return maxAnnBits
	}
	return bits
}

// splitmix64 is a fixed, dependency-free deterministic PRNG: the same
// (seed, band, row, dim) always yields the same hyperplane sign, on any
// machine, forever, with no stored hyperplane matrix.
func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	return x ^ (x >> 31)
}

func hyperplaneSign(seed uint64, band, row, dim int) float32 {
	key := seed
	key ^= uint64(band)*0x9E3779B185EBCA87 + uint64(row)*0xC2B2AE3D27D4EB4F + uint64(dim)*0x165667B19E3779F9
	if splitmix64(key)&1 == 0 {
		return 1
	}
	return -1
}

func lshBucketSeeded(seed uint64, vec []float32, band, rows int) string {
	var sb strings.Builder
	sb.Grow(rows)
	for row := 0; row < rows; row++ {
		var dot float32
		for d, v := range vec {
			dot += v * hyperplaneSign(seed, band, row, d)
		}
		if dot >= 0 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

func lshBucketsSeeded(seed uint64, vec []float32, rows int) [lshBands]string {
	var out [lshBands]string
	for b := 0; b < lshBands; b++ {
		out[b] = lshBucketSeeded(seed, vec, b, rows)
	}
	return out
}

// vectorIndex implements driven.VectorIndex against the chunk/ann_lsh
// tables of the same database Store writes to. seed and rows are the
// store's fixed LSH parameters, read from (or written to, on first
// write-open) the meta table by Store.Open, per the determinism
// invariant in §4.4: the same store always produces the same
// signatures, regardless of what ann_seed/ann_bits the caller's config
// happens to carry on a later run.
type vectorIndex struct {
	db   *sql.DB
	seed uint64
	rows int
}

func (v *vectorIndex) lshBuckets(vec []float32) [lshBands]string {
	rows := v.rows
	if rows <= 0 {
		rows = defaultAnnBits
	}
	return lshBucketsSeeded(v.seed, vec, rows)
}

var _ driven.VectorIndex = (*vectorIndex)(nil)

// shortlistFactor over-fetches the LSH shortlist so exact rescoring still
// has enough candidates to find the true top-k after filtering.
const shortlistFactor = 8

// flatScanFallbackMultiple triggers an exact full scan whenever the LSH
// shortlist comes back too small to trust, which happens naturally on
// small corpora where bucket collisions are sparse.
const flatScanFallbackMultiple = 3

func (v *vectorIndex) Search(ctx context.Context, query []float32, k int, predicate domain.Predicate, snapshot string) ([]driven.VectorHit, error) {
	if k <= 0 {
		return nil, nil
	}

	candidates, err := v.lshShortlist(ctx, query, k*shortlistFactor)
	if err != nil {
		return nil, err
	}

	if len(candidates) < k*flatScanFallbackMultiple {
		return v.flatScan(ctx, query, k, predicate, snapshot)
	}
	return v.rescore(ctx, query, k, candidates, predicate, snapshot)
}

func (v *vectorIndex) lshShortlist(ctx context.Context, query []float32, limit int) (map[string]bool, error) {
	buckets := v.lshBuckets(query)
	out := make(map[string]bool)
	for band, bucket := range buckets {
		rows, err := v.db.QueryContext(ctx, `SELECT chunk_id FROM ann_lsh WHERE band = ? AND bucket = ?`, band, bucket)
		if err != nil {
			return nil, domain.Wrap(domain.KindIO, "lsh shortlist query", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, domain.Wrap(domain.KindIO, "lsh shortlist scan", err)
			}
			out[id] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, domain.Wrap(domain.KindIO, "lsh shortlist iterate", err)
		}
		rows.Close()
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// rescore fetches the exact embedding for each shortlisted chunk (still
// applying predicate/snapshot visibility), computes true cosine
// similarity, and returns the top-k.
func (v *vectorIndex) rescore(ctx context.Context, query []float32, k int, candidates map[string]bool, predicate domain.Predicate, snapshot string) ([]driven.VectorHit, error) {
	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	rows, err := v.scanEligible(ctx, ids, predicate, snapshot)
	if err != nil {
		return nil, err
	}
	return topK(query, rows, k), nil
}

func (v *vectorIndex) flatScan(ctx context.Context, query []float32, k int, predicate domain.Predicate, snapshot string) ([]driven.VectorHit, error) {
	rows, err := v.scanEligible(ctx, nil, predicate, snapshot)
	if err != nil {
		return nil, err
	}
	return topK(query, rows, k), nil
}

type candidateEmbedding struct {
	id  string
	vec []float32
}

// scanEligible returns (id, embedding) pairs for live chunks joined with
// their docs, restricted to ids (when non-nil) and predicate/snapshot.
func (v *vectorIndex) scanEligible(ctx context.Context, ids []string, predicate domain.Predicate, snapshot string) ([]candidateEmbedding, error) {
	var sb strings.Builder
	var args []any
	sb.WriteString(`SELECT chunk.id, chunk.embedding FROM chunk JOIN doc ON doc.id = chunk.doc_id WHERE chunk.deleted = 0 AND doc.deleted = 0`)
	if snapshot != "" {
		sb.WriteString(` AND doc.mtime <= ?`)
		args = append(args, snapshot)
	}
	if !predicate.Empty() {
		sb.WriteString(" AND (")
		sb.WriteString(predicate.SQL)
		sb.WriteString(")")
		args = append(args, predicate.Args...)
	}
	if ids != nil {
		if len(ids) == 0 {
			return nil, nil
		}
		sb.WriteString(" AND chunk.id IN (")
		for i, id := range ids {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("?")
			args = append(args, id)
		}
		sb.WriteString(")")
	}

	rows, err := v.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, domain.Wrap(domain.KindIO, "vector candidate scan", err)
	}
	defer rows.Close()

	var out []candidateEmbedding
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, domain.Wrap(domain.KindIO, "vector candidate row", err)
		}
		out = append(out, candidateEmbedding{id: id, vec: embedding.FromBytes(blob)})
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Wrap(domain.KindIO, "vector candidate iterate", err)
	}
	return out, nil
}

func topK(query []float32, candidates []candidateEmbedding, k int) []driven.VectorHit {
	hits := make([]driven.VectorHit, 0, len(candidates))
	for _, c := range candidates {
		hits = append(hits, driven.VectorHit{ChunkID: c.id, Score: float64(embedding.CosineSimilarity(query, c.vec))})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
