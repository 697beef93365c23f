package domain

// Doc is the canonical representation of an indexed document. Identity and
// content hash are assigned by the ID layer (internal/ids); nothing in
// this package computes them.
type Doc struct {
	// ID is the stable identifier derived from (normalized path, hash).
	ID string

	// Path is the normalized, forward-slash document path. Unique among
	// non-deleted docs.
	Path string

	// Hash is the content digest used to detect changes to Path.
	Hash string

	// MTime is an RFC3339 string, chosen for lexicographic comparability.
	MTime string

	// Tag and Source are free-form, caller-supplied labels.
	Tag    string
	Source string

	// Meta holds arbitrary scalar metadata keyed by normalized field name.
	Meta map[string]any

	// Deleted marks a tombstoned document. Tombstones remain until Compact.
	Deleted bool
}

// Chunk is a searchable, embedded span of a Doc's text.
type Chunk struct {
	// ID is derived from (DocID, Offset).
	ID string

	// DocID links to the parent Doc.
	DocID string

	// Offset is monotonically increasing within a document.
	Offset int

	// Tokens is the whitespace token count of Text, unless supplied by an
	// external producer.
	Tokens int

	// Text is the chunk's content.
	Text string

	// Embedding is a unit-length vector; its length must equal the store's
	// configured embedding dimension.
	Embedding []float32

	// Deleted marks a tombstoned chunk.
	Deleted bool
}

// Visible reports whether a chunk should be returned from a query, given
// its own tombstone state and that of its parent doc.
func (c Chunk) Visible(doc Doc) bool {
	return !doc.Deleted && !c.Deleted
}

// ScoredChunk pairs a Chunk (and its Doc) with fusion scoring detail for a
// single query result.
type ScoredChunk struct {
	Doc   Doc
	Chunk Chunk

	// Score is the final fused score used for ordering. Zero when the
	// query carried no USING clause (strict-filter mode).
	Score float64

	// LexicalScore and SemanticScore are the raw per-source scores prior
	// to normalization; zero when that source did not produce this chunk
	// as a candidate.
	LexicalScore  float64
	SemanticScore float64

	// NormLexical and NormSemantic are the min-max normalized per-source
	// scores in [0, 1] actually used in fusion.
	NormLexical  float64
	NormSemantic float64
}

// PackedChunk is a chunk admitted into a Context Packer result, carrying
// full provenance and, for truncated chunks, a shortened Text.
type PackedChunk struct {
	Path   string
	Hash   string
	MTime  string
	Offset int
	Tokens int
	Text   string
}

// InsertChunk is the shape an external producer supplies per chunk when
// inserting a document; Embedding must already be normalized to unit
// length and sized to the store's configured dimension.
type InsertChunk struct {
	Offset    int
	Tokens    int
	Text      string
	Embedding []float32
}

// CorpusStats summarizes the live corpus for the stats response field.
type CorpusStats struct {
	DocCount   int
	ChunkCount int
	TotalBytes int64
	Snapshot   string
}

// ConsistencyReport is the result of Store.Doctor: every discrepancy found
// between chunk rows and the lexical/vector indexes that describe them.
type ConsistencyReport struct {
	MissingFromLexical []string // chunk IDs present in chunk but absent from the lexical index
	MissingFromVector  []string // chunk IDs present in chunk but absent from the vector index
	OrphanLexical      []string // lexical index entries with no matching chunk row
	OrphanVector       []string // vector index entries with no matching chunk row
	Repaired           bool
}

// Clean reports whether the report found no discrepancies.
func (r ConsistencyReport) Clean() bool {
	return len(r.MissingFromLexical) == 0 && len(r.MissingFromVector) == 0 &&
		len(r.OrphanLexical) == 0 && len(r.OrphanVector) == 0
}
