package domain

// Table names the two queryable row shapes RQL's FROM clause selects.
type Table string

const (
	TableDoc   Table = "doc"
	TableChunk Table = "chunk"
)

// SortKey names the tie-break ordering Store.ListDocs/ListChunks applies
// after any caller-supplied leading ORDER BY key.
type SortKey struct {
	Field string // "" means use the table's default order
	Desc  bool
}

// QueryRequest is the input to a core query: an already-parsed RQL
// statement plus the out-of-band options that are not part of the RQL
// text itself.
type QueryRequest struct {
	RQL      string // raw RQL source; parsed by the rql package before planning
	Snapshot string // empty means "use the store's current snapshot"
	Explain  bool

	// ContextBudget requests a packed context window alongside Results;
	// zero means no packing is performed.
	ContextBudget    int
	ContextDiversity int
}

// Warning is a stable-shaped degraded-mode notice, so callers can branch
// on Code without parsing Message.
type Warning struct {
	Code    string
	Message string
	Stage   string
	Detail  string
}

// StageTiming records how long one planner/executor stage took.
type StageTiming struct {
	Stage  string
	Millis float64
}

// Explain carries the diagnostic detail requested via QueryRequest.Explain.
type Explain struct {
	Mode              string // "hybrid" | "semantic" | "lexical" | "filter"
	LexicalWeight     float64
	SemanticWeight    float64
	LexicalCandCount  int
	SemanticCandCount int
	Sanitized         *SanitizedQuery
	Timings           []StageTiming
}

// SanitizedQuery records a lexical-stage fallback from native syntax
// parsing to a sanitized retry.
type SanitizedQuery struct {
	Original  string
	Sanitized string
}

// QueryResult is the core's output, independent of its JSON wire shape
// (internal/response builds the envelope from this).
type QueryResult struct {
	Table           Table
	Results         []ScoredChunk
	Context         *PackedContext
	Stats           CorpusStats
	Warnings        []Warning
	Explain         *Explain
	EffectiveLimit  int
	EffectiveOffset int
	Fields          []ProjectionItem // the parsed SELECT list; nil means "*"
}

// ProjectionKind distinguishes the three shapes a SELECT list entry can
// take. It mirrors rql.SelectKind without importing the rql package,
// since domain may only depend on the standard library.
type ProjectionKind int

const (
	ProjectAll ProjectionKind = iota
	ProjectScore
	ProjectField
)

// ProjectionField is a (optionally table-qualified) field reference
// carried from RQL's SELECT list, e.g. doc.path or chunk.offset. Table
// is "" for an unqualified name; Name is "meta.<key>" for doc metadata.
type ProjectionField struct {
	Table Table
	Name  string
}

// ProjectionItem is one entry of a parsed SELECT list.
type ProjectionItem struct {
	Kind  ProjectionKind
	Field ProjectionField // valid only when Kind == ProjectField
}

// PackedContext is the Context Packer's output.
type PackedContext struct {
	Text         string
	BudgetTokens int
	UsedTokens   int
	Chunks       []PackedChunk
}
