// Package driven defines the interfaces that core calls OUT to
// infrastructure: persistent storage, the lexical index, and the vector
// index. These are the "driven" or "secondary" ports in hexagonal
// architecture; core services depend on these interfaces, and the SQLite
// adapter implements them.
//
// # Required Interfaces
//
//   - Store: document/chunk persistence, migrations, locking
//   - LexicalIndex: BM25-style full-text search, backed by SQLite FTS5
//   - VectorIndex: cosine-KNN over chunk embeddings
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
