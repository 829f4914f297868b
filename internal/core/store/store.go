package store

import "context"

// Record is the unit persisted in a vector store. ID is derived from
// (source, chunk index) upstream, so re-adding the same logical chunk
// replaces it instead of duplicating it.
type Record struct {
	ID         string
	Text       string
	Embedding  []float32
	Source     string
	ChunkIndex int
}

// SearchResult is one retrieved record, highest-similarity first in the
// slice returned by Query.
type SearchResult struct {
	Text       string
	Source     string
	ChunkIndex int
	Score      float64
}

// VectorStore is the backend contract. All implementations keep the
// file registry in sync: Add records the batch's source, DeleteBySource
// drops the entry, ListSources overwrites the whole mapping from a full
// scan (the sole reconciliation point).
type VectorStore interface {
	// Add upserts every record, keyed by Record.ID. A batch always carries
	// one file, so all records share a source.
	Add(ctx context.Context, records []Record) error

	// Query returns up to limit nearest records by cosine similarity,
	// best first.
	Query(ctx context.Context, embedding []float32, limit int) ([]SearchResult, error)

	// DeleteBySource removes every record for the source and returns how
	// many were removed. Deleting an unknown source returns 0 without error.
	DeleteBySource(ctx context.Context, source string) (int, error)

	// Count returns the total number of records.
	Count(ctx context.Context) (int, error)

	// ListSources scans all records and returns source -> record count.
	ListSources(ctx context.Context) (map[string]int, error)

	Close() error
}
