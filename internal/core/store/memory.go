package store

import (
	"context"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// MemoryStore keeps records in process memory. Used for development and
// tests; implements the same contract as the remote backends, including
// registry maintenance.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]Record
	registry *FileRegistry
	logger   *zap.Logger
}

func NewMemoryStore(registry *FileRegistry, logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		records:  make(map[string]Record),
		registry: registry,
		logger:   logger.With(zap.String("component", "memory_store")),
	}
}

func (s *MemoryStore) Add(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	for _, rec := range records {
		s.records[rec.ID] = rec
	}
	total := len(s.records)
	s.mu.Unlock()

	if s.registry != nil {
		s.registry.Set(records[0].Source, len(records))
	}

	s.logger.Debug("records added",
		zap.Int("count", len(records)),
		zap.Int("total", total))
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, embedding []float32, limit int) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || len(s.records) == 0 {
		return []SearchResult{}, nil
	}

	type scored struct {
		id     string
		result SearchResult
	}
	results := make([]scored, 0, len(s.records))
	for id, rec := range s.records {
		results = append(results, scored{
			id: id,
			result: SearchResult{
				Text:       rec.Text,
				Source:     rec.Source,
				ChunkIndex: rec.ChunkIndex,
				Score:      cosineSimilarity(embedding, rec.Embedding),
			},
		})
	}

	// Descending score; ties broken by ascending record id so results
	// are stable across runs.
	sort.Slice(results, func(i, j int) bool {
		if results[i].result.Score != results[j].result.Score {
			return results[i].result.Score > results[j].result.Score
		}
		return results[i].id < results[j].id
	})

	if limit > len(results) {
		limit = len(results)
	}
	out := make([]SearchResult, limit)
	for i := 0; i < limit; i++ {
		out[i] = results[i].result
	}
	return out, nil
}

func (s *MemoryStore) DeleteBySource(ctx context.Context, source string) (int, error) {
	s.mu.Lock()
	removed := 0
	for id, rec := range s.records {
		if rec.Source == source {
			delete(s.records, id)
			removed++
		}
	}
	s.mu.Unlock()

	// Registry entry goes away even when nothing matched.
	if s.registry != nil {
		s.registry.Remove(source)
	}

	return removed, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *MemoryStore) ListSources(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	counts := make(map[string]int)
	for _, rec := range s.records {
		counts[rec.Source]++
	}
	s.mu.RUnlock()

	if s.registry != nil {
		s.registry.Replace(counts)
	}
	return counts, nil
}

func (s *MemoryStore) Close() error { return nil }

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ VectorStore = (*MemoryStore)(nil)
