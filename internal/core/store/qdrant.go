package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thinkbook-lm/thinkbook/internal/core"
)

// QdrantConfig configures the Qdrant-backed VectorStore.
type QdrantConfig struct {
	BaseURL    string
	APIKey     string
	Collection string
	VectorSize int
	Timeout    time.Duration
}

// QdrantStore talks to Qdrant's REST API. Point IDs are stable UUIDs
// derived from the record ID, so upserting the same chunk twice replaces
// the point instead of duplicating it.
type QdrantStore struct {
	cfg      QdrantConfig
	client   *http.Client
	registry *FileRegistry
	logger   *zap.Logger

	mu    sync.Mutex
	ready bool
}

var qdrantNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8") // uuid.NAMESPACE_DNS

func qdrantPointID(recordID string) string {
	return uuid.NewSHA1(qdrantNamespace, []byte(recordID)).String()
}

func NewQdrantStore(cfg QdrantConfig, registry *FileRegistry, logger *zap.Logger) *QdrantStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:6333"
	}
	if cfg.Collection == "" {
		cfg.Collection = "thinkbook"
	}
	if cfg.VectorSize == 0 {
		cfg.VectorSize = 384
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	return &QdrantStore{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		registry: registry,
		logger:   logger.With(zap.String("component", "qdrant_store")),
	}
}

func (s *QdrantStore) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(s.cfg.APIKey) != "" {
		// Qdrant convention.
		req.Header.Set("api-key", s.cfg.APIKey)
	}
}

func (s *QdrantStore) doJSON(ctx context.Context, method, path string, in any, out any) error {
	endpoint := s.cfg.BaseURL + path

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	s.applyHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant request failed: method=%s path=%s status=%d body=%s", method, path, resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ensureCollection creates the collection with cosine distance and a
// keyword payload index on "source" (speeds up delete-by-source). A 409
// means the collection already exists. Every operation calls this, so a
// fresh deployment bootstraps on first contact; a failed attempt is
// retried on the next call rather than cached for the process lifetime.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.cfg.VectorSize,
			"distance": "Cosine",
		},
	}

	endpoint := fmt.Sprintf("%s/collections/%s", s.cfg.BaseURL, url.PathEscape(s.cfg.Collection))
	reqBody, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	s.applyHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		s.ready = true
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant create collection failed: status=%d body=%s", resp.StatusCode, string(raw))
	}

	s.logger.Info("created qdrant collection",
		zap.String("collection", s.cfg.Collection),
		zap.Int("vector_size", s.cfg.VectorSize))

	indexReq := map[string]any{
		"field_name":   "source",
		"field_schema": "keyword",
	}
	path := fmt.Sprintf("/collections/%s/index?wait=true", url.PathEscape(s.cfg.Collection))
	if err := s.doJSON(ctx, http.MethodPut, path, indexReq, nil); err != nil {
		return fmt.Errorf("create payload index: %w", err)
	}

	s.ready = true
	return nil
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func (s *QdrantStore) Add(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return &core.StoreError{Op: "add", Err: err}
	}

	points := make([]qdrantPoint, 0, len(records))
	for i, rec := range records {
		if len(rec.Embedding) != s.cfg.VectorSize {
			return &core.StoreError{Op: "add", Err: fmt.Errorf(
				"record[%d] embedding dimension mismatch: got=%d want=%d", i, len(rec.Embedding), s.cfg.VectorSize)}
		}
		points = append(points, qdrantPoint{
			ID:     qdrantPointID(rec.ID),
			Vector: rec.Embedding,
			Payload: map[string]any{
				"record_id":   rec.ID,
				"source":      rec.Source,
				"chunk_index": rec.ChunkIndex,
				"document":    rec.Text,
			},
		})
	}

	req := struct {
		Points []qdrantPoint `json:"points"`
	}{Points: points}

	path := fmt.Sprintf("/collections/%s/points?wait=true", url.PathEscape(s.cfg.Collection))
	if err := s.doJSON(ctx, http.MethodPut, path, req, nil); err != nil {
		return &core.StoreError{Op: "add", Err: err}
	}

	if s.registry != nil {
		s.registry.Set(records[0].Source, len(records))
	}

	s.logger.Info("added records to qdrant",
		zap.Int("count", len(records)),
		zap.String("source", records[0].Source))
	return nil
}

func (s *QdrantStore) Query(ctx context.Context, embedding []float32, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		return []SearchResult{}, nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, &core.StoreError{Op: "query", Err: err}
	}

	req := struct {
		Vector      []float32 `json:"vector"`
		Limit       int       `json:"limit"`
		WithPayload bool      `json:"with_payload"`
		WithVector  bool      `json:"with_vector"`
	}{
		Vector:      embedding,
		Limit:       limit,
		WithPayload: true,
	}

	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}

	path := fmt.Sprintf("/collections/%s/points/search", url.PathEscape(s.cfg.Collection))
	if err := s.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, &core.StoreError{Op: "query", Err: err}
	}

	out := make([]SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		res := SearchResult{Score: r.Score}
		if v, ok := r.Payload["document"].(string); ok {
			res.Text = v
		}
		if v, ok := r.Payload["source"].(string); ok {
			res.Source = v
		}
		if v, ok := r.Payload["chunk_index"].(float64); ok {
			res.ChunkIndex = int(v)
		}
		out = append(out, res)
	}
	return out, nil
}

func sourceFilter(source string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{
				"key":   "source",
				"match": map[string]any{"value": source},
			},
		},
	}
}

func (s *QdrantStore) DeleteBySource(ctx context.Context, source string) (int, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return 0, &core.StoreError{Op: "delete", Err: err}
	}

	countReq := map[string]any{
		"exact":  true,
		"filter": sourceFilter(source),
	}
	var countResp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	countPath := fmt.Sprintf("/collections/%s/points/count", url.PathEscape(s.cfg.Collection))
	if err := s.doJSON(ctx, http.MethodPost, countPath, countReq, &countResp); err != nil {
		return 0, &core.StoreError{Op: "delete", Err: err}
	}

	if countResp.Result.Count > 0 {
		delReq := map[string]any{"filter": sourceFilter(source)}
		delPath := fmt.Sprintf("/collections/%s/points/delete?wait=true", url.PathEscape(s.cfg.Collection))
		if err := s.doJSON(ctx, http.MethodPost, delPath, delReq, nil); err != nil {
			return 0, &core.StoreError{Op: "delete", Err: err}
		}
		s.logger.Info("deleted records from qdrant",
			zap.Int("count", countResp.Result.Count),
			zap.String("source", source))
	}

	// The registry entry goes regardless of whether any points matched.
	if s.registry != nil {
		s.registry.Remove(source)
	}
	return countResp.Result.Count, nil
}

func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return 0, &core.StoreError{Op: "count", Err: err}
	}

	req := map[string]any{"exact": true}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/count", url.PathEscape(s.cfg.Collection))
	if err := s.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return 0, &core.StoreError{Op: "count", Err: err}
	}
	return resp.Result.Count, nil
}

// ListSources pages through every point's source payload with the scroll
// API, then overwrites the registry with the aggregated counts.
func (s *QdrantStore) ListSources(ctx context.Context) (map[string]int, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return nil, &core.StoreError{Op: "list", Err: err}
	}

	counts := make(map[string]int)
	path := fmt.Sprintf("/collections/%s/points/scroll", url.PathEscape(s.cfg.Collection))

	var offset any
	for {
		req := map[string]any{
			"limit":        1000,
			"with_payload": []string{"source"},
			"with_vector":  false,
		}
		if offset != nil {
			req["offset"] = offset
		}

		var resp struct {
			Result struct {
				Points []struct {
					Payload map[string]any `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := s.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
			return nil, &core.StoreError{Op: "list", Err: err}
		}

		for _, p := range resp.Result.Points {
			if src, ok := p.Payload["source"].(string); ok && src != "" {
				counts[src]++
			}
		}

		if resp.Result.NextPageOffset == nil {
			break
		}
		offset = resp.Result.NextPageOffset
	}

	if s.registry != nil {
		s.registry.Replace(counts)
	}
	return counts, nil
}

func (s *QdrantStore) Close() error { return nil }

var _ VectorStore = (*QdrantStore)(nil)
