package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestQdrantStoreAddQueryCount(t *testing.T) {
	t.Parallel()

	var upsertCalls, searchCalls atomic.Int64

	mux := http.NewServeMux()

	mux.HandleFunc("/collections/thinkbook", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		var req struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 3, req.Vectors.Size)
		assert.Equal(t, "Cosine", req.Vectors.Distance)
		_, _ = w.Write([]byte(`{"status":"ok","result":true}`))
	})

	mux.HandleFunc("/collections/thinkbook/index", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		_, _ = w.Write([]byte(`{"status":"ok","result":{}}`))
	})

	mux.HandleFunc("/collections/thinkbook/points", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		assert.Contains(t, r.URL.RawQuery, "wait=true")
		upsertCalls.Add(1)

		var req struct {
			Points []qdrantPoint `json:"points"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Points, 2)
		for _, p := range req.Points {
			assert.NotEmpty(t, p.ID)
			assert.Len(t, p.Vector, 3)
			assert.Equal(t, "notes.txt", p.Payload["source"])
			assert.NotEmpty(t, p.Payload["record_id"])
		}
		_, _ = w.Write([]byte(`{"status":"ok","result":{"operation_id":1}}`))
	})

	mux.HandleFunc("/collections/thinkbook/points/search", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		searchCalls.Add(1)
		_, _ = w.Write([]byte(`{
			"status":"ok",
			"result":[
				{"id":"00000000-0000-0000-0000-000000000001","score":0.92,"payload":{"record_id":"notes::chunk_0","source":"notes.txt","chunk_index":0,"document":"hello"}},
				{"id":"00000000-0000-0000-0000-000000000002","score":0.41,"payload":{"record_id":"notes::chunk_1","source":"notes.txt","chunk_index":1,"document":"world"}}
			]
		}`))
	})

	mux.HandleFunc("/collections/thinkbook/points/count", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		_, _ = w.Write([]byte(`{"status":"ok","result":{"count":2}}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	reg := NewFileRegistry(t.TempDir(), zap.NewNop())
	s := NewQdrantStore(QdrantConfig{
		BaseURL:    srv.URL,
		Collection: "thinkbook",
		VectorSize: 3,
	}, reg, zap.NewNop())

	ctx := context.Background()

	records := []Record{
		{ID: "notes::chunk_0", Text: "hello", Embedding: []float32{1, 0, 0}, Source: "notes.txt", ChunkIndex: 0},
		{ID: "notes::chunk_1", Text: "world", Embedding: []float32{0, 1, 0}, Source: "notes.txt", ChunkIndex: 1},
	}
	require.NoError(t, s.Add(ctx, records))
	assert.Equal(t, int64(1), upsertCalls.Load())
	assert.Equal(t, map[string]int{"notes.txt": 2}, reg.Snapshot())

	results, err := s.Query(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "hello", results[0].Text)
	assert.Equal(t, 0, results[0].ChunkIndex)
	assert.Equal(t, 0.92, results[0].Score)
	assert.Equal(t, int64(1), searchCalls.Load())

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestQdrantStoreAddRejectsDimensionMismatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","result":{}}`))
	}))
	t.Cleanup(srv.Close)

	s := NewQdrantStore(QdrantConfig{BaseURL: srv.URL, VectorSize: 4}, nil, zap.NewNop())
	err := s.Add(context.Background(), []Record{
		{ID: "x::chunk_0", Embedding: []float32{1, 2}, Source: "x"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension mismatch")
}

func TestQdrantStoreDeleteBySource(t *testing.T) {
	t.Parallel()

	var deleteCalls atomic.Int64
	count := 3

	mux := http.NewServeMux()
	mux.HandleFunc("/collections/thinkbook", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","result":true}`))
	})
	mux.HandleFunc("/collections/thinkbook/index", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","result":{}}`))
	})
	mux.HandleFunc("/collections/thinkbook/points/count", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Filter map[string]any `json:"filter"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		n := 0
		if req.Filter != nil {
			n = count
		}
		_, _ = w.Write([]byte(fmt.Sprintf(`{"status":"ok","result":{"count":%d}}`, n)))
	})
	mux.HandleFunc("/collections/thinkbook/points/delete", func(w http.ResponseWriter, r *http.Request) {
		deleteCalls.Add(1)
		_, _ = w.Write([]byte(`{"status":"ok","result":{"operation_id":2}}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	reg := NewFileRegistry(t.TempDir(), zap.NewNop())
	reg.Set("doomed.pdf", 3)

	s := NewQdrantStore(QdrantConfig{BaseURL: srv.URL, Collection: "thinkbook"}, reg, zap.NewNop())

	removed, err := s.DeleteBySource(context.Background(), "doomed.pdf")
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.Equal(t, int64(1), deleteCalls.Load())
	assert.NotContains(t, reg.Snapshot(), "doomed.pdf")

	// Absent source: zero count, no delete call, no error.
	count = 0
	removed, err = s.DeleteBySource(context.Background(), "absent.pdf")
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Equal(t, int64(1), deleteCalls.Load())
}

func TestQdrantStoreListSourcesPaginates(t *testing.T) {
	t.Parallel()

	page := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/collections/thinkbook", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","result":true}`))
	})
	mux.HandleFunc("/collections/thinkbook/index", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","result":{}}`))
	})
	mux.HandleFunc("/collections/thinkbook/points/scroll", func(w http.ResponseWriter, r *http.Request) {
		page++
		if page == 1 {
			_, _ = w.Write([]byte(`{"status":"ok","result":{
				"points":[{"payload":{"source":"a.txt"}},{"payload":{"source":"a.txt"}},{"payload":{"source":"b.txt"}}],
				"next_page_offset":"cursor-1"
			}}`))
			return
		}
		// Second page must carry the cursor back.
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "cursor-1", req["offset"])
		_, _ = w.Write([]byte(`{"status":"ok","result":{
			"points":[{"payload":{"source":"b.txt"}}],
			"next_page_offset":null
		}}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	reg := NewFileRegistry(t.TempDir(), zap.NewNop())
	reg.Set("stale.txt", 5)

	s := NewQdrantStore(QdrantConfig{BaseURL: srv.URL, Collection: "thinkbook"}, reg, zap.NewNop())

	counts, err := s.ListSources(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a.txt": 2, "b.txt": 2}, counts)
	assert.Equal(t, 2, page)

	// Scan result overwrites the registry wholesale.
	assert.Equal(t, map[string]int{"a.txt": 2, "b.txt": 2}, reg.Snapshot())
}

func TestQdrantStoreBootstrapsOnFirstRead(t *testing.T) {
	t.Parallel()

	var created atomic.Bool
	var createCalls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/collections/thinkbook", func(w http.ResponseWriter, r *http.Request) {
		createCalls.Add(1)
		created.Store(true)
		_, _ = w.Write([]byte(`{"status":"ok","result":true}`))
	})
	mux.HandleFunc("/collections/thinkbook/index", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","result":{}}`))
	})
	mux.HandleFunc("/collections/thinkbook/points/count", func(w http.ResponseWriter, r *http.Request) {
		if !created.Load() {
			http.Error(w, `{"status":{"error":"Collection thinkbook doesn't exist!"}}`, http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok","result":{"count":0}}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	// Count is the first contact on a fresh deployment (the health check
	// and the empty-store query path both hit it before any Add).
	s := NewQdrantStore(QdrantConfig{BaseURL: srv.URL, Collection: "thinkbook"}, nil, zap.NewNop())

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int64(1), createCalls.Load())

	// Once bootstrapped, further calls skip the create round trip.
	_, err = s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), createCalls.Load())
}

func TestQdrantStoreBootstrapRetriesAfterFailure(t *testing.T) {
	t.Parallel()

	var createCalls atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/collections/thinkbook", func(w http.ResponseWriter, r *http.Request) {
		if createCalls.Add(1) == 1 {
			http.Error(w, `{"status":{"error":"temporarily unavailable"}}`, http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok","result":true}`))
	})
	mux.HandleFunc("/collections/thinkbook/index", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","result":{}}`))
	})
	mux.HandleFunc("/collections/thinkbook/points/count", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","result":{"count":0}}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	s := NewQdrantStore(QdrantConfig{BaseURL: srv.URL, Collection: "thinkbook"}, nil, zap.NewNop())

	_, err := s.Count(context.Background())
	require.Error(t, err)

	// A failed bootstrap must not be sticky.
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int64(2), createCalls.Load())
}

func TestQdrantStoreSurfacesBackendErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":{"error":"service unavailable"}}`, http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	s := NewQdrantStore(QdrantConfig{BaseURL: srv.URL, Collection: "thinkbook"}, nil, zap.NewNop())

	_, err := s.Count(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector store count")
}
