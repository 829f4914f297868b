package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/thinkbook-lm/thinkbook/internal/core"
	"github.com/thinkbook-lm/thinkbook/internal/core/chunker"
	"github.com/thinkbook-lm/thinkbook/internal/core/store"
	"github.com/thinkbook-lm/thinkbook/internal/models"
)

const (
	// noDocumentsAnswer is returned verbatim when the store is empty.
	noDocumentsAnswer = "I don't have any documents uploaded yet. Please upload some files first."

	// previewLen caps how much of each retrieved chunk goes into the
	// grounded prompt. Responses carry the full chunk text.
	previewLen = 500

	// embedBatchSize bounds how many chunks go into one embedding
	// request; larger documents are embedded in parallel batches.
	embedBatchSize = 64
)

// RagService orchestrates the pipeline: chunk, embed, index on ingest;
// retrieve, prompt, generate on query.
type RagService struct {
	chunker  *chunker.Chunker
	embedder core.EmbeddingProvider
	llm      core.LLMProvider
	store    store.VectorStore
	maxK     int
	logger   *zap.Logger
}

func NewRagService(ch *chunker.Chunker, emb core.EmbeddingProvider, llm core.LLMProvider, vs store.VectorStore, maxK int, logger *zap.Logger) *RagService {
	if maxK <= 0 {
		maxK = 4
	}
	return &RagService{chunker: ch, embedder: emb, llm: llm, store: vs, maxK: maxK, logger: logger}
}

// IngestDocument chunks, embeds and indexes text under the given
// filename. Chunk record ids are "{stem}::chunk_{i}" so re-uploading a
// file overwrites its previous chunks.
func (s *RagService) IngestDocument(ctx context.Context, filename, text string) (int, error) {
	chunks := s.chunker.Chunk(text)
	if len(chunks) == 0 {
		return 0, core.ErrEmptyContent
	}

	embeddings, err := s.embedAll(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embed document: %w", err)
	}

	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	records := make([]store.Record, len(chunks))
	for i, c := range chunks {
		records[i] = store.Record{
			ID:         fmt.Sprintf("%s::chunk_%d", stem, i),
			Text:       c,
			Embedding:  embeddings[i],
			Source:     filename,
			ChunkIndex: i,
		}
	}

	if err := s.store.Add(ctx, records); err != nil {
		return 0, err
	}

	s.logger.Info("document indexed",
		zap.String("file", filename),
		zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// embedAll embeds chunks in batches, concurrently for large documents.
func (s *RagService) embedAll(ctx context.Context, chunks []string) ([][]float32, error) {
	if len(chunks) <= embedBatchSize {
		return s.embedder.EmbedTexts(ctx, chunks)
	}

	out := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for start := 0; start < len(chunks); start += embedBatchSize {
		start := start
		end := min(start+embedBatchSize, len(chunks))
		g.Go(func() error {
			vecs, err := s.embedder.EmbedTexts(gctx, chunks[start:end])
			if err != nil {
				return err
			}
			copy(out[start:], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteDocument removes every chunk indexed under the filename and
// returns how many were deleted.
func (s *RagService) DeleteDocument(ctx context.Context, filename string) (int, error) {
	return s.store.DeleteBySource(ctx, filename)
}

// ListDocuments returns the indexed files with their chunk counts,
// sorted is left to the caller.
func (s *RagService) ListDocuments(ctx context.Context) ([]models.FileInfo, error) {
	counts, err := s.store.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	files := make([]models.FileInfo, 0, len(counts))
	for name, n := range counts {
		files = append(files, models.FileInfo{Name: name, Chunks: n})
	}
	return files, nil
}

// ChunkCount reports the total number of indexed chunks.
func (s *RagService) ChunkCount(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

// retrieve embeds the question and pulls the top-k chunks, with k
// clamped to both the configured maximum and the store size.
func (s *RagService) retrieve(ctx context.Context, question string, k int) ([]store.SearchResult, int, error) {
	total, err := s.store.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return nil, 0, nil
	}

	if k <= 0 || k > s.maxK {
		k = s.maxK
	}
	k = min(k, total)

	qvecs, err := s.embedder.EmbedTexts(ctx, []string{question})
	if err != nil {
		return nil, 0, fmt.Errorf("embed query: %w", err)
	}
	if len(qvecs) != 1 {
		return nil, 0, fmt.Errorf("embed query: got %d vectors", len(qvecs))
	}

	hits, err := s.store.Query(ctx, qvecs[0], k)
	if err != nil {
		return nil, 0, err
	}
	return hits, total, nil
}

func preview(text string) string {
	r := []rune(text)
	if len(r) > previewLen {
		return string(r[:previewLen])
	}
	return text
}

// buildPrompt assembles the grounded prompt from the retrieved chunks.
func buildPrompt(question string, hits []store.SearchResult) string {
	blocks := make([]string, 0, len(hits))
	for _, h := range hits {
		blocks = append(blocks, fmt.Sprintf("[%s::chunk%d] %s", h.Source, h.ChunkIndex, preview(h.Text)))
	}
	contextBlock := strings.Join(blocks, "\n---\n")

	return "You are an expert, intelligent research assistant. " +
		"Your goal is to provide comprehensive, accurate, and satisfying answers based *only* on the provided documents. " +
		"If the answer is not in the documents, say 'I couldn't find that information in the documents'.\n\n" +
		"Guidelines for a great response:\n" +
		"1. **Be Comprehensive**: Cover all relevant details found in the sources. Do not be overly brief unless asked.\n" +
		"2. **Structure**: Use Markdown headers (##), bullet points, and bold text to make the answer easy to read.\n" +
		"3. **Tone**: Maintain a professional, helpful, and engaging tone.\n" +
		"4. **No Hallucinations**: Do not invent facts. Include explicit citations like [filename::chunkIndex].\n\n" +
		"=== Document Sources ===\n" + contextBlock + "\n\n" +
		"=== User Query ===\n" + question + "\n\n" +
		"Answer the query below in a well-structured format:"
}

func retrievalView(hits []store.SearchResult) ([]string, []models.RetrievedChunk) {
	sources := make([]string, 0, len(hits))
	raw := make([]models.RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		sources = append(sources, fmt.Sprintf("%s::chunk%d", h.Source, h.ChunkIndex))
		raw = append(raw, models.RetrievedChunk{
			Source:     h.Source,
			ChunkIndex: h.ChunkIndex,
			Score:      h.Score,
			Text:       h.Text,
		})
	}
	return sources, raw
}

// Query answers a question over the indexed documents in one shot.
func (s *RagService) Query(ctx context.Context, question string, k int) (*models.QueryResponse, error) {
	start := time.Now()

	hits, total, err := s.retrieve(ctx, question, k)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return &models.QueryResponse{
			Answer:       noDocumentsAnswer,
			Sources:      []string{},
			RawRetrieval: []models.RetrievedChunk{},
			Duration:     time.Since(start).Seconds(),
		}, nil
	}

	answer, err := s.llm.Generate(ctx, buildPrompt(question, hits))
	if err != nil {
		return nil, &core.GenerationError{Err: err}
	}

	sources, raw := retrievalView(hits)
	s.logger.Info("query answered",
		zap.Int("retrieved", len(hits)),
		zap.Duration("took", time.Since(start)))

	return &models.QueryResponse{
		Answer:       answer,
		Sources:      sources,
		RawRetrieval: raw,
		Duration:     time.Since(start).Seconds(),
	}, nil
}

// QueryStream answers a question incrementally. Events arrive in
// order: one "sources" event, zero or more "answer" fragments, then a
// final "done" event. An empty store skips "sources" and emits a
// single canned "answer". emit errors abort the stream.
func (s *RagService) QueryStream(ctx context.Context, question string, k int, emit func(models.StreamEvent) error) error {
	start := time.Now()

	hits, total, err := s.retrieve(ctx, question, k)
	if err != nil {
		return err
	}
	if total == 0 {
		// Nothing indexed: no sources event, just the canned answer.
		if err := emit(models.StreamEvent{Type: "answer", Data: noDocumentsAnswer}); err != nil {
			return err
		}
		return emit(models.StreamEvent{Type: "done", Duration: time.Since(start).Seconds()})
	}

	_, raw := retrievalView(hits)
	if err := emit(models.StreamEvent{Type: "sources", Data: raw}); err != nil {
		return err
	}

	var emitErr error
	err = s.llm.GenerateStream(ctx, buildPrompt(question, hits), func(fragment string) error {
		if e := emit(models.StreamEvent{Type: "answer", Data: fragment}); e != nil {
			emitErr = e
			return e
		}
		return nil
	})
	if emitErr != nil {
		// The consumer went away; this is not a provider failure.
		return emitErr
	}
	if err != nil {
		return &core.GenerationError{Err: err}
	}

	return emit(models.StreamEvent{Type: "done", Duration: time.Since(start).Seconds()})
}
