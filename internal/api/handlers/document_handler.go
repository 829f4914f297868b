package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/thinkbook-lm/thinkbook/internal/core"
	"github.com/thinkbook-lm/thinkbook/internal/core/extract"
	"github.com/thinkbook-lm/thinkbook/internal/models"
	"github.com/thinkbook-lm/thinkbook/internal/services"
	"github.com/thinkbook-lm/thinkbook/internal/storage"
)

// fileTextLimit caps how many runes of extracted text get_file_text
// returns for display.
const fileTextLimit = 50000

type DocumentHandler struct {
	rag       *services.RagService
	uploads   storage.UploadStore
	extractor *extract.Registry
	maxBytes  int64
	allowed   map[string]bool
	logger    *zap.Logger
}

func NewDocumentHandler(rag *services.RagService, uploads storage.UploadStore, extractor *extract.Registry, maxBytes int64, allowedExts []string, logger *zap.Logger) *DocumentHandler {
	allowed := make(map[string]bool, len(allowedExts))
	for _, e := range allowedExts {
		allowed[strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}
	return &DocumentHandler{
		rag:       rag,
		uploads:   uploads,
		extractor: extractor,
		maxBytes:  maxBytes,
		allowed:   allowed,
		logger:    logger,
	}
}

// validateUpload rejects bad filenames before any side effect happens.
func (h *DocumentHandler) validateUpload(filename string) error {
	if filename == "" || filename == "." {
		return &core.ValidationError{Reason: "missing filename"}
	}
	if !h.extOK(filename) {
		return &core.ValidationError{Reason: fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename))}
	}
	return nil
}

func (h *DocumentHandler) extOK(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return false
	}
	if len(h.allowed) > 0 {
		return h.allowed[strings.TrimPrefix(ext, ".")]
	}
	return h.extractor.Supported(ext)
}

// UploadFile ingests one multipart document: save, extract, chunk,
// embed, index. A failed ingest removes the saved upload again.
func (h *DocumentHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", tooBig.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid file")
		return
	}
	defer file.Close()

	// Strip any path components the client sent.
	filename := filepath.Base(header.Filename)
	if err := h.validateUpload(filename); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	indexed, err := h.rag.ListDocuments(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, f := range indexed {
		if f.Name == filename {
			writeError(w, http.StatusConflict, fmt.Sprintf("file %q already indexed; delete it first", filename))
			return
		}
	}

	if err := h.uploads.Save(ctx, filename, file); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	path, cleanup, err := h.uploads.LocalPath(ctx, filename)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer cleanup()

	text, err := h.extractor.Extract(ctx, path)
	if err != nil {
		h.discardUpload(r, filename)
		if errors.Is(err, core.ErrNoParser) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		var exErr *core.ExtractionError
		if errors.As(err, &exErr) {
			writeError(w, http.StatusBadRequest, "no text extracted from file")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	chunks, err := h.rag.IngestDocument(ctx, filename, text)
	if err != nil {
		h.discardUpload(r, filename)
		if errors.Is(err, core.ErrEmptyContent) {
			// Extraction yielded text but chunking produced nothing.
			writeError(w, http.StatusInternalServerError, "chunking produced zero chunks")
			return
		}
		h.logger.Error("ingest failed", zap.String("file", filename), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, models.UploadResponse{Status: "ok", File: filename, Chunks: chunks})
}

// discardUpload removes a saved upload after a failed ingest so the
// upload dir does not drift from the index.
func (h *DocumentHandler) discardUpload(r *http.Request, filename string) {
	if err := h.uploads.Delete(r.Context(), filename); err != nil {
		h.logger.Warn("cleanup failed", zap.String("file", filename), zap.Error(err))
	}
}

func (h *DocumentHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.rag.ListDocuments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	// Bare array; ListDocuments always returns a non-nil slice so an
	// empty index encodes as [] rather than null.
	writeJSON(w, http.StatusOK, files)
}

// DeleteFile removes a document's chunks and its stored upload. It
// reports 404 only when neither existed.
func (h *DocumentHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := filepath.Base(strings.TrimSpace(r.URL.Query().Get("name")))
	if name == "" || name == "." {
		writeError(w, http.StatusBadRequest, "missing name")
		return
	}

	deleted, err := h.rag.DeleteDocument(ctx, name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	hadFile, err := h.uploads.Exists(ctx, name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if hadFile {
		if err := h.uploads.Delete(ctx, name); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	if deleted == 0 && !hadFile {
		writeError(w, http.StatusNotFound, fmt.Sprintf("file %q not found", name))
		return
	}

	h.logger.Info("document deleted", zap.String("file", name), zap.Int("chunks", deleted))
	writeJSON(w, http.StatusOK, models.DeleteResponse{
		Status:        "ok",
		DeletedFile:   name,
		DeletedChunks: deleted,
	})
}

// GetFileText re-extracts and returns the text of a stored upload,
// truncated for display.
func (h *DocumentHandler) GetFileText(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := filepath.Base(strings.TrimSpace(r.URL.Query().Get("name")))
	if name == "" || name == "." {
		writeError(w, http.StatusBadRequest, "missing name")
		return
	}

	path, cleanup, err := h.uploads.LocalPath(ctx, name)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer cleanup()

	text, err := h.extractor.Extract(ctx, path)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to extract text")
		return
	}

	runes := []rune(text)
	truncated := len(runes) > fileTextLimit
	if truncated {
		text = string(runes[:fileTextLimit])
	}
	writeJSON(w, http.StatusOK, models.FileTextResponse{Name: name, Text: text, Truncated: truncated})
}
