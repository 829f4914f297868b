package handlers

import (
	"net/http"

	"github.com/thinkbook-lm/thinkbook/internal/models"
	"github.com/thinkbook-lm/thinkbook/internal/services"
)

type HealthHandler struct {
	rag     *services.RagService
	backend string
}

func NewHealthHandler(rag *services.RagService, backend string) *HealthHandler {
	return &HealthHandler{rag: rag, backend: backend}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	chunks, err := h.rag.ChunkCount(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, models.HealthResponse{Status: "degraded", Backend: h.backend})
		return
	}
	writeJSON(w, http.StatusOK, models.HealthResponse{Status: "ok", Backend: h.backend, Chunks: chunks})
}
