package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/thinkbook-lm/thinkbook/internal/core"
	"github.com/thinkbook-lm/thinkbook/internal/models"
	"github.com/thinkbook-lm/thinkbook/internal/services"
)

type QueryHandler struct {
	rag    *services.RagService
	logger *zap.Logger
}

func NewQueryHandler(rag *services.RagService, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{rag: rag, logger: logger}
}

// parseQueryForm reads the q and k form fields. k defaults to 4 and
// silently falls back on garbage input.
func parseQueryForm(r *http.Request) (string, int) {
	q := strings.TrimSpace(r.FormValue("q"))
	k := 4
	if raw := r.FormValue("k"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			k = v
		}
	}
	return q, k
}

// Query answers a question in one response.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	q, k := parseQueryForm(r)
	if q == "" {
		writeError(w, http.StatusBadRequest, "query is empty")
		return
	}

	resp, err := h.rag.Query(r.Context(), q, k)
	if err != nil {
		var genErr *core.GenerationError
		if errors.As(err, &genErr) {
			h.logger.Error("generation failed", zap.Error(err))
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		h.logger.Error("query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// QueryStream answers a question over SSE: a sources event, answer
// fragments as the model produces them, then a done event.
func (h *QueryHandler) QueryStream(w http.ResponseWriter, r *http.Request) {
	q, k := parseQueryForm(r)
	if q == "" {
		writeError(w, http.StatusBadRequest, "query is empty")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	err := h.rag.QueryStream(r.Context(), q, k, func(ev models.StreamEvent) error {
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		// Headers are gone by now; emit a terminal error event instead.
		h.logger.Error("stream failed", zap.Error(err))
		if payload, mErr := json.Marshal(models.StreamEvent{Type: "error", Data: err.Error()}); mErr == nil {
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
