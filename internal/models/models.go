package models

// UploadResponse is returned after a document has been ingested.
type UploadResponse struct {
	Status string `json:"status"`
	File   string `json:"file"`
	Chunks int    `json:"chunks"`
}

// FileInfo describes one indexed document and its chunk count.
type FileInfo struct {
	Name   string `json:"name"`
	Chunks int    `json:"chunks"`
}

// DeleteResponse is returned after a document and its chunks were removed.
type DeleteResponse struct {
	Status        string `json:"status"`
	DeletedFile   string `json:"deleted_file"`
	DeletedChunks int    `json:"deleted_chunks"`
}

// FileTextResponse carries the extracted text of one document,
// truncated for display.
type FileTextResponse struct {
	Name      string `json:"name"`
	Text      string `json:"text"`
	Truncated bool   `json:"truncated"`
}

// RetrievedChunk is one raw retrieval hit included alongside an answer.
// Text is the full chunk; truncation happens only when building the
// prompt context, never in the response.
type RetrievedChunk struct {
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
}

// QueryResponse is the batch answer to a question.
type QueryResponse struct {
	Answer       string           `json:"answer"`
	Sources      []string         `json:"sources"`
	RawRetrieval []RetrievedChunk `json:"raw_retrieval"`
	Duration     float64          `json:"duration"`
}

// StreamEvent is one SSE payload from the streaming query endpoint.
// Type is "sources" (data: retrieved chunk metadata), "answer" (data:
// one text fragment), "done" (duration only) or "error" (data: message).
type StreamEvent struct {
	Type     string  `json:"type"`
	Data     any     `json:"data,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// ErrorResponse is the uniform error body for every endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse reports service liveness and store shape.
type HealthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
	Chunks  int    `json:"chunks"`
}
