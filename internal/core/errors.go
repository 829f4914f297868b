package core

import (
	"errors"
	"fmt"
)

// Failure taxonomy. Handlers translate these to HTTP statuses; nothing
// below the transport layer deals in status codes.
var (
	// ErrEmptyContent: the chunker produced zero chunks from the input.
	ErrEmptyContent = errors.New("no content to index")

	// ErrNoParser: no parser is registered for the file's extension.
	ErrNoParser = errors.New("no parser for file type")

	// ErrNotFound: neither the store nor the upload storage knows the file.
	ErrNotFound = errors.New("not found")
)

// ExtractionError: a parser ran but produced no usable text.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}
func (e *ExtractionError) Unwrap() error { return e.Err }

// ValidationError rejects a request before any side effect happens.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// StoreError wraps a vector store backend failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("vector store %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// GenerationError distinguishes "retrieval worked, generation failed"
// from every other failure; surfaced as 502.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return fmt.Sprintf("generation failed: %v", e.Err) }
func (e *GenerationError) Unwrap() error { return e.Err }
