package storage

import (
	"context"
	"io"
)

// UploadStore keeps the raw uploaded documents. Text extraction works
// on local paths, so backends that hold objects remotely must be able
// to materialize a file on disk via LocalPath.
type UploadStore interface {
	// Save persists the named upload, overwriting any previous copy.
	Save(ctx context.Context, name string, r io.Reader) error

	// LocalPath returns a filesystem path holding the named upload.
	// cleanup must always be called; for remote backends it removes
	// the temporary copy.
	LocalPath(ctx context.Context, name string) (path string, cleanup func(), err error)

	Delete(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) (bool, error)
}
