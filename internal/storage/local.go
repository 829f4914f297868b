package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/thinkbook-lm/thinkbook/internal/core"
)

// LocalStore keeps uploads as plain files under a single directory,
// keyed by their original filename.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name))
}

func (s *LocalStore) Save(_ context.Context, name string, r io.Reader) error {
	f, err := os.Create(s.path(name))
	if err != nil {
		return fmt.Errorf("save upload: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("save upload: %w", err)
	}
	return f.Close()
}

func (s *LocalStore) LocalPath(_ context.Context, name string) (string, func(), error) {
	p := s.path(name)
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil, core.ErrNotFound
		}
		return "", nil, err
	}
	return p, func() {}, nil
}

func (s *LocalStore) Delete(_ context.Context, name string) error {
	err := os.Remove(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *LocalStore) Exists(_ context.Context, name string) (bool, error) {
	_, err := os.Stat(s.path(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

var _ UploadStore = (*LocalStore)(nil)
