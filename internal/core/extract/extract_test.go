package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thinkbook-lm/thinkbook/internal/core"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExtractPlainText(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	path := writeFile(t, "notes.txt", "Hello world. This is a test.")

	text, err := r.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Hello world. This is a test.", text)
}

func TestExtractUnknownExtension(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	path := writeFile(t, "binary.xyz", "whatever")

	_, err := r.Extract(context.Background(), path)
	assert.ErrorIs(t, err, core.ErrNoParser)
}

func TestExtractEmptyFile(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	path := writeFile(t, "empty.md", "   \n\t ")

	_, err := r.Extract(context.Background(), path)

	var exErr *core.ExtractionError
	assert.True(t, errors.As(err, &exErr), "want ExtractionError, got %v", err)
}

func TestExtractMissingFile(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	_, err := r.Extract(context.Background(), filepath.Join(t.TempDir(), "gone.txt"))

	var exErr *core.ExtractionError
	assert.True(t, errors.As(err, &exErr), "want ExtractionError, got %v", err)
}

func TestSupported(t *testing.T) {
	r := NewRegistry(zap.NewNop())

	assert.True(t, r.Supported(".txt"))
	assert.True(t, r.Supported(".PDF"))
	assert.False(t, r.Supported(".exe"))
	assert.False(t, r.Supported(""))
}
