package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// RegistryFileName is created next to the vector store's data.
const RegistryFileName = "file_registry.json"

// FileRegistry is a JSON file caching filename -> chunk count. It is a
// performance cache only and never the source of truth: anything needing
// an authoritative listing calls VectorStore.ListSources, which rewrites
// the whole file. The mutex serializes the load-mutate-save cycle so
// concurrent ingestions don't lose updates.
type FileRegistry struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewFileRegistry keeps the registry at dir/file_registry.json.
func NewFileRegistry(dir string, logger *zap.Logger) *FileRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileRegistry{
		path:   filepath.Join(dir, RegistryFileName),
		logger: logger,
	}
}

// Snapshot returns the cached mapping. Missing or corrupt files read as
// empty; the next reconciliation rewrites them.
func (r *FileRegistry) Snapshot() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

// Set records the chunk count for one source.
func (r *FileRegistry) Set(source string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg := r.load()
	reg[source] = count
	r.save(reg)
}

// Remove drops the entry for source if present.
func (r *FileRegistry) Remove(source string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg := r.load()
	if _, ok := reg[source]; !ok {
		return
	}
	delete(reg, source)
	r.save(reg)
}

// Replace overwrites the whole mapping; called by ListSources after a
// full store scan.
func (r *FileRegistry) Replace(counts map[string]int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.save(counts)
}

func (r *FileRegistry) load() map[string]int {
	reg := map[string]int{}
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Error("failed to load file registry", zap.Error(err))
		}
		return reg
	}
	if err := json.Unmarshal(data, &reg); err != nil {
		r.logger.Error("file registry corrupt, treating as empty", zap.Error(err))
		return map[string]int{}
	}
	return reg
}

func (r *FileRegistry) save(reg map[string]int) {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		r.logger.Error("failed to create registry dir", zap.Error(err))
		return
	}
	data, err := json.Marshal(reg)
	if err != nil {
		r.logger.Error("failed to encode file registry", zap.Error(err))
		return
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		r.logger.Error("failed to save file registry", zap.Error(err))
	}
}
