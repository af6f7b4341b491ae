package runstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/irbench/ir-bench/internal/pkg/errors"
)

// Storage is the interface for run persistence.
type Storage interface {
	// Save writes a run record.
	Save(run *Run) error

	// Load reads a run by id.
	Load(id string) (*Run, error)

	// LoadAll reads every stored run.
	LoadAll() ([]*Run, error)

	// Delete removes a run record.
	Delete(id string) error

	// Exists reports whether a run is stored.
	Exists(id string) bool
}

// MemoryStorage keeps runs in memory (for testing and one-shot CLI use).
type MemoryStorage struct {
	runs map[string]*Run
	mu   sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		runs: make(map[string]*Run),
	}
}

func (m *MemoryStorage) Save(run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	runCopy := *run
	m.runs[run.ID] = &runCopy
	return nil
}

func (m *MemoryStorage) Load(id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, exists := m.runs[id]
	if !exists {
		return nil, errors.NotFoundError("run " + id)
	}

	runCopy := *run
	return &runCopy, nil
}

func (m *MemoryStorage) LoadAll() ([]*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]*Run, 0, len(m.runs))
	for _, run := range m.runs {
		runCopy := *run
		runs = append(runs, &runCopy)
	}
	return runs, nil
}

func (m *MemoryStorage) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.runs, id)
	return nil
}

func (m *MemoryStorage) Exists(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.runs[id]
	return exists
}

// FileStorage keeps one JSON file per run.
type FileStorage struct {
	basePath string
	mu       sync.RWMutex
}

// NewFileStorage creates a new file-based storage rooted at basePath.
func NewFileStorage(basePath string) *FileStorage {
	return &FileStorage{
		basePath: basePath,
	}
}

func (f *FileStorage) runPath(id string) string {
	return filepath.Join(f.basePath, id+".json")
}

func (f *FileStorage) Save(run *Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(f.basePath, 0o755); err != nil {
		return errors.StorageError("failed to create runs directory", err)
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return errors.StorageError("failed to marshal run", err)
	}

	if err := os.WriteFile(f.runPath(run.ID), data, 0o644); err != nil {
		return errors.StorageError("failed to write run file", err)
	}

	return nil
}

func (f *FileStorage) Load(id string) (*Run, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := os.ReadFile(f.runPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFoundError("run " + id)
		}
		return nil, errors.StorageError("failed to read run file", err)
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, errors.StorageError("failed to unmarshal run", err)
	}

	return &run, nil
}

func (f *FileStorage) LoadAll() ([]*Run, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if _, err := os.Stat(f.basePath); os.IsNotExist(err) {
		return []*Run{}, nil
	}

	entries, err := os.ReadDir(f.basePath)
	if err != nil {
		return nil, errors.StorageError("failed to read runs directory", err)
	}

	var runs []*Run
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(f.basePath, entry.Name()))
		if err != nil {
			continue // Skip files we can't read
		}

		var run Run
		if err := json.Unmarshal(data, &run); err != nil {
			continue // Skip invalid files
		}

		runs = append(runs, &run)
	}

	return runs, nil
}

func (f *FileStorage) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.runPath(id)); err != nil && !os.IsNotExist(err) {
		return errors.StorageError("failed to delete run file", err)
	}

	return nil
}

func (f *FileStorage) Exists(id string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	_, err := os.Stat(f.runPath(id))
	return err == nil
}
