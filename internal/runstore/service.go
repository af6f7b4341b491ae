package runstore

import (
	"context"
	"sort"
	"sync"

	"github.com/irbench/ir-bench/internal/pkg/errors"
)

// Service manages run records over a storage backend, keeping an
// in-memory view of every stored run.
type Service struct {
	storage Storage
	runs    map[string]*Run
	mu      sync.RWMutex
}

// ServiceConfig selects the persistence backend.
type ServiceConfig struct {
	// Backend is "memory" or "file".
	Backend string

	// Dir is where the file backend keeps its records.
	Dir string
}

// NewService creates a run service and loads existing records.
func NewService(cfg ServiceConfig) (*Service, error) {
	var storage Storage
	switch cfg.Backend {
	case "", "memory":
		storage = NewMemoryStorage()
	case "file":
		if cfg.Dir == "" {
			return nil, errors.ValidationError("file runs backend requires a directory")
		}
		storage = NewFileStorage(cfg.Dir)
	default:
		return nil, errors.ValidationError("unknown runs backend: " + cfg.Backend)
	}

	svc := &Service{
		storage: storage,
		runs:    make(map[string]*Run),
	}
	if err := svc.loadRuns(); err != nil {
		return nil, err
	}

	return svc, nil
}

func (s *Service) loadRuns() error {
	runs, err := s.storage.LoadAll()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, run := range runs {
		s.runs[run.ID] = run
	}

	return nil
}

// Save persists a run, inserting or replacing by id.
func (s *Service) Save(ctx context.Context, run *Run) error {
	if run == nil {
		return errors.ValidationError("run cannot be nil")
	}
	if run.ID == "" {
		return errors.ValidationError("run id cannot be empty")
	}
	if run.Dataset == "" {
		return errors.ValidationError("run dataset cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.storage.Save(run); err != nil {
		return err
	}

	// Snapshot so later mutations of the caller's record don't leak into
	// concurrent reads.
	clone := *run
	s.runs[run.ID] = &clone
	return nil
}

// Get retrieves a run by id.
func (s *Service) Get(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.runs[id]
	if !exists {
		return nil, errors.NotFoundError("run " + id)
	}

	return run, nil
}

// List returns all runs, most recently started first.
func (s *Service) List(ctx context.Context) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	return runs, nil
}

// ListByDataset returns the runs of one benchmark, most recent first.
func (s *Service) ListByDataset(ctx context.Context, dataset string) ([]*Run, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	var runs []*Run
	for _, run := range all {
		if run.Dataset == dataset {
			runs = append(runs, run)
		}
	}

	return runs, nil
}

// Delete removes a run.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[id]; !exists {
		return errors.NotFoundError("run " + id)
	}

	if err := s.storage.Delete(id); err != nil {
		return err
	}

	delete(s.runs, id)
	return nil
}

// Exists reports whether a run is recorded.
func (s *Service) Exists(ctx context.Context, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.runs[id]
	return exists
}
