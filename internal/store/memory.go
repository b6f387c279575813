package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRunStore implements RunStore for testing and for runs that should
// not be persisted.
type InMemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]Run
}

// NewInMemoryRunStore creates an empty in-memory store.
func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{runs: make(map[string]Run)}
}

// Save implements RunStore.
func (s *InMemoryRunStore) Save(ctx context.Context, run Run) (string, error) {
	if err := validate(run); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if _, exists := s.runs[run.ID]; exists {
		return "", fmt.Errorf("run %s already exists", run.ID)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	run.Tags = dedupTags(run.Tags)
	s.runs[run.ID] = run
	return run.ID, nil
}

// Get implements RunStore.
func (s *InMemoryRunStore) Get(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fullID, err := s.resolveID(id)
	if err != nil {
		return nil, err
	}
	run := s.runs[fullID]
	return &run, nil
}

func (s *InMemoryRunStore) resolveID(id string) (string, error) {
	if _, ok := s.runs[id]; ok {
		return id, nil
	}
	var matches []string
	for key := range s.runs {
		if id != "" && strings.HasPrefix(key, id) {
			matches = append(matches, key)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
		return matches[0], nil
	default:
		sort.Strings(matches)
		return "", fmt.Errorf("%w: %s matches %s", ErrAmbiguousID, id, strings.Join(matches, ", "))
	}
}

// List implements RunStore.
func (s *InMemoryRunStore) List(ctx context.Context, f ListFilter) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Run
	for _, run := range s.runs {
		if f.Kind != "" && run.Kind != f.Kind {
			continue
		}
		if f.Tag != "" && !hasTag(run.Tags, f.Tag) {
			continue
		}
		run.Results = nil
		run.Report = nil
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Delete implements RunStore.
func (s *InMemoryRunStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fullID, err := s.resolveID(id)
	if err != nil {
		return err
	}
	delete(s.runs, fullID)
	return nil
}

// Close is a no-op.
func (s *InMemoryRunStore) Close() error { return nil }

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
