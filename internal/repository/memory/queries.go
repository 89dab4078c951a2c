package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spec-kit/loan-query-service/internal/domain"
	"github.com/spec-kit/loan-query-service/internal/repository"
)

// QueryStore keeps query groups in process.
type QueryStore struct {
	mu     sync.RWMutex
	groups map[string]*domain.QueryGroup
}

var _ repository.QueryStore = (*QueryStore)(nil)

// NewQueryStore creates an empty store.
func NewQueryStore() *QueryStore {
	return &QueryStore{groups: make(map[string]*domain.QueryGroup)}
}

func (s *QueryStore) Insert(_ context.Context, g *domain.QueryGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.groups[g.ID]; exists {
		return fmt.Errorf("%w: query %s", repository.ErrDuplicate, g.ID)
	}
	s.groups[g.ID] = g.Clone()
	return nil
}

func (s *QueryStore) Get(_ context.Context, id string) (*domain.QueryGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return g.Clone(), nil
}

func (s *QueryStore) List(_ context.Context, filter repository.QueryFilter) ([]domain.QueryGroup, error) {
	return repository.ApplyQueryFilter(s.snapshot(), filter), nil
}

func (s *QueryStore) Update(_ context.Context, g *domain.QueryGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[g.ID]; !ok {
		return repository.ErrNotFound
	}
	s.groups[g.ID] = g.Clone()
	return nil
}

func (s *QueryStore) Stats(_ context.Context, filter repository.QueryFilter, now time.Time) (domain.QueryStats, error) {
	return repository.ComputeStats(s.snapshot(), filter, now), nil
}

func (s *QueryStore) snapshot() []*domain.QueryGroup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.QueryGroup, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g.Clone())
	}
	return out
}
