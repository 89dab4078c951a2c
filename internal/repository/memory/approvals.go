package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/spec-kit/loan-query-service/internal/domain"
	"github.com/spec-kit/loan-query-service/internal/repository"
)

// ApprovalStore keeps approval requests in process.
type ApprovalStore struct {
	mu      sync.RWMutex
	tickets map[string]*domain.ApprovalRequest
}

var _ repository.ApprovalStore = (*ApprovalStore)(nil)

// NewApprovalStore creates an empty store.
func NewApprovalStore() *ApprovalStore {
	return &ApprovalStore{tickets: make(map[string]*domain.ApprovalRequest)}
}

func (s *ApprovalStore) Insert(_ context.Context, a *domain.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tickets[a.TicketID]; exists {
		return fmt.Errorf("%w: ticket %s", repository.ErrDuplicate, a.TicketID)
	}
	if a.IsOpen() {
		for _, existing := range s.tickets {
			if existing.IsOpen() && existing.SubQueryID == a.SubQueryID {
				return fmt.Errorf("%w: open ticket for sub-query %s", repository.ErrDuplicate, a.SubQueryID)
			}
		}
	}
	s.tickets[a.TicketID] = a.Clone()
	return nil
}

func (s *ApprovalStore) Update(_ context.Context, a *domain.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[a.TicketID]; !ok {
		return repository.ErrNotFound
	}
	s.tickets[a.TicketID] = a.Clone()
	return nil
}

func (s *ApprovalStore) Get(_ context.Context, ticketID string) (*domain.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.tickets[ticketID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return a.Clone(), nil
}

func (s *ApprovalStore) List(_ context.Context, filter repository.ApprovalFilter) ([]domain.ApprovalRequest, error) {
	s.mu.RLock()
	out := make([]domain.ApprovalRequest, 0)
	for _, a := range s.tickets {
		if filter.Match(a) {
			out = append(out, *a.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].TicketID < out[j].TicketID
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *ApprovalStore) TicketIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.tickets))
	for id := range s.tickets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
