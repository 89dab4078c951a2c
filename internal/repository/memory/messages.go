package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/spec-kit/loan-query-service/internal/domain"
	"github.com/spec-kit/loan-query-service/internal/repository"
)

// MessageStore keeps query threads in process.
type MessageStore struct {
	mu       sync.RWMutex
	messages map[string][]domain.Message
}

var _ repository.MessageStore = (*MessageStore)(nil)

// NewMessageStore creates an empty store.
func NewMessageStore() *MessageStore {
	return &MessageStore{messages: make(map[string][]domain.Message)}
}

func (s *MessageStore) Append(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.QueryID] = append(s.messages[msg.QueryID], copyMessage(*msg))
	return nil
}

func (s *MessageStore) ListByQuery(_ context.Context, queryID string) ([]domain.Message, error) {
	s.mu.RLock()
	src := s.messages[queryID]
	out := make([]domain.Message, 0, len(src))
	for _, m := range src {
		out = append(out, copyMessage(m))
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func copyMessage(m domain.Message) domain.Message {
	if m.Metadata != nil {
		md := make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			md[k] = v
		}
		m.Metadata = md
	}
	return m
}
