package repository

import (
	"context"
	"errors"
	"time"

	"github.com/spec-kit/loan-query-service/internal/domain"
)

var (
	// ErrNotFound is returned by stores when no record matches.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a uniqueness constraint rejects an insert.
	ErrDuplicate = errors.New("duplicate record")
)

// QueryStore is the durable contract for query groups.
type QueryStore interface {
	Insert(ctx context.Context, group *domain.QueryGroup) error
	Get(ctx context.Context, id string) (*domain.QueryGroup, error)
	List(ctx context.Context, filter QueryFilter) ([]domain.QueryGroup, error)
	Update(ctx context.Context, group *domain.QueryGroup) error
	Stats(ctx context.Context, filter QueryFilter, now time.Time) (domain.QueryStats, error)
}

// ApprovalStore is the durable contract for approval requests.
type ApprovalStore interface {
	Insert(ctx context.Context, req *domain.ApprovalRequest) error
	Update(ctx context.Context, req *domain.ApprovalRequest) error
	Get(ctx context.Context, ticketID string) (*domain.ApprovalRequest, error)
	List(ctx context.Context, filter ApprovalFilter) ([]domain.ApprovalRequest, error)
	// TicketIDs returns every ticket id ever persisted.
	TicketIDs(ctx context.Context) ([]string, error)
}

// MessageStore is the append-only contract for query threads.
type MessageStore interface {
	Append(ctx context.Context, msg *domain.Message) error
	// ListByQuery returns messages ascending by timestamp.
	ListByQuery(ctx context.Context, queryID string) ([]domain.Message, error)
}
