package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/spec-kit/loan-query-service/internal/domain"
	"github.com/spec-kit/loan-query-service/internal/events"
	"github.com/spec-kit/loan-query-service/internal/repository"
	"github.com/spec-kit/loan-query-service/internal/repository/memory"
	"github.com/spec-kit/loan-query-service/internal/service"
	"github.com/spec-kit/loan-query-service/internal/ticketid"
)

var (
	opsUser      = domain.Actor{Name: "ops.meera", Team: domain.TeamOperations, Role: "executive"}
	creditUser   = domain.Actor{Name: "credit.arjun", Team: domain.TeamCredit, Role: "officer"}
	approverUser = domain.Actor{Name: "approver.kiran", Team: domain.TeamApproval, Role: "manager"}
)

type recorder struct {
	mu     sync.Mutex
	events []events.UpdateEvent
}

func (r *recorder) Publish(_ context.Context, e events.UpdateEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) last(t *testing.T) events.UpdateEvent {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		t.Fatal("no events published")
	}
	return r.events[len(r.events)-1]
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type harness struct {
	lifecycle *service.Lifecycle
	registry  *service.ApprovalRegistry
	queries   *repository.QueryRepository
	store     repository.QueryStore
	approvals *memory.ApprovalStore
	messages  *memory.MessageStore
	events    *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithStore(t, memory.NewQueryStore())
}

func newHarnessWithStore(t *testing.T, store repository.QueryStore) *harness {
	t.Helper()
	h := &harness{
		store:     store,
		approvals: memory.NewApprovalStore(),
		messages:  memory.NewMessageStore(),
		events:    &recorder{},
	}
	h.queries = repository.NewQueryRepository(store, time.Second, nil, nil)
	h.registry = service.NewApprovalRegistry(service.ApprovalRegistryConfig{
		Store: h.approvals,
		IDs:   ticketid.New("T", 3),
	})
	h.lifecycle = service.NewLifecycle(service.LifecycleDependencies{
		Queries:   h.queries,
		Approvals: h.registry,
		Messages:  h.messages,
		Publisher: h.events,
	})
	return h
}

func (h *harness) create(t *testing.T, texts ...string) *domain.QueryGroup {
	t.Helper()
	out, err := h.lifecycle.Create(context.Background(), opsUser, service.CreateInput{
		ApplicationNo: "APP100",
		CustomerName:  "Ravi Kumar",
		Branch:        "Pune",
		QueryTexts:    texts,
		TargetTeam:    domain.TeamCredit,
		Priority:      domain.PriorityHigh,
	})
	gt.NoError(t, err).Required()
	return out.Group
}

func (h *harness) group(t *testing.T, id string) *domain.QueryGroup {
	t.Helper()
	g, err := h.queries.Get(context.Background(), id)
	gt.NoError(t, err).Required()
	return g
}
