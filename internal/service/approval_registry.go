package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/loan-query-service/internal/domain"
	"github.com/spec-kit/loan-query-service/internal/observability"
	"github.com/spec-kit/loan-query-service/internal/repository"
	"github.com/spec-kit/loan-query-service/internal/ticketid"
	apperrors "github.com/spec-kit/loan-query-service/pkg/util/errorutil"
)

// ApprovalRegistry maps ticket ids to approval requests and guarantees at
// most one open request per sub-query. It keeps every ticket in memory and
// writes through to the approval store.
type ApprovalRegistry struct {
	store   repository.ApprovalStore
	ids     *ticketid.Generator
	timeout time.Duration
	sla     time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time

	mu      sync.RWMutex
	tickets map[string]*domain.ApprovalRequest
	// open indexes the pending ticket for each sub-query id.
	open map[string]string
	// opening and closing hold sub-query and ticket ids with a store write in flight.
	opening map[string]struct{}
	closing map[string]struct{}
	// dirty holds ticket ids whose latest version only reached memory.
	dirty map[string]struct{}
}

// ApprovalRegistryConfig bundles registry collaborators.
type ApprovalRegistryConfig struct {
	Store        repository.ApprovalStore
	IDs          *ticketid.Generator
	StoreTimeout time.Duration
	SLA          time.Duration
	Logger       *zap.Logger
	Metrics      *observability.Metrics
}

// OpenInput describes a proposal being escalated.
type OpenInput struct {
	Group      *domain.QueryGroup
	SubQueryID string
	Action     domain.ActionType
	Requester  domain.Actor
	Remark     string
}

// NewApprovalRegistry constructs the registry.
func NewApprovalRegistry(cfg ApprovalRegistryConfig) *ApprovalRegistry {
	timeout := cfg.StoreTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	sla := cfg.SLA
	if sla <= 0 {
		sla = 24 * time.Hour
	}
	ids := cfg.IDs
	if ids == nil {
		ids = ticketid.New("T", 3)
	}
	return &ApprovalRegistry{
		store:   cfg.Store,
		ids:     ids,
		timeout: timeout,
		sla:     sla,
		logger:  observability.Component(cfg.Logger, "approval_registry"),
		metrics: cfg.Metrics,
		now:     time.Now,
		tickets: make(map[string]*domain.ApprovalRequest),
		open:    make(map[string]string),
		opening: make(map[string]struct{}),
		closing: make(map[string]struct{}),
		dirty:   make(map[string]struct{}),
	}
}

// Load fills the registry from the store and reconciles the ticket counter.
func (r *ApprovalRegistry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	all, err := r.store.List(cctx, repository.ApprovalFilter{})
	if err != nil {
		return err
	}
	r.mu.Lock()
	for i := range all {
		r.remember(&all[i])
	}
	r.mu.Unlock()

	if _, err := r.ids.Reconcile(ctx, r.ticketIDs); err != nil {
		return err
	}
	r.logger.Info("approval registry loaded", zap.Int("tickets", len(all)))
	return nil
}

// Open issues a ticket for a sub-query. It fails with a conflict when the
// sub-query already has an open ticket. durable is false when the store
// rejected the write for a reason other than a conflict.
func (r *ApprovalRegistry) Open(ctx context.Context, in OpenInput) (*domain.ApprovalRequest, bool, error) {
	if in.Group == nil || in.SubQueryID == "" {
		return nil, false, apperrors.NewValidationError("queryId and subQueryId are required", nil)
	}
	if !in.Action.RequiresApproval() {
		return nil, false, apperrors.NewValidationError("action does not require approval",
			map[string]any{"action": in.Action})
	}

	r.mu.Lock()
	if existing, ok := r.open[in.SubQueryID]; ok {
		r.mu.Unlock()
		return nil, false, openConflict(in.SubQueryID, existing)
	}
	if _, busy := r.opening[in.SubQueryID]; busy {
		r.mu.Unlock()
		return nil, false, openConflict(in.SubQueryID, "")
	}
	r.opening[in.SubQueryID] = struct{}{}
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		delete(r.opening, in.SubQueryID)
		r.mu.Unlock()
	}

	id, err := r.ids.Next(ctx)
	if err != nil {
		release()
		return nil, false, err
	}
	req := &domain.ApprovalRequest{
		TicketID:       id,
		QueryID:        in.Group.ID,
		SubQueryID:     in.SubQueryID,
		ApplicationNo:  in.Group.ApplicationNo,
		CustomerName:   in.Group.CustomerName,
		Team:           in.Group.MarkedForTeam,
		Priority:       in.Group.Priority,
		ProposedAction: in.Action,
		RequestedBy:    in.Requester.Name,
		RequesterTeam:  in.Requester.Team,
		Status:         domain.ApprovalStatusPending,
		SubmittedAt:    r.now().UTC(),
		Remark:         strings.TrimSpace(in.Remark),
	}

	durable := true
	if r.store != nil {
		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		err := r.store.Insert(cctx, req)
		cancel()
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			release()
			return nil, false, openConflict(in.SubQueryID, "")
		case err != nil:
			durable = false
			r.fallback("approval_insert", id, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.opening, in.SubQueryID)
	// a durable insert already passed the store's single-open check
	if existing, ok := r.open[in.SubQueryID]; ok && !durable {
		return nil, false, openConflict(in.SubQueryID, existing)
	}
	r.remember(req)
	if !durable {
		r.dirty[id] = struct{}{}
	}
	return req.Clone(), durable, nil
}

// Close decides an open ticket. Unknown tickets are NotFound, decided ones AlreadyClosed.
func (r *ApprovalRegistry) Close(ctx context.Context, ticketID string, resolution domain.ApprovalStatus, approver, comment string) (*domain.ApprovalRequest, bool, error) {
	if resolution != domain.ApprovalStatusApproved && resolution != domain.ApprovalStatusRejected {
		return nil, false, apperrors.NewValidationError("resolution must be approved or rejected",
			map[string]any{"resolution": resolution})
	}
	if _, err := r.Get(ctx, ticketID); err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	req, ok := r.tickets[ticketID]
	if !ok {
		r.mu.Unlock()
		return nil, false, apperrors.NewNotFound("approval request", map[string]any{"ticketId": ticketID})
	}
	if _, busy := r.closing[ticketID]; busy || !req.IsOpen() {
		r.mu.Unlock()
		return nil, false, apperrors.NewAlreadyClosed(ticketID)
	}
	r.closing[ticketID] = struct{}{}
	updated := req.Clone()
	r.mu.Unlock()

	now := r.now().UTC()
	updated.Status = resolution
	updated.ApprovedBy = approver
	updated.DecidedAt = &now
	updated.ApproverComment = strings.TrimSpace(comment)

	durable := true
	if r.store != nil {
		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		err := r.write(cctx, updated)
		cancel()
		if err != nil {
			durable = false
			r.fallback("approval_update", ticketID, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.closing, ticketID)
	r.remember(updated)
	if durable {
		delete(r.dirty, ticketID)
	} else {
		r.dirty[ticketID] = struct{}{}
	}
	return updated.Clone(), durable, nil
}

// Flush retries store writes for tickets that only reached memory and
// returns how many are still pending.
func (r *ApprovalRegistry) Flush(ctx context.Context) int {
	if r.store == nil {
		return 0
	}
	r.mu.RLock()
	pending := make([]*domain.ApprovalRequest, 0, len(r.dirty))
	for id := range r.dirty {
		if _, busy := r.closing[id]; busy {
			continue
		}
		pending = append(pending, r.tickets[id].Clone())
	}
	r.mu.RUnlock()

	for _, req := range pending {
		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		err := r.write(cctx, req)
		cancel()
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			r.logger.Error("cached ticket conflicts with a stored open request",
				zap.String("ticket_id", req.TicketID),
				zap.String("sub_query_id", req.SubQueryID))
		case err != nil:
			continue
		}

		r.mu.Lock()
		if cur, ok := r.tickets[req.TicketID]; ok && cur.Status != req.Status {
			// decided while this write was in flight; the next flush carries it
			r.dirty[req.TicketID] = struct{}{}
		} else {
			delete(r.dirty, req.TicketID)
			if err == nil {
				r.logger.Info("flushed cached ticket to store", zap.String("ticket_id", req.TicketID))
			}
		}
		r.mu.Unlock()
	}
	return r.DirtyCount()
}

// DirtyCount reports how many tickets await a durable write.
func (r *ApprovalRegistry) DirtyCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.dirty)
}

func (r *ApprovalRegistry) write(ctx context.Context, req *domain.ApprovalRequest) error {
	err := r.store.Update(ctx, req)
	if errors.Is(err, repository.ErrNotFound) {
		// opened while the store was down
		err = r.store.Insert(ctx, req)
	}
	return err
}

// Get returns a ticket, consulting the store for tickets opened by peers.
func (r *ApprovalRegistry) Get(ctx context.Context, ticketID string) (*domain.ApprovalRequest, error) {
	r.mu.RLock()
	req, ok := r.tickets[ticketID]
	r.mu.RUnlock()
	if ok {
		return req.Clone(), nil
	}
	if r.store == nil {
		return nil, apperrors.NewNotFound("approval request", map[string]any{"ticketId": ticketID})
	}

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	stored, err := r.store.Get(cctx, ticketID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperrors.NewNotFound("approval request", map[string]any{"ticketId": ticketID})
	case err != nil:
		r.fallback("approval_get", ticketID, err)
		return nil, apperrors.NewNotFound("approval request", map[string]any{"ticketId": ticketID})
	}

	r.mu.Lock()
	if _, ok := r.tickets[ticketID]; !ok {
		r.remember(stored)
	}
	r.mu.Unlock()
	return stored.Clone(), nil
}

// OpenFor returns the open ticket referencing subQueryID, if any.
func (r *ApprovalRegistry) OpenFor(subQueryID string) (*domain.ApprovalRequest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.open[subQueryID]
	if !ok {
		return nil, false
	}
	return r.tickets[id].Clone(), true
}

// ListOpen returns pending tickets, oldest first.
func (r *ApprovalRegistry) ListOpen(ctx context.Context, filter repository.ApprovalFilter) ([]domain.ApprovalRequest, error) {
	filter.Statuses = []domain.ApprovalStatus{domain.ApprovalStatusPending}
	return r.List(ctx, filter)
}

// List returns tickets matching filter, oldest first.
func (r *ApprovalRegistry) List(ctx context.Context, filter repository.ApprovalFilter) ([]domain.ApprovalRequest, error) {
	if r.store != nil {
		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		out, err := r.store.List(cctx, filter)
		cancel()
		if err == nil {
			return r.overlay(out, filter), nil
		}
		r.fallback("approval_list", "", err)
	}

	r.mu.RLock()
	out := make([]domain.ApprovalRequest, 0)
	for _, req := range r.tickets {
		if filter.Match(req) {
			out = append(out, *req.Clone())
		}
	}
	r.mu.RUnlock()

	return oldestFirst(out, filter.Limit), nil
}

func oldestFirst(out []domain.ApprovalRequest, limit int) []domain.ApprovalRequest {
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].TicketID < out[j].TicketID
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Stats aggregates dashboard counters for tickets visible to team (nil: all).
func (r *ApprovalRegistry) Stats(ctx context.Context, team *domain.Team) (domain.ApprovalStats, error) {
	all, err := r.List(ctx, repository.ApprovalFilter{Team: team})
	if err != nil {
		return domain.ApprovalStats{}, err
	}
	return ComputeApprovalStats(all, r.now(), r.sla), nil
}

// ComputeApprovalStats derives counters from tickets. SLA compliance is the
// share of decided tickets decided within sla, or 100 when none are decided.
func ComputeApprovalStats(tickets []domain.ApprovalRequest, now time.Time, sla time.Duration) domain.ApprovalStats {
	y, m, d := now.Date()
	startOfDay := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	var (
		stats    domain.ApprovalStats
		decided  int
		inWindow int
	)
	for _, t := range tickets {
		if t.IsOpen() {
			stats.PendingCount++
			if t.Priority.IsUrgent() {
				stats.UrgentCount++
			}
			continue
		}
		if t.DecidedAt == nil {
			continue
		}
		decided++
		if t.DecidedAt.Sub(t.SubmittedAt) <= sla {
			inWindow++
		}
		if t.Status == domain.ApprovalStatusApproved && !t.DecidedAt.Before(startOfDay) {
			stats.ApprovedToday++
		}
	}
	stats.SLACompliance = 100
	if decided > 0 {
		stats.SLACompliance = float64(inWindow) * 100 / float64(decided)
	}
	return stats
}

func (r *ApprovalRegistry) ticketIDs(ctx context.Context) ([]string, error) {
	if r.store != nil {
		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		return r.store.TicketIDs(cctx)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.tickets))
	for id := range r.tickets {
		ids = append(ids, id)
	}
	return ids, nil
}

// overlay merges tickets whose latest version never reached the store into rows.
func (r *ApprovalRegistry) overlay(rows []domain.ApprovalRequest, filter repository.ApprovalFilter) []domain.ApprovalRequest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.dirty) == 0 {
		return rows
	}

	seen := make(map[string]struct{}, len(rows))
	out := rows[:0]
	for _, row := range rows {
		seen[row.TicketID] = struct{}{}
		if _, ok := r.dirty[row.TicketID]; ok {
			mem := r.tickets[row.TicketID]
			if !filter.Match(mem) {
				continue
			}
			row = *mem.Clone()
		}
		out = append(out, row)
	}
	for id := range r.dirty {
		if _, ok := seen[id]; ok {
			continue
		}
		if mem := r.tickets[id]; filter.Match(mem) {
			out = append(out, *mem.Clone())
		}
	}
	return oldestFirst(out, filter.Limit)
}

// remember must be called with mu held.
func (r *ApprovalRegistry) remember(req *domain.ApprovalRequest) {
	r.tickets[req.TicketID] = req.Clone()
	if req.IsOpen() {
		r.open[req.SubQueryID] = req.TicketID
		return
	}
	if r.open[req.SubQueryID] == req.TicketID {
		delete(r.open, req.SubQueryID)
	}
}

func (r *ApprovalRegistry) fallback(op, ticketID string, err error) {
	r.logger.Warn("durable store unavailable; using in-memory path",
		zap.String("op", op),
		zap.String("ticket_id", ticketID),
		zap.Error(err))
	r.metrics.RecordStoreFallback(op)
}

func openConflict(subQueryID, ticketID string) error {
	details := map[string]any{"subQueryId": subQueryID}
	if ticketID != "" {
		details["ticketId"] = ticketID
	}
	return apperrors.NewConflict("sub-query already has an open approval request", details)
}
