package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/loan-query-service/internal/domain"
	"github.com/spec-kit/loan-query-service/internal/events"
	"github.com/spec-kit/loan-query-service/internal/observability"
	"github.com/spec-kit/loan-query-service/internal/repository"
	apperrors "github.com/spec-kit/loan-query-service/pkg/util/errorutil"
)

// Lifecycle owns every state change of query groups and their sub-queries.
// Each operation validates, then runs read-validate-write under the query's
// lock, persists, records a system message and publishes an update event.
type Lifecycle struct {
	queries   *repository.QueryRepository
	approvals *ApprovalRegistry
	messages  repository.MessageStore
	publisher events.Publisher
	timeout   time.Duration
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// LifecycleDependencies bundles lifecycle collaborators.
type LifecycleDependencies struct {
	Queries      *repository.QueryRepository
	Approvals    *ApprovalRegistry
	Messages     repository.MessageStore
	Publisher    events.Publisher
	StoreTimeout time.Duration
	Logger       *zap.Logger
	Metrics      *observability.Metrics
}

// CreateInput describes a new query group.
type CreateInput struct {
	ApplicationNo string
	CustomerName  string
	Branch        string
	QueryTexts    []string
	TargetTeam    domain.Team
	Priority      domain.Priority
}

// ActionInput is a team action on one sub-query, or on the whole group.
type ActionInput struct {
	QueryID    string
	SubQueryID string
	Action     domain.ActionType
	Remark     string
	WholeGroup bool
}

// DecisionInput is the approval team's verdict on one ticket.
type DecisionInput struct {
	TicketID string
	Approve  bool
	Comment  string
	// ApproverName overrides the actor's name on the ticket when set.
	ApproverName string
	// SpecificAction overrides the proposed action on approval.
	SpecificAction domain.ActionType
}

// UpdateInput carries the editable fields of a PATCH.
type UpdateInput struct {
	QueryID       string
	SubQueryID    string
	Individual    bool
	Status        *domain.QueryStatus
	Remark        string
	Priority      *domain.Priority
	MarkedForTeam *domain.Team
	CustomerName  *string
	Branch        *string
}

// Outcome is what a transition produced.
type Outcome struct {
	Group    *domain.QueryGroup
	SubQuery *domain.SubQuery
	Ticket   *domain.ApprovalRequest
	Message  *domain.Message
	Durable  bool
}

// HistoryKind selects which part of a thread History returns.
type HistoryKind string

const (
	HistoryAll      HistoryKind = ""
	HistoryActions  HistoryKind = "actions"
	HistoryMessages HistoryKind = "messages"
)

// NewLifecycle constructs the state machine.
func NewLifecycle(deps LifecycleDependencies) *Lifecycle {
	timeout := deps.StoreTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Lifecycle{
		queries:   deps.Queries,
		approvals: deps.Approvals,
		messages:  deps.Messages,
		publisher: deps.Publisher,
		timeout:   timeout,
		logger:    observability.Component(deps.Logger, "lifecycle"),
		metrics:   deps.Metrics,
		now:       time.Now,
	}
}

// Create registers a query group holding one pending sub-query per text.
func (l *Lifecycle) Create(ctx context.Context, actor domain.Actor, in CreateInput) (*Outcome, error) {
	if actor.Team != domain.TeamOperations {
		return nil, apperrors.NewForbidden("only operations can raise queries")
	}
	appNo := strings.TrimSpace(in.ApplicationNo)
	if appNo == "" {
		return nil, apperrors.NewValidationError("applicationNo is required", nil)
	}
	texts := make([]string, 0, len(in.QueryTexts))
	for _, t := range in.QueryTexts {
		if t = strings.TrimSpace(t); t != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		return nil, apperrors.NewValidationError("at least one query text is required", nil)
	}
	if !in.TargetTeam.ValidTarget() {
		return nil, apperrors.NewValidationError("invalid target team", map[string]any{"targetTeam": in.TargetTeam})
	}
	priority := in.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}

	now := l.now().UTC()
	g := &domain.QueryGroup{
		ID:            uuid.NewString(),
		ApplicationNo: appNo,
		CustomerName:  strings.TrimSpace(in.CustomerName),
		Branch:        strings.TrimSpace(in.Branch),
		Team:          actor.Team,
		MarkedForTeam: in.TargetTeam,
		Status:        domain.QueryStatusPending,
		Priority:      priority,
		CreatedBy:     actor.Name,
		CreatedAt:     now,
		SubmittedAt:   now,
		UpdatedAt:     now,
		SubQueries:    make([]domain.SubQuery, 0, len(texts)),
	}
	for i, text := range texts {
		g.SubQueries = append(g.SubQueries, domain.SubQuery{
			ID:       uuid.NewString(),
			Text:     text,
			Status:   domain.QueryStatusPending,
			Sequence: i + 1,
		})
	}

	durable, err := l.queries.Insert(ctx, g)
	if err != nil {
		return nil, err
	}

	body := fmt.Sprintf("Query raised for %s with %d item(s), marked for %s", appNo, len(texts), in.TargetTeam)
	msg := l.systemMessage(ctx, g, actor, "", body, nil)

	e := events.FromGroup(g, events.ActionCreated)
	e.Message = body
	e.Sender = actor.Name
	l.publish(ctx, e, durable)

	return &Outcome{Group: g, Message: msg, Durable: durable}, nil
}

// Apply routes a team action to the matching transition.
func (l *Lifecycle) Apply(ctx context.Context, actor domain.Actor, in ActionInput) (*Outcome, error) {
	if strings.TrimSpace(in.QueryID) == "" || in.Action == "" {
		return nil, apperrors.NewValidationError("queryId and action are required", nil)
	}
	switch {
	case in.Action.RequiresApproval():
		return l.Propose(ctx, actor, in)
	case in.Action.IsDirect():
		return l.Resolve(ctx, actor, in)
	case in.Action == domain.ActionRevert:
		return l.Revert(ctx, actor, in)
	}
	return nil, apperrors.NewValidationError("unknown action", map[string]any{"action": in.Action})
}

// Propose escalates an approve/defer/otc proposal to the approval team.
func (l *Lifecycle) Propose(ctx context.Context, actor domain.Actor, in ActionInput) (*Outcome, error) {
	if err := requireTarget(in); err != nil {
		return nil, err
	}
	if !in.Action.RequiresApproval() {
		return nil, apperrors.NewValidationError("action does not require approval", map[string]any{"action": in.Action})
	}
	if !actor.Team.CanRaise() {
		return nil, apperrors.NewForbidden("team cannot propose actions")
	}

	unlock := l.queries.Lock(in.QueryID)
	defer unlock()

	g, sq, err := l.load(ctx, in.QueryID, in.SubQueryID)
	if err != nil {
		return nil, err
	}
	if sq.Status != domain.QueryStatusPending {
		return nil, apperrors.NewInvalidTransition(string(sq.Status), string(in.Action))
	}

	ticket, ticketDurable, err := l.approvals.Open(ctx, OpenInput{
		Group:      g,
		SubQueryID: sq.ID,
		Action:     in.Action,
		Requester:  actor,
		Remark:     in.Remark,
	})
	if err != nil {
		return nil, err
	}

	now := l.now().UTC()
	from := sq.Status
	sq.Status = domain.QueryStatusWaitingForApproval
	sq.ProposedAction = in.Action
	sq.ProposedBy = actor.Name
	sq.ProposedAt = &now
	sq.TicketID = ticket.TicketID
	derive(g, transition{by: actor.Name, at: now})

	durable, err := l.queries.Save(ctx, g)
	if err != nil {
		return nil, err
	}
	durable = durable && ticketDurable
	l.metrics.RecordTransition(string(from), string(sq.Status))

	body := fmt.Sprintf("Sub-query #%d proposed for %s (ticket %s)", sq.Sequence, in.Action, ticket.TicketID)
	if remark := strings.TrimSpace(in.Remark); remark != "" {
		body += ": " + remark
	}
	msg := l.systemMessage(ctx, g, actor, in.Action, body, map[string]any{
		"subQueryId": sq.ID,
		"ticketId":   ticket.TicketID,
	})

	e := events.FromGroup(g, events.ActionPendingApproval)
	e.SubQueryID = sq.ID
	e.TicketID = ticket.TicketID
	e.Message = body
	e.Sender = actor.Name
	l.publish(ctx, e, durable)

	return &Outcome{Group: g, SubQuery: snapshotSub(g, sq.ID), Ticket: ticket, Message: msg, Durable: durable}, nil
}

// Decide closes a ticket. Approval moves the sub-query to the status its
// proposal (or the approver's override) maps to; rejection returns it to pending.
func (l *Lifecycle) Decide(ctx context.Context, actor domain.Actor, in DecisionInput) (*Outcome, error) {
	if strings.TrimSpace(in.TicketID) == "" {
		return nil, apperrors.NewValidationError("ticket id is required", nil)
	}
	if actor.Team != domain.TeamApproval {
		return nil, apperrors.NewForbidden("only the approval team decides tickets")
	}
	if in.SpecificAction != "" && !in.SpecificAction.RequiresApproval() {
		return nil, apperrors.NewValidationError("invalid specificAction", map[string]any{"specificAction": in.SpecificAction})
	}

	ticket, err := l.approvals.Get(ctx, in.TicketID)
	if err != nil {
		return nil, err
	}
	if !ticket.IsOpen() {
		return nil, apperrors.NewAlreadyClosed(ticket.TicketID)
	}

	unlock := l.queries.Lock(ticket.QueryID)
	defer unlock()

	g, sq, err := l.load(ctx, ticket.QueryID, ticket.SubQueryID)
	if err != nil {
		return nil, err
	}
	verb := "reject"
	if in.Approve {
		verb = "approve"
	}
	if sq.Status != domain.QueryStatusWaitingForApproval || sq.TicketID != ticket.TicketID {
		return nil, apperrors.NewInvalidTransition(string(sq.Status), verb)
	}

	action := ticket.ProposedAction
	if in.SpecificAction != "" {
		action = in.SpecificAction
	}
	target, ok := action.ApprovedStatus()
	if in.Approve && !ok {
		return nil, apperrors.NewInvalidTransition(string(sq.Status), string(action))
	}

	approver := strings.TrimSpace(in.ApproverName)
	if approver == "" {
		approver = actor.Name
	}
	resolution := domain.ApprovalStatusRejected
	if in.Approve {
		resolution = domain.ApprovalStatusApproved
	}
	closed, ticketDurable, err := l.approvals.Close(ctx, ticket.TicketID, resolution, approver, in.Comment)
	if err != nil {
		return nil, err
	}

	now := l.now().UTC()
	from := sq.Status
	var (
		body string
		tag  events.Action
	)
	if in.Approve {
		sq.Status = target
		sq.ApprovedBy = approver
		sq.ApprovedAt = &now
		sq.ResolvedAt = &now
		sq.ResolvedBy = approver
		sq.ResolutionReason = strings.TrimSpace(in.Comment)
		sq.TicketID = ""
		derive(g, transition{by: approver, at: now, approved: true, reason: sq.ResolutionReason})
		body = fmt.Sprintf("Ticket %s approved: sub-query #%d is now %s", closed.TicketID, sq.Sequence, target)
		tag = events.ActionApproved
	} else {
		sq.Status = domain.QueryStatusPending
		clearProposal(sq)
		derive(g, transition{by: approver, at: now})
		body = fmt.Sprintf("Ticket %s rejected: sub-query #%d returned to pending", closed.TicketID, sq.Sequence)
		tag = events.ActionUpdated
	}
	if comment := strings.TrimSpace(in.Comment); comment != "" {
		body += ": " + comment
	}

	durable, err := l.queries.Save(ctx, g)
	if err != nil {
		return nil, err
	}
	durable = durable && ticketDurable
	l.metrics.RecordTransition(string(from), string(sq.Status))

	decider := domain.Actor{Name: approver, Team: actor.Team, Role: actor.Role}
	msg := l.systemMessage(ctx, g, decider, closed.ProposedAction, body, map[string]any{
		"subQueryId": sq.ID,
		"ticketId":   closed.TicketID,
		"decision":   string(resolution),
	})

	e := events.FromGroup(g, tag)
	e.SubQueryID = sq.ID
	e.TicketID = closed.TicketID
	e.Message = body
	e.Sender = approver
	e.ApproverComment = closed.ApproverComment
	l.publish(ctx, e, durable)

	return &Outcome{Group: g, SubQuery: snapshotSub(g, sq.ID), Ticket: closed, Message: msg, Durable: durable}, nil
}

// Resolve applies a direct action (assign-to-branch, respond, escalate),
// resolving one pending sub-query or, with WholeGroup, every pending one.
func (l *Lifecycle) Resolve(ctx context.Context, actor domain.Actor, in ActionInput) (*Outcome, error) {
	if strings.TrimSpace(in.QueryID) == "" {
		return nil, apperrors.NewValidationError("queryId is required", nil)
	}
	if !in.WholeGroup && strings.TrimSpace(in.SubQueryID) == "" {
		return nil, apperrors.NewValidationError("subQueryId is required", nil)
	}
	if !in.Action.IsDirect() {
		return nil, apperrors.NewValidationError("action is not a direct action", map[string]any{"action": in.Action})
	}
	if !actor.Team.CanRaise() {
		return nil, apperrors.NewForbidden("team cannot resolve queries")
	}

	unlock := l.queries.Lock(in.QueryID)
	defer unlock()

	g, err := l.queries.Get(ctx, in.QueryID)
	if err != nil {
		return nil, err
	}

	targets := make([]*domain.SubQuery, 0, len(g.SubQueries))
	if in.WholeGroup {
		for i := range g.SubQueries {
			switch g.SubQueries[i].Status {
			case domain.QueryStatusPending:
				targets = append(targets, &g.SubQueries[i])
			case domain.QueryStatusWaitingForApproval:
				return nil, apperrors.NewInvalidTransition(string(g.SubQueries[i].Status), string(in.Action))
			}
		}
		if len(targets) == 0 {
			return nil, apperrors.NewInvalidTransition(string(g.Status), string(in.Action))
		}
	} else {
		sq, ok := g.SubQuery(in.SubQueryID)
		if !ok {
			return nil, apperrors.NewNotFound("sub-query", map[string]any{"queryId": in.QueryID, "subQueryId": in.SubQueryID})
		}
		if sq.Status != domain.QueryStatusPending {
			return nil, apperrors.NewInvalidTransition(string(sq.Status), string(in.Action))
		}
		targets = append(targets, sq)
	}

	now := l.now().UTC()
	reason := strings.TrimSpace(in.Remark)
	if reason == "" {
		reason = string(in.Action)
	}
	for _, sq := range targets {
		sq.Status = domain.QueryStatusResolved
		sq.ResolvedAt = &now
		sq.ResolvedBy = actor.Name
		sq.ResolutionReason = reason
		l.metrics.RecordTransition(string(domain.QueryStatusPending), string(domain.QueryStatusResolved))
	}
	derive(g, transition{by: actor.Name, at: now, reason: reason})

	durable, err := l.queries.Save(ctx, g)
	if err != nil {
		return nil, err
	}

	var body string
	if in.WholeGroup {
		body = fmt.Sprintf("All open items resolved via %s", in.Action)
	} else {
		body = fmt.Sprintf("Sub-query #%d resolved via %s", targets[0].Sequence, in.Action)
	}
	if remark := strings.TrimSpace(in.Remark); remark != "" {
		body += ": " + remark
	}
	meta := map[string]any{"wholeGroup": in.WholeGroup}
	if !in.WholeGroup {
		meta["subQueryId"] = targets[0].ID
	}
	msg := l.systemMessage(ctx, g, actor, in.Action, body, meta)

	e := events.FromGroup(g, events.ActionResolved)
	if !in.WholeGroup {
		e.SubQueryID = targets[0].ID
	}
	e.Message = body
	e.Sender = actor.Name
	e.ResolvedBy = actor.Name
	l.publish(ctx, e, durable)

	out := &Outcome{Group: g, Message: msg, Durable: durable}
	if !in.WholeGroup {
		out.SubQuery = snapshotSub(g, targets[0].ID)
	}
	return out, nil
}

// Revert returns a sub-query to pending. A remark is mandatory and any open
// ticket on the sub-query is closed as rejected.
func (l *Lifecycle) Revert(ctx context.Context, actor domain.Actor, in ActionInput) (*Outcome, error) {
	if err := requireTarget(in); err != nil {
		return nil, err
	}
	remark := strings.TrimSpace(in.Remark)
	if remark == "" {
		return nil, apperrors.NewValidationError("a remark is required to revert", map[string]any{"field": "remarks"})
	}

	unlock := l.queries.Lock(in.QueryID)
	defer unlock()

	g, sq, err := l.load(ctx, in.QueryID, in.SubQueryID)
	if err != nil {
		return nil, err
	}
	if !sq.Status.Revertable() {
		return nil, apperrors.NewInvalidTransition(string(sq.Status), string(domain.ActionRevert))
	}

	ticketDurable := true
	var closed *domain.ApprovalRequest
	if sq.Status == domain.QueryStatusWaitingForApproval {
		if open, ok := l.approvals.OpenFor(sq.ID); ok {
			closed, ticketDurable, err = l.approvals.Close(ctx, open.TicketID, domain.ApprovalStatusRejected, actor.Name, "reverted: "+remark)
			switch {
			case errors.Is(err, apperrors.ErrAlreadyClosed):
				ticketDurable = true
			case err != nil:
				return nil, err
			}
		}
	}

	now := l.now().UTC()
	from := sq.Status
	sq.Status = domain.QueryStatusPending
	clearProposal(sq)
	sq.ResolvedAt = nil
	sq.ResolvedBy = ""
	sq.ResolutionReason = ""
	sq.ApprovedBy = ""
	sq.ApprovedAt = nil
	sq.RevertedAt = &now
	sq.RevertedBy = actor.Name
	sq.RevertReason = remark
	g.RevertedAt = &now
	g.RevertedBy = actor.Name
	g.RevertReason = remark
	derive(g, transition{by: actor.Name, at: now})

	durable, err := l.queries.Save(ctx, g)
	if err != nil {
		return nil, err
	}
	durable = durable && ticketDurable
	l.metrics.RecordTransition(string(from), string(sq.Status))

	body := fmt.Sprintf("Sub-query #%d reverted from %s to pending: %s", sq.Sequence, from, remark)
	meta := map[string]any{"subQueryId": sq.ID, "remark": remark, "from": string(from)}
	if closed != nil {
		meta["ticketId"] = closed.TicketID
	}
	msg := l.systemMessage(ctx, g, actor, domain.ActionRevert, body, meta)

	e := events.FromGroup(g, events.ActionUpdated)
	e.SubQueryID = sq.ID
	e.Message = body
	e.Sender = actor.Name
	if closed != nil {
		e.TicketID = closed.TicketID
	}
	l.publish(ctx, e, durable)

	return &Outcome{Group: g, SubQuery: snapshotSub(g, sq.ID), Ticket: closed, Message: msg, Durable: durable}, nil
}

// Update applies a PATCH. A status change is routed to the transition that
// produces it; the descriptive fields are then updated in place.
func (l *Lifecycle) Update(ctx context.Context, actor domain.Actor, in UpdateInput) (*Outcome, error) {
	if strings.TrimSpace(in.QueryID) == "" {
		return nil, apperrors.NewValidationError("queryId is required", nil)
	}
	if in.Priority != nil && !in.Priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": *in.Priority})
	}
	if in.MarkedForTeam != nil && !in.MarkedForTeam.ValidTarget() {
		return nil, apperrors.NewValidationError("invalid markedForTeam", map[string]any{"markedForTeam": *in.MarkedForTeam})
	}
	if in.Status != nil && !in.Status.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": *in.Status})
	}

	var out *Outcome
	if in.Status != nil {
		action := ActionInput{
			QueryID:    in.QueryID,
			SubQueryID: in.SubQueryID,
			Remark:     in.Remark,
			WholeGroup: !in.Individual,
		}
		var err error
		switch *in.Status {
		case domain.QueryStatusResolved:
			action.Action = domain.ActionRespond
			out, err = l.Resolve(ctx, actor, action)
		case domain.QueryStatusPending:
			out, err = l.Revert(ctx, actor, action)
		case domain.QueryStatusApproved:
			action.Action = domain.ActionApprove
			out, err = l.Propose(ctx, actor, action)
		case domain.QueryStatusDeferred:
			action.Action = domain.ActionDefer
			out, err = l.Propose(ctx, actor, action)
		case domain.QueryStatusOTC:
			action.Action = domain.ActionOTC
			out, err = l.Propose(ctx, actor, action)
		default:
			return nil, apperrors.NewInvalidTransition("", string(*in.Status))
		}
		if err != nil {
			return nil, err
		}
	}

	if in.Priority == nil && in.MarkedForTeam == nil && in.CustomerName == nil && in.Branch == nil {
		if out == nil {
			return nil, apperrors.NewValidationError("nothing to update", nil)
		}
		return out, nil
	}
	return l.updateFields(ctx, actor, in)
}

func (l *Lifecycle) updateFields(ctx context.Context, actor domain.Actor, in UpdateInput) (*Outcome, error) {
	unlock := l.queries.Lock(in.QueryID)
	defer unlock()

	g, err := l.queries.Get(ctx, in.QueryID)
	if err != nil {
		return nil, err
	}

	changes := make([]string, 0, 4)
	if in.Priority != nil && *in.Priority != g.Priority {
		changes = append(changes, fmt.Sprintf("priority %s to %s", g.Priority, *in.Priority))
		g.Priority = *in.Priority
	}
	if in.MarkedForTeam != nil && *in.MarkedForTeam != g.MarkedForTeam {
		changes = append(changes, fmt.Sprintf("team %s to %s", g.MarkedForTeam, *in.MarkedForTeam))
		g.MarkedForTeam = *in.MarkedForTeam
	}
	if in.CustomerName != nil && strings.TrimSpace(*in.CustomerName) != g.CustomerName {
		g.CustomerName = strings.TrimSpace(*in.CustomerName)
		changes = append(changes, "customer name")
	}
	if in.Branch != nil && strings.TrimSpace(*in.Branch) != g.Branch {
		g.Branch = strings.TrimSpace(*in.Branch)
		changes = append(changes, "branch")
	}
	if len(changes) == 0 {
		return &Outcome{Group: g, Durable: true}, nil
	}
	g.UpdatedAt = l.now().UTC()

	durable, err := l.queries.Save(ctx, g)
	if err != nil {
		return nil, err
	}

	body := "Updated " + strings.Join(changes, ", ")
	msg := l.systemMessage(ctx, g, actor, "", body, nil)

	e := events.FromGroup(g, events.ActionUpdated)
	e.Message = body
	e.Sender = actor.Name
	l.publish(ctx, e, durable)

	return &Outcome{Group: g, Message: msg, Durable: durable}, nil
}

// PostMessage appends a chat message to a query thread.
func (l *Lifecycle) PostMessage(ctx context.Context, actor domain.Actor, queryID, body string) (*domain.Message, error) {
	body = strings.TrimSpace(body)
	if strings.TrimSpace(queryID) == "" || body == "" {
		return nil, apperrors.NewValidationError("queryId and message are required", nil)
	}
	g, err := l.queries.Get(ctx, queryID)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ID:         uuid.NewString(),
		QueryID:    g.ID,
		Body:       body,
		Sender:     actor.Name,
		SenderRole: actor.Role,
		Team:       actor.Team,
		Timestamp:  l.now().UTC(),
	}
	durable := l.appendMessage(ctx, msg)

	e := events.FromGroup(g, events.ActionUpdated)
	e.ID = msg.ID
	e.Message = body
	e.Sender = actor.Name
	e.Timestamp = msg.Timestamp
	l.publish(ctx, e, durable)
	return msg, nil
}

// Get returns one query group.
func (l *Lifecycle) Get(ctx context.Context, id string) (*domain.QueryGroup, error) {
	return l.queries.Get(ctx, id)
}

// List returns query groups matching filter.
func (l *Lifecycle) List(ctx context.Context, filter repository.QueryFilter) ([]domain.QueryGroup, error) {
	return l.queries.List(ctx, filter)
}

// Stats aggregates dashboard counters.
func (l *Lifecycle) Stats(ctx context.Context, filter repository.QueryFilter) (domain.QueryStats, error) {
	return l.queries.Stats(ctx, filter, l.now())
}

// History returns a query's thread ascending by timestamp. Actions are the
// system messages, messages are everything people wrote.
func (l *Lifecycle) History(ctx context.Context, queryID string, kind HistoryKind) ([]domain.Message, error) {
	if strings.TrimSpace(queryID) == "" {
		return nil, apperrors.NewValidationError("queryId is required", nil)
	}
	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	all, err := l.messages.ListByQuery(cctx, queryID)
	if err != nil {
		return nil, apperrors.NewUpstreamUnavailable(err)
	}
	if kind == HistoryAll {
		return all, nil
	}
	out := make([]domain.Message, 0, len(all))
	for _, m := range all {
		if m.IsSystemMessage == (kind == HistoryActions) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (l *Lifecycle) load(ctx context.Context, queryID, subQueryID string) (*domain.QueryGroup, *domain.SubQuery, error) {
	g, err := l.queries.Get(ctx, queryID)
	if err != nil {
		return nil, nil, err
	}
	sq, ok := g.SubQuery(subQueryID)
	if !ok {
		return nil, nil, apperrors.NewNotFound("sub-query", map[string]any{"queryId": queryID, "subQueryId": subQueryID})
	}
	return g, sq, nil
}

func (l *Lifecycle) systemMessage(ctx context.Context, g *domain.QueryGroup, actor domain.Actor, action domain.ActionType, body string, meta map[string]any) *domain.Message {
	msg := &domain.Message{
		ID:              uuid.NewString(),
		QueryID:         g.ID,
		Body:            body,
		Sender:          actor.Name,
		SenderRole:      actor.Role,
		Team:            actor.Team,
		Timestamp:       l.now().UTC(),
		IsSystemMessage: true,
		ActionType:      action,
		Metadata:        meta,
	}
	l.appendMessage(ctx, msg)
	return msg
}

func (l *Lifecycle) appendMessage(ctx context.Context, msg *domain.Message) bool {
	if l.messages == nil {
		return false
	}
	cctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.messages.Append(cctx, msg); err != nil {
		l.logger.Warn("append message failed",
			zap.String("query_id", msg.QueryID),
			zap.String("message_id", msg.ID),
			zap.Error(err))
		l.metrics.RecordStoreFallback("message_append")
		return false
	}
	return true
}

func (l *Lifecycle) publish(ctx context.Context, e events.UpdateEvent, durable bool) {
	if l.publisher == nil {
		return
	}
	e.BestEffort = !durable
	if err := l.publisher.Publish(ctx, e); err != nil {
		l.logger.Warn("broadcast failure", zap.String("query_id", e.QueryID), zap.Error(err))
	}
}

func requireTarget(in ActionInput) error {
	if strings.TrimSpace(in.QueryID) == "" || strings.TrimSpace(in.SubQueryID) == "" {
		return apperrors.NewValidationError("queryId and subQueryId are required", nil)
	}
	return nil
}

func clearProposal(sq *domain.SubQuery) {
	sq.ProposedAction = ""
	sq.ProposedBy = ""
	sq.ProposedAt = nil
	sq.TicketID = ""
}

func snapshotSub(g *domain.QueryGroup, id string) *domain.SubQuery {
	sq, _ := g.Clone().SubQuery(id)
	return sq
}
