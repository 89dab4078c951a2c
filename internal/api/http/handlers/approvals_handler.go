package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/loan-query-service/internal/api/dto"
	"github.com/spec-kit/loan-query-service/internal/domain"
	"github.com/spec-kit/loan-query-service/internal/repository"
	"github.com/spec-kit/loan-query-service/internal/service"
	apperrors "github.com/spec-kit/loan-query-service/pkg/util/errorutil"
)

const maxDecisionBatch = 100

// ApprovalsHandler serves the approval team's ticket endpoints.
type ApprovalsHandler struct {
	lifecycle *service.Lifecycle
	registry  *service.ApprovalRegistry
}

// NewApprovalsHandler constructs handler.
func NewApprovalsHandler(lifecycle *service.Lifecycle, registry *service.ApprovalRegistry) *ApprovalsHandler {
	return &ApprovalsHandler{lifecycle: lifecycle, registry: registry}
}

// Decide POST /approvals. Each ticket is decided independently; one failure
// does not stop the rest of the batch.
func (h *ApprovalsHandler) Decide(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.ApprovalDecisionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	var approve bool
	switch req.Action {
	case "approve":
		approve = true
	case "reject":
	default:
		return apperrors.NewValidationError("action must be approve or reject", map[string]any{"action": req.Action})
	}
	if len(req.RequestIDs) == 0 {
		return apperrors.NewValidationError("requestIds is required", nil)
	}
	if len(req.RequestIDs) > maxDecisionBatch {
		return apperrors.NewValidationError("too many requestIds", map[string]any{"max": maxDecisionBatch})
	}

	results := make([]dto.ApprovalDecisionResult, 0, len(req.RequestIDs))
	for _, id := range req.RequestIDs {
		out, err := h.lifecycle.Decide(c.UserContext(), actor, service.DecisionInput{
			TicketID:       id,
			Approve:        approve,
			Comment:        req.Comment,
			ApproverName:   req.ApproverName,
			SpecificAction: req.SpecificAction,
		})
		if err != nil {
			de := apperrors.ToDomainError(err)
			results = append(results, dto.ApprovalDecisionResult{
				TicketID: id,
				Error:    &dto.ErrorBody{Code: de.Code, Message: de.Message, Details: de.Details},
			})
			continue
		}
		result := dto.ApprovalDecisionResult{TicketID: id, Success: true}
		if out.SubQuery != nil {
			result.Status = out.SubQuery.Status
		}
		group := dto.NewQueryGroupResponse(out.Group)
		result.Query = &group
		results = append(results, result)
	}
	return c.JSON(fiber.Map{"data": results})
}

// ListApprovals GET /approvals?type=pending|history|all&status&priority&team.
func (h *ApprovalsHandler) ListApprovals(c *fiber.Ctx) error {
	if _, err := actorFrom(c); err != nil {
		return err
	}
	filter := repository.ApprovalFilter{}
	for _, s := range splitList(c.Query("status")) {
		status := domain.ApprovalStatus(s)
		if !status.Valid() {
			return apperrors.NewValidationError("invalid status", map[string]any{"status": s})
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	for _, p := range splitList(c.Query("priority")) {
		priority := domain.Priority(p)
		if !priority.Valid() {
			return apperrors.NewValidationError("invalid priority", map[string]any{"priority": p})
		}
		filter.Priorities = append(filter.Priorities, priority)
	}
	var team *domain.Team
	if raw := c.Query("team"); raw != "" {
		t, err := parseTeamParam(raw, "")
		if err != nil {
			return err
		}
		team = &t
		filter.Team = team
	}
	limit, err := parseLimit(c.Query("limit"), 100, 500)
	if err != nil {
		return err
	}
	filter.Limit = limit

	var tickets []domain.ApprovalRequest
	switch c.Query("type", "pending") {
	case "pending":
		tickets, err = h.registry.ListOpen(c.UserContext(), filter)
	case "history":
		if len(filter.Statuses) == 0 {
			filter.Statuses = []domain.ApprovalStatus{domain.ApprovalStatusApproved, domain.ApprovalStatusRejected}
		}
		tickets, err = h.registry.List(c.UserContext(), filter)
	case "all":
		tickets, err = h.registry.List(c.UserContext(), filter)
	default:
		return apperrors.NewValidationError("invalid type", map[string]any{"type": c.Query("type")})
	}
	if err != nil {
		return err
	}

	stats, err := h.registry.Stats(c.UserContext(), team)
	if err != nil {
		return err
	}

	items := make([]dto.ApprovalTicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewApprovalTicketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"tickets": items,
		"stats":   dto.NewApprovalStatsResponse(stats),
	}})
}
