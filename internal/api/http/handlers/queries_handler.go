package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/loan-query-service/internal/api/dto"
	"github.com/spec-kit/loan-query-service/internal/domain"
	"github.com/spec-kit/loan-query-service/internal/repository"
	"github.com/spec-kit/loan-query-service/internal/service"
	apperrors "github.com/spec-kit/loan-query-service/pkg/util/errorutil"
)

// QueriesHandler serves the query group endpoints.
type QueriesHandler struct {
	lifecycle *service.Lifecycle
}

// NewQueriesHandler constructs handler.
func NewQueriesHandler(lifecycle *service.Lifecycle) *QueriesHandler {
	return &QueriesHandler{lifecycle: lifecycle}
}

// CreateQuery POST /queries.
func (h *QueriesHandler) CreateQuery(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateQueryRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	out, err := h.lifecycle.Create(c.UserContext(), actor, service.CreateInput{
		ApplicationNo: req.ApplicationNo,
		CustomerName:  req.CustomerName,
		Branch:        req.Branch,
		QueryTexts:    req.QueryTexts,
		TargetTeam:    req.TargetTeam,
		Priority:      req.Priority,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data":    dto.NewQueryGroupResponse(out.Group),
		"durable": out.Durable,
	})
}

// ListQueries GET /queries. With stats=true only the aggregate counters are returned.
func (h *QueriesHandler) ListQueries(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	filter, err := parseQueryFilter(c, actor)
	if err != nil {
		return err
	}

	if c.QueryBool("stats") {
		stats, err := h.lifecycle.Stats(c.UserContext(), filter)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"data": dto.NewQueryStatsResponse(stats)})
	}

	groups, err := h.lifecycle.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.QueryGroupResponse, 0, len(groups))
	for i := range groups {
		items = append(items, dto.NewQueryGroupResponse(&groups[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetQuery GET /queries/:id.
func (h *QueriesHandler) GetQuery(c *fiber.Ctx) error {
	if _, err := actorFrom(c); err != nil {
		return err
	}
	g, err := h.lifecycle.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewQueryGroupResponse(g)})
}

// UpdateQuery PATCH /queries.
func (h *QueriesHandler) UpdateQuery(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.UpdateQueryRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.IsIndividualQuery && req.SubQueryID == "" {
		return apperrors.NewValidationError("subQueryId is required for an individual update", nil)
	}

	out, err := h.lifecycle.Update(c.UserContext(), actor, service.UpdateInput{
		QueryID:       req.QueryID,
		SubQueryID:    req.SubQueryID,
		Individual:    req.IsIndividualQuery,
		Status:        req.Status,
		Remark:        req.Remarks,
		Priority:      req.Priority,
		MarkedForTeam: req.MarkedForTeam,
		CustomerName:  req.CustomerName,
		Branch:        req.Branch,
	})
	if err != nil {
		return err
	}
	resp := fiber.Map{
		"data":    dto.NewQueryGroupResponse(out.Group),
		"durable": out.Durable,
	}
	if out.Ticket != nil {
		resp["ticketId"] = out.Ticket.TicketID
	}
	return c.JSON(resp)
}

func parseQueryFilter(c *fiber.Ctx, actor domain.Actor) (repository.QueryFilter, error) {
	filter := repository.QueryFilter{}
	for _, s := range splitList(c.Query("status")) {
		status := domain.QueryStatus(s)
		if !status.Valid() {
			return filter, apperrors.NewValidationError("invalid status", map[string]any{"status": s})
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	for _, p := range splitList(c.Query("priority")) {
		priority := domain.Priority(p)
		if !priority.Valid() {
			return filter, apperrors.NewValidationError("invalid priority", map[string]any{"priority": p})
		}
		filter.Priorities = append(filter.Priorities, priority)
	}
	team, err := parseTeamParam(c.Query("team"), actor.Team)
	if err != nil {
		return filter, err
	}
	filter.Team = &team
	if appNo := c.Query("appNo"); appNo != "" {
		filter.ApplicationNo = &appNo
	}
	limit, err := parseLimit(c.Query("limit"), 50, 500)
	if err != nil {
		return filter, err
	}
	filter.Limit = limit
	filter.Offset = c.QueryInt("offset", 0)
	return filter, nil
}
