package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/loan-query-service/internal/dashboard"
	"github.com/spec-kit/loan-query-service/internal/events"
	apperrors "github.com/spec-kit/loan-query-service/pkg/util/errorutil"
)

// UpdatesHandler exposes the update log to polling dashboards.
type UpdatesHandler struct {
	log events.UpdateLog
}

// NewUpdatesHandler constructs handler.
func NewUpdatesHandler(log events.UpdateLog) *UpdatesHandler {
	return &UpdatesHandler{log: log}
}

// Poll GET /updates?team&since&limit.
func (h *UpdatesHandler) Poll(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	team, err := parseTeamParam(c.Query("team"), actor.Team)
	if err != nil {
		return err
	}
	limit, err := parseLimit(c.Query("limit"), 200, 1000)
	if err != nil {
		return err
	}

	page, err := dashboard.ReadLog(c.UserContext(), h.log, team, c.Query("since"), limit)
	if errors.Is(err, events.ErrInvalidCursor) {
		return apperrors.NewValidationError("invalid cursor", map[string]any{"since": c.Query("since")})
	}
	if err != nil {
		return apperrors.NewUpstreamUnavailable(err)
	}
	if page.Events == nil {
		page.Events = []events.UpdateEvent{}
	}
	return c.JSON(fiber.Map{"data": page})
}
