package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/loan-query-service/internal/api/dto"
	"github.com/spec-kit/loan-query-service/internal/domain"
	"github.com/spec-kit/loan-query-service/internal/service"
	apperrors "github.com/spec-kit/loan-query-service/pkg/util/errorutil"
)

// QueryActionsHandler serves team actions and query threads.
type QueryActionsHandler struct {
	lifecycle *service.Lifecycle
}

// NewQueryActionsHandler constructs handler.
func NewQueryActionsHandler(lifecycle *service.Lifecycle) *QueryActionsHandler {
	return &QueryActionsHandler{lifecycle: lifecycle}
}

// PostAction POST /query-actions.
func (h *QueryActionsHandler) PostAction(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.QueryActionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	if req.Type == dto.ActionTypeMessage {
		msg, err := h.lifecycle.PostMessage(c.UserContext(), actor, req.QueryID, req.Message)
		if err != nil {
			return err
		}
		return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewMessageResponse(msg)})
	}

	in := service.ActionInput{
		QueryID:    req.QueryID,
		SubQueryID: req.SubQueryID,
		Action:     req.Action,
		Remark:     req.Remarks,
		WholeGroup: req.WholeGroup,
	}
	var out *service.Outcome
	switch req.Type {
	case dto.ActionTypeRevert:
		in.Action = domain.ActionRevert
		out, err = h.lifecycle.Revert(c.UserContext(), actor, in)
	case dto.ActionTypeAction, "":
		out, err = h.lifecycle.Apply(c.UserContext(), actor, in)
	default:
		return apperrors.NewValidationError("invalid type", map[string]any{"type": req.Type})
	}
	if err != nil {
		return err
	}

	resp := dto.QueryActionResponse{
		QueryID: out.Group.ID,
		Status:  out.Group.Status,
		Durable: out.Durable,
	}
	group := dto.NewQueryGroupResponse(out.Group)
	resp.Group = &group
	if out.SubQuery != nil {
		resp.SubQueryID = out.SubQuery.ID
		resp.Status = out.SubQuery.Status
	}
	if out.Ticket != nil {
		resp.TicketID = out.Ticket.TicketID
	}
	if out.Message != nil {
		msg := dto.NewMessageResponse(out.Message)
		resp.Message = &msg
	}

	status := http.StatusOK
	if out.Ticket != nil && out.Ticket.IsOpen() {
		status = http.StatusAccepted
	}
	return c.Status(status).JSON(fiber.Map{"data": resp})
}

// ListActions GET /query-actions?queryId&type=actions|messages.
func (h *QueryActionsHandler) ListActions(c *fiber.Ctx) error {
	if _, err := actorFrom(c); err != nil {
		return err
	}
	var kind service.HistoryKind
	switch c.Query("type") {
	case "", "all":
		kind = service.HistoryAll
	case "actions":
		kind = service.HistoryActions
	case "messages":
		kind = service.HistoryMessages
	default:
		return apperrors.NewValidationError("invalid type", map[string]any{"type": c.Query("type")})
	}

	msgs, err := h.lifecycle.History(c.UserContext(), c.Query("queryId"), kind)
	if err != nil {
		return err
	}
	items := make([]dto.MessageResponse, 0, len(msgs))
	for i := range msgs {
		items = append(items, dto.NewMessageResponse(&msgs[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}
