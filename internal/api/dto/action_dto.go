package dto

import (
	"time"

	"github.com/spec-kit/loan-query-service/internal/domain"
)

// Query action request types.
const (
	ActionTypeAction  = "action"
	ActionTypeMessage = "message"
	ActionTypeRevert  = "revert"
)

// QueryActionRequest invokes a lifecycle transition or posts a message.
type QueryActionRequest struct {
	Type       string            `json:"type"`
	QueryID    string            `json:"queryId"`
	SubQueryID string            `json:"subQueryId"`
	Action     domain.ActionType `json:"action"`
	Remarks    string            `json:"remarks"`
	WholeGroup bool              `json:"wholeGroup"`
	Message    string            `json:"message"`
}

// QueryActionResponse reports the result of a transition.
type QueryActionResponse struct {
	QueryID    string              `json:"queryId"`
	SubQueryID string              `json:"subQueryId,omitempty"`
	Status     domain.QueryStatus  `json:"status"`
	TicketID   string              `json:"ticketId,omitempty"`
	Durable    bool                `json:"durable"`
	Group      *QueryGroupResponse `json:"query,omitempty"`
	Message    *MessageResponse    `json:"message,omitempty"`
}

// MessageResponse is one thread entry.
type MessageResponse struct {
	ID              string            `json:"id"`
	QueryID         string            `json:"queryId"`
	Body            string            `json:"message"`
	Sender          string            `json:"sender"`
	SenderRole      string            `json:"senderRole,omitempty"`
	Team            domain.Team       `json:"team"`
	Timestamp       time.Time         `json:"timestamp"`
	IsSystemMessage bool              `json:"isSystemMessage"`
	ActionType      domain.ActionType `json:"actionType,omitempty"`
	Metadata        map[string]any    `json:"metadata,omitempty"`
}

// NewMessageResponse maps a domain message.
func NewMessageResponse(m *domain.Message) MessageResponse {
	return MessageResponse{
		ID:              m.ID,
		QueryID:         m.QueryID,
		Body:            m.Body,
		Sender:          m.Sender,
		SenderRole:      m.SenderRole,
		Team:            m.Team,
		Timestamp:       m.Timestamp,
		IsSystemMessage: m.IsSystemMessage,
		ActionType:      m.ActionType,
		Metadata:        m.Metadata,
	}
}
