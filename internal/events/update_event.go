package events

import (
	"time"

	"github.com/spec-kit/loan-query-service/internal/domain"
)

// Action tags what happened to a query.
type Action string

const (
	ActionCreated         Action = "created"
	ActionUpdated         Action = "updated"
	ActionApproved        Action = "approved"
	ActionResolved        Action = "resolved"
	ActionPendingApproval Action = "pending-approval"
)

// Valid reports whether a is a known action tag.
func (a Action) Valid() bool {
	switch a {
	case ActionCreated, ActionUpdated, ActionApproved, ActionResolved, ActionPendingApproval:
		return true
	}
	return false
}

// UpdateEvent is the payload broadcast on every state change.
type UpdateEvent struct {
	ID              string             `json:"id"`
	QueryID         string             `json:"queryId"`
	AppNo           string             `json:"appNo"`
	SubQueryID      string             `json:"subQueryId,omitempty"`
	Status          domain.QueryStatus `json:"status"`
	Action          Action             `json:"action"`
	Priority        domain.Priority    `json:"priority"`
	Team            domain.Team        `json:"team"`
	MarkedForTeam   domain.Team        `json:"markedForTeam"`
	TicketID        string             `json:"ticketId,omitempty"`
	Message         string             `json:"message,omitempty"`
	Sender          string             `json:"sender,omitempty"`
	Timestamp       time.Time          `json:"timestamp"`
	ResolvedBy      string             `json:"resolvedBy,omitempty"`
	ApproverComment string             `json:"approverComment,omitempty"`
	// BestEffort marks events whose write only reached the in-memory fallback.
	BestEffort bool `json:"bestEffort,omitempty"`

	// Origin identifies the publishing process for relay echo suppression.
	Origin string `json:"origin,omitempty"`
	// Cursor is the event's position in the update log, when read from it.
	Cursor string `json:"cursor,omitempty"`
}

// FromGroup fills the routing fields of an event from a query group.
func FromGroup(g *domain.QueryGroup, action Action) UpdateEvent {
	return UpdateEvent{
		QueryID:       g.ID,
		AppNo:         g.ApplicationNo,
		Status:        g.Status,
		Action:        action,
		Priority:      g.Priority,
		Team:          g.Team,
		MarkedForTeam: g.MarkedForTeam,
		ResolvedBy:    g.ResolvedBy,
	}
}
