package dto

import (
	"time"

	"github.com/spec-kit/loan-query-service/internal/domain"
)

// ApprovalDecisionRequest closes one or more tickets.
type ApprovalDecisionRequest struct {
	Action         string            `json:"action"`
	RequestIDs     []string          `json:"requestIds"`
	Comment        string            `json:"comment"`
	ApproverName   string            `json:"approverName"`
	SpecificAction domain.ActionType `json:"specificAction"`
}

// ApprovalDecisionResult is the outcome for one ticket of a batch decision.
type ApprovalDecisionResult struct {
	TicketID string              `json:"ticketId"`
	Success  bool                `json:"success"`
	Status   domain.QueryStatus  `json:"status,omitempty"`
	Query    *QueryGroupResponse `json:"query,omitempty"`
	Error    *ErrorBody          `json:"error,omitempty"`
}

// ErrorBody mirrors the error envelope used by the error middleware.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ApprovalTicketResponse is the wire form of an approval request.
type ApprovalTicketResponse struct {
	TicketID        string                `json:"ticketId"`
	QueryID         string                `json:"queryId"`
	SubQueryID      string                `json:"subQueryId"`
	ApplicationNo   string                `json:"appNo"`
	CustomerName    string                `json:"customerName"`
	Team            domain.Team           `json:"team"`
	Priority        domain.Priority       `json:"priority"`
	ProposedAction  domain.ActionType     `json:"proposedAction"`
	RequestedBy     string                `json:"requestedBy"`
	RequesterTeam   domain.Team           `json:"requesterTeam"`
	Status          domain.ApprovalStatus `json:"status"`
	SubmittedAt     time.Time             `json:"submittedAt"`
	Remark          string                `json:"remark,omitempty"`
	ApprovedBy      string                `json:"approvedBy,omitempty"`
	DecidedAt       *time.Time            `json:"decidedAt,omitempty"`
	ApproverComment string                `json:"approverComment,omitempty"`
}

// ApprovalStatsResponse feeds the approval dashboard.
type ApprovalStatsResponse struct {
	PendingCount  int     `json:"pendingCount"`
	UrgentCount   int     `json:"urgentCount"`
	ApprovedToday int     `json:"approvedToday"`
	SLACompliance float64 `json:"slaCompliance"`
}

// NewApprovalTicketResponse maps a domain request.
func NewApprovalTicketResponse(a *domain.ApprovalRequest) ApprovalTicketResponse {
	return ApprovalTicketResponse{
		TicketID:        a.TicketID,
		QueryID:         a.QueryID,
		SubQueryID:      a.SubQueryID,
		ApplicationNo:   a.ApplicationNo,
		CustomerName:    a.CustomerName,
		Team:            a.Team,
		Priority:        a.Priority,
		ProposedAction:  a.ProposedAction,
		RequestedBy:     a.RequestedBy,
		RequesterTeam:   a.RequesterTeam,
		Status:          a.Status,
		SubmittedAt:     a.SubmittedAt,
		Remark:          a.Remark,
		ApprovedBy:      a.ApprovedBy,
		DecidedAt:       a.DecidedAt,
		ApproverComment: a.ApproverComment,
	}
}

// NewApprovalStatsResponse maps domain stats.
func NewApprovalStatsResponse(s domain.ApprovalStats) ApprovalStatsResponse {
	return ApprovalStatsResponse{
		PendingCount:  s.PendingCount,
		UrgentCount:   s.UrgentCount,
		ApprovedToday: s.ApprovedToday,
		SLACompliance: s.SLACompliance,
	}
}
