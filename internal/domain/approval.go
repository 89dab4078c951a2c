package domain

import "time"

// ApprovalStatus tracks an approval request.
type ApprovalStatus string

const (
	ApprovalStatusPending  ApprovalStatus = "pending"
	ApprovalStatusApproved ApprovalStatus = "approved"
	ApprovalStatusRejected ApprovalStatus = "rejected"
)

// Valid reports whether s is a known approval status.
func (s ApprovalStatus) Valid() bool {
	return s == ApprovalStatusPending || s == ApprovalStatusApproved || s == ApprovalStatusRejected
}

// ApprovalRequest escalates one sub-query's proposed action to the approval team.
type ApprovalRequest struct {
	TicketID       string
	QueryID        string
	SubQueryID     string
	ApplicationNo  string
	CustomerName   string
	Team           Team
	Priority       Priority
	ProposedAction ActionType
	RequestedBy    string
	RequesterTeam  Team
	Status         ApprovalStatus
	SubmittedAt    time.Time
	Remark         string

	ApprovedBy      string
	DecidedAt       *time.Time
	ApproverComment string
}

// IsOpen reports whether the request still awaits a decision.
func (a *ApprovalRequest) IsOpen() bool {
	return a.Status == ApprovalStatusPending
}

// Clone returns a copy safe to hand out of a registry.
func (a *ApprovalRequest) Clone() *ApprovalRequest {
	if a == nil {
		return nil
	}
	cp := *a
	cp.DecidedAt = cloneTime(a.DecidedAt)
	return &cp
}

// ApprovalStats feeds the approval dashboard counters.
type ApprovalStats struct {
	PendingCount  int
	UrgentCount   int
	ApprovedToday int
	SLACompliance float64
}
