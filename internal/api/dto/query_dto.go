package dto

import (
	"time"

	"github.com/spec-kit/loan-query-service/internal/domain"
)

// CreateQueryRequest payload.
type CreateQueryRequest struct {
	ApplicationNo string          `json:"applicationNo"`
	CustomerName  string          `json:"customerName"`
	Branch        string          `json:"branch"`
	QueryTexts    []string        `json:"queryTexts"`
	TargetTeam    domain.Team     `json:"targetTeam"`
	Priority      domain.Priority `json:"priority"`
}

// UpdateQueryRequest routes to a group-level or sub-query-level update.
type UpdateQueryRequest struct {
	QueryID           string              `json:"queryId"`
	IsIndividualQuery bool                `json:"isIndividualQuery"`
	SubQueryID        string              `json:"subQueryId"`
	Status            *domain.QueryStatus `json:"status"`
	Remarks           string              `json:"remarks"`
	Priority          *domain.Priority    `json:"priority"`
	MarkedForTeam     *domain.Team        `json:"markedForTeam"`
	CustomerName      *string             `json:"customerName"`
	Branch            *string             `json:"branch"`
}

// QueryGroupResponse is the wire form of a query group.
type QueryGroupResponse struct {
	ID               string                `json:"id"`
	ApplicationNo    string                `json:"applicationNo"`
	CustomerName     string                `json:"customerName"`
	Branch           string                `json:"branch"`
	Team             domain.Team           `json:"team"`
	MarkedForTeam    domain.Team           `json:"markedForTeam"`
	Status           domain.QueryStatus    `json:"status"`
	Priority         domain.Priority       `json:"priority"`
	CreatedBy        string                `json:"createdBy"`
	CreatedAt        time.Time             `json:"createdAt"`
	SubmittedAt      time.Time             `json:"submittedAt"`
	UpdatedAt        time.Time             `json:"updatedAt"`
	SubQueries       []domain.SubQuery     `json:"queries"`
	ResolvedAt       *time.Time            `json:"resolvedAt,omitempty"`
	ResolvedBy       string                `json:"resolvedBy,omitempty"`
	ResolutionReason string                `json:"resolutionReason,omitempty"`
	ApprovedBy       string                `json:"approvedBy,omitempty"`
	ApprovedAt       *time.Time            `json:"approvedAt,omitempty"`
	ApprovalStatus   domain.ApprovalStatus `json:"approvalStatus,omitempty"`
	RevertedAt       *time.Time            `json:"revertedAt,omitempty"`
	RevertedBy       string                `json:"revertedBy,omitempty"`
	RevertReason     string                `json:"revertReason,omitempty"`
}

// QueryStatsResponse feeds dashboard counters.
type QueryStatsResponse struct {
	Total         int `json:"total"`
	Pending       int `json:"pending"`
	Resolved      int `json:"resolved"`
	Urgent        int `json:"urgent"`
	TodaysQueries int `json:"todaysQueries"`
}

// NewQueryGroupResponse maps a domain group.
func NewQueryGroupResponse(g *domain.QueryGroup) QueryGroupResponse {
	subs := g.SubQueries
	if subs == nil {
		subs = []domain.SubQuery{}
	}
	return QueryGroupResponse{
		ID:               g.ID,
		ApplicationNo:    g.ApplicationNo,
		CustomerName:     g.CustomerName,
		Branch:           g.Branch,
		Team:             g.Team,
		MarkedForTeam:    g.MarkedForTeam,
		Status:           g.Status,
		Priority:         g.Priority,
		CreatedBy:        g.CreatedBy,
		CreatedAt:        g.CreatedAt,
		SubmittedAt:      g.SubmittedAt,
		UpdatedAt:        g.UpdatedAt,
		SubQueries:       subs,
		ResolvedAt:       g.ResolvedAt,
		ResolvedBy:       g.ResolvedBy,
		ResolutionReason: g.ResolutionReason,
		ApprovedBy:       g.ApprovedBy,
		ApprovedAt:       g.ApprovedAt,
		ApprovalStatus:   g.ApprovalStatus,
		RevertedAt:       g.RevertedAt,
		RevertedBy:       g.RevertedBy,
		RevertReason:     g.RevertReason,
	}
}

// NewQueryStatsResponse maps domain stats.
func NewQueryStatsResponse(s domain.QueryStats) QueryStatsResponse {
	return QueryStatsResponse{
		Total:         s.Total,
		Pending:       s.Pending,
		Resolved:      s.Resolved,
		Urgent:        s.Urgent,
		TodaysQueries: s.TodaysQueries,
	}
}
