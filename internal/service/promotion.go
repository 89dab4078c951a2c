package service

import (
	"time"

	"github.com/spec-kit/loan-query-service/internal/domain"
)

type transition struct {
	by       string
	at       time.Time
	approved bool
	reason   string
}

// derive recomputes the group's status from its sub-queries after t.
//
// All children terminal: the group takes their shared status, or resolved
// when they disagree. All children in one non-terminal status: the group
// mirrors it. Anything else leaves the group pending.
func derive(g *domain.QueryGroup, t transition) {
	g.UpdatedAt = t.at

	if g.AllTerminal() {
		g.Status = sharedStatus(g.SubQueries, domain.QueryStatusResolved)
		at := t.at
		g.ResolvedAt = &at
		g.ResolvedBy = t.by
		g.ResolutionReason = t.reason
		if t.approved {
			g.ApprovedBy = t.by
			g.ApprovedAt = &at
			g.ApprovalStatus = domain.ApprovalStatusApproved
		}
		return
	}

	g.Status = sharedStatus(g.SubQueries, domain.QueryStatusPending)
	g.ResolvedAt = nil
	g.ResolvedBy = ""
	g.ResolutionReason = ""
	g.ApprovedBy = ""
	g.ApprovedAt = nil
	g.ApprovalStatus = ""
	if g.Status == domain.QueryStatusWaitingForApproval {
		g.ApprovalStatus = domain.ApprovalStatusPending
	}
}

func sharedStatus(subs []domain.SubQuery, fallback domain.QueryStatus) domain.QueryStatus {
	if len(subs) == 0 {
		return fallback
	}
	first := subs[0].Status
	for _, sq := range subs[1:] {
		if sq.Status != first {
			return fallback
		}
	}
	return first
}
