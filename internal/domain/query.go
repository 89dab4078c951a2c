package domain

import "time"

// QueryStatus enumerates lifecycle states for sub-queries and groups.
type QueryStatus string

const (
	QueryStatusPending            QueryStatus = "pending"
	QueryStatusWaitingForApproval QueryStatus = "waiting-for-approval"
	QueryStatusApproved           QueryStatus = "approved"
	QueryStatusDeferred           QueryStatus = "deferred"
	QueryStatusOTC                QueryStatus = "otc"
	QueryStatusResolved           QueryStatus = "resolved"
)

// Valid reports whether s is a known status.
func (s QueryStatus) Valid() bool {
	switch s {
	case QueryStatusPending, QueryStatusWaitingForApproval, QueryStatusApproved,
		QueryStatusDeferred, QueryStatusOTC, QueryStatusResolved:
		return true
	}
	return false
}

// IsTerminal reports whether no transition other than revert leaves s.
func (s QueryStatus) IsTerminal() bool {
	switch s {
	case QueryStatusApproved, QueryStatusDeferred, QueryStatusOTC, QueryStatusResolved:
		return true
	}
	return false
}

// Revertable reports whether a revert may return s to pending.
func (s QueryStatus) Revertable() bool {
	switch s {
	case QueryStatusWaitingForApproval, QueryStatusApproved, QueryStatusDeferred, QueryStatusOTC:
		return true
	}
	return false
}

// Priority enumerates query urgency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// IsUrgent reports whether p counts toward dashboard urgent counters.
func (p Priority) IsUrgent() bool {
	return p == PriorityHigh || p == PriorityUrgent
}

// SubQuery is one individually resolvable question within a group.
type SubQuery struct {
	ID       string      `json:"id"`
	Text     string      `json:"text"`
	Status   QueryStatus `json:"status"`
	Sequence int         `json:"sequence"`

	ProposedAction ActionType `json:"proposedAction,omitempty"`
	ProposedBy     string     `json:"proposedBy,omitempty"`
	ProposedAt     *time.Time `json:"proposedAt,omitempty"`
	TicketID       string     `json:"ticketId,omitempty"`

	ResolvedAt       *time.Time `json:"resolvedAt,omitempty"`
	ResolvedBy       string     `json:"resolvedBy,omitempty"`
	ResolutionReason string     `json:"resolutionReason,omitempty"`

	ApprovedBy string     `json:"approvedBy,omitempty"`
	ApprovedAt *time.Time `json:"approvedAt,omitempty"`

	RevertedAt   *time.Time `json:"revertedAt,omitempty"`
	RevertedBy   string     `json:"revertedBy,omitempty"`
	RevertReason string     `json:"revertReason,omitempty"`
}

// QueryGroup is the aggregate submitted against one application number.
type QueryGroup struct {
	ID            string
	ApplicationNo string
	CustomerName  string
	Branch        string
	Team          Team
	MarkedForTeam Team
	Status        QueryStatus
	Priority      Priority
	CreatedBy     string
	CreatedAt     time.Time
	SubmittedAt   time.Time
	UpdatedAt     time.Time
	SubQueries    []SubQuery

	ResolvedAt       *time.Time
	ResolvedBy       string
	ResolutionReason string

	ApprovedBy     string
	ApprovedAt     *time.Time
	ApprovalStatus ApprovalStatus

	RevertedAt   *time.Time
	RevertedBy   string
	RevertReason string
}

// SubQuery returns a pointer into g.SubQueries for the given id.
func (g *QueryGroup) SubQuery(id string) (*SubQuery, bool) {
	for i := range g.SubQueries {
		if g.SubQueries[i].ID == id {
			return &g.SubQueries[i], true
		}
	}
	return nil, false
}

// AllTerminal reports whether every sub-query is terminal.
func (g *QueryGroup) AllTerminal() bool {
	if len(g.SubQueries) == 0 {
		return false
	}
	for _, sq := range g.SubQueries {
		if !sq.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of g.
func (g *QueryGroup) Clone() *QueryGroup {
	if g == nil {
		return nil
	}
	cp := *g
	cp.SubQueries = make([]SubQuery, len(g.SubQueries))
	for i, sq := range g.SubQueries {
		sq.ProposedAt = cloneTime(sq.ProposedAt)
		sq.ResolvedAt = cloneTime(sq.ResolvedAt)
		sq.ApprovedAt = cloneTime(sq.ApprovedAt)
		sq.RevertedAt = cloneTime(sq.RevertedAt)
		cp.SubQueries[i] = sq
	}
	cp.ResolvedAt = cloneTime(g.ResolvedAt)
	cp.ApprovedAt = cloneTime(g.ApprovedAt)
	cp.RevertedAt = cloneTime(g.RevertedAt)
	return &cp
}

// QueryStats is the dashboard aggregate for query groups.
type QueryStats struct {
	Total         int
	Pending       int
	Resolved      int
	Urgent        int
	TodaysQueries int
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
