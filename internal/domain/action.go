package domain

// ActionType enumerates what a team can do to a sub-query.
type ActionType string

const (
	ActionApprove ActionType = "approve"
	ActionDefer   ActionType = "defer"
	ActionOTC     ActionType = "otc"

	ActionAssignToBranch ActionType = "assign-to-branch"
	ActionRespond        ActionType = "respond"
	ActionEscalate       ActionType = "escalate"

	ActionRevert ActionType = "revert"
)

// RequiresApproval reports whether a must be escalated to the approval team.
func (a ActionType) RequiresApproval() bool {
	return a == ActionApprove || a == ActionDefer || a == ActionOTC
}

// IsDirect reports whether a resolves a sub-query without escalation.
func (a ActionType) IsDirect() bool {
	return a == ActionAssignToBranch || a == ActionRespond || a == ActionEscalate
}

// ApprovedStatus is the status a sub-query takes when a proposal of a is approved.
func (a ActionType) ApprovedStatus() (QueryStatus, bool) {
	switch a {
	case ActionApprove:
		return QueryStatusApproved, true
	case ActionDefer:
		return QueryStatusDeferred, true
	case ActionOTC:
		return QueryStatusOTC, true
	}
	return "", false
}
