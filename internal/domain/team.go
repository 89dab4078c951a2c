package domain

import "strings"

// Team identifies a routing and authority domain.
type Team string

const (
	TeamOperations Team = "operations"
	TeamSales      Team = "sales"
	TeamCredit     Team = "credit"
	TeamApproval   Team = "approval"

	// TeamBoth routes to sales and credit.
	TeamBoth Team = "both"
	// TeamBroadcast routes to every team.
	TeamBroadcast Team = "broadcast"
)

// Teams lists the concrete dashboard teams.
var Teams = []Team{TeamOperations, TeamSales, TeamCredit, TeamApproval}

// ParseTeam normalizes user input into a Team.
func ParseTeam(raw string) (Team, bool) {
	t := Team(strings.ToLower(strings.TrimSpace(raw)))
	return t, t.Valid()
}

// Valid reports whether t is a known team or routing value.
func (t Team) Valid() bool {
	switch t {
	case TeamOperations, TeamSales, TeamCredit, TeamApproval, TeamBoth, TeamBroadcast:
		return true
	}
	return false
}

// CanRaise reports whether the team works queries (as opposed to approving them).
func (t Team) CanRaise() bool {
	return t == TeamOperations || t == TeamSales || t == TeamCredit
}

// ValidTarget reports whether t can be used as a query's markedForTeam.
func (t Team) ValidTarget() bool {
	return t == TeamOperations || t == TeamSales || t == TeamCredit || t == TeamBoth
}
