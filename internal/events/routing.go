package events

import "github.com/spec-kit/loan-query-service/internal/domain"

// Expand resolves a routing value to the concrete team topics it names.
func Expand(t domain.Team) []domain.Team {
	switch t {
	case domain.TeamBoth:
		return []domain.Team{domain.TeamSales, domain.TeamCredit}
	case domain.TeamBroadcast:
		return append([]domain.Team(nil), domain.Teams...)
	case domain.TeamOperations, domain.TeamSales, domain.TeamCredit, domain.TeamApproval:
		return []domain.Team{t}
	}
	return nil
}

// Topics is the set of team topics an event is delivered to. Operations
// raised every query and always sees it; approval sees escalations.
func Topics(e UpdateEvent) []domain.Team {
	set := map[domain.Team]struct{}{domain.TeamOperations: {}}
	for _, t := range Expand(e.MarkedForTeam) {
		set[t] = struct{}{}
	}
	for _, t := range Expand(e.Team) {
		set[t] = struct{}{}
	}
	if e.Action == ActionPendingApproval || e.Action == ActionApproved {
		set[domain.TeamApproval] = struct{}{}
	}

	topics := make([]domain.Team, 0, len(set))
	for _, t := range domain.Teams {
		if _, ok := set[t]; ok {
			topics = append(topics, t)
		}
	}
	return topics
}

// Routes reports whether a dashboard subscribed to topic should see e.
func Routes(e UpdateEvent, topic domain.Team) bool {
	if topic == domain.TeamBroadcast {
		return true
	}
	want := Expand(topic)
	for _, t := range Topics(e) {
		for _, w := range want {
			if t == w {
				return true
			}
		}
	}
	return false
}
