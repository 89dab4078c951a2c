package repository

import (
	"sort"
	"time"

	"github.com/spec-kit/loan-query-service/internal/domain"
)

const defaultListLimit = 50

// QueryFilter captures dashboard listing parameters.
type QueryFilter struct {
	Statuses      []domain.QueryStatus
	Priorities    []domain.Priority
	Team          *domain.Team
	ApplicationNo *string
	Limit         int
	Offset        int
}

// ApprovalFilter captures approval dashboard parameters.
type ApprovalFilter struct {
	Statuses   []domain.ApprovalStatus
	Priorities []domain.Priority
	Team       *domain.Team
	Limit      int
}

// TeamScope returns the markedForTeam values visible to a team; nil means all.
func TeamScope(team *domain.Team) []domain.Team {
	if team == nil {
		return nil
	}
	switch *team {
	case domain.TeamSales, domain.TeamCredit:
		return []domain.Team{*team, domain.TeamBoth}
	case domain.TeamBoth:
		return []domain.Team{domain.TeamSales, domain.TeamCredit, domain.TeamBoth}
	}
	return nil
}

// Match reports whether g satisfies f, ignoring paging.
func (f QueryFilter) Match(g *domain.QueryGroup) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, g.Status) {
		return false
	}
	if len(f.Priorities) > 0 && !containsPriority(f.Priorities, g.Priority) {
		return false
	}
	if scope := TeamScope(f.Team); scope != nil && !containsTeam(scope, g.MarkedForTeam) {
		return false
	}
	if f.ApplicationNo != nil && *f.ApplicationNo != g.ApplicationNo {
		return false
	}
	return true
}

// Match reports whether a satisfies f, ignoring the limit.
func (f ApprovalFilter) Match(a *domain.ApprovalRequest) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if s == a.Status {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.Priorities) > 0 && !containsPriority(f.Priorities, a.Priority) {
		return false
	}
	if scope := TeamScope(f.Team); scope != nil && !containsTeam(scope, a.Team) {
		return false
	}
	return true
}

// ApplyQueryFilter filters, orders newest first and pages groups.
func ApplyQueryFilter(groups []*domain.QueryGroup, f QueryFilter) []domain.QueryGroup {
	matched := make([]domain.QueryGroup, 0)
	for _, g := range groups {
		if f.Match(g) {
			matched = append(matched, *g.Clone())
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return []domain.QueryGroup{}
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end]
}

// ComputeStats aggregates the groups matching f.
func ComputeStats(groups []*domain.QueryGroup, f QueryFilter, now time.Time) domain.QueryStats {
	y, m, d := now.Date()
	startOfDay := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	var stats domain.QueryStats
	for _, g := range groups {
		if !f.Match(g) {
			continue
		}
		stats.Total++
		if g.Status.IsTerminal() {
			stats.Resolved++
		} else {
			stats.Pending++
			if g.Priority.IsUrgent() {
				stats.Urgent++
			}
		}
		if !g.CreatedAt.Before(startOfDay) {
			stats.TodaysQueries++
		}
	}
	return stats
}

func containsStatus(list []domain.QueryStatus, s domain.QueryStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsPriority(list []domain.Priority, p domain.Priority) bool {
	for _, v := range list {
		if v == p {
			return true
		}
	}
	return false
}

func containsTeam(list []domain.Team, t domain.Team) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}
