package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/loan-query-service/internal/domain"
)

const queryGroupColumns = `id, application_no, customer_name, branch, team, marked_for_team, status, priority,
       created_by, sub_queries, resolved_at, resolved_by, resolution_reason, approved_by, approved_at,
       approval_status, reverted_at, reverted_by, revert_reason, created_at, submitted_at, updated_at`

type pgQueryStore struct {
	pool *pgxpool.Pool
}

// NewPgQueryStore instantiates the postgres query store.
func NewPgQueryStore(pool *pgxpool.Pool) QueryStore {
	return &pgQueryStore{pool: pool}
}

func (r *pgQueryStore) Insert(ctx context.Context, g *domain.QueryGroup) error {
	const query = `
        INSERT INTO query_groups (` + queryGroupColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`
	_, err := r.pool.Exec(ctx, query,
		g.ID,
		g.ApplicationNo,
		g.CustomerName,
		g.Branch,
		g.Team,
		g.MarkedForTeam,
		g.Status,
		g.Priority,
		g.CreatedBy,
		g.SubQueries,
		g.ResolvedAt,
		g.ResolvedBy,
		g.ResolutionReason,
		g.ApprovedBy,
		g.ApprovedAt,
		g.ApprovalStatus,
		g.RevertedAt,
		g.RevertedBy,
		g.RevertReason,
		g.CreatedAt,
		g.SubmittedAt,
		g.UpdatedAt,
	)
	return mapPgError(err)
}

func (r *pgQueryStore) Update(ctx context.Context, g *domain.QueryGroup) error {
	const query = `
        UPDATE query_groups SET customer_name=$1, branch=$2, team=$3, marked_for_team=$4, status=$5,
            priority=$6, sub_queries=$7, resolved_at=$8, resolved_by=$9, resolution_reason=$10,
            approved_by=$11, approved_at=$12, approval_status=$13, reverted_at=$14, reverted_by=$15,
            revert_reason=$16, updated_at=$17
        WHERE id=$18`
	cmd, err := r.pool.Exec(ctx, query,
		g.CustomerName,
		g.Branch,
		g.Team,
		g.MarkedForTeam,
		g.Status,
		g.Priority,
		g.SubQueries,
		g.ResolvedAt,
		g.ResolvedBy,
		g.ResolutionReason,
		g.ApprovedBy,
		g.ApprovedAt,
		g.ApprovalStatus,
		g.RevertedAt,
		g.RevertedBy,
		g.RevertReason,
		g.UpdatedAt,
		g.ID,
	)
	if err != nil {
		return mapPgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgQueryStore) Get(ctx context.Context, id string) (*domain.QueryGroup, error) {
	query := `SELECT ` + queryGroupColumns + ` FROM query_groups WHERE id=$1`
	g, err := scanQueryGroup(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapPgError(err)
	}
	return g, nil
}

func (r *pgQueryStore) List(ctx context.Context, filter QueryFilter) ([]domain.QueryGroup, error) {
	where, args := queryWhere(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM query_groups WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		queryGroupColumns, where, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.QueryGroup
	for rows.Next() {
		g, err := scanQueryGroup(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *g)
	}
	return result, rows.Err()
}

func (r *pgQueryStore) Stats(ctx context.Context, filter QueryFilter, now time.Time) (domain.QueryStats, error) {
	where, args := queryWhere(filter)
	y, m, d := now.Date()
	args = append(args, time.Date(y, m, d, 0, 0, 0, 0, now.Location()))
	dayParam := len(args)

	terminal := `status IN ('approved','deferred','otc','resolved')`
	query := fmt.Sprintf(`
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE NOT %[1]s),
               COUNT(*) FILTER (WHERE %[1]s),
               COUNT(*) FILTER (WHERE NOT %[1]s AND priority IN ('high','urgent')),
               COUNT(*) FILTER (WHERE created_at >= $%[2]d)
        FROM query_groups WHERE %[3]s`, terminal, dayParam, where)

	var stats domain.QueryStats
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&stats.Total,
		&stats.Pending,
		&stats.Resolved,
		&stats.Urgent,
		&stats.TodaysQueries,
	)
	return stats, err
}

func queryWhere(filter QueryFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if scope := TeamScope(filter.Team); scope != nil {
		placeholders := make([]string, len(scope))
		for i, t := range scope {
			args = append(args, t)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("marked_for_team IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.ApplicationNo != nil {
		args = append(args, *filter.ApplicationNo)
		clauses = append(clauses, fmt.Sprintf("application_no=$%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

func scanQueryGroup(row pgx.Row) (*domain.QueryGroup, error) {
	var g domain.QueryGroup
	if err := row.Scan(
		&g.ID,
		&g.ApplicationNo,
		&g.CustomerName,
		&g.Branch,
		&g.Team,
		&g.MarkedForTeam,
		&g.Status,
		&g.Priority,
		&g.CreatedBy,
		&g.SubQueries,
		&g.ResolvedAt,
		&g.ResolvedBy,
		&g.ResolutionReason,
		&g.ApprovedBy,
		&g.ApprovedAt,
		&g.ApprovalStatus,
		&g.RevertedAt,
		&g.RevertedBy,
		&g.RevertReason,
		&g.CreatedAt,
		&g.SubmittedAt,
		&g.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &g, nil
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}
