package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/loan-query-service/internal/domain"
)

const approvalColumns = `ticket_id, query_id, sub_query_id, application_no, customer_name, team, priority,
       proposed_action, requested_by, requester_team, status, submitted_at, remark, approved_by,
       decided_at, approver_comment`

type pgApprovalStore struct {
	pool *pgxpool.Pool
}

// NewPgApprovalStore builds the postgres approval store.
func NewPgApprovalStore(pool *pgxpool.Pool) ApprovalStore {
	return &pgApprovalStore{pool: pool}
}

func (r *pgApprovalStore) Insert(ctx context.Context, a *domain.ApprovalRequest) error {
	const query = `
        INSERT INTO approval_requests (` + approvalColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`
	_, err := r.pool.Exec(ctx, query,
		a.TicketID,
		a.QueryID,
		a.SubQueryID,
		a.ApplicationNo,
		a.CustomerName,
		a.Team,
		a.Priority,
		a.ProposedAction,
		a.RequestedBy,
		a.RequesterTeam,
		a.Status,
		a.SubmittedAt,
		a.Remark,
		a.ApprovedBy,
		a.DecidedAt,
		a.ApproverComment,
	)
	return mapPgError(err)
}

func (r *pgApprovalStore) Update(ctx context.Context, a *domain.ApprovalRequest) error {
	const query = `
        UPDATE approval_requests SET status=$1, approved_by=$2, decided_at=$3, approver_comment=$4,
            proposed_action=$5
        WHERE ticket_id=$6`
	cmd, err := r.pool.Exec(ctx, query,
		a.Status,
		a.ApprovedBy,
		a.DecidedAt,
		a.ApproverComment,
		a.ProposedAction,
		a.TicketID,
	)
	if err != nil {
		return mapPgError(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgApprovalStore) Get(ctx context.Context, ticketID string) (*domain.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_requests WHERE ticket_id=$1`
	a, err := scanApproval(r.pool.QueryRow(ctx, query, ticketID))
	if err != nil {
		return nil, mapPgError(err)
	}
	return a, nil
}

func (r *pgApprovalStore) List(ctx context.Context, filter ApprovalFilter) ([]domain.ApprovalRequest, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			args = append(args, s)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, p := range filter.Priorities {
			args = append(args, p)
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
		clauses = append(clauses, fmt.Sprintf("team IN (%s)", strings.Join(placeholders, ",")))
	}

	query := fmt.Sprintf(`SELECT %s FROM approval_requests WHERE %s ORDER BY submitted_at ASC`,
		approvalColumns, strings.Join(clauses, " AND "))
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ApprovalRequest
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *pgApprovalStore) TicketIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT ticket_id FROM approval_requests`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanApproval(row pgx.Row) (*domain.ApprovalRequest, error) {
	var a domain.ApprovalRequest
	if err := row.Scan(
		&a.TicketID,
		&a.QueryID,
		&a.SubQueryID,
		&a.ApplicationNo,
		&a.CustomerName,
		&a.Team,
		&a.Priority,
		&a.ProposedAction,
		&a.RequestedBy,
		&a.RequesterTeam,
		&a.Status,
		&a.SubmittedAt,
		&a.Remark,
		&a.ApprovedBy,
		&a.DecidedAt,
		&a.ApproverComment,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
