package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/loan-query-service/internal/domain"
)

type pgMessageStore struct {
	pool *pgxpool.Pool
}

// NewPgMessageStore builds the postgres message store.
func NewPgMessageStore(pool *pgxpool.Pool) MessageStore {
	return &pgMessageStore{pool: pool}
}

func (r *pgMessageStore) Append(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO query_messages (id, query_id, body, sender, sender_role, team, created_at,
            is_system_message, action_type, metadata)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	metadata := msg.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	_, err := r.pool.Exec(ctx, query,
		msg.ID,
		msg.QueryID,
		msg.Body,
		msg.Sender,
		msg.SenderRole,
		msg.Team,
		msg.Timestamp,
		msg.IsSystemMessage,
		msg.ActionType,
		metadata,
	)
	return mapPgError(err)
}

func (r *pgMessageStore) ListByQuery(ctx context.Context, queryID string) ([]domain.Message, error) {
	const query = `
        SELECT id, query_id, body, sender, sender_role, team, created_at, is_system_message, action_type, metadata
        FROM query_messages WHERE query_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, queryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.QueryID,
			&msg.Body,
			&msg.Sender,
			&msg.SenderRole,
			&msg.Team,
			&msg.Timestamp,
			&msg.IsSystemMessage,
			&msg.ActionType,
			&msg.Metadata,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
