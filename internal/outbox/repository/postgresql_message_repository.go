// Package repository provides data persistence implementations for outbox messages.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/outbox/internal/database"
	apperrors "github.com/allisson/outbox/internal/errors"
	"github.com/allisson/outbox/internal/outbox/domain"
)

const postgresSelectNextQuery = `SELECT id, topic, message, created_at, next_send_time, send_count, sent_at
			  FROM outbox_messages
			  WHERE (next_send_time <= $1 OR next_send_time IS NULL)
			    AND sent_at IS NULL
			  ORDER BY next_send_time NULLS FIRST
			  LIMIT 1`

// PostgreSQLMessageRepository handles outbox message persistence for PostgreSQL
type PostgreSQLMessageRepository struct {
	db              *sql.DB
	selectNextQuery string
}

// NewPostgreSQLMessageRepository creates a new PostgreSQLMessageRepository.
// When skipLocked is true the claim select takes a row lock and skips rows locked by
// concurrent claimers, so two relays never claim the same row at the same time.
func NewPostgreSQLMessageRepository(db *sql.DB, skipLocked bool) *PostgreSQLMessageRepository {
	query := postgresSelectNextQuery
	if skipLocked {
		query += "\n\t\t\t  FOR UPDATE SKIP LOCKED"
	}
	return &PostgreSQLMessageRepository{
		db:              db,
		selectNextQuery: query,
	}
}

// Create inserts a new outbox message
func (r *PostgreSQLMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO outbox_messages (id, topic, message, created_at, next_send_time, send_count, sent_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := querier.ExecContext(ctx, query, msg.ID, msg.Topic, msg.Payload, msg.CreatedAt,
		msg.NextSendTime, msg.SendCount, msg.SentAt)

	return err
}

// SelectNext returns the eligible message with the oldest next_send_time, or nil when the
// backlog is empty. Messages that were never claimed sort first.
func (r *PostgreSQLMessageRepository) SelectNext(ctx context.Context, now time.Time) (*domain.Message, error) {
	querier := database.GetTx(ctx, r.db)

	var msg domain.Message
	err := querier.QueryRowContext(ctx, r.selectNextQuery, now).Scan(
		&msg.ID, &msg.Topic, &msg.Payload, &msg.CreatedAt, &msg.NextSendTime, &msg.SendCount, &msg.SentAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &msg, nil
}

// IncrementSendCount records a claim: send_count grows by one and the message is hidden until nextSendTime.
func (r *PostgreSQLMessageRepository) IncrementSendCount(
	ctx context.Context,
	id uuid.UUID,
	nextSendTime time.Time,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_messages
			  SET send_count = send_count + 1,
			      next_send_time = $1
			  WHERE id = $2`

	result, err := querier.ExecContext(ctx, query, nextSendTime, id)
	if err != nil {
		return err
	}

	return requireAffected(result, domain.ErrMessageNotFound)
}

// MarkSent finalizes a delivered message. A message that is already sent keeps its original
// sent_at and ErrAlreadySent is returned.
func (r *PostgreSQLMessageRepository) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_messages SET sent_at = $1 WHERE id = $2 AND sent_at IS NULL`

	result, err := querier.ExecContext(ctx, query, sentAt, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	// Nothing was updated: tell a missing row apart from a delivered one.
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return domain.ErrAlreadySent
}

// Get retrieves a message by ID
func (r *PostgreSQLMessageRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, topic, message, created_at, next_send_time, send_count, sent_at
			  FROM outbox_messages
			  WHERE id = $1`

	var msg domain.Message
	err := querier.QueryRowContext(ctx, query, id).Scan(
		&msg.ID, &msg.Topic, &msg.Payload, &msg.CreatedAt, &msg.NextSendTime, &msg.SendCount, &msg.SentAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}

	return &msg, nil
}

// CountPending returns the number of undelivered messages.
func (r *PostgreSQLMessageRepository) CountPending(ctx context.Context) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	var count int64
	err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox_messages WHERE sent_at IS NULL`).Scan(&count)
	return count, err
}

// ListPending returns undelivered messages oldest first. Returns an empty slice when the backlog is empty.
func (r *PostgreSQLMessageRepository) ListPending(ctx context.Context, offset, limit int) ([]*domain.Message, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, topic, message, created_at, next_send_time, send_count, sent_at
			  FROM outbox_messages
			  WHERE sent_at IS NULL
			  ORDER BY created_at, id
			  LIMIT $1 OFFSET $2`

	rows, err := querier.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list pending messages")
	}
	defer func() {
		_ = rows.Close()
	}()

	messages := make([]*domain.Message, 0)
	for rows.Next() {
		var msg domain.Message
		err := rows.Scan(
			&msg.ID, &msg.Topic, &msg.Payload, &msg.CreatedAt, &msg.NextSendTime, &msg.SendCount, &msg.SentAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan message row")
		}
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "error iterating message rows")
	}

	return messages, nil
}
