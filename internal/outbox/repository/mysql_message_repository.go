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

// MySQL sorts NULL before any value in ascending order, which puts never-claimed rows first.
const mysqlSelectNextQuery = `SELECT id, topic, message, created_at, next_send_time, send_count, sent_at
			  FROM outbox_messages
			  WHERE (next_send_time <= ? OR next_send_time IS NULL)
			    AND sent_at IS NULL
			  ORDER BY next_send_time
			  LIMIT 1`

// MySQLMessageRepository handles outbox message persistence for MySQL
type MySQLMessageRepository struct {
	db              *sql.DB
	selectNextQuery string
}

// NewMySQLMessageRepository creates a new MySQLMessageRepository.
// skipLocked appends FOR UPDATE SKIP LOCKED to the claim select (MySQL 8.0+).
func NewMySQLMessageRepository(db *sql.DB, skipLocked bool) *MySQLMessageRepository {
	query := mysqlSelectNextQuery
	if skipLocked {
		query += "\n\t\t\t  FOR UPDATE SKIP LOCKED"
	}
	return &MySQLMessageRepository{
		db:              db,
		selectNextQuery: query,
	}
}

// Create inserts a new outbox message
func (r *MySQLMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO outbox_messages (id, topic, message, created_at, next_send_time, send_count, sent_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`

	// Convert UUID to bytes for MySQL BINARY(16)
	idBytes, err := msg.ID.MarshalBinary()
	if err != nil {
		return err
	}

	_, err = querier.ExecContext(ctx, query, idBytes, msg.Topic, msg.Payload, msg.CreatedAt,
		msg.NextSendTime, msg.SendCount, msg.SentAt)

	return err
}

// SelectNext returns the eligible message with the oldest next_send_time, or nil when the
// backlog is empty.
func (r *MySQLMessageRepository) SelectNext(ctx context.Context, now time.Time) (*domain.Message, error) {
	querier := database.GetTx(ctx, r.db)

	msg, err := scanMySQLMessage(querier.QueryRowContext(ctx, r.selectNextQuery, now))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return msg, nil
}

// IncrementSendCount records a claim: send_count grows by one and the message is hidden until nextSendTime.
func (r *MySQLMessageRepository) IncrementSendCount(
	ctx context.Context,
	id uuid.UUID,
	nextSendTime time.Time,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_messages
			  SET send_count = send_count + 1,
			      next_send_time = ?
			  WHERE id = ?`

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return err
	}

	result, err := querier.ExecContext(ctx, query, nextSendTime, idBytes)
	if err != nil {
		return err
	}

	return requireAffected(result, domain.ErrMessageNotFound)
}

// MarkSent finalizes a delivered message. A message that is already sent keeps its original
// sent_at and ErrAlreadySent is returned.
func (r *MySQLMessageRepository) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_messages SET sent_at = ? WHERE id = ? AND sent_at IS NULL`

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return err
	}

	result, err := querier.ExecContext(ctx, query, sentAt, idBytes)
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

	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return domain.ErrAlreadySent
}

// Get retrieves a message by ID
func (r *MySQLMessageRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, topic, message, created_at, next_send_time, send_count, sent_at
			  FROM outbox_messages
			  WHERE id = ?`

	idBytes, err := id.MarshalBinary()
	if err != nil {
		return nil, err
	}

	msg, err := scanMySQLMessage(querier.QueryRowContext(ctx, query, idBytes))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, err
	}

	return msg, nil
}

// CountPending returns the number of undelivered messages.
func (r *MySQLMessageRepository) CountPending(ctx context.Context) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	var count int64
	err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox_messages WHERE sent_at IS NULL`).Scan(&count)
	return count, err
}

// ListPending returns undelivered messages oldest first. Returns an empty slice when the backlog is empty.
func (r *MySQLMessageRepository) ListPending(ctx context.Context, offset, limit int) ([]*domain.Message, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, topic, message, created_at, next_send_time, send_count, sent_at
			  FROM outbox_messages
			  WHERE sent_at IS NULL
			  ORDER BY created_at, id
			  LIMIT ? OFFSET ?`

	rows, err := querier.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list pending messages")
	}
	defer func() {
		_ = rows.Close()
	}()

	messages := make([]*domain.Message, 0)
	for rows.Next() {
		msg, err := scanMySQLMessage(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan message row")
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "error iterating message rows")
	}

	return messages, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanMySQLMessage reads one message row, converting the BINARY(16) id back to a UUID.
func scanMySQLMessage(row rowScanner) (*domain.Message, error) {
	var msg domain.Message
	var idBytes []byte

	err := row.Scan(&idBytes, &msg.Topic, &msg.Payload, &msg.CreatedAt, &msg.NextSendTime, &msg.SendCount, &msg.SentAt)
	if err != nil {
		return nil, err
	}

	if err := msg.ID.UnmarshalBinary(idBytes); err != nil {
		return nil, err
	}

	return &msg, nil
}
