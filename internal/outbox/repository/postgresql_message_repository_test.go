package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/outbox/internal/outbox/domain"
)

var messageColumns = []string{"id", "topic", "message", "created_at", "next_send_time", "send_count", "sent_at"}

func newPostgresMock(t *testing.T, skipLocked bool) (*PostgreSQLMessageRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewPostgreSQLMessageRepository(db, skipLocked), mock
}

func TestNewPostgreSQLMessageRepository(t *testing.T) {
	t.Run("without row locking", func(t *testing.T) {
		repo, _ := newPostgresMock(t, false)
		assert.NotContains(t, repo.selectNextQuery, "SKIP LOCKED")
		assert.Contains(t, repo.selectNextQuery, "ORDER BY next_send_time NULLS FIRST")
	})

	t.Run("with row locking", func(t *testing.T) {
		repo, _ := newPostgresMock(t, true)
		assert.Contains(t, repo.selectNextQuery, "FOR UPDATE SKIP LOCKED")
	})
}

func TestPostgreSQLMessageRepository_Create(t *testing.T) {
	repo, mock := newPostgresMock(t, false)
	msg := domain.NewMessage("orders", `{}`)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO outbox_messages")).
		WithArgs(msg.ID, "orders", `{}`, msg.CreatedAt, nil, 0, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), msg)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLMessageRepository_SelectNext(t *testing.T) {
	now := time.Now().UTC()

	t.Run("returns eligible message", func(t *testing.T) {
		repo, mock := newPostgresMock(t, true)
		id := uuid.Must(uuid.NewV7())
		createdAt := now.Add(-time.Minute)

		rows := sqlmock.NewRows(messageColumns).
			AddRow(id.String(), "orders", `{"id":1}`, createdAt, nil, 0, nil)
		mock.ExpectQuery(`WHERE \(next_send_time <= \$1 OR next_send_time IS NULL\)`).
			WithArgs(now).
			WillReturnRows(rows)

		msg, err := repo.SelectNext(context.Background(), now)
		require.NoError(t, err)
		require.NotNil(t, msg)
		assert.Equal(t, id, msg.ID)
		assert.Equal(t, "orders", msg.Topic)
		assert.Equal(t, `{"id":1}`, msg.Payload)
		assert.Nil(t, msg.NextSendTime)
		assert.Nil(t, msg.SentAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns nil when backlog is empty", func(t *testing.T) {
		repo, mock := newPostgresMock(t, false)

		mock.ExpectQuery("SELECT id, topic, message").
			WithArgs(now).
			WillReturnRows(sqlmock.NewRows(messageColumns))

		msg, err := repo.SelectNext(context.Background(), now)
		assert.NoError(t, err)
		assert.Nil(t, msg)
	})

	t.Run("propagates query error", func(t *testing.T) {
		repo, mock := newPostgresMock(t, false)

		mock.ExpectQuery("SELECT id, topic, message").
			WithArgs(now).
			WillReturnError(errors.New("connection reset"))

		msg, err := repo.SelectNext(context.Background(), now)
		assert.Error(t, err)
		assert.Nil(t, msg)
	})
}

func TestPostgreSQLMessageRepository_IncrementSendCount(t *testing.T) {
	id := uuid.Must(uuid.NewV7())
	next := time.Now().UTC().Add(domain.VisibilityWindow)

	t.Run("success", func(t *testing.T) {
		repo, mock := newPostgresMock(t, false)

		mock.ExpectExec(regexp.QuoteMeta("SET send_count = send_count + 1")).
			WithArgs(next, id).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.IncrementSendCount(context.Background(), id, next))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row", func(t *testing.T) {
		repo, mock := newPostgresMock(t, false)

		mock.ExpectExec(regexp.QuoteMeta("SET send_count = send_count + 1")).
			WithArgs(next, id).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.IncrementSendCount(context.Background(), id, next)
		assert.ErrorIs(t, err, domain.ErrMessageNotFound)
	})
}

func TestPostgreSQLMessageRepository_MarkSent(t *testing.T) {
	id := uuid.Must(uuid.NewV7())
	sentAt := time.Now().UTC()
	updateQuery := regexp.QuoteMeta("UPDATE outbox_messages SET sent_at = $1 WHERE id = $2 AND sent_at IS NULL")

	t.Run("success", func(t *testing.T) {
		repo, mock := newPostgresMock(t, false)

		mock.ExpectExec(updateQuery).
			WithArgs(sentAt, id).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.MarkSent(context.Background(), id, sentAt))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already sent", func(t *testing.T) {
		repo, mock := newPostgresMock(t, false)
		earlier := sentAt.Add(-time.Second)

		mock.ExpectExec(updateQuery).
			WithArgs(sentAt, id).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("WHERE id = \\$1").
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(messageColumns).
				AddRow(id.String(), "orders", `{}`, earlier, earlier, 1, earlier))

		err := repo.MarkSent(context.Background(), id, sentAt)
		assert.ErrorIs(t, err, domain.ErrAlreadySent)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newPostgresMock(t, false)

		mock.ExpectExec(updateQuery).
			WithArgs(sentAt, id).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("WHERE id = \\$1").
			WithArgs(id).
			WillReturnError(sql.ErrNoRows)

		err := repo.MarkSent(context.Background(), id, sentAt)
		assert.ErrorIs(t, err, domain.ErrMessageNotFound)
	})
}

func TestPostgreSQLMessageRepository_Get(t *testing.T) {
	id := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()

	t.Run("success", func(t *testing.T) {
		repo, mock := newPostgresMock(t, false)
		next := now.Add(domain.VisibilityWindow)

		mock.ExpectQuery("WHERE id = \\$1").
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(messageColumns).
				AddRow(id.String(), "orders", `{}`, now, next, 3, nil))

		msg, err := repo.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, id, msg.ID)
		assert.Equal(t, 3, msg.SendCount)
		require.NotNil(t, msg.NextSendTime)
		assert.True(t, next.Equal(*msg.NextSendTime))
		assert.Nil(t, msg.SentAt)
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newPostgresMock(t, false)

		mock.ExpectQuery("WHERE id = \\$1").
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(messageColumns))

		msg, err := repo.Get(context.Background(), id)
		assert.ErrorIs(t, err, domain.ErrMessageNotFound)
		assert.Nil(t, msg)
	})
}

func TestPostgreSQLMessageRepository_CountPending(t *testing.T) {
	repo, mock := newPostgresMock(t, false)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM outbox_messages WHERE sent_at IS NULL")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := repo.CountPending(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, int64(7), count)
}

func TestPostgreSQLMessageRepository_ListPending(t *testing.T) {
	t.Run("returns pending messages oldest first", func(t *testing.T) {
		repo, mock := newPostgresMock(t, false)
		first, second := uuid.New(), uuid.New()
		created := time.Now().UTC().Add(-time.Hour)
		next := created.Add(domain.VisibilityWindow)

		mock.ExpectQuery(`WHERE sent_at IS NULL\s+ORDER BY created_at, id\s+LIMIT \$1 OFFSET \$2`).
			WithArgs(10, 5).
			WillReturnRows(sqlmock.NewRows(messageColumns).
				AddRow(first, "orders", `{"id":1}`, created, nil, 0, nil).
				AddRow(second, "orders", `{"id":2}`, created.Add(time.Second), next, 2, nil))

		messages, err := repo.ListPending(context.Background(), 5, 10)
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, first, messages[0].ID)
		assert.Nil(t, messages[0].NextSendTime)
		assert.Equal(t, second, messages[1].ID)
		assert.Equal(t, 2, messages[1].SendCount)
		require.NotNil(t, messages[1].NextSendTime)
		assert.Equal(t, next, *messages[1].NextSendTime)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty backlog returns empty slice", func(t *testing.T) {
		repo, mock := newPostgresMock(t, false)

		mock.ExpectQuery("WHERE sent_at IS NULL").
			WillReturnRows(sqlmock.NewRows(messageColumns))

		messages, err := repo.ListPending(context.Background(), 0, 50)
		require.NoError(t, err)
		assert.NotNil(t, messages)
		assert.Empty(t, messages)
	})

	t.Run("query error is wrapped", func(t *testing.T) {
		repo, mock := newPostgresMock(t, false)

		mock.ExpectQuery("WHERE sent_at IS NULL").
			WillReturnError(sql.ErrConnDone)

		messages, err := repo.ListPending(context.Background(), 0, 50)
		assert.ErrorIs(t, err, sql.ErrConnDone)
		assert.Contains(t, err.Error(), "failed to list pending messages")
		assert.Nil(t, messages)
	})
}
