package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"realtime_chat/internal/domain"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestCreateGroupRollsBackOnMemberFailure(t *testing.T) {
	mock := newMock(t)
	repo := NewConversationRepository(mock, logger.NewNop())

	now := time.Now()
	conv := &domain.Conversation{ID: uuid.New(), CreatedBy: "alice", CreatedAt: now}
	members := []*domain.Member{
		{UserID: "alice", Role: domain.MemberRoleAdmin, JoinedAt: now},
		{UserID: "bob", Role: domain.MemberRoleMember, JoinedAt: now},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO conversations").
		WithArgs(conv.ID, pgxmock.AnyArg(), "alice", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO conversation_members").
		WithArgs(conv.ID, "alice", "admin", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO conversation_members").
		WithArgs(conv.ID, "bob", "member", now).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})
	mock.ExpectRollback()

	err := repo.CreateGroup(context.Background(), conv, members)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDMReturnsExistingOnConflict(t *testing.T) {
	mock := newMock(t)
	repo := NewConversationRepository(mock, logger.NewNop())

	now := time.Now()
	existingID := uuid.New()
	conv := &domain.Conversation{ID: uuid.New(), CreatedBy: "bob", CreatedAt: now}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO conversations").
		WithArgs(conv.ID, "5:alice:bob", "bob", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectRollback()
	mock.ExpectQuery("FROM conversations c").
		WithArgs("bob", "alice").
		WillReturnRows(pgxmock.NewRows([]string{"id", "kind", "title", "created_by", "created_at", "updated_at", "last_seq"}).
			AddRow(existingID, "dm", (*string)(nil), "alice", now, now, int64(4)))
	mock.ExpectQuery("FROM conversation_members").
		WithArgs(existingID).
		WillReturnRows(pgxmock.NewRows([]string{"conversation_id", "user_id", "role", "joined_at"}).
			AddRow(existingID, "alice", "member", now).
			AddRow(existingID, "bob", "member", now))

	got, created, err := repo.CreateDM(context.Background(), conv, "bob", "alice")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existingID, got.ID)
	assert.Equal(t, domain.ConversationKindDM, got.Kind)
	assert.Len(t, got.Members, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveMemberLastAdmin(t *testing.T) {
	mock := newMock(t)
	repo := NewConversationRepository(mock, logger.NewNop())
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(id))
	mock.ExpectExec("DELETE FROM conversation_members").WithArgs(id, "alice").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs(id, "alice").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.RemoveMember(context.Background(), id, "alice")
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateReplyToMissingParent(t *testing.T) {
	mock := newMock(t)
	repo := NewMessageRepository(mock, logger.NewNop())

	content := "hello"
	parent := uuid.New()
	msg := &domain.Message{
		ID: uuid.New(), ConversationID: uuid.New(), SenderID: "alice",
		Content: &content, ParentMessageID: &parent, CreatedAt: time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE conversations SET last_seq").
		WithArgs(msg.ConversationID, msg.CreatedAt).
		WillReturnRows(pgxmock.NewRows([]string{"last_seq"}).AddRow(int64(9)))
	mock.ExpectExec("UPDATE messages SET thread_count").
		WithArgs(parent, msg.ConversationID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), msg)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateMessageAssignsSequence(t *testing.T) {
	mock := newMock(t)
	repo := NewMessageRepository(mock, logger.NewNop())

	content := "hello"
	msg := &domain.Message{ID: uuid.New(), ConversationID: uuid.New(), SenderID: "alice", Content: &content, CreatedAt: time.Now()}

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE conversations SET last_seq").
		WithArgs(msg.ConversationID, msg.CreatedAt).
		WillReturnRows(pgxmock.NewRows([]string{"last_seq"}).AddRow(int64(12)))
	mock.ExpectExec("INSERT INTO messages").
		WithArgs(msg.ID, msg.ConversationID, "alice", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), int64(12), msg.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), msg))
	assert.Equal(t, int64(12), msg.Seq)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestToggleReactionConcurrentInsert(t *testing.T) {
	mock := newMock(t)
	repo := NewReactionRepository(mock, logger.NewNop())
	id := uuid.New()
	at := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM message_reactions").WithArgs(id, "bob", "🎉").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO message_reactions").WithArgs(id, "bob", "🎉", at).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectRollback()

	_, err := repo.Toggle(context.Background(), id, "bob", "🎉", at)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkReadReturnsWrittenCount(t *testing.T) {
	mock := newMock(t)
	repo := NewReadReceiptRepository(mock, logger.NewNop())
	id := uuid.New()
	at := time.Now()

	mock.ExpectExec("INSERT INTO read_receipts").WithArgs(id, "bob", at).
		WillReturnResult(pgxmock.NewResult("INSERT", 3))

	n, err := repo.MarkRead(context.Background(), id, "bob", at)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStorageErrorMapping(t *testing.T) {
	log := logger.NewNop()

	assert.ErrorIs(t, storageError(log, &pgconn.PgError{Code: pgForeignKeyViolation}, "op"), apperrors.ErrNotFound)
	assert.ErrorIs(t, storageError(log, &pgconn.PgError{Code: pgUniqueViolation}, "op"), apperrors.ErrConflict)
	assert.ErrorIs(t, storageError(log, errors.New("connection reset"), "op"), apperrors.ErrUnavailable)

	forbidden := apperrors.Forbidden("nope")
	assert.Same(t, forbidden, storageError(log, forbidden, "op"))
	assert.NoError(t, storageError(log, nil, "op"))
}

func TestGetMessageUnavailable(t *testing.T) {
	mock := newMock(t)
	repo := NewMessageRepository(mock, logger.NewNop())

	mock.ExpectQuery("FROM messages").WillReturnError(errors.New("dial tcp: connection refused"))

	_, err := repo.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrUnavailable)
}

func TestSearchEscapesLikePattern(t *testing.T) {
	mock := newMock(t)
	repo := NewMessageRepository(mock, logger.NewNop())

	mock.ExpectQuery("ILIKE").
		WithArgs("alice", pgxmock.AnyArg(), `50\%\_off`, 20).
		WillReturnRows(pgxmock.NewRows([]string{"id", "conversation_id", "sender_id", "content", "file_ref", "parent_message_id", "seq", "thread_count", "created_at", "edited_at", "deleted_at"}))

	hits, err := repo.Search(context.Background(), "alice", nil, "50%_off", 20)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, "plain", escapeLike("plain"))
	assert.Equal(t, `a\\b`, escapeLike(`a\b`))
	assert.Equal(t, `\%\_`, escapeLike("%_"))
}

func TestThreadSubscriptionGetMissingIsNil(t *testing.T) {
	mock := newMock(t)
	repo := NewThreadSubscriptionRepository(mock, logger.NewNop())
	messageID := uuid.New()

	mock.ExpectQuery("FROM thread_subscriptions").
		WithArgs(messageID, "bob").
		WillReturnError(pgx.ErrNoRows)

	sub, err := repo.Get(context.Background(), messageID, "bob")
	require.NoError(t, err)
	assert.Nil(t, sub)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestThreadSubscriptionSetUpserts(t *testing.T) {
	mock := newMock(t)
	repo := NewThreadSubscriptionRepository(mock, logger.NewNop())
	messageID := uuid.New()
	now := time.Now()

	mock.ExpectQuery("ON CONFLICT \\(message_id, user_id\\)").
		WithArgs(messageID, "bob", true, now).
		WillReturnRows(pgxmock.NewRows([]string{"message_id", "user_id", "subscribed", "updated_at"}).
			AddRow(messageID, "bob", true, now))

	sub, err := repo.Set(context.Background(), messageID, "bob", true, now)
	require.NoError(t, err)
	assert.True(t, sub.Subscribed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
