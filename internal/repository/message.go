package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"realtime_chat/internal/domain"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

type MessageRepository interface {
	// Create assigns msg.Seq from the conversation counter, bumps the
	// conversation's updated_at and, for replies, the parent's thread count,
	// all in one transaction.
	Create(ctx context.Context, msg *domain.Message) error
	// GetByID returns tombstoned messages too.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error)
	// List returns live top-level messages with seq < beforeSeq (0 = no
	// bound), oldest first.
	List(ctx context.Context, conversationID uuid.UUID, beforeSeq int64, limit int) ([]*domain.Message, error)
	ListThread(ctx context.Context, parentID uuid.UUID) ([]*domain.Message, error)
	CountThread(ctx context.Context, parentID uuid.UUID) (int64, error)
	// Search returns live messages whose content contains query (case
	// insensitive) from conversations userID belongs to, optionally only
	// conversationID, newest first.
	Search(ctx context.Context, userID string, conversationID *uuid.UUID, query string, limit int) ([]*domain.Message, error)
	// UpdateContent and SoftDelete only touch live messages owned by
	// senderID and return the conversation sequence assigned to the change.
	UpdateContent(ctx context.Context, id uuid.UUID, senderID, content string, editedAt time.Time) (*domain.Message, int64, error)
	SoftDelete(ctx context.Context, id uuid.UUID, senderID string, deletedAt time.Time) (*domain.Message, int64, error)
}

const messageColumns = `id, conversation_id, sender_id, content, file_ref, parent_message_id, seq, thread_count, created_at, edited_at, deleted_at`

type messageRepository struct {
	db  DB
	log logger.Logger
}

func NewMessageRepository(db DB, log logger.Logger) MessageRepository {
	return &messageRepository{db: db, log: log}
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	msg := &domain.Message{}
	var parent uuid.NullUUID
	err := row.Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.FileRef, &parent,
		&msg.Seq, &msg.ThreadCount, &msg.CreatedAt, &msg.EditedAt, &msg.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	if parent.Valid {
		id := parent.UUID
		msg.ParentMessageID = &id
	}
	return msg, nil
}

func collectMessages(rows pgx.Rows) ([]*domain.Message, error) {
	defer rows.Close()
	var messages []*domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func nextSeq(ctx context.Context, tx pgx.Tx, conversationID uuid.UUID) (int64, error) {
	var seq int64
	err := tx.QueryRow(ctx, `
		UPDATE conversations SET last_seq = last_seq + 1
		WHERE id = $1
		RETURNING last_seq
	`, conversationID).Scan(&seq)
	return seq, err
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		// the row lock taken here orders concurrent senders
		err := tx.QueryRow(ctx, `
			UPDATE conversations SET last_seq = last_seq + 1, updated_at = $2
			WHERE id = $1
			RETURNING last_seq
		`, msg.ConversationID, msg.CreatedAt).Scan(&msg.Seq)
		if err != nil {
			return err
		}

		if msg.ParentMessageID != nil {
			tag, err := tx.Exec(ctx, `
				UPDATE messages SET thread_count = thread_count + 1
				WHERE id = $1 AND conversation_id = $2 AND deleted_at IS NULL
			`, *msg.ParentMessageID, msg.ConversationID)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return apperrors.NotFound("parent message %s not found", *msg.ParentMessageID)
			}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO messages (id, conversation_id, sender_id, content, file_ref, parent_message_id, seq, thread_count, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8)
		`, msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.FileRef, msg.ParentMessageID, msg.Seq, msg.CreatedAt)
		return err
	})
	if err != nil {
		return storageError(r.log, err, "create message", "conversation_id", msg.ConversationID)
	}
	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	msg, err := scanMessage(r.db.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if err != nil {
		return nil, storageError(r.log, err, "get message", "message_id", id)
	}
	return msg, nil
}

func (r *messageRepository) List(ctx context.Context, conversationID uuid.UUID, beforeSeq int64, limit int) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE conversation_id = $1
		  AND parent_message_id IS NULL
		  AND deleted_at IS NULL
		  AND ($2::bigint = 0 OR seq < $2::bigint)
		ORDER BY seq DESC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, conversationID, beforeSeq, limit)
	if err != nil {
		return nil, storageError(r.log, err, "list messages", "conversation_id", conversationID)
	}
	messages, err := collectMessages(rows)
	if err != nil {
		return nil, storageError(r.log, err, "list messages", "conversation_id", conversationID)
	}

	// newest page first from the index, returned oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *messageRepository) ListThread(ctx context.Context, parentID uuid.UUID) ([]*domain.Message, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE parent_message_id = $1 AND deleted_at IS NULL
		ORDER BY created_at, seq
	`, parentID)
	if err != nil {
		return nil, storageError(r.log, err, "list thread", "parent_message_id", parentID)
	}
	messages, err := collectMessages(rows)
	if err != nil {
		return nil, storageError(r.log, err, "list thread", "parent_message_id", parentID)
	}
	return messages, nil
}

func (r *messageRepository) CountThread(ctx context.Context, parentID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `
		SELECT count(*) FROM messages
		WHERE parent_message_id = $1 AND deleted_at IS NULL
	`, parentID).Scan(&count)
	if err != nil {
		return 0, storageError(r.log, err, "count thread", "parent_message_id", parentID)
	}
	return count, nil
}

func (r *messageRepository) Search(ctx context.Context, userID string, conversationID *uuid.UUID, query string, limit int) ([]*domain.Message, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE deleted_at IS NULL
		  AND EXISTS (
		      SELECT 1 FROM conversation_members cm
		      WHERE cm.conversation_id = messages.conversation_id AND cm.user_id = $1)
		  AND ($2::uuid IS NULL OR conversation_id = $2::uuid)
		  AND content ILIKE '%' || $3 || '%' ESCAPE '\'
		ORDER BY created_at DESC, seq DESC
		LIMIT $4
	`, userID, conversationID, escapeLike(query), limit)
	if err != nil {
		return nil, storageError(r.log, err, "search messages", "user_id", userID)
	}
	messages, err := collectMessages(rows)
	if err != nil {
		return nil, storageError(r.log, err, "search messages", "user_id", userID)
	}
	return messages, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (r *messageRepository) UpdateContent(ctx context.Context, id uuid.UUID, senderID, content string, editedAt time.Time) (*domain.Message, int64, error) {
	var (
		msg *domain.Message
		seq int64
	)
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		msg, err = scanMessage(tx.QueryRow(ctx, `
			UPDATE messages SET content = $3, edited_at = $4
			WHERE id = $1 AND sender_id = $2 AND deleted_at IS NULL
			RETURNING `+messageColumns, id, senderID, content, editedAt))
		if err != nil {
			return err
		}
		seq, err = nextSeq(ctx, tx, msg.ConversationID)
		return err
	})
	if err != nil {
		return nil, 0, storageError(r.log, err, "update message", "message_id", id)
	}
	return msg, seq, nil
}

func (r *messageRepository) SoftDelete(ctx context.Context, id uuid.UUID, senderID string, deletedAt time.Time) (*domain.Message, int64, error) {
	var (
		msg *domain.Message
		seq int64
	)
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		msg, err = scanMessage(tx.QueryRow(ctx, `
			UPDATE messages SET deleted_at = $3
			WHERE id = $1 AND sender_id = $2 AND deleted_at IS NULL
			RETURNING `+messageColumns, id, senderID, deletedAt))
		if err != nil {
			return err
		}

		if msg.ParentMessageID != nil {
			_, err = tx.Exec(ctx, `
				UPDATE messages SET thread_count = GREATEST(thread_count - 1, 0)
				WHERE id = $1
			`, *msg.ParentMessageID)
			if err != nil {
				return err
			}
		}

		seq, err = nextSeq(ctx, tx, msg.ConversationID)
		return err
	})
	if err != nil {
		return nil, 0, storageError(r.log, err, "delete message", "message_id", id)
	}
	return msg, seq, nil
}
