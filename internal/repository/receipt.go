package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"realtime_chat/internal/domain"
	"realtime_chat/pkg/logger"
)

type ReadReceiptRepository interface {
	// MarkRead upserts a receipt for every live message in the conversation
	// not sent by userID. Existing receipts only move forward in time.
	// Returns the number of receipts written.
	MarkRead(ctx context.Context, conversationID uuid.UUID, userID string, readAt time.Time) (int64, error)
	ListByMessages(ctx context.Context, messageIDs []uuid.UUID) ([]*domain.ReadReceipt, error)
}

type readReceiptRepository struct {
	db  DB
	log logger.Logger
}

func NewReadReceiptRepository(db DB, log logger.Logger) ReadReceiptRepository {
	return &readReceiptRepository{db: db, log: log}
}

func (r *readReceiptRepository) MarkRead(ctx context.Context, conversationID uuid.UUID, userID string, readAt time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO read_receipts (message_id, user_id, read_at)
		SELECT m.id, $2, $3
		FROM messages m
		WHERE m.conversation_id = $1 AND m.sender_id <> $2 AND m.deleted_at IS NULL
		ON CONFLICT (message_id, user_id)
		DO UPDATE SET read_at = EXCLUDED.read_at
		WHERE read_receipts.read_at < EXCLUDED.read_at
	`, conversationID, userID, readAt)
	if err != nil {
		return 0, storageError(r.log, err, "mark read", "conversation_id", conversationID, "user_id", userID)
	}
	return tag.RowsAffected(), nil
}

func (r *readReceiptRepository) ListByMessages(ctx context.Context, messageIDs []uuid.UUID) ([]*domain.ReadReceipt, error) {
	if len(messageIDs) == 0 {
		return []*domain.ReadReceipt{}, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT message_id, user_id, read_at
		FROM read_receipts
		WHERE message_id = ANY($1::uuid[])
		ORDER BY read_at, user_id
	`, uuidStrings(messageIDs))
	if err != nil {
		return nil, storageError(r.log, err, "list receipts")
	}
	defer rows.Close()

	receipts := []*domain.ReadReceipt{}
	for rows.Next() {
		receipt := &domain.ReadReceipt{}
		if err := rows.Scan(&receipt.MessageID, &receipt.UserID, &receipt.ReadAt); err != nil {
			return nil, storageError(r.log, err, "scan receipt")
		}
		receipts = append(receipts, receipt)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(r.log, err, "list receipts")
	}
	return receipts, nil
}
