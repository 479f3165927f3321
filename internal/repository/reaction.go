package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"realtime_chat/internal/domain"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

type ReactionRepository interface {
	// Toggle removes the (message, user, emoji) row if present, otherwise
	// inserts it. A concurrent insert of the same row yields Conflict.
	Toggle(ctx context.Context, messageID uuid.UUID, userID, emoji string, at time.Time) (added bool, err error)
	// ListByMessage returns reactions in first-seen order.
	ListByMessage(ctx context.Context, messageID uuid.UUID) ([]*domain.Reaction, error)
}

type reactionRepository struct {
	db  DB
	log logger.Logger
}

func NewReactionRepository(db DB, log logger.Logger) ReactionRepository {
	return &reactionRepository{db: db, log: log}
}

func (r *reactionRepository) Toggle(ctx context.Context, messageID uuid.UUID, userID, emoji string, at time.Time) (bool, error) {
	var added bool
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			DELETE FROM message_reactions
			WHERE message_id = $1 AND user_id = $2 AND emoji = $3
		`, messageID, userID, emoji)
		if err != nil {
			return err
		}
		if tag.RowsAffected() > 0 {
			added = false
			return nil
		}

		tag, err = tx.Exec(ctx, `
			INSERT INTO message_reactions (message_id, user_id, emoji, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (message_id, user_id, emoji) DO NOTHING
		`, messageID, userID, emoji, at)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperrors.Conflict("reaction %s already added", emoji)
		}
		added = true
		return nil
	})
	if err != nil {
		return false, storageError(r.log, err, "toggle reaction", "message_id", messageID, "user_id", userID)
	}
	return added, nil
}

func (r *reactionRepository) ListByMessage(ctx context.Context, messageID uuid.UUID) ([]*domain.Reaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT message_id, user_id, emoji, created_at
		FROM message_reactions
		WHERE message_id = $1
		ORDER BY created_at, user_id
	`, messageID)
	if err != nil {
		return nil, storageError(r.log, err, "list reactions", "message_id", messageID)
	}
	defer rows.Close()

	var reactions []*domain.Reaction
	for rows.Next() {
		reaction := &domain.Reaction{}
		if err := rows.Scan(&reaction.MessageID, &reaction.UserID, &reaction.Emoji, &reaction.CreatedAt); err != nil {
			return nil, storageError(r.log, err, "scan reaction", "message_id", messageID)
		}
		reactions = append(reactions, reaction)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError(r.log, err, "list reactions", "message_id", messageID)
	}
	return reactions, nil
}
