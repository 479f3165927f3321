package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"realtime_chat/internal/domain"
	"realtime_chat/pkg/logger"
)

type ThreadSubscriptionRepository interface {
	// Set upserts the caller's subscription flag for a thread.
	Set(ctx context.Context, messageID uuid.UUID, userID string, subscribed bool, at time.Time) (*domain.ThreadSubscription, error)
	// Get returns the stored row, or nil when the user never chose.
	Get(ctx context.Context, messageID uuid.UUID, userID string) (*domain.ThreadSubscription, error)
}

type threadSubscriptionRepository struct {
	db  DB
	log logger.Logger
}

func NewThreadSubscriptionRepository(db DB, log logger.Logger) ThreadSubscriptionRepository {
	return &threadSubscriptionRepository{db: db, log: log}
}

func (r *threadSubscriptionRepository) Set(ctx context.Context, messageID uuid.UUID, userID string, subscribed bool, at time.Time) (*domain.ThreadSubscription, error) {
	sub := &domain.ThreadSubscription{}
	err := r.db.QueryRow(ctx, `
		INSERT INTO thread_subscriptions (message_id, user_id, subscribed, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id, user_id)
		DO UPDATE SET subscribed = EXCLUDED.subscribed, updated_at = EXCLUDED.updated_at
		RETURNING message_id, user_id, subscribed, updated_at
	`, messageID, userID, subscribed, at).Scan(&sub.MessageID, &sub.UserID, &sub.Subscribed, &sub.UpdatedAt)
	if err != nil {
		return nil, storageError(r.log, err, "set thread subscription", "message_id", messageID, "user_id", userID)
	}
	return sub, nil
}

func (r *threadSubscriptionRepository) Get(ctx context.Context, messageID uuid.UUID, userID string) (*domain.ThreadSubscription, error) {
	sub := &domain.ThreadSubscription{}
	err := r.db.QueryRow(ctx, `
		SELECT message_id, user_id, subscribed, updated_at
		FROM thread_subscriptions
		WHERE message_id = $1 AND user_id = $2
	`, messageID, userID).Scan(&sub.MessageID, &sub.UserID, &sub.Subscribed, &sub.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError(r.log, err, "get thread subscription", "message_id", messageID, "user_id", userID)
	}
	return sub, nil
}
