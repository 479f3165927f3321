package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"realtime_chat/internal/domain"
	apperrors "realtime_chat/pkg/errors"
)

type threadSubscriptionRepository struct {
	s *store
}

func (r *threadSubscriptionRepository) Set(_ context.Context, messageID uuid.UUID, userID string, subscribed bool, at time.Time) (*domain.ThreadSubscription, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.messages[messageID]; !ok {
		return nil, apperrors.NotFound("message %s not found", messageID)
	}
	sub := &domain.ThreadSubscription{
		MessageID:  messageID,
		UserID:     userID,
		Subscribed: subscribed,
		UpdatedAt:  at,
	}
	r.s.threadSubs[receiptKey{messageID: messageID, userID: userID}] = sub
	clone := *sub
	return &clone, nil
}

func (r *threadSubscriptionRepository) Get(_ context.Context, messageID uuid.UUID, userID string) (*domain.ThreadSubscription, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	sub, ok := r.s.threadSubs[receiptKey{messageID: messageID, userID: userID}]
	if !ok {
		return nil, nil
	}
	clone := *sub
	return &clone, nil
}
