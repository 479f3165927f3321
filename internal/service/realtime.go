package service

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"realtime_chat/internal/domain"
	apperrors "realtime_chat/pkg/errors"
)

// EventPublisher hands events to the fan-out layer. Publishing never fails
// from the caller's point of view; delivery is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, evt domain.Event)
}

// SubscriptionRevoker drops a user's live subscriptions to a conversation
// once they are no longer a member.
type SubscriptionRevoker interface {
	RevokeConversation(userID string, conversationID uuid.UUID)
}

type Realtime interface {
	EventPublisher
	SubscriptionRevoker
}

// stripedLock serialises work per key over a fixed set of mutexes. The
// message pipeline holds a conversation's stripe across persist and
// publish, so events leave the process in sequence order.
type stripedLock struct {
	stripes []sync.Mutex
}

func newStripedLock(n int) *stripedLock {
	if n <= 0 {
		n = 256
	}
	return &stripedLock{stripes: make([]sync.Mutex, n)}
}

func (l *stripedLock) lock(key uuid.UUID) (unlock func()) {
	m := &l.stripes[xxhash.Sum64(key[:])%uint64(len(l.stripes))]
	m.Lock()
	return m.Unlock
}

func requireIdentity(userID string) error {
	if userID == "" {
		return apperrors.Unauthorized("authentication required")
	}
	return nil
}
