package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"realtime_chat/internal/domain"
	apperrors "realtime_chat/pkg/errors"
)

type messageRepository struct {
	s *store
}

func (r *messageRepository) Create(_ context.Context, msg *domain.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	conv, ok := r.s.conversations[msg.ConversationID]
	if !ok {
		return apperrors.NotFound("conversation %s not found", msg.ConversationID)
	}
	if _, ok := r.s.messages[msg.ID]; ok {
		return apperrors.Conflict("message %s already exists", msg.ID)
	}

	var parent *domain.Message
	if msg.ParentMessageID != nil {
		parent = r.s.messages[*msg.ParentMessageID]
		if parent == nil || parent.ConversationID != msg.ConversationID || parent.IsDeleted() {
			return apperrors.NotFound("parent message %s not found", *msg.ParentMessageID)
		}
	}

	conv.LastSeq++
	conv.UpdatedAt = msg.CreatedAt
	msg.Seq = conv.LastSeq
	msg.ThreadCount = 0
	if parent != nil {
		parent.ThreadCount++
	}

	r.s.messages[msg.ID] = cloneMessage(msg)
	r.s.byConversation[msg.ConversationID] = append(r.s.byConversation[msg.ConversationID], msg.ID)
	return nil
}

func (r *messageRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	msg, ok := r.s.messages[id]
	if !ok {
		return nil, apperrors.NotFound("message %s not found", id)
	}
	return cloneMessage(msg), nil
}

func (r *messageRepository) List(_ context.Context, conversationID uuid.UUID, beforeSeq int64, limit int) ([]*domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ids := r.s.byConversation[conversationID]
	var page []*domain.Message
	// ids are in seq order; walk backwards to take the newest page
	for i := len(ids) - 1; i >= 0 && len(page) < limit; i-- {
		msg := r.s.messages[ids[i]]
		if msg.ParentMessageID != nil || msg.IsDeleted() {
			continue
		}
		if beforeSeq > 0 && msg.Seq >= beforeSeq {
			continue
		}
		page = append(page, cloneMessage(msg))
	}
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	return page, nil
}

func (r *messageRepository) ListThread(_ context.Context, parentID uuid.UUID) ([]*domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var replies []*domain.Message
	for _, msg := range r.s.messages {
		if msg.ParentMessageID != nil && *msg.ParentMessageID == parentID && !msg.IsDeleted() {
			replies = append(replies, cloneMessage(msg))
		}
	}
	sort.Slice(replies, func(i, j int) bool {
		if replies[i].CreatedAt.Equal(replies[j].CreatedAt) {
			return replies[i].Seq < replies[j].Seq
		}
		return replies[i].CreatedAt.Before(replies[j].CreatedAt)
	})
	return replies, nil
}

func (r *messageRepository) CountThread(ctx context.Context, parentID uuid.UUID) (int64, error) {
	replies, err := r.ListThread(ctx, parentID)
	if err != nil {
		return 0, err
	}
	return int64(len(replies)), nil
}

func (r *messageRepository) Search(_ context.Context, userID string, conversationID *uuid.UUID, query string, limit int) ([]*domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	needle := strings.ToLower(query)
	hits := []*domain.Message{}
	for convID, ids := range r.s.byConversation {
		if conversationID != nil && convID != *conversationID {
			continue
		}
		if _, ok := r.s.members[convID][userID]; !ok {
			continue
		}
		for _, id := range ids {
			msg := r.s.messages[id]
			if msg.IsDeleted() || msg.Content == nil {
				continue
			}
			if strings.Contains(strings.ToLower(*msg.Content), needle) {
				hits = append(hits, cloneMessage(msg))
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].CreatedAt.Equal(hits[j].CreatedAt) {
			return hits[i].Seq > hits[j].Seq
		}
		return hits[i].CreatedAt.After(hits[j].CreatedAt)
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (r *messageRepository) UpdateContent(_ context.Context, id uuid.UUID, senderID, content string, editedAt time.Time) (*domain.Message, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	msg, err := r.ownedLocked(id, senderID)
	if err != nil {
		return nil, 0, err
	}
	msg.Content = &content
	at := editedAt
	msg.EditedAt = &at
	return cloneMessage(msg), r.bumpLocked(msg.ConversationID), nil
}

func (r *messageRepository) SoftDelete(_ context.Context, id uuid.UUID, senderID string, deletedAt time.Time) (*domain.Message, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	msg, err := r.ownedLocked(id, senderID)
	if err != nil {
		return nil, 0, err
	}
	at := deletedAt
	msg.DeletedAt = &at
	if msg.ParentMessageID != nil {
		if parent := r.s.messages[*msg.ParentMessageID]; parent != nil && parent.ThreadCount > 0 {
			parent.ThreadCount--
		}
	}
	return cloneMessage(msg), r.bumpLocked(msg.ConversationID), nil
}

func (r *messageRepository) ownedLocked(id uuid.UUID, senderID string) (*domain.Message, error) {
	msg, ok := r.s.messages[id]
	if !ok || msg.SenderID != senderID || msg.IsDeleted() {
		return nil, apperrors.NotFound("message %s not found", id)
	}
	return msg, nil
}

func (r *messageRepository) bumpLocked(conversationID uuid.UUID) int64 {
	conv := r.s.conversations[conversationID]
	conv.LastSeq++
	return conv.LastSeq
}
