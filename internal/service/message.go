package service

import (
	"context"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"realtime_chat/internal/domain"
	"realtime_chat/internal/metrics"
	"realtime_chat/internal/repository"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

const (
	MaxMessageLength = 4000
	maxFileRefLength = 2048
)

// MessageService is the single entry point for new message content. Every
// accepted write is persisted first and then published with the sequence
// number the store assigned to it.
type MessageService interface {
	Send(ctx context.Context, draft domain.MessageDraft) (*domain.Message, error)
	SendThreadReply(ctx context.Context, userID string, parentID uuid.UUID, content, fileRef *string) (*domain.Message, error)
	Edit(ctx context.Context, userID string, messageID uuid.UUID, content string) (*domain.Message, error)
	Delete(ctx context.Context, userID string, messageID uuid.UUID) (*domain.Message, error)
	Get(ctx context.Context, userID string, messageID uuid.UUID) (*domain.Message, error)
	List(ctx context.Context, userID string, conversationID uuid.UUID, beforeSeq int64, limit int) ([]*domain.Message, error)
	GetThreadMessages(ctx context.Context, userID string, parentID uuid.UUID) ([]*domain.Message, error)
	GetThreadCount(ctx context.Context, userID string, parentID uuid.UUID) (int64, error)
	// Search matches content case-insensitively across the caller's
	// conversations, or within conversationID when it is set.
	Search(ctx context.Context, userID, query string, conversationID *uuid.UUID, limit int) ([]*domain.Message, error)
	SetThreadSubscription(ctx context.Context, userID string, parentID uuid.UUID, subscribed bool) (*domain.ThreadSubscription, error)
	// GetThreadSubscription reports unsubscribed for users who never chose.
	GetThreadSubscription(ctx context.Context, userID string, parentID uuid.UUID) (*domain.ThreadSubscription, error)
}

type messageService struct {
	messageRepo   repository.MessageRepository
	subsRepo      repository.ThreadSubscriptionRepository
	conversations ConversationService
	realtime      EventPublisher
	metrics       *metrics.Metrics
	log           logger.Logger
	locks         *stripedLock
	now           func() time.Time
}

func NewMessageService(messageRepo repository.MessageRepository, subsRepo repository.ThreadSubscriptionRepository, conversations ConversationService, publisher EventPublisher, m *metrics.Metrics, log logger.Logger) MessageService {
	return &messageService{
		messageRepo:   messageRepo,
		subsRepo:      subsRepo,
		conversations: conversations,
		realtime:      publisher,
		metrics:       m,
		log:           log,
		locks:         newStripedLock(256),
		now:           time.Now,
	}
}

func (s *messageService) Send(ctx context.Context, draft domain.MessageDraft) (*domain.Message, error) {
	if err := requireIdentity(draft.SenderID); err != nil {
		return nil, err
	}
	content, fileRef, err := normalizeBody(draft.Content, draft.FileRef)
	if err != nil {
		return nil, err
	}
	if _, err := s.conversations.RequireMember(ctx, draft.ConversationID, draft.SenderID); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(draft.ConversationID)
	defer unlock()

	msg := &domain.Message{
		ID:              uuid.New(),
		ConversationID:  draft.ConversationID,
		SenderID:        draft.SenderID,
		Content:         content,
		FileRef:         fileRef,
		ParentMessageID: draft.ParentMessageID,
		CreatedAt:       s.now(),
	}
	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, err
	}
	s.metrics.MessageWritten("create")

	s.realtime.Publish(ctx, domain.NewConversationEvent(domain.EventMessageCreated, msg.ConversationID, msg.Seq, msg))
	return msg, nil
}

func (s *messageService) SendThreadReply(ctx context.Context, userID string, parentID uuid.UUID, content, fileRef *string) (*domain.Message, error) {
	if err := requireIdentity(userID); err != nil {
		return nil, err
	}
	parent, err := s.messageRepo.GetByID(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if parent.IsDeleted() {
		return nil, apperrors.NotFound("message %s not found", parentID)
	}
	if parent.ParentMessageID != nil {
		return nil, apperrors.Validation("replies cannot be nested")
	}

	return s.Send(ctx, domain.MessageDraft{
		ConversationID:  parent.ConversationID,
		SenderID:        userID,
		Content:         content,
		FileRef:         fileRef,
		ParentMessageID: &parent.ID,
	})
}

func (s *messageService) Edit(ctx context.Context, userID string, messageID uuid.UUID, content string) (*domain.Message, error) {
	if err := requireIdentity(userID); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperrors.Validation("content is required")
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return nil, apperrors.Validation("content must be at most %d characters", MaxMessageLength)
	}

	current, err := s.ownMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(current.ConversationID)
	defer unlock()

	msg, seq, err := s.messageRepo.UpdateContent(ctx, messageID, userID, content, s.now())
	if err != nil {
		return nil, err
	}
	s.metrics.MessageWritten("edit")

	s.realtime.Publish(ctx, domain.NewConversationEvent(domain.EventMessageEdited, msg.ConversationID, seq, msg))
	return msg, nil
}

func (s *messageService) Delete(ctx context.Context, userID string, messageID uuid.UUID) (*domain.Message, error) {
	if err := requireIdentity(userID); err != nil {
		return nil, err
	}
	current, err := s.ownMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(current.ConversationID)
	defer unlock()

	msg, seq, err := s.messageRepo.SoftDelete(ctx, messageID, userID, s.now())
	if err != nil {
		return nil, err
	}
	s.metrics.MessageWritten("delete")

	// tombstones never carry their content to subscribers
	s.realtime.Publish(ctx, domain.NewConversationEvent(domain.EventMessageDeleted, msg.ConversationID, seq, domain.MessageDeletedPayload{
		MessageID: msg.ID,
		DeletedAt: *msg.DeletedAt,
	}))
	return msg, nil
}

func (s *messageService) Get(ctx context.Context, userID string, messageID uuid.UUID) (*domain.Message, error) {
	if err := requireIdentity(userID); err != nil {
		return nil, err
	}
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.conversations.RequireMember(ctx, msg.ConversationID, userID); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *messageService) List(ctx context.Context, userID string, conversationID uuid.UUID, beforeSeq int64, limit int) ([]*domain.Message, error) {
	if beforeSeq < 0 {
		return nil, apperrors.Validation("before must not be negative")
	}
	if limit <= 0 {
		limit = domain.DefaultMessagePageSize
	}
	if limit > domain.MaxMessagePageSize {
		limit = domain.MaxMessagePageSize
	}
	if _, err := s.conversations.RequireMember(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	messages, err := s.messageRepo.List(ctx, conversationID, beforeSeq, limit)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []*domain.Message{}
	}
	return messages, nil
}

func (s *messageService) GetThreadMessages(ctx context.Context, userID string, parentID uuid.UUID) ([]*domain.Message, error) {
	if _, err := s.Get(ctx, userID, parentID); err != nil {
		return nil, err
	}
	replies, err := s.messageRepo.ListThread(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if replies == nil {
		replies = []*domain.Message{}
	}
	return replies, nil
}

func (s *messageService) GetThreadCount(ctx context.Context, userID string, parentID uuid.UUID) (int64, error) {
	if _, err := s.Get(ctx, userID, parentID); err != nil {
		return 0, err
	}
	return s.messageRepo.CountThread(ctx, parentID)
}

func (s *messageService) Search(ctx context.Context, userID, query string, conversationID *uuid.UUID, limit int) ([]*domain.Message, error) {
	if err := requireIdentity(userID); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	n := utf8.RuneCountInString(query)
	if n < domain.MinSearchQueryLength {
		return nil, apperrors.Validation("query must be at least %d characters", domain.MinSearchQueryLength)
	}
	if n > domain.MaxSearchQueryLength {
		return nil, apperrors.Validation("query must be at most %d characters", domain.MaxSearchQueryLength)
	}
	if limit <= 0 {
		limit = domain.DefaultMessagePageSize
	}
	if limit > domain.MaxMessagePageSize {
		limit = domain.MaxMessagePageSize
	}
	if conversationID != nil {
		if _, err := s.conversations.RequireMember(ctx, *conversationID, userID); err != nil {
			return nil, err
		}
	}

	messages, err := s.messageRepo.Search(ctx, userID, conversationID, query, limit)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []*domain.Message{}
	}
	return messages, nil
}

func (s *messageService) SetThreadSubscription(ctx context.Context, userID string, parentID uuid.UUID, subscribed bool) (*domain.ThreadSubscription, error) {
	if _, err := s.threadParent(ctx, userID, parentID); err != nil {
		return nil, err
	}
	sub, err := s.subsRepo.Set(ctx, parentID, userID, subscribed, s.now())
	if err != nil {
		return nil, err
	}
	s.log.Debug("Thread subscription updated", "message_id", parentID, "user_id", userID, "subscribed", subscribed)
	return sub, nil
}

func (s *messageService) GetThreadSubscription(ctx context.Context, userID string, parentID uuid.UUID) (*domain.ThreadSubscription, error) {
	if _, err := s.threadParent(ctx, userID, parentID); err != nil {
		return nil, err
	}
	sub, err := s.subsRepo.Get(ctx, parentID, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		sub = &domain.ThreadSubscription{MessageID: parentID, UserID: userID}
	}
	return sub, nil
}

// threadParent loads a live top-level message the caller can see.
func (s *messageService) threadParent(ctx context.Context, userID string, parentID uuid.UUID) (*domain.Message, error) {
	parent, err := s.Get(ctx, userID, parentID)
	if err != nil {
		return nil, err
	}
	if parent.IsDeleted() {
		return nil, apperrors.NotFound("message %s not found", parentID)
	}
	if parent.ParentMessageID != nil {
		return nil, apperrors.Validation("replies do not have threads")
	}
	return parent, nil
}

// ownMessage loads a live message and checks the caller sent it and is
// still a member of its conversation.
func (s *messageService) ownMessage(ctx context.Context, userID string, messageID uuid.UUID) (*domain.Message, error) {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted() {
		return nil, apperrors.NotFound("message %s not found", messageID)
	}
	if msg.SenderID != userID {
		return nil, apperrors.Forbidden("only the sender can change a message")
	}
	if _, err := s.conversations.RequireMember(ctx, msg.ConversationID, userID); err != nil {
		return nil, err
	}
	return msg, nil
}

// normalizeBody trims the content and checks that at least one of content
// and fileRef is present. Content alongside a file is its caption.
func normalizeBody(content, fileRef *string) (*string, *string, error) {
	if content != nil {
		trimmed := strings.TrimSpace(*content)
		if trimmed == "" {
			content = nil
		} else {
			if utf8.RuneCountInString(trimmed) > MaxMessageLength {
				return nil, nil, apperrors.Validation("content must be at most %d characters", MaxMessageLength)
			}
			content = &trimmed
		}
	}
	if fileRef != nil {
		ref := strings.TrimSpace(*fileRef)
		if ref == "" {
			fileRef = nil
		} else {
			if len(ref) > maxFileRefLength {
				return nil, nil, apperrors.Validation("file_ref is too long")
			}
			u, err := url.Parse(ref)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return nil, nil, apperrors.Validation("file_ref must be an absolute http(s) URL")
			}
			fileRef = &ref
		}
	}
	if content == nil && fileRef == nil {
		return nil, nil, apperrors.Validation("a message needs content or a file")
	}
	return content, fileRef, nil
}
