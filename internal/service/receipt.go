package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"realtime_chat/internal/domain"
	"realtime_chat/internal/repository"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

const maxReceiptLookup = 100

type ReceiptService interface {
	// MarkRead records that userID has read every message of the
	// conversation sent by someone else.
	MarkRead(ctx context.Context, userID string, conversationID uuid.UUID) (*domain.ReceiptPayload, error)
	List(ctx context.Context, userID string, messageIDs []uuid.UUID) ([]*domain.ReadReceipt, error)
}

type receiptService struct {
	receiptRepo   repository.ReadReceiptRepository
	messageRepo   repository.MessageRepository
	conversations ConversationService
	realtime      EventPublisher
	log           logger.Logger
	now           func() time.Time
}

func NewReceiptService(receiptRepo repository.ReadReceiptRepository, messageRepo repository.MessageRepository, conversations ConversationService, publisher EventPublisher, log logger.Logger) ReceiptService {
	return &receiptService{
		receiptRepo:   receiptRepo,
		messageRepo:   messageRepo,
		conversations: conversations,
		realtime:      publisher,
		log:           log,
		now:           time.Now,
	}
}

func (s *receiptService) MarkRead(ctx context.Context, userID string, conversationID uuid.UUID) (*domain.ReceiptPayload, error) {
	if _, err := s.conversations.RequireMember(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	readAt := s.now()
	count, err := s.receiptRepo.MarkRead(ctx, conversationID, userID, readAt)
	if err != nil {
		return nil, err
	}

	payload := &domain.ReceiptPayload{UserID: userID, ReadAt: readAt, Count: count}
	if count > 0 {
		s.realtime.Publish(ctx, domain.NewConversationEvent(domain.EventReceiptUpdated, conversationID, 0, payload))
	}
	return payload, nil
}

func (s *receiptService) List(ctx context.Context, userID string, messageIDs []uuid.UUID) ([]*domain.ReadReceipt, error) {
	if err := requireIdentity(userID); err != nil {
		return nil, err
	}
	if len(messageIDs) == 0 {
		return []*domain.ReadReceipt{}, nil
	}
	if len(messageIDs) > maxReceiptLookup {
		return nil, apperrors.Validation("at most %d message ids per request", maxReceiptLookup)
	}

	checked := make(map[uuid.UUID]struct{})
	for _, id := range messageIDs {
		msg, err := s.messageRepo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if _, ok := checked[msg.ConversationID]; ok {
			continue
		}
		if _, err := s.conversations.RequireMember(ctx, msg.ConversationID, userID); err != nil {
			return nil, err
		}
		checked[msg.ConversationID] = struct{}{}
	}
	receipts, err := s.receiptRepo.ListByMessages(ctx, messageIDs)
	if err != nil {
		return nil, err
	}
	if receipts == nil {
		receipts = []*domain.ReadReceipt{}
	}
	return receipts, nil
}
