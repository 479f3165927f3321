package service

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"realtime_chat/internal/domain"
	"realtime_chat/internal/repository"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

const maxEmojiBytes = 64

type ReactionService interface {
	// Toggle adds the reaction when absent and removes it when present,
	// returning the message's new aggregated reactions.
	Toggle(ctx context.Context, userID string, messageID uuid.UUID, emoji string) (*domain.ReactionPayload, error)
	List(ctx context.Context, userID string, messageID uuid.UUID) ([]*domain.ReactionSummary, error)
}

type reactionService struct {
	reactionRepo  repository.ReactionRepository
	messageRepo   repository.MessageRepository
	conversations ConversationService
	realtime      EventPublisher
	log           logger.Logger
	locks         *stripedLock
	now           func() time.Time
}

func NewReactionService(reactionRepo repository.ReactionRepository, messageRepo repository.MessageRepository, conversations ConversationService, publisher EventPublisher, log logger.Logger) ReactionService {
	return &reactionService{
		reactionRepo:  reactionRepo,
		messageRepo:   messageRepo,
		conversations: conversations,
		realtime:      publisher,
		log:           log,
		locks:         newStripedLock(64),
		now:           time.Now,
	}
}

func (s *reactionService) Toggle(ctx context.Context, userID string, messageID uuid.UUID, emoji string) (*domain.ReactionPayload, error) {
	if err := requireIdentity(userID); err != nil {
		return nil, err
	}
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || len(emoji) > maxEmojiBytes || !utf8.ValidString(emoji) || strings.ContainsAny(emoji, " \t\n") {
		return nil, apperrors.Validation("invalid emoji")
	}

	msg, err := s.liveMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}

	// one toggle per message at a time, so published states follow the
	// order in which they were written
	unlock := s.locks.lock(messageID)
	defer unlock()

	added, err := s.reactionRepo.Toggle(ctx, messageID, userID, emoji, s.now())
	if err != nil {
		return nil, err
	}
	reactions, err := s.reactionRepo.ListByMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	payload := &domain.ReactionPayload{
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		Added:     added,
		Reactions: AggregateReactions(reactions),
	}
	s.realtime.Publish(ctx, domain.NewConversationEvent(domain.EventReactionUpdated, msg.ConversationID, 0, payload))
	return payload, nil
}

func (s *reactionService) List(ctx context.Context, userID string, messageID uuid.UUID) ([]*domain.ReactionSummary, error) {
	if err := requireIdentity(userID); err != nil {
		return nil, err
	}
	if _, err := s.liveMessage(ctx, userID, messageID); err != nil {
		return nil, err
	}
	reactions, err := s.reactionRepo.ListByMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return AggregateReactions(reactions), nil
}

func (s *reactionService) liveMessage(ctx context.Context, userID string, messageID uuid.UUID) (*domain.Message, error) {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted() {
		return nil, apperrors.NotFound("message %s not found", messageID)
	}
	if _, err := s.conversations.RequireMember(ctx, msg.ConversationID, userID); err != nil {
		return nil, err
	}
	return msg, nil
}

// AggregateReactions groups reactions by emoji. reactions must be in
// first-seen order; the result is sorted by count descending with ties
// kept in first-seen order.
func AggregateReactions(reactions []*domain.Reaction) []*domain.ReactionSummary {
	summaries := []*domain.ReactionSummary{}
	byEmoji := make(map[string]*domain.ReactionSummary)
	for _, r := range reactions {
		summary, ok := byEmoji[r.Emoji]
		if !ok {
			summary = &domain.ReactionSummary{Emoji: r.Emoji, ReactorIDs: []string{}}
			byEmoji[r.Emoji] = summary
			summaries = append(summaries, summary)
		}
		summary.Count++
		summary.ReactorIDs = append(summary.ReactorIDs, r.UserID)
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Count > summaries[j].Count
	})
	return summaries
}
