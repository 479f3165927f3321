package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"realtime_chat/internal/domain"
	"realtime_chat/internal/repository"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

const (
	maxGroupTitleLength = 100
	maxGroupSize        = 500
)

type ConversationService interface {
	CreateOrGetDM(ctx context.Context, userID, otherUserID string) (*domain.Conversation, error)
	CreateGroup(ctx context.Context, creatorID, title string, memberIDs []string) (*domain.Conversation, error)
	AddMember(ctx context.Context, actorID string, conversationID uuid.UUID, userID string) (*domain.Member, error)
	RemoveMember(ctx context.Context, actorID string, conversationID uuid.UUID, userID string) error
	LeaveGroup(ctx context.Context, userID string, conversationID uuid.UUID) error
	List(ctx context.Context, userID string) ([]*domain.Conversation, error)
	Get(ctx context.Context, userID string, conversationID uuid.UUID) (*domain.Conversation, error)
	// RequireMember returns the caller's membership, NotFound when the
	// conversation does not exist and Forbidden when the caller is not in it.
	RequireMember(ctx context.Context, conversationID uuid.UUID, userID string) (*domain.Member, error)
}

type conversationService struct {
	convRepo repository.ConversationRepository
	realtime Realtime
	log      logger.Logger
	now      func() time.Time

	// concurrent createOrGetDM calls for the same pair share one round trip
	dmFlight singleflight.Group
}

func NewConversationService(convRepo repository.ConversationRepository, rt Realtime, log logger.Logger) ConversationService {
	return &conversationService{
		convRepo: convRepo,
		realtime: rt,
		log:      log,
		now:      time.Now,
	}
}

func (s *conversationService) CreateOrGetDM(ctx context.Context, userID, otherUserID string) (*domain.Conversation, error) {
	if err := requireIdentity(userID); err != nil {
		return nil, err
	}
	otherUserID = strings.TrimSpace(otherUserID)
	if otherUserID == "" {
		return nil, apperrors.Validation("user_id is required")
	}
	if otherUserID == userID {
		return nil, apperrors.Validation("cannot start a direct conversation with yourself")
	}

	v, err, _ := s.dmFlight.Do(domain.DMKey(userID, otherUserID), func() (any, error) {
		existing, err := s.convRepo.FindDM(ctx, userID, otherUserID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}

		now := s.now()
		conv, created, err := s.convRepo.CreateDM(ctx, &domain.Conversation{
			ID:        uuid.New(),
			CreatedBy: userID,
			CreatedAt: now,
		}, userID, otherUserID)
		if err != nil {
			return nil, err
		}
		if created {
			s.log.Info("DM created", "conversation_id", conv.ID, "user_a", userID, "user_b", otherUserID)
		}
		return conv, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Conversation), nil
}

func (s *conversationService) CreateGroup(ctx context.Context, creatorID, title string, memberIDs []string) (*domain.Conversation, error) {
	if err := requireIdentity(creatorID); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperrors.Validation("title is required")
	}
	if utf8.RuneCountInString(title) > maxGroupTitleLength {
		return nil, apperrors.Validation("title must be at most %d characters", maxGroupTitleLength)
	}

	now := s.now()
	conv := &domain.Conversation{
		ID:        uuid.New(),
		Title:     &title,
		CreatedBy: creatorID,
		CreatedAt: now,
	}

	members := []*domain.Member{{ConversationID: conv.ID, UserID: creatorID, Role: domain.MemberRoleAdmin, JoinedAt: now}}
	seen := map[string]struct{}{creatorID: {}}
	for _, id := range memberIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, &domain.Member{ConversationID: conv.ID, UserID: id, Role: domain.MemberRoleMember, JoinedAt: now})
	}
	if len(members) < 2 {
		return nil, apperrors.Validation("a group needs at least one member besides the creator")
	}
	if len(members) > maxGroupSize {
		return nil, apperrors.Validation("a group can have at most %d members", maxGroupSize)
	}

	if err := s.convRepo.CreateGroup(ctx, conv, members); err != nil {
		s.log.Error("Failed to create group", "error", err, "creator_id", creatorID)
		return nil, err
	}

	s.log.Info("Group created", "conversation_id", conv.ID, "creator_id", creatorID, "members", len(members))
	return conv, nil
}

func (s *conversationService) AddMember(ctx context.Context, actorID string, conversationID uuid.UUID, userID string) (*domain.Member, error) {
	if err := requireIdentity(actorID); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.Validation("user_id is required")
	}
	if _, err := s.requireGroupAdmin(ctx, conversationID, actorID); err != nil {
		return nil, err
	}

	member := &domain.Member{
		ConversationID: conversationID,
		UserID:         userID,
		Role:           domain.MemberRoleMember,
		JoinedAt:       s.now(),
	}
	if err := s.convRepo.AddMember(ctx, member); err != nil {
		return nil, err
	}

	s.realtime.Publish(ctx, domain.NewConversationEvent(domain.EventMemberAdded, conversationID, 0, domain.MemberPayload{
		UserID: userID,
		Role:   member.Role,
		By:     actorID,
	}))
	return member, nil
}

func (s *conversationService) RemoveMember(ctx context.Context, actorID string, conversationID uuid.UUID, userID string) error {
	if err := requireIdentity(actorID); err != nil {
		return err
	}
	if userID == actorID {
		return s.LeaveGroup(ctx, actorID, conversationID)
	}
	if _, err := s.requireGroupAdmin(ctx, conversationID, actorID); err != nil {
		return err
	}

	if err := s.convRepo.RemoveMember(ctx, conversationID, userID); err != nil {
		return err
	}
	s.afterRemoval(ctx, conversationID, userID, actorID)
	return nil
}

func (s *conversationService) LeaveGroup(ctx context.Context, userID string, conversationID uuid.UUID) error {
	if err := requireIdentity(userID); err != nil {
		return err
	}
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.Kind == domain.ConversationKindDM {
		return apperrors.Forbidden("cannot leave a direct conversation")
	}
	if _, err := s.RequireMember(ctx, conversationID, userID); err != nil {
		return err
	}

	members, err := s.convRepo.ListMembers(ctx, conversationID)
	if err != nil {
		return err
	}
	if len(members) <= 1 {
		return apperrors.Conflict("the last member cannot leave a group")
	}

	if err := s.convRepo.RemoveMember(ctx, conversationID, userID); err != nil {
		return err
	}
	s.afterRemoval(ctx, conversationID, userID, userID)
	return nil
}

func (s *conversationService) List(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	if err := requireIdentity(userID); err != nil {
		return nil, err
	}
	conversations, err := s.convRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if conversations == nil {
		conversations = []*domain.Conversation{}
	}
	return conversations, nil
}

func (s *conversationService) Get(ctx context.Context, userID string, conversationID uuid.UUID) (*domain.Conversation, error) {
	if err := requireIdentity(userID); err != nil {
		return nil, err
	}
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	members, err := s.convRepo.ListMembers(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if m.UserID == userID {
			conv.Members = members
			return conv, nil
		}
	}
	return nil, apperrors.Forbidden("not a member of conversation %s", conversationID)
}

func (s *conversationService) RequireMember(ctx context.Context, conversationID uuid.UUID, userID string) (*domain.Member, error) {
	if err := requireIdentity(userID); err != nil {
		return nil, err
	}
	member, err := s.convRepo.GetMember(ctx, conversationID, userID)
	if err == nil {
		return member, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	// tell a missing conversation apart from a missing membership
	if _, err := s.convRepo.GetByID(ctx, conversationID); err != nil {
		return nil, err
	}
	return nil, apperrors.Forbidden("not a member of conversation %s", conversationID)
}

func (s *conversationService) requireGroupAdmin(ctx context.Context, conversationID uuid.UUID, actorID string) (*domain.Member, error) {
	conv, err := s.convRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Kind == domain.ConversationKindDM {
		return nil, apperrors.Forbidden("direct conversations have fixed membership")
	}
	member, err := s.RequireMember(ctx, conversationID, actorID)
	if err != nil {
		return nil, err
	}
	if member.Role != domain.MemberRoleAdmin {
		return nil, apperrors.Forbidden("only admins can manage members")
	}
	return member, nil
}

func (s *conversationService) afterRemoval(ctx context.Context, conversationID uuid.UUID, userID, actorID string) {
	s.log.Info("Member removed", "conversation_id", conversationID, "user_id", userID, "by", actorID)
	s.realtime.Publish(ctx, domain.NewConversationEvent(domain.EventMemberRemoved, conversationID, 0, domain.MemberPayload{
		UserID: userID,
		By:     actorID,
	}))
	s.realtime.RevokeConversation(userID, conversationID)
}
