package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"realtime_chat/internal/domain"
	apperrors "realtime_chat/pkg/errors"
)

type conversationRepository struct {
	s *store
}

func (r *conversationRepository) CreateDM(_ context.Context, conv *domain.Conversation, userA, userB string) (*domain.Conversation, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := domain.DMKey(userA, userB)
	if id, ok := r.s.dmKeys[key]; ok {
		return r.withMembersLocked(r.s.conversations[id]), false, nil
	}

	conv.Kind = domain.ConversationKindDM
	conv.UpdatedAt = conv.CreatedAt
	r.s.conversations[conv.ID] = cloneConversation(conv)
	r.s.dmKeys[key] = conv.ID
	r.s.members[conv.ID] = map[string]*domain.Member{
		userA: {ConversationID: conv.ID, UserID: userA, Role: domain.MemberRoleMember, JoinedAt: conv.CreatedAt},
		userB: {ConversationID: conv.ID, UserID: userB, Role: domain.MemberRoleMember, JoinedAt: conv.CreatedAt},
	}
	conv.Members = r.membersLocked(conv.ID)
	return conv, true, nil
}

func (r *conversationRepository) FindDM(_ context.Context, userA, userB string) (*domain.Conversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for id, members := range r.s.members {
		conv := r.s.conversations[id]
		if conv == nil || conv.Kind != domain.ConversationKindDM {
			continue
		}
		_, hasA := members[userA]
		_, hasB := members[userB]
		if hasA && hasB {
			return r.withMembersLocked(conv), nil
		}
	}
	return nil, apperrors.NotFound("dm not found")
}

func (r *conversationRepository) CreateGroup(_ context.Context, conv *domain.Conversation, members []*domain.Member) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.conversations[conv.ID]; ok {
		return apperrors.Conflict("conversation %s already exists", conv.ID)
	}
	set := make(map[string]*domain.Member, len(members))
	for _, m := range members {
		if _, dup := set[m.UserID]; dup {
			// nothing has been written yet, so this is the rollback
			return apperrors.Conflict("member %s listed twice", m.UserID)
		}
		cp := *m
		cp.ConversationID = conv.ID
		set[m.UserID] = &cp
	}

	conv.Kind = domain.ConversationKindGroup
	conv.UpdatedAt = conv.CreatedAt
	r.s.conversations[conv.ID] = cloneConversation(conv)
	r.s.members[conv.ID] = set
	conv.Members = r.membersLocked(conv.ID)
	return nil
}

func (r *conversationRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Conversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	conv, ok := r.s.conversations[id]
	if !ok {
		return nil, apperrors.NotFound("conversation %s not found", id)
	}
	return cloneConversation(conv), nil
}

func (r *conversationRepository) ListForUser(_ context.Context, userID string) ([]*domain.Conversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*domain.Conversation
	for id, members := range r.s.members {
		if _, ok := members[userID]; !ok {
			continue
		}
		out = append(out, r.withMembersLocked(r.s.conversations[id]))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (r *conversationRepository) GetMember(_ context.Context, conversationID uuid.UUID, userID string) (*domain.Member, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	m, ok := r.s.members[conversationID][userID]
	if !ok {
		return nil, apperrors.NotFound("member %s not found", userID)
	}
	cp := *m
	return &cp, nil
}

func (r *conversationRepository) ListMembers(_ context.Context, conversationID uuid.UUID) ([]*domain.Member, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.membersLocked(conversationID), nil
}

func (r *conversationRepository) AddMember(_ context.Context, member *domain.Member) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.conversations[member.ConversationID]; !ok {
		return apperrors.NotFound("conversation %s not found", member.ConversationID)
	}
	members := r.s.members[member.ConversationID]
	if _, ok := members[member.UserID]; ok {
		return apperrors.Conflict("add member: already exists")
	}
	cp := *member
	members[member.UserID] = &cp
	return nil
}

func (r *conversationRepository) RemoveMember(_ context.Context, conversationID uuid.UUID, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	members := r.s.members[conversationID]
	m, ok := members[userID]
	if !ok {
		return apperrors.NotFound("member %s not found", userID)
	}
	if m.Role == domain.MemberRoleAdmin {
		admins := 0
		for _, other := range members {
			if other.Role == domain.MemberRoleAdmin {
				admins++
			}
		}
		if admins <= 1 {
			return apperrors.Conflict("cannot remove the last admin of a conversation")
		}
	}
	delete(members, userID)
	return nil
}

func (r *conversationRepository) withMembersLocked(conv *domain.Conversation) *domain.Conversation {
	out := cloneConversation(conv)
	out.Members = r.membersLocked(conv.ID)
	return out
}

func (r *conversationRepository) membersLocked(conversationID uuid.UUID) []*domain.Member {
	members := make([]*domain.Member, 0, len(r.s.members[conversationID]))
	for _, m := range r.s.members[conversationID] {
		cp := *m
		members = append(members, &cp)
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].UserID < members[j].UserID
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members
}
