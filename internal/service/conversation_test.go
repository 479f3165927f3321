package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"realtime_chat/internal/domain"
	apperrors "realtime_chat/pkg/errors"
)

func TestCreateOrGetDMIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const callers = 20
	ids := make([]uuid.UUID, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := "alice", "bob"
			if i%2 == 1 {
				a, b = b, a
			}
			conv, err := f.services.Conversation.CreateOrGetDM(ctx, a, b)
			require.NoError(t, err)
			ids[i] = conv.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}

	convs, err := f.services.Conversation.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, domain.ConversationKindDM, convs[0].Kind)
	assert.Len(t, convs[0].Members, 2)
}

func TestCreateOrGetDMValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.services.Conversation.CreateOrGetDM(ctx, "alice", "alice")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.services.Conversation.CreateOrGetDM(ctx, "", "bob")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = f.services.Conversation.CreateOrGetDM(ctx, "alice", "  ")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestCreateOrGetDMKeepsPairsWithSeparatorsApart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.services.Conversation.CreateOrGetDM(ctx, "a:b", "c")
	require.NoError(t, err)
	second, err := f.services.Conversation.CreateOrGetDM(ctx, "a", "b:c")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	members := map[string]bool{}
	for _, m := range second.Members {
		members[m.UserID] = true
	}
	assert.Equal(t, map[string]bool{"a": true, "b:c": true}, members)

	again, err := f.services.Conversation.CreateOrGetDM(ctx, "c", "a:b")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
}

func TestCreateGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.services.Conversation.CreateGroup(ctx, "alice", "   ", []string{"bob"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.services.Conversation.CreateGroup(ctx, "alice", "Team", []string{"alice", " "})
	assert.ErrorIs(t, err, apperrors.ErrValidation, "creator alone is not enough")

	conv, err := f.services.Conversation.CreateGroup(ctx, "alice", "  Team ", []string{"bob", "carol", "bob"})
	require.NoError(t, err)
	assert.Equal(t, "Team", *conv.Title)
	require.Len(t, conv.Members, 3)

	roles := map[string]domain.MemberRole{}
	for _, m := range conv.Members {
		roles[m.UserID] = m.Role
	}
	assert.Equal(t, domain.MemberRoleAdmin, roles["alice"])
	assert.Equal(t, domain.MemberRoleMember, roles["bob"])
	assert.Equal(t, domain.MemberRoleMember, roles["carol"])
}

func TestMembershipManagement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.group(t, "alice", "bob")

	_, err := f.services.Conversation.AddMember(ctx, "bob", conv.ID, "dave")
	assert.ErrorIs(t, err, apperrors.ErrForbidden, "members cannot add")

	_, err = f.services.Conversation.AddMember(ctx, "mallory", conv.ID, "dave")
	assert.ErrorIs(t, err, apperrors.ErrForbidden, "outsiders cannot add")

	_, err = f.services.Conversation.AddMember(ctx, "alice", uuid.New(), "dave")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	member, err := f.services.Conversation.AddMember(ctx, "alice", conv.ID, "dave")
	require.NoError(t, err)
	assert.Equal(t, domain.MemberRoleMember, member.Role)
	require.Len(t, f.events.ofType(domain.EventMemberAdded), 1)

	_, err = f.services.Conversation.AddMember(ctx, "alice", conv.ID, "dave")
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	err = f.services.Conversation.RemoveMember(ctx, "bob", conv.ID, "dave")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	require.NoError(t, f.services.Conversation.RemoveMember(ctx, "alice", conv.ID, "dave"))
	require.Len(t, f.events.ofType(domain.EventMemberRemoved), 1)
	assert.Contains(t, f.events.revoked, "dave@"+conv.ID.String())

	_, err = f.services.Conversation.Get(ctx, "dave", conv.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestLeaveGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.group(t, "alice", "bob")

	err := f.services.Conversation.LeaveGroup(ctx, "alice", conv.ID)
	assert.ErrorIs(t, err, apperrors.ErrConflict, "last admin cannot leave")

	require.NoError(t, f.services.Conversation.LeaveGroup(ctx, "bob", conv.ID))

	err = f.services.Conversation.LeaveGroup(ctx, "alice", conv.ID)
	assert.ErrorIs(t, err, apperrors.ErrConflict, "last member cannot leave")

	err = f.services.Conversation.LeaveGroup(ctx, "bob", conv.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestDirectConversationMembershipIsFixed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dm, err := f.services.Conversation.CreateOrGetDM(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = f.services.Conversation.AddMember(ctx, "alice", dm.ID, "carol")
	assert.ErrorIs(t, err, apperrors.ErrForbidden)

	err = f.services.Conversation.LeaveGroup(ctx, "alice", dm.ID)
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestRemovingYourselfLeaves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := f.group(t, "alice", "bob")

	_, err := f.repos.Conversation.GetMember(ctx, conv.ID, "bob")
	require.NoError(t, err)

	// a plain member may remove themselves
	require.NoError(t, f.services.Conversation.RemoveMember(ctx, "bob", conv.ID, "bob"))
	_, err = f.repos.Conversation.GetMember(ctx, conv.ID, "bob")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
