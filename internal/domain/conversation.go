package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type ConversationKind string

const (
	ConversationKindDM    ConversationKind = "dm"
	ConversationKindGroup ConversationKind = "group"
)

type MemberRole string

const (
	MemberRoleAdmin  MemberRole = "admin"
	MemberRoleMember MemberRole = "member"
)

type Conversation struct {
	ID        uuid.UUID        `json:"id"`
	Kind      ConversationKind `json:"kind"`
	Title     *string          `json:"title,omitempty"`
	CreatedBy string           `json:"created_by"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	LastSeq   int64            `json:"last_seq"`
	Members   []*Member        `json:"members,omitempty"`
}

type Member struct {
	ConversationID uuid.UUID  `json:"conversation_id"`
	UserID         string     `json:"user_id"`
	Role           MemberRole `json:"role"`
	JoinedAt       time.Time  `json:"joined_at"`
}

// DMKey is the order-independent key identifying the DM between two users.
// User ids are opaque and may contain the separator, so the lower id is
// length-prefixed to keep distinct pairs from sharing a key.
func DMKey(userA, userB string) string {
	lo, hi := userA, userB
	if hi < lo {
		lo, hi = hi, lo
	}
	return fmt.Sprintf("%d:%s:%s", len(lo), lo, hi)
}
