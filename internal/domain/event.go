package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventMessageCreated  EventType = "message.created"
	EventMessageEdited   EventType = "message.edited"
	EventMessageDeleted  EventType = "message.deleted"
	EventReactionUpdated EventType = "reaction.updated"
	EventReceiptUpdated  EventType = "receipt.updated"
	EventMemberAdded     EventType = "member.added"
	EventMemberRemoved   EventType = "member.removed"
	EventTyping          EventType = "typing"
	EventPresence        EventType = "presence.updated"
)

// Event is the envelope published on a broker topic. Sequence is set only
// for message events and increases strictly per conversation.
type Event struct {
	Type            EventType  `json:"type"`
	Topic           string     `json:"topic"`
	ConversationID  *uuid.UUID `json:"conversation_id,omitempty"`
	Sequence        int64      `json:"sequence,omitempty"`
	Payload         any        `json:"payload"`
	OriginSessionID string     `json:"origin_session_id,omitempty"`
}

func ConversationTopic(id uuid.UUID) string { return "conversation:" + id.String() }
func TypingTopic(id uuid.UUID) string       { return "typing:" + id.String() }
func PresenceTopic(userID string) string    { return "presence:" + userID }

func NewConversationEvent(t EventType, conversationID uuid.UUID, seq int64, payload any) Event {
	id := conversationID
	return Event{
		Type:           t,
		Topic:          ConversationTopic(conversationID),
		ConversationID: &id,
		Sequence:       seq,
		Payload:        payload,
	}
}

type TypingPayload struct {
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

type ReactionPayload struct {
	MessageID uuid.UUID          `json:"message_id"`
	UserID    string             `json:"user_id"`
	Emoji     string             `json:"emoji"`
	Added     bool               `json:"added"`
	Reactions []*ReactionSummary `json:"reactions"`
}

type ReceiptPayload struct {
	UserID string    `json:"user_id"`
	ReadAt time.Time `json:"read_at"`
	Count  int64     `json:"count"`
}

type MemberPayload struct {
	UserID string     `json:"user_id"`
	Role   MemberRole `json:"role,omitempty"`
	By     string     `json:"by"`
}

type MessageDeletedPayload struct {
	MessageID uuid.UUID `json:"message_id"`
	DeletedAt time.Time `json:"deleted_at"`
}
