package domain

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	ID              uuid.UUID  `json:"id"`
	ConversationID  uuid.UUID  `json:"conversation_id"`
	SenderID        string     `json:"sender_id"`
	Content         *string    `json:"content"`
	FileRef         *string    `json:"file_ref"`
	ParentMessageID *uuid.UUID `json:"parent_message_id,omitempty"`
	Seq             int64      `json:"seq"`
	ThreadCount     int64      `json:"thread_count"`
	CreatedAt       time.Time  `json:"created_at"`
	EditedAt        *time.Time `json:"edited_at,omitempty"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
}

func (m *Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// MessageDraft is the input accepted by the message pipeline.
type MessageDraft struct {
	ConversationID  uuid.UUID
	SenderID        string
	Content         *string
	FileRef         *string
	ParentMessageID *uuid.UUID
}

const (
	DefaultMessagePageSize = 50
	MaxMessagePageSize     = 100
)

const (
	MinSearchQueryLength = 2
	MaxSearchQueryLength = 200
)

// ThreadSubscription records whether a user follows the replies under a
// top-level message. Unsubscribing keeps the row with Subscribed false.
type ThreadSubscription struct {
	MessageID  uuid.UUID `json:"message_id"`
	UserID     string    `json:"user_id"`
	Subscribed bool      `json:"subscribed"`
	UpdatedAt  time.Time `json:"updated_at"`
}
