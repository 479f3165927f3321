package domain

import (
	"time"

	"github.com/google/uuid"
)

type Reaction struct {
	MessageID uuid.UUID `json:"message_id"`
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// ReactionSummary is the aggregated view of one emoji on one message.
type ReactionSummary struct {
	Emoji      string   `json:"emoji"`
	Count      int      `json:"count"`
	ReactorIDs []string `json:"reactor_ids"`
}

type ReadReceipt struct {
	MessageID uuid.UUID `json:"message_id"`
	UserID    string    `json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}
