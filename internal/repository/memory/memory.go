// Package memory implements every repository in process, with the same
// invariants as the PostgreSQL and Redis implementations. It backs the
// "memory" storage driver and the test-suite.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"realtime_chat/internal/domain"
	"realtime_chat/internal/repository"
)

type receiptKey struct {
	messageID uuid.UUID
	userID    string
}

// reportKey identifies one report per reporter and target; user reports
// leave messageID nil.
type reportKey struct {
	reporterID string
	messageID  uuid.UUID
	userID     string
}

type window struct {
	count   int
	resetAt time.Time
}

// store is shared by all repositories so that a message insert can advance
// the conversation counter under the same lock.
type store struct {
	mu sync.RWMutex

	conversations map[uuid.UUID]*domain.Conversation
	dmKeys        map[string]uuid.UUID
	members       map[uuid.UUID]map[string]*domain.Member

	messages       map[uuid.UUID]*domain.Message
	byConversation map[uuid.UUID][]uuid.UUID

	reactions map[uuid.UUID][]*domain.Reaction
	receipts  map[receiptKey]*domain.ReadReceipt
	reports   map[reportKey]*domain.Report

	threadSubs map[receiptKey]*domain.ThreadSubscription

	presence map[string]*domain.PresenceState
	windows  map[string]*window

	now func() time.Time
}

func newStore() *store {
	return &store{
		conversations:  make(map[uuid.UUID]*domain.Conversation),
		dmKeys:         make(map[string]uuid.UUID),
		members:        make(map[uuid.UUID]map[string]*domain.Member),
		messages:       make(map[uuid.UUID]*domain.Message),
		byConversation: make(map[uuid.UUID][]uuid.UUID),
		reactions:      make(map[uuid.UUID][]*domain.Reaction),
		receipts:       make(map[receiptKey]*domain.ReadReceipt),
		reports:        make(map[reportKey]*domain.Report),
		threadSubs:     make(map[receiptKey]*domain.ThreadSubscription),
		presence:       make(map[string]*domain.PresenceState),
		windows:        make(map[string]*window),
		now:            time.Now,
	}
}

// NewRepositories returns a complete in-memory repository set.
func NewRepositories() *repository.Repositories {
	repos := &repository.Repositories{}
	Fill(repos)
	return repos
}

// Fill sets every nil repository in repos to an in-memory implementation.
// All of them share one store.
func Fill(repos *repository.Repositories) {
	s := newStore()
	if repos.Conversation == nil {
		repos.Conversation = &conversationRepository{s: s}
	}
	if repos.Message == nil {
		repos.Message = &messageRepository{s: s}
	}
	if repos.Reaction == nil {
		repos.Reaction = &reactionRepository{s: s}
	}
	if repos.ReadReceipt == nil {
		repos.ReadReceipt = &readReceiptRepository{s: s}
	}
	if repos.Report == nil {
		repos.Report = &reportRepository{s: s}
	}
	if repos.ThreadSubscription == nil {
		repos.ThreadSubscription = &threadSubscriptionRepository{s: s}
	}
	if repos.Presence == nil {
		repos.Presence = &presenceRepository{s: s}
	}
	if repos.RateLimit == nil {
		repos.RateLimit = &rateLimitRepository{s: s}
	}
}

func cloneConversation(c *domain.Conversation) *domain.Conversation {
	out := *c
	if c.Title != nil {
		title := *c.Title
		out.Title = &title
	}
	out.Members = nil
	return &out
}

func cloneMessage(m *domain.Message) *domain.Message {
	out := *m
	if m.Content != nil {
		v := *m.Content
		out.Content = &v
	}
	if m.FileRef != nil {
		v := *m.FileRef
		out.FileRef = &v
	}
	if m.ParentMessageID != nil {
		v := *m.ParentMessageID
		out.ParentMessageID = &v
	}
	if m.EditedAt != nil {
		v := *m.EditedAt
		out.EditedAt = &v
	}
	if m.DeletedAt != nil {
		v := *m.DeletedAt
		out.DeletedAt = &v
	}
	return &out
}
