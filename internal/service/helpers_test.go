package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"realtime_chat/internal/config"
	"realtime_chat/internal/domain"
	"realtime_chat/internal/repository"
	"realtime_chat/internal/repository/memory"
	"realtime_chat/pkg/logger"
)

type recorder struct {
	mu      sync.Mutex
	events  []domain.Event
	revoked []string
}

func (r *recorder) Publish(_ context.Context, evt domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) RevokeConversation(userID string, conversationID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked = append(r.revoked, userID+"@"+conversationID.String())
}

func (r *recorder) ofType(t domain.EventType) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, evt := range r.events {
		if evt.Type == t {
			out = append(out, evt)
		}
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	repos    *repository.Repositories
	events   *recorder
	services *Services
}

func testConfig() *config.Config {
	return &config.Config{
		Presence: config.PresenceConfig{
			HeartbeatInterval: 30 * time.Second,
			MissThreshold:     3,
			AwayTimeout:       300 * time.Second,
			SweepInterval:     10 * time.Second,
		},
		Upload:    config.UploadConfig{MaxBytes: 10 << 20},
		RateLimit: config.RateLimitConfig{PerMinute: 5},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos := memory.NewRepositories()
	events := &recorder{}
	return &fixture{
		repos:    repos,
		events:   events,
		services: NewServices(repos, events, nil, testConfig(), nil, logger.NewNop()),
	}
}

func (f *fixture) group(t *testing.T, creator string, members ...string) *domain.Conversation {
	t.Helper()
	conv, err := f.services.Conversation.CreateGroup(context.Background(), creator, "Team", members)
	require.NoError(t, err)
	return conv
}

func (f *fixture) send(t *testing.T, conv uuid.UUID, sender, content string) *domain.Message {
	t.Helper()
	msg, err := f.services.Message.Send(context.Background(), domain.MessageDraft{
		ConversationID: conv,
		SenderID:       sender,
		Content:        &content,
	})
	require.NoError(t, err)
	return msg
}

func strPtr(s string) *string { return &s }
