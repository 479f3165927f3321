package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"realtime_chat/internal/domain"
	"realtime_chat/internal/repository"
	"realtime_chat/internal/repository/memory"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

type presenceFixture struct {
	svc    *presenceService
	clock  *fakeClock
	events *recorder
}

func newPresenceFixture(t *testing.T) *presenceFixture {
	t.Helper()
	clock := newFakeClock()
	events := &recorder{}
	repos := memory.NewRepositories()
	return &presenceFixture{
		svc:    newPresenceService(repos.Presence, events, testConfig().Presence, nil, logger.NewNop(), clock.Now),
		clock:  clock,
		events: events,
	}
}

func (f *presenceFixture) statuses() []domain.PresenceStatus {
	var out []domain.PresenceStatus
	for _, evt := range f.events.ofType(domain.EventPresence) {
		out = append(out, evt.Payload.(*domain.PresenceState).Status)
	}
	return out
}

func TestPresenceAwayBoundary(t *testing.T) {
	f := newPresenceFixture(t)
	ctx := context.Background()

	f.svc.Connect(ctx, "alice")
	// keep heartbeats flowing without any activity
	for i := 0; i < 9; i++ {
		f.clock.Advance(30 * time.Second)
		f.svc.Heartbeat(ctx, "alice")
	}
	f.clock.Advance(29 * time.Second)
	f.svc.Heartbeat(ctx, "alice")
	assert.Equal(t, []domain.PresenceStatus{domain.PresenceOnline}, f.statuses(), "299s idle is still online")

	f.clock.Advance(2 * time.Second)
	f.svc.Heartbeat(ctx, "alice")
	assert.Equal(t, []domain.PresenceStatus{domain.PresenceOnline, domain.PresenceAway}, f.statuses())

	states, err := f.svc.Get(ctx, []string{"alice"})
	require.NoError(t, err)
	require.NotNil(t, states[0].LastSeen)
	assert.Equal(t, f.clock.Now(), *states[0].LastSeen)

	f.svc.Activity(ctx, "alice")
	assert.Equal(t, domain.PresenceOnline, f.statuses()[2])
}

func TestPresenceHeartbeatMiss(t *testing.T) {
	f := newPresenceFixture(t)
	ctx := context.Background()

	f.svc.Connect(ctx, "alice")
	f.clock.Advance(90 * time.Second)
	f.svc.Sweep(ctx)
	assert.Len(t, f.statuses(), 1, "exactly at the threshold is not a miss")

	f.clock.Advance(time.Second)
	f.svc.Sweep(ctx)
	f.svc.Sweep(ctx)
	assert.Equal(t, []domain.PresenceStatus{domain.PresenceOnline, domain.PresenceOffline}, f.statuses())
}

func TestPresenceLastSessionDisconnect(t *testing.T) {
	f := newPresenceFixture(t)
	ctx := context.Background()

	f.svc.Connect(ctx, "alice")
	f.svc.Connect(ctx, "alice")
	f.svc.Disconnect(ctx, "alice")
	assert.Equal(t, []domain.PresenceStatus{domain.PresenceOnline}, f.statuses())

	f.svc.Disconnect(ctx, "alice")
	assert.Equal(t, []domain.PresenceStatus{domain.PresenceOnline, domain.PresenceOffline}, f.statuses())

	evt := f.events.ofType(domain.EventPresence)[1]
	assert.Equal(t, domain.PresenceTopic("alice"), evt.Topic)
	assert.Zero(t, evt.Sequence)
}

func TestPresenceManualStatus(t *testing.T) {
	f := newPresenceFixture(t)
	ctx := context.Background()

	_, err := f.svc.UpdateStatus(ctx, "alice", "busy")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	f.svc.Connect(ctx, "alice")
	state, err := f.svc.UpdateStatus(ctx, "alice", domain.PresenceAway)
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceAway, state.Status)

	// a heartbeat alone does not clear a manual away
	f.svc.Heartbeat(ctx, "alice")
	state, err = f.svc.UpdateStatus(ctx, "alice", domain.PresenceAway)
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceAway, state.Status)

	_, err = f.svc.UpdateStatus(ctx, "alice", domain.PresenceOnline)
	require.NoError(t, err)
	assert.Equal(t, []domain.PresenceStatus{domain.PresenceOnline, domain.PresenceAway, domain.PresenceOnline}, f.statuses())
}

func TestPresenceGet(t *testing.T) {
	f := newPresenceFixture(t)
	ctx := context.Background()
	f.svc.Connect(ctx, "alice")

	states, err := f.svc.Get(ctx, []string{"alice", "ghost"})
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, domain.PresenceOnline, states[0].Status)
	assert.Equal(t, "ghost", states[1].UserID)
	assert.Equal(t, domain.PresenceOffline, states[1].Status)

	_, err = f.svc.Get(ctx, make([]string, maxPresenceLookup+1))
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestPresenceStatePersistsAcrossEviction(t *testing.T) {
	f := newPresenceFixture(t)
	ctx := context.Background()

	f.svc.Connect(ctx, "alice")
	f.svc.Disconnect(ctx, "alice")
	f.svc.Sweep(ctx)

	f.svc.mu.Lock()
	_, tracked := f.svc.entries["alice"]
	f.svc.mu.Unlock()
	assert.False(t, tracked)

	states, err := f.svc.Get(ctx, []string{"alice"})
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceOffline, states[0].Status)
	assert.NotNil(t, states[0].LastSeen)
}

func TestPresenceStaleStoredStateResolvesOffline(t *testing.T) {
	clock := newFakeClock()
	repos := memory.NewRepositories()
	cfg := testConfig().Presence
	ctx := context.Background()

	// owner holds alice's connection and goes away without disconnecting
	owner := newPresenceService(repos.Presence, &recorder{}, cfg, nil, logger.NewNop(), clock.Now)
	events := &recorder{}
	other := newPresenceService(repos.Presence, events, cfg, nil, logger.NewNop(), clock.Now)

	owner.Connect(ctx, "alice")
	clock.Advance(60 * time.Second)
	owner.Heartbeat(ctx, "alice")
	heartbeat := clock.Now()

	clock.Advance(80 * time.Second)
	states, err := other.Get(ctx, []string{"alice"})
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceOnline, states[0].Status, "the stored heartbeat is recent enough")

	clock.Advance(2 * time.Hour)
	other.Sweep(ctx)
	states, err = other.Get(ctx, []string{"alice"})
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceOffline, states[0].Status)
	require.NotNil(t, states[0].LastSeen)
	assert.Equal(t, heartbeat, *states[0].LastSeen)

	other.Connect(ctx, "alice")
	require.Len(t, events.ofType(domain.EventPresence), 1)
	assert.Equal(t, domain.PresenceOnline, events.ofType(domain.EventPresence)[0].Payload.(*domain.PresenceState).Status)
}

type slowPresenceRepository struct {
	repository.PresenceRepository
	slowUser string
	entered  chan struct{}
	release  chan struct{}
}

func (r *slowPresenceRepository) Get(ctx context.Context, userID string) (*domain.PresenceState, error) {
	if userID == r.slowUser {
		close(r.entered)
		<-r.release
	}
	return r.PresenceRepository.Get(ctx, userID)
}

func TestPresenceLookupDoesNotBlockOtherUsers(t *testing.T) {
	repo := &slowPresenceRepository{
		PresenceRepository: memory.NewRepositories().Presence,
		slowUser:           "slow",
		entered:            make(chan struct{}),
		release:            make(chan struct{}),
	}
	svc := newPresenceService(repo, &recorder{}, testConfig().Presence, nil, logger.NewNop(), newFakeClock().Now)
	ctx := context.Background()

	slowDone := make(chan struct{})
	go func() {
		defer close(slowDone)
		svc.Connect(ctx, "slow")
	}()
	<-repo.entered

	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Connect(ctx, "alice")
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("connect waited on another user's lookup")
	}

	close(repo.release)
	<-slowDone
	states, err := svc.Get(ctx, []string{"slow", "alice"})
	require.NoError(t, err)
	assert.Equal(t, domain.PresenceOnline, states[0].Status)
	assert.Equal(t, domain.PresenceOnline, states[1].Status)
}

func TestPresenceRunStopsWithContext(t *testing.T) {
	f := newPresenceFixture(t)
	f.svc.cfg.SweepInterval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.svc.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
