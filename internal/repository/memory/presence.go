package memory

import (
	"context"
	"time"

	"realtime_chat/internal/domain"
	apperrors "realtime_chat/pkg/errors"
)

type presenceRepository struct {
	s *store
}

func clonePresence(state *domain.PresenceState) *domain.PresenceState {
	cp := *state
	if state.LastSeen != nil {
		v := *state.LastSeen
		cp.LastSeen = &v
	}
	return &cp
}

func (r *presenceRepository) Save(_ context.Context, state *domain.PresenceState) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.presence[state.UserID] = clonePresence(state)
	return nil
}

func (r *presenceRepository) Touch(_ context.Context, userID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	state, ok := r.s.presence[userID]
	if !ok {
		state = &domain.PresenceState{UserID: userID, Status: domain.PresenceOffline}
		r.s.presence[userID] = state
	}
	state.LastHeartbeatAt = at
	return nil
}

func (r *presenceRepository) Get(_ context.Context, userID string) (*domain.PresenceState, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	state, ok := r.s.presence[userID]
	if !ok {
		return nil, apperrors.NotFound("presence for %s not found", userID)
	}
	return clonePresence(state), nil
}

func (r *presenceRepository) GetMany(_ context.Context, userIDs []string) (map[string]*domain.PresenceState, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make(map[string]*domain.PresenceState, len(userIDs))
	for _, id := range userIDs {
		if state, ok := r.s.presence[id]; ok {
			out[id] = clonePresence(state)
		}
	}
	return out, nil
}

type rateLimitRepository struct {
	s *store
}

func (r *rateLimitRepository) Hit(_ context.Context, key string, limit int, period time.Duration) (bool, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := r.s.now()
	w, ok := r.s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(period)}
		r.s.windows[key] = w
	}
	w.count++

	remaining := limit - w.count
	if remaining < 0 {
		remaining = 0
	}
	return w.count <= limit, remaining, nil
}
