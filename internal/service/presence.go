package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"realtime_chat/internal/config"
	"realtime_chat/internal/domain"
	"realtime_chat/internal/metrics"
	"realtime_chat/internal/repository"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

const maxPresenceLookup = 100

// PresenceService tracks one online/away/offline state machine per user.
// Status changes are written through to the presence repository and
// published on the user's presence channel; evaluations that resolve to
// the current status emit nothing.
type PresenceService interface {
	// Connect and Disconnect track live sessions; the user goes offline
	// when the last one disconnects.
	Connect(ctx context.Context, userID string)
	Disconnect(ctx context.Context, userID string)
	Heartbeat(ctx context.Context, userID string)
	Activity(ctx context.Context, userID string)
	UpdateStatus(ctx context.Context, userID string, status domain.PresenceStatus) (*domain.PresenceState, error)
	Get(ctx context.Context, userIDs []string) ([]*domain.PresenceState, error)
	// Sweep re-evaluates every tracked user, catching idle and silent ones.
	Sweep(ctx context.Context)
	Run(ctx context.Context) error
}

type presenceEntry struct {
	state         domain.PresenceState
	sessions      int
	disconnected  bool
	manualAway    bool
	manualOffline bool
	// last heartbeat written to the repository
	storedHeartbeat time.Time
}

type presenceService struct {
	repo     repository.PresenceRepository
	realtime EventPublisher
	cfg      config.PresenceConfig
	metrics  *metrics.Metrics
	log      logger.Logger
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*presenceEntry

	// held from the end of a state change until its events are out, so
	// events for a user leave in the order the changes happened
	emitMu sync.Mutex
}

func NewPresenceService(repo repository.PresenceRepository, publisher EventPublisher, cfg config.PresenceConfig, m *metrics.Metrics, log logger.Logger) PresenceService {
	return newPresenceService(repo, publisher, cfg, m, log, time.Now)
}

func newPresenceService(repo repository.PresenceRepository, publisher EventPublisher, cfg config.PresenceConfig, m *metrics.Metrics, log logger.Logger, now func() time.Time) *presenceService {
	return &presenceService{
		repo:     repo,
		realtime: publisher,
		cfg:      cfg,
		metrics:  m,
		log:      log,
		now:      now,
		entries:  make(map[string]*presenceEntry),
	}
}

func (s *presenceService) Connect(ctx context.Context, userID string) {
	s.update(ctx, userID, func(e *presenceEntry, now time.Time) {
		e.sessions++
		e.disconnected = false
		e.manualAway = false
		e.manualOffline = false
		e.state.LastHeartbeatAt = now
		e.state.LastActivityAt = now
	})
}

func (s *presenceService) Disconnect(ctx context.Context, userID string) {
	s.update(ctx, userID, func(e *presenceEntry, _ time.Time) {
		if e.sessions > 0 {
			e.sessions--
		}
		if e.sessions == 0 {
			e.disconnected = true
		}
	})
}

func (s *presenceService) Heartbeat(ctx context.Context, userID string) {
	s.update(ctx, userID, func(e *presenceEntry, now time.Time) {
		e.state.LastHeartbeatAt = now
	})
}

func (s *presenceService) Activity(ctx context.Context, userID string) {
	s.update(ctx, userID, func(e *presenceEntry, now time.Time) {
		e.state.LastHeartbeatAt = now
		e.state.LastActivityAt = now
		e.manualAway = false
		e.manualOffline = false
	})
}

func (s *presenceService) UpdateStatus(ctx context.Context, userID string, status domain.PresenceStatus) (*domain.PresenceState, error) {
	if err := requireIdentity(userID); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperrors.Validation("status must be one of online, away, offline")
	}

	return s.update(ctx, userID, func(e *presenceEntry, now time.Time) {
		switch status {
		case domain.PresenceOnline:
			e.state.LastHeartbeatAt = now
			e.state.LastActivityAt = now
			e.disconnected = false
			e.manualAway = false
			e.manualOffline = false
		case domain.PresenceAway:
			e.state.LastHeartbeatAt = now
			e.disconnected = false
			e.manualAway = true
			e.manualOffline = false
		case domain.PresenceOffline:
			e.manualOffline = true
		}
	}), nil
}

func (s *presenceService) Get(ctx context.Context, userIDs []string) ([]*domain.PresenceState, error) {
	if len(userIDs) > maxPresenceLookup {
		return nil, apperrors.Validation("at most %d user ids per request", maxPresenceLookup)
	}

	result := make([]*domain.PresenceState, len(userIDs))
	var missing []string

	s.mu.Lock()
	for i, id := range userIDs {
		if e, ok := s.entries[id]; ok {
			result[i] = cloneState(&e.state)
		} else {
			missing = append(missing, id)
		}
	}
	s.mu.Unlock()

	if len(missing) == 0 {
		return result, nil
	}
	stored, err := s.repo.GetMany(ctx, missing)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i, id := range userIDs {
		if result[i] != nil {
			continue
		}
		if state, ok := stored[id]; ok {
			result[i] = s.settle(state, now)
		} else {
			result[i] = &domain.PresenceState{UserID: id, Status: domain.PresenceOffline}
		}
	}
	return result, nil
}

func (s *presenceService) Sweep(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var changes []*domain.PresenceState
	for id, e := range s.entries {
		if changed := s.evaluate(e, now); changed != nil {
			changes = append(changes, changed)
		}
		if e.state.Status == domain.PresenceOffline && e.sessions == 0 {
			// the repository keeps the final state
			delete(s.entries, id)
		}
	}
	s.emitMu.Lock()
	s.mu.Unlock()

	s.emit(ctx, changes)
	s.emitMu.Unlock()
}

func (s *presenceService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	s.log.Info("Presence sweeper started", "interval", s.cfg.SweepInterval, "away_timeout", s.cfg.AwayTimeout, "offline_after", s.cfg.OfflineAfter())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// update applies mutate to the user's entry, creating it if needed, and
// emits the resulting transition if there is one.
func (s *presenceService) update(ctx context.Context, userID string, mutate func(e *presenceEntry, now time.Time)) *domain.PresenceState {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil
	}
	now := s.now()

	s.mu.Lock()
	e, ok := s.entries[userID]
	if !ok {
		s.mu.Unlock()
		loaded := s.load(ctx, userID, now)
		s.mu.Lock()
		if e, ok = s.entries[userID]; !ok {
			e = loaded
			s.entries[userID] = e
		}
	}
	mutate(e, now)
	changed := s.evaluate(e, now)

	var touch time.Time
	switch {
	case changed != nil:
		// Save stores the heartbeat along with the status
		e.storedHeartbeat = e.state.LastHeartbeatAt
	case e.state.LastHeartbeatAt.Sub(e.storedHeartbeat) >= s.cfg.HeartbeatInterval/2:
		e.storedHeartbeat = e.state.LastHeartbeatAt
		touch = e.storedHeartbeat
	}
	snapshot := cloneState(&e.state)
	s.emitMu.Lock()
	s.mu.Unlock()

	if changed != nil {
		s.emit(ctx, []*domain.PresenceState{changed})
	} else if !touch.IsZero() {
		if err := s.repo.Touch(ctx, userID, touch); err != nil {
			s.log.Warn("Failed to record heartbeat", "error", err, "user_id", userID)
		}
	}
	s.emitMu.Unlock()
	return snapshot
}

// load seeds a new entry from the repository so the first evaluation
// compares against the last published status.
func (s *presenceService) load(ctx context.Context, userID string, now time.Time) *presenceEntry {
	e := &presenceEntry{
		state: domain.PresenceState{
			UserID:          userID,
			Status:          domain.PresenceOffline,
			LastActivityAt:  now,
			LastHeartbeatAt: now,
		},
	}
	stored, err := s.repo.Get(ctx, userID)
	switch {
	case err == nil:
		e.state = *s.settle(stored, now)
		e.storedHeartbeat = stored.LastHeartbeatAt
	case !errors.Is(err, apperrors.ErrNotFound):
		s.log.Warn("Failed to load presence", "error", err, "user_id", userID)
	}
	return e
}

// settle resolves a stored state that claims a live user whose last
// recorded heartbeat is past the offline threshold, as left behind by an
// instance that died without disconnecting its sessions.
func (s *presenceService) settle(state *domain.PresenceState, now time.Time) *domain.PresenceState {
	if state.Status == domain.PresenceOffline || now.Sub(state.LastHeartbeatAt) <= s.cfg.OfflineAfter() {
		return state
	}
	out := cloneState(state)
	out.Status = domain.PresenceOffline
	if !state.LastHeartbeatAt.IsZero() {
		seen := state.LastHeartbeatAt
		out.LastSeen = &seen
	}
	return out
}

// resolve is the status e should have at now.
func (s *presenceService) resolve(e *presenceEntry, now time.Time) domain.PresenceStatus {
	switch {
	case e.disconnected, e.manualOffline, now.Sub(e.state.LastHeartbeatAt) > s.cfg.OfflineAfter():
		return domain.PresenceOffline
	case e.manualAway, now.Sub(e.state.LastActivityAt) > s.cfg.AwayTimeout:
		return domain.PresenceAway
	default:
		return domain.PresenceOnline
	}
}

// evaluate moves e to its resolved status and returns a snapshot when the
// status changed, nil otherwise.
func (s *presenceService) evaluate(e *presenceEntry, now time.Time) *domain.PresenceState {
	next := s.resolve(e, now)
	if next == e.state.Status {
		return nil
	}
	e.state.Status = next
	if next == domain.PresenceAway || next == domain.PresenceOffline {
		seen := now
		e.state.LastSeen = &seen
	}
	return cloneState(&e.state)
}

func (s *presenceService) emit(ctx context.Context, changes []*domain.PresenceState) {
	for _, state := range changes {
		if err := s.repo.Save(ctx, state); err != nil {
			s.log.Warn("Failed to persist presence", "error", err, "user_id", state.UserID)
		}
		s.metrics.PresenceChanged(string(state.Status))
		s.realtime.Publish(ctx, domain.Event{
			Type:    domain.EventPresence,
			Topic:   domain.PresenceTopic(state.UserID),
			Payload: state,
		})
	}
}

func cloneState(state *domain.PresenceState) *domain.PresenceState {
	out := *state
	if state.LastSeen != nil {
		seen := *state.LastSeen
		out.LastSeen = &seen
	}
	return &out
}
