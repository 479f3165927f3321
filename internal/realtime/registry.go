package realtime

import (
	"sync"

	apperrors "realtime_chat/pkg/errors"
)

// Registry maps sessions to the topics they are subscribed to. Every
// mutation happens under one write lock, so a concurrent SessionsFor sees
// the subscriber set either before or after a change, never in between.
type Registry struct {
	mu            sync.RWMutex
	sessions      map[string]*Session            // sessionID -> session
	userSessions  map[string]map[string]struct{} // userID -> sessionIDs
	topics        map[string]map[string]*Session // topic -> sessionID -> session
	sessionTopics map[string]map[string]struct{} // sessionID -> topics
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:      make(map[string]*Session),
		userSessions:  make(map[string]map[string]struct{}),
		topics:        make(map[string]map[string]*Session),
		sessionTopics: make(map[string]map[string]struct{}),
	}
}

// Register tracks s and returns how many live sessions its user now has.
// A user may hold several sessions (tabs, devices).
func (r *Registry) Register(s *Session) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.ID] = s
	if r.userSessions[s.UserID] == nil {
		r.userSessions[s.UserID] = make(map[string]struct{})
	}
	r.userSessions[s.UserID][s.ID] = struct{}{}
	r.sessionTopics[s.ID] = make(map[string]struct{})
	return len(r.userSessions[s.UserID])
}

// Unregister removes the session and all of its subscriptions at once. It
// returns the topics left without subscribers and the user's remaining
// session count; found is false when the session was already gone.
func (r *Registry) Unregister(sessionID string) (emptied []string, remaining int, found bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, 0, false
	}
	delete(r.sessions, sessionID)

	for topic := range r.sessionTopics[sessionID] {
		if r.leaveLocked(topic, sessionID) {
			emptied = append(emptied, topic)
		}
	}
	delete(r.sessionTopics, sessionID)

	if set := r.userSessions[s.UserID]; set != nil {
		delete(set, sessionID)
		remaining = len(set)
		if remaining == 0 {
			delete(r.userSessions, s.UserID)
		}
	}
	return emptied, remaining, true
}

// Subscribe adds the session to topic. first reports whether it is the
// topic's only subscriber.
func (r *Registry) Subscribe(sessionID, topic string) (first bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return false, apperrors.NotFound("session %s not registered", sessionID)
	}

	subs := r.topics[topic]
	if subs == nil {
		subs = make(map[string]*Session)
		r.topics[topic] = subs
	}
	subs[sessionID] = s
	r.sessionTopics[sessionID][topic] = struct{}{}
	return len(subs) == 1, nil
}

// Unsubscribe removes the session from topic and reports whether the topic
// has no subscribers left.
func (r *Registry) Unsubscribe(sessionID, topic string) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.topics[topic][sessionID]; !ok {
		return false
	}
	return r.leaveLocked(topic, sessionID)
}

func (r *Registry) IsSubscribed(sessionID, topic string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.topics[topic][sessionID]
	return ok
}

// SessionsFor returns a snapshot of the sessions subscribed to topic.
func (r *Registry) SessionsFor(topic string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.topics[topic]
	out := make([]*Session, 0, len(subs))
	for _, s := range subs {
		out = append(out, s)
	}
	return out
}

func (r *Registry) TopicsFor(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.sessionTopics[sessionID]))
	for topic := range r.sessionTopics[sessionID] {
		out = append(out, topic)
	}
	return out
}

func (r *Registry) UserSessionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.userSessions[userID])
}

func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) leaveLocked(topic, sessionID string) bool {
	subs := r.topics[topic]
	if subs == nil {
		return false
	}
	delete(subs, sessionID)
	if topics := r.sessionTopics[sessionID]; topics != nil {
		delete(topics, topic)
	}
	if len(subs) == 0 {
		delete(r.topics, topic)
		return true
	}
	return false
}

// SessionsOfUser returns the live sessions of userID.
func (r *Registry) SessionsOfUser(userID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.userSessions[userID]))
	for id := range r.userSessions[userID] {
		if s := r.sessions[id]; s != nil {
			out = append(out, s)
		}
	}
	return out
}
