package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"realtime_chat/internal/domain"
	"realtime_chat/internal/metrics"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

// Router is the only publisher to the broker and the only consumer of its
// subscriptions. It keeps one broker subscription per topic that has local
// subscribers, and delivers each event from it to the registry's snapshot
// of subscribed sessions, in broker order.
type Router struct {
	broker   Broker
	registry *Registry
	log      logger.Logger
	metrics  *metrics.Metrics

	mu    sync.Mutex
	feeds map[string]Subscription
	wg    sync.WaitGroup
}

func NewRouter(broker Broker, registry *Registry, log logger.Logger, m *metrics.Metrics) *Router {
	return &Router{
		broker:   broker,
		registry: registry,
		log:      log,
		metrics:  m,
		feeds:    make(map[string]Subscription),
	}
}

func (r *Router) Registry() *Registry {
	return r.registry
}

// Publish hands evt to the broker. Failures are logged and dropped: the
// state behind the event is already durable and clients catch up on
// reconnect.
func (r *Router) Publish(ctx context.Context, evt domain.Event) {
	err := r.broker.Publish(ctx, evt.Topic, evt)
	r.metrics.EventPublished(string(evt.Type), err)
	if err != nil {
		r.log.Warn("Failed to publish event", "error", err, "topic", evt.Topic, "type", evt.Type)
	}
}

// Connect registers a new session and returns the user's live session count.
func (r *Router) Connect(s *Session) int {
	n := r.registry.Register(s)
	r.metrics.SessionOpened()
	r.log.Debug("Session connected", "session_id", s.ID, "user_id", s.UserID, "user_sessions", n)
	return n
}

// Disconnect closes the session and drops all of its subscriptions
// atomically. It returns the user's remaining session count. Disconnecting
// a session twice is a no-op.
func (r *Router) Disconnect(s *Session) int {
	r.mu.Lock()
	emptied, remaining, found := r.registry.Unregister(s.ID)
	for _, topic := range emptied {
		r.closeFeedLocked(topic)
	}
	r.mu.Unlock()

	s.Close()
	if !found {
		return r.registry.UserSessionCount(s.UserID)
	}
	r.metrics.SessionClosed()
	r.log.Debug("Session disconnected", "session_id", s.ID, "user_id", s.UserID, "user_sessions", remaining)
	return remaining
}

// SubscribeConversation subscribes the session to a conversation's event
// and typing channels. Membership is checked by the caller.
func (r *Router) SubscribeConversation(ctx context.Context, s *Session, conversationID uuid.UUID) error {
	for _, topic := range []string{domain.ConversationTopic(conversationID), domain.TypingTopic(conversationID)} {
		if err := r.subscribe(ctx, s, topic); err != nil {
			r.UnsubscribeConversation(s, conversationID)
			return err
		}
	}
	return nil
}

func (r *Router) UnsubscribeConversation(s *Session, conversationID uuid.UUID) {
	r.unsubscribe(s, domain.ConversationTopic(conversationID))
	r.unsubscribe(s, domain.TypingTopic(conversationID))
	s.Forget(conversationID)
}

// WatchPresence subscribes the session to presence changes of userIDs.
func (r *Router) WatchPresence(ctx context.Context, s *Session, userIDs []string) error {
	for _, id := range userIDs {
		if err := r.subscribe(ctx, s, domain.PresenceTopic(id)); err != nil {
			return err
		}
	}
	return nil
}

// RevokeConversation unsubscribes every session of userID from the
// conversation, after the user stopped being a member.
func (r *Router) RevokeConversation(userID string, conversationID uuid.UUID) {
	for _, s := range r.registry.SessionsOfUser(userID) {
		r.UnsubscribeConversation(s, conversationID)
	}
}

// Typing relays a typing indicator to the conversation's other sessions.
// The session must be subscribed to the conversation.
func (r *Router) Typing(ctx context.Context, s *Session, conversationID uuid.UUID, at time.Time) error {
	if !r.registry.IsSubscribed(s.ID, domain.ConversationTopic(conversationID)) {
		return apperrors.Forbidden("not subscribed to conversation %s", conversationID)
	}
	id := conversationID
	r.Publish(ctx, domain.Event{
		Type:            domain.EventTyping,
		Topic:           domain.TypingTopic(conversationID),
		ConversationID:  &id,
		Payload:         domain.TypingPayload{UserID: s.UserID, At: at},
		OriginSessionID: s.ID,
	})
	return nil
}

// Close disconnects every session and stops all feeds.
func (r *Router) Close() {
	for _, s := range r.registry.Sessions() {
		s.CloseWith(CloseServerShutdown, "server shutdown")
		r.Disconnect(s)
	}

	r.mu.Lock()
	for topic := range r.feeds {
		r.closeFeedLocked(topic)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// subscribe opens the topic's broker feed without holding r.mu, so a slow
// broker round trip never stalls other topics. When two sessions race to
// open the same feed, the later one closes its duplicate.
func (r *Router) subscribe(ctx context.Context, s *Session, topic string) error {
	r.mu.Lock()
	if _, err := r.registry.Subscribe(s.ID, topic); err != nil {
		r.mu.Unlock()
		return err
	}
	_, open := r.feeds[topic]
	r.mu.Unlock()
	if open {
		return nil
	}

	sub, err := r.broker.Subscribe(ctx, topic)

	r.mu.Lock()
	_, open = r.feeds[topic]
	if err != nil {
		if open {
			r.mu.Unlock()
			return nil
		}
		r.registry.Unsubscribe(s.ID, topic)
		r.mu.Unlock()
		r.log.Error("Failed to subscribe to topic", "error", err, "topic", topic)
		if apperrors.IsCategorized(err) {
			return err
		}
		return apperrors.Unavailable(err, "subscribe to %s", topic)
	}
	// the topic may have emptied while the broker call was in flight
	if open || len(r.registry.SessionsFor(topic)) == 0 {
		r.mu.Unlock()
		if err := sub.Close(); err != nil {
			r.log.Warn("Failed to close duplicate topic subscription", "error", err, "topic", topic)
		}
		return nil
	}
	r.feeds[topic] = sub
	r.metrics.TopicOpened()
	r.wg.Add(1)
	go r.pump(topic, sub)
	r.mu.Unlock()
	return nil
}

func (r *Router) unsubscribe(s *Session, topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.registry.Unsubscribe(s.ID, topic) {
		r.closeFeedLocked(topic)
	}
}

func (r *Router) closeFeedLocked(topic string) {
	sub, ok := r.feeds[topic]
	if !ok {
		return
	}
	delete(r.feeds, topic)
	if err := sub.Close(); err != nil {
		r.log.Warn("Failed to close topic subscription", "error", err, "topic", topic)
	}
	r.metrics.TopicClosed()
}

func (r *Router) pump(topic string, sub Subscription) {
	defer r.wg.Done()
	for evt := range sub.Events() {
		r.fanOut(topic, evt)
	}
}

func (r *Router) fanOut(topic string, evt domain.Event) {
	frame, err := json.Marshal(evt)
	if err != nil {
		r.log.Error("Failed to encode event", "error", err, "topic", topic, "type", evt.Type)
		return
	}

	for _, s := range r.registry.SessionsFor(topic) {
		if evt.Type == domain.EventTyping && s.ID == evt.OriginSessionID {
			continue
		}
		switch err := s.Deliver(evt, frame); {
		case err == nil:
			r.metrics.EventDelivered(string(evt.Type))
		case errors.Is(err, ErrStaleEvent):
			r.metrics.EventDropped("stale")
		case errors.Is(err, ErrSendBuffer):
			r.metrics.EventDropped("slow_consumer")
			r.log.Warn("Closing slow session", "session_id", s.ID, "user_id", s.UserID)
		default:
			r.metrics.EventDropped("closed")
		}
	}
}
