package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"realtime_chat/internal/domain"
	apperrors "realtime_chat/pkg/errors"
	"realtime_chat/pkg/logger"
)

// wireEvent is domain.Event as it travels through Redis. The payload is
// kept as raw JSON so it is forwarded to clients without a second decode.
type wireEvent struct {
	Type            domain.EventType `json:"type"`
	Topic           string           `json:"topic"`
	ConversationID  *uuid.UUID       `json:"conversation_id,omitempty"`
	Sequence        int64            `json:"sequence,omitempty"`
	Payload         json.RawMessage  `json:"payload"`
	OriginSessionID string           `json:"origin_session_id,omitempty"`
}

type redisBroker struct {
	rdb    *redis.Client
	log    logger.Logger
	buffer int
}

// NewRedisBroker fans events out across server instances over Redis
// pub/sub, one channel per topic.
func NewRedisBroker(rdb *redis.Client, log logger.Logger, buffer int) Broker {
	if buffer <= 0 {
		buffer = 1024
	}
	return &redisBroker{rdb: rdb, log: log, buffer: buffer}
}

func (b *redisBroker) Publish(ctx context.Context, topic string, evt domain.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, topic, data).Err(); err != nil {
		return apperrors.Unavailable(err, "publish to %s", topic)
	}
	return nil
}

func (b *redisBroker) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	ps := b.rdb.Subscribe(ctx, topic)
	// wait for the subscription to be confirmed so no publish after this
	// call returns is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, apperrors.Unavailable(err, "subscribe to %s", topic)
	}

	sub := &redisSubscription{
		ps:   ps,
		ch:   make(chan domain.Event, b.buffer),
		done: make(chan struct{}),
		log:  b.log.With("topic", topic),
	}
	go sub.run()
	return sub, nil
}

// Close is a no-op; the client is owned by the caller.
func (b *redisBroker) Close() error {
	return nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	ch   chan domain.Event
	done chan struct{}
	once sync.Once
	log  logger.Logger
}

func (s *redisSubscription) run() {
	defer close(s.ch)

	for msg := range s.ps.Channel() {
		var wire wireEvent
		if err := json.Unmarshal([]byte(msg.Payload), &wire); err != nil {
			s.log.Warn("Dropping malformed event", "error", err)
			continue
		}
		evt := domain.Event{
			Type:            wire.Type,
			Topic:           wire.Topic,
			ConversationID:  wire.ConversationID,
			Sequence:        wire.Sequence,
			Payload:         wire.Payload,
			OriginSessionID: wire.OriginSessionID,
		}
		select {
		case s.ch <- evt:
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Events() <-chan domain.Event {
	return s.ch
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
