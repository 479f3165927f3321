// Package realtime implements the fan-out side of the chat backend: the
// pub/sub broker abstraction, websocket sessions, the session registry and
// the router that binds broker topics to subscribed sessions.
package realtime

import (
	"context"
	"errors"
	"sync"

	"realtime_chat/internal/domain"
)

var (
	ErrBrokerClosed   = errors.New("broker closed")
	ErrBrokerOverflow = errors.New("subscriber buffer full")
)

// Broker is a publish/subscribe channel keyed by topic. Subscribers receive
// events in publish order per topic.
type Broker interface {
	Publish(ctx context.Context, topic string, evt domain.Event) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Close() error
}

type Subscription interface {
	// Events is closed when the subscription ends.
	Events() <-chan domain.Event
	Close() error
}

type memoryBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySubscription]struct{}
	buffer int
	closed bool
}

// NewMemoryBroker returns an in-process broker for single-instance
// deployments and tests.
func NewMemoryBroker(buffer int) Broker {
	if buffer <= 0 {
		buffer = 1024
	}
	return &memoryBroker{
		subs:   make(map[string]map[*memorySubscription]struct{}),
		buffer: buffer,
	}
}

type memorySubscription struct {
	broker *memoryBroker
	topic  string
	ch     chan domain.Event
	once   sync.Once
}

func (b *memoryBroker) Publish(_ context.Context, topic string, evt domain.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBrokerClosed
	}

	var err error
	for sub := range b.subs[topic] {
		select {
		case sub.ch <- evt:
		default:
			err = ErrBrokerOverflow
		}
	}
	return err
}

func (b *memoryBroker) Subscribe(_ context.Context, topic string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBrokerClosed
	}

	sub := &memorySubscription{
		broker: b,
		topic:  topic,
		ch:     make(chan domain.Event, b.buffer),
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*memorySubscription]struct{})
	}
	b.subs[topic][sub] = struct{}{}
	return sub, nil
}

func (b *memoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for topic, subs := range b.subs {
		for sub := range subs {
			sub.once.Do(func() { close(sub.ch) })
		}
		delete(b.subs, topic)
	}
	return nil
}

func (s *memorySubscription) Events() <-chan domain.Event {
	return s.ch
}

func (s *memorySubscription) Close() error {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()

	if subs := s.broker.subs[s.topic]; subs != nil {
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.broker.subs, s.topic)
		}
	}
	s.once.Do(func() { close(s.ch) })
	return nil
}
