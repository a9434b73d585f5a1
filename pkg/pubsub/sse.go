package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ritzau/forward-chain/pkg/logging"
)

// ErrClosed is returned when publishing or subscribing on a closed publisher.
var ErrClosed = errors.New("publisher is closed")

// DefaultQueueSize is the per-subscriber queue used by Queue delivery when
// TopicConfig.QueueSize is zero.
const DefaultQueueSize = 64

// Delivery decides what a subscriber that falls behind receives.
type Delivery int

const (
	// Queue delivers every event in order until the subscriber's queue is
	// full; further events are dropped for that subscriber.
	Queue Delivery = iota
	// Latest keeps at most one undelivered event per subscriber. A newer
	// event replaces a pending one, so a slow reader always gets the most
	// recent state. Used for layout ticks and network announcements.
	Latest
)

func (d Delivery) String() string {
	if d == Latest {
		return "latest"
	}
	return "queue"
}

// TopicConfig configures retention and delivery for a topic.
type TopicConfig struct {
	Retain    int  // events kept for late subscribers (0 = none)
	ReplayAll bool // replay all retained events; otherwise only the newest
	Delivery  Delivery
	QueueSize int // per-subscriber queue for Queue delivery
}

type topicState struct {
	config   TopicConfig
	version  int
	retained []Event
	subs     map[*sseSubscription]struct{}
}

// SSEPublisher implements Publisher for Server-Sent Event handlers.
type SSEPublisher struct {
	mu     sync.RWMutex
	topics map[string]*topicState
	closed bool
}

// NewSSEPublisher creates a publisher. Topics that are never configured use
// Queue delivery without retention.
func NewSSEPublisher() *SSEPublisher {
	return &SSEPublisher{topics: make(map[string]*topicState)}
}

// topic returns the state for name, creating it. Callers hold p.mu.
func (p *SSEPublisher) topic(name string) *topicState {
	t, ok := p.topics[name]
	if !ok {
		t = &topicState{subs: make(map[*sseSubscription]struct{})}
		p.topics[name] = t
	}
	return t
}

// ConfigureTopic sets retention and delivery for a topic. Existing
// subscriptions keep the delivery they were created with.
func (p *SSEPublisher) ConfigureTopic(topic string, config TopicConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.topic(topic)
	t.config = config
	if config.Retain < len(t.retained) {
		t.retained = t.retained[len(t.retained)-config.Retain:]
	}
}

// Subscribe creates a subscription to topic. Retained events are queued
// before Subscribe returns. Cancelling ctx closes the subscription.
func (p *SSEPublisher) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}

	t := p.topic(topic)
	sub := newSubscription(p, topic, t.config)
	t.subs[sub] = struct{}{}

	replay := t.retained
	if !t.config.ReplayAll && len(replay) > 1 {
		replay = replay[len(replay)-1:]
	}
	for _, event := range replay {
		sub.deliver(event)
	}
	p.mu.Unlock()

	if len(replay) > 0 {
		logging.Debug("replayed events to new subscriber", "topic", topic, "count", len(replay))
	}

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()

	return sub, nil
}

// Publish sends an event to every subscriber of topic.
func (p *SSEPublisher) Publish(topic string, eventType string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	t := p.topic(topic)
	t.version++
	event := Event{Topic: topic, Type: eventType, Data: payload, Version: t.version}

	if n := t.config.Retain; n > 0 {
		t.retained = append(t.retained, event)
		if len(t.retained) > n {
			t.retained = t.retained[len(t.retained)-n:]
		}
	}

	for sub := range t.subs {
		if !sub.deliver(event) {
			logging.Trace("subscriber queue full, dropping event", "topic", topic, "type", eventType)
		}
	}
	return nil
}

// Close shuts down the publisher and closes every subscription's channel.
func (p *SSEPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	for _, t := range p.topics {
		for sub := range t.subs {
			sub.stop()
			close(sub.events)
		}
		t.subs = make(map[*sseSubscription]struct{})
	}
	return nil
}

// Subscribers returns the number of open subscriptions on topic.
func (p *SSEPublisher) Subscribers(topic string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if t, ok := p.topics[topic]; ok {
		return len(t.subs)
	}
	return 0
}

func (p *SSEPublisher) unsubscribe(sub *sseSubscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.topics[sub.topic]; ok {
		delete(t.subs, sub)
	}
}

type sseSubscription struct {
	topic     string
	delivery  Delivery
	events    chan Event
	publisher *SSEPublisher
	done      chan struct{}
	once      sync.Once
}

func newSubscription(p *SSEPublisher, topic string, config TopicConfig) *sseSubscription {
	size := 1
	if config.Delivery == Queue {
		size = config.QueueSize
		if size <= 0 {
			size = DefaultQueueSize
		}
	}
	return &sseSubscription{
		topic:     topic,
		delivery:  config.Delivery,
		events:    make(chan Event, size),
		publisher: p,
		done:      make(chan struct{}),
	}
}

// deliver hands event to the subscriber without blocking. Only the
// publisher sends on events, always under its lock, so after a Latest
// subscriber's pending event is taken back there is room for the new one.
func (s *sseSubscription) deliver(event Event) bool {
	if s.delivery == Latest {
		select {
		case <-s.events:
		default:
		}
	}
	select {
	case s.events <- event:
		return true
	default:
		return false
	}
}

func (s *sseSubscription) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *sseSubscription) Topic() string {
	return s.topic
}

func (s *sseSubscription) Events() <-chan Event {
	return s.events
}

// Close removes the subscription from its publisher. The events channel is
// left open; readers stop on their own context.
func (s *sseSubscription) Close() error {
	s.stop()
	s.publisher.unsubscribe(s)
	return nil
}

// WriteSSE writes event as one SSE frame: "data: {json}\n\n".
func WriteSSE(w io.Writer, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
