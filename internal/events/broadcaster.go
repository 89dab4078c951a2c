package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/loan-query-service/internal/domain"
	"github.com/spec-kit/loan-query-service/internal/observability"
)

// Handler receives a delivered event.
type Handler func(context.Context, UpdateEvent) error

// Publisher is anything that accepts update events for distribution.
type Publisher interface {
	Publish(ctx context.Context, event UpdateEvent) error
}

// ErrUnknownTopic is returned when subscribing to a value that names no team.
var ErrUnknownTopic = errors.New("unknown topic")

const defaultSubscriberBuffer = 64

// Broadcaster fans events out to subscribers by team topic. Each subscription
// drains its own bounded queue so a slow handler never blocks Publish.
type Broadcaster struct {
	mu     sync.RWMutex
	topics map[domain.Team]map[uint64]*subscription
	nextID uint64
	buffer int

	logger  *zap.Logger
	metrics *observability.Metrics
}

type subscription struct {
	id      uint64
	label   domain.Team
	topics  []domain.Team
	handler Handler
	queue   chan UpdateEvent
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
}

// NewBroadcaster creates a broadcaster; buffer bounds each subscriber queue.
func NewBroadcaster(logger *zap.Logger, metrics *observability.Metrics, buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Broadcaster{
		topics:  make(map[domain.Team]map[uint64]*subscription),
		buffer:  buffer,
		logger:  observability.Component(logger, "broadcaster"),
		metrics: metrics,
	}
}

// Subscribe registers handler on topic and returns an idempotent unsubscribe.
// "both" covers sales and credit, "broadcast" covers every team; either way a
// given event reaches the handler once.
func (b *Broadcaster) Subscribe(topic domain.Team, handler Handler) (func(), error) {
	topics := Expand(topic)
	if len(topics) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	if handler == nil {
		return nil, errors.New("nil handler")
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.mu.Lock()
	b.nextID++
	sub := &subscription{
		id:      b.nextID,
		label:   topic,
		topics:  topics,
		handler: handler,
		queue:   make(chan UpdateEvent, b.buffer),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, t := range topics {
		if b.topics[t] == nil {
			b.topics[t] = make(map[uint64]*subscription)
		}
		b.topics[t][sub.id] = sub
	}
	b.mu.Unlock()

	go b.drain(sub)

	return func() { b.unsubscribe(sub) }, nil
}

// Publish delivers event to every subscriber of its topics without waiting
// on any of them. Undeliverable events are logged and counted, never returned.
func (b *Broadcaster) Publish(ctx context.Context, event UpdateEvent) error {
	if !event.Action.Valid() {
		return fmt.Errorf("invalid update action %q", event.Action)
	}

	b.mu.RLock()
	targets := make(map[uint64]*subscription)
	for _, t := range Topics(event) {
		for id, sub := range b.topics[t] {
			targets[id] = sub
		}
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		select {
		case <-sub.ctx.Done():
		case sub.queue <- event:
		default:
			b.logger.Warn("broadcast failure: subscriber queue full",
				zap.String("topic", string(sub.label)),
				zap.String("query_id", event.QueryID),
				zap.String("event_id", event.ID))
			b.metrics.RecordBroadcastFailure(string(sub.label), "queue_full")
		}
	}
	return nil
}

// SubscriberCount reports how many subscriptions receive topic.
func (b *Broadcaster) SubscriberCount(topic domain.Team) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Close removes every subscription.
func (b *Broadcaster) Close() {
	b.mu.RLock()
	subs := make([]*subscription, 0)
	seen := map[uint64]struct{}{}
	for _, byID := range b.topics {
		for id, sub := range byID {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			subs = append(subs, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		b.unsubscribe(sub)
	}
}

func (b *Broadcaster) unsubscribe(sub *subscription) {
	sub.once.Do(func() {
		b.mu.Lock()
		for _, t := range sub.topics {
			delete(b.topics[t], sub.id)
			if len(b.topics[t]) == 0 {
				delete(b.topics, t)
			}
		}
		b.mu.Unlock()
		sub.cancel()
	})
}

func (b *Broadcaster) drain(sub *subscription) {
	for {
		select {
		case <-sub.ctx.Done():
			return
		case event := <-sub.queue:
			b.deliver(sub, event)
		}
	}
}

func (b *Broadcaster) deliver(sub *subscription, event UpdateEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("broadcast failure: subscriber panicked",
				zap.String("topic", string(sub.label)),
				zap.Any("panic", r))
			b.metrics.RecordBroadcastFailure(string(sub.label), "panic")
		}
	}()
	if err := sub.handler(sub.ctx, event); err != nil {
		b.logger.Warn("broadcast failure: subscriber returned error",
			zap.String("topic", string(sub.label)),
			zap.String("query_id", event.QueryID),
			zap.Error(err))
		b.metrics.RecordBroadcastFailure(string(sub.label), "handler_error")
	}
}
