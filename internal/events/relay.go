package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/loan-query-service/internal/observability"
)

// Relay bridges broadcasters in several processes over Redis pub/sub.
type Relay struct {
	client  *redis.Client
	channel string
	origin  string
	local   *Broadcaster
	logger  *zap.Logger
}

// NewRelay creates a relay; origin must be unique per process.
func NewRelay(client *redis.Client, channel, origin string, local *Broadcaster, logger *zap.Logger) *Relay {
	return &Relay{
		client:  client,
		channel: channel,
		origin:  origin,
		local:   local,
		logger:  observability.Component(logger, "relay"),
	}
}

// Origin identifies this process on the relay channel.
func (r *Relay) Origin() string {
	return r.origin
}

// Publish forwards e to peer processes.
func (r *Relay) Publish(ctx context.Context, e UpdateEvent) error {
	e.Origin = r.origin
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode relay event: %w", err)
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

// Run delivers peer events to the local broadcaster until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ps := r.client.Subscribe(ctx, r.channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.logger.Info("relay subscribed", zap.String("channel", r.channel))

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handle(ctx, msg.Payload)
		}
	}
}

func (r *Relay) handle(ctx context.Context, payload string) {
	var e UpdateEvent
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		r.logger.Warn("dropping malformed relay event", zap.Error(err))
		return
	}
	if e.Origin == r.origin {
		return
	}
	if err := r.local.Publish(ctx, e); err != nil {
		r.logger.Warn("broadcast failure: relayed event rejected",
			zap.String("query_id", e.QueryID),
			zap.String("event_id", e.ID),
			zap.String("origin", e.Origin),
			zap.Error(err))
	}
}
