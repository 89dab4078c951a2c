package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/loan-query-service/internal/observability"
)

// Hub is the publisher the lifecycle uses: it appends each event to the
// update log, delivers it locally and relays it to peer processes.
type Hub struct {
	broadcaster *Broadcaster
	log         UpdateLog
	relay       *Relay
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time
}

// NewHub wires a hub; log and relay may be nil.
func NewHub(broadcaster *Broadcaster, log UpdateLog, relay *Relay, logger *zap.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{
		broadcaster: broadcaster,
		log:         log,
		relay:       relay,
		logger:      observability.Component(logger, "hub"),
		metrics:     metrics,
		now:         time.Now,
	}
}

// Publish never fails the caller for delivery problems; those are logged.
func (h *Hub) Publish(ctx context.Context, e UpdateEvent) error {
	if !e.Action.Valid() {
		return fmt.Errorf("invalid update action %q", e.Action)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = h.now().UTC()
	}
	if h.relay != nil {
		e.Origin = h.relay.Origin()
	}

	if h.log != nil {
		cursor, err := h.log.Append(ctx, e)
		if err != nil {
			h.logger.Warn("broadcast failure: update log append", zap.String("query_id", e.QueryID), zap.Error(err))
			h.metrics.RecordBroadcastFailure("log", "append_error")
		} else {
			e.Cursor = cursor
		}
	}

	if err := h.broadcaster.Publish(ctx, e); err != nil {
		return err
	}

	if h.relay != nil {
		if err := h.relay.Publish(ctx, e); err != nil {
			h.logger.Warn("broadcast failure: relay publish", zap.String("query_id", e.QueryID), zap.Error(err))
			h.metrics.RecordBroadcastFailure("relay", "publish_error")
		}
	}
	return nil
}

// Broadcaster exposes the local fan-out for subscribers.
func (h *Hub) Broadcaster() *Broadcaster {
	return h.broadcaster
}

// Log exposes the update log for pollers.
func (h *Hub) Log() UpdateLog {
	return h.log
}
