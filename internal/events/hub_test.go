package events_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/spec-kit/loan-query-service/internal/domain"
	"github.com/spec-kit/loan-query-service/internal/events"
)

func TestHubPublish(t *testing.T) {
	ctx := context.Background()
	b := events.NewBroadcaster(nil, nil, 4)
	defer b.Close()
	log := events.NewMemoryLog(10)
	hub := events.NewHub(b, log, nil, nil, nil)

	h, ch := collector(4)
	_, err := b.Subscribe(domain.TeamCredit, h)
	gt.NoError(t, err).Required()

	gt.NoError(t, hub.Publish(ctx, events.UpdateEvent{QueryID: "q1", Action: events.ActionCreated, MarkedForTeam: domain.TeamCredit}))

	got := recv(t, ch)
	gt.String(t, got.ID).NotEqual("")
	gt.Bool(t, got.Timestamp.IsZero()).False()
	gt.Value(t, got.Cursor).Equal("1")

	logged, err := log.Since(ctx, "", 0)
	gt.NoError(t, err).Required()
	gt.Array(t, logged).Length(1)
	gt.Value(t, logged[0].ID).Equal(got.ID)
}

func TestHubRejectsInvalidAction(t *testing.T) {
	log := events.NewMemoryLog(10)
	hub := events.NewHub(events.NewBroadcaster(nil, nil, 1), log, nil, nil, nil)
	gt.Error(t, hub.Publish(context.Background(), events.UpdateEvent{Action: "bogus"}))

	logged, err := log.Since(context.Background(), "", 0)
	gt.NoError(t, err).Required()
	gt.Array(t, logged).Length(0)
}
