package events_test

import (
	"context"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/spec-kit/loan-query-service/internal/events"
)

func TestMemoryLog(t *testing.T) {
	ctx := context.Background()
	log := events.NewMemoryLog(3)

	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := log.Append(ctx, events.UpdateEvent{ID: id, Action: events.ActionUpdated})
		gt.NoError(t, err).Required()
	}

	t.Run("oldest entries are trimmed", func(t *testing.T) {
		all, err := log.Since(ctx, "", 0)
		gt.NoError(t, err).Required()
		gt.Array(t, all).Length(3)
		gt.Value(t, all[0].ID).Equal("b")
	})

	t.Run("reads strictly after the cursor", func(t *testing.T) {
		all, err := log.Since(ctx, "", 0)
		gt.NoError(t, err).Required()
		rest, err := log.Since(ctx, all[0].Cursor, 1)
		gt.NoError(t, err).Required()
		gt.Array(t, rest).Length(1)
		gt.Value(t, rest[0].ID).Equal("c")
	})

	t.Run("caught up cursor returns nothing", func(t *testing.T) {
		all, err := log.Since(ctx, "", 0)
		gt.NoError(t, err).Required()
		rest, err := log.Since(ctx, all[len(all)-1].Cursor, 0)
		gt.NoError(t, err).Required()
		gt.Array(t, rest).Length(0)
	})

	t.Run("malformed cursor", func(t *testing.T) {
		_, err := log.Since(ctx, "not-a-cursor", 0)
		gt.Error(t, err)
	})
}
