package dashboard

import (
	"context"
	"sync"

	"github.com/spec-kit/loan-query-service/internal/domain"
	"github.com/spec-kit/loan-query-service/internal/events"
)

const defaultPollLimit = 200

// Subscription is a live push registration.
type Subscription interface {
	// Done is closed when the push connection drops.
	Done() <-chan struct{}
	Close()
}

// PushSource streams events for a team as they happen.
type PushSource interface {
	Subscribe(ctx context.Context, team domain.Team, deliver func(events.UpdateEvent)) (Subscription, error)
}

// PollResult is one page read from the update log.
type PollResult struct {
	Events []events.UpdateEvent `json:"events"`
	// Cursor is where the next poll continues; it advances past events
	// filtered out for the team.
	Cursor string `json:"cursor"`
	// More is set when the page was full and another may follow.
	More bool `json:"more"`
}

// PollSource reads the update log after a cursor.
type PollSource interface {
	Poll(ctx context.Context, team domain.Team, cursor string, limit int) (PollResult, error)
}

// BroadcasterPush subscribes directly to an in-process broadcaster.
type BroadcasterPush struct {
	Broadcaster *events.Broadcaster
}

func (p BroadcasterPush) Subscribe(_ context.Context, team domain.Team, deliver func(events.UpdateEvent)) (Subscription, error) {
	unsub, err := p.Broadcaster.Subscribe(team, func(_ context.Context, e events.UpdateEvent) error {
		deliver(e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newLocalSubscription(unsub), nil
}

type localSubscription struct {
	done  chan struct{}
	once  sync.Once
	unsub func()
}

func newLocalSubscription(unsub func()) *localSubscription {
	return &localSubscription{done: make(chan struct{}), unsub: unsub}
}

func (s *localSubscription) Done() <-chan struct{} { return s.done }

func (s *localSubscription) Close() {
	s.once.Do(func() {
		s.unsub()
		close(s.done)
	})
}

// LogPoll reads an in-process update log.
type LogPoll struct {
	Log events.UpdateLog
}

func (p LogPoll) Poll(ctx context.Context, team domain.Team, cursor string, limit int) (PollResult, error) {
	return ReadLog(ctx, p.Log, team, cursor, limit)
}

// ReadLog returns the events after cursor that route to team.
func ReadLog(ctx context.Context, log events.UpdateLog, team domain.Team, cursor string, limit int) (PollResult, error) {
	if limit <= 0 {
		limit = defaultPollLimit
	}
	page, err := log.Since(ctx, cursor, limit)
	if err != nil {
		return PollResult{Cursor: cursor}, err
	}
	out := PollResult{
		Events: make([]events.UpdateEvent, 0, len(page)),
		Cursor: cursor,
		More:   len(page) == limit,
	}
	for _, e := range page {
		out.Cursor = e.Cursor
		if events.Routes(e, team) {
			out.Events = append(out.Events, e)
		}
	}
	return out, nil
}
