package dashboard_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/spec-kit/loan-query-service/internal/dashboard"
	"github.com/spec-kit/loan-query-service/internal/domain"
	"github.com/spec-kit/loan-query-service/internal/events"
)

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func creditEvent(id, queryID string, status domain.QueryStatus) events.UpdateEvent {
	return events.UpdateEvent{
		ID:            id,
		QueryID:       queryID,
		Status:        status,
		Action:        events.ActionUpdated,
		Priority:      domain.PriorityHigh,
		Team:          domain.TeamOperations,
		MarkedForTeam: domain.TeamCredit,
		Message:       "status changed " + id,
		Sender:        "ops.meera",
		Timestamp:     time.Now(),
	}
}

// flakyPush fails while failing is set and can drop live subscriptions.
type flakyPush struct {
	failing atomic.Bool
	calls   atomic.Int32

	mu   sync.Mutex
	subs []*fakeSub
}

type fakeSub struct {
	done chan struct{}
	once sync.Once
}

func (s *fakeSub) Done() <-chan struct{} { return s.done }
func (s *fakeSub) Close()                { s.once.Do(func() { close(s.done) }) }

func (p *flakyPush) Subscribe(context.Context, domain.Team, func(events.UpdateEvent)) (dashboard.Subscription, error) {
	p.calls.Add(1)
	if p.failing.Load() {
		return nil, errors.New("dial refused")
	}
	s := &fakeSub{done: make(chan struct{})}
	p.mu.Lock()
	p.subs = append(p.subs, s)
	p.mu.Unlock()
	return s, nil
}

func (p *flakyPush) drop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.subs {
		s.Close()
	}
}

func TestDedupIdempotence(t *testing.T) {
	var refreshed atomic.Int32
	c := dashboard.NewChannel(dashboard.Options{
		Team:    domain.TeamCredit,
		Refresh: func(string, events.UpdateEvent) { refreshed.Add(1) },
	})

	e := creditEvent("e1", "q1", domain.QueryStatusPending)
	gt.Bool(t, c.Apply(e)).True()
	gt.Bool(t, c.Apply(e)).False()

	t.Run("same body and sender within window", func(t *testing.T) {
		dup := e
		dup.ID = "e2"
		dup.Timestamp = e.Timestamp.Add(3 * time.Second)
		gt.Bool(t, c.Apply(dup)).False()
	})

	t.Run("same body outside window", func(t *testing.T) {
		later := e
		later.ID = "e3"
		later.Timestamp = e.Timestamp.Add(10 * time.Second)
		gt.Bool(t, c.Apply(later)).True()
	})

	gt.Value(t, refreshed.Load()).Equal(int32(2))
	gt.Value(t, c.Counters()).Equal(dashboard.Counters{Total: 1, Pending: 1, Urgent: 1})
}

func TestSameBodyOnDifferentQueriesIsApplied(t *testing.T) {
	c := dashboard.NewChannel(dashboard.Options{Team: domain.TeamCredit})
	c.Seed([]domain.QueryGroup{
		{ID: "qA", Status: domain.QueryStatusPending, Priority: domain.PriorityLow},
		{ID: "qB", Status: domain.QueryStatusPending, Priority: domain.PriorityLow},
	})

	at := time.Now()
	resolved := func(id, queryID string) events.UpdateEvent {
		e := creditEvent(id, queryID, domain.QueryStatusResolved)
		e.SubQueryID = queryID + "-1"
		e.Message = "Sub-query #1 resolved via respond"
		e.Sender = "credit.arjun"
		e.Timestamp = at
		return e
	}

	gt.Bool(t, c.Apply(resolved("e1", "qA"))).True()
	gt.Bool(t, c.Apply(resolved("e2", "qB"))).True()
	gt.Value(t, c.Counters()).Equal(dashboard.Counters{Total: 2, Resolved: 2})

	t.Run("redelivery under a new id is still dropped", func(t *testing.T) {
		gt.Bool(t, c.Apply(resolved("e3", "qB"))).False()
	})
}

func TestApplyIgnoresOtherTeams(t *testing.T) {
	c := dashboard.NewChannel(dashboard.Options{Team: domain.TeamSales})
	e := creditEvent("e1", "q1", domain.QueryStatusPending)
	gt.Bool(t, c.Apply(e)).False()
	gt.Value(t, c.Counters().Total).Equal(0)
}

func TestCountersFollowLatestStatus(t *testing.T) {
	c := dashboard.NewChannel(dashboard.Options{Team: domain.TeamCredit})
	c.Seed([]domain.QueryGroup{
		{ID: "q1", Status: domain.QueryStatusPending, Priority: domain.PriorityLow},
		{ID: "q2", Status: domain.QueryStatusPending, Priority: domain.PriorityUrgent},
	})
	gt.Value(t, c.Counters()).Equal(dashboard.Counters{Total: 2, Pending: 2, Urgent: 1})

	c.Apply(creditEvent("e1", "q2", domain.QueryStatusWaitingForApproval))
	c.Apply(creditEvent("e2", "q1", domain.QueryStatusResolved))
	gt.Value(t, c.Counters()).Equal(dashboard.Counters{Total: 2, WaitingApproval: 1, Resolved: 1, Urgent: 1})
}

func TestFallbackToPollingAndRecovery(t *testing.T) {
	ctx := context.Background()
	log := events.NewMemoryLog(100)
	_, err := log.Append(ctx, creditEvent("e1", "q1", domain.QueryStatusPending))
	gt.NoError(t, err).Required()

	push := &flakyPush{}
	push.failing.Store(true)

	c := dashboard.NewChannel(dashboard.Options{
		Team:          domain.TeamCredit,
		Push:          push,
		Poll:          dashboard.LogPoll{Log: log},
		PollInterval:  10 * time.Millisecond,
		SweepInterval: 50 * time.Millisecond,
	})
	c.Start(ctx)
	defer c.Close()

	eventually(t, func() bool { return c.State() == dashboard.StatePolling })
	eventually(t, func() bool { return c.Counters().Total == 1 })

	_, err = log.Append(ctx, creditEvent("e2", "q2", domain.QueryStatusPending))
	gt.NoError(t, err).Required()
	eventually(t, func() bool { return c.Counters().Total == 2 })

	push.failing.Store(false)
	eventually(t, func() bool { return c.State() == dashboard.StateConnected })

	push.drop()
	eventually(t, func() bool { return c.State() == dashboard.StatePolling })
	gt.Bool(t, push.calls.Load() >= 2).True()
}

func TestCloseReleasesSubscription(t *testing.T) {
	b := events.NewBroadcaster(nil, nil, 8)
	defer b.Close()

	var applied atomic.Int32
	c := dashboard.NewChannel(dashboard.Options{
		Team:    domain.TeamCredit,
		Push:    dashboard.BroadcasterPush{Broadcaster: b},
		Refresh: func(string, events.UpdateEvent) { applied.Add(1) },
	})
	c.Start(context.Background())

	eventually(t, func() bool { return c.State() == dashboard.StateConnected })
	gt.Value(t, b.SubscriberCount(domain.TeamCredit)).Equal(1)

	gt.NoError(t, b.Publish(context.Background(), creditEvent("e1", "q1", domain.QueryStatusPending)))
	eventually(t, func() bool { return applied.Load() == 1 })

	c.Close()
	c.Close()
	gt.Value(t, b.SubscriberCount(domain.TeamCredit)).Equal(0)
	gt.Value(t, c.State()).Equal(dashboard.StateDisconnected)
}

func TestReadLogAdvancesPastFilteredEvents(t *testing.T) {
	ctx := context.Background()
	log := events.NewMemoryLog(100)
	sales := creditEvent("e1", "q1", domain.QueryStatusPending)
	sales.MarkedForTeam = domain.TeamSales
	_, _ = log.Append(ctx, sales)
	_, _ = log.Append(ctx, creditEvent("e2", "q2", domain.QueryStatusPending))

	res, err := dashboard.ReadLog(ctx, log, domain.TeamCredit, "", 1)
	gt.NoError(t, err).Required()
	gt.Array(t, res.Events).Length(0)
	gt.Value(t, res.Cursor).Equal("1")
	gt.Bool(t, res.More).True()

	res, err = dashboard.ReadLog(ctx, log, domain.TeamCredit, res.Cursor, 1)
	gt.NoError(t, err).Required()
	gt.Array(t, res.Events).Length(1)
	gt.Value(t, res.Events[0].ID).Equal("e2")
}
