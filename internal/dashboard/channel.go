package dashboard

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/loan-query-service/internal/domain"
	"github.com/spec-kit/loan-query-service/internal/events"
	"github.com/spec-kit/loan-query-service/internal/observability"
)

// State is the connection state of a Channel.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StatePolling      State = "polling"
)

// Counters are the dashboard tiles derived from the latest status per query.
type Counters struct {
	Total           int `json:"total"`
	Pending         int `json:"pending"`
	WaitingApproval int `json:"waitingApproval"`
	Resolved        int `json:"resolved"`
	Urgent          int `json:"urgent"`
}

// Refresher updates one row of a dashboard list.
type Refresher func(queryID string, e events.UpdateEvent)

// Options configures a Channel.
type Options struct {
	Team          domain.Team
	Push          PushSource
	Poll          PollSource
	Refresh       Refresher
	PollInterval  time.Duration
	SweepInterval time.Duration
	DedupWindow   time.Duration
	PollLimit     int
	// Cursor starts polling after this position instead of the log's beginning.
	Cursor string
	Logger *zap.Logger
}

type queryState struct {
	status   domain.QueryStatus
	priority domain.Priority
}

// Channel keeps one team's dashboard in sync: push first, polling when push
// is unavailable, with both paths feeding the same Apply.
type Channel struct {
	team          domain.Team
	push          PushSource
	poll          PollSource
	refresh       Refresher
	pollInterval  time.Duration
	sweepInterval time.Duration
	pollLimit     int
	dedup         *Deduper
	logger        *zap.Logger

	mu      sync.Mutex
	state   State
	cursor  string
	queries map[string]queryState

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewChannel creates a disconnected channel; call Start to run it.
func NewChannel(opts Options) *Channel {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 30 * time.Second
	}
	logger := observability.Component(opts.Logger, "sync_channel").With(zap.String("team", string(opts.Team)))
	return &Channel{
		team:          opts.Team,
		push:          opts.Push,
		poll:          opts.Poll,
		refresh:       opts.Refresh,
		pollInterval:  opts.PollInterval,
		sweepInterval: opts.SweepInterval,
		pollLimit:     opts.PollLimit,
		dedup:         NewDeduper(opts.DedupWindow),
		logger:        logger,
		state:         StateDisconnected,
		cursor:        opts.Cursor,
		queries:       make(map[string]queryState),
		done:          make(chan struct{}),
	}
}

// Seed loads the current rows so counters start from the list the dashboard shows.
func (c *Channel) Seed(groups []domain.QueryGroup) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, g := range groups {
		c.queries[g.ID] = queryState{status: g.Status, priority: g.Priority}
	}
}

// Start runs the sync loop in the background until Close or ctx ends.
func (c *Channel) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go func() {
		defer close(c.done)
		c.run(ctx)
	}()
}

// Close stops the loop and releases the push registration. It is idempotent.
func (c *Channel) Close() {
	c.once.Do(func() {
		if c.cancel == nil {
			close(c.done)
			return
		}
		c.cancel()
		<-c.done
		c.setState(StateDisconnected)
	})
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Counters returns the current dashboard counters.
func (c *Channel) Counters() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out Counters
	for _, q := range c.queries {
		out.Total++
		switch {
		case q.status.IsTerminal():
			out.Resolved++
		case q.status == domain.QueryStatusWaitingForApproval:
			out.WaitingApproval++
		default:
			out.Pending++
		}
		if !q.status.IsTerminal() && q.priority.IsUrgent() {
			out.Urgent++
		}
	}
	return out
}

// Cursor returns the update log position the next poll starts from.
func (c *Channel) Cursor() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// Apply merges one event from either path. It returns false for duplicates
// and for events not routed to this channel's team. Only polling advances
// the cursor, so a sweep still finds events the push path dropped.
func (c *Channel) Apply(e events.UpdateEvent) bool {
	if !events.Routes(e, c.team) || !c.dedup.Admit(e) {
		return false
	}

	c.mu.Lock()
	prev, known := c.queries[e.QueryID]
	next := queryState{status: e.Status, priority: e.Priority}
	if next.status == "" && known {
		next.status = prev.status
	}
	if next.priority == "" && known {
		next.priority = prev.priority
	}
	c.queries[e.QueryID] = next
	c.mu.Unlock()

	if c.refresh != nil {
		c.refresh(e.QueryID, e)
	}
	return true
}

func (c *Channel) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if c.push != nil && c.runPush(ctx) {
			return
		}
		if c.runPolling(ctx) {
			return
		}
	}
}

// runPush returns true when ctx ended; false when push failed or dropped.
func (c *Channel) runPush(ctx context.Context) bool {
	c.setState(StateConnecting)
	sub, err := c.push.Subscribe(ctx, c.team, func(e events.UpdateEvent) { c.Apply(e) })
	if err != nil {
		c.logger.Warn("push unavailable; falling back to polling", zap.Error(err))
		return false
	}
	defer sub.Close()
	c.setState(StateConnected)
	c.logger.Info("push connected")

	sweep := time.NewTicker(c.sweepInterval)
	defer sweep.Stop()
	for {
		select {
		case <-ctx.Done():
			return true
		case <-sub.Done():
			c.logger.Warn("push dropped; falling back to polling")
			return false
		case <-sweep.C:
			c.pollOnce(ctx)
		}
	}
}

// runPolling returns true when ctx ended; false when it is time to retry push.
func (c *Channel) runPolling(ctx context.Context) bool {
	c.setState(StatePolling)
	c.pollOnce(ctx)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	var retry <-chan time.Time
	if c.push != nil {
		timer := time.NewTimer(c.sweepInterval)
		defer timer.Stop()
		retry = timer.C
	}
	for {
		select {
		case <-ctx.Done():
			return true
		case <-ticker.C:
			c.pollOnce(ctx)
		case <-retry:
			return false
		}
	}
}

func (c *Channel) pollOnce(ctx context.Context) {
	if c.poll == nil {
		return
	}
	for {
		res, err := c.poll.Poll(ctx, c.team, c.Cursor(), c.pollLimit)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("poll failed", zap.Error(err))
			}
			return
		}
		for _, e := range res.Events {
			c.Apply(e)
		}
		c.mu.Lock()
		if res.Cursor != "" {
			c.cursor = res.Cursor
		}
		c.mu.Unlock()
		if !res.More || ctx.Err() != nil {
			return
		}
	}
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
