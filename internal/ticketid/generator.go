package ticketid

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/loan-query-service/internal/observability"
)

// Counter is a durable sequence shared by several processes.
type Counter interface {
	Next(ctx context.Context) (int64, error)
	// RaiseTo sets the counter to at least floor and returns the result.
	RaiseTo(ctx context.Context, floor int64) (int64, error)
}

// Source lists every ticket id already issued.
type Source func(ctx context.Context) ([]string, error)

// Generator issues ids of the form <prefix><zero-padded sequence>.
type Generator struct {
	prefix  string
	width   int
	durable Counter
	logger  *zap.Logger
	metrics *observability.Metrics

	mu    sync.Mutex
	local int64
}

// Option customizes a Generator.
type Option func(*Generator)

// WithCounter makes c the primary sequence; the local counter backs it up.
func WithCounter(c Counter) Option {
	return func(g *Generator) { g.durable = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) { g.logger = observability.Component(l, "ticketid") }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// New creates a generator seeded at zero.
func New(prefix string, width int, opts ...Option) *Generator {
	if prefix == "" {
		prefix = "T"
	}
	if width <= 0 {
		width = 3
	}
	g := &Generator{prefix: prefix, width: width, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Next issues the next id. Ids are strictly increasing within a process.
func (g *Generator) Next(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	seq := g.local + 1
	if g.durable != nil {
		n, err := g.durable.Next(ctx)
		if err != nil {
			g.logger.Warn("durable ticket counter failed; using local sequence", zap.Error(err))
		} else if n > seq {
			seq = n
		}
	}
	g.local = seq
	g.metrics.RecordTicketIssued()
	return g.Format(seq), nil
}

// Reconcile raises the counter to the highest sequence found in source.
// It returns the counter value afterwards.
func (g *Generator) Reconcile(ctx context.Context, source Source) (int64, error) {
	ids, err := source(ctx)
	if err != nil {
		return g.Current(), fmt.Errorf("scan ticket ids: %w", err)
	}
	var highest int64
	for _, id := range ids {
		if n, ok := g.Parse(id); ok && n > highest {
			highest = n
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if highest > g.local {
		g.local = highest
	}
	if g.durable != nil {
		n, err := g.durable.RaiseTo(ctx, g.local)
		if err != nil {
			g.logger.Warn("raise durable ticket counter", zap.Error(err))
		} else if n > g.local {
			g.local = n
		}
	}
	g.logger.Info("ticket counter reconciled",
		zap.Int("scanned", len(ids)),
		zap.Int64("highest", highest),
		zap.Int64("current", g.local))
	return g.local, nil
}

// Current returns the last issued sequence.
func (g *Generator) Current() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.local
}

// Format renders seq with the configured prefix and padding.
func (g *Generator) Format(seq int64) string {
	return fmt.Sprintf("%s%0*d", g.prefix, g.width, seq)
}

// Parse extracts the sequence from an id carrying this generator's prefix.
func (g *Generator) Parse(id string) (int64, bool) {
	if !strings.HasPrefix(id, g.prefix) {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(id, g.prefix), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
