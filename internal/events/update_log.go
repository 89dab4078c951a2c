package events

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
)

// UpdateLog is the durable append-only log the polling path reads.
type UpdateLog interface {
	// Append stores e and returns its cursor.
	Append(ctx context.Context, e UpdateEvent) (string, error)
	// Since returns up to limit events strictly after cursor, oldest first,
	// each with Cursor set. An empty cursor reads from the beginning.
	Since(ctx context.Context, cursor string, limit int) ([]UpdateEvent, error)
}

const defaultPollLimit = 200

// ErrInvalidCursor is returned by Since for a cursor the log never issued.
var ErrInvalidCursor = errors.New("invalid cursor")

// MemoryLog keeps the most recent events in process.
type MemoryLog struct {
	mu     sync.RWMutex
	seq    uint64
	maxLen int
	items  []UpdateEvent
}

// NewMemoryLog creates a log retaining at most maxLen events.
func NewMemoryLog(maxLen int) *MemoryLog {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &MemoryLog{maxLen: maxLen}
}

func (l *MemoryLog) Append(_ context.Context, e UpdateEvent) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	e.Cursor = strconv.FormatUint(l.seq, 10)
	l.items = append(l.items, e)
	if over := len(l.items) - l.maxLen; over > 0 {
		l.items = append([]UpdateEvent(nil), l.items[over:]...)
	}
	return e.Cursor, nil
}

func (l *MemoryLog) Since(_ context.Context, cursor string, limit int) ([]UpdateEvent, error) {
	var after uint64
	if cursor != "" {
		parsed, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrInvalidCursor, cursor, err)
		}
		after = parsed
	}
	if limit <= 0 {
		limit = defaultPollLimit
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]UpdateEvent, 0)
	for _, e := range l.items {
		seq, _ := strconv.ParseUint(e.Cursor, 10, 64)
		if seq <= after {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
