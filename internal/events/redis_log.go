package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const streamField = "event"

// RedisLog stores update events in a capped Redis stream.
type RedisLog struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisLog creates a stream-backed log.
func NewRedisLog(client *redis.Client, stream string, maxLen int64) *RedisLog {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisLog{client: client, stream: stream, maxLen: maxLen}
}

func (l *RedisLog) Append(ctx context.Context, e UpdateEvent) (string, error) {
	e.Cursor = ""
	payload, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode update event: %w", err)
	}
	return l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: l.stream,
		MaxLen: l.maxLen,
		Approx: true,
		Values: map[string]interface{}{streamField: payload},
	}).Result()
}

func (l *RedisLog) Since(ctx context.Context, cursor string, limit int) ([]UpdateEvent, error) {
	start := "-"
	if cursor != "" {
		if !validStreamID(cursor) {
			return nil, fmt.Errorf("%w %q", ErrInvalidCursor, cursor)
		}
		start = "(" + cursor
	}
	if limit <= 0 {
		limit = defaultPollLimit
	}
	msgs, err := l.client.XRangeN(ctx, l.stream, start, "+", int64(limit)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]UpdateEvent, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values[streamField].(string)
		if !ok {
			continue
		}
		var e UpdateEvent
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode update event %s: %w", msg.ID, err)
		}
		e.Cursor = msg.ID
		out = append(out, e)
	}
	return out, nil
}

func validStreamID(id string) bool {
	ms, seq, ok := strings.Cut(id, "-")
	if !ok {
		return false
	}
	if _, err := strconv.ParseUint(ms, 10, 64); err != nil {
		return false
	}
	_, err := strconv.ParseUint(seq, 10, 64)
	return err == nil
}
