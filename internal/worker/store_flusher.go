package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Flusher retries writes that only reached the in-memory fallback.
type Flusher interface {
	Flush(ctx context.Context) int
}

// RunStoreFlusher calls f.Flush every interval until ctx ends.
func RunStoreFlusher(ctx context.Context, f Flusher, interval time.Duration, logger *zap.Logger) error {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if pending := f.Flush(ctx); pending > 0 {
				logger.Warn("writes still awaiting the durable store", zap.Int("pending", pending))
			}
		}
	}
}
