package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Runner is a long-lived loop such as the cross-process relay.
type Runner interface {
	Run(ctx context.Context) error
}

// RunWithRestart keeps r running until ctx ends, backing off after failures.
func RunWithRestart(ctx context.Context, name string, r Runner, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	backoff := time.Second
	for {
		err := r.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil || errors.Is(err, context.Canceled) {
			err = errors.New("exited")
		}
		logger.Warn("worker stopped; restarting",
			zap.String("worker", name),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}
