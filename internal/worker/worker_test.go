package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/spec-kit/loan-query-service/internal/config"
	"github.com/spec-kit/loan-query-service/internal/domain"
	"github.com/spec-kit/loan-query-service/internal/events"
	"github.com/spec-kit/loan-query-service/internal/service"
	"github.com/spec-kit/loan-query-service/internal/worker"
)

type countingFlusher struct{ calls atomic.Int32 }

func (c *countingFlusher) Flush(context.Context) int {
	c.calls.Add(1)
	return 0
}

func TestRunStoreFlusher(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &countingFlusher{}
	done := make(chan error, 1)
	go func() { done <- worker.RunStoreFlusher(ctx, f, 10*time.Millisecond, nil) }()

	time.Sleep(80 * time.Millisecond)
	cancel()
	gt.NoError(t, <-done)
	gt.Bool(t, f.calls.Load() >= 2).True()
}

type flakyRunner struct{ runs atomic.Int32 }

func (r *flakyRunner) Run(ctx context.Context) error {
	if r.runs.Add(1) == 1 {
		return errors.New("connection reset")
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRunWithRestart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &flakyRunner{}
	done := make(chan error, 1)
	go func() { done <- worker.RunWithRestart(ctx, "relay", r, nil) }()

	deadline := time.Now().Add(3 * time.Second)
	for r.runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	gt.Value(t, r.runs.Load()).Equal(int32(2))
	cancel()
	gt.NoError(t, <-done)
}

func TestNotificationWorkerReleasesOnCancel(t *testing.T) {
	gt.NoError(t, worker.StartNotificationWorker(context.Background(), nil, nil))

	b := events.NewBroadcaster(nil, nil, 4)
	defer b.Close()
	svc := service.NewNotificationService(b, nil, config.NotificationConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	gt.NoError(t, worker.StartNotificationWorker(ctx, svc, nil)).Required()
	gt.Value(t, b.SubscriberCount(domain.TeamApproval)).Equal(1)

	cancel()
	deadline := time.Now().Add(time.Second)
	for b.SubscriberCount(domain.TeamApproval) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("notification subscription not released")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
