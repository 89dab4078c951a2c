package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/loan-query-service/internal/service"
)

// StartNotificationWorker subscribes the notification service to approval
// events and releases the subscription when ctx ends.
func StartNotificationWorker(ctx context.Context, notificationService *service.NotificationService, logger *zap.Logger) error {
	if notificationService == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := notificationService.RegisterHandlers(); err != nil {
		return fmt.Errorf("register notification handlers: %w", err)
	}
	go func() {
		<-ctx.Done()
		notificationService.Close()
		logger.Info("notification worker stopped")
	}()
	return nil
}
