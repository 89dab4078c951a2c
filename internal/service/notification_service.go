package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/loan-query-service/internal/config"
	"github.com/spec-kit/loan-query-service/internal/domain"
	"github.com/spec-kit/loan-query-service/internal/events"
)

// NotificationService tells the approval team about new tickets and tells
// requesters about decisions, by webhook when one is configured.
type NotificationService struct {
	broadcaster *events.Broadcaster
	logger      *zap.Logger
	cfg         config.NotificationConfig

	unsubscribe func()
}

// Notification is the webhook payload.
type Notification struct {
	Kind     string             `json:"kind"`
	Text     string             `json:"text"`
	Event    events.UpdateEvent `json:"event"`
	Audience domain.Team        `json:"audience"`
}

// NewNotificationService creates the service.
func NewNotificationService(broadcaster *events.Broadcaster, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		broadcaster: broadcaster,
		logger:      logger.With(zap.String("component", "notifications")),
		cfg:         cfg,
	}
}

// RegisterHandlers subscribes to the approval topic.
func (n *NotificationService) RegisterHandlers() error {
	if n.broadcaster == nil {
		return nil
	}
	unsub, err := n.broadcaster.Subscribe(domain.TeamApproval, n.handle)
	if err != nil {
		return err
	}
	n.unsubscribe = unsub
	return nil
}

// Close releases the subscription.
func (n *NotificationService) Close() {
	if n.unsubscribe != nil {
		n.unsubscribe()
	}
}

func (n *NotificationService) handle(ctx context.Context, event events.UpdateEvent) error {
	note, ok := Compose(event)
	if !ok {
		return nil
	}
	n.logger.Info(note.Kind,
		zap.String("query_id", event.QueryID),
		zap.String("ticket_id", event.TicketID),
		zap.String("audience", string(note.Audience)))
	return n.sendWebhook(ctx, note)
}

// Compose turns an approval-related event into a notification.
func Compose(event events.UpdateEvent) (Notification, bool) {
	switch event.Action {
	case events.ActionPendingApproval:
		return Notification{
			Kind:     "ApprovalRequested",
			Text:     fmt.Sprintf("Ticket %s for %s awaits approval (%s priority)", event.TicketID, event.AppNo, event.Priority),
			Event:    event,
			Audience: domain.TeamApproval,
		}, true
	case events.ActionApproved:
		return Notification{
			Kind:     "ApprovalGranted",
			Text:     fmt.Sprintf("Ticket %s for %s approved by %s", event.TicketID, event.AppNo, event.Sender),
			Event:    event,
			Audience: event.MarkedForTeam,
		}, true
	}
	return Notification{}, false
}

func (n *NotificationService) sendWebhook(_ context.Context, note Notification) error {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return nil
	}
	agent := fiber.Post(n.cfg.WebhookURL).Timeout(n.cfg.Timeout()).JSON(note)
	code, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("webhook delivery: %w", errs[0])
	}
	if code >= fiber.StatusBadRequest {
		return fmt.Errorf("webhook delivery: status %d", code)
	}
	n.logger.Debug("webhook delivered", zap.String("kind", note.Kind), zap.Int("status", code))
	return nil
}
