package service_test

import (
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/spec-kit/loan-query-service/internal/domain"
	"github.com/spec-kit/loan-query-service/internal/events"
	"github.com/spec-kit/loan-query-service/internal/service"
)

func TestCompose(t *testing.T) {
	note, ok := service.Compose(events.UpdateEvent{
		Action: events.ActionPendingApproval, TicketID: "T004", AppNo: "APP9", Priority: domain.PriorityHigh,
	})
	gt.Bool(t, ok).True()
	gt.Value(t, note.Audience).Equal(domain.TeamApproval)
	gt.Value(t, note.Text).Equal("Ticket T004 for APP9 awaits approval (high priority)")

	note, ok = service.Compose(events.UpdateEvent{
		Action: events.ActionApproved, TicketID: "T004", AppNo: "APP9", Sender: "kiran", MarkedForTeam: domain.TeamCredit,
	})
	gt.Bool(t, ok).True()
	gt.Value(t, note.Audience).Equal(domain.TeamCredit)

	_, ok = service.Compose(events.UpdateEvent{Action: events.ActionUpdated})
	gt.Bool(t, ok).False()
}
