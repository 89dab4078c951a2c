package ws_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/m-mizutani/gt"

	"github.com/spec-kit/loan-query-service/internal/api/ws"
	"github.com/spec-kit/loan-query-service/internal/auth"
	"github.com/spec-kit/loan-query-service/internal/dashboard"
	"github.com/spec-kit/loan-query-service/internal/domain"
	"github.com/spec-kit/loan-query-service/internal/events"
)

type fixture struct {
	broadcaster *events.Broadcaster
	tokens      *auth.TokenManager
	url         string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tokens := auth.NewTokenManager("secret", 5)
	b := events.NewBroadcaster(nil, nil, 8)
	srv := httptest.NewServer(ws.NewServer(b, auth.NewAuthMiddleware(tokens), nil, nil).Handler())
	t.Cleanup(func() {
		srv.Close()
		b.Close()
	})
	return &fixture{
		broadcaster: b,
		tokens:      tokens,
		url:         "ws" + strings.TrimPrefix(srv.URL, "http") + ws.Path,
	}
}

func (f *fixture) token(t *testing.T, team domain.Team) string {
	t.Helper()
	tok, _, err := f.tokens.GenerateToken(domain.Actor{Name: "dash", Team: team})
	gt.NoError(t, err).Required()
	return tok
}

func (f *fixture) waitSubscribed(t *testing.T, topic domain.Team, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for f.broadcaster.SubscriberCount(topic) != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers on %s, got %d", n, topic, f.broadcaster.SubscriberCount(topic))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServerStreamsTeamEvents(t *testing.T) {
	f := newFixture(t)

	conn, _, err := websocket.DefaultDialer.Dial(f.url+"?team=credit&token="+f.token(t, domain.TeamCredit), nil)
	gt.NoError(t, err).Required()
	defer conn.Close()
	f.waitSubscribed(t, domain.TeamCredit, 1)

	gt.NoError(t, f.broadcaster.Publish(context.Background(), events.UpdateEvent{
		ID: "e1", QueryID: "q1", AppNo: "APP1", Action: events.ActionCreated,
		Team: domain.TeamOperations, MarkedForTeam: domain.TeamSales,
	}))
	gt.NoError(t, f.broadcaster.Publish(context.Background(), events.UpdateEvent{
		ID: "e2", QueryID: "q2", AppNo: "APP2", Action: events.ActionCreated,
		Team: domain.TeamOperations, MarkedForTeam: domain.TeamCredit,
	}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got events.UpdateEvent
	gt.NoError(t, conn.ReadJSON(&got)).Required()
	gt.Value(t, got.ID).Equal("e2")
	gt.Value(t, got.AppNo).Equal("APP2")
}

func TestServerRejectsMissingToken(t *testing.T) {
	f := newFixture(t)

	_, resp, err := websocket.DefaultDialer.Dial(f.url+"?team=credit", nil)
	gt.Error(t, err)
	gt.Value(t, resp).NotNil()
	gt.Value(t, resp.StatusCode).Equal(http.StatusUnauthorized)

	_, resp, err = websocket.DefaultDialer.Dial(f.url+"?team=nobody&token="+f.token(t, domain.TeamCredit), nil)
	gt.Error(t, err)
	gt.Value(t, resp.StatusCode).Equal(http.StatusBadRequest)
}

func TestServerLimitsTeamOverride(t *testing.T) {
	f := newFixture(t)

	for _, topic := range []string{"broadcast", "sales", "approval"} {
		_, resp, err := websocket.DefaultDialer.Dial(f.url+"?team="+topic+"&token="+f.token(t, domain.TeamCredit), nil)
		gt.Error(t, err)
		gt.Value(t, resp).NotNil()
		gt.Value(t, resp.StatusCode).Equal(http.StatusForbidden)
	}
	gt.Value(t, f.broadcaster.SubscriberCount(domain.TeamSales)).Equal(0)

	conn, _, err := websocket.DefaultDialer.Dial(f.url+"?team=sales&token="+f.token(t, domain.TeamOperations), nil)
	gt.NoError(t, err).Required()
	defer conn.Close()
	f.waitSubscribed(t, domain.TeamSales, 1)
}

func TestServerReleasesSubscriptionOnClose(t *testing.T) {
	f := newFixture(t)

	push := dashboard.WebsocketPush{URL: f.url, Token: f.token(t, domain.TeamApproval)}
	received := make(chan events.UpdateEvent, 1)
	sub, err := push.Subscribe(context.Background(), domain.TeamApproval, func(e events.UpdateEvent) {
		received <- e
	})
	gt.NoError(t, err).Required()
	f.waitSubscribed(t, domain.TeamApproval, 1)

	gt.NoError(t, f.broadcaster.Publish(context.Background(), events.UpdateEvent{
		ID: "e3", QueryID: "q3", Action: events.ActionPendingApproval,
		Team: domain.TeamOperations, MarkedForTeam: domain.TeamCredit, TicketID: "T001",
	}))
	select {
	case e := <-received:
		gt.Value(t, e.TicketID).Equal("T001")
	case <-time.After(2 * time.Second):
		t.Fatal("event not pushed")
	}

	sub.Close()
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not done after close")
	}
	f.waitSubscribed(t, domain.TeamApproval, 0)
}
