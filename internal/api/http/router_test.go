package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/m-mizutani/gt"
	"go.uber.org/zap"

	"github.com/spec-kit/loan-query-service/internal/api/dto"
	httptransport "github.com/spec-kit/loan-query-service/internal/api/http"
	"github.com/spec-kit/loan-query-service/internal/api/http/handlers"
	"github.com/spec-kit/loan-query-service/internal/auth"
	"github.com/spec-kit/loan-query-service/internal/dashboard"
	"github.com/spec-kit/loan-query-service/internal/domain"
	"github.com/spec-kit/loan-query-service/internal/events"
	"github.com/spec-kit/loan-query-service/internal/observability"
	"github.com/spec-kit/loan-query-service/internal/repository"
	"github.com/spec-kit/loan-query-service/internal/repository/memory"
	"github.com/spec-kit/loan-query-service/internal/service"
	"github.com/spec-kit/loan-query-service/internal/ticketid"
)

type apiFixture struct {
	app    *fiber.App
	tokens *auth.TokenManager
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	queries := repository.NewQueryRepository(memory.NewQueryStore(), time.Second, logger, metrics)
	registry := service.NewApprovalRegistry(service.ApprovalRegistryConfig{
		Store: memory.NewApprovalStore(),
		IDs:   ticketid.New("T", 3),
	})
	broadcaster := events.NewBroadcaster(logger, metrics, 16)
	t.Cleanup(broadcaster.Close)
	hub := events.NewHub(broadcaster, events.NewMemoryLog(100), nil, logger, metrics)
	lifecycle := service.NewLifecycle(service.LifecycleDependencies{
		Queries:   queries,
		Approvals: registry,
		Messages:  memory.NewMessageStore(),
		Publisher: hub,
		Logger:    logger,
		Metrics:   metrics,
	})

	tokens := auth.NewTokenManager("secret", 5)
	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, time.Second)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler("loan-query-service", "test", nil, queries.DirtyCount),
		Queries:        handlers.NewQueriesHandler(lifecycle),
		QueryActions:   handlers.NewQueryActionsHandler(lifecycle),
		Approvals:      handlers.NewApprovalsHandler(lifecycle, registry),
		Updates:        handlers.NewUpdatesHandler(hub.Log()),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Metrics:        metrics,
	})
	return &apiFixture{app: app, tokens: tokens}
}

func (f *apiFixture) do(t *testing.T, actor *domain.Actor, method, path string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		gt.NoError(t, err).Required()
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		token, _, err := f.tokens.GenerateToken(*actor)
		gt.NoError(t, err).Required()
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.app.Test(req, -1)
	gt.NoError(t, err).Required()
	defer resp.Body.Close()
	if out != nil {
		gt.NoError(t, json.NewDecoder(resp.Body).Decode(out)).Required()
	}
	return resp.StatusCode
}

type envelope[T any] struct {
	Data  T             `json:"data"`
	Error dto.ErrorBody `json:"error"`
}

var (
	ops      = domain.Actor{Name: "ops.meera", Team: domain.TeamOperations}
	credit   = domain.Actor{Name: "credit.arjun", Team: domain.TeamCredit}
	approver = domain.Actor{Name: "approver.kiran", Team: domain.TeamApproval}
)

func (f *apiFixture) createQuery(t *testing.T, texts ...string) dto.QueryGroupResponse {
	t.Helper()
	var created envelope[dto.QueryGroupResponse]
	code := f.do(t, &ops, nethttp.MethodPost, "/queries", dto.CreateQueryRequest{
		ApplicationNo: "APP7",
		CustomerName:  "Asha Rao",
		QueryTexts:    texts,
		TargetTeam:    domain.TeamCredit,
		Priority:      domain.PriorityUrgent,
	}, &created)
	gt.Value(t, code).Equal(nethttp.StatusCreated).Required()
	return created.Data
}

func TestQueryApprovalFlow(t *testing.T) {
	f := newAPI(t)
	group := f.createQuery(t, "income proof missing", "address mismatch")
	gt.Array(t, group.SubQueries).Length(2)
	gt.Value(t, group.Status).Equal(domain.QueryStatusPending)

	var proposed envelope[dto.QueryActionResponse]
	code := f.do(t, &credit, nethttp.MethodPost, "/query-actions", dto.QueryActionRequest{
		Type:       dto.ActionTypeAction,
		QueryID:    group.ID,
		SubQueryID: group.SubQueries[0].ID,
		Action:     domain.ActionApprove,
		Remarks:    "documents verified",
	}, &proposed)
	gt.Value(t, code).Equal(nethttp.StatusAccepted)
	gt.Value(t, proposed.Data.TicketID).Equal("T001")
	gt.Value(t, proposed.Data.Status).Equal(domain.QueryStatusWaitingForApproval)

	var listed envelope[struct {
		Tickets []dto.ApprovalTicketResponse `json:"tickets"`
		Stats   dto.ApprovalStatsResponse    `json:"stats"`
	}]
	code = f.do(t, &approver, nethttp.MethodGet, "/approvals", nil, &listed)
	gt.Value(t, code).Equal(nethttp.StatusOK)
	gt.Array(t, listed.Data.Tickets).Length(1)
	gt.Value(t, listed.Data.Stats.PendingCount).Equal(1)
	gt.Value(t, listed.Data.Stats.UrgentCount).Equal(1)

	var decided envelope[[]dto.ApprovalDecisionResult]
	code = f.do(t, &approver, nethttp.MethodPost, "/approvals", dto.ApprovalDecisionRequest{
		Action:     "approve",
		RequestIDs: []string{"T001", "T404"},
		Comment:    "ok",
	}, &decided)
	gt.Value(t, code).Equal(nethttp.StatusOK)
	gt.Array(t, decided.Data).Length(2)
	gt.Bool(t, decided.Data[0].Success).True()
	gt.Value(t, decided.Data[0].Status).Equal(domain.QueryStatusApproved)
	gt.Bool(t, decided.Data[1].Success).False()
	gt.Value(t, decided.Data[1].Error.Code).Equal("NOT_FOUND")

	var history envelope[[]dto.MessageResponse]
	code = f.do(t, &credit, nethttp.MethodGet, "/query-actions?queryId="+group.ID+"&type=actions", nil, &history)
	gt.Value(t, code).Equal(nethttp.StatusOK)
	gt.Array(t, history.Data).Length(3)
	for i := 1; i < len(history.Data); i++ {
		if history.Data[i].Timestamp.Before(history.Data[i-1].Timestamp) {
			t.Fatalf("history not ascending at %d", i)
		}
	}

	var updates envelope[dashboard.PollResult]
	code = f.do(t, &approver, nethttp.MethodGet, "/updates?team=approval", nil, &updates)
	gt.Value(t, code).Equal(nethttp.StatusOK)
	gt.Array(t, updates.Data.Events).Length(2)
	gt.Value(t, updates.Data.Events[0].Action).Equal(events.ActionPendingApproval)
	gt.Value(t, updates.Data.Events[1].Action).Equal(events.ActionApproved)
}

func TestCreateQueryRequiresOperations(t *testing.T) {
	f := newAPI(t)

	var failed envelope[any]
	code := f.do(t, &credit, nethttp.MethodPost, "/queries", dto.CreateQueryRequest{
		ApplicationNo: "APP7",
		QueryTexts:    []string{"x"},
		TargetTeam:    domain.TeamCredit,
	}, &failed)
	gt.Value(t, code).Equal(nethttp.StatusForbidden)
	gt.Value(t, failed.Error.Code).Equal("FORBIDDEN")

	code = f.do(t, nil, nethttp.MethodGet, "/queries", nil, &failed)
	gt.Value(t, code).Equal(nethttp.StatusUnauthorized)

	code = f.do(t, &ops, nethttp.MethodPost, "/queries", dto.CreateQueryRequest{TargetTeam: domain.TeamCredit}, &failed)
	gt.Value(t, code).Equal(nethttp.StatusBadRequest)
	gt.Value(t, failed.Error.Code).Equal("VALIDATION_FAILED")
}

func TestListAndStats(t *testing.T) {
	f := newAPI(t)
	f.createQuery(t, "one")
	f.createQuery(t, "two")

	var list envelope[[]dto.QueryGroupResponse]
	code := f.do(t, &credit, nethttp.MethodGet, "/queries?status=pending", nil, &list)
	gt.Value(t, code).Equal(nethttp.StatusOK)
	gt.Array(t, list.Data).Length(2)

	code = f.do(t, &ops, nethttp.MethodGet, "/queries?team=sales", nil, &list)
	gt.Value(t, code).Equal(nethttp.StatusOK)
	gt.Array(t, list.Data).Length(0)

	var stats envelope[dto.QueryStatsResponse]
	code = f.do(t, &ops, nethttp.MethodGet, "/queries?stats=true", nil, &stats)
	gt.Value(t, code).Equal(nethttp.StatusOK)
	gt.Value(t, stats.Data.Total).Equal(2)
	gt.Value(t, stats.Data.Pending).Equal(2)
	gt.Value(t, stats.Data.Urgent).Equal(2)
}

func TestRevertAndPatch(t *testing.T) {
	f := newAPI(t)
	group := f.createQuery(t, "one")
	sub := group.SubQueries[0].ID

	var out envelope[dto.QueryActionResponse]
	code := f.do(t, &credit, nethttp.MethodPost, "/query-actions", dto.QueryActionRequest{
		Type: dto.ActionTypeAction, QueryID: group.ID, SubQueryID: sub, Action: domain.ActionDefer,
	}, &out)
	gt.Value(t, code).Equal(nethttp.StatusAccepted)

	var failed envelope[any]
	code = f.do(t, &credit, nethttp.MethodPost, "/query-actions", dto.QueryActionRequest{
		Type: dto.ActionTypeRevert, QueryID: group.ID, SubQueryID: sub,
	}, &failed)
	gt.Value(t, code).Equal(nethttp.StatusBadRequest)

	code = f.do(t, &credit, nethttp.MethodPost, "/query-actions", dto.QueryActionRequest{
		Type: dto.ActionTypeRevert, QueryID: group.ID, SubQueryID: sub, Remarks: "wrong branch",
	}, &out)
	gt.Value(t, code).Equal(nethttp.StatusOK)
	gt.Value(t, out.Data.Status).Equal(domain.QueryStatusPending)

	resolved := domain.QueryStatusResolved
	var patched envelope[dto.QueryGroupResponse]
	code = f.do(t, &credit, nethttp.MethodPatch, "/queries", dto.UpdateQueryRequest{
		QueryID:           group.ID,
		IsIndividualQuery: true,
		SubQueryID:        sub,
		Status:            &resolved,
		Remarks:           "answered",
	}, &patched)
	gt.Value(t, code).Equal(nethttp.StatusOK)
	gt.Value(t, patched.Data.Status).Equal(domain.QueryStatusResolved)
}

func TestUpdatesRejectsBadCursor(t *testing.T) {
	f := newAPI(t)
	var failed envelope[any]
	code := f.do(t, &ops, nethttp.MethodGet, "/updates?since=abc", nil, &failed)
	gt.Value(t, code).Equal(nethttp.StatusBadRequest)
	gt.Value(t, failed.Error.Code).Equal("VALIDATION_FAILED")
}

func TestUnknownRouteAndProbes(t *testing.T) {
	f := newAPI(t)

	var failed envelope[any]
	code := f.do(t, &ops, nethttp.MethodGet, "/nope", nil, &failed)
	gt.Value(t, code).Equal(nethttp.StatusNotFound)

	code = f.do(t, nil, nethttp.MethodGet, "/health/ready", nil, nil)
	gt.Value(t, code).Equal(nethttp.StatusOK)

	code = f.do(t, nil, nethttp.MethodGet, "/metrics", nil, nil)
	gt.Value(t, code).Equal(nethttp.StatusOK)
}

func TestRemoteDashboardClient(t *testing.T) {
	f := newAPI(t)
	group := f.createQuery(t, "one")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	gt.NoError(t, err).Required()
	go func() { _ = f.app.Listener(ln) }()
	t.Cleanup(func() { _ = f.app.Shutdown() })

	token, _, err := f.tokens.GenerateToken(credit)
	gt.NoError(t, err).Required()
	poll := dashboard.HTTPPoll{BaseURL: "http://" + ln.Addr().String(), Token: token, Timeout: 2 * time.Second}

	rows, err := poll.FetchQueries(context.Background(), domain.TeamCredit, 10)
	gt.NoError(t, err).Required()
	gt.Array(t, rows).Length(1)
	gt.Value(t, rows[0].ID).Equal(group.ID)
	gt.Value(t, rows[0].Status).Equal(domain.QueryStatusPending)

	page, err := poll.Poll(context.Background(), domain.TeamCredit, "", 10)
	gt.NoError(t, err).Required()
	gt.Array(t, page.Events).Length(1)
	gt.Value(t, page.Events[0].Action).Equal(events.ActionCreated)
	gt.Value(t, page.Cursor).Equal("1")

	page, err = poll.Poll(context.Background(), domain.TeamCredit, page.Cursor, 10)
	gt.NoError(t, err).Required()
	gt.Array(t, page.Events).Length(0)
	gt.Value(t, page.Cursor).Equal("1")
}
