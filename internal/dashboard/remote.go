package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/spec-kit/loan-query-service/internal/domain"
	"github.com/spec-kit/loan-query-service/internal/events"
	"github.com/spec-kit/loan-query-service/internal/observability"
)

const (
	pongWait  = 60 * time.Second
	writeWait = 10 * time.Second
)

// WebsocketPush connects to the service's push endpoint.
type WebsocketPush struct {
	// URL is the websocket endpoint, e.g. ws://host:8081/ws/updates.
	URL    string
	Token  string
	Dialer *websocket.Dialer
	Logger *zap.Logger
}

func (p WebsocketPush) Subscribe(ctx context.Context, team domain.Team, deliver func(events.UpdateEvent)) (Subscription, error) {
	u, err := url.Parse(p.URL)
	if err != nil {
		return nil, fmt.Errorf("parse push url: %w", err)
	}
	q := u.Query()
	q.Set("team", string(team))
	u.RawQuery = q.Encode()

	header := http.Header{}
	if p.Token != "" {
		header.Set("Authorization", "Bearer "+p.Token)
	}
	dialer := p.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial push endpoint: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial push endpoint: %w", err)
	}

	sub := &remoteSubscription{
		conn:   conn,
		done:   make(chan struct{}),
		logger: observability.Component(p.Logger, "push_client"),
	}
	go sub.read(deliver)
	return sub, nil
}

type remoteSubscription struct {
	conn   *websocket.Conn
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

func (s *remoteSubscription) Done() <-chan struct{} { return s.done }

func (s *remoteSubscription) Close() {
	s.once.Do(func() {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = s.conn.Close()
	})
}

func (s *remoteSubscription) read(deliver func(events.UpdateEvent)) {
	defer close(s.done)
	defer s.Close()

	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPingHandler(func(data string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})
	for {
		var e events.UpdateEvent
		if err := s.conn.ReadJSON(&e); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("push read error", zap.Error(err))
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		deliver(e)
	}
}

// HTTPPoll reads GET /updates on the service's REST surface.
type HTTPPoll struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

func (p HTTPPoll) Poll(ctx context.Context, team domain.Team, cursor string, limit int) (PollResult, error) {
	q := url.Values{}
	q.Set("team", string(team))
	if cursor != "" {
		q.Set("since", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	code, body, err := p.get(ctx, "/updates?"+q.Encode())
	if err != nil {
		return PollResult{Cursor: cursor}, fmt.Errorf("poll updates: %w", err)
	}
	if code != fiber.StatusOK {
		return PollResult{Cursor: cursor}, fmt.Errorf("poll updates: status %d", code)
	}

	var envelope struct {
		Data PollResult `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return PollResult{Cursor: cursor}, fmt.Errorf("decode updates: %w", err)
	}
	res := envelope.Data
	if res.Cursor == "" {
		res.Cursor = cursor
	}
	return res, nil
}

// FetchQueries loads the team's current query list from GET /queries so a
// channel can be seeded before it starts.
func (p HTTPPoll) FetchQueries(ctx context.Context, team domain.Team, limit int) ([]domain.QueryGroup, error) {
	q := url.Values{}
	q.Set("team", string(team))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	code, body, err := p.get(ctx, "/queries?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("fetch queries: %w", err)
	}
	if code != fiber.StatusOK {
		return nil, fmt.Errorf("fetch queries: status %d", code)
	}

	var envelope struct {
		Data []struct {
			ID       string             `json:"id"`
			Status   domain.QueryStatus `json:"status"`
			Priority domain.Priority    `json:"priority"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode queries: %w", err)
	}
	out := make([]domain.QueryGroup, 0, len(envelope.Data))
	for _, row := range envelope.Data {
		out = append(out, domain.QueryGroup{ID: row.ID, Status: row.Status, Priority: row.Priority})
	}
	return out, nil
}

func (p HTTPPoll) get(ctx context.Context, path string) (int, []byte, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	agent := fiber.Get(strings.TrimRight(p.BaseURL, "/") + path).Timeout(timeout)
	if p.Token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+p.Token)
	}
	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return code, nil, errs[0]
	}
	return code, body, nil
}
