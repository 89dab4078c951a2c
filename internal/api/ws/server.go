package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/spec-kit/loan-query-service/internal/auth"
	"github.com/spec-kit/loan-query-service/internal/domain"
	"github.com/spec-kit/loan-query-service/internal/events"
	"github.com/spec-kit/loan-query-service/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// Path is where the push endpoint is mounted.
const Path = "/ws/updates"

// Authenticator resolves a bearer token to the caller.
type Authenticator interface {
	Authenticate(token string) (domain.Actor, error)
}

// Server streams update events to dashboards over websockets.
type Server struct {
	broadcaster *events.Broadcaster
	auth        Authenticator
	logger      *zap.Logger
	metrics     *observability.Metrics
	upgrader    websocket.Upgrader
}

// NewServer creates the push endpoint.
func NewServer(broadcaster *events.Broadcaster, authenticator Authenticator, logger *zap.Logger, metrics *observability.Metrics) *Server {
	return &Server{
		broadcaster: broadcaster,
		auth:        authenticator,
		logger:      observability.Component(logger, "push"),
		metrics:     metrics,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
	}
}

// Handler returns a mux serving Path.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(Path, s)
	return mux
}

// ServeHTTP upgrades GET /ws/updates?team&token and subscribes the
// connection to the team's topic until either side closes it.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		var err error
		if token, err = auth.BearerToken(r.Header.Get("Authorization")); err != nil {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
	}
	actor, err := s.auth.Authenticate(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	team := actor.Team
	if raw := r.URL.Query().Get("team"); raw != "" {
		parsed, ok := domain.ParseTeam(raw)
		if !ok {
			http.Error(w, "invalid team", http.StatusBadRequest)
			return
		}
		if !canWatch(actor.Team, parsed) {
			http.Error(w, "team not visible to caller", http.StatusForbidden)
			return
		}
		team = parsed
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &client{conn: conn, cancel: cancel}

	unsubscribe, err := s.broadcaster.Subscribe(team, c.send)
	if err != nil {
		s.logger.Warn("push subscribe failed", zap.String("team", string(team)), zap.Error(err))
		c.closeWith(websocket.ClosePolicyViolation, err.Error())
		cancel()
		return
	}

	s.metrics.PushConnected(1)
	s.logger.Info("push client connected", zap.String("team", string(team)), zap.String("actor", actor.Name))
	defer func() {
		unsubscribe()
		cancel()
		_ = conn.Close()
		s.metrics.PushConnected(-1)
		s.logger.Info("push client disconnected", zap.String("team", string(team)), zap.String("actor", actor.Name))
	}()

	go c.pingLoop(ctx)
	c.readLoop(ctx, s.logger)
}

type client struct {
	conn   *websocket.Conn
	cancel context.CancelFunc
	mu     sync.Mutex
}

// send runs on the broadcaster's per-subscription goroutine.
func (c *client) send(ctx context.Context, e events.UpdateEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return nil
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(e); err != nil {
		c.cancel()
		return err
	}
	return nil
}

func (c *client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.mu.Unlock()
			if err != nil {
				c.cancel()
				_ = c.conn.Close()
				return
			}
		}
	}
}

// readLoop discards client frames; it only exists to process control
// frames and notice the peer going away.
func (c *client) readLoop(ctx context.Context, logger *zap.Logger) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		<-ctx.Done()
		// unblock NextReader when the writer side gave up
		_ = c.conn.SetReadDeadline(time.Now())
	}()
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && ctx.Err() == nil {
				logger.Debug("push read error", zap.Error(err))
			}
			return
		}
	}
}

func (c *client) closeWith(code int, text string) {
	c.mu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
	c.mu.Unlock()
	_ = c.conn.Close()
}

// canWatch reports whether a member of viewer may subscribe to topic.
// Operations raised every query and may watch any topic; other teams watch
// only their own.
func canWatch(viewer, topic domain.Team) bool {
	return viewer == domain.TeamOperations || viewer == topic
}
