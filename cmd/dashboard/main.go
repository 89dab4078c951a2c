package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/loan-query-service/internal/api/ws"
	"github.com/spec-kit/loan-query-service/internal/config"
	"github.com/spec-kit/loan-query-service/internal/dashboard"
	"github.com/spec-kit/loan-query-service/internal/domain"
	"github.com/spec-kit/loan-query-service/internal/events"
	"github.com/spec-kit/loan-query-service/internal/observability"
)

// dashboard follows one team's queries against a running service and logs
// its counters, exercising the same push-then-poll channel a UI would use.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	team, ok := domain.ParseTeam(cfg.Dashboard.Team)
	if !ok {
		logger.Fatal("invalid DASHBOARD_TEAM", zap.String("team", cfg.Dashboard.Team))
	}
	token := cfg.Dashboard.Token
	pushURL := cfg.Dashboard.PushURL
	if pushURL == "" {
		pushURL = cfg.App.PushURL(ws.Path)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poll := dashboard.HTTPPoll{BaseURL: cfg.App.BaseURL, Token: token}
	channel := dashboard.NewChannel(dashboard.Options{
		Team:          team,
		Push:          dashboard.WebsocketPush{URL: pushURL, Token: token, Logger: logger},
		Poll:          poll,
		PollInterval:  cfg.Sync.PollInterval(),
		SweepInterval: cfg.Sync.SweepInterval(),
		DedupWindow:   cfg.Sync.DedupWindow(),
		Logger:        logger,
		Refresh: func(queryID string, e events.UpdateEvent) {
			logger.Info("row refreshed",
				zap.String("query_id", queryID),
				zap.String("app_no", e.AppNo),
				zap.String("action", string(e.Action)),
				zap.String("status", string(e.Status)))
		},
	})

	seedCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	groups, err := poll.FetchQueries(seedCtx, team, cfg.Dashboard.SeedLimit)
	cancel()
	if err != nil {
		logger.Warn("initial query list unavailable", zap.Error(err))
	} else {
		channel.Seed(groups)
	}

	channel.Start(ctx)
	defer channel.Close()

	ticker := time.NewTicker(cfg.Sync.SweepInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("dashboard stopped")
			return
		case <-ticker.C:
			c := channel.Counters()
			logger.Info("dashboard counters",
				zap.String("state", string(channel.State())),
				zap.Int("total", c.Total),
				zap.Int("pending", c.Pending),
				zap.Int("waiting_approval", c.WaitingApproval),
				zap.Int("resolved", c.Resolved),
				zap.Int("urgent", c.Urgent))
		}
	}
}
