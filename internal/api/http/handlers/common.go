package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/loan-query-service/internal/auth"
	"github.com/spec-kit/loan-query-service/internal/domain"
	apperrors "github.com/spec-kit/loan-query-service/pkg/util/errorutil"
)

func actorFrom(c *fiber.Ctx) (domain.Actor, error) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return actor, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" && p != "all" {
			out = append(out, p)
		}
	}
	return out
}

func parseLimit(raw string, fallback, max int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.NewValidationError("invalid limit", map[string]any{"limit": raw})
	}
	if n == 0 || n > max {
		return max, nil
	}
	return n, nil
}

func parseTeamParam(raw string, fallback domain.Team) (domain.Team, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	team, ok := domain.ParseTeam(raw)
	if !ok {
		return "", apperrors.NewValidationError("invalid team", map[string]any{"team": raw})
	}
	return team, nil
}
