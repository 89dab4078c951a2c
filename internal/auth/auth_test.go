package auth_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/m-mizutani/gt"

	"github.com/spec-kit/loan-query-service/internal/auth"
	"github.com/spec-kit/loan-query-service/internal/domain"
	apperrors "github.com/spec-kit/loan-query-service/pkg/util/errorutil"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := auth.NewTokenManager("secret", 5)
	token, _, err := tm.GenerateToken(domain.Actor{Name: "kiran", Team: domain.TeamApproval, Role: "manager"})
	gt.NoError(t, err).Required()

	claims, err := tm.ParseToken(token)
	gt.NoError(t, err).Required()
	gt.Value(t, claims.Actor()).Equal(domain.Actor{Name: "kiran", Team: domain.TeamApproval, Role: "manager"})

	_, err = auth.NewTokenManager("other", 5).ParseToken(token)
	gt.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	tok, err := auth.BearerToken("Bearer abc")
	gt.NoError(t, err)
	gt.Value(t, tok).Equal("abc")

	_, err = auth.BearerToken("")
	gt.Bool(t, errors.Is(err, &apperrors.DomainError{Code: apperrors.CodeUnauthorized})).True()
	_, err = auth.BearerToken("Basic abc")
	gt.Error(t, err)
}

func TestRequireTeam(t *testing.T) {
	tm := auth.NewTokenManager("secret", 5)
	mw := auth.NewAuthMiddleware(tm)

	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		de := apperrors.ToDomainError(err)
		return c.SendStatus(de.HTTPStatus)
	}})
	app.Get("/ops", mw.Handle, auth.RequireTeam(domain.TeamOperations), func(c *fiber.Ctx) error {
		actor, _ := auth.ActorFromContext(c)
		return c.SendString(actor.Name)
	})

	call := func(actor *domain.Actor) int {
		req := httptest.NewRequest(http.MethodGet, "/ops", nil)
		if actor != nil {
			token, _, err := tm.GenerateToken(*actor)
			gt.NoError(t, err).Required()
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := app.Test(req)
		gt.NoError(t, err).Required()
		return resp.StatusCode
	}

	gt.Value(t, call(nil)).Equal(http.StatusUnauthorized)
	gt.Value(t, call(&domain.Actor{Name: "arjun", Team: domain.TeamCredit})).Equal(http.StatusForbidden)
	gt.Value(t, call(&domain.Actor{Name: "meera", Team: domain.TeamOperations})).Equal(http.StatusOK)
}
