package errorutil_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/m-mizutani/gt"

	apperrors "github.com/spec-kit/loan-query-service/pkg/util/errorutil"
)

func TestDomainErrorIs(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", apperrors.NewInvalidTransition("pending", "revert"))
	gt.Bool(t, errors.Is(err, apperrors.ErrInvalidTransition)).True()
	gt.Bool(t, errors.Is(err, apperrors.ErrConflict)).False()
}

func TestToDomainError(t *testing.T) {
	t.Run("no rows maps to not found", func(t *testing.T) {
		de := apperrors.ToDomainError(pgx.ErrNoRows)
		gt.Value(t, de.Code).Equal(apperrors.CodeNotFound)
		gt.Value(t, de.HTTPStatus).Equal(http.StatusNotFound)
	})

	t.Run("unknown error maps to internal", func(t *testing.T) {
		de := apperrors.ToDomainError(errors.New("boom"))
		gt.Value(t, de.Code).Equal(apperrors.CodeInternal)
		gt.Value(t, de.HTTPStatus).Equal(http.StatusInternalServerError)
	})

	t.Run("sentinel is not mutated", func(t *testing.T) {
		de := apperrors.ToDomainError(apperrors.ErrConflict)
		gt.Value(t, de.HTTPStatus).Equal(http.StatusInternalServerError)
		gt.Value(t, apperrors.ErrConflict.HTTPStatus).Equal(0)
	})

	t.Run("fiber route errors keep their status", func(t *testing.T) {
		de := apperrors.ToDomainError(fiber.ErrNotFound)
		gt.Value(t, de.Code).Equal(apperrors.CodeNotFound)
		gt.Value(t, de.HTTPStatus).Equal(http.StatusNotFound)

		de = apperrors.ToDomainError(fiber.ErrMethodNotAllowed)
		gt.Value(t, de.Code).Equal(apperrors.CodeValidation)
	})
}
