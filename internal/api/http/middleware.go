package http

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/loan-query-service/internal/api/dto"
	"github.com/spec-kit/loan-query-service/internal/observability"
	apperrors "github.com/spec-kit/loan-query-service/pkg/util/errorutil"
)

const (
	headerRequestID = "X-Request-ID"
	requestIDKey    = "request_id"
)

// RegisterMiddlewares attaches global middlewares such as error handling and logging.
func RegisterMiddlewares(app *fiber.App, logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) {
	logger = observability.Component(logger, "http")
	app.Use(requestIDMiddleware())
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
	app.Use(errorHandlingMiddleware(logger, metrics))
	app.Use(observability.RequestLogger(logger, metrics))
}

func requestIDMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals(requestIDKey, id)
		c.Set(headerRequestID, id)
		return c.Next()
	}
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		err := c.Next()
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, &apperrors.DomainError{Code: apperrors.CodeUpstreamUnavailable}) {
			return apperrors.NewUpstreamUnavailable(err)
		}
		return err
	}
}

func errorHandlingMiddleware(logger *zap.Logger, metrics *observability.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				err = apperrors.NewInternalError(nil)
			}
			if err == nil {
				return
			}
			domainErr := apperrors.ToDomainError(err)
			metrics.RecordError(c.Route().Path, c.Method(), domainErr.Code)

			requestID, _ := c.Locals(requestIDKey).(string)
			fields := []zap.Field{
				zap.String("code", domainErr.Code),
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String(requestIDKey, requestID),
			}
			if domainErr.HTTPStatus >= fiber.StatusInternalServerError {
				logger.Error("request failed", append(fields, zap.Error(domainErr))...)
			} else {
				logger.Debug("request rejected", append(fields, zap.String("reason", domainErr.Message))...)
			}

			c.Status(domainErr.HTTPStatus)
			_ = c.JSON(fiber.Map{"error": dto.ErrorBody{
				Code:    domainErr.Code,
				Message: domainErr.Message,
				Details: domainErr.Details,
			}})
			err = nil
		}()
		return c.Next()
	}
}
