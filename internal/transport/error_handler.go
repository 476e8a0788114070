package transport

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/agencycrm/notify-engine/internal/observability"
)

// ErrorHandler renders errors that escape the handlers. Client errors are
// logged at warn, everything else at error, and the response echoes the
// request correlation ID so callers can quote it in support tickets.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		requestLogger := observability.WithContextLogger(logger, c.UserContext())
		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		}
		if code >= fiber.StatusInternalServerError {
			requestLogger.Error("request error", fields...)
		} else {
			requestLogger.Warn("request error", fields...)
		}

		body := fiber.Map{"error": err.Error()}
		if correlationID, ok := observability.CorrelationIDFromContext(c.UserContext()); ok {
			body["correlationId"] = correlationID
		}

		return c.Status(code).JSON(body)
	}
}
