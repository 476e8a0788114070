package transport

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/agencycrm/notify-engine/internal/observability"
)

const correlationIDHeader = "X-Correlation-ID"

// CorrelationID tags every request with a correlation id, taken from the
// caller when present, so log lines across the dispatch path can be joined.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		cid := c.Get(correlationIDHeader)
		if cid == "" {
			cid = uuid.NewString()
		}

		c.SetUserContext(observability.WithCorrelationID(c.UserContext(), cid))
		c.Set(correlationIDHeader, cid)
		return c.Next()
	}
}
