package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	gid "github.com/google/uuid"

	"github.com/nyxlight/ledger/internal/apperr"
)

const headerCorrelationID = "X-Correlation-Id"

// WithCorrelationID stamps every request/response with a correlation id,
// grounded on common/net/http/withCorrelationID.go.
func WithCorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		cid := gid.New().String()
		c.Set(headerCorrelationID, cid)
		c.Request().Header.Add(headerCorrelationID, cid)

		return c.Next()
	}
}

// WithCORS enables permissive CORS for the single-tenant local deployment,
// grounded on common/net/http/withCORS.go.
func WithCORS() fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET, POST, OPTIONS",
		AllowHeaders:     "Accept, Content-Type, Authorization, X-Correlation-Id",
		AllowCredentials: false,
	})
}

// WithAccessControl runs the Access Control component (spec.md §4.G) before
// every route, gating the API port by remote address class. Explicit IP
// blocks and out-of-policy classes are rejected with Forbidden, matching
// spec.md §4.K's ordering: "applies G before the route".
func (a *App) WithAccessControl() fiber.Handler {
	return func(c *fiber.Ctx) error {
		remoteAddr := c.IP()

		decision := a.access.Evaluate(remoteAddr, a.apiPort)
		if !decision.Allowed {
			return WithError(c, apperr.Forbidden("pristup s ove adrese nije dopušten na ovom portu"))
		}

		return c.Next()
	}
}
