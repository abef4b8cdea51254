// Package http is the Control API (spec.md §4.K): the JSON-over-HTTP
// surface binding components A–J to clients, on gofiber/fiber/v2.
//
// Grounded on common/net/http's middleware shape (withJWT.go's
// Protect()/Locals pattern, withCORS.go, withCorrelationID.go, errors.go's
// WithError type-switch dispatch), adapted to the control plane's own
// apperr taxonomy instead of the teacher's common.EntityNotFoundError
// family.
package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nyxlight/ledger/internal/apperr"
)

// WithError translates any domain error into the JSON error envelope and
// HTTP status named by spec.md §6.
func WithError(c *fiber.Ctx, err error) error {
	status, envelope := apperr.ToEnvelope(err)
	return c.Status(status).JSON(envelope)
}
