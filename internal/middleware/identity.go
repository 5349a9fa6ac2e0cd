package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const ownerIDHeader = "X-Owner-ID"

// OwnerIdentity extracts the caller's owner identity from the X-Owner-ID
// header set by the upstream authentication layer. Requests without the
// header proceed unauthenticated; handlers that need an owner reject them.
func OwnerIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ownerID := c.Get(ownerIDHeader)
		if ownerID != "" {
			if _, err := uuid.Parse(ownerID); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "malformed X-Owner-ID header")
			}
			c.Locals("owner_id", ownerID)
		}
		return c.Next()
	}
}
