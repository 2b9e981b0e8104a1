package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CORS opens the management API to the given origins ("*" for any). Visitor
// routes never get CORS headers: only the page served from this origin may
// drive a session.
func CORS(origins []string) fiber.Handler {
	allowAll := false
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		origin := c.Get(fiber.HeaderOrigin)
		if _, ok := allowed[origin]; origin != "" && (allowAll || ok) {
			if allowAll {
				c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
			} else {
				c.Set(fiber.HeaderAccessControlAllowOrigin, origin)
				c.Vary(fiber.HeaderOrigin)
			}
			c.Set(fiber.HeaderAccessControlAllowMethods, "GET, POST, PATCH, OPTIONS")
			c.Set(fiber.HeaderAccessControlAllowHeaders, "Origin, Content-Type, Accept, Authorization")
			c.Set(fiber.HeaderAccessControlMaxAge, "86400")
		}

		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}

		return c.Next()
	}
}
