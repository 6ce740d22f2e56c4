package serverutils

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

const KeyHeader = "X-Setup-Key"

// KeyMiddleware admits requests carrying the shared setup key, either as the
// "key" query parameter (browsers can't set websocket headers) or in the
// X-Setup-Key header.
func KeyMiddleware(key string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		given := ctx.Get(KeyHeader)
		if given == "" {
			given = ctx.Query("key")
		}
		if key == "" || given == "" || subtle.ConstantTimeCompare([]byte(given), []byte(key)) != 1 {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Missing or invalid key"))
		}
		return ctx.Next()
	}
}
