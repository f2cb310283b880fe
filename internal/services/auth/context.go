package auth

import (
	"github.com/gofiber/fiber/v2"
)

type AuthContext struct {
	Address string
	Claims  *Claims
}

func GetAuthContext(c *fiber.Ctx) *AuthContext {
	authCtx, ok := c.Locals("auth_context").(*AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}

// GetCallerAddress returns the verified party address of the request, if
// authentication ran for this route.
func GetCallerAddress(c *fiber.Ctx) (string, bool) {
	authCtx := GetAuthContext(c)
	if authCtx == nil {
		return "", false
	}
	return authCtx.Address, authCtx.Address != ""
}

func SetAuthContext(c *fiber.Ctx, authCtx *AuthContext) {
	c.Locals("auth_context", authCtx)
}
