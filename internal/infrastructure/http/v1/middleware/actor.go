package middleware

import (
	"github.com/gin-gonic/gin"

	"brigata/internal/core/appctx"
)

// HeaderActor identifies the acting user for audit events. Authentication
// lives at the platform gateway; the engine only records who acted.
const HeaderActor = "X-Actor"

// Actor middleware propagates the acting user into the request context.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := c.GetHeader(HeaderActor)
		if actor == "" {
			actor = "system"
		}

		ctx := appctx.WithActor(c.Request.Context(), actor)
		c.Request = c.Request.WithContext(ctx)
		c.Set("actor", actor)

		c.Next()
	}
}
