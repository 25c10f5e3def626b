package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-admission-api/pkg/upstream"
)

// ForwardBearer copies the caller's bearer token onto the request context so directory
// lookups against sibling services run with the caller's identity. Requests without a
// well-formed header pass through untouched.
func ForwardBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.Next()
			return
		}

		ctx := upstream.WithToken(c.Request.Context(), strings.TrimSpace(parts[1]))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
