package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/authcore/internal/auditctx"
)

// AuditContext stores the client address and user agent on the request context so
// anonymous operations such as login are audited with their origin.
func AuditContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := auditctx.WithRequest(c.Request.Context(), c.ClientIP(), c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
