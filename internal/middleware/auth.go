package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/authcore/internal/auditctx"
	iauth "github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/pkg/errors"
	"github.com/charlesng35/authcore/pkg/response"
)

const (
	CtxClaimsKey    = "authClaims"
	CtxUserIDKey    = "userID"
	CtxPrincipalKey = "authPrincipal"
)

// Auth enforces bearer JWT authentication using the supplied JWT service.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		token := strings.TrimSpace(authz[7:])
		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		principal := iauth.PrincipalFromClaims(claims)
		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, principal.UserID)
		c.Set(CtxPrincipalKey, principal)

		ctx := c.Request.Context()
		if _, ok := auditctx.FromContext(ctx); !ok {
			ctx = auditctx.WithRequest(ctx, c.ClientIP(), c.Request.UserAgent())
		}
		c.Request = c.Request.WithContext(auditctx.WithAccount(ctx, principal.UserID, principal.Email))

		c.Next()
	}
}

// PrincipalFrom returns the principal stored by Auth.
func PrincipalFrom(c *gin.Context) (iauth.Principal, bool) {
	value, ok := c.Get(CtxPrincipalKey)
	if !ok {
		return iauth.Principal{}, false
	}
	principal, ok := value.(iauth.Principal)
	return principal, ok && principal.Authenticated()
}
