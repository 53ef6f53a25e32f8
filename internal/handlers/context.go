package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/middleware"
	"github.com/charlesng35/authcore/pkg/errors"
	"github.com/charlesng35/authcore/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// requirePrincipal returns the authenticated caller or writes a 401 envelope.
func requirePrincipal(c *gin.Context) (iauth.Principal, bool) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return iauth.Principal{}, false
	}
	return principal, true
}

// deviceInfo prefers an explicit client-supplied label over the User-Agent header.
func deviceInfo(c *gin.Context, explicit string) string {
	if label := strings.TrimSpace(explicit); label != "" {
		return label
	}
	return strings.TrimSpace(c.Request.UserAgent())
}
