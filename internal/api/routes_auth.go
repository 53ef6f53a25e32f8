package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/authcore/internal/handlers"
)

type authRouteDeps struct {
	Handler     *handlers.AuthHandler
	RequireAuth gin.HandlerFunc
	RateLimit   gin.HandlerFunc
}

func registerAuthRoutes(api *gin.RouterGroup, deps authRouteDeps) {
	auth := api.Group("/auth")
	auth.Use(deps.RateLimit)
	{
		auth.POST("/register", deps.Handler.Register)
		auth.POST("/authenticate", deps.Handler.Authenticate)
		auth.POST("/refresh-token", deps.Handler.RefreshToken)
		auth.POST("/logout", deps.Handler.Logout)
		auth.POST("/logout-all", deps.Handler.LogoutAll)
		auth.GET("/sessions", deps.RequireAuth, deps.Handler.Sessions)

		auth.POST("/verify", deps.Handler.VerifyAccount)
		auth.POST("/change-email-request", deps.RequireAuth, deps.Handler.RequestEmailChange)
		auth.POST("/verify-email-change", deps.Handler.VerifyEmailChange)
		auth.POST("/change-password-request", deps.RequireAuth, deps.Handler.RequestPasswordChange)
		auth.POST("/verify-password-change", deps.Handler.VerifyPasswordChange)
		auth.POST("/reset-password-request", deps.Handler.RequestPasswordReset)
		auth.POST("/reset-password", deps.Handler.ResetPassword)
	}
}
