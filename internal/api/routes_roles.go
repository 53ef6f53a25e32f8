package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/authcore/internal/handlers"
	"github.com/charlesng35/authcore/internal/middleware"
	"github.com/charlesng35/authcore/internal/models"
)

func registerRoleRoutes(api *gin.RouterGroup, handler *handlers.RoleHandler, requireAuth gin.HandlerFunc) {
	roles := api.Group("/roles")
	{
		roles.GET("/types", handler.Types)
		roles.POST("", requireAuth, middleware.RequireRole(models.RoleAdmin), handler.Create)
		roles.PUT("/:id", requireAuth, middleware.RequireRole(models.RoleAdmin), handler.Update)
		roles.GET("/:id", requireAuth, middleware.RequireRole(models.RoleAdmin), handler.Get)
	}
}
