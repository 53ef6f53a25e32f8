package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/authcore/internal/handlers"
	"github.com/charlesng35/authcore/internal/middleware"
	"github.com/charlesng35/authcore/internal/models"
)

func registerUserRoutes(api *gin.RouterGroup, handler *handlers.UserHandler, requireAuth gin.HandlerFunc) {
	users := api.Group("/users")
	users.Use(requireAuth)
	{
		users.POST("", middleware.RequireRole(models.RoleAdmin), handler.Create)
		users.PUT("/:id", middleware.RequireRole(models.RoleAdmin), handler.Update)
		users.GET("/:id", middleware.RequireRole(models.RoleAdmin, models.RoleUser), handler.Get)
	}
}
