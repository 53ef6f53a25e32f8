package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/authcore/internal/handlers"
	"github.com/charlesng35/authcore/internal/middleware"
	"github.com/charlesng35/authcore/internal/models"
)

func registerAuditRoutes(api *gin.RouterGroup, audit *handlers.AuditHandler, sec *handlers.SecurityHandler, requireAuth gin.HandlerFunc) {
	admin := middleware.RequireRole(models.RoleAdmin)

	api.GET("/audit", requireAuth, admin, audit.List)
	if sec != nil {
		api.GET("/security/audit", requireAuth, admin, sec.Audit)
	}
}
