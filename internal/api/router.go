package api

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/handlers"
	"github.com/charlesng35/authcore/internal/middleware"
	"github.com/charlesng35/authcore/internal/monitoring"
	"github.com/charlesng35/authcore/internal/security"
	"github.com/charlesng35/authcore/internal/services"
)

// Dependencies lists the services the HTTP surface is built on.
type Dependencies struct {
	Auth       *services.AuthService
	Users      *services.UserService
	Roles      *services.RoleService
	Audit      *services.AuditService
	JWT        *iauth.JWTService
	Monitoring *monitoring.Module
	// Security enables GET /api/security/audit when set.
	Security *security.Auditor
	// RateStore backs the auth rate limiter. Nil disables rate limiting.
	RateStore middleware.RateStore
}

// Options tunes the router.
type Options struct {
	CORS          middleware.CORSConfig
	RefreshCookie handlers.RefreshCookieConfig

	RateLimitRequests int
	RateLimitWindow   time.Duration

	HealthEnabled   bool
	MetricsEnabled  bool
	MetricsEndpoint string
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(deps Dependencies, opts Options) (*gin.Engine, error) {
	switch {
	case deps.Auth == nil:
		return nil, errors.New("auth service must be provided")
	case deps.Users == nil:
		return nil, errors.New("user service must be provided")
	case deps.Roles == nil:
		return nil, errors.New("role service must be provided")
	case deps.Audit == nil:
		return nil, errors.New("audit service must be provided")
	case deps.JWT == nil:
		return nil, errors.New("jwt service must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(opts.CORS))
	r.Use(middleware.AuditContext())

	registerHealthRoutes(r, opts.HealthEnabled, deps.Monitoring)

	requireAuth := middleware.Auth(deps.JWT)
	rateLimit := middleware.RateLimit(deps.RateStore, opts.RateLimitRequests, opts.RateLimitWindow)

	api := r.Group("/api")

	registerAuthRoutes(api, authRouteDeps{
		Handler:     handlers.NewAuthHandler(deps.Auth, opts.RefreshCookie),
		RequireAuth: requireAuth,
		RateLimit:   rateLimit,
	})
	registerUserRoutes(api, handlers.NewUserHandler(deps.Users), requireAuth)
	registerRoleRoutes(api, handlers.NewRoleHandler(deps.Roles), requireAuth)
	registerAuditRoutes(api, handlers.NewAuditHandler(deps.Audit), handlers.NewSecurityHandler(deps.Security), requireAuth)
	registerMonitoringRoutes(api, handlers.NewMonitoringHandler(deps.Monitoring, handlers.MonitoringOptions{
		PrometheusEnabled: opts.MetricsEnabled,
		Endpoint:          opts.MetricsEndpoint,
	}), requireAuth)

	if opts.MetricsEnabled && deps.Monitoring != nil {
		endpoint := strings.TrimSpace(opts.MetricsEndpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(deps.Monitoring.Handler()))
	}

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
