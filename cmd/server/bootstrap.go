package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/api"
	"github.com/charlesng35/authcore/internal/app"
	"github.com/charlesng35/authcore/internal/app/maintenance"
	iauth "github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/cache"
	"github.com/charlesng35/authcore/internal/database"
	"github.com/charlesng35/authcore/internal/middleware"
	"github.com/charlesng35/authcore/internal/monitoring"
	"github.com/charlesng35/authcore/internal/monitoring/checks"
	"github.com/charlesng35/authcore/internal/notifications"
	"github.com/charlesng35/authcore/internal/security"
	"github.com/charlesng35/authcore/internal/services"
	"github.com/charlesng35/authcore/pkg/logger"
	"github.com/charlesng35/authcore/pkg/mail"
)

const (
	rateStoreMemory   = "memory"
	rateStoreDatabase = "database"
	rateStoreRedis    = "redis"

	probeTimeout = 3 * time.Second
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB            *gorm.DB
	Redis         *cache.RedisStore
	Notifications *notifications.Service
	Monitoring    *monitoring.Module
	Cleaner       *maintenance.Cleaner
	RateStore     middleware.RateStore
	Router        *gin.Engine

	cancel context.CancelFunc
}

// bootstrapRuntime initialises databases, caches, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	runCtx, cancel := context.WithCancel(ctx)
	stack := &runtimeStack{cancel: cancel}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mode
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisStore(runCtx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed rate limiting", zap.Error(err))
			stack.Redis = nil
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}
	sessionSvc, err := iauth.NewSessionService(stack.DB, cfg.Auth.SessionServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}
	codes, err := iauth.NewVerificationStore(stack.DB, cfg.Auth.VerificationStoreConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise verification store: %w", err)
	}

	auditSvc, err := services.NewAuditService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}
	roleSvc, err := services.NewRoleService(stack.DB, auditSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise role service: %w", err)
	}
	userSvc, err := services.NewUserService(stack.DB, roleSvc, auditSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise user service: %w", err)
	}

	sender, err := mail.NewSender(cfg.Email.MailConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise mail sender: %w", err)
	}
	stack.Notifications, err = notifications.NewService(cfg.Email.NotificationConfig(), sender)
	if err != nil {
		return nil, fmt.Errorf("initialise email queue: %w", err)
	}
	stack.Notifications.Start(runCtx)
	log.Info("email delivery configured",
		zap.String("provider", cfg.Email.Provider),
		zap.String("queue", cfg.Email.Queue.Driver),
	)

	authSvc, err := services.NewAuthService(services.AuthDeps{
		DB:       stack.DB,
		Users:    userSvc,
		Roles:    roleSvc,
		Tokens:   jwtSvc,
		Sessions: sessionSvc,
		Codes:    codes,
		Mailer:   stack.Notifications,
		Audit:    auditSvc,
	}, cfg.Auth.AuthServiceOptions()...)
	if err != nil {
		return nil, fmt.Errorf("initialise auth service: %w", err)
	}

	dbStore := cache.NewDatabaseStore(stack.DB)
	stack.Monitoring = initialiseMonitoring(cfg, stack, sender)

	cleanerOpts := []maintenance.Option{maintenance.WithGaugeSync(sessionSvc, maintenance.DefaultGaugeInterval)}
	if cfg.Maintenance.Enabled {
		cleanerOpts = append(cleanerOpts,
			maintenance.WithSchedule(cfg.Maintenance.Schedule),
			maintenance.WithSessions(sessionSvc),
			maintenance.WithVerification(codes),
			maintenance.WithCache(dbStore),
			maintenance.WithAudit(auditSvc, cfg.Maintenance.AuditRetention),
		)
	}
	stack.Cleaner = maintenance.NewCleaner(cleanerOpts...)
	// Seed the session gauge from stored rows before the first scheduled recount.
	stack.Cleaner.SyncGauges(runCtx)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.RateStore = selectRateStore(runCtx, cfg, stack.Redis, dbStore, log)

	stack.Router, err = api.NewRouter(api.Dependencies{
		Auth:       authSvc,
		Users:      userSvc,
		Roles:      roleSvc,
		Audit:      auditSvc,
		JWT:        jwtSvc,
		Monitoring: stack.Monitoring,
		Security: security.NewAuditor(stack.DB, jwtSvc, security.Settings{
			RefreshTTL:          cfg.Auth.Refresh.TTL,
			RefreshCookieSecure: cfg.Auth.RefreshCookie.Secure,
			RevealUnknownEmail:  cfg.Auth.PasswordReset.RevealUnknownEmail,
		}),
		RateStore: stack.RateStore,
	}, api.Options{
		CORS:              middleware.CORSConfig{AllowedOrigins: cfg.Server.CORS.AllowedOrigins},
		RefreshCookie:     cfg.Auth.RefreshCookieConfig(),
		RateLimitRequests: cfg.RateLimit.Requests,
		RateLimitWindow:   cfg.RateLimit.Window,
		HealthEnabled:     cfg.Monitoring.Health.Enabled,
		MetricsEnabled:    cfg.Monitoring.Prometheus.Enabled,
		MetricsEndpoint:   cfg.Monitoring.Prometheus.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// initialiseMonitoring registers the dependency probes and installs the module used by
// the maintenance job statistics.
func initialiseMonitoring(cfg *app.Config, stack *runtimeStack, sender mail.Sender) *monitoring.Module {
	module := monitoring.NewModule(monitoring.Options{})
	monitoring.SetModule(module)

	health := module.Health()
	health.RegisterReadiness(checks.Database(stack.DB, probeTimeout))

	var pinger checks.RedisPinger
	if stack.Redis != nil {
		pinger = stack.Redis
	}
	health.RegisterReadiness(checks.Redis(pinger, cfg.Cache.Redis.Enabled, probeTimeout))

	var breaker checks.BreakerReporter
	if smtp, ok := sender.(*mail.SMTPSender); ok {
		breaker = smtp
	}
	health.RegisterReadiness(checks.Mail(breaker))

	if cfg.Maintenance.Enabled {
		health.RegisterReadiness(checks.Maintenance(module, 0))
	}
	return module
}

// selectRateStore picks the counter backend for the auth rate limiter. Redis falls back to
// the database store when it could not be reached at startup.
func selectRateStore(ctx context.Context, cfg *app.Config, redis *cache.RedisStore, dbStore *cache.DatabaseStore, log *zap.Logger) middleware.RateStore {
	if !cfg.RateLimit.Enabled {
		log.Info("rate limiting disabled")
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(cfg.RateLimit.Store)) {
	case rateStoreRedis:
		if redis != nil {
			return middleware.NewCacheRateStore(redis)
		}
		log.Warn("redis rate store requested but redis is unavailable; using database")
		return middleware.NewCacheRateStore(dbStore)
	case rateStoreDatabase:
		return middleware.NewCacheRateStore(dbStore)
	case "", rateStoreMemory:
		return middleware.NewMemoryRateStore(ctx)
	default:
		log.Warn("unknown rate limit store; using memory", zap.String("store", cfg.RateLimit.Store))
		return middleware.NewMemoryRateStore(ctx)
	}
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		<-s.Cleaner.Stop().Done()
	}

	var errs error
	if s.Notifications != nil {
		errs = multierr.Append(errs, s.Notifications.Close(ctx))
	}
	if s.Redis != nil {
		errs = multierr.Append(errs, s.Redis.Close())
	}
	if s.cancel != nil {
		s.cancel()
	}
	if errs != nil {
		log.Warn("runtime shutdown", zap.Error(errs))
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	var auth app.DBAuthConfig
	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
		return dbCfg
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		auth = cfg.Database.Postgres
	case "mysql", "mariadb":
		dbCfg.Driver = "mysql"
		auth = cfg.Database.MySQL
	default:
		// Leave driver as-is to surface unsupported driver error during open.
		return dbCfg
	}

	dbCfg.Host = strings.TrimSpace(auth.Host)
	dbCfg.Port = auth.Port
	dbCfg.Name = strings.TrimSpace(auth.Database)
	dbCfg.User = strings.TrimSpace(auth.Username)
	dbCfg.Password = auth.Password
	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
