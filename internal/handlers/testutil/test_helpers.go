package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/api"
	iauth "github.com/charlesng35/authcore/internal/auth"
	sharedtestutil "github.com/charlesng35/authcore/internal/database/testutil"
	"github.com/charlesng35/authcore/internal/handlers"
	"github.com/charlesng35/authcore/internal/middleware"
	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/internal/monitoring"
	"github.com/charlesng35/authcore/internal/monitoring/checks"
	"github.com/charlesng35/authcore/internal/notifications"
	"github.com/charlesng35/authcore/internal/security"
	"github.com/charlesng35/authcore/internal/services"
	"github.com/charlesng35/authcore/pkg/mail"
	"github.com/charlesng35/authcore/pkg/response"
)

// CookieName is the refresh cookie name used by test environments.
const CookieName = handlers.DefaultRefreshCookieName

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T      *testing.T
	DB     *gorm.DB
	Router *gin.Engine
	JWT    *iauth.JWTService
	Auth   *services.AuthService
	Users  *services.UserService
	Mail   *mail.MockSender
}

// EnvOption customises NewEnv.
type EnvOption func(*envConfig)

type envConfig struct {
	authOpts  []services.AuthOption
	rateStore middleware.RateStore
	options   api.Options
}

// WithAuthOptions forwards options to the AuthService.
func WithAuthOptions(opts ...services.AuthOption) EnvOption {
	return func(cfg *envConfig) { cfg.authOpts = append(cfg.authOpts, opts...) }
}

// WithRateLimit enables the auth rate limiter.
func WithRateLimit(store middleware.RateStore, requests int, window time.Duration) EnvOption {
	return func(cfg *envConfig) {
		cfg.rateStore = store
		cfg.options.RateLimitRequests = requests
		cfg.options.RateLimitWindow = window
	}
}

// WithRouterOptions adjusts the router options before the router is built.
func WithRouterOptions(fn func(*api.Options)) EnvOption {
	return func(cfg *envConfig) { fn(&cfg.options) }
}

// NewEnv provisions a fresh handler test environment with migrations and seed data applied.
// Emails are delivered synchronously to a MockSender.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	cfg := envConfig{options: api.Options{
		CORS:            middleware.CORSConfig{AllowedOrigins: []string{"http://localhost:4200"}},
		RefreshCookie:   handlers.RefreshCookieConfig{Secure: true},
		HealthEnabled:   true,
		MetricsEnabled:  true,
		MetricsEndpoint: "/metrics",
	}}
	for _, opt := range opts {
		opt(&cfg)
	}

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "test-suite-super-secret-key-32-bytes!!",
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)
	sessions, err := iauth.NewSessionService(db, iauth.SessionConfig{RefreshTokenTTL: 24 * time.Hour})
	require.NoError(t, err)
	codes, err := iauth.NewVerificationStore(db, iauth.VerificationConfig{})
	require.NoError(t, err)

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)
	roles, err := services.NewRoleService(db, audit)
	require.NoError(t, err)
	users, err := services.NewUserService(db, roles, audit)
	require.NoError(t, err)

	sender := mail.NewMockSender()
	authSvc, err := services.NewAuthService(services.AuthDeps{
		DB:       db,
		Users:    users,
		Roles:    roles,
		Tokens:   jwtSvc,
		Sessions: sessions,
		Codes:    codes,
		Mailer:   notifications.NewSyncDispatcher(sender, time.Second),
		Audit:    audit,
	}, cfg.authOpts...)
	require.NoError(t, err)

	module := monitoring.NewModule(monitoring.Options{Gatherer: prometheus.NewRegistry()})
	module.Health().RegisterReadiness(checks.Database(db, time.Second))

	router, err := api.NewRouter(api.Dependencies{
		Auth:       authSvc,
		Users:      users,
		Roles:      roles,
		Audit:      audit,
		JWT:        jwtSvc,
		Monitoring: module,
		Security: security.NewAuditor(db, jwtSvc, security.Settings{
			RefreshTTL:          24 * time.Hour,
			RefreshCookieSecure: cfg.options.RefreshCookie.Secure,
		}),
		RateStore: cfg.rateStore,
	}, cfg.options)
	require.NoError(t, err)

	return &Env{
		T:      t,
		DB:     db,
		Router: router,
		JWT:    jwtSvc,
		Auth:   authSvc,
		Users:  users,
		Mail:   sender,
	}
}

// CreateUser inserts an enabled user holding the given roles (USER when none).
func (e *Env) CreateUser(email, password string, roles ...string) *models.User {
	e.T.Helper()

	user, err := e.Users.Create(context.Background(), services.CreateUserInput{
		FirstName: "Test",
		LastName:  "User",
		Email:     email,
		Password:  password,
		RoleNames: roles,
	})
	require.NoError(e.T, err)
	return user
}

// Register signs up through the API and returns the emailed activation code.
func (e *Env) Register(email, password string) string {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"firstName": "Ada",
		"lastName":  "Lovelace",
		"email":     email,
		"password":  password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())
	return e.LastCode(email)
}

// RegisterAndActivate signs up and redeems the activation code.
func (e *Env) RegisterAndActivate(email, password string) {
	e.T.Helper()

	code := e.Register(email, password)
	w := e.Request(http.MethodPost, "/api/auth/verify?code="+code, nil, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())
}

// LastCode returns the verification code of the latest email sent to address.
func (e *Env) LastCode(address string) string {
	e.T.Helper()

	email, ok := e.Mail.Last(address)
	require.True(e.T, ok, "no email sent to %s", address)
	require.NotEmpty(e.T, email.Code)
	return email.Code
}

// TokenPayload mirrors the auth response data.
type TokenPayload struct {
	Token string `json:"token"`
	Type  string `json:"type"`
}

// LoginResult bundles the access token and the refresh cookie issued by authenticate.
type LoginResult struct {
	Token  string
	Cookie *http.Cookie
}

// Login authenticates and returns the issued access token and refresh cookie.
func (e *Env) Login(email, password string) LoginResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/authenticate", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	var payload TokenPayload
	DecodeInto(e.T, DecodeResponse(e.T, w).Data, &payload)
	require.NotEmpty(e.T, payload.Token)
	require.Equal(e.T, "Bearer", payload.Type)

	cookie := RefreshCookie(w)
	require.NotNil(e.T, cookie, "refresh cookie missing")
	return LoginResult{Token: payload.Token, Cookie: cookie}
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeValidation parses a field validation failure.
func DecodeValidation(t *testing.T, w *httptest.ResponseRecorder) response.ValidationResponse {
	t.Helper()
	var resp response.ValidationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// RefreshCookie returns the refresh cookie set on the response, if any.
func RefreshCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == CookieName {
			return cookie
		}
	}
	return nil
}

// Request executes an HTTP request against the test router, applying JSON encoding, the
// bearer token and any cookies.
func (e *Env) Request(method, path string, body any, token string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	e.T.Helper()

	buf := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("User-Agent", "authcore-test")
	for _, cookie := range cookies {
		if cookie != nil {
			req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
		}
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
