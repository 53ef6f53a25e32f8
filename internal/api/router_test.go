package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/authcore/internal/api"
	"github.com/charlesng35/authcore/internal/handlers/testutil"
	"github.com/charlesng35/authcore/internal/middleware"
)

func TestNewRouterRequiresServices(t *testing.T) {
	_, err := api.NewRouter(api.Dependencies{}, api.Options{})
	require.Error(t, err)
}

func TestRouter_PublicAndProtectedRoutes(t *testing.T) {
	env := testutil.NewEnv(t)

	cases := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/roles/types", http.StatusOK},
		{http.MethodGet, "/api/auth/sessions", http.StatusUnauthorized},
		{http.MethodPost, "/api/auth/change-email-request", http.StatusUnauthorized},
		{http.MethodPost, "/api/auth/change-password-request", http.StatusUnauthorized},
		{http.MethodGet, "/api/users/some-id", http.StatusUnauthorized},
		{http.MethodPost, "/api/users", http.StatusUnauthorized},
		{http.MethodPut, "/api/roles/some-id", http.StatusUnauthorized},
		{http.MethodGet, "/api/monitoring/summary", http.StatusUnauthorized},
		{http.MethodGet, "/api/audit", http.StatusUnauthorized},
		{http.MethodGet, "/api/security/audit", http.StatusUnauthorized},
		// verification endpoints are public and fail on the missing code instead
		{http.MethodPost, "/api/auth/verify", http.StatusBadRequest},
		{http.MethodPost, "/api/auth/verify-email-change", http.StatusBadRequest},
		{http.MethodPost, "/api/auth/verify-password-change", http.StatusBadRequest},
	}

	for _, tc := range cases {
		w := env.Request(tc.method, tc.path, nil, "")
		require.Equal(t, tc.status, w.Code, "%s %s: %s", tc.method, tc.path, w.Body.String())
	}
}

func TestRouter_HealthDisabled(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithRouterOptions(func(opts *api.Options) {
		opts.HealthEnabled = false
		opts.MetricsEnabled = false
	}))

	w := env.Request(http.MethodGet, "/health/ready", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "Health checks are disabled", testutil.DecodeResponse(t, w).Message)

	metrics := env.Request(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusNotFound, metrics.Code)
}

func TestRouter_CustomMetricsEndpoint(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithRouterOptions(func(opts *api.Options) {
		opts.MetricsEndpoint = "/internal/metrics"
	}))

	require.Equal(t, http.StatusOK, env.Request(http.MethodGet, "/internal/metrics", nil, "").Code)
	require.Equal(t, http.StatusNotFound, env.Request(http.MethodGet, "/metrics", nil, "").Code)
}

func TestRouter_RateLimitsAuthRoutes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	env := testutil.NewEnv(t, testutil.WithRateLimit(middleware.NewMemoryRateStore(ctx), 2, time.Minute))

	body := map[string]string{"email": "nobody@example.com", "password": "whatever"}
	for i := 0; i < 2; i++ {
		w := env.Request(http.MethodPost, "/api/auth/authenticate", body, "")
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}

	limited := env.Request(http.MethodPost, "/api/auth/authenticate", body, "")
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	require.NotEmpty(t, limited.Header().Get("Retry-After"))

	// routes outside /api/auth are not throttled
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, env.Request(http.MethodGet, "/health", nil, "").Code)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	env := testutil.NewEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/refresh-token", nil)
	req.Header.Set("Origin", "http://localhost:4200")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	env.Router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "http://localhost:4200", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}
