package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/authcore/internal/models"
)

func TestRequireRoleWithoutAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/secure", RequireRole(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	jwtSvc := newTestJWT(t)

	r := gin.New()
	r.GET("/admin", Auth(jwtSvc), RequireRole(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/either", Auth(jwtSvc), RequireRole(models.RoleAdmin, models.RoleUser), func(c *gin.Context) { c.Status(http.StatusOK) })

	userToken := issueToken(t, jwtSvc, models.RoleUser)
	adminToken := issueToken(t, jwtSvc, models.RoleAdmin)

	cases := []struct {
		path   string
		token  string
		status int
	}{
		{"/admin", userToken, http.StatusForbidden},
		{"/admin", adminToken, http.StatusOK},
		{"/either", userToken, http.StatusOK},
		{"/either", adminToken, http.StatusOK},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		req.Header.Set("Authorization", "Bearer "+tc.token)
		r.ServeHTTP(w, req)
		require.Equal(t, tc.status, w.Code, tc.path)
	}
}
