package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// DefaultRefreshCookieName names the cookie carrying the refresh token.
const DefaultRefreshCookieName = "refresh_token"

// RefreshCookieConfig controls how the refresh token cookie is written.
type RefreshCookieConfig struct {
	Name     string
	Secure   bool
	SameSite http.SameSite
	MaxAge   time.Duration
}

func (cfg RefreshCookieConfig) withDefaults() RefreshCookieConfig {
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = DefaultRefreshCookieName
	}
	if cfg.SameSite == 0 {
		cfg.SameSite = http.SameSiteStrictMode
	}
	return cfg
}

// ParseSameSite maps a config string to an http.SameSite mode. Unknown values fall back to Strict.
func ParseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}

func (cfg RefreshCookieConfig) set(c *gin.Context, token string) {
	cfg.write(c, token, int(cfg.MaxAge.Seconds()))
}

func (cfg RefreshCookieConfig) clear(c *gin.Context) {
	cfg.write(c, "", -1)
}

func (cfg RefreshCookieConfig) write(c *gin.Context, value string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     cfg.Name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	})
}

func (cfg RefreshCookieConfig) read(c *gin.Context) string {
	value, err := c.Cookie(cfg.Name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}
