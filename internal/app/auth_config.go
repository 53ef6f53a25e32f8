package app

import (
	"github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/handlers"
	"github.com/charlesng35/authcore/internal/services"
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// SessionServiceConfig converts AuthConfig into SessionService parameters.
func (c AuthConfig) SessionServiceConfig() auth.SessionConfig {
	ttl := c.Refresh.TTL
	if ttl <= 0 {
		ttl = auth.DefaultRefreshTokenTTL
	}

	return auth.SessionConfig{
		RefreshTokenTTL: ttl,
		TokenBytes:      c.Refresh.TokenBytes,
	}
}

// VerificationStoreConfig converts AuthConfig into VerificationStore parameters.
func (c AuthConfig) VerificationStoreConfig() auth.VerificationConfig {
	return auth.VerificationConfig{
		TTL:        c.Verification.TTL,
		CodeLength: c.Verification.CodeLength,
	}
}

// AuthServiceOptions converts AuthConfig into AuthService options.
func (c AuthConfig) AuthServiceOptions() []services.AuthOption {
	return []services.AuthOption{
		services.WithRevealUnknownEmail(c.PasswordReset.RevealUnknownEmail),
	}
}

// RefreshCookieConfig converts AuthConfig into the cookie settings used by the auth handler.
// The cookie lives as long as the refresh token it carries.
func (c AuthConfig) RefreshCookieConfig() handlers.RefreshCookieConfig {
	return handlers.RefreshCookieConfig{
		Name:     c.RefreshCookie.Name,
		Secure:   c.RefreshCookie.Secure,
		SameSite: handlers.ParseSameSite(c.RefreshCookie.SameSite),
		MaxAge:   c.SessionServiceConfig().RefreshTokenTTL,
	}
}
