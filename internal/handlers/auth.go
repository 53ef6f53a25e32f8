package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/authcore/internal/services"
	"github.com/charlesng35/authcore/pkg/metrics"
	"github.com/charlesng35/authcore/pkg/response"
)

// AuthHandler exposes the /auth flows: registration, login, refresh rotation and the
// code-based verification workflows.
type AuthHandler struct {
	svc    *services.AuthService
	cookie RefreshCookieConfig
}

// NewAuthHandler builds an AuthHandler. A zero cookie MaxAge inherits the refresh token lifetime.
func NewAuthHandler(svc *services.AuthService, cookie RefreshCookieConfig) *AuthHandler {
	cookie = cookie.withDefaults()
	if cookie.MaxAge <= 0 && svc != nil {
		cookie.MaxAge = svc.RefreshTTL()
	}
	return &AuthHandler{svc: svc, cookie: cookie}
}

type registerRequest struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
}

type authenticateRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required"`
	DeviceInfo string `json:"deviceInfo"`
}

type changeEmailRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewEmail        string `json:"newEmail" validate:"required,email"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

type resetPasswordRequest struct {
	NewPassword string `json:"newPassword" validate:"required"`
}

type authResponse struct {
	Token string `json:"token"`
	Type  string `json:"type"`
}

func newAuthResponse(result *services.AuthResult) authResponse {
	return authResponse{Token: result.AccessToken, Type: result.TokenType}
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	_, err := h.svc.Register(requestContext(c), services.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Message(c, http.StatusOK, "User registered successfully")
}

// POST /api/auth/authenticate
func (h *AuthHandler) Authenticate(c *gin.Context) {
	var req authenticateRequest
	if !bindAndValidate(c, &req) {
		metrics.AuthAttempts.WithLabelValues("invalid").Inc()
		return
	}

	result, err := h.svc.Authenticate(requestContext(c), services.LoginInput{
		Email:        req.Email,
		Password:     req.Password,
		DeviceInfo:   deviceInfo(c, req.DeviceInfo),
		IssueRefresh: true,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	h.cookie.set(c, result.RefreshToken)
	response.Success(c, http.StatusOK, newAuthResponse(result), "Authentication successful")
}

// POST /api/auth/refresh-token
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	result, err := h.svc.Refresh(requestContext(c), h.cookie.read(c), deviceInfo(c, ""))
	if err != nil {
		response.Error(c, err)
		return
	}

	h.cookie.set(c, result.RefreshToken)
	response.Success(c, http.StatusOK, newAuthResponse(result), "Token refreshed successfully")
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.svc.Logout(requestContext(c), h.cookie.read(c)); err != nil {
		response.Error(c, err)
		return
	}

	h.cookie.clear(c)
	response.Message(c, http.StatusOK, "Logged out successfully")
}

// POST /api/auth/logout-all
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	if err := h.svc.LogoutAll(requestContext(c), h.cookie.read(c)); err != nil {
		response.Error(c, err)
		return
	}

	h.cookie.clear(c)
	response.Message(c, http.StatusOK, "Logged out from all sessions successfully")
}

// GET /api/auth/sessions
func (h *AuthHandler) Sessions(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	sessions, err := h.svc.Sessions(requestContext(c), principal)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, sessions, "Active sessions retrieved successfully")
}

// POST /api/auth/verify?code=
func (h *AuthHandler) VerifyAccount(c *gin.Context) {
	code, ok := requiredQuery(c, "code")
	if !ok {
		return
	}

	if err := h.svc.VerifyAccount(requestContext(c), code); err != nil {
		response.Error(c, err)
		return
	}

	response.Message(c, http.StatusOK, "Account verified successfully")
}

// POST /api/auth/change-email-request
func (h *AuthHandler) RequestEmailChange(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	var req changeEmailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.svc.RequestEmailChange(requestContext(c), principal, services.ChangeEmailInput{
		CurrentPassword: req.CurrentPassword,
		NewEmail:        req.NewEmail,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Message(c, http.StatusOK, "Email change verification sent to new email")
}

// POST /api/auth/verify-email-change?code=
func (h *AuthHandler) VerifyEmailChange(c *gin.Context) {
	code, ok := requiredQuery(c, "code")
	if !ok {
		return
	}

	result, err := h.svc.VerifyEmailChange(requestContext(c), code, deviceInfo(c, ""))
	if err != nil {
		response.Error(c, err)
		return
	}

	h.cookie.set(c, result.RefreshToken)
	response.Success(c, http.StatusOK, newAuthResponse(result), "Email changed successfully")
}

// POST /api/auth/change-password-request
func (h *AuthHandler) RequestPasswordChange(c *gin.Context) {
	principal, ok := requirePrincipal(c)
	if !ok {
		return
	}

	var req changePasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.svc.RequestPasswordChange(requestContext(c), principal, services.ChangePasswordInput{
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Message(c, http.StatusOK, "Password change verification sent to email")
}

// POST /api/auth/verify-password-change?code=
func (h *AuthHandler) VerifyPasswordChange(c *gin.Context) {
	code, ok := requiredQuery(c, "code")
	if !ok {
		return
	}

	if err := h.svc.VerifyPasswordChange(requestContext(c), code); err != nil {
		response.Error(c, err)
		return
	}

	response.Message(c, http.StatusOK, "Password changed successfully")
}

// POST /api/auth/reset-password-request?email=
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	email, ok := requiredQuery(c, "email")
	if !ok {
		return
	}

	if err := h.svc.RequestPasswordReset(requestContext(c), email); err != nil {
		response.Error(c, err)
		return
	}

	response.Message(c, http.StatusOK, "Password reset instructions sent to email")
}

// POST /api/auth/reset-password?token=
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	token, ok := requiredQuery(c, "token")
	if !ok {
		return
	}

	var req resetPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.svc.ResetPassword(requestContext(c), token, services.ResetPasswordInput{NewPassword: req.NewPassword}); err != nil {
		response.Error(c, err)
		return
	}

	response.Message(c, http.StatusOK, "Password reset successfully")
}
