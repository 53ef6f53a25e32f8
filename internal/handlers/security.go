package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/authcore/internal/security"
	"github.com/charlesng35/authcore/pkg/response"
)

// SecurityHandler exposes the configuration audit.
type SecurityHandler struct {
	auditor *security.Auditor
}

// NewSecurityHandler returns nil when no auditor is configured.
func NewSecurityHandler(auditor *security.Auditor) *SecurityHandler {
	if auditor == nil {
		return nil
	}
	return &SecurityHandler{auditor: auditor}
}

// GET /api/security/audit
func (h *SecurityHandler) Audit(c *gin.Context) {
	result := h.auditor.Run(requestContext(c))
	response.Success(c, http.StatusOK, result, "Security audit completed")
}
