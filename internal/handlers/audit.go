package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/internal/services"
	"github.com/charlesng35/authcore/pkg/errors"
	"github.com/charlesng35/authcore/pkg/response"
)

// AuditHandler lists persisted audit events for administrators.
type AuditHandler struct {
	svc *services.AuditService
}

func NewAuditHandler(svc *services.AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

type auditEntryResponse struct {
	ID        string         `json:"id"`
	UserID    *string        `json:"userId"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	Result    string         `json:"result"`
	IPAddress string         `json:"ipAddress"`
	UserAgent string         `json:"userAgent"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

type auditPageResponse struct {
	Items   []auditEntryResponse `json:"items"`
	Page    int                  `json:"page"`
	PerPage int                  `json:"perPage"`
	Total   int64                `json:"total"`
}

func newAuditEntryResponse(entry models.AuditLog) auditEntryResponse {
	return auditEntryResponse{
		ID:        entry.ID,
		UserID:    entry.UserID,
		Actor:     entry.Actor,
		Action:    entry.Action,
		Result:    entry.Result,
		IPAddress: entry.IPAddress,
		UserAgent: entry.UserAgent,
		Metadata:  entry.Metadata,
		CreatedAt: entry.CreatedAt,
	}
}

// GET /api/audit
func (h *AuditHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("perPage", "50"))

	filters := services.AuditFilters{
		UserID: c.Query("userId"),
		Action: c.Query("action"),
		Result: c.Query("result"),
	}
	if s := c.Query("since"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			filters.Since = &t
		}
	}
	if u := c.Query("until"); u != "" {
		if t, err := time.Parse(time.RFC3339, u); err == nil {
			filters.Until = &t
		}
	}

	opts := services.AuditListOptions{Page: page, PageSize: perPage, Filters: filters}
	logs, total, err := h.svc.List(requestContext(c), opts)
	if err != nil {
		response.Error(c, errors.ErrInternalServer)
		return
	}

	page, perPage = opts.Normalised()
	items := make([]auditEntryResponse, 0, len(logs))
	for _, entry := range logs {
		items = append(items, newAuditEntryResponse(entry))
	}

	response.Success(c, http.StatusOK, auditPageResponse{
		Items:   items,
		Page:    page,
		PerPage: perPage,
		Total:   total,
	}, "Audit log retrieved successfully")
}
