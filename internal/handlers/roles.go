package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/internal/services"
	"github.com/charlesng35/authcore/pkg/response"
)

type RoleHandler struct {
	service *services.RoleService
}

func NewRoleHandler(service *services.RoleService) *RoleHandler {
	return &RoleHandler{service: service}
}

type roleRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

type roleResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

func newRoleResponse(role *models.Role) roleResponse {
	out := roleResponse{ID: role.ID, Name: role.Name}
	if role.Description != "" {
		description := role.Description
		out.Description = &description
	}
	return out
}

// POST /api/roles
func (h *RoleHandler) Create(c *gin.Context) {
	var body roleRequest
	if !bindAndValidate(c, &body) {
		return
	}

	role, err := h.service.Create(requestContext(c), services.RoleInput{Name: body.Name, Description: body.Description})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, newRoleResponse(role), "Role created successfully")
}

// PUT /api/roles/:id
func (h *RoleHandler) Update(c *gin.Context) {
	var body roleRequest
	if !bindAndValidate(c, &body) {
		return
	}

	role, err := h.service.Update(requestContext(c), c.Param("id"), services.RoleInput{Name: body.Name, Description: body.Description})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, newRoleResponse(role), "Role updated successfully")
}

// GET /api/roles/:id
func (h *RoleHandler) Get(c *gin.Context) {
	role, err := h.service.GetByID(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, newRoleResponse(role), "Role retrieved successfully")
}

// GET /api/roles/types
func (h *RoleHandler) Types(c *gin.Context) {
	response.Success(c, http.StatusOK, h.service.Types(), "Role types retrieved successfully")
}
