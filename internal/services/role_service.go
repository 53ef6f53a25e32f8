package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/models"
	apperrors "github.com/charlesng35/authcore/pkg/errors"
)

var (
	// ErrRoleNotFound indicates the requested role does not exist.
	ErrRoleNotFound = apperrors.New("ROLE_NOT_FOUND", "Role not found", http.StatusNotFound)
	// ErrRoleExists is returned when creating a role whose name is taken.
	ErrRoleExists = apperrors.New("ROLE_EXISTS", "Role already exists", http.StatusBadRequest)
	// ErrRoleNameTaken is returned when renaming a role onto an existing name.
	ErrRoleNameTaken = apperrors.New("ROLE_NAME_TAKEN", "Role with this name already exists", http.StatusBadRequest)
)

// RoleInput carries the mutable role attributes.
type RoleInput struct {
	Name        string
	Description string
}

// RoleService manages role definitions.
type RoleService struct {
	db           *gorm.DB
	auditService *AuditService
}

// NewRoleService constructs a RoleService.
func NewRoleService(db *gorm.DB, auditService *AuditService) (*RoleService, error) {
	if db == nil {
		return nil, errors.New("role service: db is required")
	}
	return &RoleService{db: db, auditService: auditService}, nil
}

// WithTx returns a copy of the service bound to tx.
func (s *RoleService) WithTx(tx *gorm.DB) *RoleService {
	cpy := *s
	cpy.db = tx
	return &cpy
}

// Types lists the built-in role names.
func (s *RoleService) Types() []string {
	return models.RoleTypes()
}

// Create adds a new role with a unique name.
func (s *RoleService) Create(ctx context.Context, input RoleInput) (*models.Role, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("role name is required")
	}

	exists, err := s.nameExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrRoleExists
	}

	role := &models.Role{Name: name, Description: strings.TrimSpace(input.Description)}
	if err := s.db.WithContext(ctx).Create(role).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrRoleExists
		}
		return nil, fmt.Errorf("role service: create role: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "role.create",
		Result:   "success",
		Metadata: map[string]any{"role_id": role.ID, "name": role.Name},
	})
	return role, nil
}

// Update renames or re-describes an existing role.
func (s *RoleService) Update(ctx context.Context, id string, input RoleInput) (*models.Role, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("role name is required")
	}

	role, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if name != role.Name {
		exists, err := s.nameExists(ctx, name)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrRoleNameTaken
		}
	}

	role.Name = name
	role.Description = strings.TrimSpace(input.Description)
	if err := s.db.WithContext(ctx).
		Model(role).
		Select("name", "description").
		Updates(role).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrRoleNameTaken
		}
		return nil, fmt.Errorf("role service: update role: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "role.update",
		Result:   "success",
		Metadata: map[string]any{"role_id": role.ID, "name": role.Name},
	})
	return role, nil
}

// GetByID loads a role by identifier.
func (s *RoleService) GetByID(ctx context.Context, id string) (*models.Role, error) {
	ctx = ensureContext(ctx)

	var role models.Role
	err := s.db.WithContext(ctx).Take(&role, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("role service: get role: %w", err)
	}
	return &role, nil
}

// GetOrCreateDefault returns the role called name, creating it when missing.
func (s *RoleService) GetOrCreateDefault(ctx context.Context, name string) (*models.Role, error) {
	ctx = ensureContext(ctx)

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewBadRequest("role name is required")
	}

	role := models.Role{}
	err := s.db.WithContext(ctx).
		Where(models.Role{Name: name}).
		Attrs(models.Role{Description: "Default role: " + name}).
		FirstOrCreate(&role).Error
	if err != nil {
		return nil, fmt.Errorf("role service: ensure role %s: %w", name, err)
	}
	return &role, nil
}

func (s *RoleService) nameExists(ctx context.Context, name string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Role{}).
		Where("name = ?", name).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("role service: check role name: %w", err)
	}
	return count > 0, nil
}
