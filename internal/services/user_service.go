package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/pkg/crypto"
	apperrors "github.com/charlesng35/authcore/pkg/errors"
)

var (
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	// ErrEmailExists is returned when an administrator reuses an email address.
	ErrEmailExists = apperrors.New("USER_EMAIL_EXISTS", "Email already exists", http.StatusBadRequest)
)

// CreateUserInput describes the fields accepted when an administrator creates a user.
type CreateUserInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	RoleNames []string
}

// UpdateUserInput enumerates mutable user attributes.
type UpdateUserInput struct {
	FirstName string
	LastName  string
	Email     string
}

// UserService manages user records on behalf of administrators.
type UserService struct {
	db           *gorm.DB
	roles        *RoleService
	auditService *AuditService
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB, roles *RoleService, auditService *AuditService) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	if roles == nil {
		return nil, errors.New("user service: role service is required")
	}
	return &UserService{
		db:           db,
		roles:        roles,
		auditService: auditService,
	}, nil
}

// WithTx returns a copy of the service bound to tx.
func (s *UserService) WithTx(tx *gorm.DB) *UserService {
	cpy := *s
	cpy.db = tx
	cpy.roles = s.roles.WithTx(tx)
	return &cpy
}

// Create provisions an enabled user. Without role names the user receives USER.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	email := normaliseEmail(input.Email)
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	if input.Password == "" {
		return nil, apperrors.NewBadRequest("password is required")
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	names := normaliseNames(input.RoleNames)
	if len(names) == 0 {
		names = []string{models.RoleUser}
	}

	user := &models.User{
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		Email:     email,
		Password:  hashed,
		Enabled:   true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scoped := s.WithTx(tx)

		exists, err := scoped.ExistsByEmail(ctx, email)
		if err != nil {
			return err
		}
		if exists {
			return ErrEmailExists
		}

		for _, name := range names {
			role, err := scoped.roles.GetOrCreateDefault(ctx, name)
			if err != nil {
				return err
			}
			user.Roles = append(user.Roles, *role)
		}

		return tx.Create(user).Error
	})
	if err != nil {
		if errors.Is(err, ErrEmailExists) || isUniqueConstraintError(err) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("user service: create user: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action: "user.create",
		Result: "success",
		Metadata: map[string]any{
			"user_id": user.ID,
			"email":   user.Email,
			"roles":   user.RoleNames(),
		},
	})

	return user, nil
}

// Update replaces the user's names and email.
func (s *UserService) Update(ctx context.Context, id string, input UpdateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	email := normaliseEmail(input.Email)
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}

	user.FirstName = strings.TrimSpace(input.FirstName)
	user.LastName = strings.TrimSpace(input.LastName)
	user.Email = email

	if err := s.db.WithContext(ctx).
		Model(user).
		Select("first_name", "last_name", "email").
		Updates(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("user service: update user: %w", err)
	}

	recordAudit(s.auditService, ctx, AuditEntry{
		Action:   "user.update",
		Result:   "success",
		Metadata: map[string]any{"user_id": user.ID, "email": user.Email},
	})

	return user, nil
}

// GetByID loads a user by identifier including roles.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Roles").
		Take(&user, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get user: %w", err)
	}
	return &user, nil
}

// GetByEmail loads a user by email address including roles.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).
		Preload("Roles").
		Take(&user, "email = ?", normaliseEmail(email)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get user by email: %w", err)
	}
	return &user, nil
}

// ExistsByEmail reports whether any user holds email.
func (s *UserService) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	ctx = ensureContext(ctx)

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("email = ?", normaliseEmail(email)).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("user service: check email: %w", err)
	}
	return count > 0, nil
}
