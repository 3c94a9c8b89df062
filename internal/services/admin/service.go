// Package admin implements user, role and permission administration and the
// built-in data seed.
package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/bobmcallan/gatekeep/internal/models"
	"github.com/bobmcallan/gatekeep/internal/permission"
)

var errUserNotFound = common.NotFound("user not found")

// Service implements interfaces.AdminService
type Service struct {
	storage    interfaces.StorageManager
	resolver   *permission.Resolver
	bcryptCost int
	logger     *common.Logger
	now        func() time.Time
}

var _ interfaces.AdminService = (*Service)(nil)

// NewService creates a new admin service. bcryptCost of zero selects the
// bcrypt default.
func NewService(storage interfaces.StorageManager, bcryptCost int, logger *common.Logger) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		storage:    storage,
		resolver:   permission.NewResolver(storage.RoleStore()),
		bcryptCost: bcryptCost,
		logger:     logger,
		now:        time.Now,
	}
}

// ListUsers pages through users, optionally filtered by keyword.
func (s *Service) ListUsers(ctx context.Context, opts interfaces.ListOptions) (*models.Page[*models.UserWithRoles], error) {
	opts = opts.Normalize()
	users, total, err := s.storage.UserStore().ListUsers(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	items := make([]*models.UserWithRoles, 0, len(users))
	for _, u := range users {
		resolved, err := s.resolver.Resolve(ctx, u)
		if err != nil {
			return nil, err
		}
		items = append(items, resolved)
	}
	return &models.Page[*models.UserWithRoles]{Items: items, Total: total, Page: opts.Page, PageSize: opts.PageSize}, nil
}

func (s *Service) loadUser(ctx context.Context, id string) (*models.User, error) {
	u, err := s.storage.UserStore().GetUser(ctx, id)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, errUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return u, nil
}

// GetUser returns a user with roles and permissions.
func (s *Service) GetUser(ctx context.Context, id string) (*models.UserWithRoles, error) {
	u, err := s.loadUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.resolver.Resolve(ctx, u)
}

// CreateUser creates an ACTIVE user. Without explicit roles the default role
// is assigned.
func (s *Service) CreateUser(ctx context.Context, in models.AdminUserInput) (*models.UserWithRoles, error) {
	email := common.NormalizeEmail(in.Email)
	if err := common.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := common.ValidatePassword(in.Password); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if err := common.ValidateName(name); err != nil {
		return nil, err
	}

	roleIDs := in.RoleIDs
	if len(roleIDs) == 0 {
		role, err := s.storage.RoleStore().GetRoleByName(ctx, models.DefaultRole)
		if err == nil {
			roleIDs = []string{role.ID}
		} else if !errors.Is(err, interfaces.ErrNotFound) {
			return nil, fmt.Errorf("failed to load default role: %w", err)
		}
	} else if err := s.checkRoles(ctx, roleIDs); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	verified := true
	if in.EmailVerified != nil {
		verified = *in.EmailVerified
	}
	now := s.now()
	user := &models.User{
		ID:            uuid.NewString(),
		Email:         email,
		PasswordHash:  string(hash),
		Name:          name,
		Status:        models.UserStatusActive,
		EmailVerified: verified,
		RoleIDs:       roleIDs,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.storage.UserStore().CreateUser(ctx, user); err != nil {
		if errors.Is(err, interfaces.ErrDuplicate) {
			return nil, common.Conflict("email already registered")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.logger.Info().Str("user_id", user.ID).Msg("User created by admin")
	return s.resolver.Resolve(ctx, user)
}

// UpdateUser applies a partial update. Moving a user out of ACTIVE ends all
// of their sessions.
func (s *Service) UpdateUser(ctx context.Context, id string, in models.AdminUserUpdate) (*models.UserWithRoles, error) {
	u, err := s.loadUser(ctx, id)
	if err != nil {
		return nil, err
	}
	deactivated := false
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if err := common.ValidateName(name); err != nil {
			return nil, err
		}
		u.Name = name
	}
	if in.Avatar != nil {
		u.Avatar = *in.Avatar
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, common.BadRequestf("invalid status: %s", *in.Status)
		}
		deactivated = u.Status == models.UserStatusActive && *in.Status != models.UserStatusActive
		u.Status = *in.Status
	}
	if in.EmailVerified != nil {
		u.EmailVerified = *in.EmailVerified
	}
	u.UpdatedAt = s.now()
	if err := s.storage.UserStore().SaveUser(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}
	if deactivated {
		if _, err := s.storage.SessionStore().RevokeUserSessionRefreshTokens(ctx, u.ID); err != nil {
			return nil, fmt.Errorf("failed to revoke sessions: %w", err)
		}
		s.logger.Info().Str("user_id", u.ID).Str("status", string(u.Status)).Msg("User deactivated")
	}
	return s.resolver.Resolve(ctx, u)
}

// SetUserRoles replaces the user's roles.
func (s *Service) SetUserRoles(ctx context.Context, id string, roleIDs []string) (*models.UserWithRoles, error) {
	if _, err := s.loadUser(ctx, id); err != nil {
		return nil, err
	}
	if err := s.checkRoles(ctx, roleIDs); err != nil {
		return nil, err
	}
	if err := s.storage.UserStore().SetUserRoles(ctx, id, roleIDs); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, common.BadRequest("unknown role")
		}
		return nil, fmt.Errorf("failed to set user roles: %w", err)
	}
	return s.GetUser(ctx, id)
}

// DeleteUser removes a user and everything they own. Admins cannot delete
// themselves.
func (s *Service) DeleteUser(ctx context.Context, actorID, id string) error {
	if actorID == id {
		return common.BadRequest("cannot delete your own account")
	}
	if err := s.storage.UserStore().DeleteUser(ctx, id); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return errUserNotFound
		}
		return fmt.Errorf("failed to delete user: %w", err)
	}
	s.logger.Info().Str("user_id", id).Str("actor_id", actorID).Msg("User deleted")
	return nil
}

func (s *Service) checkRoles(ctx context.Context, roleIDs []string) error {
	for _, id := range roleIDs {
		if _, err := s.storage.RoleStore().GetRole(ctx, id); err != nil {
			if errors.Is(err, interfaces.ErrNotFound) {
				return common.BadRequestf("unknown role: %s", id)
			}
			return fmt.Errorf("failed to load role: %w", err)
		}
	}
	return nil
}
