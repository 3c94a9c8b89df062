package session

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/bobmcallan/gatekeep/internal/models"
)

// GetProfile returns the signed-in user's own view of their account.
func (s *Service) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	user, err := s.storage.UserStore().GetUser(ctx, userID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, common.NotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	resolved, err := s.resolver.Resolve(ctx, user)
	if err != nil {
		return nil, err
	}
	accounts, err := s.storage.AccountStore().ListAccountsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked accounts: %w", err)
	}

	linked := make([]models.Provider, 0, len(accounts))
	for _, a := range accounts {
		linked = append(linked, a.Provider)
	}
	perms := resolved.PermissionNames()
	if perms == nil {
		perms = []string{}
	}
	return &models.Profile{
		UserWithRoles:  resolved,
		Permissions:    perms,
		HasPassword:    user.HasPassword(),
		LinkedAccounts: linked,
	}, nil
}

// ChangePassword replaces the password. Users who only sign in through a
// federated provider may set a first password without an old one.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if err := common.ValidatePassword(newPassword); err != nil {
		return err
	}
	user, err := s.storage.UserStore().GetUser(ctx, userID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return common.NotFound("user not found")
	}
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if user.HasPassword() {
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)) != nil {
			return common.Unauthorized("current password is incorrect")
		}
	}
	return s.setPassword(ctx, user, newPassword)
}
