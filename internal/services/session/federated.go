package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/bobmcallan/gatekeep/internal/metrics"
	"github.com/bobmcallan/gatekeep/internal/models"
)

func (s *Service) provider(p models.Provider) (interfaces.IdentityProvider, error) {
	idp, ok := s.providers[p]
	if !ok {
		return nil, common.BadRequestf("provider %s is not enabled", strings.ToLower(string(p)))
	}
	return idp, nil
}

// FederatedConfig describes how a client starts a federated login. A fresh
// signed state is issued on every call.
func (s *Service) FederatedConfig(p models.Provider) (*models.FederatedConfig, error) {
	idp, ok := s.providers[p]
	if !ok {
		return &models.FederatedConfig{Provider: p, Enabled: false}, nil
	}
	state, err := s.state.Issue(string(p))
	if err != nil {
		return nil, err
	}
	return &models.FederatedConfig{
		Provider:     p,
		Enabled:      true,
		ClientID:     idp.ClientID(),
		CallbackURL:  idp.CallbackURL(),
		AuthorizeURL: idp.AuthorizeURL(state),
		State:        state,
	}, nil
}

// exchange verifies state and trades the provider code for an identity.
func (s *Service) exchange(ctx context.Context, p models.Provider, code, state string) (*models.FederatedIdentity, error) {
	idp, err := s.provider(p)
	if err != nil {
		return nil, err
	}
	if code == "" {
		return nil, common.BadRequest("code is required")
	}
	if err := s.state.Verify(state, string(p)); err != nil {
		s.logger.Warn().Err(err).Str("provider", string(p)).Msg("Federated state rejected")
		return nil, common.BadRequest("invalid state")
	}
	identity, err := idp.Exchange(ctx, code)
	if err != nil {
		s.logger.Warn().Err(err).Str("provider", string(p)).Msg("Federated code exchange failed")
		return nil, common.Unauthorized("federated authentication failed")
	}
	identity.Email = common.NormalizeEmail(identity.Email)
	return identity, nil
}

// FederatedLogin signs in through a provider. A known identity signs in its
// linked user; otherwise the identity is linked to the user with the same
// email, or a new verified user is created.
func (s *Service) FederatedLogin(ctx context.Context, p models.Provider, code, state, userAgent, ipAddress string) (*models.AuthResult, error) {
	result, err := s.federatedLogin(ctx, p, code, state, userAgent, ipAddress)
	s.metrics.AuthEvent(metrics.EventFederatedLogin, err)
	return result, err
}

func (s *Service) federatedLogin(ctx context.Context, p models.Provider, code, state, userAgent, ipAddress string) (*models.AuthResult, error) {
	identity, err := s.exchange(ctx, p, code, state)
	if err != nil {
		return nil, err
	}
	user, err := s.userForIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}
	if user.Status != models.UserStatusActive {
		return nil, errInactive
	}
	result, err := s.openSession(ctx, user, userAgent, ipAddress)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", user.ID).Str("provider", string(p)).Msg("Federated login")
	return result, nil
}

func (s *Service) userForIdentity(ctx context.Context, identity *models.FederatedIdentity) (*models.User, error) {
	users := s.storage.UserStore()
	accounts := s.storage.AccountStore()

	account, err := accounts.GetAccount(ctx, identity.Provider, identity.ProviderID)
	switch {
	case err == nil:
		account.AccessToken = identity.AccessToken
		account.RefreshToken = identity.RefreshToken
		account.UpdatedAt = s.now()
		if err := accounts.SaveAccount(ctx, account); err != nil {
			s.logger.Warn().Err(err).Str("user_id", account.UserID).Msg("Failed to refresh provider tokens")
		}
		user, err := users.GetUser(ctx, account.UserID)
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, common.Unauthorized("user not found")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
		return user, nil
	case !errors.Is(err, interfaces.ErrNotFound):
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	user, err := users.GetUserByEmail(ctx, identity.Email)
	if err == nil {
		if err := accounts.SaveAccount(ctx, s.newAccount(user.ID, identity)); err != nil {
			if errors.Is(err, interfaces.ErrDuplicate) {
				return nil, common.Conflict("provider already linked")
			}
			return nil, fmt.Errorf("failed to link account: %w", err)
		}
		s.logger.Info().Str("user_id", user.ID).Str("provider", string(identity.Provider)).Msg("Federated identity linked by email")
		return user, nil
	}
	if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}

	now := s.now()
	user = &models.User{
		ID:            uuid.NewString(),
		Email:         identity.Email,
		Name:          displayName(identity),
		Avatar:        identity.Avatar,
		Status:        models.UserStatusActive,
		EmailVerified: true,
		RoleIDs:       s.defaultRoleIDs(ctx),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := accounts.CreateUserWithAccount(ctx, user, s.newAccount(user.ID, identity)); err != nil {
		if errors.Is(err, interfaces.ErrDuplicate) {
			return nil, common.Conflict("account already exists")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.metrics.AuthEvent(metrics.EventRegister, nil)
	s.logger.Info().Str("user_id", user.ID).Str("provider", string(identity.Provider)).Msg("User registered via provider")
	return user, nil
}

func (s *Service) newAccount(userID string, identity *models.FederatedIdentity) *models.OAuthAccount {
	now := s.now()
	return &models.OAuthAccount{
		ID:           uuid.NewString(),
		UserID:       userID,
		Provider:     identity.Provider,
		ProviderID:   identity.ProviderID,
		AccessToken:  identity.AccessToken,
		RefreshToken: identity.RefreshToken,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func displayName(identity *models.FederatedIdentity) string {
	name := strings.TrimSpace(identity.Name)
	if name == "" {
		name, _, _ = strings.Cut(identity.Email, "@")
	}
	if r := []rune(name); len(r) > common.MaxNameLen {
		name = string(r[:common.MaxNameLen])
	}
	return name
}

// LinkFederated attaches a provider identity to the signed-in user.
func (s *Service) LinkFederated(ctx context.Context, userID string, p models.Provider, code, state string) (*models.OAuthAccount, error) {
	identity, err := s.exchange(ctx, p, code, state)
	if err != nil {
		return nil, err
	}
	accounts := s.storage.AccountStore()

	existing, err := accounts.GetAccount(ctx, identity.Provider, identity.ProviderID)
	if err == nil && existing.UserID != userID {
		return nil, common.Conflict("identity is linked to another account")
	}
	if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if existing == nil {
		linked, err := accounts.ListAccountsByUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to list accounts: %w", err)
		}
		for _, a := range linked {
			if a.Provider == p {
				return nil, common.Conflict("provider already linked")
			}
		}
	}

	account := s.newAccount(userID, identity)
	if existing != nil {
		account.ID = existing.ID
		account.CreatedAt = existing.CreatedAt
	}
	if err := accounts.SaveAccount(ctx, account); err != nil {
		if errors.Is(err, interfaces.ErrDuplicate) {
			return nil, common.Conflict("provider already linked")
		}
		return nil, fmt.Errorf("failed to link account: %w", err)
	}
	s.logger.Info().Str("user_id", userID).Str("provider", string(p)).Msg("Federated identity linked")
	return account, nil
}

// UnlinkFederated removes a provider link unless it is the user's last way
// to sign in.
func (s *Service) UnlinkFederated(ctx context.Context, userID string, p models.Provider) error {
	user, err := s.storage.UserStore().GetUser(ctx, userID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return common.NotFound("user not found")
	}
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	linked, err := s.storage.AccountStore().ListAccountsByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}

	found := false
	for _, a := range linked {
		if a.Provider == p {
			found = true
		}
	}
	if !found {
		return common.NotFound("account not linked")
	}
	if !user.HasPassword() && len(linked) == 1 {
		return common.BadRequest("cannot unlink the only sign-in method; set a password first")
	}

	if err := s.storage.AccountStore().DeleteAccount(ctx, userID, p); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return common.NotFound("account not linked")
		}
		return fmt.Errorf("failed to unlink account: %w", err)
	}
	s.logger.Info().Str("user_id", userID).Str("provider", string(p)).Msg("Federated identity unlinked")
	return nil
}
