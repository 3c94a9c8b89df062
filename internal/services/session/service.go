// Package session implements first-party authentication: registration,
// password and federated login, token refresh, logout and account
// self-service.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/bobmcallan/gatekeep/internal/metrics"
	"github.com/bobmcallan/gatekeep/internal/models"
	"github.com/bobmcallan/gatekeep/internal/permission"
	"github.com/bobmcallan/gatekeep/internal/tokens"
)

// CodeEmailNotVerified is attached to login failures for unverified accounts.
const CodeEmailNotVerified = "EMAIL_NOT_VERIFIED"

var (
	errInvalidCredentials = common.Unauthorized("invalid email or password")
	errInactive           = common.Unauthorized("account is not active")
	errInvalidRefresh     = common.Unauthorized("invalid refresh token")
	errInvalidAccess      = common.Unauthorized("invalid or expired token")
)

// Service implements interfaces.SessionService
type Service struct {
	storage    interfaces.StorageManager
	codec      *tokens.Codec
	denylist   interfaces.Denylist
	mailer     interfaces.Mailer
	state      *tokens.StateSigner
	resolver   *permission.Resolver
	providers  map[models.Provider]interfaces.IdentityProvider
	metrics    *metrics.Metrics
	bcryptCost int
	logger     *common.Logger
	now        func() time.Time
}

var _ interfaces.SessionService = (*Service)(nil)

// Option configures the service
type Option func(*Service)

// WithProviders registers federated identity providers.
func WithProviders(providers ...interfaces.IdentityProvider) Option {
	return func(s *Service) {
		for _, p := range providers {
			s.providers[p.Provider()] = p
		}
	}
}

// WithMetrics records authentication events.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.bcryptCost = cost
	}
}

// NewService creates a new session service
func NewService(
	storage interfaces.StorageManager,
	codec *tokens.Codec,
	denylist interfaces.Denylist,
	mailer interfaces.Mailer,
	state *tokens.StateSigner,
	logger *common.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		storage:    storage,
		codec:      codec,
		denylist:   denylist,
		mailer:     mailer,
		state:      state,
		resolver:   permission.NewResolver(storage.RoleStore()),
		providers:  make(map[models.Provider]interfaces.IdentityProvider),
		bcryptCost: 12,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an ACTIVE, unverified user with the default role and mails
// a verification link. Mail failures are logged, not returned.
func (s *Service) Register(ctx context.Context, email, password, name string) (*models.User, error) {
	email = common.NormalizeEmail(email)
	if err := common.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := common.ValidatePassword(password); err != nil {
		return nil, err
	}
	if err := common.ValidateName(name); err != nil {
		return nil, err
	}

	if _, err := s.storage.UserStore().GetUserByEmail(ctx, email); err == nil {
		return nil, common.Conflict("email already registered")
	} else if !errors.Is(err, interfaces.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up email: %w", err)
	}

	hash, err := s.hashPassword(password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Status:       models.UserStatusActive,
		RoleIDs:      s.defaultRoleIDs(ctx),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.storage.UserStore().CreateUser(ctx, user); err != nil {
		if errors.Is(err, interfaces.ErrDuplicate) {
			return nil, common.Conflict("email already registered")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if err := s.sendVerification(ctx, user); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to send verification email")
	}

	s.metrics.AuthEvent(metrics.EventRegister, nil)
	s.logger.Info().Str("user_id", user.ID).Msg("User registered")
	return user, nil
}

// defaultRoleIDs returns the default role's ID, or none if it is not seeded.
func (s *Service) defaultRoleIDs(ctx context.Context) []string {
	role, err := s.storage.RoleStore().GetRoleByName(ctx, models.DefaultRole)
	if err != nil {
		s.logger.Warn().Err(err).Str("role", models.DefaultRole).Msg("Default role unavailable, user created without roles")
		return nil
	}
	return []string{role.ID}
}

// Login verifies credentials and opens a new session.
func (s *Service) Login(ctx context.Context, email, password, userAgent, ipAddress string) (*models.AuthResult, error) {
	result, err := s.login(ctx, email, password, userAgent, ipAddress)
	s.metrics.AuthEvent(metrics.EventLogin, err)
	return result, err
}

func (s *Service) login(ctx context.Context, email, password, userAgent, ipAddress string) (*models.AuthResult, error) {
	user, err := s.storage.UserStore().GetUserByEmail(ctx, common.NormalizeEmail(email))
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.HasPassword() {
		return nil, errInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, errInvalidCredentials
	}
	if user.Status != models.UserStatusActive {
		return nil, errInactive
	}
	if !user.EmailVerified {
		return nil, common.Unauthorized("email not verified").WithCode(CodeEmailNotVerified)
	}

	result, err := s.openSession(ctx, user, userAgent, ipAddress)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", user.ID).Msg("User logged in")
	return result, nil
}

// openSession mints a token pair for a fresh session, records the login time
// and returns the user with roles resolved.
func (s *Service) openSession(ctx context.Context, user *models.User, userAgent, ipAddress string) (*models.AuthResult, error) {
	record, pair, err := s.mintSession(user, userAgent, ipAddress)
	if err != nil {
		return nil, err
	}
	if err := s.storage.SessionStore().CreateSessionRefreshToken(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	now := s.now()
	user.LastLoginAt = &now
	user.UpdatedAt = now
	if err := s.storage.UserStore().SaveUser(ctx, user); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to record last login")
	}

	resolved, err := s.resolver.Resolve(ctx, user)
	if err != nil {
		return nil, err
	}
	return &models.AuthResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         resolved,
	}, nil
}

// mintSession signs a new token pair and builds its unsaved session record.
func (s *Service) mintSession(user *models.User, userAgent, ipAddress string) (*models.SessionRefreshToken, *models.SessionTokens, error) {
	id := uuid.NewString()
	refresh, exp, err := s.codec.SignRefresh(user.ID, id)
	if err != nil {
		return nil, nil, err
	}
	access, _, err := s.codec.SignAccess(user.ID, user.Email)
	if err != nil {
		return nil, nil, err
	}
	record := &models.SessionRefreshToken{
		ID:        id,
		UserID:    user.ID,
		Token:     tokens.Hash(refresh),
		UserAgent: userAgent,
		IPAddress: ipAddress,
		ExpiresAt: exp,
		CreatedAt: s.now(),
	}
	return record, &models.SessionTokens{AccessToken: access, RefreshToken: refresh}, nil
}

// RefreshTokens rotates a session refresh token. A consumed token can never
// be used again.
func (s *Service) RefreshTokens(ctx context.Context, refreshToken, userAgent, ipAddress string) (*models.SessionTokens, error) {
	pair, err := s.refresh(ctx, refreshToken, userAgent, ipAddress)
	s.metrics.AuthEvent(metrics.EventRefresh, err)
	return pair, err
}

func (s *Service) refresh(ctx context.Context, refreshToken, userAgent, ipAddress string) (*models.SessionTokens, error) {
	claims, err := s.codec.ParseRefresh(refreshToken)
	if err != nil {
		return nil, errInvalidRefresh
	}

	record, err := s.storage.SessionStore().GetSessionRefreshToken(ctx, claims.TokenID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, errInvalidRefresh
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if record.UserID != claims.Subject || !tokens.Equal(record.Token, tokens.Hash(refreshToken)) {
		return nil, errInvalidRefresh
	}
	if record.Revoked {
		s.metrics.AuthEvent(metrics.EventReplayRejected, errInvalidRefresh)
		s.logger.Warn().Str("user_id", record.UserID).Str("session_id", record.ID).Msg("Revoked refresh token presented")
		return nil, common.Unauthorized("refresh token has been revoked")
	}
	if record.Expired(s.now()) {
		return nil, common.Unauthorized("refresh token expired")
	}

	user, err := s.activeUser(ctx, record.UserID)
	if err != nil {
		return nil, err
	}

	next, pair, err := s.mintSession(user, userAgent, ipAddress)
	if err != nil {
		return nil, err
	}
	if err := s.storage.SessionStore().RotateSessionRefreshToken(ctx, record.ID, next); err != nil {
		if errors.Is(err, interfaces.ErrTokenRevoked) || errors.Is(err, interfaces.ErrNotFound) {
			s.metrics.AuthEvent(metrics.EventReplayRejected, errInvalidRefresh)
			return nil, errInvalidRefresh
		}
		return nil, fmt.Errorf("failed to rotate session: %w", err)
	}
	return pair, nil
}

// Logout denylists the access token for its remaining lifetime and revokes
// either the given refresh token or, when none is given, every session of the
// user.
func (s *Service) Logout(ctx context.Context, userID, accessToken, refreshToken string) error {
	err := s.logout(ctx, userID, accessToken, refreshToken)
	s.metrics.AuthEvent(metrics.EventLogout, err)
	return err
}

func (s *Service) logout(ctx context.Context, userID, accessToken, refreshToken string) error {
	if claims, err := s.codec.ParseAccess(accessToken); err == nil {
		if ttl := s.codec.Remaining(claims); ttl > 0 {
			if err := s.denylist.Add(ctx, accessToken, ttl); err != nil {
				return fmt.Errorf("failed to denylist access token: %w", err)
			}
		}
	}

	if refreshToken == "" {
		n, err := s.storage.SessionStore().RevokeUserSessionRefreshTokens(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to revoke sessions: %w", err)
		}
		s.logger.Info().Str("user_id", userID).Int("sessions", n).Msg("User logged out of all sessions")
		return nil
	}

	claims, err := s.codec.ParseRefresh(refreshToken)
	if err != nil {
		// nothing revocable; the access token is already denylisted
		return nil
	}
	record, err := s.storage.SessionStore().GetSessionRefreshToken(ctx, claims.TokenID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if record.UserID != userID {
		return nil
	}
	if err := s.storage.SessionStore().RevokeSessionRefreshToken(ctx, record.ID); err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	s.logger.Info().Str("user_id", userID).Str("session_id", record.ID).Msg("User logged out")
	return nil
}

// Authenticate resolves a session access token into a principal. Roles and
// permissions are read from the store on every call.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*common.AuthenticatedPrincipal, error) {
	denied, err := s.denylist.Contains(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to check denylist: %w", err)
	}
	if denied {
		s.metrics.AuthEvent(metrics.EventDenylistedToken, errInvalidAccess)
		return nil, common.Unauthorized("token has been revoked")
	}

	claims, err := s.codec.ParseAccess(accessToken)
	if err != nil {
		return nil, errInvalidAccess
	}

	user, err := s.activeUser(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	resolved, err := s.resolver.Resolve(ctx, user)
	if err != nil {
		return nil, err
	}
	return permission.Principal(resolved, accessToken), nil
}

// activeUser loads a user that must exist and be ACTIVE.
func (s *Service) activeUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.storage.UserStore().GetUser(ctx, userID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, common.Unauthorized("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user.Status != models.UserStatusActive {
		return nil, errInactive
	}
	return user, nil
}

func (s *Service) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
