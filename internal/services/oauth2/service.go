// Package oauth2 implements the authorization server used by third-party
// applications: the authorization code grant, refresh token rotation, the
// user info endpoint, grant management and client registration.
package oauth2

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/bobmcallan/gatekeep/internal/metrics"
	"github.com/bobmcallan/gatekeep/internal/models"
	"github.com/bobmcallan/gatekeep/internal/tokens"
)

// Grant types and token lifetimes.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
	TokenTypeBearer        = "Bearer"

	CodeTTL         = 10 * time.Minute
	AccessTokenTTL  = time.Hour
	RefreshTokenTTL = 30 * 24 * time.Hour
)

var (
	errInvalidCode       = common.BadRequest("invalid authorization code")
	errCodeExpired       = common.BadRequest("authorization code expired")
	errClientMismatch    = common.BadRequest("client id mismatch")
	errInvalidSecret     = common.BadRequest("invalid client secret")
	errRedirectMismatch  = common.BadRequest("redirect uri mismatch")
	errAppDisabled       = common.BadRequest("application is disabled")
	errUnsupportedGrant  = common.BadRequest("unsupported grant type")
	errInvalidRedirect   = common.BadRequest("invalid redirect uri")
	errInvalidRefresh    = common.BadRequest("invalid refresh token")
	errRefreshExpired    = common.BadRequest("refresh token expired")
	errInvalidAccess     = common.BadRequest("invalid access token")
	errAccessExpired     = common.BadRequest("access token expired")
	errApplicationAbsent = common.NotFound("application not found")
)

// Service implements interfaces.OAuthService
type Service struct {
	storage interfaces.StorageManager
	metrics *metrics.Metrics
	logger  *common.Logger
	now     func() time.Time
}

var _ interfaces.OAuthService = (*Service)(nil)

// NewService creates a new authorization server service
func NewService(storage interfaces.StorageManager, m *metrics.Metrics, logger *common.Logger) *Service {
	return &Service{
		storage: storage,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// activeApplication loads a client by client ID and checks it may start an
// authorization for redirectURI.
func (s *Service) activeApplication(ctx context.Context, clientID, redirectURI string) (*models.Application, error) {
	app, err := s.storage.ApplicationStore().GetApplicationByClientID(ctx, clientID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, errApplicationAbsent
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load application: %w", err)
	}
	if !app.IsActive {
		return nil, errAppDisabled
	}
	if !app.AllowsRedirect(redirectURI) {
		return nil, errInvalidRedirect
	}
	return app, nil
}

// Authorize returns what a consent screen shows before the user approves.
func (s *Service) Authorize(ctx context.Context, clientID, redirectURI string) (*models.AuthorizeInfo, error) {
	app, err := s.activeApplication(ctx, clientID, redirectURI)
	if err != nil {
		return nil, err
	}
	return &models.AuthorizeInfo{
		Application: app.Summary(),
		RedirectURI: redirectURI,
		ClientID:    app.ClientID,
	}, nil
}

// CreateAuthorizationCode records the user's consent as a short-lived,
// single-use code.
func (s *Service) CreateAuthorizationCode(ctx context.Context, userID, clientID, redirectURI string) (*models.IssuedCode, error) {
	app, err := s.activeApplication(ctx, clientID, redirectURI)
	if err != nil {
		s.metrics.AuthEvent(metrics.EventCodeIssued, err)
		return nil, err
	}
	value, err := tokens.RandomHex(tokens.CodeBytes)
	if err != nil {
		return nil, err
	}
	now := s.now()
	code := &models.AuthorizationCode{
		Code:          value,
		ApplicationID: app.ID,
		UserID:        userID,
		RedirectURI:   redirectURI,
		ExpiresAt:     now.Add(CodeTTL),
		CreatedAt:     now,
	}
	if err := s.storage.OAuthStore().SaveAuthorizationCode(ctx, code); err != nil {
		return nil, fmt.Errorf("failed to save authorization code: %w", err)
	}
	s.metrics.AuthEvent(metrics.EventCodeIssued, nil)
	s.logger.Debug().Str("user_id", userID).Str("application_id", app.ID).Msg("Authorization code issued")
	return &models.IssuedCode{Code: value, Application: app}, nil
}

// ExchangeToken redeems an authorization code for a token pair. The code is
// consumed by the first successful exchange; prior refresh tokens of the
// same user and application are revoked.
func (s *Service) ExchangeToken(ctx context.Context, req models.TokenRequest) (*models.OAuthTokenResponse, error) {
	resp, err := s.exchangeToken(ctx, req)
	s.metrics.AuthEvent(metrics.EventCodeExchange, err)
	return resp, err
}

func (s *Service) exchangeToken(ctx context.Context, req models.TokenRequest) (*models.OAuthTokenResponse, error) {
	if req.GrantType != GrantAuthorizationCode {
		return nil, errUnsupportedGrant
	}
	store := s.storage.OAuthStore()

	code, err := store.GetAuthorizationCode(ctx, req.Code)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, errInvalidCode
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load authorization code: %w", err)
	}
	if code.Expired(s.now()) {
		if err := store.DeleteAuthorizationCode(ctx, code.Code); err != nil && !errors.Is(err, interfaces.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("Failed to delete expired authorization code")
		}
		return nil, errCodeExpired
	}

	app, err := s.storage.ApplicationStore().GetApplication(ctx, code.ApplicationID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, errInvalidCode
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load application: %w", err)
	}
	if app.ClientID != req.ClientID {
		return nil, errClientMismatch
	}
	if !secretMatches(app, req.ClientSecret) {
		return nil, errInvalidSecret
	}
	if code.RedirectURI != req.RedirectURI {
		return nil, errRedirectMismatch
	}
	if !app.IsActive {
		return nil, errAppDisabled
	}

	pair, err := s.newPair(app.ID, code.UserID)
	if err != nil {
		return nil, err
	}
	if err := store.ExchangeAuthorizationCode(ctx, code.Code, pair); err != nil {
		if errors.Is(err, interfaces.ErrCodeClaimed) {
			s.metrics.AuthEvent(metrics.EventReplayRejected, errInvalidCode)
			return nil, errInvalidCode
		}
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	s.logger.Info().Str("user_id", code.UserID).Str("application_id", app.ID).Msg("Authorization code exchanged")
	return tokenResponse(pair), nil
}

// RefreshToken rotates a client refresh token. Each refresh token can be
// redeemed once.
func (s *Service) RefreshToken(ctx context.Context, req models.RefreshRequest) (*models.OAuthTokenResponse, error) {
	resp, err := s.refreshToken(ctx, req)
	s.metrics.AuthEvent(metrics.EventTokenRefresh, err)
	return resp, err
}

func (s *Service) refreshToken(ctx context.Context, req models.RefreshRequest) (*models.OAuthTokenResponse, error) {
	if req.GrantType != GrantRefreshToken {
		return nil, errUnsupportedGrant
	}
	store := s.storage.OAuthStore()

	old, err := store.GetRefreshToken(ctx, req.RefreshToken)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, errInvalidRefresh
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load refresh token: %w", err)
	}
	if old.Revoked {
		s.metrics.AuthEvent(metrics.EventReplayRejected, errInvalidRefresh)
		s.logger.Warn().Str("user_id", old.UserID).Str("application_id", old.ApplicationID).Msg("Revoked client refresh token presented")
		return nil, errInvalidRefresh
	}
	if old.Expired(s.now()) {
		return nil, errRefreshExpired
	}

	app, err := s.storage.ApplicationStore().GetApplication(ctx, old.ApplicationID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, errInvalidRefresh
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load application: %w", err)
	}
	if app.ClientID != req.ClientID {
		return nil, errClientMismatch
	}
	if !secretMatches(app, req.ClientSecret) {
		return nil, errInvalidSecret
	}
	if !app.IsActive {
		return nil, errAppDisabled
	}

	pair, err := s.newPair(app.ID, old.UserID)
	if err != nil {
		return nil, err
	}
	if err := store.RotateOAuthRefreshToken(ctx, old.Token, pair); err != nil {
		if errors.Is(err, interfaces.ErrTokenRevoked) || errors.Is(err, interfaces.ErrNotFound) {
			s.metrics.AuthEvent(metrics.EventReplayRejected, errInvalidRefresh)
			return nil, errInvalidRefresh
		}
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	return tokenResponse(pair), nil
}

// GetUserByAccessToken resolves a client access token to the user and the
// application it was issued to. Expired tokens are deleted on sight.
func (s *Service) GetUserByAccessToken(ctx context.Context, accessToken string) (*models.UserInfo, error) {
	if accessToken == "" {
		return nil, errInvalidAccess
	}
	store := s.storage.OAuthStore()
	token, err := store.GetAccessToken(ctx, accessToken)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, errInvalidAccess
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load access token: %w", err)
	}
	if token.Expired(s.now()) {
		if err := store.DeleteAccessToken(ctx, accessToken); err != nil && !errors.Is(err, interfaces.ErrNotFound) {
			s.logger.Warn().Err(err).Msg("Failed to delete expired access token")
		}
		return nil, errAccessExpired
	}

	user, err := s.storage.UserStore().GetUser(ctx, token.UserID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, errInvalidAccess
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	app, err := s.storage.ApplicationStore().GetApplication(ctx, token.ApplicationID)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, errInvalidAccess
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load application: %w", err)
	}

	summary := app.Summary()
	summary.Homepage = ""
	return &models.UserInfo{
		User: models.UserInfoUser{
			ID:            user.ID,
			Email:         user.Email,
			Name:          user.Name,
			Avatar:        user.Avatar,
			EmailVerified: user.EmailVerified,
		},
		Application: summary,
	}, nil
}

// RevokeGrant withdraws a user's authorization of an application together
// with every token issued under it.
func (s *Service) RevokeGrant(ctx context.Context, userID, applicationID string) error {
	err := s.revokeGrant(ctx, userID, applicationID)
	s.metrics.AuthEvent(metrics.EventGrantRevoked, err)
	return err
}

func (s *Service) revokeGrant(ctx context.Context, userID, applicationID string) error {
	if applicationID == "" {
		return common.BadRequest("applicationId is required")
	}
	store := s.storage.OAuthStore()
	if _, err := store.GetGrant(ctx, userID, applicationID); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return common.NotFound("grant not found")
		}
		return fmt.Errorf("failed to load grant: %w", err)
	}
	if err := store.RevokeGrant(ctx, userID, applicationID); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return common.NotFound("grant not found")
		}
		return fmt.Errorf("failed to revoke grant: %w", err)
	}
	s.logger.Info().Str("user_id", userID).Str("application_id", applicationID).Msg("Grant revoked")
	return nil
}

// ListGrants returns the applications the user has authorized. Grants whose
// application has since been deleted are skipped.
func (s *Service) ListGrants(ctx context.Context, userID string) ([]*models.GrantView, error) {
	grants, err := s.storage.OAuthStore().ListGrantsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	views := make([]*models.GrantView, 0, len(grants))
	for _, g := range grants {
		app, err := s.storage.ApplicationStore().GetApplication(ctx, g.ApplicationID)
		if errors.Is(err, interfaces.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load application: %w", err)
		}
		views = append(views, &models.GrantView{
			ApplicationID: g.ApplicationID,
			Application:   app.Summary(),
			CreatedAt:     g.CreatedAt.UTC().Format(time.RFC3339),
			UpdatedAt:     g.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return views, nil
}

// newPair mints opaque access and refresh tokens for {application, user}.
func (s *Service) newPair(applicationID, userID string) (*models.OAuthTokenPair, error) {
	access, err := tokens.RandomHex(tokens.AccessTokenBytes)
	if err != nil {
		return nil, err
	}
	refresh, err := tokens.RandomHex(tokens.RefreshTokenBytes)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return &models.OAuthTokenPair{
		Access: models.OAuthAccessToken{
			Token:         access,
			ApplicationID: applicationID,
			UserID:        userID,
			ExpiresAt:     now.Add(AccessTokenTTL),
			CreatedAt:     now,
		},
		Refresh: models.OAuthRefreshToken{
			Token:         refresh,
			ApplicationID: applicationID,
			UserID:        userID,
			ExpiresAt:     now.Add(RefreshTokenTTL),
			CreatedAt:     now,
		},
	}, nil
}

func tokenResponse(pair *models.OAuthTokenPair) *models.OAuthTokenResponse {
	return &models.OAuthTokenResponse{
		AccessToken:  pair.Access.Token,
		RefreshToken: pair.Refresh.Token,
		ExpiresIn:    int(AccessTokenTTL / time.Second),
		TokenType:    TokenTypeBearer,
	}
}

// secretMatches compares a presented client secret against the stored hash.
func secretMatches(app *models.Application, secret string) bool {
	return secret != "" && tokens.Equal(app.ClientSecret, tokens.Hash(secret))
}
