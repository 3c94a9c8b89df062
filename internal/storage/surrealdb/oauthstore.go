package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/bobmcallan/gatekeep/internal/models"
	"github.com/bobmcallan/gatekeep/internal/tokens"
	"github.com/surrealdb/surrealdb.go"
)

// oauthCodeRow is the DB-level representation of an authorization code.
type oauthCodeRow struct {
	Code          string    `json:"code"`
	ApplicationID string    `json:"application_id"`
	UserID        string    `json:"user_id"`
	RedirectURI   string    `json:"redirect_uri"`
	ExpiresAt     time.Time `json:"expires_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// oauthAccessRow is the DB-level representation of a client access token.
// Only the token hash is persisted.
type oauthAccessRow struct {
	TokenHash     string    `json:"token_hash"`
	ApplicationID string    `json:"application_id"`
	UserID        string    `json:"user_id"`
	ExpiresAt     time.Time `json:"expires_at"`
	CreatedAt     time.Time `json:"created_at"`
}

// oauthRefreshRow is the DB-level representation of a client refresh token.
type oauthRefreshRow struct {
	TokenHash     string    `json:"token_hash"`
	ApplicationID string    `json:"application_id"`
	UserID        string    `json:"user_id"`
	ExpiresAt     time.Time `json:"expires_at"`
	Revoked       bool      `json:"revoked"`
	CreatedAt     time.Time `json:"created_at"`
}

type grantRow struct {
	UserID        string    `json:"user_id"`
	ApplicationID string    `json:"application_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func grantID(userID, applicationID string) string {
	return userID + "_" + applicationID
}

// OAuthStore implements interfaces.OAuthStore using SurrealDB.
type OAuthStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewOAuthStore creates a new OAuthStore.
func NewOAuthStore(db *surrealdb.DB, logger *common.Logger) *OAuthStore {
	return &OAuthStore{db: db, logger: logger}
}

// --- Authorization codes ---

func (s *OAuthStore) SaveAuthorizationCode(ctx context.Context, code *models.AuthorizationCode) error {
	vars := map[string]any{
		"rid": recordID(tableCode, code.Code),
		"data": oauthCodeRow{
			Code:          code.Code,
			ApplicationID: code.ApplicationID,
			UserID:        code.UserID,
			RedirectURI:   code.RedirectURI,
			ExpiresAt:     code.ExpiresAt,
			CreatedAt:     code.CreatedAt,
		},
	}
	if err := exec(ctx, s.db, "CREATE $rid CONTENT $data", vars); err != nil {
		return fmt.Errorf("failed to save authorization code: %w", err)
	}
	return nil
}

func (s *OAuthStore) GetAuthorizationCode(ctx context.Context, code string) (*models.AuthorizationCode, error) {
	sql := "SELECT code, application_id, user_id, redirect_uri, expires_at, created_at FROM $rid"
	row, err := queryOne[oauthCodeRow](ctx, s.db, sql, map[string]any{"rid": recordID(tableCode, code)})
	if err != nil {
		return nil, err
	}
	return &models.AuthorizationCode{
		Code:          row.Code,
		ApplicationID: row.ApplicationID,
		UserID:        row.UserID,
		RedirectURI:   row.RedirectURI,
		ExpiresAt:     row.ExpiresAt,
		CreatedAt:     row.CreatedAt,
	}, nil
}

func (s *OAuthStore) DeleteAuthorizationCode(ctx context.Context, code string) error {
	if err := exec(ctx, s.db, "DELETE $rid", map[string]any{"rid": recordID(tableCode, code)}); err != nil {
		return fmt.Errorf("failed to delete authorization code: %w", err)
	}
	return nil
}

// pairVars binds the record ids and contents of a new token pair.
func pairVars(pair *models.OAuthTokenPair, vars map[string]any) map[string]any {
	accessHash := tokens.Hash(pair.Access.Token)
	refreshHash := tokens.Hash(pair.Refresh.Token)
	vars["access_rid"] = recordID(tableAccessToken, accessHash)
	vars["access"] = oauthAccessRow{
		TokenHash:     accessHash,
		ApplicationID: pair.Access.ApplicationID,
		UserID:        pair.Access.UserID,
		ExpiresAt:     pair.Access.ExpiresAt,
		CreatedAt:     pair.Access.CreatedAt,
	}
	vars["refresh_rid"] = recordID(tableRefreshToken, refreshHash)
	vars["refresh"] = oauthRefreshRow{
		TokenHash:     refreshHash,
		ApplicationID: pair.Refresh.ApplicationID,
		UserID:        pair.Refresh.UserID,
		ExpiresAt:     pair.Refresh.ExpiresAt,
		Revoked:       false,
		CreatedAt:     pair.Refresh.CreatedAt,
	}
	return vars
}

func (s *OAuthStore) ExchangeAuthorizationCode(ctx context.Context, code string, pair *models.OAuthTokenPair) error {
	sql := `BEGIN TRANSACTION;
		LET $claimed = (DELETE $code_rid RETURN BEFORE);
		IF array::len($claimed) = 0 { THROW "` + throwCodeClaimed + `" };
		UPDATE oauth_refresh_token SET revoked = true
			WHERE application_id = $app_id AND user_id = $user_id AND revoked = false;
		CREATE $access_rid CONTENT $access;
		CREATE $refresh_rid CONTENT $refresh;
		UPSERT $grant_rid SET user_id = $user_id, application_id = $app_id,
			created_at = created_at ?? $now, updated_at = $now;
		COMMIT TRANSACTION;`
	appID, userID := pair.Refresh.ApplicationID, pair.Refresh.UserID
	vars := pairVars(pair, map[string]any{
		"code_rid":  recordID(tableCode, code),
		"grant_rid": recordID(tableGrant, grantID(userID, appID)),
		"app_id":    appID,
		"user_id":   userID,
		"now":       pair.Access.CreatedAt,
	})
	if err := exec(ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", conflictAs(err, interfaces.ErrCodeClaimed))
	}
	return nil
}

// --- Tokens ---

func (s *OAuthStore) GetAccessToken(ctx context.Context, token string) (*models.OAuthAccessToken, error) {
	sql := "SELECT token_hash, application_id, user_id, expires_at, created_at FROM $rid"
	row, err := queryOne[oauthAccessRow](ctx, s.db, sql, map[string]any{"rid": recordID(tableAccessToken, tokens.Hash(token))})
	if err != nil {
		return nil, err
	}
	return &models.OAuthAccessToken{
		Token:         token,
		ApplicationID: row.ApplicationID,
		UserID:        row.UserID,
		ExpiresAt:     row.ExpiresAt,
		CreatedAt:     row.CreatedAt,
	}, nil
}

func (s *OAuthStore) DeleteAccessToken(ctx context.Context, token string) error {
	vars := map[string]any{"rid": recordID(tableAccessToken, tokens.Hash(token))}
	if err := exec(ctx, s.db, "DELETE $rid", vars); err != nil {
		return fmt.Errorf("failed to delete access token: %w", err)
	}
	return nil
}

func (s *OAuthStore) GetRefreshToken(ctx context.Context, token string) (*models.OAuthRefreshToken, error) {
	sql := "SELECT token_hash, application_id, user_id, expires_at, revoked, created_at FROM $rid"
	row, err := queryOne[oauthRefreshRow](ctx, s.db, sql, map[string]any{"rid": recordID(tableRefreshToken, tokens.Hash(token))})
	if err != nil {
		return nil, err
	}
	return &models.OAuthRefreshToken{
		Token:         token,
		ApplicationID: row.ApplicationID,
		UserID:        row.UserID,
		ExpiresAt:     row.ExpiresAt,
		Revoked:       row.Revoked,
		CreatedAt:     row.CreatedAt,
	}, nil
}

func (s *OAuthStore) RotateOAuthRefreshToken(ctx context.Context, oldToken string, pair *models.OAuthTokenPair) error {
	sql := `BEGIN TRANSACTION;
		LET $old = (SELECT revoked FROM $old_rid);
		IF array::len($old) = 0 { THROW "` + throwNotFound + `" };
		LET $won = (UPDATE $old_rid SET revoked = true WHERE revoked = false RETURN AFTER);
		IF array::len($won) = 0 { THROW "` + throwRevoked + `" };
		CREATE $access_rid CONTENT $access;
		CREATE $refresh_rid CONTENT $refresh;
		COMMIT TRANSACTION;`
	vars := pairVars(pair, map[string]any{
		"old_rid": recordID(tableRefreshToken, tokens.Hash(oldToken)),
	})
	if err := exec(ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to rotate refresh token: %w", conflictAs(err, interfaces.ErrTokenRevoked))
	}
	return nil
}

func (s *OAuthStore) CountActiveRefreshTokens(ctx context.Context, applicationID, userID string) (int, error) {
	sql := `SELECT count() AS count FROM oauth_refresh_token
		WHERE application_id = $app_id AND user_id = $user_id AND revoked = false GROUP ALL`
	n, err := queryCount(ctx, s.db, sql, map[string]any{"app_id": applicationID, "user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("failed to count refresh tokens: %w", err)
	}
	return n, nil
}

// --- Grants ---

func (s *OAuthStore) GetGrant(ctx context.Context, userID, applicationID string) (*models.UserApplicationGrant, error) {
	sql := "SELECT user_id, application_id, created_at, updated_at FROM $rid"
	row, err := queryOne[grantRow](ctx, s.db, sql, map[string]any{"rid": recordID(tableGrant, grantID(userID, applicationID))})
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *OAuthStore) ListGrantsByUser(ctx context.Context, userID string) ([]*models.UserApplicationGrant, error) {
	sql := "SELECT user_id, application_id, created_at, updated_at FROM user_application_grant WHERE user_id = $user_id ORDER BY updated_at DESC"
	rows, err := queryRows[grantRow](ctx, s.db, sql, map[string]any{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	grants := make([]*models.UserApplicationGrant, 0, len(rows))
	for i := range rows {
		grants = append(grants, rows[i].toModel())
	}
	return grants, nil
}

func (s *OAuthStore) RevokeGrant(ctx context.Context, userID, applicationID string) error {
	sql := `BEGIN TRANSACTION;
		DELETE $grant_rid;
		DELETE oauth_access_token WHERE application_id = $app_id AND user_id = $user_id;
		UPDATE oauth_refresh_token SET revoked = true
			WHERE application_id = $app_id AND user_id = $user_id AND revoked = false;
		COMMIT TRANSACTION;`
	vars := map[string]any{
		"grant_rid": recordID(tableGrant, grantID(userID, applicationID)),
		"app_id":    applicationID,
		"user_id":   userID,
	}
	if err := exec(ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to revoke grant: %w", err)
	}
	return nil
}

func (r *grantRow) toModel() *models.UserApplicationGrant {
	return &models.UserApplicationGrant{
		UserID:        r.UserID,
		ApplicationID: r.ApplicationID,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// Compile-time check
var _ interfaces.OAuthStore = (*OAuthStore)(nil)
