package surrealdb

import (
	"context"
	"fmt"
	"time"

	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/bobmcallan/gatekeep/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

const sessionFields = "token_id, user_id, token_hash, user_agent, ip_address, expires_at, revoked, created_at"

// sessionRow is the DB-level representation of a session refresh token.
type sessionRow struct {
	TokenID   string    `json:"token_id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"token_hash"`
	UserAgent string    `json:"user_agent"`
	IPAddress string    `json:"ip_address"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}

func toSessionRow(t *models.SessionRefreshToken) sessionRow {
	return sessionRow{
		TokenID:   t.ID,
		UserID:    t.UserID,
		TokenHash: t.Token,
		UserAgent: t.UserAgent,
		IPAddress: t.IPAddress,
		ExpiresAt: t.ExpiresAt,
		Revoked:   t.Revoked,
		CreatedAt: t.CreatedAt,
	}
}

// SessionStore implements interfaces.SessionStore using SurrealDB.
type SessionStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(db *surrealdb.DB, logger *common.Logger) *SessionStore {
	return &SessionStore{db: db, logger: logger}
}

func (s *SessionStore) CreateSessionRefreshToken(ctx context.Context, token *models.SessionRefreshToken) error {
	vars := map[string]any{
		"rid":  recordID(tableSession, token.ID),
		"data": toSessionRow(token),
	}
	if err := exec(ctx, s.db, "CREATE $rid CONTENT $data", vars); err != nil {
		return fmt.Errorf("failed to create session refresh token: %w", err)
	}
	return nil
}

func (s *SessionStore) GetSessionRefreshToken(ctx context.Context, id string) (*models.SessionRefreshToken, error) {
	sql := "SELECT " + sessionFields + " FROM $rid"
	row, err := queryOne[sessionRow](ctx, s.db, sql, map[string]any{"rid": recordID(tableSession, id)})
	if err != nil {
		return nil, err
	}
	return &models.SessionRefreshToken{
		ID:        row.TokenID,
		UserID:    row.UserID,
		Token:     row.TokenHash,
		UserAgent: row.UserAgent,
		IPAddress: row.IPAddress,
		ExpiresAt: row.ExpiresAt,
		Revoked:   row.Revoked,
		CreatedAt: row.CreatedAt,
	}, nil
}

func (s *SessionStore) RotateSessionRefreshToken(ctx context.Context, oldID string, next *models.SessionRefreshToken) error {
	sql := `BEGIN TRANSACTION;
		LET $old = (SELECT revoked FROM $old_rid);
		IF array::len($old) = 0 { THROW "` + throwNotFound + `" };
		LET $won = (UPDATE $old_rid SET revoked = true WHERE revoked = false RETURN AFTER);
		IF array::len($won) = 0 { THROW "` + throwRevoked + `" };
		CREATE $next_rid CONTENT $next;
		COMMIT TRANSACTION;`
	vars := map[string]any{
		"old_rid":  recordID(tableSession, oldID),
		"next_rid": recordID(tableSession, next.ID),
		"next":     toSessionRow(next),
	}
	if err := exec(ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to rotate session refresh token: %w", conflictAs(err, interfaces.ErrTokenRevoked))
	}
	return nil
}

func (s *SessionStore) RevokeSessionRefreshToken(ctx context.Context, id string) error {
	sql := `BEGIN TRANSACTION;
		LET $t = (SELECT token_id FROM $rid);
		IF array::len($t) = 0 { THROW "` + throwNotFound + `" };
		UPDATE $rid SET revoked = true;
		COMMIT TRANSACTION;`
	if err := exec(ctx, s.db, sql, map[string]any{"rid": recordID(tableSession, id)}); err != nil {
		return fmt.Errorf("failed to revoke session refresh token: %w", err)
	}
	return nil
}

func (s *SessionStore) RevokeUserSessionRefreshTokens(ctx context.Context, userID string) (int, error) {
	sql := "UPDATE session_refresh_token SET revoked = true WHERE user_id = $user_id AND revoked = false RETURN token_id"
	rows, err := queryRows[sessionRow](ctx, s.db, sql, map[string]any{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("failed to revoke user session refresh tokens: %w", err)
	}
	return len(rows), nil
}

// Compile-time check
var _ interfaces.SessionStore = (*SessionStore)(nil)
