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

type verificationRow struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// VerificationStore implements interfaces.VerificationStore using SurrealDB.
type VerificationStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewVerificationStore creates a new VerificationStore.
func NewVerificationStore(db *surrealdb.DB, logger *common.Logger) *VerificationStore {
	return &VerificationStore{db: db, logger: logger}
}

func (s *VerificationStore) SaveVerificationToken(ctx context.Context, token *models.VerificationToken) error {
	vars := map[string]any{
		"rid": recordID(tableVerification, token.Token),
		"data": verificationRow{
			Token:     token.Token,
			UserID:    token.UserID,
			Type:      string(token.Type),
			ExpiresAt: token.ExpiresAt,
			CreatedAt: token.CreatedAt,
		},
	}
	if err := exec(ctx, s.db, "UPSERT $rid CONTENT $data", vars); err != nil {
		return fmt.Errorf("failed to save verification token: %w", err)
	}
	return nil
}

// ConsumeVerificationToken deletes and returns the token in one statement, so
// two concurrent consumers cannot both succeed.
func (s *VerificationStore) ConsumeVerificationToken(ctx context.Context, token string, typ models.VerificationType) (*models.VerificationToken, error) {
	sql := "DELETE $rid WHERE type = $type RETURN BEFORE"
	vars := map[string]any{
		"rid":  recordID(tableVerification, token),
		"type": string(typ),
	}
	row, err := queryOne[verificationRow](ctx, s.db, sql, vars)
	if err != nil {
		return nil, err
	}
	return &models.VerificationToken{
		Token:     row.Token,
		UserID:    row.UserID,
		Type:      models.VerificationType(row.Type),
		ExpiresAt: row.ExpiresAt,
		CreatedAt: row.CreatedAt,
	}, nil
}

func (s *VerificationStore) DeleteUserVerificationTokens(ctx context.Context, userID string, typ models.VerificationType) error {
	sql := "DELETE verification_token WHERE user_id = $user_id AND type = $type"
	vars := map[string]any{"user_id": userID, "type": string(typ)}
	if err := exec(ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to delete verification tokens: %w", err)
	}
	return nil
}

// Compile-time check
var _ interfaces.VerificationStore = (*VerificationStore)(nil)
