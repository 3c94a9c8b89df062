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

const accountFields = "account_id, user_id, provider, provider_id, access_token, refresh_token, created_at, updated_at"

// accountRow is the DB-level representation of a linked federated identity.
// The record id is derived from {provider, provider_id}, which makes the
// identity unique.
type accountRow struct {
	AccountID    string    `json:"account_id"`
	UserID       string    `json:"user_id"`
	Provider     string    `json:"provider"`
	ProviderID   string    `json:"provider_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toAccountRow(a *models.OAuthAccount) accountRow {
	return accountRow{
		AccountID:    a.ID,
		UserID:       a.UserID,
		Provider:     string(a.Provider),
		ProviderID:   a.ProviderID,
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func (r *accountRow) toModel() *models.OAuthAccount {
	return &models.OAuthAccount{
		ID:           r.AccountID,
		UserID:       r.UserID,
		Provider:     models.Provider(r.Provider),
		ProviderID:   r.ProviderID,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func accountRecordID(provider models.Provider, providerID string) any {
	return recordID(tableOAuthAccount, string(provider)+"_"+providerID)
}

// AccountStore implements interfaces.AccountStore using SurrealDB.
type AccountStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewAccountStore creates a new AccountStore.
func NewAccountStore(db *surrealdb.DB, logger *common.Logger) *AccountStore {
	return &AccountStore{db: db, logger: logger}
}

func (s *AccountStore) GetAccount(ctx context.Context, provider models.Provider, providerID string) (*models.OAuthAccount, error) {
	sql := "SELECT " + accountFields + " FROM $rid"
	row, err := queryOne[accountRow](ctx, s.db, sql, map[string]any{"rid": accountRecordID(provider, providerID)})
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *AccountStore) ListAccountsByUser(ctx context.Context, userID string) ([]*models.OAuthAccount, error) {
	sql := "SELECT " + accountFields + " FROM oauth_account WHERE user_id = $user_id ORDER BY provider ASC"
	rows, err := queryRows[accountRow](ctx, s.db, sql, map[string]any{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	accounts := make([]*models.OAuthAccount, 0, len(rows))
	for i := range rows {
		accounts = append(accounts, rows[i].toModel())
	}
	return accounts, nil
}

// SaveAccount upserts by identity. Linking an identity that belongs to another
// user is a duplicate; the user+provider unique index rejects a second link of
// the same provider.
func (s *AccountStore) SaveAccount(ctx context.Context, account *models.OAuthAccount) error {
	sql := `BEGIN TRANSACTION;
		LET $prev = (SELECT user_id FROM $rid);
		IF array::len($prev) > 0 AND $prev[0].user_id != $user_id { THROW "` + throwDuplicate + `" };
		IF array::len($prev) > 0 {
			UPDATE $rid SET access_token = $data.access_token, refresh_token = $data.refresh_token, updated_at = $data.updated_at;
		} ELSE {
			CREATE $rid CONTENT $data;
		};
		COMMIT TRANSACTION;`
	vars := map[string]any{
		"rid":     accountRecordID(account.Provider, account.ProviderID),
		"user_id": account.UserID,
		"data":    toAccountRow(account),
	}
	if err := exec(ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

func (s *AccountStore) DeleteAccount(ctx context.Context, userID string, provider models.Provider) error {
	sql := "DELETE oauth_account WHERE user_id = $user_id AND provider = $provider RETURN BEFORE"
	vars := map[string]any{"user_id": userID, "provider": string(provider)}
	rows, err := queryRows[accountRow](ctx, s.db, sql, vars)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if len(rows) == 0 {
		return interfaces.ErrNotFound
	}
	return nil
}

func (s *AccountStore) CreateUserWithAccount(ctx context.Context, user *models.User, account *models.OAuthAccount) error {
	sql := `BEGIN TRANSACTION;
		CREATE $user_rid CONTENT $user;
		CREATE $account_rid CONTENT $account;
		COMMIT TRANSACTION;`
	vars := map[string]any{
		"user_rid":    recordID(tableUser, user.ID),
		"user":        toUserRow(user),
		"account_rid": accountRecordID(account.Provider, account.ProviderID),
		"account":     toAccountRow(account),
	}
	if err := exec(ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to create user with account: %w", err)
	}
	return nil
}

// Compile-time check
var _ interfaces.AccountStore = (*AccountStore)(nil)
