package surrealdb

import (
	"context"
	"fmt"

	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/surrealdb/surrealdb.go"
)

// Table names.
const (
	tableUser         = "user"
	tableRole         = "role"
	tablePermission   = "permission"
	tableApplication  = "application"
	tableCode         = "oauth_code"
	tableAccessToken  = "oauth_access_token"
	tableRefreshToken = "oauth_refresh_token"
	tableGrant        = "user_application_grant"
	tableSession      = "session_refresh_token"
	tableVerification = "verification_token"
	tableOAuthAccount = "oauth_account"
)

// Unique indexes back the store's ErrDuplicate contract.
var schemaIndexes = []string{
	"DEFINE INDEX IF NOT EXISTS user_email ON TABLE user FIELDS email UNIQUE",
	"DEFINE INDEX IF NOT EXISTS role_name ON TABLE role FIELDS name UNIQUE",
	"DEFINE INDEX IF NOT EXISTS permission_name ON TABLE permission FIELDS name UNIQUE",
	"DEFINE INDEX IF NOT EXISTS application_client ON TABLE application FIELDS client_id UNIQUE",
	"DEFINE INDEX IF NOT EXISTS oauth_account_user_provider ON TABLE oauth_account FIELDS user_id, provider UNIQUE",
	"DEFINE INDEX IF NOT EXISTS refresh_token_pair ON TABLE oauth_refresh_token FIELDS application_id, user_id",
	"DEFINE INDEX IF NOT EXISTS session_user ON TABLE session_refresh_token FIELDS user_id",
}

// Manager implements interfaces.StorageManager using SurrealDB.
type Manager struct {
	db     *surrealdb.DB
	logger *common.Logger

	userStore         *UserStore
	roleStore         *RoleStore
	applicationStore  *ApplicationStore
	oauthStore        *OAuthStore
	sessionStore      *SessionStore
	verificationStore *VerificationStore
	accountStore      *AccountStore
}

// NewManager creates a new StorageManager connected to SurrealDB.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	ctx := context.Background()

	db, err := surrealdb.New(config.Storage.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Storage.Username,
		"pass": config.Storage.Password,
	}); err != nil {
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, config.Storage.Namespace, config.Storage.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	m, err := newManagerWithDB(ctx, db, logger)
	if err != nil {
		db.Close(ctx)
		return nil, err
	}

	logger.Info().
		Str("address", config.Storage.Address).
		Str("namespace", config.Storage.Namespace).
		Str("database", config.Storage.Database).
		Msg("SurrealDB storage manager initialized")

	return m, nil
}

func newManagerWithDB(ctx context.Context, db *surrealdb.DB, logger *common.Logger) (*Manager, error) {
	if err := defineSchema(ctx, db); err != nil {
		return nil, err
	}
	return &Manager{
		db:                db,
		logger:            logger,
		userStore:         NewUserStore(db, logger),
		roleStore:         NewRoleStore(db, logger),
		applicationStore:  NewApplicationStore(db, logger),
		oauthStore:        NewOAuthStore(db, logger),
		sessionStore:      NewSessionStore(db, logger),
		verificationStore: NewVerificationStore(db, logger),
		accountStore:      NewAccountStore(db, logger),
	}, nil
}

// defineSchema creates tables and indexes. SurrealDB v3 errors on querying
// tables that were never defined.
func defineSchema(ctx context.Context, db *surrealdb.DB) error {
	tables := []string{
		tableUser, tableRole, tablePermission, tableApplication,
		tableCode, tableAccessToken, tableRefreshToken, tableGrant,
		tableSession, tableVerification, tableOAuthAccount,
	}
	for _, table := range tables {
		sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return fmt.Errorf("failed to define table %s: %w", table, err)
		}
	}
	for _, sql := range schemaIndexes {
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return fmt.Errorf("failed to define index: %w", err)
		}
	}
	return nil
}

func (m *Manager) UserStore() interfaces.UserStore {
	return m.userStore
}

func (m *Manager) RoleStore() interfaces.RoleStore {
	return m.roleStore
}

func (m *Manager) ApplicationStore() interfaces.ApplicationStore {
	return m.applicationStore
}

func (m *Manager) OAuthStore() interfaces.OAuthStore {
	return m.oauthStore
}

func (m *Manager) SessionStore() interfaces.SessionStore {
	return m.sessionStore
}

func (m *Manager) VerificationStore() interfaces.VerificationStore {
	return m.verificationStore
}

func (m *Manager) AccountStore() interfaces.AccountStore {
	return m.accountStore
}

func (m *Manager) Close() error {
	m.db.Close(context.Background())
	return nil
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)
