// Package memory implements the credential store with in-process maps.
// It is thread-safe and suitable for development and tests. Every composite
// operation runs under a single lock, so it is atomic with respect to all
// other store calls.
package memory

import (
	"slices"
	"strings"
	"sync"

	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/bobmcallan/gatekeep/internal/models"
)

// grantKey identifies a {user, application} pair.
type grantKey struct {
	userID        string
	applicationID string
}

// accountKey identifies a federated identity.
type accountKey struct {
	provider   models.Provider
	providerID string
}

// Store implements interfaces.StorageManager and all of its sub-stores.
type Store struct {
	mu sync.RWMutex

	users        map[string]*models.User
	usersByEmail map[string]string

	roles       map[string]*models.Role
	permissions map[string]*models.Permission

	applications map[string]*models.Application
	appsByClient map[string]string

	codes         map[string]*models.AuthorizationCode
	accessTokens  map[string]*models.OAuthAccessToken
	refreshTokens map[string]*models.OAuthRefreshToken
	grants        map[grantKey]*models.UserApplicationGrant

	sessions      map[string]*models.SessionRefreshToken
	verifications map[string]*models.VerificationToken
	accounts      map[accountKey]*models.OAuthAccount
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		users:         make(map[string]*models.User),
		usersByEmail:  make(map[string]string),
		roles:         make(map[string]*models.Role),
		permissions:   make(map[string]*models.Permission),
		applications:  make(map[string]*models.Application),
		appsByClient:  make(map[string]string),
		codes:         make(map[string]*models.AuthorizationCode),
		accessTokens:  make(map[string]*models.OAuthAccessToken),
		refreshTokens: make(map[string]*models.OAuthRefreshToken),
		grants:        make(map[grantKey]*models.UserApplicationGrant),
		sessions:      make(map[string]*models.SessionRefreshToken),
		verifications: make(map[string]*models.VerificationToken),
		accounts:      make(map[accountKey]*models.OAuthAccount),
	}
}

var _ interfaces.StorageManager = (*Store)(nil)

func (s *Store) UserStore() interfaces.UserStore                 { return s }
func (s *Store) RoleStore() interfaces.RoleStore                 { return s }
func (s *Store) ApplicationStore() interfaces.ApplicationStore   { return s }
func (s *Store) OAuthStore() interfaces.OAuthStore               { return s }
func (s *Store) SessionStore() interfaces.SessionStore           { return s }
func (s *Store) VerificationStore() interfaces.VerificationStore { return s }
func (s *Store) AccountStore() interfaces.AccountStore           { return s }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Stored records are copied on the way in and out so callers never share
// memory with the store.

func copyUser(u *models.User) *models.User {
	c := *u
	c.RoleIDs = slices.Clone(u.RoleIDs)
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		c.LastLoginAt = &t
	}
	return &c
}

func copyRole(r *models.Role) *models.Role {
	c := *r
	c.PermissionIDs = slices.Clone(r.PermissionIDs)
	return &c
}

func copyApplication(a *models.Application) *models.Application {
	c := *a
	c.RedirectURIs = slices.Clone(a.RedirectURIs)
	return &c
}

func copyOf[T any](v *T) *T {
	c := *v
	return &c
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// paginate slices items for the given options.
func paginate[T any](items []T, opts interfaces.ListOptions) []T {
	opts = opts.Normalize()
	start := opts.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + opts.PageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
