// Package interfaces defines service contracts for Gatekeep
package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/gatekeep/internal/models"
)

// Denylist holds session access tokens revoked before their natural expiry.
// Entries expire on their own after ttl.
type Denylist interface {
	Add(ctx context.Context, token string, ttl time.Duration) error
	Contains(ctx context.Context, token string) (bool, error)
	Close() error
}

// Mailer delivers account emails.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, email, name, token string) error
	SendPasswordResetEmail(ctx context.Context, email, name, token string) error
}

// IdentityProvider exchanges a federated login code for the caller's identity.
type IdentityProvider interface {
	Provider() models.Provider
	ClientID() string
	CallbackURL() string
	// AuthorizeURL builds the provider's consent URL carrying state.
	AuthorizeURL(state string) string
	Exchange(ctx context.Context, code string) (*models.FederatedIdentity, error)
}
