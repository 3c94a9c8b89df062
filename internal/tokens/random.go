package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// Opaque token sizes in random bytes. The hex form is twice as long.
const (
	ClientIDBytes     = 16
	ClientSecretBytes = 32
	CodeBytes         = 24
	AccessTokenBytes  = 32
	RefreshTokenBytes = 32
	VerificationBytes = 32
)

// RandomHex returns n random bytes hex-encoded.
func RandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Hash returns the hex SHA-256 of a token. Stores key bearer tokens by hash so
// a database read does not yield usable credentials.
func Hash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Equal compares two secrets in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
