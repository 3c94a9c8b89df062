package tokens

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// StateTTL bounds how long a federated login state stays valid.
const StateTTL = 10 * time.Minute

type statePayload struct {
	Provider string `json:"provider"`
	Nonce    string `json:"nonce"`
	TS       int64  `json:"ts"`
}

// StateSigner issues and verifies HMAC-signed state values for federated
// login round trips.
type StateSigner struct {
	secret []byte
	now    func() time.Time
}

// NewStateSigner creates a StateSigner.
func NewStateSigner(secret string) *StateSigner {
	return &StateSigner{secret: []byte(secret), now: time.Now}
}

// Issue returns a signed state bound to provider.
func (s *StateSigner) Issue(provider string) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	payloadJSON, err := json.Marshal(statePayload{
		Provider: provider,
		Nonce:    base64.RawURLEncoding.EncodeToString(nonce),
		TS:       s.now().Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}
	payloadB64 := base64.RawURLEncoding.EncodeToString(payloadJSON)
	return payloadB64 + "." + s.sign(payloadB64), nil
}

// Verify checks the signature, age and provider binding of state.
func (s *StateSigner) Verify(state, provider string) error {
	payloadB64, sig, ok := strings.Cut(state, ".")
	if !ok {
		return errors.New("invalid state format")
	}
	if !hmac.Equal([]byte(sig), []byte(s.sign(payloadB64))) {
		return errors.New("invalid state signature")
	}
	payloadJSON, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return fmt.Errorf("invalid state encoding: %w", err)
	}
	var payload statePayload
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		return fmt.Errorf("invalid state payload: %w", err)
	}
	if s.now().Sub(time.Unix(payload.TS, 0)) > StateTTL {
		return errors.New("state expired")
	}
	if payload.Provider != provider {
		return errors.New("state issued for another provider")
	}
	return nil
}

func (s *StateSigner) sign(payloadB64 string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payloadB64))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
