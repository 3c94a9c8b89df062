package memory

import (
	"context"
	"sort"

	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/bobmcallan/gatekeep/internal/models"
)

func (s *Store) SaveAuthorizationCode(_ context.Context, code *models.AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[code.Code]; ok {
		return interfaces.ErrDuplicate
	}
	s.codes[code.Code] = copyOf(code)
	return nil
}

func (s *Store) GetAuthorizationCode(_ context.Context, code string) (*models.AuthorizationCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.codes[code]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return copyOf(c), nil
}

func (s *Store) DeleteAuthorizationCode(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, code)
	return nil
}

func (s *Store) ExchangeAuthorizationCode(_ context.Context, code string, pair *models.OAuthTokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.codes[code]; !ok {
		return interfaces.ErrCodeClaimed
	}
	delete(s.codes, code)

	appID, userID := pair.Refresh.ApplicationID, pair.Refresh.UserID
	for _, t := range s.refreshTokens {
		if t.ApplicationID == appID && t.UserID == userID {
			t.Revoked = true
		}
	}
	s.putPairLocked(pair)

	key := grantKey{userID: userID, applicationID: appID}
	if g, ok := s.grants[key]; ok {
		g.UpdatedAt = pair.Access.CreatedAt
	} else {
		s.grants[key] = &models.UserApplicationGrant{
			UserID:        userID,
			ApplicationID: appID,
			CreatedAt:     pair.Access.CreatedAt,
			UpdatedAt:     pair.Access.CreatedAt,
		}
	}
	return nil
}

func (s *Store) putPairLocked(pair *models.OAuthTokenPair) {
	access := pair.Access
	refresh := pair.Refresh
	s.accessTokens[access.Token] = &access
	s.refreshTokens[refresh.Token] = &refresh
}

func (s *Store) GetAccessToken(_ context.Context, token string) (*models.OAuthAccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.accessTokens[token]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return copyOf(t), nil
}

func (s *Store) DeleteAccessToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accessTokens, token)
	return nil
}

func (s *Store) GetRefreshToken(_ context.Context, token string) (*models.OAuthRefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.refreshTokens[token]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return copyOf(t), nil
}

func (s *Store) RotateOAuthRefreshToken(_ context.Context, oldToken string, pair *models.OAuthTokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.refreshTokens[oldToken]
	if !ok {
		return interfaces.ErrNotFound
	}
	if old.Revoked {
		return interfaces.ErrTokenRevoked
	}
	old.Revoked = true
	s.putPairLocked(pair)
	return nil
}

func (s *Store) CountActiveRefreshTokens(_ context.Context, applicationID, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, t := range s.refreshTokens {
		if t.ApplicationID == applicationID && t.UserID == userID && !t.Revoked {
			n++
		}
	}
	return n, nil
}

func (s *Store) GetGrant(_ context.Context, userID, applicationID string) (*models.UserApplicationGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[grantKey{userID: userID, applicationID: applicationID}]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return copyOf(g), nil
}

func (s *Store) ListGrantsByUser(_ context.Context, userID string) ([]*models.UserApplicationGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.UserApplicationGrant
	for k, g := range s.grants {
		if k.userID == userID {
			out = append(out, copyOf(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *Store) RevokeGrant(_ context.Context, userID, applicationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants, grantKey{userID: userID, applicationID: applicationID})
	for k, t := range s.accessTokens {
		if t.UserID == userID && t.ApplicationID == applicationID {
			delete(s.accessTokens, k)
		}
	}
	for _, t := range s.refreshTokens {
		if t.UserID == userID && t.ApplicationID == applicationID {
			t.Revoked = true
		}
	}
	return nil
}
