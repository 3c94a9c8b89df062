package memory

import (
	"context"

	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/bobmcallan/gatekeep/internal/models"
)

func (s *Store) CreateSessionRefreshToken(_ context.Context, token *models.SessionRefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[token.ID]; ok {
		return interfaces.ErrDuplicate
	}
	s.sessions[token.ID] = copyOf(token)
	return nil
}

func (s *Store) GetSessionRefreshToken(_ context.Context, id string) (*models.SessionRefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.sessions[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return copyOf(t), nil
}

func (s *Store) RotateSessionRefreshToken(_ context.Context, oldID string, next *models.SessionRefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.sessions[oldID]
	if !ok {
		return interfaces.ErrNotFound
	}
	if old.Revoked {
		return interfaces.ErrTokenRevoked
	}
	old.Revoked = true
	s.sessions[next.ID] = copyOf(next)
	return nil
}

func (s *Store) RevokeSessionRefreshToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.sessions[id]
	if !ok {
		return interfaces.ErrNotFound
	}
	t.Revoked = true
	return nil
}

func (s *Store) RevokeUserSessionRefreshTokens(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.sessions {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			n++
		}
	}
	return n, nil
}
