package memory

import (
	"context"

	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/bobmcallan/gatekeep/internal/models"
)

func (s *Store) SaveVerificationToken(_ context.Context, token *models.VerificationToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifications[token.Token] = copyOf(token)
	return nil
}

func (s *Store) ConsumeVerificationToken(_ context.Context, token string, typ models.VerificationType) (*models.VerificationToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.verifications[token]
	if !ok || t.Type != typ {
		return nil, interfaces.ErrNotFound
	}
	delete(s.verifications, token)
	return t, nil
}

func (s *Store) DeleteUserVerificationTokens(_ context.Context, userID string, typ models.VerificationType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, t := range s.verifications {
		if t.UserID == userID && t.Type == typ {
			delete(s.verifications, k)
		}
	}
	return nil
}
