package memory

import (
	"context"
	"sort"

	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/bobmcallan/gatekeep/internal/models"
)

func (s *Store) GetAccount(_ context.Context, provider models.Provider, providerID string) (*models.OAuthAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[accountKey{provider: provider, providerID: providerID}]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return copyOf(a), nil
}

func (s *Store) ListAccountsByUser(_ context.Context, userID string) ([]*models.OAuthAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.OAuthAccount
	for _, a := range s.accounts {
		if a.UserID == userID {
			out = append(out, copyOf(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

func (s *Store) SaveAccount(_ context.Context, account *models.OAuthAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveAccountLocked(account)
}

// saveAccountLocked upserts by identity. An identity already linked to a
// different user, or a second link of the same provider, is a duplicate.
func (s *Store) saveAccountLocked(account *models.OAuthAccount) error {
	key := accountKey{provider: account.Provider, providerID: account.ProviderID}
	if prev, ok := s.accounts[key]; ok {
		if prev.UserID != account.UserID {
			return interfaces.ErrDuplicate
		}
		c := copyOf(account)
		c.ID = prev.ID
		c.CreatedAt = prev.CreatedAt
		s.accounts[key] = c
		return nil
	}
	for k, a := range s.accounts {
		if a.UserID == account.UserID && k.provider == account.Provider {
			return interfaces.ErrDuplicate
		}
	}
	s.accounts[key] = copyOf(account)
	return nil
}

func (s *Store) DeleteAccount(_ context.Context, userID string, provider models.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, a := range s.accounts {
		if a.UserID == userID && k.provider == provider {
			delete(s.accounts, k)
			return nil
		}
	}
	return interfaces.ErrNotFound
}

func (s *Store) CreateUserWithAccount(_ context.Context, user *models.User, account *models.OAuthAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[accountKey{provider: account.Provider, providerID: account.ProviderID}]; ok {
		return interfaces.ErrDuplicate
	}
	if err := s.createUserLocked(user); err != nil {
		return err
	}
	return s.saveAccountLocked(account)
}
