package memory

import (
	"context"
	"slices"
	"sort"
	"strings"

	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/bobmcallan/gatekeep/internal/models"
)

func (s *Store) GetUser(_ context.Context, userID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return copyUser(u), nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usersByEmail[normalizeEmail(email)]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return copyUser(s.users[id]), nil
}

func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createUserLocked(user)
}

func (s *Store) createUserLocked(user *models.User) error {
	email := normalizeEmail(user.Email)
	if _, ok := s.usersByEmail[email]; ok {
		return interfaces.ErrDuplicate
	}
	if _, ok := s.users[user.ID]; ok {
		return interfaces.ErrDuplicate
	}
	u := copyUser(user)
	u.Email = email
	s.users[u.ID] = u
	s.usersByEmail[email] = u.ID
	return nil
}

func (s *Store) SaveUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := normalizeEmail(user.Email)
	if owner, ok := s.usersByEmail[email]; ok && owner != user.ID {
		return interfaces.ErrDuplicate
	}
	if prev, ok := s.users[user.ID]; ok && prev.Email != email {
		delete(s.usersByEmail, prev.Email)
	}
	u := copyUser(user)
	u.Email = email
	s.users[u.ID] = u
	s.usersByEmail[email] = u.ID
	return nil
}

func (s *Store) ListUsers(_ context.Context, opts interfaces.ListOptions) ([]*models.User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keyword := strings.ToLower(strings.TrimSpace(opts.Keyword))
	var matched []*models.User
	for _, u := range s.users {
		if keyword != "" &&
			!strings.Contains(strings.ToLower(u.Email), keyword) &&
			!strings.Contains(strings.ToLower(u.Name), keyword) {
			continue
		}
		matched = append(matched, u)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	page := paginate(matched, opts)
	out := make([]*models.User, 0, len(page))
	for _, u := range page {
		out = append(out, copyUser(u))
	}
	return out, len(matched), nil
}

func (s *Store) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return interfaces.ErrNotFound
	}
	delete(s.usersByEmail, u.Email)
	delete(s.users, userID)

	for id, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, id)
		}
	}
	for tok, v := range s.verifications {
		if v.UserID == userID {
			delete(s.verifications, tok)
		}
	}
	for key, a := range s.accounts {
		if a.UserID == userID {
			delete(s.accounts, key)
		}
	}
	for appID, app := range s.applications {
		if app.UserID == userID {
			s.deleteApplicationLocked(appID)
		}
	}
	s.deleteUserTokensLocked(func(uid, _ string) bool { return uid == userID })
	return nil
}

// deleteUserTokensLocked removes codes, tokens and grants matching the predicate.
func (s *Store) deleteUserTokensLocked(match func(userID, applicationID string) bool) {
	for k, c := range s.codes {
		if match(c.UserID, c.ApplicationID) {
			delete(s.codes, k)
		}
	}
	for k, t := range s.accessTokens {
		if match(t.UserID, t.ApplicationID) {
			delete(s.accessTokens, k)
		}
	}
	for k, t := range s.refreshTokens {
		if match(t.UserID, t.ApplicationID) {
			delete(s.refreshTokens, k)
		}
	}
	for k := range s.grants {
		if match(k.userID, k.applicationID) {
			delete(s.grants, k)
		}
	}
}

func (s *Store) SetUserRoles(_ context.Context, userID string, roleIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return interfaces.ErrNotFound
	}
	for _, id := range roleIDs {
		if _, ok := s.roles[id]; !ok {
			return interfaces.ErrNotFound
		}
	}
	u.RoleIDs = slices.Compact(slices.Sorted(slices.Values(roleIDs)))
	return nil
}

func (s *Store) CountUsersWithRole(_ context.Context, roleID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, u := range s.users {
		if u.HasRole(roleID) {
			n++
		}
	}
	return n, nil
}
