package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/bobmcallan/gatekeep/internal/models"
)

func (s *Store) GetApplication(_ context.Context, id string) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.applications[id]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return copyApplication(a), nil
}

func (s *Store) GetApplicationByClientID(_ context.Context, clientID string) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.appsByClient[clientID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return copyApplication(s.applications[id]), nil
}

func (s *Store) CreateApplication(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.appsByClient[app.ClientID]; ok {
		return interfaces.ErrDuplicate
	}
	if _, ok := s.applications[app.ID]; ok {
		return interfaces.ErrDuplicate
	}
	s.applications[app.ID] = copyApplication(app)
	s.appsByClient[app.ClientID] = app.ID
	return nil
}

func (s *Store) SaveApplication(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.applications[app.ID]
	if !ok {
		return interfaces.ErrNotFound
	}
	if prev.ClientID != app.ClientID {
		if _, taken := s.appsByClient[app.ClientID]; taken {
			return interfaces.ErrDuplicate
		}
		delete(s.appsByClient, prev.ClientID)
		s.appsByClient[app.ClientID] = app.ID
	}
	s.applications[app.ID] = copyApplication(app)
	return nil
}

func (s *Store) ListApplicationsByUser(_ context.Context, userID string, opts interfaces.ListOptions) ([]*models.Application, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keyword := strings.ToLower(strings.TrimSpace(opts.Keyword))
	var matched []*models.Application
	for _, a := range s.applications {
		if a.UserID != userID {
			continue
		}
		if keyword != "" &&
			!strings.Contains(strings.ToLower(a.Name), keyword) &&
			!strings.Contains(strings.ToLower(a.Description), keyword) {
			continue
		}
		matched = append(matched, a)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	page := paginate(matched, opts)
	out := make([]*models.Application, 0, len(page))
	for _, a := range page {
		out = append(out, copyApplication(a))
	}
	return out, len(matched), nil
}

func (s *Store) DeleteApplication(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.applications[id]; !ok {
		return interfaces.ErrNotFound
	}
	s.deleteApplicationLocked(id)
	return nil
}

func (s *Store) deleteApplicationLocked(id string) {
	app := s.applications[id]
	delete(s.appsByClient, app.ClientID)
	delete(s.applications, id)
	s.deleteUserTokensLocked(func(_, applicationID string) bool { return applicationID == id })
}
