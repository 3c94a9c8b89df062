package oauth2

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/bobmcallan/gatekeep/internal/models"
	"github.com/bobmcallan/gatekeep/internal/tokens"
)

const (
	maxRedirectURIs = 5
	maxAppNameLen   = 100
	maxAppDescLen   = 500
)

func validateRedirectURIs(uris []string) error {
	if len(uris) == 0 {
		return common.BadRequest("at least one redirect uri is required")
	}
	if len(uris) > maxRedirectURIs {
		return common.BadRequestf("at most %d redirect uris are allowed", maxRedirectURIs)
	}
	seen := make(map[string]bool, len(uris))
	for _, raw := range uris {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || u.Fragment != "" {
			return common.BadRequestf("invalid redirect uri: %s", raw)
		}
		if seen[raw] {
			return common.BadRequestf("duplicate redirect uri: %s", raw)
		}
		seen[raw] = true
	}
	return nil
}

func validateOptionalURL(field, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return common.BadRequestf("%s must be an http(s) url", field)
	}
	return nil
}

func validateAppName(name string) error {
	if strings.TrimSpace(name) == "" {
		return common.BadRequest("name is required")
	}
	if utf8.RuneCountInString(name) > maxAppNameLen {
		return common.BadRequestf("name must be at most %d characters", maxAppNameLen)
	}
	return nil
}

func validateApplicationInput(in models.ApplicationInput) error {
	if err := validateAppName(in.Name); err != nil {
		return err
	}
	if utf8.RuneCountInString(in.Description) > maxAppDescLen {
		return common.BadRequestf("description must be at most %d characters", maxAppDescLen)
	}
	if err := validateOptionalURL("logo", in.Logo); err != nil {
		return err
	}
	if err := validateOptionalURL("homepage", in.Homepage); err != nil {
		return err
	}
	return validateRedirectURIs(in.RedirectURIs)
}

// newSecret returns a fresh client secret and its stored hash.
func newSecret() (plain, hashed string, err error) {
	plain, err = tokens.RandomHex(tokens.ClientSecretBytes)
	if err != nil {
		return "", "", err
	}
	return plain, tokens.Hash(plain), nil
}

// CreateApplication registers a client owned by userID. The plaintext secret
// is only ever returned here and by RegenerateSecret.
func (s *Service) CreateApplication(ctx context.Context, userID string, in models.ApplicationInput) (*models.ApplicationWithSecret, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validateApplicationInput(in); err != nil {
		return nil, err
	}
	clientID, err := tokens.RandomHex(tokens.ClientIDBytes)
	if err != nil {
		return nil, err
	}
	secret, hashed, err := newSecret()
	if err != nil {
		return nil, err
	}

	now := s.now()
	app := &models.Application{
		ID:           uuid.NewString(),
		ClientID:     clientID,
		ClientSecret: hashed,
		Name:         in.Name,
		Description:  in.Description,
		Logo:         in.Logo,
		Homepage:     in.Homepage,
		RedirectURIs: append([]string(nil), in.RedirectURIs...),
		IsActive:     true,
		UserID:       userID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.storage.ApplicationStore().CreateApplication(ctx, app); err != nil {
		if errors.Is(err, interfaces.ErrDuplicate) {
			return nil, common.Conflict("client id already exists")
		}
		return nil, fmt.Errorf("failed to create application: %w", err)
	}
	s.logger.Info().Str("user_id", userID).Str("application_id", app.ID).Msg("Application created")
	return &models.ApplicationWithSecret{Application: app, ClientSecret: secret}, nil
}

// ListApplications pages through the caller's applications.
func (s *Service) ListApplications(ctx context.Context, userID string, opts interfaces.ListOptions) (*models.Page[*models.Application], error) {
	opts = opts.Normalize()
	apps, total, err := s.storage.ApplicationStore().ListApplicationsByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	if apps == nil {
		apps = []*models.Application{}
	}
	return &models.Page[*models.Application]{Items: apps, Total: total, Page: opts.Page, PageSize: opts.PageSize}, nil
}

// GetApplication returns one of the caller's applications. Applications of
// other users are reported as not found.
func (s *Service) GetApplication(ctx context.Context, userID, id string) (*models.Application, error) {
	app, err := s.loadApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.UserID != userID {
		return nil, errApplicationAbsent
	}
	return app, nil
}

// ownedApplication loads an application the caller is about to modify.
func (s *Service) ownedApplication(ctx context.Context, userID, id string) (*models.Application, error) {
	app, err := s.loadApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.UserID != userID {
		return nil, common.Forbidden("not the owner of this application")
	}
	return app, nil
}

func (s *Service) loadApplication(ctx context.Context, id string) (*models.Application, error) {
	app, err := s.storage.ApplicationStore().GetApplication(ctx, id)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, errApplicationAbsent
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load application: %w", err)
	}
	return app, nil
}

// UpdateApplication applies a partial update.
func (s *Service) UpdateApplication(ctx context.Context, userID, id string, in models.ApplicationUpdate) (*models.Application, error) {
	app, err := s.ownedApplication(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if err := validateAppName(name); err != nil {
			return nil, err
		}
		app.Name = name
	}
	if in.Description != nil {
		if utf8.RuneCountInString(*in.Description) > maxAppDescLen {
			return nil, common.BadRequestf("description must be at most %d characters", maxAppDescLen)
		}
		app.Description = *in.Description
	}
	if in.Logo != nil {
		if err := validateOptionalURL("logo", *in.Logo); err != nil {
			return nil, err
		}
		app.Logo = *in.Logo
	}
	if in.Homepage != nil {
		if err := validateOptionalURL("homepage", *in.Homepage); err != nil {
			return nil, err
		}
		app.Homepage = *in.Homepage
	}
	if in.RedirectURIs != nil {
		if err := validateRedirectURIs(in.RedirectURIs); err != nil {
			return nil, err
		}
		app.RedirectURIs = append([]string(nil), in.RedirectURIs...)
	}
	if in.IsActive != nil {
		app.IsActive = *in.IsActive
	}
	app.UpdatedAt = s.now()

	if err := s.storage.ApplicationStore().SaveApplication(ctx, app); err != nil {
		return nil, fmt.Errorf("failed to save application: %w", err)
	}
	return app, nil
}

// RegenerateSecret replaces the client secret; the old one stops working
// immediately.
func (s *Service) RegenerateSecret(ctx context.Context, userID, id string) (*models.ApplicationWithSecret, error) {
	app, err := s.ownedApplication(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	secret, hashed, err := newSecret()
	if err != nil {
		return nil, err
	}
	app.ClientSecret = hashed
	app.UpdatedAt = s.now()
	if err := s.storage.ApplicationStore().SaveApplication(ctx, app); err != nil {
		return nil, fmt.Errorf("failed to save application: %w", err)
	}
	s.logger.Info().Str("application_id", app.ID).Msg("Client secret regenerated")
	return &models.ApplicationWithSecret{Application: app, ClientSecret: secret}, nil
}

// DeleteApplication removes the application with its codes, tokens and grants.
func (s *Service) DeleteApplication(ctx context.Context, userID, id string) error {
	app, err := s.ownedApplication(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.storage.ApplicationStore().DeleteApplication(ctx, app.ID); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return errApplicationAbsent
		}
		return fmt.Errorf("failed to delete application: %w", err)
	}
	s.logger.Info().Str("user_id", userID).Str("application_id", app.ID).Msg("Application deleted")
	return nil
}
