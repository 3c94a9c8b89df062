package surrealdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/bobmcallan/gatekeep/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

const applicationFields = "app_id, client_id, client_secret, name, description, logo, homepage, redirect_uris, is_active, user_id, created_at, updated_at"

// applicationRow is the DB-level representation of an OAuth client application.
type applicationRow struct {
	AppID        string    `json:"app_id"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Logo         string    `json:"logo"`
	Homepage     string    `json:"homepage"`
	RedirectURIs []string  `json:"redirect_uris"`
	IsActive     bool      `json:"is_active"`
	UserID       string    `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toApplicationRow(a *models.Application) applicationRow {
	return applicationRow{
		AppID:        a.ID,
		ClientID:     a.ClientID,
		ClientSecret: a.ClientSecret,
		Name:         a.Name,
		Description:  a.Description,
		Logo:         a.Logo,
		Homepage:     a.Homepage,
		RedirectURIs: a.RedirectURIs,
		IsActive:     a.IsActive,
		UserID:       a.UserID,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func (r *applicationRow) toModel() *models.Application {
	return &models.Application{
		ID:           r.AppID,
		ClientID:     r.ClientID,
		ClientSecret: r.ClientSecret,
		Name:         r.Name,
		Description:  r.Description,
		Logo:         r.Logo,
		Homepage:     r.Homepage,
		RedirectURIs: r.RedirectURIs,
		IsActive:     r.IsActive,
		UserID:       r.UserID,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// ApplicationStore implements interfaces.ApplicationStore using SurrealDB.
type ApplicationStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewApplicationStore creates a new ApplicationStore.
func NewApplicationStore(db *surrealdb.DB, logger *common.Logger) *ApplicationStore {
	return &ApplicationStore{db: db, logger: logger}
}

func (s *ApplicationStore) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	sql := "SELECT " + applicationFields + " FROM $rid"
	row, err := queryOne[applicationRow](ctx, s.db, sql, map[string]any{"rid": recordID(tableApplication, id)})
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *ApplicationStore) GetApplicationByClientID(ctx context.Context, clientID string) (*models.Application, error) {
	sql := "SELECT " + applicationFields + " FROM application WHERE client_id = $client_id LIMIT 1"
	row, err := queryOne[applicationRow](ctx, s.db, sql, map[string]any{"client_id": clientID})
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *ApplicationStore) CreateApplication(ctx context.Context, app *models.Application) error {
	vars := map[string]any{
		"rid":  recordID(tableApplication, app.ID),
		"data": toApplicationRow(app),
	}
	if err := exec(ctx, s.db, "CREATE $rid CONTENT $data", vars); err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	return nil
}

func (s *ApplicationStore) SaveApplication(ctx context.Context, app *models.Application) error {
	sql := `BEGIN TRANSACTION;
		LET $a = (SELECT app_id FROM $rid);
		IF array::len($a) = 0 { THROW "` + throwNotFound + `" };
		UPDATE $rid CONTENT $data;
		COMMIT TRANSACTION;`
	vars := map[string]any{
		"rid":  recordID(tableApplication, app.ID),
		"data": toApplicationRow(app),
	}
	if err := exec(ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save application: %w", err)
	}
	return nil
}

func (s *ApplicationStore) ListApplicationsByUser(ctx context.Context, userID string, opts interfaces.ListOptions) ([]*models.Application, int, error) {
	opts = opts.Normalize()
	where := " WHERE user_id = $user_id"
	vars := map[string]any{
		"user_id": userID,
		"limit":   opts.PageSize,
		"start":   opts.Offset(),
	}
	if kw := strings.ToLower(strings.TrimSpace(opts.Keyword)); kw != "" {
		where += " AND (string::contains(string::lowercase(name), $kw) OR string::contains(string::lowercase(description), $kw))"
		vars["kw"] = kw
	}

	total, err := queryCount(ctx, s.db, "SELECT count() AS count FROM application"+where+" GROUP ALL", vars)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count applications: %w", err)
	}

	sql := "SELECT " + applicationFields + " FROM application" + where + " ORDER BY created_at DESC, app_id ASC LIMIT $limit START $start"
	rows, err := queryRows[applicationRow](ctx, s.db, sql, vars)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list applications: %w", err)
	}
	apps := make([]*models.Application, 0, len(rows))
	for i := range rows {
		apps = append(apps, rows[i].toModel())
	}
	return apps, total, nil
}

// DeleteApplication removes the application with its codes, tokens and grants.
func (s *ApplicationStore) DeleteApplication(ctx context.Context, id string) error {
	sql := `BEGIN TRANSACTION;
		LET $gone = (DELETE $rid RETURN BEFORE);
		IF array::len($gone) = 0 { THROW "` + throwNotFound + `" };
		DELETE oauth_code WHERE application_id = $id;
		DELETE oauth_access_token WHERE application_id = $id;
		DELETE oauth_refresh_token WHERE application_id = $id;
		DELETE user_application_grant WHERE application_id = $id;
		COMMIT TRANSACTION;`
	vars := map[string]any{
		"rid": recordID(tableApplication, id),
		"id":  id,
	}
	if err := exec(ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to delete application: %w", err)
	}
	return nil
}

// Compile-time check
var _ interfaces.ApplicationStore = (*ApplicationStore)(nil)
