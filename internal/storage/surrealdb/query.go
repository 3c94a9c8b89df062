package surrealdb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Markers raised with THROW inside transactions and mapped back to sentinels.
const (
	throwNotFound    = "gatekeep:not_found"
	throwDuplicate   = "gatekeep:duplicate"
	throwCodeClaimed = "gatekeep:code_claimed"
	throwRevoked     = "gatekeep:token_revoked"
)

func recordID(table, id string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID(table, id)
}

// exec runs a statement batch and fails if any statement failed.
func exec(ctx context.Context, db *surrealdb.DB, sql string, vars map[string]any) error {
	results, err := surrealdb.Query[any](ctx, db, sql, vars)
	if err != nil {
		return translateError(err)
	}
	if results == nil {
		return nil
	}
	// A failed transaction reports every statement as failed; only one of
	// them carries the THROW marker, so all messages are kept.
	var failures []string
	for _, r := range *results {
		if r.Status != "" && r.Status != "OK" {
			failures = append(failures, fmt.Sprint(r.Result))
		}
	}
	if len(failures) > 0 {
		return translateError(errors.New(strings.Join(failures, "; ")))
	}
	return nil
}

// queryRows runs a single SELECT-like statement and returns its rows.
func queryRows[T any](ctx context.Context, db *surrealdb.DB, sql string, vars map[string]any) ([]T, error) {
	results, err := surrealdb.Query[[]T](ctx, db, sql, vars)
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, translateError(err)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return (*results)[0].Result, nil
}

// queryOne returns the first row or interfaces.ErrNotFound.
func queryOne[T any](ctx context.Context, db *surrealdb.DB, sql string, vars map[string]any) (*T, error) {
	rows, err := queryRows[T](ctx, db, sql, vars)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, interfaces.ErrNotFound
	}
	return &rows[0], nil
}

type countRow struct {
	Count int `json:"count"`
}

func queryCount(ctx context.Context, db *surrealdb.DB, sql string, vars map[string]any) (int, error) {
	rows, err := queryRows[countRow](ctx, db, sql, vars)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Count, nil
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, throwNotFound):
		return interfaces.ErrNotFound
	case strings.Contains(msg, throwCodeClaimed):
		return interfaces.ErrCodeClaimed
	case strings.Contains(msg, throwRevoked):
		return interfaces.ErrTokenRevoked
	case strings.Contains(msg, throwDuplicate), isDuplicateError(err):
		return interfaces.ErrDuplicate
	}
	return err
}

// conflictAs maps a transaction read/write conflict to the sentinel of the
// operation that lost the race.
func conflictAs(err error, sentinel error) error {
	if err != nil && isConflictError(err) {
		return sentinel
	}
	return err
}

func isNotFoundError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist")
}

func isDuplicateError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "already contains") || strings.Contains(msg, "already exists")
}

func isConflictError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "conflict") || strings.Contains(msg, "can be retried")
}
