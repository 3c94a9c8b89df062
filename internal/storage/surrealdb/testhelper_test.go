package surrealdb

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/gatekeep/internal/common"
	tcommon "github.com/bobmcallan/gatekeep/tests/common"
)

// testManager connects a Manager to a fresh database on the shared SurrealDB
// instance. Each test gets its own database.
func testManager(t *testing.T) *Manager {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping SurrealDB test in short mode")
	}
	sdb := tcommon.StartSurrealDB(t)

	cfg := common.NewDefaultConfig()
	cfg.Storage.Address = sdb.Address()
	cfg.Storage.Username = tcommon.SurrealUser
	cfg.Storage.Password = tcommon.SurrealPass
	cfg.Storage.Namespace = "gatekeep_test"
	cfg.Storage.Database = "t_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	m, err := NewManager(common.NewSilentLogger(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}
