package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/gatekeep/internal/models"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gatekeep.toml")
	content := `
environment = "test"

[storage]
backend = "memory"

[auth]
bcrypt_cost = 4

[logging]
level = "disabled"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewApp_InitializesAllServices(t *testing.T) {
	a, err := NewApp(context.Background(), writeTestConfig(t))
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Storage)
	assert.NotNil(t, a.Denylist)
	assert.NotNil(t, a.Mailer)
	assert.NotNil(t, a.Metrics)
	assert.NotNil(t, a.SessionService)
	assert.NotNil(t, a.OAuthService)
	assert.NotNil(t, a.AdminService)
	assert.False(t, a.StartupTime.IsZero())
	assert.Equal(t, 4, a.Config.Auth.BcryptCost)
}

func TestNewApp_SeedsBuiltinRoles(t *testing.T) {
	a, err := NewApp(context.Background(), writeTestConfig(t))
	require.NoError(t, err)
	defer a.Close()

	role, err := a.Storage.RoleStore().GetRoleByName(context.Background(), models.DefaultRole)
	require.NoError(t, err)
	assert.True(t, role.IsSystem)
}

func TestSeed_RequiresBothCredentials(t *testing.T) {
	a, err := NewApp(context.Background(), writeTestConfig(t))
	require.NoError(t, err)
	defer a.Close()

	assert.Error(t, a.Seed(context.Background(), "root@example.com", ""))
	require.NoError(t, a.Seed(context.Background(), "root@example.com", "passw0rd!"))

	u, err := a.Storage.UserStore().GetUserByEmail(context.Background(), "root@example.com")
	require.NoError(t, err)
	assert.True(t, u.EmailVerified)
}

func TestNewApp_RejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gatekeep.toml")
	require.NoError(t, os.WriteFile(path, []byte("[storage]\nbackend = \"badger\"\n"), 0o600))

	_, err := NewApp(context.Background(), path)
	assert.Error(t, err)
}
