package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/gatekeep/internal/common"
)

func TestVersionCommand(t *testing.T) {
	cmd := &cobra.Command{Use: "gatekeep"}
	cmd.AddCommand(versionCmd)

	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "gatekeep "+common.GetVersion())
}

func TestSeedCommand_RequiresBothCredentials(t *testing.T) {
	t.Cleanup(func() { adminEmail, adminPassword = "", "" })

	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs([]string{"seed", "--admin-email", "root@example.com"})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be given together")
}

func TestSeedCommand_MemoryBackend(t *testing.T) {
	t.Cleanup(func() { adminEmail, adminPassword, configPath = "", "", "" })

	path := filepath.Join(t.TempDir(), "gatekeep.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment = "test"

[storage]
backend = "memory"

[auth]
bcrypt_cost = 4

[logging]
level = "disabled"
`), 0o600))

	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs([]string{"seed", "--config", path, "--admin-email", "root@example.com", "--admin-password", "R00tPassword"})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Seed complete")
}
