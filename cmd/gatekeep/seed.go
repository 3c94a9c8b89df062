package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bobmcallan/gatekeep/internal/app"
)

var (
	adminEmail    string
	adminPassword string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create built-in permissions, roles and optionally a super admin",
	Long: `Seed is idempotent. It creates missing built-in permissions and roles,
restores built-in permissions on system roles and, when --admin-email and
--admin-password are given, creates that user with the SUPER_ADMIN role.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (adminEmail == "") != (adminPassword == "") {
			return fmt.Errorf("--admin-email and --admin-password must be given together")
		}
		a, err := app.NewApp(cmd.Context(), configPath)
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}
		defer a.Close()

		if err := a.Seed(cmd.Context(), adminEmail, adminPassword); err != nil {
			return fmt.Errorf("seed failed: %w", err)
		}
		cmd.Println("Seed complete")
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&adminEmail, "admin-email", "", "email of the super admin to create")
	seedCmd.Flags().StringVar(&adminPassword, "admin-password", "", "password of the super admin to create")
	rootCmd.AddCommand(seedCmd)
}
