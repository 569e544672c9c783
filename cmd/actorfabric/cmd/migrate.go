package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/adapters/backend"
	"github.com/hugo-lorenzo-mato/actorfabric/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply storage schema migrations",
	Long: `Create or upgrade the tables of the configured SQL backend. serve runs
the same migrations on start; this command lets you do it ahead of time.
The memory backend has no schema.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.NewValidator().ValidateBackend(cfg); err != nil {
		return err
	}

	opts := backendOptions(cfg)
	version, err := backend.Migrate(cmd.Context(), opts)
	if err != nil {
		return fmt.Errorf("migrating %s backend: %w", cfg.Backend.Driver, err)
	}

	out := cmd.OutOrStdout()
	if version == 0 {
		fmt.Fprintf(out, "%s backend has no schema\n", cfg.Backend.Driver)
		return nil
	}
	printCheck(out, true, false, "%s schema at version %d", cfg.Backend.Driver, version)
	return nil
}
