package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/actorfabric/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `Write a commented starter configuration to ./.actorfabric.yaml (or the
--config path). Resource names given as flags are filled in; the rest can be
supplied later through the file or the environment.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

var (
	initForce bool
	initUser  bool
	initNames config.RuntimeConfig
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing file")
	initCmd.Flags().BoolVar(&initUser, "user", false, "write the per-user file instead of the project file")
	initCmd.Flags().StringVar(&initNames.Queue, "queue", "", "mailbox queue name")
	initCmd.Flags().StringVar(&initNames.Table, "table", "", "actor state table name")
	initCmd.Flags().StringVar(&initNames.WorkflowTable, "workflow-table", "", "workflow table name")
	initCmd.Flags().StringVar(&initNames.LocksTable, "locks-table", "", "lock table name")
	initCmd.Flags().StringVar(&initNames.BusName, "bus-name", "", "event bus name")
}

func runInit(cmd *cobra.Command, _ []string) error {
	path, err := initPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := config.WriteStarter(path, initNames, initForce); err != nil {
		if errors.Is(err, config.ErrConfigExists) {
			return fmt.Errorf("%w (use --force to overwrite)", err)
		}
		return err
	}

	printCheck(cmd.OutOrStdout(), true, false, "wrote %s", path)
	return nil
}

func initPath() (string, error) {
	switch {
	case cfgFile != "":
		return cfgFile, nil
	case initUser:
		return config.UserConfigPath()
	default:
		return config.ProjectConfigFile, nil
	}
}
