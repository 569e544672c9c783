package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// ProjectConfigFile is the name searched for in the working directory.
const ProjectConfigFile = ".actorfabric.yaml"

// UserConfigPath returns the per-user configuration path, searched after the
// project file.
func UserConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "actorfabric", ProjectConfigFile), nil
}
