package app

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	EnvConfigPath = "TICKLER_CONFIG_PATH"
	EnvHome       = "TICKLER_HOME"
)

// GetDefaults resolves the config file and data locations. TICKLER_CONFIG_PATH
// and TICKLER_HOME win over the XDG-style paths under the home directory.
// The .env file and log directory always live under the data directory.
func GetDefaults() (map[string]string, error) {
	configPath, err := envOrHomePath(EnvConfigPath, ".config", "tickler.toml")
	if err != nil {
		return nil, err
	}
	baseDir, err := envOrHomePath(EnvHome, ".local", "share", "tickler")
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
		"env_file":    filepath.Join(baseDir, ".env"),
	}, nil
}

func envOrHomePath(envVar string, elems ...string) (string, error) {
	if path := os.Getenv(envVar); path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for %s: %w", envVar, err)
	}
	return filepath.Join(append([]string{home}, elems...)...), nil
}
