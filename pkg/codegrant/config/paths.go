package config

import (
	"os"
	"path/filepath"
)

const (
	defaultConfigDirName = "codegrant"
	defaultConfigFile    = "config.yaml"
)

func DefaultConfigPath() string {
	if env := os.Getenv("CODEGRANT_CONFIG"); env != "" {
		return env
	}
	base, err := os.UserConfigDir()
	if err == nil {
		return filepath.Join(base, defaultConfigDirName, defaultConfigFile)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".codegrant", defaultConfigFile)
}

// DefaultCredentialsPath is where the provider's app credentials export is
// expected, ~/.cred/saxo/cred.json.
func DefaultCredentialsPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cred", "saxo", "cred.json")
}
