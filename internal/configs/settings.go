package configs

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables that override file locations and the relay.
const (
	EnvConfigDir = "CIPHERROOM_CONFIG_DIR"
	EnvRedisURL  = "CIPHERROOM_REDIS_URL"
)

// Settings holds the paths the client reads and writes.
type Settings struct {
	ConfigDir  string
	ConfigPath string
	AuditPath  string
}

// ResolveSettings works out where configuration lives. CIPHERROOM_CONFIG_DIR
// wins; otherwise it is <user config dir>/cipherroom.
func ResolveSettings() (*Settings, error) {
	dir := os.Getenv(EnvConfigDir)
	if dir == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("error getting config directory: %w", err)
		}
		dir = filepath.Join(configDir, "cipherroom")
	}
	return SettingsFor(dir), nil
}

// SettingsFor returns the settings rooted at dir.
func SettingsFor(dir string) *Settings {
	return &Settings{
		ConfigDir:  dir,
		ConfigPath: filepath.Join(dir, "config.toml"),
		AuditPath:  filepath.Join(dir, "audit.jsonl"),
	}
}
