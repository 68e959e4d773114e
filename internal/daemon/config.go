// Copyright 2025 lxfs Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package daemon

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// getConfigDir returns the config directory path.
// Uses LXFS_CONFIG_DIR env var if set, otherwise defaults to ~/.lxfs.
// Computed dynamically to support test isolation.
func getConfigDir() string {
	if dir := os.Getenv("LXFS_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".lxfs")
}

// ConfigDir returns the configuration directory path
func ConfigDir() string {
	return getConfigDir()
}

// SocketPath returns the Unix socket path
func SocketPath() string {
	return filepath.Join(getConfigDir(), "daemon.sock")
}

// PidPath returns the PID file path
func PidPath() string {
	return filepath.Join(getConfigDir(), "daemon.pid")
}

// LockPath returns the lock file path
func LockPath() string {
	return filepath.Join(getConfigDir(), "daemon.lock")
}

// LogPath returns the log file path.
// Uses LXFS_DAEMON_LOG env var if set, otherwise config_dir/daemon.log.
func LogPath() string {
	if envPath := os.Getenv("LXFS_DAEMON_LOG"); envPath != "" {
		return envPath
	}
	return filepath.Join(getConfigDir(), "daemon.log")
}

// SettingsPath returns the settings file path
func SettingsPath() string {
	return filepath.Join(getConfigDir(), "settings.yaml")
}

// EnsureConfigDir creates the config directory if it doesn't exist
func EnsureConfigDir() error {
	return os.MkdirAll(getConfigDir(), 0700)
}

// MountSpec names a volume image preconfigured for mounting at startup.
type MountSpec struct {
	Name   string `yaml:"name"`
	Device string `yaml:"device"`
}

// Settings is the daemon configuration from settings.yaml
type Settings struct {
	Logging string      `yaml:"logging"` // logging level: off, info, debug, trace (case insensitive)
	Mounts  []MountSpec `yaml:"mounts"`  // volumes mounted at daemon startup
}

// ApplyDefaults fills zero-value fields with their defaults.
func (s *Settings) ApplyDefaults() {
	if s.Logging == "" {
		s.Logging = "off"
	}
}

// LoadSettings reads settings.yaml; a missing file yields defaults.
func LoadSettings() (*Settings, error) {
	var s Settings
	data, err := os.ReadFile(SettingsPath())
	if err != nil {
		if os.IsNotExist(err) {
			s.ApplyDefaults()
			return &s, nil
		}
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	s.ApplyDefaults()
	return &s, nil
}

// SaveSettings writes settings.yaml.
func SaveSettings(s *Settings) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	return os.WriteFile(SettingsPath(), data, 0600)
}
