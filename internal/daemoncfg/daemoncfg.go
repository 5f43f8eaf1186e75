// Package daemoncfg loads the optional daemon settings file
// ($HOME/.byocvpn/daemon.yaml). This is distinct from the per-connection
// WireGuard profile (internal/config): the profile is a fixed wg-quick
// dialect handed to the daemon by a caller, while this file carries ambient
// knobs the daemon itself owns (log level, socket paths, TUN name/MTU
// defaults). Mirrors the teacher's config/file.go create-or-load idiom.
package daemoncfg

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	DefaultTUNName      = "utun4"
	DefaultMTU          = 1280
	DefaultKeepalive    = 25
	DefaultLogLevel     = "info"
	controlSocketName   = "daemon.sock"
	metricsSocketName   = "metrics.sock"
	settingsFileName    = "daemon.yaml"
	defaultConfigDirEnv = "BYOCVPN_HOME"
)

// Settings are the ambient knobs a daemon operator may override.
type Settings struct {
	LogLevel    string `yaml:"log_level"`
	TUNName     string `yaml:"tun_name"`
	MTU         int    `yaml:"mtu"`
	ControlSock string `yaml:"control_socket"`
	MetricsSock string `yaml:"metrics_socket"`
}

// MARK: Dir

// Returns $BYOCVPN_HOME if set, else $HOME/.byocvpn.
func Dir() (string, error) {
	if d := os.Getenv(defaultConfigDirEnv); d != "" {
		return d, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".byocvpn"), nil
}

func defaults() Settings {
	return Settings{
		LogLevel: DefaultLogLevel,
		TUNName:  DefaultTUNName,
		MTU:      DefaultMTU,
	}
}

// MARK: Load

// Loads the settings file, creating one from defaults if it is absent.
// Any field left unset in the file falls back to its hardcoded default.
func Load() (Settings, error) {
	dir, err := Dir()
	if err != nil {
		return Settings{}, err
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return Settings{}, fmt.Errorf("creating %s: %w", dir, err)
	}

	path := filepath.Join(dir, settingsFileName)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s := defaults()
		if werr := save(path, s); werr != nil {
			return Settings{}, werr
		}
		return s, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("reading %s: %w", path, err)
	}

	s := defaults()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	s.applyDefaults()
	return s, nil
}

func (s *Settings) applyDefaults() {
	if s.LogLevel == "" {
		s.LogLevel = DefaultLogLevel
	}
	if s.TUNName == "" {
		s.TUNName = DefaultTUNName
	}
	if s.MTU <= 0 {
		s.MTU = DefaultMTU
	}
}

func save(path string, s Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// MARK: ControlSocketPath

func (s Settings) ControlSocketPath() (string, error) {
	if s.ControlSock != "" {
		return s.ControlSock, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, controlSocketName), nil
}

// MARK: MetricsSocketPath

func (s Settings) MetricsSocketPath() (string, error) {
	if s.MetricsSock != "" {
		return s.MetricsSock, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, metricsSocketName), nil
}
