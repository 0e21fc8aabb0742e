// Package config loads gazelog configuration.
//
// Priority (highest to lowest): CLI flags > environment variables >
// ~/.gazelog/config.json > defaults. CLI flags are applied by the commands.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "GAZELOG_"

// Config is the root configuration file structure.
type Config struct {
	LogLevel    string `json:"log_level" env:"LOG_LEVEL"`
	CatalogPath string `json:"catalog_path" env:"CATALOG_PATH"`

	Session SessionConfig `json:"session" envPrefix:"SESSION_"`
	Gaze    GazeConfig    `json:"gaze" envPrefix:"GAZE_"`
	Tracker TrackerConfig `json:"tracker" envPrefix:"TRACKER_"`
	Monitor MonitorConfig `json:"monitor" envPrefix:"MONITOR_"`
	Upload  UploadConfig  `json:"upload" envPrefix:"UPLOAD_"`
}

// SessionConfig controls where and how often rows are written.
type SessionConfig struct {
	Dir    string  `json:"dir" env:"DIR"`
	TickHz float64 `json:"tick_hz" env:"TICK_HZ"`
}

// GazeConfig holds signal-processing tunables.
type GazeConfig struct {
	WindowSeconds float64 `json:"window_seconds" env:"WINDOW_SECONDS"`
	WinkThreshold float64 `json:"wink_threshold" env:"WINK_THRESHOLD"`
}

// TrackerConfig describes the tracker bridge connection.
type TrackerConfig struct {
	URL           string  `json:"url,omitempty" env:"URL"`
	MaxFrameAgeMS float64 `json:"max_frame_age_ms" env:"MAX_FRAME_AGE_MS"`
}

// MonitorConfig controls the live monitor server.
type MonitorConfig struct {
	Enabled bool   `json:"enabled" env:"ENABLED"`
	Port    string `json:"port" env:"PORT"`
}

// UploadConfig selects where finished logs are sent.
// An empty Endpoint and DriveFolderID disables uploading.
type UploadConfig struct {
	Endpoint  string `json:"endpoint,omitempty" env:"ENDPOINT"`
	AuthToken string `json:"-" env:"AUTH_TOKEN"`

	DriveFolderID        string `json:"drive_folder_id,omitempty" env:"DRIVE_FOLDER_ID"`
	DriveCredentialsPath string `json:"drive_credentials_path,omitempty" env:"DRIVE_CREDENTIALS_PATH"`
	DriveTokenPath       string `json:"drive_token_path,omitempty" env:"DRIVE_TOKEN_PATH"`
}

// DefaultConfig returns defaults rooted at ~/.gazelog.
func DefaultConfig() Config {
	home := HomeDir()
	return Config{
		LogLevel:    "info",
		CatalogPath: filepath.Join(home, "catalog.db"),
		Session: SessionConfig{
			Dir:    filepath.Join(home, "sessions"),
			TickHz: 90,
		},
		Gaze: GazeConfig{
			WindowSeconds: 0.5,
			WinkThreshold: 0.3,
		},
		Tracker: TrackerConfig{
			MaxFrameAgeMS: 250,
		},
		Monitor: MonitorConfig{
			Port: "8090",
		},
		Upload: UploadConfig{
			DriveTokenPath: filepath.Join(home, "google_token.json"),
		},
	}
}

// HomeDir returns the gazelog state directory (~/.gazelog).
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gazelog"
	}
	return filepath.Join(home, ".gazelog")
}

// Path returns the default config file location.
func Path() string {
	return filepath.Join(HomeDir(), "config.json")
}

// Load reads the default config file and applies environment overrides.
// A missing file is not an error.
func Load() (Config, error) {
	cfg, err := LoadFile(Path())
	if err != nil {
		return cfg, err
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile merges the JSON file at path over the defaults.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	// Unmarshalling into the defaults keeps every key the file omits.
	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with GAZELOG_* environment variables.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Save writes cfg to path, creating the directory.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// TickInterval converts the configured tick rate to a duration.
func (c SessionConfig) TickInterval() time.Duration {
	if c.TickHz <= 0 {
		return time.Second / 90
	}
	return time.Duration(float64(time.Second) / c.TickHz)
}

// Window returns the gaze history retention as a duration.
func (c GazeConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds * float64(time.Second))
}

// MaxFrameAge returns how old a bridged frame may be before it counts as a read error.
func (c TrackerConfig) MaxFrameAge() time.Duration {
	return time.Duration(c.MaxFrameAgeMS * float64(time.Millisecond))
}
