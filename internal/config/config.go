// Package config loads and persists the application configuration.
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/mrcode/mealdose/internal/models"
)

// Config contains all application settings.
type Config struct {
	// Dosing defaults, used until the hourly schedule provides values.
	DefaultCarbRatio float64 `yaml:"default_carb_ratio"`
	DefaultStartDose float64 `yaml:"default_start_dose"`

	// StartDoseFactor, when > 0, switches the start-dose computation to a
	// fixed percentage of the planned carbs instead of the scheduled cap.
	StartDoseFactor float64 `yaml:"start_dose_factor"`

	// Override settings
	OverridePresetPercent   float64 `yaml:"override_preset_percent"`
	OverrideDurationSeconds int     `yaml:"override_duration_seconds"`

	// Safety caps (empty = unlimited)
	Caps models.SafetyCaps `yaml:"caps"`

	// Delivery channels
	AutomationURL    string `yaml:"automation_url"`    // webhook round trip
	SMSGatewayURL    string `yaml:"sms_gateway_url"`   // REST SMS gateway
	SMSGatewayToken  string `yaml:"sms_gateway_token"` //
	SMSRecipient     string `yaml:"sms_recipient"`
	DefaultChannel   string `yaml:"default_channel"` // "manual", "webhook", "sms"
	EnableAlertSound bool   `yaml:"enable_alert_sound"`

	// Storage
	DatabasePath string `yaml:"database_path"` // food/schedule sqlite
	StatePath    string `yaml:"state_path"`    // registration state json

	// ExportIntervalSeconds controls the periodic state snapshot; 0
	// disables it.
	ExportIntervalSeconds int    `yaml:"export_interval_seconds"`
	ExportPath            string `yaml:"export_path"`
}

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		DefaultCarbRatio:        10.0, // 1 U per 10 g carbs
		DefaultStartDose:        30.0, // grams covered by the start dose
		StartDoseFactor:         0,    // scheduled-cap policy by default
		OverridePresetPercent:   130,
		OverrideDurationSeconds: 5400, // 90 minutes
		DefaultChannel:          "manual",
		EnableAlertSound:        true,
		ExportIntervalSeconds:   0,
	}
}

// Dir returns the configuration directory, creating it if necessary.
func Dir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default: // Linux and others
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	appDir := filepath.Join(configDir, "mealdose")
	if err := os.MkdirAll(appDir, 0750); err != nil {
		return "", err
	}

	return appDir, nil
}

// Path returns the full path to the config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the configuration from path, falling back to defaults when the
// file does not exist. Unset storage paths are filled in relative to the
// config directory.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) //nolint:gosec // Config path is controlled by the app, not user input
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.fillPaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func (c *Config) fillPaths() error {
	if c.DatabasePath != "" && c.StatePath != "" && (c.ExportIntervalSeconds == 0 || c.ExportPath != "") {
		return nil
	}
	dir, err := Dir()
	if err != nil {
		return err
	}
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(dir, "mealdose.db")
	}
	if c.StatePath == "" {
		c.StatePath = filepath.Join(dir, "registration.json")
	}
	if c.ExportPath == "" {
		c.ExportPath = filepath.Join(dir, "export.json")
	}
	return nil
}
