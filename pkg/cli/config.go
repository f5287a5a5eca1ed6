package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// UserConfig represents ~/.csvexport/config.yaml.
type UserConfig struct {
	CurrentProfile string             `yaml:"current-profile"`
	Profiles       map[string]Profile `yaml:"profiles"`
}

// Profile is a named set of defaults for the exporter flags.
type Profile struct {
	Driver     string `yaml:"driver,omitempty"`
	DSN        string `yaml:"dsn,omitempty"`
	Catalog    string `yaml:"catalog,omitempty"`
	Paging     string `yaml:"paging,omitempty"`
	ExportDir  string `yaml:"export-dir,omitempty"`
	PublishURL string `yaml:"publish-url,omitempty"`
	LogLevel   string `yaml:"log-level,omitempty"`
	Output     string `yaml:"output,omitempty"`
}

// env maps the profile onto the environment keys it provides defaults for.
func (p Profile) env() map[string]string {
	out := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set(envDriver, p.Driver)
	set(envDSN, p.DSN)
	set(envCatalog, p.Catalog)
	set(envPaging, p.Paging)
	set(envExportDir, p.ExportDir)
	set(envPublishURL, p.PublishURL)
	set(envLogLevel, p.LogLevel)
	return out
}

func newUserConfig() *UserConfig {
	return &UserConfig{
		CurrentProfile: "default",
		Profiles:       map[string]Profile{},
	}
}

// ActiveProfile returns the profile named by override, or the current profile
// when override is empty. A missing current profile is empty; a missing
// override is an error.
func (c *UserConfig) ActiveProfile(override string) (Profile, error) {
	if override == "" {
		return c.Profiles[c.CurrentProfile], nil
	}
	p, ok := c.Profiles[override]
	if !ok {
		return Profile{}, fmt.Errorf("profile %q not found", override)
	}
	return p, nil
}

// ConfigDir returns the path to ~/.csvexport/.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".csvexport")
}

// ConfigPath returns the path to ~/.csvexport/config.yaml.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// LoadUserConfig reads ~/.csvexport/config.yaml.
func LoadUserConfig() (*UserConfig, error) {
	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg UserConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]Profile{}
	}
	return &cfg, nil
}

// SaveUserConfig writes ~/.csvexport/config.yaml.
func SaveUserConfig(cfg *UserConfig) error {
	if err := os.MkdirAll(ConfigDir(), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(ConfigPath(), data, 0o600)
}
