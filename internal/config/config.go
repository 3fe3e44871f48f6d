package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultAccessCode is used when ACCESS_CODE is not configured anywhere.
const DefaultAccessCode = "mi_codigo_secreto_123"

// Config contains the program configuration. It is loaded once at startup
// and passed by value to every component.
type Config struct {
	ListenAddr       string `yaml:"listen_addr"`
	DefaultBitrate   int    `yaml:"default_bitrate"`
	Verbose          bool   `yaml:"verbose"`
	CookiesBrowser   string `yaml:"cookies_browser"`
	YtdlpPath        string `yaml:"ytdlp_path"`
	StateDir         string `yaml:"state_dir"`
	B2Region         string `yaml:"b2_region"`
	LocalSecretsFile string `yaml:"local_secrets_file"`
	SecretsFile      string `yaml:"secrets_file"`

	Secrets Secrets `yaml:"-"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		ListenAddr:       ":8080",
		DefaultBitrate:   192,
		StateDir:         filepath.Join(homeDir(), ".local", "share", "tunevault"),
		LocalSecretsFile: filepath.Join(".streamlit", "secrets.toml"),
		SecretsFile:      "/etc/secrets/secrets.toml",
	}
}

// Load reads the YAML settings file (searching standard locations when path
// is empty) and resolves secrets from the environment and secrets files.
func Load(path string) (Config, error) {
	cfg, err := LoadConfigFile(path)
	if err != nil {
		return cfg, err
	}

	secrets, err := LoadSecrets(cfg.LocalSecretsFile, cfg.SecretsFile)
	if err != nil {
		return cfg, err
	}
	cfg.Secrets = secrets

	return cfg, nil
}

// LoadConfigFile loads configuration from a YAML file.
// If path is empty, searches standard locations. Returns defaults if no file found.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.StateDir = ExpandHome(cfg.StateDir)
	cfg.LocalSecretsFile = ExpandHome(cfg.LocalSecretsFile)
	cfg.SecretsFile = ExpandHome(cfg.SecretsFile)

	return cfg, nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() string {
	home := homeDir()
	locations := []string{
		"./tunevault.yaml",
		"./tunevault.yml",
		filepath.Join(home, ".config", "tunevault", "config.yaml"),
		filepath.Join(home, ".config", "tunevault", "config.yml"),
		filepath.Join(home, ".tunevault.yaml"),
	}

	for _, path := range locations {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// SaveConfigFile saves the current configuration to a YAML file.
// Secrets are never written.
func SaveConfigFile(cfg Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPath returns the default config file path
func GetDefaultConfigPath() string {
	return filepath.Join(homeDir(), ".config", "tunevault", "config.yaml")
}

// LogDir returns the directory used for log files
func (c *Config) LogDir() string {
	return filepath.Join(c.StateDir, "logs")
}

// LockDir returns the directory holding per-folder sync locks
func (c *Config) LockDir() string {
	return filepath.Join(c.StateDir, "locks")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

// Validate checks if the configuration settings are valid.
// Secrets are checked separately with RequireSecrets.
func (c *Config) Validate() error {
	validBitrates := []int{128, 192, 320}
	isValid := false
	for _, b := range validBitrates {
		if c.DefaultBitrate == b {
			isValid = true
			break
		}
	}
	if !isValid {
		return fmt.Errorf("unsupported default_bitrate %d, valid values: %v", c.DefaultBitrate, validBitrates)
	}

	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr cannot be empty")
	}

	if c.StateDir == "" {
		return fmt.Errorf("state_dir cannot be empty")
	}

	return nil
}

// RequireSecrets returns an error naming every listed secret that is unset.
func (c *Config) RequireSecrets(keys ...string) error {
	var missing []string
	for _, key := range keys {
		if c.Secrets.Get(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required secrets: %s", strings.Join(missing, ", "))
	}
	return nil
}

// UsesDefaultAccessCode reports whether the web gate falls back to the built-in code.
func (c *Config) UsesDefaultAccessCode() bool {
	return c.Secrets.AccessCode == DefaultAccessCode
}
