package configuration

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alantheprice/svgmap/pkg/chat"
)

const (
	ConfigVersion  = "1.0"
	ConfigDirName  = ".svgmap"
	ConfigFileName = "config.yaml"
)

// Defaults applied to missing or zeroed fields.
const (
	DefaultProvider   = chat.ProviderOpenAI
	DefaultModel      = "gpt-3.5-turbo"
	DefaultTimeoutSec = 120
	DefaultServePort  = 54321
)

// ErrUnsupportedVersion is returned for a config file written by an
// incompatible release.
var ErrUnsupportedVersion = errors.New("unsupported config version")

// Config represents the application configuration
type Config struct {
	Version string `yaml:"version"`

	// Chat transport
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Endpoint   string `yaml:"endpoint,omitempty"`
	TimeoutSec int    `yaml:"timeout_sec"`

	// Web API
	ServePort int `yaml:"serve_port"`

	// Logging
	JSONLogs bool `yaml:"json_logs,omitempty"`
}

// NewConfig creates a new configuration with sensible defaults
func NewConfig() *Config {
	return &Config{
		Version:    ConfigVersion,
		Provider:   DefaultProvider,
		Model:      DefaultModel,
		TimeoutSec: DefaultTimeoutSec,
		ServePort:  DefaultServePort,
	}
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ConfigDirName)
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// GetConfigPath returns the full path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, ConfigFileName), nil
}

// Load loads the configuration from the default path and applies
// environment overrides.
func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	cfg, err := LoadFrom(configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvironment()
	return cfg, nil
}

// LoadFrom loads the configuration at path. A missing file yields the
// defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if config.Version == "" {
		config.Version = ConfigVersion
	}
	if major(config.Version) != major(ConfigVersion) {
		return nil, fmt.Errorf("%w: %s (expected %s)", ErrUnsupportedVersion, config.Version, ConfigVersion)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	def := NewConfig()
	if c.Provider == "" {
		c.Provider = def.Provider
	}
	if c.Model == "" {
		c.Model = def.Model
	}
	if c.TimeoutSec <= 0 {
		c.TimeoutSec = def.TimeoutSec
	}
	if c.ServePort == 0 {
		c.ServePort = def.ServePort
	}
}

// ApplyEnvironment overrides fields from SVGMAP_* environment variables.
func (c *Config) ApplyEnvironment() {
	if v := os.Getenv("SVGMAP_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("SVGMAP_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("SVGMAP_ENDPOINT"); v != "" {
		c.Endpoint = v
	}
	if v := os.Getenv("SVGMAP_JSON_LOGS"); v != "" {
		c.JSONLogs, _ = strconv.ParseBool(v)
	}
}

// Save saves the configuration to the default path.
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(configPath)
}

// SaveTo writes the configuration to path.
func (c *Config) SaveTo(path string) error {
	c.Version = ConfigVersion

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}

// Timeout returns the per-request timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// ChatConfig returns the transport settings.
func (c *Config) ChatConfig() chat.Config {
	return chat.Config{
		Provider: c.Provider,
		Endpoint: c.Endpoint,
		Timeout:  c.Timeout(),
	}
}

func major(version string) string {
	v, _, _ := strings.Cut(strings.TrimPrefix(version, "v"), ".")
	return v
}
