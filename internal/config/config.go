package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the steward CLI and the doorway service.
type Config struct {
	Steward  StewardConfig  `toml:"steward"`
	Doorway  DoorwayConfig  `toml:"doorway"`
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Recovery RecoveryConfig `toml:"recovery"`
}

// StewardConfig holds the local identity the CLI acts as.
type StewardConfig struct {
	DataDir     string `toml:"data_dir"`
	IdentityID  string `toml:"identity_id"`
	DisplayName string `toml:"display_name"`
}

// DoorwayConfig holds the selected remote doorway endpoint. An empty URL
// means no doorway is selected.
type DoorwayConfig struct {
	Name      string `toml:"name"`
	URL       string `toml:"url"`
	AuthToken string `toml:"auth_token"`
}

// Selected reports whether a remote doorway endpoint is configured.
func (d *DoorwayConfig) Selected() bool {
	return d != nil && d.URL != ""
}

// ServerConfig holds the doorway service HTTP settings.
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	ReadTimeout  int    `toml:"read_timeout"`
	WriteTimeout int    `toml:"write_timeout"`
	JWTSecret    string `toml:"jwt_secret"`
	DoorwayID    string `toml:"doorway_id"`
	DoorwayName  string `toml:"doorway_name"`
}

// DatabaseConfig holds the sqlite database location.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// RecoveryConfig holds the quorum and expiry policy the doorway applies to
// new requests.
type RecoveryConfig struct {
	RequiredAttestations int `toml:"required_attestations"`
	DenyThreshold        int `toml:"deny_threshold"`
	RequestTTLHours      int `toml:"request_ttl_hours"`
	CredentialTTLHours   int `toml:"credential_ttl_hours"`
	QuestionCount        int `toml:"question_count"`
}

// Load loads configuration from a TOML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.setDefaults()

	return &config, nil
}

// Save saves configuration to a TOML file.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// EnsureDirs creates the data directory.
func (c *Config) EnsureDirs() error {
	if err := os.MkdirAll(c.Steward.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", c.Steward.DataDir, err)
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Steward.DataDir == "" {
		c.Steward.DataDir = "data"
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30
	}
	if c.Server.DoorwayID == "" {
		c.Server.DoorwayID = "doorway-local"
	}
	if c.Server.DoorwayName == "" {
		c.Server.DoorwayName = "Local Doorway"
	}
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.Steward.DataDir, "doorway.db")
	}
	if c.Recovery.RequiredAttestations == 0 {
		c.Recovery.RequiredAttestations = 3
	}
	if c.Recovery.DenyThreshold == 0 {
		c.Recovery.DenyThreshold = 2
	}
	if c.Recovery.RequestTTLHours == 0 {
		c.Recovery.RequestTTLHours = 48
	}
	if c.Recovery.CredentialTTLHours == 0 {
		c.Recovery.CredentialTTLHours = 24
	}
	if c.Recovery.QuestionCount == 0 {
		c.Recovery.QuestionCount = 5
	}
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}
