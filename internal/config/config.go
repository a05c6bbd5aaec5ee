// Package config provides configuration loading and defaults for the luxos-mcp server.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ResourceFilter holds allowlist and denylist entries for a resource category.
type ResourceFilter struct {
	Allowlist []string `yaml:"allowlist"`
	Denylist  []string `yaml:"denylist"`
}

// SafetyConfig groups resource filters. Profiles restricts which overclocking
// profiles tools may select on the miner.
type SafetyConfig struct {
	Profiles ResourceFilter `yaml:"profiles"`
}

// MinerConfig holds connection details for the LuxOS device.
type MinerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Timeout is the per-command HTTP timeout in seconds.
	Timeout int `yaml:"timeout"`
	// PollInterval is the telemetry refresh interval in seconds.
	PollInterval int `yaml:"poll_interval"`
}

// PowerLimitConfig tunes the adaptive power-limit control loop. Zero values
// select the loop's built-in defaults.
type PowerLimitConfig struct {
	// Tolerance is the fractional width of the band below the target in
	// which measured draw is accepted (0.05 = 5%).
	Tolerance float64 `yaml:"tolerance"`
	// StabilizationDelay is how long in seconds to wait after a profile
	// change before trusting a power reading.
	StabilizationDelay int `yaml:"stabilization_delay"`
	// MaxAdjustments caps profile changes per target before the loop
	// gives up.
	MaxAdjustments int `yaml:"max_adjustments"`
	// ReferenceBoards is the hashboard count the firmware's profile
	// wattages assume.
	ReferenceBoards int `yaml:"reference_boards"`
}

// AuditConfig controls audit logging behaviour.
type AuditConfig struct {
	Enabled   bool   `yaml:"enabled"`
	LogPath   string `yaml:"log_path"`
	MaxSizeMB int    `yaml:"max_size_mb"`
}

// ServerConfig holds network and authentication settings.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// Config is the top-level configuration structure for the luxos-mcp server.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Miner      MinerConfig      `yaml:"miner"`
	Safety     SafetyConfig     `yaml:"safety"`
	Audit      AuditConfig      `yaml:"audit"`
	PowerLimit PowerLimitConfig `yaml:"powerlimit"`
}

// LoadConfig reads and parses a YAML configuration file from the given path.
// It returns a pointer to the populated Config and any error encountered.
// On error, nil is returned for the config pointer.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a new Config populated with sensible default values.
// Each call returns a distinct instance.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Miner: MinerConfig{
			Host:         "",
			Port:         8080,
			Timeout:      10,
			PollInterval: 30,
		},
		Audit: AuditConfig{
			Enabled: true,
			LogPath: "/config/audit.log",
		},
	}
}

// ApplyEnvOverrides updates cfg in place with values from environment variables.
// Recognized variables:
//   - LUXOS_MCP_AUTH_TOKEN overrides cfg.Server.AuthToken
//   - LUXOS_MINER_HOST overrides cfg.Miner.Host
//   - LUXOS_MINER_PORT overrides cfg.Miner.Port
func ApplyEnvOverrides(cfg *Config) {
	if token := os.Getenv("LUXOS_MCP_AUTH_TOKEN"); token != "" {
		cfg.Server.AuthToken = token
	}
	if host := os.Getenv("LUXOS_MINER_HOST"); host != "" {
		cfg.Miner.Host = host
	}
	if port := os.Getenv("LUXOS_MINER_PORT"); port != "" {
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err == nil && p > 0 {
			cfg.Miner.Port = p
		}
	}
}

// Validate checks the parts of cfg without workable defaults.
func Validate(cfg *Config) error {
	if cfg.Miner.Host == "" {
		return fmt.Errorf("miner.host is required (or set LUXOS_MINER_HOST)")
	}
	if cfg.Miner.Port <= 0 || cfg.Miner.Port > 65535 {
		return fmt.Errorf("miner.port %d is out of range", cfg.Miner.Port)
	}
	if cfg.PowerLimit.Tolerance < 0 || cfg.PowerLimit.Tolerance >= 1 {
		return fmt.Errorf("powerlimit.tolerance %v must be in [0, 1)", cfg.PowerLimit.Tolerance)
	}
	return nil
}

// EnsureAuthToken generates a random auth token and sets it on cfg if
// cfg.Server.AuthToken is empty. It returns the token (existing or generated)
// and any error encountered during generation.
func EnsureAuthToken(cfg *Config) (string, error) {
	if cfg.Server.AuthToken != "" {
		return cfg.Server.AuthToken, nil
	}
	token, err := GenerateRandomToken()
	if err != nil {
		return "", fmt.Errorf("generate auth token: %w", err)
	}
	cfg.Server.AuthToken = token
	return token, nil
}

// GenerateRandomToken returns a 32-character hex-encoded cryptographically
// random token string.
func GenerateRandomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand.Read: %w", err)
	}
	return hex.EncodeToString(b), nil
}
