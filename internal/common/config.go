package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the platform configuration for a single party instance.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Storage StorageConfig `toml:"storage"`
	Logging LoggingConfig `toml:"logging"`
	Party   PartyConfig   `toml:"party"`
	Network NetworkConfig `toml:"network"`
	Jobs    JobsConfig    `toml:"jobs"`
	Users   []UserSeed    `toml:"users"` // optional development seeding
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// PartyConfig identifies this deployment and its credentials for
// peer-to-peer traffic.
type PartyConfig struct {
	Name       string `toml:"name"`        // this party's name, must appear in the party-address file
	ConfigFile string `toml:"config_file"` // path to the party-address JSON document
	JWTSecret  string `toml:"jwt_secret"`  // HS256 secret for inbound bearer tokens
	PeerToken  string `toml:"peer_token"`  // bearer token attached to outbound peer calls
}

// NetworkConfig controls the transport descriptor handed to operators.
type NetworkConfig struct {
	Scheme         string `toml:"scheme"`           // "socket" or "agent"
	PortLowerBound int    `toml:"port_lower_bound"` // inclusive
	PortUpperBound int    `toml:"port_upper_bound"` // exclusive
}

// JobsConfig contains job scheduling policy and operator sandboxing.
type JobsConfig struct {
	MaxJobLimit    int    `toml:"max_job_limit"`   // reject submits once this many jobs are RUNNING
	DefaultMission string `toml:"default_mission"` // mission used when a submit names none
	MissionsDir    string `toml:"missions_dir"`    // directory of *.yml mission templates loaded at init
	SafeWorkDir    string `toml:"safe_work_dir"`   // sandbox directory for operator path arguments
	SweepSchedule  string `toml:"sweep_schedule"`  // cron spec for purging expired mission context rows
}

// UserSeed describes a user created at startup if missing.
type UserSeed struct {
	Name string `toml:"name"`
	Role string `toml:"role"`
}

// NewDefaultConfig creates a configuration with default values.
// Only user-facing settings should be exposed in petplatform.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/petplatform",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Party: PartyConfig{
			ConfigFile: "/app/parties/party.json",
		},
		Network: NetworkConfig{
			Scheme:         "agent",
			PortLowerBound: 49152,
			PortUpperBound: 65535,
		},
		Jobs: JobsConfig{
			MaxJobLimit:    10,
			DefaultMission: "ecdh_psi_optimized",
			MissionsDir:    "/app/missions",
			SafeWorkDir:    "/app/data",
			SweepSchedule:  "@every 10m",
		},
	}
}

// LoadFromFile loads configuration in priority order:
// defaults -> TOML file -> environment variables.
func LoadFromFile(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
// These names form the deployment contract and take precedence over the file.
func applyEnvOverrides(config *Config) {
	if uri := os.Getenv("PLATFORM_DB_URI"); uri != "" {
		config.Storage.Badger.Path = strings.TrimPrefix(uri, "badger://")
	}
	if party := os.Getenv("PARTY"); party != "" {
		config.Party.Name = party
	}
	if file := os.Getenv("CONFIG_FILE"); file != "" {
		config.Party.ConfigFile = file
	}
	if dir := os.Getenv("SAFE_WORK_DIR"); dir != "" {
		config.Jobs.SafeWorkDir = dir
	}
	if scheme := os.Getenv("NETWORK_SCHEME"); scheme != "" {
		config.Network.Scheme = scheme
	}
	if lb := os.Getenv("PORT_LOWER_BOUND"); lb != "" {
		if v, err := strconv.Atoi(lb); err == nil {
			config.Network.PortLowerBound = v
		}
	}
	if ub := os.Getenv("PORT_UPPER_BOUND"); ub != "" {
		if v, err := strconv.Atoi(ub); err == nil {
			config.Network.PortUpperBound = v
		}
	}
	if limit := os.Getenv("MAX_JOB_LIMIT"); limit != "" {
		if v, err := strconv.Atoi(limit); err == nil {
			config.Jobs.MaxJobLimit = v
		}
	}
	if secret := os.Getenv("SECRET"); secret != "" {
		config.Party.JWTSecret = secret
	}
	if token := os.Getenv("JWT_TOKEN"); token != "" {
		config.Party.PeerToken = token
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority).
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks required settings that have no usable default.
func (c *Config) Validate() error {
	if c.Party.Name == "" {
		return fmt.Errorf("party name is required (set PARTY or party.name)")
	}
	if c.Network.Scheme != "socket" && c.Network.Scheme != "agent" {
		return fmt.Errorf("invalid network scheme %q (want socket or agent)", c.Network.Scheme)
	}
	if c.Network.PortLowerBound < 0 || c.Network.PortLowerBound >= c.Network.PortUpperBound || c.Network.PortUpperBound > 65536 {
		return fmt.Errorf("invalid port range %d-%d", c.Network.PortLowerBound, c.Network.PortUpperBound)
	}
	if c.Jobs.MaxJobLimit < 1 {
		return fmt.Errorf("max_job_limit must be at least 1")
	}
	return nil
}
