// Package config handles configuration loading, validation, and persistence
// for the Squadron console backend.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultAPIPort    = 5100
	DefaultRconPort   = 21114
	DefaultGamePort   = 7787
)

// Config is the root configuration structure for Squadron.
type Config struct {
	mu   sync.RWMutex
	path string

	Servers         []ServerData    `json:"servers"`
	ApplicationData ApplicationData `json:"application_data"`
}

// ServerData identifies one game server and its remote-console
// credentials. The fleet is static configuration; sessions are created
// for each entry at startup.
type ServerData struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Host     string `json:"host"`
	GamePort int    `json:"game_port"`

	RconHost     string `json:"rcon_host"`
	RconPort     int    `json:"rcon_port"`
	RconPassword string `json:"rcon_password"`
}

// RconAddr returns the host:port the session should dial. RconHost
// falls back to the game host when unset.
func (s ServerData) RconAddr() string {
	host := s.RconHost
	if host == "" {
		host = s.Host
	}
	port := s.RconPort
	if port == 0 {
		port = DefaultRconPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// ApplicationData contains backend application configuration.
type ApplicationData struct {
	APIPort  int            `json:"api_port"`
	Session  SessionConfig  `json:"session"`
	Storage  StorageConfig  `json:"storage"`
	Feeds    FeedConfig     `json:"feeds"`
	MQTT     MQTTConfig     `json:"mqtt"`
	Security SecurityConfig `json:"security"`
	Logging  LoggingConfig  `json:"logging"`

	// Extensions holds per-extension settings keyed by extension name,
	// validated against the schemas in extensionSchemas.
	Extensions map[string]map[string]interface{} `json:"extensions"`
}

// SessionConfig holds reconnect and health-check policy. The values
// are defaults, not contractual constants.
type SessionConfig struct {
	DialTimeoutSec    int    `json:"dial_timeout_sec"`
	CommandTimeoutSec int    `json:"command_timeout_sec"`
	BackoffMinSec     int    `json:"backoff_min_sec"`
	BackoffMaxSec     int    `json:"backoff_max_sec"`
	StableResetSec    int    `json:"stable_reset_sec"`
	HealthIntervalSec int    `json:"health_interval_sec"`
	HealthCommand     string `json:"health_command"`
}

// StorageConfig selects the event store backend.
type StorageConfig struct {
	Backend   string `json:"backend"` // "memory" or "sqlite"
	Path      string `json:"path"`
	Retention int    `json:"retention_per_type"`
}

// FeedConfig holds live-feed delivery settings.
type FeedConfig struct {
	QueueDepth int `json:"queue_depth"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"`
	Port      int    `json:"port"`
	UseTLS    bool   `json:"use_tls"`
	CertFile  string `json:"cert_file"`
	KeyFile   string `json:"key_file"`
	CAFile    string `json:"ca_file"`
	ClientID  string `json:"client_id"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	TLSEnabled     bool     `json:"tls_enabled"`
	TLSCertFile    string   `json:"tls_cert_file"`
	TLSKeyFile     string   `json:"tls_key_file"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
	BearerTokens   []string `json:"bearer_tokens"`
	AuthDisabled   bool     `json:"auth_disabled"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxBackups int    `json:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Servers: []ServerData{},
		ApplicationData: ApplicationData{
			APIPort: DefaultAPIPort,
			Session: SessionConfig{
				DialTimeoutSec:    10,
				CommandTimeoutSec: 10,
				BackoffMinSec:     1,
				BackoffMaxSec:     30,
				StableResetSec:    60,
				HealthIntervalSec: 30,
				HealthCommand:     "ShowCurrentMap",
			},
			Storage: StorageConfig{
				Backend:   "memory",
				Path:      "data/events.db",
				Retention: 5000,
			},
			Feeds: FeedConfig{
				QueueDepth: 64,
			},
			MQTT: MQTTConfig{
				Enabled: false,
				Port:    8883,
				UseTLS:  true,
			},
			Security: SecurityConfig{
				RateLimitRPS: 100,
				AuthDisabled: false,
			},
			Logging: LoggingConfig{
				Level:      "info",
				Directory:  "logs",
				MaxBackups: 5,
			},
			Extensions: applyExtensionDefaults(nil),
		},
	}
}

// Load reads configuration from a JSON file.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	cfg.ApplicationData.Extensions = applyExtensionDefaults(cfg.ApplicationData.Extensions)
	log.Info().Str("path", configPath).Int("servers", len(cfg.Servers)).Msg("configuration loaded")

	// Re-save config to persist any new default fields added in code updates.
	// This ensures config.json always reflects the complete set of options.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetServers returns a copy of the configured fleet.
func (c *Config) GetServers() []ServerData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ServerData, len(c.Servers))
	copy(out, c.Servers)
	return out
}

// GetServer returns one server's configuration by ID.
func (c *Config) GetServer(id string) (ServerData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.Servers {
		if s.ID == id {
			return s, true
		}
	}
	return ServerData{}, false
}

// GetApplicationData returns a copy of the application configuration.
func (c *Config) GetApplicationData() ApplicationData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ApplicationData
}

// SetApplicationData updates the application configuration.
func (c *Config) SetApplicationData(data ApplicationData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ApplicationData = data
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}
