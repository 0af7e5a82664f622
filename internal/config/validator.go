package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateServers(cfg.Servers, result)
	validateApplicationData(&cfg.ApplicationData, result)

	return result
}

func validateServers(servers []ServerData, result *ValidationResult) {
	if len(servers) == 0 {
		result.AddWarning("servers", "no servers configured, nothing will be monitored")
	}

	seen := make(map[string]bool, len(servers))
	for i, s := range servers {
		field := fmt.Sprintf("servers[%d]", i)

		if strings.TrimSpace(s.ID) == "" {
			result.AddError(field+".id", "server id is required")
		} else if seen[s.ID] {
			result.AddError(field+".id", fmt.Sprintf("duplicate server id %q", s.ID))
		}
		seen[s.ID] = true

		if strings.TrimSpace(s.Host) == "" && strings.TrimSpace(s.RconHost) == "" {
			result.AddError(field+".host", "server host is required")
		}

		if strings.TrimSpace(s.RconPassword) == "" {
			result.AddError(field+".rcon_password", "rcon password is required")
		}

		if s.RconPort != 0 {
			validatePort(s.RconPort, field+".rcon_port", result)
		}
		if s.GamePort != 0 {
			validatePort(s.GamePort, field+".game_port", result)
		}
	}
}

func validateApplicationData(data *ApplicationData, result *ValidationResult) {
	validatePort(data.APIPort, "application_data.api_port", result)

	// Session policy
	if data.Session.CommandTimeoutSec < 1 {
		result.AddError("application_data.session.command_timeout_sec",
			"command timeout must be at least 1 second")
	}
	if data.Session.BackoffMinSec < 1 {
		result.AddError("application_data.session.backoff_min_sec",
			"minimum backoff must be at least 1 second")
	}
	if data.Session.BackoffMaxSec < data.Session.BackoffMinSec {
		result.AddError("application_data.session.backoff_max_sec",
			"maximum backoff must not be below minimum backoff")
	}
	if data.Session.HealthIntervalSec < 5 {
		result.AddWarning("application_data.session.health_interval_sec",
			"health interval less than 5s may cause excessive probe traffic")
	}

	// Storage
	switch data.Storage.Backend {
	case "memory", "sqlite":
	default:
		result.AddError("application_data.storage.backend",
			fmt.Sprintf("unknown backend %q (must be memory or sqlite)", data.Storage.Backend))
	}
	if data.Storage.Backend == "sqlite" && strings.TrimSpace(data.Storage.Path) == "" {
		result.AddError("application_data.storage.path", "sqlite backend requires a database path")
	}
	if data.Storage.Retention < 100 {
		result.AddWarning("application_data.storage.retention_per_type",
			"retention below 100 events per type leaves very little history")
	}

	// Feeds
	if data.Feeds.QueueDepth < 1 {
		result.AddError("application_data.feeds.queue_depth", "queue depth must be at least 1")
	}

	// MQTT
	if data.MQTT.Enabled {
		if strings.TrimSpace(data.MQTT.BrokerURL) == "" {
			result.AddError("application_data.mqtt.broker_url", "MQTT broker URL is required when enabled")
		}
		if data.MQTT.Port < 1 || data.MQTT.Port > 65535 {
			result.AddError("application_data.mqtt.port", "invalid MQTT port")
		}
	}

	// Security
	if data.Security.TLSEnabled {
		if strings.TrimSpace(data.Security.TLSCertFile) == "" {
			result.AddError("application_data.security.tls_cert_file",
				"TLS certificate file is required when TLS is enabled")
		}
		if strings.TrimSpace(data.Security.TLSKeyFile) == "" {
			result.AddError("application_data.security.tls_key_file",
				"TLS key file is required when TLS is enabled")
		}
	}

	if !data.Security.AuthDisabled && len(data.Security.BearerTokens) == 0 {
		result.AddError("application_data.security.bearer_tokens",
			"at least one bearer token is required unless auth is disabled")
	}

	if data.Security.AuthDisabled {
		result.AddWarning("application_data.security.auth_disabled",
			"API authentication is disabled, anyone can execute admin commands")
	}

	if data.Security.RateLimitRPS < 1 {
		result.AddWarning("application_data.security.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
	}

	validateExtensions(data.Extensions, result)
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

// IsPortAvailable checks if a port is available for binding.
func IsPortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
