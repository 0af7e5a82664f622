package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, DefaultAPIPort, cfg.ApplicationData.APIPort)
	assert.Equal(t, "memory", cfg.ApplicationData.Storage.Backend)
	assert.FileExists(t, filepath.Join(dir, DefaultConfigFile))
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	partial := `{
		"servers": [{"id": "eu-1", "host": "10.0.0.5", "rcon_port": 21114, "rcon_password": "secret"}],
		"application_data": {"api_port": 9000}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(partial), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.ApplicationData.APIPort)
	// Unspecified sections keep their defaults.
	assert.Equal(t, "ShowCurrentMap", cfg.ApplicationData.Session.HealthCommand)
	assert.Equal(t, 5000, cfg.ApplicationData.Storage.Retention)

	require.Len(t, cfg.Servers, 1)
	assert.Equal(t, "10.0.0.5:21114", cfg.Servers[0].RconAddr())
}

func TestRconAddrFallbacks(t *testing.T) {
	s := ServerData{Host: "game.example.net"}
	assert.Equal(t, "game.example.net:21114", s.RconAddr())

	s.RconHost = "rcon.example.net"
	s.RconPort = 27020
	assert.Equal(t, "rcon.example.net:27020", s.RconAddr())
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)

	app := cfg.GetApplicationData()
	app.Storage.Backend = "sqlite"
	cfg.SetApplicationData(app)
	require.NoError(t, cfg.Save())

	data, err := os.ReadFile(cfg.Path())
	require.NoError(t, err)
	var onDisk map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &onDisk))

	reloaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", reloaded.ApplicationData.Storage.Backend)
}

func TestValidateFlagsMissingCredentials(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Servers = []ServerData{
		{ID: "eu-1", Host: "10.0.0.5", RconPassword: ""},
		{ID: "eu-1", Host: "10.0.0.6", RconPassword: "secret"},
	}
	cfg.ApplicationData.Security.BearerTokens = []string{"token"}

	result := Validate(cfg)
	assert.False(t, result.IsValid())

	fields := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		fields = append(fields, e.Field)
	}
	assert.Contains(t, fields, "servers[0].rcon_password")
	assert.Contains(t, fields, "servers[1].id") // duplicate
}

func TestValidateStorageBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplicationData.Security.AuthDisabled = true
	cfg.ApplicationData.Storage.Backend = "redis"

	result := Validate(cfg)
	assert.False(t, result.IsValid())
}

func TestLoadFillsExtensionDefaults(t *testing.T) {
	dir := t.TempDir()
	partial := `{
		"application_data": {
			"security": {"auth_disabled": true},
			"extensions": {"seeding": {"enabled": true}}
		}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(partial), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	ext := cfg.ApplicationData.Extensions
	require.Contains(t, ext, "seeding")
	assert.Equal(t, true, ext["seeding"]["enabled"])
	// Unspecified settings get their schema defaults.
	assert.Equal(t, 40, ext["seeding"]["player_threshold"])
	require.Contains(t, ext, "chat_filter")
	assert.Equal(t, "warn", ext["chat_filter"]["action"])
}

func TestValidateExtensionSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplicationData.Security.BearerTokens = []string{"token"}
	cfg.ApplicationData.Extensions["seeding"]["player_threshold"] = 500

	result := Validate(cfg)
	assert.False(t, result.IsValid())

	cfg.ApplicationData.Extensions["seeding"]["player_threshold"] = 50
	result = Validate(cfg)
	assert.True(t, result.IsValid())

	// Settings for an extension this build does not know warn only.
	cfg.ApplicationData.Extensions["holiday_theme"] = map[string]interface{}{"enabled": true}
	result = Validate(cfg)
	assert.True(t, result.IsValid())
	assert.NotEmpty(t, result.Warnings)
}

func TestValidateRequiresTokensWhenAuthEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplicationData.Security.AuthDisabled = false
	cfg.ApplicationData.Security.BearerTokens = nil

	result := Validate(cfg)
	assert.False(t, result.IsValid())

	cfg.ApplicationData.Security.BearerTokens = []string{"token"}
	result = Validate(cfg)
	assert.True(t, result.IsValid())
}
