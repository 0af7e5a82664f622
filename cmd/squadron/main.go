// Squadron - Game Server Admin Console Backend
//
// Squadron maintains one authenticated remote-console session per
// configured game server, converts chat/connection/teamkill broadcasts
// into a queryable event history, fans live events out to WebSocket
// subscribers, and exposes a REST API for ad-hoc admin commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/squadron-project/squadron/internal/api"
	"github.com/squadron-project/squadron/internal/cli"
	"github.com/squadron-project/squadron/internal/config"
	"github.com/squadron-project/squadron/internal/feed"
	"github.com/squadron-project/squadron/internal/gateway"
	"github.com/squadron-project/squadron/internal/session"
	"github.com/squadron-project/squadron/internal/store"
	"github.com/squadron-project/squadron/internal/telemetry"
	"github.com/squadron-project/squadron/internal/util"
)

const (
	AppName    = "Squadron"
	AppVersion = "1.0.0"
	Banner     = `
  _____                       _
 / ____|                     | |
| (___   __ _ _   _  __ _  __| |_ __ ___  _ __
 \___ \ / _' | | | |/ _' |/ _' | '__/ _ \| '_ \
 ____) | (_| | |_| | (_| | (_| | | | (_) | | | |
|_____/ \__, |\__,_|\__,_|\__,_|_|  \___/|_| |_|
           | |
           |_|  v%s
 Game Server Admin Console Backend
`
)

func main() {
	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	// Defaults first; reconfigured after the config loads.
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting Squadron")

	cfg, err := config.Load(config.DefaultConfigDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	app := cfg.GetApplicationData()

	logCfg := util.LogConfig{
		Level:      app.Logging.Level,
		Directory:  app.Logging.Directory,
		MaxBackups: app.Logging.MaxBackups,
		Console:    true,
	}
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		log.Fatal().Msg("configuration validation failed, please fix the errors above")
	}

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Event store backend
	var eventStore store.Store
	switch app.Storage.Backend {
	case "sqlite":
		if err := util.EnsureDir(filepath.Dir(app.Storage.Path)); err != nil {
			log.Fatal().Err(err).Msg("failed to create storage directory")
		}
		eventStore, err = store.NewSQLiteStore(app.Storage.Path, app.Storage.Retention)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open sqlite event store")
		}
		log.Info().Str("path", app.Storage.Path).Msg("using sqlite event store")
	default:
		eventStore = store.NewMemoryStore(app.Storage.Retention)
		log.Info().Msg("using in-memory event store")
	}

	hub := feed.NewHub(app.Feeds.QueueDepth)
	registry := session.NewRegistry(eventStore, hub)
	gw := gateway.New(registry)

	// One session per configured server
	servers := cfg.GetServers()
	serverIDs := make([]string, 0, len(servers))
	for _, srv := range servers {
		serverIDs = append(serverIDs, srv.ID)
		registry.Add(ctx, session.Config{
			ServerID:       srv.ID,
			Addr:           srv.RconAddr(),
			Password:       srv.RconPassword,
			DialTimeout:    time.Duration(app.Session.DialTimeoutSec) * time.Second,
			CommandTimeout: time.Duration(app.Session.CommandTimeoutSec) * time.Second,
			BackoffMin:     time.Duration(app.Session.BackoffMinSec) * time.Second,
			BackoffMax:     time.Duration(app.Session.BackoffMaxSec) * time.Second,
			StableReset:    time.Duration(app.Session.StableResetSec) * time.Second,
			HealthInterval: time.Duration(app.Session.HealthIntervalSec) * time.Second,
			HealthCommand:  app.Session.HealthCommand,
		})
	}

	apiServer := api.NewServer(cfg, gw, eventStore, hub)

	var mqttHandler *telemetry.MQTTHandler
	if app.MQTT.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(cfg, hub)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	cliHandler := cli.NewCLI(gw, eventStore, cancel)

	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Int("port", app.APIPort).Msg("starting REST API server")
		if err := apiServer.Start(ctx); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx, serverIDs); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting interactive CLI")
		cliHandler.Start(ctx)
	}()

	// ---------------------------------------------------------------
	// Graceful shutdown handling
	// ---------------------------------------------------------------
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errCh:
		log.Error().Err(err).Msg("critical error, initiating shutdown")
	case <-ctx.Done():
		// CLI quit
	}

	log.Info().Msg("initiating graceful shutdown...")
	cancel()

	registry.Shutdown()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("shutdown timed out after 30 seconds, forcing exit")
	}

	if err := eventStore.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close event store")
	}

	log.Info().Msg("Squadron stopped")
}
