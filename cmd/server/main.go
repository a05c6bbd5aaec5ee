// Package main is the entry point for the luxos-mcp server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/exergy/luxos-mcp/internal/auth"
	"github.com/exergy/luxos-mcp/internal/config"
	"github.com/exergy/luxos-mcp/internal/control"
	"github.com/exergy/luxos-mcp/internal/luxos"
	"github.com/exergy/luxos-mcp/internal/powerlimit"
	"github.com/exergy/luxos-mcp/internal/safety"
	"github.com/exergy/luxos-mcp/internal/telemetry"
	"github.com/exergy/luxos-mcp/internal/tools"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

const defaultConfigPath = "/config/config.yaml"

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	cfg := loadConfig(log)
	config.ApplyEnvOverrides(cfg)

	if err := config.Validate(cfg); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	tokenBefore := cfg.Server.AuthToken
	token, err := config.EnsureAuthToken(cfg)
	if err != nil {
		log.Warn("could not generate auth token, running without authentication", zap.Error(err))
	} else if tokenBefore == "" {
		log.Info("generated auth token (set LUXOS_MCP_AUTH_TOKEN to persist)", zap.String("token", token))
	}

	// Open audit log writer if enabled.
	var auditLogger *safety.AuditLogger
	if cfg.Audit.Enabled {
		f, err := os.OpenFile(cfg.Audit.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			log.Warn("could not open audit log, audit logging disabled",
				zap.String("path", cfg.Audit.LogPath),
				zap.Error(err))
		} else {
			auditLogger = safety.NewAuditLogger(f)
			defer f.Close()
		}
	}

	// Build safety components.
	profileFilter := safety.NewFilter(
		cfg.Safety.Profiles.Allowlist,
		cfg.Safety.Profiles.Denylist,
	)
	confirm := safety.NewConfirmationTracker(control.DestructiveTools)

	// LuxOS device client.
	client, err := luxos.NewHTTPClient(cfg.Miner.Host, cfg.Miner.Port, time.Duration(cfg.Miner.Timeout)*time.Second)
	if err != nil {
		log.Fatal("failed to create miner client", zap.Error(err))
	}

	// Telemetry: collector plus background poller.
	pollInterval := time.Duration(cfg.Miner.PollInterval) * time.Second
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	collector := telemetry.NewCollector(client, log.Named("telemetry"))
	poller := telemetry.NewPoller(collector, pollInterval, log.Named("poller"))
	poller.Start()
	defer poller.Stop()

	// Write side and the adaptive power-limit loop.
	manager := control.NewSessionManager(client, log.Named("control"))
	catalog := powerlimit.NewCatalog(poller, cfg.PowerLimit.ReferenceBoards)
	controller := powerlimit.NewController(catalog, poller, manager, poller, powerlimit.Options{
		Tolerance:          cfg.PowerLimit.Tolerance,
		StabilizationDelay: time.Duration(cfg.PowerLimit.StabilizationDelay) * time.Second,
		MaxAdjustments:     cfg.PowerLimit.MaxAdjustments,
	}, log.Named("powerlimit"))
	defer controller.Stop()

	// Build MCP server.
	mcpServer := server.NewMCPServer(
		"luxos-mcp",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	// Register all tools.
	var registrations []tools.Registration
	registrations = append(registrations, telemetry.TelemetryTools(poller, auditLogger)...)
	registrations = append(registrations, control.ControlTools(manager, profileFilter, confirm, auditLogger)...)
	registrations = append(registrations, powerlimit.PowerLimitTools(controller, auditLogger)...)

	tools.RegisterAll(mcpServer, registrations)

	// Build Streamable HTTP server and wrap with auth middleware.
	httpHandler := server.NewStreamableHTTPServer(mcpServer)
	authMiddleware := auth.NewAuthMiddleware(cfg.Server.AuthToken)
	wrappedHandler := authMiddleware(httpHandler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           wrappedHandler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info("luxos-mcp listening",
			zap.String("addr", addr),
			zap.String("miner", fmt.Sprintf("%s:%d", cfg.Miner.Host, cfg.Miner.Port)))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-stop
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Warn("graceful shutdown error", zap.Error(err))
	}
	log.Info("server stopped")
}

// loadConfig attempts to read the config file from the path specified by
// LUXOS_MCP_CONFIG_PATH or the default /config/config.yaml. If the file
// cannot be read, DefaultConfig is returned.
func loadConfig(log *zap.Logger) *config.Config {
	path := os.Getenv("LUXOS_MCP_CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.Warn("could not load config, using defaults",
			zap.String("path", path),
			zap.Error(err))
		return config.DefaultConfig()
	}

	log.Info("loaded config", zap.String("path", path))
	return cfg
}
