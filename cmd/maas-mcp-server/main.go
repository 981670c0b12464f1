// MAAS MCP bridge server: exposes a bare-metal provisioning upstream through
// the Model Context Protocol, with long-running operation tracking and a
// resource cache.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lspecian/maas-mcp-server-sub007/pkg/api"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/cache"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/config"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/maas"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/mcp"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/progress"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/resources"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/tools"
	"github.com/lspecian/maas-mcp-server-sub007/pkg/version"
)

// shutdownTimeout bounds the HTTP drain on SIGINT/SIGTERM.
const shutdownTimeout = 15 * time.Second

func main() {
	envFile := flag.String("env-file", ".env", "Path to an optional .env file")
	flag.Parse()

	// 1. Environment
	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envFile, "error", err)
	} else {
		slog.Info("Loaded environment", "path", *envFile)
	}

	// 2. Configuration
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.SetLogLoggerLevel(cfg.LogLevel)
	slog.Info("Starting MAAS MCP server",
		"version", version.GitCommit,
		"port", cfg.MCPPort,
		"cache_strategy", cfg.CacheStrategy)

	// 3. Upstream client
	client, err := maas.NewClient(cfg.MAASAPIURL, cfg.MAASAPIKey, cfg.MAASAPITimeout)
	if err != nil {
		slog.Error("Failed to create MAAS client", "error", err)
		os.Exit(1)
	}

	// 4. Resource cache
	store, err := cache.NewStore(cache.Config{
		Enabled:    cfg.CacheEnabled,
		Strategy:   cfg.CacheStrategy,
		MaxSize:    cfg.CacheMaxSize,
		DefaultTTL: cfg.CacheMaxAge,
	})
	if err != nil {
		slog.Error("Failed to create cache store", "error", err)
		os.Exit(1)
	}

	// 5. Operation tracker
	tracker := progress.NewTracker(progress.Options{
		BufferSize:        cfg.EventBufferSize,
		HeartbeatInterval: cfg.HeartbeatInterval,
		DisconnectTimeout: cfg.DisconnectTimeout,
	})

	// 6. Tool and resource registries
	toolRegistry := mcp.NewToolRegistry()
	if err := tools.RegisterAll(toolRegistry, tools.Deps{
		Client:  client,
		Tracker: tracker,
		Cache:   store,
	}); err != nil {
		slog.Error("Failed to register tools", "error", err)
		os.Exit(1)
	}
	resourceRegistry := mcp.NewResourceRegistry(store)
	if err := resources.RegisterAll(resourceRegistry, client); err != nil {
		slog.Error("Failed to register resources", "error", err)
		os.Exit(1)
	}
	slog.Info("Registries initialized",
		"tools", len(toolRegistry.List()),
		"resources", len(resourceRegistry.List()))

	// 7. Dispatcher and HTTP server
	dispatcher := mcp.NewDispatcher(toolRegistry, resourceRegistry, version.AppName, version.GitCommit)
	server := api.NewServer(api.Config{
		Addr:       fmt.Sprintf(":%d", cfg.MCPPort),
		Dispatcher: dispatcher,
		Tracker:    tracker,
	})

	// 8. Serve until signal
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("HTTP server error", "error", err)
		tracker.Shutdown()
		os.Exit(1)
	}

	// 9. Graceful shutdown: drain HTTP, then finalize operations.
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("HTTP shutdown error", "error", err)
	}
	tracker.Shutdown()
	slog.Info("Shutdown complete")
}
