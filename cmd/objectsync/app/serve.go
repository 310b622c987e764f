package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/openbridge/objectsync/internal/api"
	v1 "github.com/openbridge/objectsync/internal/api/v1"
	"github.com/openbridge/objectsync/internal/config"
	"github.com/openbridge/objectsync/internal/db"
	"github.com/openbridge/objectsync/internal/httpclient"
	"github.com/openbridge/objectsync/internal/register"
	"github.com/openbridge/objectsync/internal/sources"
	"github.com/openbridge/objectsync/internal/store"
	pkgsync "github.com/openbridge/objectsync/internal/sync"
	"github.com/openbridge/objectsync/internal/sync/coordinator"
	"github.com/openbridge/objectsync/internal/targets"
	"github.com/openbridge/objectsync/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the synchronization server",
	Long: `Start the synchronization server.

The server loads synchronization definitions, schedules periodic runs in
the background and exposes a REST API for inspecting and triggering runs.

The configuration file (--config) specifies the storage backend, the
scheduler interval, telemetry settings and where definitions are loaded
from. See examples/ for sample configurations.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 60 * time.Second // Runs triggered over the API execute synchronously
	serverIdleTimeout      = 60 * time.Second
	sourceRequestTimeout   = 30 * time.Second
)

func init() {
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")
	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		panic(err)
	}
}

// runtime holds everything serve and run need after wiring.
type runtime struct {
	cfg          *config.Config
	stores       *store.Stores
	orchestrator *pkgsync.Orchestrator
	pool         *pgxpool.Pool
	telemetry    *telemetry.Telemetry
}

func (rt *runtime) close(ctx context.Context) {
	if rt.telemetry != nil {
		if err := rt.telemetry.Shutdown(ctx); err != nil {
			slog.Error("Failed to shut down telemetry", "error", err)
		}
	}
	if rt.pool != nil {
		rt.pool.Close()
	}
}

// buildRuntime loads the configuration and wires the synchronization
// pipeline: stores, source and target handlers, rule engine, enrichment
// and the run orchestrator.
func buildRuntime(ctx context.Context, configPath string) (*runtime, error) {
	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	var pool *pgxpool.Pool
	if cfg.GetStorageType() == store.StorageTypeDatabase {
		pool, err = db.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
	}

	stores, err := store.NewStores(cfg.GetStorageType(), pool)
	if err != nil {
		return nil, err
	}

	if cfg.DefinitionsPath != "" {
		definitions, err := config.LoadDefinitions(cfg.DefinitionsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load definitions: %w", err)
		}
		for _, def := range definitions {
			if err := stores.Synchronizations.Upsert(ctx, def); err != nil {
				return nil, fmt.Errorf("failed to store definition %s: %w", def.ID, err)
			}
		}
		slog.Info("Loaded synchronization definitions",
			"path", cfg.DefinitionsPath,
			"count", len(definitions))
	}

	client := httpclient.NewDefaultClient(sourceRequestTimeout)
	reg := register.NewMemoryRegister()

	syncMetrics, err := telemetry.NewSyncMetrics(tel.MeterProvider())
	if err != nil {
		return nil, fmt.Errorf("failed to create sync metrics: %w", err)
	}

	var factoryOpts []sources.FactoryOption
	if pool != nil {
		factoryOpts = append(factoryOpts, sources.WithQuerier(pool))
	}

	orchestrator := pkgsync.NewOrchestrator(
		stores,
		sources.NewHandlerFactory(client, reg, factoryOpts...),
		targets.NewRegistry(client, reg),
		pkgsync.WithMetrics(syncMetrics),
		pkgsync.WithTracerProvider(tel.TracerProvider()),
		pkgsync.WithLogRetention(cfg.GetLogRetention()),
		pkgsync.WithEnricher(sources.NewEnricher(client)),
	)

	return &runtime{
		cfg:          cfg,
		stores:       stores,
		orchestrator: orchestrator,
		pool:         pool,
		telemetry:    tel,
	}, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}

	rt, err := buildRuntime(ctx, configPath)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	syncCoordinator := coordinator.New(rt.orchestrator, rt.stores,
		coordinator.WithRunInterval(rt.cfg.GetSyncInterval()))

	coordCtx, coordCancel := context.WithCancel(ctx)
	defer coordCancel()
	go func() {
		if err := syncCoordinator.Start(coordCtx); err != nil {
			slog.Error("Sync coordinator failed", "error", err)
		}
	}()

	httpMetrics, err := telemetry.NewHTTPMetrics(rt.telemetry.MeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create HTTP metrics: %w", err)
	}

	router := api.NewServer(
		v1.NewRoutes(rt.stores, rt.orchestrator),
		api.WithMiddlewares(
			telemetry.TracingMiddleware(rt.telemetry.TracerProvider()),
			httpMetrics.Middleware,
		),
	)

	address := rt.cfg.GetListenAddress()
	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	go func() {
		slog.Info("Server listening", "address", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	if err := syncCoordinator.Stop(); err != nil {
		slog.Error("Failed to stop sync coordinator", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return err
	}

	slog.Info("Server shutdown complete")
	return nil
}
