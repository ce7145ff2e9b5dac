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

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/mouneyrac/moodle-local-hub/internal/api"
	"github.com/mouneyrac/moodle-local-hub/internal/auth"
	"github.com/mouneyrac/moodle-local-hub/internal/authz"
	"github.com/mouneyrac/moodle-local-hub/internal/config"
	"github.com/mouneyrac/moodle-local-hub/internal/db"
	"github.com/mouneyrac/moodle-local-hub/internal/hub"
	"github.com/mouneyrac/moodle-local-hub/internal/quota"
	"github.com/mouneyrac/moodle-local-hub/internal/store"
	"github.com/mouneyrac/moodle-local-hub/internal/store/memory"
	"github.com/mouneyrac/moodle-local-hub/internal/store/postgres"
	"github.com/mouneyrac/moodle-local-hub/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the hub directory server",
	Long: `Start the hub directory server.

The server requires a configuration file (--config) that specifies:
- The hub descriptor advertised to registering sites
- The publication quota and capability grants
- The storage backend (postgres or memory) and connection settings`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second
	serverRequestTimeout   = 10 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 15 * time.Second // Must be > serverRequestTimeout to let middleware handle timeout
	serverIdleTimeout      = 60 * time.Second
)

func init() {
	serveCmd.Flags().String("address", "", "Address to listen on (overrides the config file)")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address"))
	if err != nil {
		slog.Error("Failed to bind address flag", "error", err)
		os.Exit(1)
	}
	err = viper.BindPFlag("config", serveCmd.Flags().Lookup("config"))
	if err != nil {
		slog.Error("Failed to bind config flag", "error", err)
		os.Exit(1)
	}

	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Failed to mark config flag as required", "error", err)
		os.Exit(1)
	}
}

// buildStore selects and connects the directory store backend.
func buildStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	switch cfg.GetStorageDriver() {
	case config.StorageDriverMemory:
		slog.Info("Using in-memory storage, data will not survive restarts")
		return memory.New(), func() {}, nil
	case config.StorageDriverPostgres:
		pool, err := db.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return postgres.New(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// buildChecker builds the capability checker, honoring config overrides.
func buildChecker(cfg *config.Config) authz.Checker {
	if len(cfg.Capabilities.Anonymous) > 0 || len(cfg.Capabilities.Site) > 0 {
		return authz.NewStaticChecker(cfg.Capabilities.Anonymous, cfg.Capabilities.Site)
	}
	return authz.DefaultChecker()
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configPath := viper.GetString("config")
	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	address := viper.GetString("address")
	if address == "" {
		address = cfg.GetServerAddress()
	}

	slog.Info("Starting hub directory server",
		"address", address, "hub", cfg.Hub.Name, "storage", cfg.GetStorageDriver())

	st, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	limiter := &quota.Limiter{DefaultMax: cfg.Quota.MaxCoursesPerDay}
	svc := hub.New(st, limiter, hub.LocalCredentials{}, hub.InfoConfig{
		Name:         cfg.Hub.Name,
		Description:  cfg.Hub.Description,
		ContactName:  cfg.Hub.ContactName,
		ContactEmail: cfg.Hub.ContactEmail,
		Logo:         cfg.Hub.Logo,
		Privacy:      cfg.Hub.Privacy,
		Language:     cfg.Hub.Language,
		URL:          cfg.Hub.URL,
	}, slog.Default())

	router := api.NewServer(svc, st, buildChecker(cfg),
		api.WithMiddlewares(
			middleware.RequestID,
			middleware.RealIP,
			telemetry.Middleware,
			api.LoggingMiddleware(slog.Default()),
			middleware.Recoverer,
			middleware.Timeout(serverRequestTimeout),
			auth.Middleware(st),
		),
	)

	readTimeout := serverReadTimeout
	if cfg.Server.ReadTimeoutSeconds > 0 {
		readTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	}
	writeTimeout := serverWriteTimeout
	if cfg.Server.WriteTimeoutSeconds > 0 {
		writeTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	}

	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "address", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Server shutdown complete")
	return nil
}
