// Command clinic-api serves patient registration and prescription entry
// over HTTP and applies the database migrations.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drfirst/go-clinicrx/internal/api"
	"github.com/drfirst/go-clinicrx/internal/config"
	"github.com/drfirst/go-clinicrx/internal/domain/patient"
	"github.com/drfirst/go-clinicrx/internal/domain/prescription"
	"github.com/drfirst/go-clinicrx/internal/domain/reference"
	"github.com/drfirst/go-clinicrx/internal/infrastructure/postgres"
	"github.com/drfirst/go-clinicrx/internal/observability/logging"
	"github.com/drfirst/go-clinicrx/internal/observability/metrics"
	"github.com/drfirst/go-clinicrx/internal/observability/tracing"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "clinic-api",
		Short:        "Clinic patient and prescription API",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	return root
}

// setup loads and validates configuration and builds the logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns, logger)
			if err != nil {
				logger.Error("cannot reach the database", zap.Error(err))
				return err
			}
			defer pool.Close()

			n, err := postgres.NewMigrator(pool, logger).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", n)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrate, _ := cmd.Flags().GetBool("migrate")
			return serve(cmd.Context(), migrate)
		},
	}
	cmd.Flags().Bool("migrate", false, "Apply pending migrations before serving")
	return cmd
}

func serve(ctx context.Context, migrate bool) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(ctx, tracing.Config{
		ServiceName:    api.ServiceName,
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     cfg.TraceSampleRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(sctx)
	}()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns, logger)
	if err != nil {
		logger.Error("cannot reach the database; check DATABASE_URL and that PostgreSQL is running",
			zap.Error(err))
		return err
	}
	defer pool.Close()

	if migrate {
		if _, err := postgres.NewMigrator(pool, logger).Up(ctx); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	apiKeys, err := cfg.APIKeyMap()
	if err != nil {
		return err
	}
	if cfg.IsDev() && cfg.APIKeys == "" {
		logger.Warn("API_KEYS not set; accepting the development key only")
	}

	reg := metrics.NewRegistry()
	handler := api.NewRouter(api.Deps{
		Patients:      patient.NewRegistry(pool, logger),
		Options:       reference.NewStore(pool, logger),
		Prescriptions: prescription.NewWorkflow(prescription.NewRepository(pool, logger), logger),
		Storage:       pool,
		APIKeys:       apiKeys,
		Metrics:       metrics.New(reg),
		Gatherer:      reg,
		Logger:        logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting clinic API",
			zap.String("port", cfg.Port),
			zap.Bool("trace_export", tp.Exporting()))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(sctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
	return nil
}
