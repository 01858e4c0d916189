package main

import (
	"context"
	crypto_rand "crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/radbridge/radbridge/internal/config"
	"github.com/radbridge/radbridge/internal/domain/appointment"
	"github.com/radbridge/radbridge/internal/domain/imaging"
	"github.com/radbridge/radbridge/internal/domain/ordersync"
	"github.com/radbridge/radbridge/internal/domain/patient"
	"github.com/radbridge/radbridge/internal/domain/study"
	"github.com/radbridge/radbridge/internal/platform/auth"
	"github.com/radbridge/radbridge/internal/platform/blobstore"
	"github.com/radbridge/radbridge/internal/platform/db"
	"github.com/radbridge/radbridge/internal/platform/middleware"
	"github.com/radbridge/radbridge/internal/platform/pacs"
	"github.com/radbridge/radbridge/internal/platform/ris"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "radbridge-server",
		Short: "Radiology scheduling and RIS/PACS bridge API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(syncCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

// syncCmd runs a single RIS order reconciliation pass from the command line,
// useful for cron-driven deployments that do not want to call the HTTP API.
func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run RIS synchronization tasks",
	}

	ordersCmd := &cobra.Command{
		Use:   "orders",
		Short: "Fetch pending RIS orders and reconcile them into local studies",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			risClient := ris.NewClient(cfg.RISBaseURL, cfg.RISAPIKey, cfg.RISTimeout(), cfg.RISMaxRetries, logger)
			patientSvc := patient.NewService(patient.NewPatientRepoPG(pool), risClient, logger)
			mapper := ordersync.NewStatusMapper(logger)
			syncSvc := ordersync.NewService(risClient, patientSvc,
				study.NewStudyRepoPG(pool), study.NewReportRepoPG(pool),
				ordersync.NewSyncLogRepoPG(pool), mapper,
				cfg.SyncWorkers, cfg.RISOrderLimit, logger)

			result, err := syncSvc.SyncPendingOrders(ctx)
			if err != nil {
				return fmt.Errorf("order sync failed: %w", err)
			}

			fmt.Printf("Orders: %d total, %d created, %d updated, %d failed.\n",
				result.Total, result.Created, result.Updated, result.Failed)
			for _, e := range result.Errors {
				fmt.Printf("  order %s: %s\n", e.OrderID, e.Reason)
			}
			return nil
		},
	}
	cmd.AddCommand(ordersCmd)

	return cmd
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// External system clients
	risClient := ris.NewClient(cfg.RISBaseURL, cfg.RISAPIKey, cfg.RISTimeout(), cfg.RISMaxRetries, logger)
	pacsClient := pacs.NewClient(cfg.PACSBaseURL, cfg.PACSAuthToken, cfg.PACSTimeout(), cfg.PACSMaxRetries, logger)

	// Blob storage for imported DICOM instances
	blobs, err := newBlobStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize blob store")
	}

	// Repositories
	patientRepo := patient.NewPatientRepoPG(pool)
	apptRepo := appointment.NewAppointmentRepoPG(pool)
	studyRepo := study.NewStudyRepoPG(pool)
	reportRepo := study.NewReportRepoPG(pool)
	fileRepo := imaging.NewFileRepoPG(pool)
	syncLogRepo := ordersync.NewSyncLogRepoPG(pool)

	// Services
	patientSvc := patient.NewService(patientRepo, risClient, logger)
	apptSvc := appointment.NewService(apptRepo, logger)
	studySvc := study.NewService(studyRepo, reportRepo, logger)
	importer := imaging.NewImporter(pacsClient, studyRepo, fileRepo, blobs, cfg.ImportWorkers, logger)
	mapper := ordersync.NewStatusMapper(logger)
	syncSvc := ordersync.NewService(risClient, patientSvc, studyRepo, reportRepo,
		syncLogRepo, mapper, cfg.SyncWorkers, cfg.RISOrderLimit, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M", "10M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		secret, generated, err := resolveJWTSecret(cfg.AuthJWTSecret)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to resolve JWT secret")
		}
		if generated {
			logger.Warn().Msg("AUTH_JWT_SECRET not set; generated a random secret, tokens will not survive restarts")
		}
		e.Use(auth.JWTMiddleware(secret))
	}

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))

	// Domain routes
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)
	appointment.NewHandler(apptSvc).RegisterRoutes(apiV1)
	study.NewHandler(studySvc).RegisterRoutes(apiV1)
	imaging.NewHandler(importer).RegisterRoutes(apiV1)
	ordersync.NewHandler(syncSvc).RegisterRoutes(apiV1)
	blobstore.NewHandler(blobs).RegisterRoutes(apiV1)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newBlobStore(cfg *config.Config) (blobstore.BlobStore, error) {
	switch cfg.BlobBackend {
	case "memory":
		return blobstore.NewInMemoryStore(), nil
	default:
		return blobstore.NewFSStore(cfg.BlobDir)
	}
}

// resolveJWTSecret returns the HMAC secret from the AUTH_JWT_SECRET value,
// decoding hex when the value looks like hex, or generates a random 32-byte
// secret. The second return value is true when a random secret was generated.
func resolveJWTSecret(envValue string) ([]byte, bool, error) {
	if envValue != "" {
		if decoded, err := hex.DecodeString(envValue); err == nil {
			return decoded, false, nil
		}
		return []byte(envValue), false, nil
	}
	secret := make([]byte, 32)
	if _, err := crypto_rand.Read(secret); err != nil {
		return nil, false, fmt.Errorf("failed to generate random JWT secret: %w", err)
	}
	return secret, true, nil
}
