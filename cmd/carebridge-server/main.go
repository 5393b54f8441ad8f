package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carebridge/carebridge/internal/config"
	"github.com/carebridge/carebridge/internal/domain/communication"
	"github.com/carebridge/carebridge/internal/domain/compliance"
	"github.com/carebridge/carebridge/internal/domain/patient"
	"github.com/carebridge/carebridge/internal/domain/triage"
	"github.com/carebridge/carebridge/internal/platform/cache"
	"github.com/carebridge/carebridge/internal/platform/db"
	"github.com/carebridge/carebridge/internal/platform/geo"
	"github.com/carebridge/carebridge/internal/platform/llm"
	"github.com/carebridge/carebridge/internal/platform/middleware"
	"github.com/carebridge/carebridge/internal/platform/notification"
	"github.com/carebridge/carebridge/internal/platform/retry"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "carebridge-server",
		Short: "CareBridge patient support API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(auditCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the patient support API server",
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

			count, err := db.NewMigrator(pool, dir).Up(ctx)
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

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
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

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Run a compliance audit from the command line",
		RunE: func(cmd *cobra.Command, args []string) error {
			standards, _ := cmd.Flags().GetStringSlice("standards")

			logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
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

			svc := newComplianceService(cfg, pool, logger)
			res, err := svc.RunAudit(ctx, standards)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringSlice("standards", nil, "Standards to audit (default: all)")
	return cmd
}

func newComplianceService(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) *compliance.Service {
	runner := compliance.NewRunner(
		communication.NewRepoPG(pool),
		patient.NewRepoPG(pool),
		compliance.Capabilities{
			RetentionPolicyDays: cfg.RetentionPolicyDays,
			ErasureSupported:    cfg.ErasureSupported,
			ConsentTracking:     true,
		},
		cfg.AuditCoverageBaseline, logger)
	return compliance.NewService(runner, compliance.NewRepoPG(pool), logger)
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

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

	// Text generation. Without an API key every classifier and agent runs on
	// its deterministic fallback, which keeps development usable offline.
	var gen llm.Generator
	if cfg.LLMAPIKey != "" {
		model, err := llm.NewGoogleAI(ctx, cfg.LLMAPIKey, cfg.LLMModel)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize text generation")
		}
		policy := retry.Default()
		policy.MaxAttempts = cfg.LLMAttempts
		gen = llm.WithRetry(model, policy)
		logger.Info().Str("model", cfg.LLMModel).Msg("text generation enabled")
	} else {
		gen = llm.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
			return "", errors.New("text generation is not configured")
		})
		logger.Warn().Msg("LLM_API_KEY not set; running on keyword fallbacks")
	}

	// Geocoding cache
	var geoCache cache.Cache
	if cfg.RedisURL != "" {
		geoCache, err = cache.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		logger.Info().Msg("redis cache enabled")
	} else {
		geoCache = cache.NewMemory()
	}
	geocoder := geo.NewGoogleGeocoder(cfg.MapsAPIKey, geoCache)

	// Outbound email
	var sender notification.EmailSender
	if cfg.SMTPHost != "" {
		sender = notification.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.SMTPPassword)
	} else {
		sender = &notification.MockEmailSender{}
		logger.Warn().Msg("SMTP_HOST not set; doctor alerts are logged, not delivered")
	}
	notifier := notification.NewManager(sender, notification.NewTemplateEngine())

	// Repositories and services
	patientRepo := patient.NewRepoPG(pool)
	patientSvc := patient.NewService(patientRepo, cfg.ErasureSupported)

	commRepo := communication.NewRepoPG(pool)
	chatRepo := communication.NewChatRepoPG(pool)
	commSvc := communication.NewService(commRepo, chatRepo)

	supervisor := triage.NewSupervisor(gen, logger)
	severity := triage.NewSeverityGrader(gen, logger)
	agents := map[string]triage.Node{
		triage.RouteClinical:  triage.NewClinicalAgent(gen, patientSvc, logger),
		triage.RouteEmergency: triage.NewEmergencyAgent(geocoder, cfg.ClinicRadiusKm, cfg.EmergencyNumber, logger),
		triage.RoutePersonal:  triage.NewPersonalAgent(gen, patientSvc, commSvc, logger),
		triage.RouteFAQ:       triage.NewFAQAgent(gen, logger),
	}
	graph, err := triage.NewGraph(supervisor, severity, agents, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to assemble conversation graph")
	}
	triageSvc := triage.NewService(graph, commSvc, triage.NewSummarizer(gen, logger), notifier, cfg.DoctorAlertEmail, logger)

	auditSvc := newComplianceService(cfg, pool, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	e.GET("/health", db.HealthHandler(pool))

	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)
	communication.NewHandler(commSvc).RegisterRoutes(apiV1)
	triage.NewHandler(triageSvc).RegisterRoutes(apiV1)
	compliance.NewHandler(auditSvc).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()
	logger.Info().Str("port", cfg.Port).Msg("server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
		return err
	}
	logger.Info().Msg("server stopped cleanly")
	return nil
}
