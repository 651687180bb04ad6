package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/practicehq/practice/internal/config"
	"github.com/practicehq/practice/internal/domain/admin"
	"github.com/practicehq/practice/internal/domain/billing"
	"github.com/practicehq/practice/internal/domain/messaging"
	"github.com/practicehq/practice/internal/domain/patient"
	"github.com/practicehq/practice/internal/domain/provider"
	"github.com/practicehq/practice/internal/domain/referral"
	"github.com/practicehq/practice/internal/domain/reporting"
	"github.com/practicehq/practice/internal/domain/scheduling"
	"github.com/practicehq/practice/internal/platform/audit"
	"github.com/practicehq/practice/internal/platform/auth"
	"github.com/practicehq/practice/internal/platform/cache"
	"github.com/practicehq/practice/internal/platform/db"
	"github.com/practicehq/practice/internal/platform/gateway"
	"github.com/practicehq/practice/internal/platform/middleware"
	"github.com/practicehq/practice/internal/platform/notify"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "practice-server",
		Short: "Practice management API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())

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
			schema, _ := cmd.Flags().GetString("schema")
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
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
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
			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
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
	statusCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new tenant schema and run migrations against it",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			dir, _ := cmd.Flags().GetString("dir")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

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

			fmt.Printf("Creating tenant schema: tenant_%s\n", name)
			if err := db.CreateTenantSchema(ctx, pool, name, dir); err != nil {
				return err
			}
			fmt.Println("Tenant created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Tenant identifier (alphanumeric)")
	createCmd.Flags().String("dir", "./migrations", "Path to migrations directory")

	cmd.AddCommand(createCmd)
	return cmd
}

// registerTemplates installs the notification templates the domain
// services dispatch with.
func registerTemplates(d *notify.Dispatcher) error {
	if err := d.RegisterTemplate("appointment-reminder",
		"Upcoming appointment reminder",
		"You have an appointment on {{.Time}}. Reason: {{.Reason}}."); err != nil {
		return err
	}
	return d.RegisterTemplate("direct-message",
		"New message from {{.Sender}}",
		"{{.Body}}")
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

	reportCache, err := cache.New(cfg.RedisURL, cfg.ReportTTL())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	if reportCache == nil {
		logger.Warn().Msg("REDIS_URL not set; report caching disabled")
	} else {
		defer reportCache.Close()
	}

	auditLog := audit.NewLogger(pool, logger)
	defer auditLog.Close()

	// Notification dispatcher
	dispatcher := notify.NewDispatcher(logger)
	if err := registerTemplates(dispatcher); err != nil {
		logger.Fatal().Err(err).Msg("failed to register notification templates")
	}
	if cfg.ResendAPIKey != "" {
		dispatcher.RegisterSender(notify.ChannelEmail, notify.NewEmailSender(cfg.ResendAPIKey, cfg.EmailFrom))
	} else {
		logger.Warn().Msg("RESEND_API_KEY not set; email delivery disabled")
	}
	dispatcher.RegisterSender(notify.ChannelSMS, notify.NewLogSMSSender(logger))

	// Clearinghouse gateway
	gw := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))
	e.Use(echomw.BodyLimit("2M"))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.JWTSecret),
		}))
	}

	e.Use(db.TenantMiddleware(pool, cfg.DefaultTenant))
	e.Use(audit.Middleware(auditLog))

	e.GET("/health", db.HealthHandler(pool))

	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.RequestTimeout(30 * time.Second))

	runTx := db.NewTxRunner(pool)

	// Patient domain
	patientSvc := patient.NewService(patient.NewRepoPG(pool))
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)

	// Provider domain
	providerSvc := provider.NewService(provider.NewRepoPG(pool))
	provider.NewHandler(providerSvc).RegisterRoutes(apiV1)

	// Scheduling domain
	schedSvc := scheduling.NewService(scheduling.NewRepoPG(pool), patientSvc, providerSvc, runTx, logger)
	schedSvc.SetDispatcher(dispatcher)
	scheduling.NewHandler(schedSvc).RegisterRoutes(apiV1)

	// Billing domain
	billSvc := billing.NewService(billing.NewRepoPG(pool), patientSvc, gw, runTx, logger)
	billSvc.SetEligibilityChecker(gw)
	billing.NewHandler(billSvc).RegisterRoutes(apiV1)

	// Referral domain
	refSvc := referral.NewService(referral.NewRepoPG(pool), patientSvc, providerSvc, gw, logger)
	refSvc.SetAppointmentGate(schedSvc)
	referral.NewHandler(refSvc).RegisterRoutes(apiV1)

	// Messaging domain
	msgSvc := messaging.NewService(messaging.NewRepoPG(pool), patientSvc, dispatcher, runTx, logger)
	messaging.NewHandler(msgSvc).RegisterRoutes(apiV1)

	// Reporting domain
	reportSvc := reporting.NewService(reporting.NewRepoPG(pool), reportCache, logger)
	reporting.NewHandler(reportSvc).RegisterRoutes(apiV1)

	// Admin domain
	adminSvc := admin.NewService(admin.NewRepoPG(pool), logger)
	admin.NewHandler(adminSvc, auditLog).RegisterRoutes(apiV1)

	apiV1.GET("/notifications/attempts", notify.AttemptsHandler(dispatcher), auth.RequireRole("admin"))

	// Background workers. Both run against the default tenant; additional
	// tenants get their own deployments today.
	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()

	go runReminderWorker(workerCtx, pool, cfg, schedSvc, patientSvc, logger)
	go runDeliveryWorker(workerCtx, pool, cfg.DefaultTenant, msgSvc, logger)

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// runReminderWorker periodically dispatches reminders for appointments
// starting within the configured window.
func runReminderWorker(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config,
	schedSvc *scheduling.Service, patientSvc *patient.Service, logger zerolog.Logger) {

	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()

	recipientFor := func(ctx context.Context, patientID uuid.UUID) (string, error) {
		p, err := patientSvc.Get(ctx, patientID)
		if err != nil {
			return "", err
		}
		if p.Email == nil {
			return "", nil
		}
		return *p.Email, nil
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tctx, release, err := db.WithTenant(ctx, pool, cfg.DefaultTenant)
			if err != nil {
				logger.Error().Err(err).Msg("reminder worker: tenant setup failed")
				continue
			}
			if err := schedSvc.SendReminders(tctx, cfg.ReminderWindow(), recipientFor); err != nil {
				logger.Error().Err(err).Msg("reminder worker failed")
			}
			release()
		}
	}
}

// runDeliveryWorker drains queued messages through the dispatcher.
func runDeliveryWorker(ctx context.Context, pool *pgxpool.Pool, tenant string,
	msgSvc *messaging.Service, logger zerolog.Logger) {

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tctx, release, err := db.WithTenant(ctx, pool, tenant)
			if err != nil {
				logger.Error().Err(err).Msg("delivery worker: tenant setup failed")
				continue
			}
			n, err := msgSvc.DeliverQueued(tctx)
			if err != nil {
				logger.Error().Err(err).Msg("delivery worker failed")
			} else if n > 0 {
				logger.Info().Int("delivered", n).Msg("messages delivered")
			}
			release()
		}
	}
}
