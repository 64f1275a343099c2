package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/scribe/internal/auth"
	"github.com/BradenHooton/scribe/internal/config"
	"github.com/BradenHooton/scribe/internal/database"
	"github.com/BradenHooton/scribe/internal/handlers"
	"github.com/BradenHooton/scribe/internal/metrics"
	middlewareCustom "github.com/BradenHooton/scribe/internal/middleware"
	"github.com/BradenHooton/scribe/internal/models"
	"github.com/BradenHooton/scribe/internal/phi"
	"github.com/BradenHooton/scribe/internal/repositories"
	"github.com/BradenHooton/scribe/internal/routes"
	"github.com/BradenHooton/scribe/internal/services"
	pkghttp "github.com/BradenHooton/scribe/pkg/http"
	pkglogger "github.com/BradenHooton/scribe/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.MigrateOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := db.Migrate(ctx)
		cancel()
		if err != nil {
			logger.Error("failed to apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Repositories used outside a transaction
	userRepo := repositories.NewUserRepository(db.Pool)
	auditRepo := repositories.NewAuditLogRepository(db.Pool)

	// PHI scorer; without one every justification scores zero
	var scorer services.PHIScorer = phi.NoopScorer{}
	if cfg.PHI.ScorerURL != "" {
		scorer = phi.NewClient(cfg.PHI.ScorerURL, cfg.PHI.Timeout, logger)
	} else {
		logger.Warn("PHI_SCORER_URL not set, audit justifications will not be scored")
	}

	// Deletion notices over AWS SES
	var notifier services.Notifier = services.NoopNotifier{}
	if cfg.Email.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		sesNotifier, err := services.NewAWSSESNotifier(ctx, cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
		cancel()
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = sesNotifier
	}

	// Initialize services
	tx := services.NewPgTransactor(db)
	auditLogger := services.NewAuditLogger(scorer, logger)
	lifecycleService := services.NewLifecycleService(tx, auditLogger, notifier, cfg.Lifecycle, logger)
	trialService := services.NewTrialService(tx, auditLogger, cfg.Lifecycle, logger)
	campaignService := services.NewCampaignService(tx, auditLogger, logger)
	complianceService := services.NewComplianceService(auditRepo, logger)

	ipConfig, err := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	if err != nil {
		logger.Error("invalid TRUSTED_PROXIES", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize handlers
	userHandler := handlers.NewAdminUserHandler(lifecycleService, trialService, ipConfig, logger)
	campaignHandler := handlers.NewCampaignHandler(campaignService, ipConfig, logger)
	auditHandler := handlers.NewAuditHandler(complianceService, logger)

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret)

	// Bootstrap first admin if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(ctx, userRepo, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, cfg.Server.Env))
	router.Use(metrics.Middleware)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.Server.WriteTimeout))

	routes.RegisterRoutes(router, userHandler, campaignHandler, auditHandler, tokenManager, userRepo,
		middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.Server.AdminRateLimitRPM}, logger)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health, err := db.HealthCheck(r.Context())
		if err != nil {
			logger.Warn("health check failed", slog.Any("error", err))
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy", "database": health})
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"status": "healthy", "database": health})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureAdminUser creates the first super admin if ADMIN_EMAIL is set.
// Tokens for it are issued by the identity service.
func ensureAdminUser(ctx context.Context, userRepo *repositories.UserRepository, logger *slog.Logger) error {
	adminEmail := strings.TrimSpace(os.Getenv("ADMIN_EMAIL"))
	if adminEmail == "" {
		logger.Info("no ADMIN_EMAIL set, skipping admin user creation")
		return nil
	}

	_, err := userRepo.GetByEmail(ctx, adminEmail)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	admin, err := userRepo.Create(ctx, &models.UserAccount{
		Email: adminEmail,
		Name:  "Admin",
		Role:  models.RoleSuperAdmin,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created",
		slog.String("user_id", admin.ID),
		slog.String("email", pkglogger.SanitizedEmail(adminEmail)))
	return nil
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
