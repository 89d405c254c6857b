package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/background"
	"github.com/BradenHooton/bastion/internal/config"
	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/handlers"
	middlewareCustom "github.com/BradenHooton/bastion/internal/middleware"
	"github.com/BradenHooton/bastion/internal/repositories"
	"github.com/BradenHooton/bastion/internal/routes"
	"github.com/BradenHooton/bastion/internal/services"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// scanMinFailures is the number of failure events an identity needs in the
// detection window before the background scan evaluates it
const scanMinFailures = 3

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)
	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		err := db.Migrate(ctx)
		cancel()
		if err != nil {
			logger.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// Initialize repositories
	profileRepo := repositories.NewSecurityProfileRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)
	credentialRepo := repositories.NewCredentialRepository(db)

	// Audit log store; entries that cannot be persisted go to the structured log
	auditService := services.NewAuditService(auditRepo, logger, pkglogger.NewAuditLogger(logger))
	if cfg.Audit.Async {
		auditService.Start(cfg.Audit.QueueSize)
	}

	// Lockout alerts are optional
	var notifier services.SecurityNotifier
	if cfg.Notifier.FromAddress != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		ses, err := services.NewSESNotifier(ctx, cfg.Notifier.AWSRegion, cfg.Notifier.FromAddress, logger)
		cancel()
		if err != nil {
			logger.Error("failed to initialize lockout notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = ses
	} else {
		logger.Info("SECURITY_ALERT_FROM not set, lockout alert emails disabled")
	}

	bruteForceService := services.NewBruteForceService(profileRepo, auditService, notifier, cfg.BruteForce, logger)

	totpManager, err := auth.NewTOTPManager(cfg.TwoFactor.Issuer, cfg.TwoFactor.Algorithm)
	if err != nil {
		logger.Error("failed to initialize TOTP manager", slog.Any("error", err))
		os.Exit(1)
	}
	passwordVerifier := services.NewBcryptPasswordVerifier(credentialRepo)
	twoFactorService := services.NewTwoFactorService(profileRepo, totpManager, passwordVerifier, auditService, cfg.TwoFactor.BackupCodeCount, logger)
	if cfg.TwoFactor.EncryptionKey != nil {
		secretBox, err := auth.NewSecretBox(cfg.TwoFactor.EncryptionKey)
		if err != nil {
			logger.Error("failed to initialize TOTP secret encryption", slog.Any("error", err))
			os.Exit(1)
		}
		twoFactorService.WithSecretSealer(secretBox)
	} else {
		logger.Warn("TOTP_ENCRYPTION_KEY not set, TOTP secrets are stored unencrypted")
	}

	profileService := services.NewProfileService(profileRepo, auditService, logger)
	detector := services.NewSuspiciousActivityDetector(auditRepo, services.DefaultDetectionThresholds())

	// Timing padding for failed password and code checks
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		MinDuration: cfg.TwoFactor.MinResponseTime,
		Jitter:      cfg.TwoFactor.MinResponseTime / 5,
	})

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret)
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	// Initialize handlers
	h := routes.Handlers{
		Guard:     handlers.NewGuardHandler(bruteForceService, ipConfig, logger),
		TwoFactor: handlers.NewTwoFactorHandler(twoFactorService, timingDelay, ipConfig, logger),
		Profiles:  handlers.NewProfileHandler(profileService, bruteForceService, ipConfig, logger),
		Audit:     handlers.NewAuditHandler(auditService, detector, ipConfig, logger),
	}

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	routes.RegisterRoutes(router, h, tokenManager, middlewareCustom.RateLimitConfig{
		RequestsPerMinute:       cfg.Server.RateLimit,
		CallerRequestsPerMinute: cfg.Server.CallerLimit,
		IPConfig:                ipConfig,
	})

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(r.Context()); err != nil {
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy", "database": "down"})
			return
		}
		pkghttp.WriteJSON(w, http.StatusOK, map[string]any{"status": "healthy", "database": "up", "pool": db.Stats()})
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start suspicious activity scan
	scanCtx, scanCancel := context.WithCancel(context.Background())
	defer scanCancel()

	var scanner *background.SuspiciousActivityScanner
	if cfg.Audit.DetectionOn {
		scanner = background.NewSuspiciousActivityScanner(
			auditRepo,
			detector,
			logger,
			cfg.Audit.ScanInterval,
			services.DefaultDetectionThresholds().Window,
			scanMinFailures,
		)
		go scanner.Start(scanCtx)
	}

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	scanCancel()
	if scanner != nil {
		scanner.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	// Drain queued audit entries after the last request has finished
	auditService.Stop()

	logger.Info("server stopped gracefully")
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
