package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ehgzao/Shipper-sub001/internal/background"
	"github.com/ehgzao/Shipper-sub001/internal/config"
	"github.com/ehgzao/Shipper-sub001/internal/database"
	"github.com/ehgzao/Shipper-sub001/internal/geo"
	"github.com/ehgzao/Shipper-sub001/internal/handlers"
	middlewareCustom "github.com/ehgzao/Shipper-sub001/internal/middleware"
	"github.com/ehgzao/Shipper-sub001/internal/models"
	"github.com/ehgzao/Shipper-sub001/internal/repositories"
	"github.com/ehgzao/Shipper-sub001/internal/routes"
	"github.com/ehgzao/Shipper-sub001/internal/services"
	pkghttp "github.com/ehgzao/Shipper-sub001/pkg/http"
	pkglogger "github.com/ehgzao/Shipper-sub001/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	attemptRepo := repositories.NewLoginAttemptRepository(db)
	lockoutRepo := repositories.NewLockoutRepository(db)
	rateLimitRepo := repositories.NewRateLimitRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)

	// Initialize cleanup manager
	cleanupManager := background.NewCleanupManager(
		attemptRepo,
		auditRepo,
		rateLimitRepo,
		logger,
		cfg.Security.CleanupInterval,
		cfg.Security.AuditRetentionDays,
	)

	auditLogger := pkglogger.NewAuditLogger(logger)
	auditService := services.NewAuditService(auditRepo, logger, auditLogger)

	// Geo context resolution and impossible-travel detection
	providers := geo.ProvidersFromURLs(cfg.Geo.ProviderURLs, nil)
	resolver := geo.NewContextResolver(providers, cfg.Geo.ProviderTimeout, logger)
	detector := geo.NewTravelDetector(cfg.Security.MaxTravelSpeedKmh, cfg.Security.TravelWindow)

	// AWS SES alert delivery
	sesNotifier, err := services.NewAWSSESNotifier(
		cfg.Alert.AWSRegion,
		cfg.Alert.FromAddress,
		cfg.Alert.AdminAddress,
		logger,
	)
	if err != nil {
		logger.Error("failed to initialize SES notifier", slog.Any("error", err))
		os.Exit(1)
	}

	dispatcher := services.NewAlertDispatcher(sesNotifier, sesNotifier, services.DispatcherConfig{
		MaxRetries:   cfg.Alert.MaxRetries,
		RetryBackoff: cfg.Alert.RetryBackoff,
	}, logger)

	lockoutPolicy := models.LockoutPolicy{
		Threshold:         cfg.Security.LockoutThreshold,
		BaseDuration:      cfg.Security.LockoutDuration,
		BackoffMultiplier: cfg.Security.BackoffMultiplier,
		BackoffCooldown:   cfg.Security.BackoffCooldown,
		MaxDuration:       cfg.Security.MaxLockoutDuration,
	}

	securityService := services.NewSecurityService(
		attemptRepo,
		lockoutRepo,
		resolver,
		detector,
		dispatcher,
		auditService,
		lockoutPolicy,
		cfg.Security.AttemptRetention,
		logger,
	)

	rateLimitPolicies := make([]models.RateLimitPolicy, 0, 3)
	for action, policy := range cfg.RateLimit.Policies() {
		rateLimitPolicies = append(rateLimitPolicies, models.RateLimitPolicy{
			Action: action,
			Limit:  policy.Limit,
			Window: policy.Window,
		})
	}
	rateLimitService := services.NewRateLimitService(rateLimitRepo, rateLimitPolicies, logger)

	var captchaVerifier handlers.CaptchaVerifierInterface
	if cfg.Captcha.Enabled {
		captchaVerifier = services.NewHTTPCaptchaVerifier(cfg.Captcha.VerifyURL, cfg.Captcha.Secret, cfg.Captcha.Timeout, logger)
	} else {
		captchaVerifier = services.NewNullCaptchaVerifier()
	}

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	securityHandler := handlers.NewSecurityHandler(securityService, rateLimitService, captchaVerifier, ipConfig)
	auditHandler := handlers.NewAuditHandler(auditService, ipConfig)

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.Env)
	corsConfig.AllowedOrigins = cfg.Server.AllowedOrigins

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	ingressLimit := middlewareCustom.RateLimitConfig{RequestsPerMinute: cfg.RateLimit.IngressPerMinute}
	routes.RegisterRoutes(router, securityHandler, auditHandler, cfg.Server.APIKey, ingressLimit, logger)

	// Health check with database
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start cleanup task
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

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

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Let in-flight alert deliveries drain before exiting
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		logger.Warn("alert dispatcher shutdown incomplete", slog.Any("error", err))
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
