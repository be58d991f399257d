package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ehgzao/Shipper-sub001/internal/database"
	"github.com/ehgzao/Shipper-sub001/internal/geo"
	"github.com/ehgzao/Shipper-sub001/internal/handlers"
	middlewareCustom "github.com/ehgzao/Shipper-sub001/internal/middleware"
	"github.com/ehgzao/Shipper-sub001/internal/models"
	"github.com/ehgzao/Shipper-sub001/internal/routes"
	"github.com/ehgzao/Shipper-sub001/internal/services"
	pkghttp "github.com/ehgzao/Shipper-sub001/pkg/http"
	pkglogger "github.com/ehgzao/Shipper-sub001/pkg/logger"
)

// TestAPIKey is the shared service credential used by the test server
const TestAPIKey = "integration-test-api-key-0123456789"

// CapturedAlert is one alert delivery recorded by the capturing notifier
type CapturedAlert struct {
	Channel string
	Alert   *models.SecurityAlert
}

// CapturingNotifier records alert deliveries for test assertions
type CapturingNotifier struct {
	mu     sync.Mutex
	alerts []CapturedAlert
}

func (n *CapturingNotifier) NotifyAdmin(ctx context.Context, alert *models.SecurityAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, CapturedAlert{Channel: "admin", Alert: alert})
	return nil
}

func (n *CapturingNotifier) NotifyUser(ctx context.Context, alert *models.SecurityAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, CapturedAlert{Channel: "user", Alert: alert})
	return nil
}

// Alerts returns a snapshot of deliveries so far
func (n *CapturingNotifier) Alerts() []CapturedAlert {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]CapturedAlert, len(n.alerts))
	copy(out, n.alerts)
	return out
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server     *httptest.Server
	DB         *database.DB
	Notifier   *CapturingNotifier
	Dispatcher *services.AlertDispatcher
}

// NewTestServer initializes a complete HTTP server with real database
// and a capturing alert notifier
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	attemptRepo, lockoutRepo, rateLimitRepo, auditRepo := InitializeRepositories(db)

	auditLogger := pkglogger.NewAuditLogger(logger)
	auditService := services.NewAuditService(auditRepo, logger, auditLogger)

	resolver := geo.NewContextResolver(nil, time.Second, logger)
	detector := geo.NewTravelDetector(1000, time.Hour)

	notifier := &CapturingNotifier{}
	dispatcher := services.NewAlertDispatcher(notifier, notifier, services.DispatcherConfig{
		MaxRetries:   1,
		RetryBackoff: 10 * time.Millisecond,
	}, logger)

	policy := models.LockoutPolicy{
		Threshold:         5,
		BaseDuration:      15 * time.Minute,
		BackoffMultiplier: 2.0,
		BackoffCooldown:   24 * time.Hour,
		MaxDuration:       4 * time.Hour,
	}

	securityService := services.NewSecurityService(
		attemptRepo,
		lockoutRepo,
		resolver,
		detector,
		dispatcher,
		auditService,
		policy,
		90*24*time.Hour,
		logger,
	)

	rateLimitService := services.NewRateLimitService(rateLimitRepo, []models.RateLimitPolicy{
		{Action: models.RateLimitActionPasswordReset, Limit: 3, Window: 15 * time.Minute},
		{Action: models.RateLimitActionAICoachDaily, Limit: 10, Window: 24 * time.Hour},
		{Action: models.RateLimitActionAdminWrite, Limit: 30, Window: time.Minute},
	}, logger)

	ipConfig := &pkghttp.IPConfig{}
	securityHandler := handlers.NewSecurityHandler(securityService, rateLimitService, services.NewNullCaptchaVerifier(), ipConfig)
	auditHandler := handlers.NewAuditHandler(auditService, ipConfig)

	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.Recoverer)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))

	ingressLimit := middlewareCustom.RateLimitConfig{RequestsPerMinute: 1000}
	routes.RegisterRoutes(router, securityHandler, auditHandler, TestAPIKey, ingressLimit, logger)

	return &TestServer{
		Server:     httptest.NewServer(router),
		DB:         db,
		Notifier:   notifier,
		Dispatcher: dispatcher,
	}
}

// Close shuts down the server and drains in-flight alert deliveries
func (ts *TestServer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ts.Dispatcher.Shutdown(ctx)
	ts.Server.Close()
}

// DoJSON performs an authenticated JSON request against the test server
func (ts *TestServer) DoJSON(method, path string, body interface{}) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middlewareCustom.APIKeyHeader, TestAPIKey)

	resp, err := ts.Server.Client().Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return resp, respBody, nil
}
