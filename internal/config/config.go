package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Security  SecurityConfig
	RateLimit RateLimitConfig
	Alert     AlertConfig
	Geo       GeoConfig
	Captcha   CaptchaConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	APIKey         string
	AllowedOrigins []string
	TrustedProxies []string
}

// SecurityConfig holds lockout and travel-detection policy. All values
// are operator inputs; the defaults below are starting points, not
// authoritative constants.
type SecurityConfig struct {
	LockoutThreshold int
	LockoutDuration  time.Duration
	// BackoffMultiplier grows the lock duration on repeated lock
	// cycles inside BackoffCooldown; MaxLockoutDuration caps it.
	BackoffMultiplier  float64
	BackoffCooldown    time.Duration
	MaxLockoutDuration time.Duration

	// MaxTravelSpeedKmh approximates commercial flight; logins implying
	// faster travel inside TravelWindow are flagged.
	MaxTravelSpeedKmh float64
	TravelWindow      time.Duration

	AttemptRetention   time.Duration
	AuditRetentionDays int
	CleanupInterval    time.Duration
}

type RateLimitConfig struct {
	PasswordResetLimit  int
	PasswordResetWindow time.Duration
	AICoachDailyLimit   int
	AICoachWindow       time.Duration
	AdminWriteLimit     int
	AdminWriteWindow    time.Duration

	// IngressPerMinute is the HTTP-level per-IP limit on the ingress
	// endpoints, separate from the per-subject policies above.
	IngressPerMinute int
}

type AlertConfig struct {
	AWSRegion    string
	FromAddress  string
	AdminAddress string
	MaxRetries   int
	RetryBackoff time.Duration
}

type GeoConfig struct {
	// ProviderURLs is a prioritized list of lookup endpoints tried in
	// order; "%s" is replaced with the IP address.
	ProviderURLs    []string
	ProviderTimeout time.Duration
}

type CaptchaConfig struct {
	Enabled   bool
	VerifyURL string
	Secret    string
	Timeout   time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	apiKey := getEnv("SERVICE_API_KEY", "")
	if apiKey == "" {
		return nil, fmt.Errorf("SERVICE_API_KEY is required")
	}
	if err := validateAPIKey(apiKey, env); err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "accountsec"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			APIKey:         apiKey,
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: parseCSV(getEnv("TRUSTED_PROXIES", "")),
		},
		Security: SecurityConfig{
			LockoutThreshold:   getEnvAsInt("LOCKOUT_THRESHOLD", 5),
			LockoutDuration:    getEnvAsDuration("LOCKOUT_DURATION", 15*time.Minute),
			BackoffMultiplier:  getEnvAsFloat("LOCKOUT_BACKOFF_MULTIPLIER", 2.0),
			BackoffCooldown:    getEnvAsDuration("LOCKOUT_BACKOFF_COOLDOWN", 24*time.Hour),
			MaxLockoutDuration: getEnvAsDuration("LOCKOUT_MAX_DURATION", 4*time.Hour),
			MaxTravelSpeedKmh:  getEnvAsFloat("TRAVEL_MAX_SPEED_KMH", 1000),
			TravelWindow:       getEnvAsDuration("TRAVEL_WINDOW", 1*time.Hour),
			AttemptRetention:   getEnvAsDuration("ATTEMPT_RETENTION", 90*24*time.Hour),
			AuditRetentionDays: getEnvAsInt("AUDIT_RETENTION_DAYS", 365),
			CleanupInterval:    getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
		},
		RateLimit: RateLimitConfig{
			PasswordResetLimit:  getEnvAsInt("RATE_PASSWORD_RESET_LIMIT", 3),
			PasswordResetWindow: getEnvAsDuration("RATE_PASSWORD_RESET_WINDOW", 15*time.Minute),
			AICoachDailyLimit:   getEnvAsInt("RATE_AI_COACH_LIMIT", 10),
			AICoachWindow:       getEnvAsDuration("RATE_AI_COACH_WINDOW", 24*time.Hour),
			AdminWriteLimit:     getEnvAsInt("RATE_ADMIN_WRITE_LIMIT", 30),
			AdminWriteWindow:    getEnvAsDuration("RATE_ADMIN_WRITE_WINDOW", 1*time.Minute),
			IngressPerMinute:    getEnvAsInt("RATE_INGRESS_PER_MINUTE", 60),
		},
		Alert: AlertConfig{
			AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
			FromAddress:  getEnv("ALERT_FROM_ADDRESS", "security@localhost"),
			AdminAddress: getEnv("ALERT_ADMIN_ADDRESS", ""),
			MaxRetries:   getEnvAsInt("ALERT_MAX_RETRIES", 2),
			RetryBackoff: getEnvAsDuration("ALERT_RETRY_BACKOFF", 2*time.Second),
		},
		Geo: GeoConfig{
			ProviderURLs:    parseProviderURLs(),
			ProviderTimeout: getEnvAsDuration("GEO_PROVIDER_TIMEOUT", 2*time.Second),
		},
		Captcha: CaptchaConfig{
			Enabled:   getEnvAsBool("CAPTCHA_ENABLED", false),
			VerifyURL: getEnv("CAPTCHA_VERIFY_URL", ""),
			Secret:    getEnv("CAPTCHA_SECRET", ""),
			Timeout:   getEnvAsDuration("CAPTCHA_TIMEOUT", 5*time.Second),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if cfg.Security.LockoutThreshold < 1 {
		return nil, fmt.Errorf("LOCKOUT_THRESHOLD must be at least 1")
	}
	if cfg.Security.BackoffMultiplier < 1 {
		return nil, fmt.Errorf("LOCKOUT_BACKOFF_MULTIPLIER must be at least 1")
	}
	if cfg.Captcha.Enabled && (cfg.Captcha.VerifyURL == "" || cfg.Captcha.Secret == "") {
		return nil, fmt.Errorf("CAPTCHA_VERIFY_URL and CAPTCHA_SECRET are required when CAPTCHA_ENABLED=true")
	}

	return cfg, nil
}

// validateAPIKey enforces minimum strength for the service API key
func validateAPIKey(key, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(key) < minLength {
		return fmt.Errorf("SERVICE_API_KEY must be at least %d characters in %s environment (got %d)",
			minLength, env, len(key))
	}

	weakKeys := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	keyLower := strings.ToLower(key)
	for _, weak := range weakKeys {
		if keyLower == weak {
			return fmt.Errorf("SERVICE_API_KEY cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Policies returns the shipped fixed-window policies keyed by action.
func (c *RateLimitConfig) Policies() map[string]Policy {
	return map[string]Policy{
		"password_reset": {Limit: c.PasswordResetLimit, Window: c.PasswordResetWindow},
		"ai_coach_daily": {Limit: c.AICoachDailyLimit, Window: c.AICoachWindow},
		"admin_write":    {Limit: c.AdminWriteLimit, Window: c.AdminWriteWindow},
	}
}

// Policy is one action's limit and window.
type Policy struct {
	Limit  int
	Window time.Duration
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseProviderURLs() []string {
	return parseCSV(getEnv("GEO_PROVIDER_URLS", ""))
}

func parseCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{}
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
