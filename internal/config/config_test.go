package config

import (
	"os"
	"testing"
	"time"
)

func setRequiredEnv() {
	os.Setenv("SERVICE_API_KEY", "test-service-key-0123456789abcdef")
	os.Setenv("DB_PASSWORD", "test")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv()
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	tests := []struct {
		name     string
		actual   time.Duration
		expected time.Duration
	}{
		{"LockoutDuration", cfg.Security.LockoutDuration, 15 * time.Minute},
		{"BackoffCooldown", cfg.Security.BackoffCooldown, 24 * time.Hour},
		{"MaxLockoutDuration", cfg.Security.MaxLockoutDuration, 4 * time.Hour},
		{"TravelWindow", cfg.Security.TravelWindow, time.Hour},
		{"AttemptRetention", cfg.Security.AttemptRetention, 90 * 24 * time.Hour},
		{"CleanupInterval", cfg.Security.CleanupInterval, time.Hour},
		{"PasswordResetWindow", cfg.RateLimit.PasswordResetWindow, 15 * time.Minute},
		{"AICoachWindow", cfg.RateLimit.AICoachWindow, 24 * time.Hour},
	}
	for _, tt := range tests {
		if tt.actual != tt.expected {
			t.Errorf("%s = %v, want %v", tt.name, tt.actual, tt.expected)
		}
	}

	if cfg.Security.LockoutThreshold != 5 {
		t.Errorf("LockoutThreshold = %d, want 5", cfg.Security.LockoutThreshold)
	}
	if cfg.Security.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", cfg.Security.BackoffMultiplier)
	}
	if cfg.Security.MaxTravelSpeedKmh != 1000 {
		t.Errorf("MaxTravelSpeedKmh = %v, want 1000", cfg.Security.MaxTravelSpeedKmh)
	}
	if cfg.RateLimit.PasswordResetLimit != 3 {
		t.Errorf("PasswordResetLimit = %d, want 3", cfg.RateLimit.PasswordResetLimit)
	}
	if cfg.RateLimit.AICoachDailyLimit != 10 {
		t.Errorf("AICoachDailyLimit = %d, want 10", cfg.RateLimit.AICoachDailyLimit)
	}
}

func TestLoad_RequiresAPIKey(t *testing.T) {
	os.Clearenv()
	os.Setenv("DB_PASSWORD", "test")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail without SERVICE_API_KEY")
	}
}

func TestLoad_RejectsShortAPIKey(t *testing.T) {
	os.Clearenv()
	os.Setenv("SERVICE_API_KEY", "short")
	os.Setenv("DB_PASSWORD", "test")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() should reject a short API key")
	}
}

func TestLoad_ProductionRequiresLongerKey(t *testing.T) {
	os.Clearenv()
	os.Setenv("ENV", "production")
	os.Setenv("SERVICE_API_KEY", "sixteen-chars-ok")
	os.Setenv("DB_PASSWORD", "test")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() should require 32 characters in production")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequiredEnv()
	os.Setenv("LOCKOUT_THRESHOLD", "3")
	os.Setenv("LOCKOUT_DURATION", "30m")
	os.Setenv("TRAVEL_MAX_SPEED_KMH", "800")
	os.Setenv("GEO_PROVIDER_URLS", "https://geo.example.com/json/%s, https://backup.example.com/%s")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Security.LockoutThreshold != 3 {
		t.Errorf("LockoutThreshold = %d, want 3", cfg.Security.LockoutThreshold)
	}
	if cfg.Security.LockoutDuration != 30*time.Minute {
		t.Errorf("LockoutDuration = %v, want 30m", cfg.Security.LockoutDuration)
	}
	if cfg.Security.MaxTravelSpeedKmh != 800 {
		t.Errorf("MaxTravelSpeedKmh = %v, want 800", cfg.Security.MaxTravelSpeedKmh)
	}
	if len(cfg.Geo.ProviderURLs) != 2 {
		t.Fatalf("ProviderURLs = %v, want 2 entries", cfg.Geo.ProviderURLs)
	}
	if cfg.Geo.ProviderURLs[1] != "https://backup.example.com/%s" {
		t.Errorf("ProviderURLs[1] = %q, whitespace not trimmed", cfg.Geo.ProviderURLs[1])
	}
}

func TestRateLimitConfig_Policies(t *testing.T) {
	setRequiredEnv()
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	policies := cfg.RateLimit.Policies()
	if len(policies) != 3 {
		t.Fatalf("Policies() returned %d entries, want 3", len(policies))
	}
	if p := policies["password_reset"]; p.Limit != 3 || p.Window != 15*time.Minute {
		t.Errorf("password_reset policy = %+v", p)
	}
	if p := policies["ai_coach_daily"]; p.Limit != 10 || p.Window != 24*time.Hour {
		t.Errorf("ai_coach_daily policy = %+v", p)
	}
	if p := policies["admin_write"]; p.Limit != 30 || p.Window != time.Minute {
		t.Errorf("admin_write policy = %+v", p)
	}
}
