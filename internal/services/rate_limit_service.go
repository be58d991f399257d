package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ehgzao/Shipper-sub001/internal/models"
)

// RateLimitRepository defines the atomic counter operation the limiter
// needs. The reset-increment-return must be a single statement at the
// data layer; the service never reads then writes.
type RateLimitRepository interface {
	Increment(ctx context.Context, subject, action string, now time.Time, window time.Duration) (*models.RateLimitWindow, error)
}

// RateLimitService is the generic fixed-window limiter. One algorithm
// backs every policy; policies differ only in key, limit and window.
type RateLimitService struct {
	repo     RateLimitRepository
	policies map[string]models.RateLimitPolicy
	logger   *slog.Logger
}

// NewRateLimitService creates a limiter over the given policies
func NewRateLimitService(repo RateLimitRepository, policies []models.RateLimitPolicy, logger *slog.Logger) *RateLimitService {
	byAction := make(map[string]models.RateLimitPolicy, len(policies))
	for _, p := range policies {
		byAction[p.Action] = p
	}
	return &RateLimitService{
		repo:     repo,
		policies: byAction,
		logger:   logger,
	}
}

// Check consumes one unit of the subject's budget for action. Unknown
// actions are validation errors; an exhausted budget is a structured
// result with a retry hint, not an error.
func (s *RateLimitService) Check(ctx context.Context, subject, action string) (*models.RateLimitResult, error) {
	policy, ok := s.policies[action]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownAction, action)
	}

	now := time.Now().UTC()
	window, err := s.repo.Increment(ctx, subject, action, now, policy.Window)
	if err != nil {
		// Fail open: a storage outage must not block legitimate traffic.
		s.logger.Error("rate limit check failed, allowing request",
			slog.String("action", action),
			slog.Any("error", err))
		return &models.RateLimitResult{
			Allowed:   true,
			Remaining: policy.Limit,
			Message:   "OK",
		}, nil
	}

	if window.Count > policy.Limit {
		retryAfter := policy.Window - now.Sub(window.WindowStart)
		if retryAfter < 0 {
			retryAfter = 0
		}
		s.logger.Warn("rate limit exceeded",
			slog.String("action", action),
			slog.Int("count", window.Count),
			slog.Int("limit", policy.Limit))
		return &models.RateLimitResult{
			Allowed:           false,
			Remaining:         0,
			RetryAfterSeconds: int(math.Ceil(retryAfter.Seconds())),
			Message:           "Too many requests. Please try again later.",
		}, nil
	}

	return &models.RateLimitResult{
		Allowed:   true,
		Remaining: policy.Limit - window.Count,
		Message:   "OK",
	}, nil
}
