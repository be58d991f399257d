package repositories

import (
	"context"
	"time"

	"github.com/ehgzao/Shipper-sub001/internal/database"
	"github.com/ehgzao/Shipper-sub001/internal/models"
)

// RateLimitRepository owns the fixed-window counter rows. The
// reset-and-increment is one statement, so two concurrent callers can
// never both read the same count and over-admit.
type RateLimitRepository struct {
	db *database.DB
}

// NewRateLimitRepository creates a new RateLimitRepository
func NewRateLimitRepository(db *database.DB) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

// Increment bumps the counter for (subject, action), resetting the
// window first when it has elapsed, and returns the post-increment
// window. The counter keeps counting past the limit; admission is
// decided by the caller from the returned count.
func (r *RateLimitRepository) Increment(ctx context.Context, subject, action string, now time.Time, window time.Duration) (*models.RateLimitWindow, error) {
	query := `
		INSERT INTO rate_limit_windows (subject, action, count, window_start)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (subject, action) DO UPDATE SET
			count = CASE
				WHEN rate_limit_windows.window_start <= $4 THEN 1
				ELSE rate_limit_windows.count + 1
			END,
			window_start = CASE
				WHEN rate_limit_windows.window_start <= $4 THEN $3
				ELSE rate_limit_windows.window_start
			END
		RETURNING subject, action, count, window_start
	`

	windowExpiry := now.Add(-window)

	var w models.RateLimitWindow
	err := r.db.Pool.QueryRow(ctx, query, subject, action, now, windowExpiry).Scan(
		&w.Subject, &w.Action, &w.Count, &w.WindowStart,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &w, nil
}

// DeleteStale removes counter rows whose window ended before cutoff.
func (r *RateLimitRepository) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM rate_limit_windows WHERE window_start < $1`, cutoff)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
