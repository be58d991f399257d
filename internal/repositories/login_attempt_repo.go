package repositories

import (
	"context"
	"time"

	"github.com/ehgzao/Shipper-sub001/internal/database"
	"github.com/ehgzao/Shipper-sub001/internal/models"
	"github.com/jackc/pgx/v5"
)

// LoginAttemptRepository handles database operations for login attempts
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// RecordAttempt inserts an immutable login attempt row
func (r *LoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (
			email, success, ip_address, latitude, longitude, city, country,
			user_agent, device_fingerprint, attempt_time, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	err := r.db.Pool.QueryRow(ctx, query,
		attempt.Email,
		attempt.Success,
		attempt.IPAddress,
		attempt.Latitude,
		attempt.Longitude,
		attempt.City,
		attempt.Country,
		attempt.UserAgent,
		attempt.DeviceFingerprint,
		attempt.AttemptTime,
		attempt.ExpiresAt,
	).Scan(&attempt.ID)

	return database.MapPostgresError(err)
}

// GetLastSuccessful returns the most recent successful attempt for an
// email, or nil when none exists.
func (r *LoginAttemptRepository) GetLastSuccessful(ctx context.Context, email string) (*models.LoginAttempt, error) {
	query := `
		SELECT id, email, success, ip_address, latitude, longitude, city, country,
		       user_agent, device_fingerprint, attempt_time, expires_at
		FROM login_attempts
		WHERE email = $1 AND success = true
		ORDER BY attempt_time DESC
		LIMIT 1
	`

	var a models.LoginAttempt
	err := r.db.Pool.QueryRow(ctx, query, email).Scan(
		&a.ID, &a.Email, &a.Success, &a.IPAddress, &a.Latitude, &a.Longitude,
		&a.City, &a.Country, &a.UserAgent, &a.DeviceFingerprint, &a.AttemptTime, &a.ExpiresAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &a, nil
}

// GetFailedCount returns the number of failed attempts for an email
// within a time window.
func (r *LoginAttemptRepository) GetFailedCount(ctx context.Context, email string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE email = $1 AND success = false AND attempt_time >= $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, email, since).Scan(&count)
	return count, database.MapPostgresError(err)
}

// DeleteExpiredAttempts removes login attempts past their retention time
func (r *LoginAttemptRepository) DeleteExpiredAttempts(ctx context.Context) (int64, error) {
	query := `DELETE FROM login_attempts WHERE expires_at <= CURRENT_TIMESTAMP`
	result, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
