package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/ehgzao/Shipper-sub001/internal/database"
	"github.com/ehgzao/Shipper-sub001/internal/models"
	"github.com/jackc/pgx/v5"
)

// LockoutRepository owns the per-email lockout rows. Every mutation
// runs inside a transaction holding the row lock, so concurrent
// attempts for one email are applied in commit order and increments
// are never lost.
type LockoutRepository struct {
	db *database.DB
}

// NewLockoutRepository creates a new LockoutRepository
func NewLockoutRepository(db *database.DB) *LockoutRepository {
	return &LockoutRepository{db: db}
}

const lockoutColumns = `email, failure_count, locked_until, lock_cycles, last_lock_at,
	last_login_at, last_login_ip, last_login_latitude, last_login_longitude,
	last_login_city, last_login_country, updated_at`

func scanLockoutRow(row pgx.Row) (*models.LockoutState, error) {
	var s models.LockoutState
	err := row.Scan(
		&s.Email, &s.FailureCount, &s.LockedUntil, &s.LockCycles, &s.LastLockAt,
		&s.LastLoginAt, &s.LastLoginIP, &s.LastLoginLatitude, &s.LastLoginLongitude,
		&s.LastLoginCity, &s.LastLoginCountry, &s.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &s, nil
}

// Get returns the lockout state for an email, or ErrNotFound when no
// attempt has ever been recorded. Side-effect free; lock expiry is
// evaluated by the caller at read time.
func (r *LockoutRepository) Get(ctx context.Context, email string) (*models.LockoutState, error) {
	query := fmt.Sprintf(`SELECT %s FROM lockout_states WHERE email = $1`, lockoutColumns)
	return scanLockoutRow(r.db.Pool.QueryRow(ctx, query, email))
}

// lockRow lazily creates the row for email and acquires its row lock.
// Must run inside the transaction that will mutate the row.
func lockRow(ctx context.Context, tx pgx.Tx, email string, now time.Time) (*models.LockoutState, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO lockout_states (email, failure_count, updated_at)
		VALUES ($1, 0, $2)
		ON CONFLICT (email) DO NOTHING
	`, email, now)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	query := fmt.Sprintf(`SELECT %s FROM lockout_states WHERE email = $1 FOR UPDATE`, lockoutColumns)
	return scanLockoutRow(tx.QueryRow(ctx, query, email))
}

func persistState(ctx context.Context, tx pgx.Tx, s *models.LockoutState) error {
	_, err := tx.Exec(ctx, `
		UPDATE lockout_states
		SET failure_count = $2,
		    locked_until = $3,
		    lock_cycles = $4,
		    last_lock_at = $5,
		    last_login_at = $6,
		    last_login_ip = $7,
		    last_login_latitude = $8,
		    last_login_longitude = $9,
		    last_login_city = $10,
		    last_login_country = $11,
		    updated_at = $12
		WHERE email = $1
	`, s.Email, s.FailureCount, s.LockedUntil, s.LockCycles, s.LastLockAt,
		s.LastLoginAt, s.LastLoginIP, s.LastLoginLatitude, s.LastLoginLongitude,
		s.LastLoginCity, s.LastLoginCountry, s.UpdatedAt)
	return database.MapPostgresError(err)
}

// RecordFailure applies one failed attempt under the row lock. Exactly
// the call whose increment reaches the threshold observes Locked=true
// on the returned transition.
func (r *LockoutRepository) RecordFailure(ctx context.Context, email string, now time.Time, policy models.LockoutPolicy) (*models.LockoutTransition, error) {
	var result *models.LockoutTransition

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		state, err := lockRow(ctx, tx, email, now)
		if err != nil {
			return err
		}

		result = state.ApplyFailure(now, policy)
		return persistState(ctx, tx, state)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// RecordSuccess applies one successful attempt under the row lock. The
// returned transition carries the previous good context for travel
// analysis. Returns ErrAccountLocked when the lock is still active.
func (r *LockoutRepository) RecordSuccess(ctx context.Context, email string, loginCtx *models.LoginContext, now time.Time) (*models.LockoutTransition, error) {
	var result *models.LockoutTransition

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		state, err := lockRow(ctx, tx, email, now)
		if err != nil {
			return err
		}

		transition, err := state.ApplySuccess(loginCtx, now)
		if err != nil {
			return err
		}

		result = transition
		return persistState(ctx, tx, state)
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
