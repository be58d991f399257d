package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ehgzao/Shipper-sub001/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) (*TestDB, context.Context) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db, err := SetupTestDatabase(ctx)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Teardown(context.Background())
	})
	return db, ctx
}

func TestLockoutRepository_FailureTransitions(t *testing.T) {
	db, ctx := setupDB(t)
	_, lockouts, _, _ := InitializeRepositories(db.DB)

	email := TestEmail("lockout")
	policy := models.LockoutPolicy{
		Threshold:         5,
		BaseDuration:      15 * time.Minute,
		BackoffMultiplier: 2.0,
		BackoffCooldown:   24 * time.Hour,
		MaxDuration:       4 * time.Hour,
	}
	now := time.Now().UTC()

	var locks int
	for i := 0; i < 5; i++ {
		transition, err := lockouts.RecordFailure(ctx, email, now, policy)
		require.NoError(t, err)
		if transition.Locked {
			locks++
		}
	}
	assert.Equal(t, 1, locks, "exactly one threshold crossing")

	state, err := lockouts.Get(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, 5, state.FailureCount)
	assert.True(t, state.IsLocked(now))
}

func TestLockoutRepository_ConcurrentFailuresSingleLock(t *testing.T) {
	db, ctx := setupDB(t)
	_, lockouts, _, _ := InitializeRepositories(db.DB)

	email := TestEmail("concurrent")
	policy := models.LockoutPolicy{Threshold: 5, BaseDuration: 15 * time.Minute, BackoffMultiplier: 1.0}
	now := time.Now().UTC()

	// Ten concurrent failures on the same email: the row lock must
	// serialize them into exactly one lock transition.
	var wg sync.WaitGroup
	var mu sync.Mutex
	var locks int

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			transition, err := lockouts.RecordFailure(ctx, email, now, policy)
			if err != nil {
				return
			}
			mu.Lock()
			if transition.Locked {
				locks++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, locks, "concurrent callers must observe exactly one lock transition")

	state, err := lockouts.Get(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, 10, state.FailureCount)
}

func TestLockoutRepository_SuccessRoundTrip(t *testing.T) {
	db, ctx := setupDB(t)
	_, lockouts, _, _ := InitializeRepositories(db.DB)

	email := TestEmail("success")
	now := time.Now().UTC().Truncate(time.Microsecond)

	lat, lon := 40.7128, -74.0060
	city, country := "New York", "US"
	first := &models.LoginContext{
		IPAddress: "203.0.113.10",
		Latitude:  &lat, Longitude: &lon,
		City: &city, Country: &country,
	}

	transition, err := lockouts.RecordSuccess(ctx, email, first, now)
	require.NoError(t, err)
	assert.Nil(t, transition.PreviousGood, "first success has no prior context")

	// A second success returns the first one's context for travel
	// comparison.
	second := &models.LoginContext{IPAddress: "198.51.100.7"}
	transition, err = lockouts.RecordSuccess(ctx, email, second, now.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, transition.PreviousGood)
	assert.Equal(t, lat, *transition.PreviousGood.Latitude)
	assert.Equal(t, lon, *transition.PreviousGood.Longitude)
	assert.Equal(t, "New York", *transition.PreviousGood.City)
	require.NotNil(t, transition.PreviousLoginAt)
	assert.WithinDuration(t, now, *transition.PreviousLoginAt, time.Millisecond)
}

func TestRateLimitRepository_FixedWindow(t *testing.T) {
	db, ctx := setupDB(t)
	_, _, rateLimits, _ := InitializeRepositories(db.DB)

	subject := TestEmail("ratelimit")
	now := time.Now().UTC()
	window := 15 * time.Minute

	for i := 1; i <= 4; i++ {
		w, err := rateLimits.Increment(ctx, subject, models.RateLimitActionPasswordReset, now, window)
		require.NoError(t, err)
		assert.Equal(t, i, w.Count)
	}

	// An increment after the window elapses starts a fresh count.
	later := now.Add(window + time.Minute)
	w, err := rateLimits.Increment(ctx, subject, models.RateLimitActionPasswordReset, later, window)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Count)
	assert.WithinDuration(t, later, w.WindowStart, time.Millisecond)

	// Actions count independently for the same subject.
	w, err = rateLimits.Increment(ctx, subject, models.RateLimitActionAdminWrite, later, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Count)
}

func TestLoginAttemptRepository_RecordAndExpire(t *testing.T) {
	db, ctx := setupDB(t)
	attempts, _, _, _ := InitializeRepositories(db.DB)

	email := TestEmail("attempts")
	now := time.Now().UTC()

	// One live row and one already past retention.
	live := &models.LoginAttempt{
		Email: email, Success: true, IPAddress: "203.0.113.10",
		AttemptTime: now, ExpiresAt: now.Add(24 * time.Hour),
	}
	expired := &models.LoginAttempt{
		Email: email, Success: false, IPAddress: "203.0.113.10",
		AttemptTime: now.Add(-91 * 24 * time.Hour), ExpiresAt: now.Add(-24 * time.Hour),
	}
	require.NoError(t, attempts.RecordAttempt(ctx, live))
	require.NoError(t, attempts.RecordAttempt(ctx, expired))

	last, err := attempts.GetLastSuccessful(ctx, email)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.Success)

	deleted, err := attempts.DeleteExpiredAttempts(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, deleted, int64(1))

	// The live row survives cleanup.
	last, err = attempts.GetLastSuccessful(ctx, email)
	require.NoError(t, err)
	assert.NotNil(t, last)
}

func TestAuditLogRepository_AppendAndList(t *testing.T) {
	db, ctx := setupDB(t)
	_, _, _, audits := InitializeRepositories(db.DB)

	ip := "203.0.113.10"
	entry := &models.AuditLog{
		Action:    models.AuditActionAccountLocked,
		Details:   models.AuditDetails{"failure_count": 5, "email": TestEmail("audit")},
		IPAddress: &ip,
	}

	created, err := audits.Create(ctx, entry)
	require.NoError(t, err)
	assert.NotEqual(t, created.ID.String(), "00000000-0000-0000-0000-000000000000")
	assert.False(t, created.CreatedAt.IsZero())

	logs, err := audits.List(ctx, nil, models.AuditActionAccountLocked, 50, 0)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, models.AuditActionAccountLocked, logs[0].Action)
	assert.Equal(t, float64(5), logs[0].Details["failure_count"])
}
