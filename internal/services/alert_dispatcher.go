package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ehgzao/Shipper-sub001/internal/models"
	pkglogger "github.com/ehgzao/Shipper-sub001/pkg/logger"
)

// AdminNotifier delivers an alert to the operations channel
type AdminNotifier interface {
	NotifyAdmin(ctx context.Context, alert *models.SecurityAlert) error
}

// UserNotifier delivers an alert to the affected user's channel
type UserNotifier interface {
	NotifyUser(ctx context.Context, alert *models.SecurityAlert) error
}

// DispatcherConfig bounds the delivery retry budget
type DispatcherConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
	// DeliveryTimeout caps one full fan-out, including retries.
	DeliveryTimeout time.Duration
}

// AlertDispatcher fans a security alert out to its channel set.
// Dispatch is fire-and-forget: delivery runs off the request path,
// failures are swallowed after the retry budget and never reach the
// originating caller. De-duplication is the caller's job - only an
// authoritative state transition may invoke Dispatch.
type AlertDispatcher struct {
	admin  AdminNotifier
	user   UserNotifier
	config DispatcherConfig
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewAlertDispatcher creates a new AlertDispatcher
func NewAlertDispatcher(admin AdminNotifier, user UserNotifier, config DispatcherConfig, logger *slog.Logger) *AlertDispatcher {
	if config.DeliveryTimeout <= 0 {
		config.DeliveryTimeout = 30 * time.Second
	}
	return &AlertDispatcher{
		admin:  admin,
		user:   user,
		config: config,
		logger: logger,
	}
}

// Dispatch routes the alert to its channels in the background. It
// returns immediately; the response to the originating request may be
// written before delivery completes.
func (d *AlertDispatcher) Dispatch(alert *models.SecurityAlert) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.config.DeliveryTimeout)
		defer cancel()

		d.deliver(ctx, alert, "admin", func(ctx context.Context) error {
			return d.admin.NotifyAdmin(ctx, alert)
		})

		if alert.NotifiesUser() {
			d.deliver(ctx, alert, "user", func(ctx context.Context) error {
				return d.user.NotifyUser(ctx, alert)
			})
		}
	}()
}

// deliver attempts one channel with the bounded retry budget
func (d *AlertDispatcher) deliver(ctx context.Context, alert *models.SecurityAlert, channel string, send func(context.Context) error) {
	var err error
	for attempt := 0; attempt <= d.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(d.config.RetryBackoff):
			case <-ctx.Done():
				d.logAbandoned(alert, channel, ctx.Err())
				return
			}
		}

		if err = send(ctx); err == nil {
			d.logger.Info("security alert delivered",
				slog.String("alert_type", string(alert.Type)),
				slog.String("channel", channel),
				slog.String("email", pkglogger.SanitizedEmail(alert.Email)))
			return
		}

		d.logger.Warn("security alert delivery failed",
			slog.String("alert_type", string(alert.Type)),
			slog.String("channel", channel),
			slog.Int("attempt", attempt+1),
			slog.Any("error", err))
	}

	d.logAbandoned(alert, channel, err)
}

func (d *AlertDispatcher) logAbandoned(alert *models.SecurityAlert, channel string, err error) {
	d.logger.Error("security alert abandoned after retry budget",
		slog.String("alert_type", string(alert.Type)),
		slog.String("channel", channel),
		slog.Any("error", err))
}

// Shutdown waits for in-flight deliveries to finish or ctx to expire
func (d *AlertDispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
