package geo

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/ehgzao/Shipper-sub001/internal/models"
)

// Location is a provider lookup result.
type Location struct {
	Latitude  float64
	Longitude float64
	City      string
	Country   string
}

// Provider resolves an IP address to a coarse location. Implementations
// must respect ctx cancellation; the resolver applies its own timeout
// per provider.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, ip string) (*Location, error)
}

// RawSignals are the unprocessed client-supplied inputs for one attempt.
type RawSignals struct {
	IPAddress         string
	Latitude          *float64
	Longitude         *float64
	City              *string
	Country           *string
	UserAgent         string
	DeviceFingerprint string
}

// ContextResolver normalizes raw client signals into a canonical
// LoginContext. Providers form a prioritized fallback list: each is
// tried in order with a short timeout, first success wins, and total
// failure yields a context without coordinates rather than a guess.
type ContextResolver struct {
	providers []Provider
	timeout   time.Duration
	logger    *slog.Logger
}

// NewContextResolver creates a resolver over the given provider chain
func NewContextResolver(providers []Provider, timeout time.Duration, logger *slog.Logger) *ContextResolver {
	return &ContextResolver{
		providers: providers,
		timeout:   timeout,
		logger:    logger,
	}
}

// Resolve builds the canonical LoginContext for one attempt. Client
// coordinates take precedence over provider lookups; lookups are
// skipped entirely for private and loopback addresses.
func (r *ContextResolver) Resolve(ctx context.Context, raw RawSignals) *models.LoginContext {
	lc := &models.LoginContext{
		IPAddress:         strings.TrimSpace(raw.IPAddress),
		Latitude:          raw.Latitude,
		Longitude:         raw.Longitude,
		City:              raw.City,
		Country:           raw.Country,
		UserAgent:         raw.UserAgent,
		DeviceFingerprint: raw.DeviceFingerprint,
	}

	if lc.DeviceFingerprint == "" {
		lc.DeviceFingerprint = Fingerprint(lc.IPAddress, lc.UserAgent)
	}

	if !lc.HasCoordinates() && r.lookupable(lc.IPAddress) {
		if loc := r.lookup(ctx, lc.IPAddress); loc != nil {
			lc.Latitude = &loc.Latitude
			lc.Longitude = &loc.Longitude
			if lc.City == nil && loc.City != "" {
				city := loc.City
				lc.City = &city
			}
			if lc.Country == nil && loc.Country != "" {
				country := loc.Country
				lc.Country = &country
			}
		}
	}

	return lc
}

// lookup walks the provider chain in priority order
func (r *ContextResolver) lookup(ctx context.Context, ip string) *Location {
	for _, p := range r.providers {
		lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
		loc, err := p.Lookup(lookupCtx, ip)
		cancel()

		if err != nil {
			r.logger.Debug("geo provider lookup failed",
				slog.String("provider", p.Name()),
				slog.Any("error", err))
			continue
		}
		return loc
	}
	return nil
}

// lookupable reports whether an IP is worth sending to a provider
func (r *ContextResolver) lookupable(ip string) bool {
	if len(r.providers) == 0 {
		return false
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return !parsed.IsPrivate() && !parsed.IsLoopback() && !parsed.IsUnspecified()
}

// Fingerprint derives a device identifier from IP and user agent when
// the client supplies none.
func Fingerprint(ipAddress, userAgent string) string {
	data := []byte(fmt.Sprintf("%s:%s", ipAddress, userAgent))
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)[:32]
}
