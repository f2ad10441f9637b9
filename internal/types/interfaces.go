package types

import (
	"context"
	"time"
)

// Validator is implemented by entities to self-validate.
type Validator interface {
	Validate() error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// RainfallSource is the boundary contract toward the external weather
// provider. Implementations must degrade gracefully: both methods are
// best-effort and never surface provider outages as hard failures.
type RainfallSource interface {
	// ResolveLocationKey maps coordinates to a provider location handle.
	// On provider failure it returns a placeholder handle rather than an
	// error, so monitor creation never fails on provider outage.
	ResolveLocationKey(ctx context.Context, lat, lon float64) string

	// HourlyRainfall returns the precipitation (mm) observed in the past
	// hour for the given location handle. Any provider error degrades to
	// a zero reading; the returned bool is false when the value is a
	// degraded fallback rather than a real observation.
	HourlyRainfall(ctx context.Context, locationKey string) (float64, bool)
}

// Notifier delivers a trigger event to the external notification sink.
// Delivery is best-effort, at most one attempt per crossing.
type Notifier interface {
	NotifyTriggered(ctx context.Context, event *TriggerEvent) error
}

// MonitorRepository defines the data access contract for monitors.
type MonitorRepository interface {
	Create(ctx context.Context, m *Monitor) error
	GetByID(ctx context.Context, id string) (*Monitor, error)
	List(ctx context.Context) ([]*Monitor, error)
	// ListUnfinished returns every monitor whose status is not completed,
	// in stable id order.
	ListUnfinished(ctx context.Context) ([]*Monitor, error)
	Update(ctx context.Context, m *Monitor) error
}
