package types

import (
	"math"
	"time"
)

// RainLogEntry is one hourly precipitation observation recorded against a
// monitor. Timestamps are hour-truncated UTC instants; insertion order is
// chronological order.
type RainLogEntry struct {
	Date       time.Time `json:"date"`
	Amount     float64   `json:"amount"`
	Cumulative float64   `json:"cumulative"`
}

// RainLog is the append-only history of hourly readings for a monitor.
// Entries are never removed, even after they age out of the rolling window.
type RainLog []RainLogEntry

// Last returns the most recent entry, or nil if the log is empty.
func (l RainLog) Last() *RainLogEntry {
	if len(l) == 0 {
		return nil
	}
	return &l[len(l)-1]
}

// Monitor is the core domain entity: a geographic region tracked for
// cumulative rainfall over a bounded time window, with a rolling 24-hour
// trigger threshold.
//
// JSON field names follow the external API contract (camelCase), which is
// also the shape delivered to the notification webhook.
type Monitor struct {
	ID         string  `json:"id" db:"id"`
	RegionName string  `json:"regionName" db:"region_name"`
	Lat        float64 `json:"lat" db:"lat"`
	Lon        float64 `json:"lon" db:"lon"`
	RadiusKm   float64 `json:"radiusKm" db:"radius_km"`

	// LocationKey is the provider-specific location handle resolved once at
	// creation. It may be a fallback placeholder if resolution failed.
	LocationKey string `json:"locationKey,omitempty" db:"location_key"`

	StartDate time.Time `json:"startDate" db:"start_date"`
	EndDate   time.Time `json:"endDate" db:"end_date"`

	// CumulativeRainfall is the lifetime total; monotonically non-decreasing
	// while the monitor is in StatusMonitoring.
	CumulativeRainfall float64 `json:"cumulativeRainfall" db:"cumulative_rainfall"`

	// Current24hRainfall is the trailing 24-hour sum recomputed each cycle.
	// Unlike the cumulative figure it can fall as old entries age out.
	Current24hRainfall float64 `json:"current24hRainfall" db:"current_24h_rainfall"`

	TriggerRainfall float64 `json:"triggerRainfall" db:"trigger_rainfall"`

	Status Status  `json:"status" db:"status"`
	Logs   RainLog `json:"logs" db:"logs"`

	TriggeredAt *time.Time `json:"triggeredAt,omitempty" db:"triggered_at"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt" db:"updated_at"`
}

// Validate implements the Validator interface for Monitor.
func (m *Monitor) Validate() error {
	if m.RegionName == "" {
		return NewAppError(ErrCodeValidationMissingField, "regionName is required", nil)
	}
	if !m.EndDate.After(m.StartDate) {
		return NewAppError(ErrCodeValidationTimeWindow, "endDate must be after startDate", nil)
	}
	if m.TriggerRainfall <= 0 {
		return NewAppError(ErrCodeValidationThresholdRange, "triggerRainfall must be positive", nil)
	}
	return nil
}

// Round2 rounds a millimeter amount to two decimal places. Accumulators and
// rolling sums are stored at this precision to avoid floating-point drift
// across long-running accumulation.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// TriggerEvent is the payload delivered to the notification webhook when a
// monitor's rolling 24-hour sum first crosses its trigger threshold.
type TriggerEvent struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Monitor   *Monitor  `json:"monitor"`
}

// EventMonitorTriggered is the event name carried by TriggerEvent.
const EventMonitorTriggered = "monitor_triggered"
