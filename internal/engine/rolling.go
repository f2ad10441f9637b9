// Package engine implements the monitor-evaluation core: the rolling-window
// rainfall aggregation, the monitor lifecycle state machine, and the hourly
// evaluation cycle that drives both.
package engine

import (
	"time"

	"rainwatch/internal/types"
)

// DefaultWindow is the trailing accumulation window evaluated against a
// monitor's trigger threshold.
const DefaultWindow = 24 * time.Hour

// RollingSum computes the trailing-window rainfall sum from a monitor's log.
// An entry is inside the window when its timestamp is at or after
// now-window; entries are hour-truncated instants, so the comparison is
// exact with no date-string parsing skew. The log is never mutated and
// entries older than the window are skipped, not removed.
//
// The result is rounded to two decimals to match the stored accumulator
// precision. An empty log yields 0.
func RollingSum(log types.RainLog, now time.Time, window time.Duration) float64 {
	cutoff := now.Add(-window)
	sum := 0.0
	for _, entry := range log {
		if !entry.Date.Before(cutoff) {
			sum += entry.Amount
		}
	}
	return types.Round2(sum)
}
