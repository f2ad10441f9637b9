package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"rainwatch/internal/types"
)

// CycleStats summarizes one evaluation sweep. Returned to the manual
// trigger endpoint and logged after every scheduled cycle.
type CycleStats struct {
	CycleTime time.Time `json:"cycleTime"`
	Evaluated int       `json:"evaluated"`
	Started   int       `json:"started"`
	Recorded  int       `json:"recorded"`
	Skipped   int       `json:"skipped"`
	Triggered int       `json:"triggered"`
	Completed int       `json:"completed"`
	Failures  int       `json:"failures"`
}

// Config holds the dependencies and tuning for creating an Engine.
type Config struct {
	Repo     types.MonitorRepository
	Source   types.RainfallSource
	Notifier types.Notifier
	Clock    types.Clock
	Logger   *slog.Logger
	Metrics  *Metrics

	// Window is the rolling accumulation window; defaults to DefaultWindow.
	Window time.Duration
	// Interval is the scheduled cycle cadence; defaults to one hour.
	Interval time.Duration
}

// Engine owns the evaluation cycle: the scheduled hourly sweep over all
// non-completed monitors. It holds its own run-lock so a manual trigger and
// the timer-driven path are mutually exclusive, and its own lifecycle
// (Start/Stop) so shutdown lets an in-flight cycle finish.
type Engine struct {
	repo     types.MonitorRepository
	source   types.RainfallSource
	notifier types.Notifier
	clock    types.Clock
	logger   *slog.Logger
	metrics  *Metrics
	window   time.Duration
	interval time.Duration

	// runMu serializes cycle execution across the scheduled loop and
	// manual triggers.
	runMu sync.Mutex

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates an Engine with the given configuration.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	return &Engine{
		repo:     cfg.Repo,
		source:   cfg.Source,
		notifier: cfg.Notifier,
		clock:    clock,
		logger:   logger,
		metrics:  cfg.Metrics,
		window:   window,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// RunCycle executes one evaluation sweep over every non-completed monitor.
// It is safe to call concurrently with the scheduled loop; executions are
// serialized by the run-lock, never interleaved.
//
// A single canonical cycle timestamp, truncated to the hour, is used as
// both the log entry timestamp and the "now" for all window and threshold
// computations, so every monitor in one sweep is evaluated against the same
// instant.
func (e *Engine) RunCycle(ctx context.Context) (CycleStats, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	return e.runCycleLocked(ctx)
}

// TryRunCycle runs a cycle only when no other cycle is in flight. A manual
// trigger arriving while the scheduled sweep holds the run-lock gets a
// conflict error instead of queueing behind it.
func (e *Engine) TryRunCycle(ctx context.Context) (CycleStats, error) {
	if !e.runMu.TryLock() {
		return CycleStats{}, types.NewAppError(
			types.ErrCodeConflictCycleRunning,
			"an evaluation cycle is already running",
			nil,
		)
	}
	defer e.runMu.Unlock()

	return e.runCycleLocked(ctx)
}

func (e *Engine) runCycleLocked(ctx context.Context) (CycleStats, error) {
	start := e.clock.Now()
	cycleTime := start.UTC().Truncate(time.Hour)
	stats := CycleStats{CycleTime: cycleTime}

	monitors, err := e.repo.ListUnfinished(ctx)
	if err != nil {
		e.logger.ErrorContext(ctx, "cycle aborted: loading monitors failed",
			"cycle_time", cycleTime.Format(time.RFC3339),
			"error", err,
		)
		return stats, err
	}

	for _, m := range monitors {
		e.evaluateMonitor(ctx, m, cycleTime, &stats)
	}

	if e.metrics != nil {
		e.metrics.CyclesTotal.Inc()
		e.metrics.CycleDuration.Observe(time.Since(start).Seconds())
		e.metrics.MonitorsEvaluated.Add(float64(stats.Evaluated))
	}

	e.logger.InfoContext(ctx, "evaluation cycle complete",
		"cycle_time", cycleTime.Format(time.RFC3339),
		"evaluated", stats.Evaluated,
		"started", stats.Started,
		"recorded", stats.Recorded,
		"triggered", stats.Triggered,
		"completed", stats.Completed,
		"failures", stats.Failures,
	)

	return stats, nil
}

// evaluateMonitor runs one monitor through the cycle sequence: lifecycle
// check, conditional reading fetch, aggregation, threshold check,
// conditional notification, conditional persist. Failures are logged and
// counted; they never abort the sweep.
func (e *Engine) evaluateMonitor(ctx context.Context, m *types.Monitor, cycleTime time.Time, stats *CycleStats) {
	stats.Evaluated++

	wasMonitoring := m.Status == types.StatusMonitoring
	step := AdvanceLifecycle(m, cycleTime)
	changed := step.StatusChanged

	if step.StatusChanged {
		switch m.Status {
		case types.StatusCompleted:
			stats.Completed++
		case types.StatusMonitoring:
			if !wasMonitoring {
				stats.Started++
			}
		}
	}

	if step.Accumulate {
		if recorded := e.recordReading(ctx, m, cycleTime); recorded {
			stats.Recorded++
			changed = true

			if m.Current24hRainfall >= m.TriggerRainfall {
				e.trigger(ctx, m, cycleTime)
				stats.Triggered++
			}
		} else {
			// Already recorded for this hour: a manual trigger coincided
			// with the scheduled sweep. Nothing changed for this monitor.
			stats.Skipped++
		}
	}

	if !changed {
		return
	}

	if err := e.repo.Update(ctx, m); err != nil {
		// The in-memory mutation is discarded with this sweep; the monitor
		// is retried naturally on the next cycle.
		stats.Failures++
		if e.metrics != nil {
			e.metrics.PersistFailures.Inc()
		}
		e.logger.ErrorContext(ctx, "persisting monitor failed",
			"monitor_id", m.ID,
			"region", m.RegionName,
			"error", err,
		)
	}
}

// recordReading fetches the hourly reading for a monitoring monitor,
// appends it to the log, and recomputes both accumulators. Returns false
// when an entry for this cycle's hour already exists, which makes cycle
// execution idempotent within an hour.
func (e *Engine) recordReading(ctx context.Context, m *types.Monitor, cycleTime time.Time) bool {
	if last := m.Logs.Last(); last != nil && !last.Date.Before(cycleTime) {
		return false
	}

	amount, observed := e.source.HourlyRainfall(ctx, m.LocationKey)
	if e.metrics != nil {
		outcome := "ok"
		if !observed {
			outcome = "degraded"
		}
		e.metrics.ReadingsFetched.WithLabelValues(outcome).Inc()
	}

	m.CumulativeRainfall = types.Round2(m.CumulativeRainfall + amount)
	m.Logs = append(m.Logs, types.RainLogEntry{
		Date:       cycleTime,
		Amount:     amount,
		Cumulative: m.CumulativeRainfall,
	})
	m.Current24hRainfall = RollingSum(m.Logs, cycleTime, e.window)

	e.logger.InfoContext(ctx, "reading recorded",
		"monitor_id", m.ID,
		"region", m.RegionName,
		"amount_mm", amount,
		"rolling_24h_mm", m.Current24hRainfall,
		"cumulative_mm", m.CumulativeRainfall,
		"observed", observed,
	)
	return true
}

// trigger flips the monitor to triggered and attempts the single
// notification delivery for this crossing. Delivery failure does not roll
// back the transition; the monitor is persisted as triggered regardless.
func (e *Engine) trigger(ctx context.Context, m *types.Monitor, cycleTime time.Time) {
	m.Status = types.StatusTriggered
	triggeredAt := cycleTime
	m.TriggeredAt = &triggeredAt

	if e.metrics != nil {
		e.metrics.TriggersFired.Inc()
	}
	e.logger.WarnContext(ctx, "monitor triggered",
		"monitor_id", m.ID,
		"region", m.RegionName,
		"rolling_24h_mm", m.Current24hRainfall,
		"trigger_mm", m.TriggerRainfall,
	)

	event := &types.TriggerEvent{
		Event:     types.EventMonitorTriggered,
		Timestamp: e.clock.Now(),
		Monitor:   m,
	}
	if err := e.notifier.NotifyTriggered(ctx, event); err != nil {
		if e.metrics != nil {
			e.metrics.NotifyFailures.Inc()
		}
		e.logger.ErrorContext(ctx, "trigger notification failed",
			"monitor_id", m.ID,
			"error", err,
		)
	}
}

// Start launches the scheduled loop. The first cycle fires at the next
// interval boundary (the top of the hour in production), then repeats every
// interval. Start returns immediately.
func (e *Engine) Start(ctx context.Context) {
	if e.metrics != nil {
		e.metrics.EngineRunning.Set(1)
	}
	e.wg.Add(1)
	go e.loop(ctx)
}

// loop drives scheduled cycles until Stop is called or the context is
// cancelled.
func (e *Engine) loop(ctx context.Context) {
	defer e.wg.Done()
	defer func() {
		if e.metrics != nil {
			e.metrics.EngineRunning.Set(0)
		}
	}()

	timer := time.NewTimer(e.untilNextCycle())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-timer.C:
			if _, err := e.RunCycle(ctx); err != nil {
				e.logger.ErrorContext(ctx, "scheduled cycle failed", "error", err)
			}
			timer.Reset(e.untilNextCycle())
		}
	}
}

// untilNextCycle returns the wait until the next interval boundary.
func (e *Engine) untilNextCycle() time.Duration {
	now := e.clock.Now()
	next := now.Truncate(e.interval).Add(e.interval)
	return next.Sub(now)
}

// Stop halts the scheduled loop and waits for any in-flight cycle to
// finish. Safe to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()

	// A manual cycle may still hold the run-lock; taking it guarantees
	// full quiescence before Stop returns.
	e.runMu.Lock()
	e.runMu.Unlock()
}
