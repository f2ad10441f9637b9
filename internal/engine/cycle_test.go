package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rainwatch/internal/types"
)

// ============================================================
// Mock Implementations
// ============================================================

// mockClock is a manually advanced clock.
type mockClock struct {
	t time.Time
}

func (c *mockClock) Now() time.Time { return c.t }

func (c *mockClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// mockRepo is an in-memory MonitorRepository. Reads hand out deep copies
// and writes store deep copies back, so a discarded in-memory mutation does
// not leak into the store, matching real persistence semantics.
type mockRepo struct {
	store       map[string]*types.Monitor
	listErr     error
	listGate    chan struct{} // when set, ListUnfinished blocks until closed
	listStarted chan struct{} // closed when a gated ListUnfinished begins
	updateErrBy map[string]error
	updateCalls int
}

func newMockRepo(monitors ...*types.Monitor) *mockRepo {
	r := &mockRepo{
		store:       make(map[string]*types.Monitor),
		updateErrBy: make(map[string]error),
	}
	for _, m := range monitors {
		r.store[m.ID] = copyMonitor(m)
	}
	return r
}

func copyMonitor(m *types.Monitor) *types.Monitor {
	cp := *m
	cp.Logs = append(types.RainLog(nil), m.Logs...)
	if m.TriggeredAt != nil {
		t := *m.TriggeredAt
		cp.TriggeredAt = &t
	}
	return &cp
}

func (r *mockRepo) Create(_ context.Context, m *types.Monitor) error {
	r.store[m.ID] = copyMonitor(m)
	return nil
}

func (r *mockRepo) GetByID(_ context.Context, id string) (*types.Monitor, error) {
	m, ok := r.store[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundMonitor, "monitor not found", nil)
	}
	return copyMonitor(m), nil
}

func (r *mockRepo) List(_ context.Context) ([]*types.Monitor, error) {
	return r.listAll(func(*types.Monitor) bool { return true })
}

func (r *mockRepo) ListUnfinished(_ context.Context) ([]*types.Monitor, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	if r.listGate != nil {
		if r.listStarted != nil {
			close(r.listStarted)
			r.listStarted = nil
		}
		<-r.listGate
	}
	return r.listAll(func(m *types.Monitor) bool { return m.Status != types.StatusCompleted })
}

func (r *mockRepo) listAll(keep func(*types.Monitor) bool) ([]*types.Monitor, error) {
	ids := make([]string, 0, len(r.store))
	for id := range r.store {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []*types.Monitor
	for _, id := range ids {
		if keep(r.store[id]) {
			out = append(out, copyMonitor(r.store[id]))
		}
	}
	return out, nil
}

func (r *mockRepo) Update(_ context.Context, m *types.Monitor) error {
	r.updateCalls++
	if err := r.updateErrBy[m.ID]; err != nil {
		return err
	}
	r.store[m.ID] = copyMonitor(m)
	return nil
}

// mockSource returns a fixed hourly amount, or a degraded zero reading when
// failing is set.
type mockSource struct {
	amount  float64
	failing bool
	calls   int
}

func (s *mockSource) ResolveLocationKey(_ context.Context, lat, lon float64) string {
	return "mock-key"
}

func (s *mockSource) HourlyRainfall(_ context.Context, _ string) (float64, bool) {
	s.calls++
	if s.failing {
		return 0, false
	}
	return s.amount, true
}

// mockNotifier records delivered events.
type mockNotifier struct {
	events []*types.TriggerEvent
	err    error
}

func (n *mockNotifier) NotifyTriggered(_ context.Context, event *types.TriggerEvent) error {
	n.events = append(n.events, event)
	return n.err
}

// ============================================================
// Helpers
// ============================================================

var t0 = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func newTestEngine(repo *mockRepo, source *mockSource, notifier *mockNotifier, clock *mockClock) (*Engine, *Metrics) {
	metrics := NewMetricsWith(prometheus.NewRegistry())
	eng := New(Config{
		Repo:     repo,
		Source:   source,
		Notifier: notifier,
		Clock:    clock,
		Logger:   quietLogger(),
		Metrics:  metrics,
	})
	return eng, metrics
}

func newActiveMonitor(id string, trigger float64) *types.Monitor {
	return &types.Monitor{
		ID:              id,
		RegionName:      "Test Basin",
		Lat:             24.89,
		Lon:             91.87,
		RadiusKm:        10,
		LocationKey:     "28143",
		StartDate:       t0,
		EndDate:         t0.Add(7 * 24 * time.Hour),
		TriggerRainfall: trigger,
		Status:          types.StatusInstantiated,
	}
}

// ============================================================
// Scenario Tests
// ============================================================

// Scenario A: 26 hourly readings of 4mm each against a 100mm trigger. The
// rolling 24h window holds at most 25 hourly entries (the boundary entry at
// exactly now-24h is inside the window), so the sum reaches 25*4 = 100mm at
// hour 25 and the monitor triggers exactly then.
func TestRunCycle_TriggersAtExactThreshold(t *testing.T) {
	repo := newMockRepo(newActiveMonitor("mon_a", 100))
	source := &mockSource{amount: 4}
	notifier := &mockNotifier{}
	clock := &mockClock{t: t0}
	eng, _ := newTestEngine(repo, source, notifier, clock)

	var triggeredHour int
	for hour := 1; hour <= 26; hour++ {
		stats, err := eng.RunCycle(context.Background())
		require.NoError(t, err)

		m, err := repo.GetByID(context.Background(), "mon_a")
		require.NoError(t, err)

		if hour < 25 {
			assert.Equal(t, types.StatusMonitoring, m.Status, "hour %d", hour)
			assert.Equal(t, float64(4*hour), m.Current24hRainfall, "hour %d", hour)
		}
		if m.Status == types.StatusTriggered && triggeredHour == 0 {
			triggeredHour = hour
			assert.Equal(t, 1, stats.Triggered)
		}

		clock.advance(time.Hour)
	}

	assert.Equal(t, 25, triggeredHour, "trigger fires at hour 25")

	m, err := repo.GetByID(context.Background(), "mon_a")
	require.NoError(t, err)
	assert.Equal(t, types.StatusTriggered, m.Status)
	assert.Equal(t, 100.0, m.Current24hRainfall)
	assert.Equal(t, 100.0, m.CumulativeRainfall)
	require.Len(t, m.Logs, 25, "accumulation freezes once triggered")
	require.NotNil(t, m.TriggeredAt)
	assert.True(t, m.TriggeredAt.Equal(t0.Add(24*time.Hour)))

	require.Len(t, notifier.events, 1, "notifier invoked exactly once")
	event := notifier.events[0]
	assert.Equal(t, types.EventMonitorTriggered, event.Event)
	assert.Equal(t, 100.0, event.Monitor.Current24hRainfall)
}

// Scenario B: the window elapses while monitoring below threshold.
func TestRunCycle_CompletesWithoutNotification(t *testing.T) {
	m := newActiveMonitor("mon_b", 100)
	m.EndDate = t0.Add(3 * time.Hour)
	repo := newMockRepo(m)
	source := &mockSource{amount: 1}
	notifier := &mockNotifier{}
	clock := &mockClock{t: t0}
	eng, _ := newTestEngine(repo, source, notifier, clock)

	for hour := 0; hour < 5; hour++ {
		_, err := eng.RunCycle(context.Background())
		require.NoError(t, err)
		clock.advance(time.Hour)
	}

	got, err := repo.GetByID(context.Background(), "mon_b")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, got.Status)
	assert.Empty(t, notifier.events)
	// Readings at hours 0..3 (endDate is inclusive); hour 4 is past the end.
	assert.Len(t, got.Logs, 4)
}

// Scenario C: the reading source fails for 3 consecutive hours. Each hour
// records a zero entry; the accumulators are unaffected and the monitor
// never falsely triggers.
func TestRunCycle_DegradedReadingsRecordZero(t *testing.T) {
	repo := newMockRepo(newActiveMonitor("mon_c", 10))
	source := &mockSource{amount: 4}
	notifier := &mockNotifier{}
	clock := &mockClock{t: t0}
	eng, _ := newTestEngine(repo, source, notifier, clock)

	// Two good hours first.
	for hour := 0; hour < 2; hour++ {
		_, err := eng.RunCycle(context.Background())
		require.NoError(t, err)
		clock.advance(time.Hour)
	}

	source.failing = true
	for hour := 0; hour < 3; hour++ {
		_, err := eng.RunCycle(context.Background())
		require.NoError(t, err)
		clock.advance(time.Hour)
	}

	got, err := repo.GetByID(context.Background(), "mon_c")
	require.NoError(t, err)
	assert.Equal(t, types.StatusMonitoring, got.Status)
	assert.Equal(t, 8.0, got.CumulativeRainfall)
	assert.Equal(t, 8.0, got.Current24hRainfall)
	require.Len(t, got.Logs, 5)
	for _, entry := range got.Logs[2:] {
		assert.Equal(t, 0.0, entry.Amount)
		assert.Equal(t, 8.0, entry.Cumulative)
	}
	assert.Empty(t, notifier.events)
}

// ============================================================
// Property Tests
// ============================================================

func TestRunCycle_NoOpBeforeStartDate(t *testing.T) {
	m := newActiveMonitor("mon_idle", 100)
	m.StartDate = t0.Add(48 * time.Hour)
	m.EndDate = t0.Add(96 * time.Hour)
	repo := newMockRepo(m)
	source := &mockSource{amount: 4}
	notifier := &mockNotifier{}
	clock := &mockClock{t: t0}
	eng, _ := newTestEngine(repo, source, notifier, clock)

	stats, err := eng.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Evaluated)
	assert.Equal(t, 0, source.calls, "no reading fetched")
	assert.Equal(t, 0, repo.updateCalls, "not persisted")

	got, err := repo.GetByID(context.Background(), "mon_idle")
	require.NoError(t, err)
	assert.Equal(t, types.StatusInstantiated, got.Status)
}

func TestRunCycle_CompletionPreemptsStart(t *testing.T) {
	m := newActiveMonitor("mon_late", 100)
	m.StartDate = t0.Add(-72 * time.Hour)
	m.EndDate = t0.Add(-24 * time.Hour)
	repo := newMockRepo(m)
	source := &mockSource{amount: 4}
	notifier := &mockNotifier{}
	clock := &mockClock{t: t0}
	eng, _ := newTestEngine(repo, source, notifier, clock)

	_, err := eng.RunCycle(context.Background())
	require.NoError(t, err)

	got, err := repo.GetByID(context.Background(), "mon_late")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, got.Status)
	assert.Equal(t, 0, source.calls, "completion pre-empts starting")
	assert.Empty(t, got.Logs)
}

func TestRunCycle_MonitorStartsAndAccumulatesSameCycle(t *testing.T) {
	repo := newMockRepo(newActiveMonitor("mon_fresh", 100))
	source := &mockSource{amount: 2.5}
	notifier := &mockNotifier{}
	clock := &mockClock{t: t0}
	eng, _ := newTestEngine(repo, source, notifier, clock)

	stats, err := eng.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Started)
	assert.Equal(t, 1, stats.Recorded)

	got, err := repo.GetByID(context.Background(), "mon_fresh")
	require.NoError(t, err)
	assert.Equal(t, types.StatusMonitoring, got.Status)
	require.Len(t, got.Logs, 1)
	assert.Equal(t, 2.5, got.Logs[0].Amount)
}

func TestRunCycle_IdempotentWithinHour(t *testing.T) {
	repo := newMockRepo(newActiveMonitor("mon_dup", 100))
	source := &mockSource{amount: 4}
	notifier := &mockNotifier{}
	clock := &mockClock{t: t0.Add(30 * time.Minute)} // mid-hour manual trigger
	eng, _ := newTestEngine(repo, source, notifier, clock)

	_, err := eng.RunCycle(context.Background())
	require.NoError(t, err)
	updatesAfterFirst := repo.updateCalls

	// Scheduled sweep arrives later within the same hour.
	clock.advance(20 * time.Minute)
	stats, err := eng.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, updatesAfterFirst, repo.updateCalls, "no second persist")
	assert.Equal(t, 1, source.calls, "no second fetch")

	got, err := repo.GetByID(context.Background(), "mon_dup")
	require.NoError(t, err)
	require.Len(t, got.Logs, 1, "no duplicate log entry")
	assert.True(t, got.Logs[0].Date.Equal(t0), "entry timestamp truncated to the hour")
}

func TestRunCycle_TriggeredMonitorIsFrozen(t *testing.T) {
	m := newActiveMonitor("mon_done", 10)
	now := t0.Add(5 * time.Hour)
	triggeredAt := t0.Add(2 * time.Hour)
	m.Status = types.StatusTriggered
	m.TriggeredAt = &triggeredAt
	m.CumulativeRainfall = 12
	m.Current24hRainfall = 12
	m.Logs = types.RainLog{
		{Date: t0, Amount: 4, Cumulative: 4},
		{Date: t0.Add(time.Hour), Amount: 4, Cumulative: 8},
		{Date: t0.Add(2 * time.Hour), Amount: 4, Cumulative: 12},
	}
	repo := newMockRepo(m)
	source := &mockSource{amount: 4}
	notifier := &mockNotifier{}
	clock := &mockClock{t: now}
	eng, _ := newTestEngine(repo, source, notifier, clock)

	for i := 0; i < 3; i++ {
		_, err := eng.RunCycle(context.Background())
		require.NoError(t, err)
		clock.advance(time.Hour)
	}

	got, err := repo.GetByID(context.Background(), "mon_done")
	require.NoError(t, err)
	assert.Equal(t, types.StatusTriggered, got.Status)
	assert.Len(t, got.Logs, 3, "no further accumulation")
	assert.Equal(t, 0, source.calls)
	assert.Empty(t, notifier.events, "notifier never re-fired")
	assert.Equal(t, 0, repo.updateCalls)
}

func TestRunCycle_PersistFailureDoesNotAbortSweep(t *testing.T) {
	m1 := newActiveMonitor("mon_1", 100)
	m2 := newActiveMonitor("mon_2", 100)
	repo := newMockRepo(m1, m2)
	repo.updateErrBy["mon_1"] = errors.New("connection reset")
	source := &mockSource{amount: 4}
	notifier := &mockNotifier{}
	clock := &mockClock{t: t0}
	eng, _ := newTestEngine(repo, source, notifier, clock)

	stats, err := eng.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Evaluated)
	assert.Equal(t, 1, stats.Failures)

	// mon_1's mutation was discarded; mon_2 persisted.
	got1, err := repo.GetByID(context.Background(), "mon_1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusInstantiated, got1.Status)
	assert.Empty(t, got1.Logs)

	got2, err := repo.GetByID(context.Background(), "mon_2")
	require.NoError(t, err)
	assert.Equal(t, types.StatusMonitoring, got2.Status)
	require.Len(t, got2.Logs, 1)

	// The discarded monitor is picked up again next hour.
	clock.advance(time.Hour)
	delete(repo.updateErrBy, "mon_1")
	_, err = eng.RunCycle(context.Background())
	require.NoError(t, err)

	got1, err = repo.GetByID(context.Background(), "mon_1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusMonitoring, got1.Status)
}

func TestRunCycle_NotificationFailureKeepsTriggeredState(t *testing.T) {
	m := newActiveMonitor("mon_n", 4)
	repo := newMockRepo(m)
	source := &mockSource{amount: 4}
	notifier := &mockNotifier{err: errors.New("webhook down")}
	clock := &mockClock{t: t0}
	eng, metrics := newTestEngine(repo, source, notifier, clock)

	_, err := eng.RunCycle(context.Background())
	require.NoError(t, err)

	got, err := repo.GetByID(context.Background(), "mon_n")
	require.NoError(t, err)
	assert.Equal(t, types.StatusTriggered, got.Status, "transition not rolled back")
	require.Len(t, notifier.events, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.NotifyFailures))

	// Next cycle: terminal, no re-delivery attempt.
	clock.advance(time.Hour)
	_, err = eng.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Len(t, notifier.events, 1)
}

func TestRunCycle_ListFailureReturnsError(t *testing.T) {
	repo := newMockRepo()
	repo.listErr = errors.New("db unavailable")
	eng, _ := newTestEngine(repo, &mockSource{}, &mockNotifier{}, &mockClock{t: t0})

	_, err := eng.RunCycle(context.Background())
	require.Error(t, err)
}

func TestRunCycle_CanonicalCycleTimestamp(t *testing.T) {
	m1 := newActiveMonitor("mon_x", 100)
	m2 := newActiveMonitor("mon_y", 100)
	repo := newMockRepo(m1, m2)
	source := &mockSource{amount: 1}
	clock := &mockClock{t: t0.Add(47 * time.Minute)}
	eng, _ := newTestEngine(repo, source, &mockNotifier{}, clock)

	stats, err := eng.RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, stats.CycleTime.Equal(t0), "cycle timestamp truncated to the hour")

	for _, id := range []string{"mon_x", "mon_y"} {
		got, err := repo.GetByID(context.Background(), id)
		require.NoError(t, err)
		require.Len(t, got.Logs, 1)
		assert.True(t, got.Logs[0].Date.Equal(t0), "all monitors share the cycle timestamp")
	}
}

func TestTryRunCycle_ConflictWhileCycleInFlight(t *testing.T) {
	repo := newMockRepo()
	repo.listGate = make(chan struct{})
	repo.listStarted = make(chan struct{})
	eng, _ := newTestEngine(repo, &mockSource{}, &mockNotifier{}, &mockClock{t: t0})

	listStarted := repo.listStarted
	finished := make(chan struct{})
	go func() {
		_, _ = eng.RunCycle(context.Background())
		close(finished)
	}()

	// The in-flight cycle holds the run-lock once it reaches the repo.
	<-listStarted

	_, err := eng.TryRunCycle(context.Background())
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeConflictCycleRunning, appErr.Code)

	close(repo.listGate)
	<-finished

	_, err = eng.TryRunCycle(context.Background())
	assert.NoError(t, err, "lock released after the cycle completes")
}

func TestEngine_StartStop(t *testing.T) {
	repo := newMockRepo()
	metrics := NewMetricsWith(prometheus.NewRegistry())
	eng := New(Config{
		Repo:     repo,
		Source:   &mockSource{},
		Notifier: &mockNotifier{},
		Logger:   quietLogger(),
		Metrics:  metrics,
		Interval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng.Start(ctx)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.CyclesTotal) >= 1
	}, time.Second, 5*time.Millisecond, "scheduled cycle runs")

	eng.Stop()
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.EngineRunning))

	// Safe to call again.
	eng.Stop()
}
