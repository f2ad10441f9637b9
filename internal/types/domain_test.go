package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorValidate(t *testing.T) {
	base := func() *Monitor {
		return &Monitor{
			RegionName:      "Dhaka North",
			Lat:             23.81,
			Lon:             90.41,
			RadiusKm:        10,
			StartDate:       time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
			EndDate:         time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC),
			TriggerRainfall: 100,
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("missing region name", func(t *testing.T) {
		m := base()
		m.RegionName = ""
		err := m.Validate()
		require.Error(t, err)
		assertCode(t, err, ErrCodeValidationMissingField)
	})

	t.Run("end before start", func(t *testing.T) {
		m := base()
		m.EndDate = m.StartDate.Add(-time.Hour)
		assertCode(t, m.Validate(), ErrCodeValidationTimeWindow)
	})

	t.Run("end equal to start", func(t *testing.T) {
		m := base()
		m.EndDate = m.StartDate
		assertCode(t, m.Validate(), ErrCodeValidationTimeWindow)
	})

	t.Run("non-positive trigger", func(t *testing.T) {
		m := base()
		m.TriggerRainfall = 0
		assertCode(t, m.Validate(), ErrCodeValidationThresholdRange)
	})
}

func assertCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := err.(*AppError)
	require.True(t, ok, "expected *AppError, got %T", err)
	assert.Equal(t, code, appErr.Code)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 1.23, Round2(1.2349))
	assert.Equal(t, 1.24, Round2(1.235))
	assert.Equal(t, 0.0, Round2(0))
	// Repeated float additions accumulate representation error; Round2 pins
	// the stored value to centimillimeter precision.
	sum := 0.0
	for i := 0; i < 10; i++ {
		sum += 0.1
	}
	assert.Equal(t, 1.0, Round2(sum))
}

func TestRainLogLast(t *testing.T) {
	var empty RainLog
	assert.Nil(t, empty.Last())

	log := RainLog{
		{Date: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC), Amount: 1},
		{Date: time.Date(2026, 9, 1, 11, 0, 0, 0, time.UTC), Amount: 2},
	}
	last := log.Last()
	require.NotNil(t, last)
	assert.Equal(t, 2.0, last.Amount)
}

func TestRainLogScanValue(t *testing.T) {
	log := RainLog{
		{Date: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC), Amount: 4, Cumulative: 4},
	}
	raw, err := log.Value()
	require.NoError(t, err)

	var roundTrip RainLog
	require.NoError(t, roundTrip.Scan(raw))
	require.Len(t, roundTrip, 1)
	assert.True(t, roundTrip[0].Date.Equal(log[0].Date))
	assert.Equal(t, 4.0, roundTrip[0].Amount)

	var fromNil RainLog
	require.NoError(t, fromNil.Scan(nil))
	assert.Nil(t, fromNil)

	var nilLog RainLog
	v, err := nilLog.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), v)
}

func TestStatusHelpers(t *testing.T) {
	assert.True(t, StatusTriggered.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.False(t, StatusInstantiated.IsTerminal())
	assert.False(t, StatusMonitoring.IsTerminal())

	assert.True(t, StatusMonitoring.IsValid())
	assert.False(t, Status("paused").IsValid())
}

func TestErrorCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationTimeWindow, 400},
		{ErrCodeValidationMissingField, 400},
		{ErrCodeNotFoundMonitor, 404},
		{ErrCodeConflictCycleRunning, 409},
		{ErrCodeUpstreamWeather, 502},
		{ErrCodeForecastNotConfigured, 503},
		{ErrCodeInternalDB, 500},
		{ErrorCode("something_unknown"), 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.code.HTTPStatus(), "code %s", tt.code)
	}
}
