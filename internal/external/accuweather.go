package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"rainwatch/internal/config"
	"rainwatch/internal/types"
)

// AccuWeatherClient implements types.RainfallSource against the AccuWeather
// Core Weather API. Both operations are deliberately lossy on failure: a
// provider outage must never fail monitor creation or abort an evaluation
// cycle, so errors degrade to a fallback location key or a zero reading and
// are surfaced only through logs.
type AccuWeatherClient struct {
	base    *BaseClient
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

// Compile-time assertion that AccuWeatherClient satisfies RainfallSource.
var _ types.RainfallSource = (*AccuWeatherClient)(nil)

// NewAccuWeatherClient creates an AccuWeatherClient from the weather config.
// The short HTTP timeout bounds each provider call so a hung upstream cannot
// stall an evaluation cycle.
func NewAccuWeatherClient(cfg config.WeatherConfig, logger *slog.Logger) *AccuWeatherClient {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	base := NewBaseClient(
		httpClient,
		"accuweather",
		RetryPolicy{MaxRetries: 1, MinWait: 250 * time.Millisecond, MaxWait: 2 * time.Second},
		"RainWatch/1.0",
	)

	return &AccuWeatherClient{
		base:    base,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		logger:  logger,
	}
}

// NewAccuWeatherClientWithBase creates an AccuWeatherClient with a
// pre-configured BaseClient. Used by tests to disable retries and point at
// an httptest server.
func NewAccuWeatherClientWithBase(base *BaseClient, baseURL, apiKey string, logger *slog.Logger) *AccuWeatherClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccuWeatherClient{
		base:    base,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		logger:  logger,
	}
}

// geopositionResponse is the subset of the AccuWeather geoposition search
// response we consume.
type geopositionResponse struct {
	Key string `json:"Key"`
}

// currentConditions is the subset of the AccuWeather current-conditions
// response we consume. The endpoint returns a JSON array.
type currentConditions struct {
	PrecipitationSummary struct {
		PastHour struct {
			Metric struct {
				Value float64 `json:"Value"`
			} `json:"Metric"`
		} `json:"PastHour"`
	} `json:"PrecipitationSummary"`
}

// FallbackLocationKey builds the placeholder handle used when geoposition
// resolution fails. The handle is stable for a coordinate pair so a later
// manual repair can identify affected monitors.
func FallbackLocationKey(lat, lon float64) string {
	return fmt.Sprintf("FALLBACK_%d_%d", int(math.Floor(lat)), int(math.Floor(lon)))
}

// ResolveLocationKey maps coordinates to an AccuWeather location key via the
// geoposition search endpoint. On any failure it returns the fallback
// placeholder handle instead of an error.
func (c *AccuWeatherClient) ResolveLocationKey(ctx context.Context, lat, lon float64) string {
	u := fmt.Sprintf("%s/locations/v1/cities/geoposition/search?apikey=%s&q=%s",
		c.baseURL,
		url.QueryEscape(c.apiKey),
		url.QueryEscape(fmt.Sprintf("%f,%f", lat, lon)),
	)

	var out geopositionResponse
	if err := c.getJSON(ctx, u, &out); err != nil {
		c.logger.WarnContext(ctx, "location key resolution failed, using fallback",
			"lat", lat,
			"lon", lon,
			"error", err,
		)
		return FallbackLocationKey(lat, lon)
	}

	if out.Key == "" {
		c.logger.WarnContext(ctx, "location key resolution returned empty key, using fallback",
			"lat", lat,
			"lon", lon,
		)
		return FallbackLocationKey(lat, lon)
	}

	return out.Key
}

// HourlyRainfall returns the past-hour precipitation (mm) for the given
// location key. Any provider error or missing field degrades to a zero
// reading; the second return value is false for degraded readings so the
// caller can record the condition without treating it as an error.
func (c *AccuWeatherClient) HourlyRainfall(ctx context.Context, locationKey string) (float64, bool) {
	u := fmt.Sprintf("%s/currentconditions/v1/%s?apikey=%s&details=true",
		c.baseURL,
		url.PathEscape(locationKey),
		url.QueryEscape(c.apiKey),
	)

	var out []currentConditions
	if err := c.getJSON(ctx, u, &out); err != nil {
		c.logger.WarnContext(ctx, "hourly rainfall fetch failed, degrading to zero",
			"location_key", locationKey,
			"error", err,
		)
		return 0, false
	}

	if len(out) == 0 {
		c.logger.WarnContext(ctx, "hourly rainfall response empty, degrading to zero",
			"location_key", locationKey,
		)
		return 0, false
	}

	amount := out[0].PrecipitationSummary.PastHour.Metric.Value
	if amount < 0 {
		amount = 0
	}
	return amount, true
}

// getJSON performs a GET through the BaseClient and decodes a JSON body.
func (c *AccuWeatherClient) getJSON(ctx context.Context, rawURL string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyRead))
		return types.NewAppError(
			types.ErrCodeUpstreamWeather,
			fmt.Sprintf("provider returned %d: %s", resp.StatusCode, string(body)),
			nil,
		)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamWeather, "decoding provider response", err)
	}
	return nil
}
