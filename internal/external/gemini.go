package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"rainwatch/internal/config"
	"rainwatch/internal/types"
)

// forecastPromptTemplate asks for a rainfall-focused 24-hour outlook for a
// monitor's location. Kept close to the operator-facing wording the response
// is rendered with.
const forecastPromptTemplate = `You are a weather forecasting assistant. Provide a detailed 24-hour weather forecast for the following location:

Latitude: %f
Longitude: %f
Region: %s

Focus on:
1. Temperature range (in Celsius)
2. Rainfall probability and expected amounts (in mm)
3. General weather conditions
4. Any weather warnings or recommendations for rainfall monitoring

Keep the forecast concise but informative, suitable for rainfall monitoring purposes. Format the response in clear sections.`

// GeminiClient generates free-text weather forecasts via the Google
// Generative Language REST API. The client is optional: when no API key is
// configured, Configured() reports false and the caller serves a 503.
type GeminiClient struct {
	base    *BaseClient
	baseURL string
	apiKey  string
	model   string
	logger  *slog.Logger
}

// NewGeminiClient creates a GeminiClient from the forecast config.
func NewGeminiClient(cfg config.ForecastConfig, logger *slog.Logger) *GeminiClient {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	base := NewBaseClient(
		httpClient,
		"gemini",
		DefaultRetryPolicy(),
		"RainWatch/1.0",
	)

	return &GeminiClient{
		base:    base,
		baseURL: strings.TrimSuffix(cfg.GeminiBaseURL, "/"),
		apiKey:  cfg.GeminiAPIKey,
		model:   cfg.GeminiModel,
		logger:  logger,
	}
}

// NewGeminiClientWithBase creates a GeminiClient with a pre-configured
// BaseClient, for tests.
func NewGeminiClientWithBase(base *BaseClient, baseURL, apiKey, model string, logger *slog.Logger) *GeminiClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiClient{
		base:    base,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		logger:  logger,
	}
}

// Configured reports whether an API key is present.
func (c *GeminiClient) Configured() bool {
	return c.apiKey != ""
}

// generateContentRequest is the minimal generateContent request envelope.
type generateContentRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

// generateContentResponse is the subset of the generateContent response we
// consume.
type generateContentResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// GenerateForecast produces a 24-hour text forecast for the given monitor's
// location. Unlike the rainfall source, failures here propagate as errors;
// the forecast endpoint is interactive and the caller reports them.
func (c *GeminiClient) GenerateForecast(ctx context.Context, m *types.Monitor) (string, error) {
	if !c.Configured() {
		return "", types.NewAppError(types.ErrCodeForecastNotConfigured, "forecast provider not configured", nil)
	}

	prompt := fmt.Sprintf(forecastPromptTemplate, m.Lat, m.Lon, m.RegionName)
	reqBody := generateContentRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "marshaling forecast request", err)
	}

	u := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.baseURL,
		url.PathEscape(c.model),
		url.QueryEscape(c.apiKey),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "building forecast request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamForecast, "forecast provider unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyRead))
		return "", types.NewAppError(
			types.ErrCodeUpstreamForecast,
			fmt.Sprintf("forecast provider returned %d: %s", resp.StatusCode, string(body)),
			nil,
		)
	}

	var out generateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamForecast, "decoding forecast response", err)
	}

	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", types.NewAppError(types.ErrCodeUpstreamForecast, "forecast response contained no candidates", nil)
	}

	var sb strings.Builder
	for _, part := range out.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
