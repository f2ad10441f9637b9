// Package handlers contains the HTTP handler implementations for the
// RainWatch API: monitor CRUD, forecast generation, and the operational
// run-check endpoint.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"rainwatch/internal/core"
	"rainwatch/internal/types"
)

// --- Service Interfaces ---
//
// The handlers depend on local abstractions rather than concrete
// implementations, following the injection pattern used across the package.

// MonitorRepo defines the data access contract for monitor operations.
// Mirrors the concrete db.MonitorRepository methods used by this handler.
type MonitorRepo interface {
	Create(ctx context.Context, m *types.Monitor) error
	GetByID(ctx context.Context, id string) (*types.Monitor, error)
	List(ctx context.Context) ([]*types.Monitor, error)
	Update(ctx context.Context, m *types.Monitor) error
}

// LocationResolver maps coordinates to a provider location key at monitor
// creation time. Implementations degrade to a synthetic key rather than
// failing the create.
type LocationResolver interface {
	ResolveLocationKey(ctx context.Context, lat, lon float64) string
}

// ForecastService produces a narrative forecast for a monitor's region.
type ForecastService interface {
	Configured() bool
	GenerateForecast(ctx context.Context, m *types.Monitor) (string, error)
}

// --- Request/Response Models ---

// CreateMonitorRequest is the request body for POST /v1/monitors.
type CreateMonitorRequest struct {
	RegionName      string    `json:"regionName" validate:"required,max=200"`
	Lat             float64   `json:"lat" validate:"min=-90,max=90"`
	Lon             float64   `json:"lon" validate:"min=-180,max=180"`
	RadiusKm        float64   `json:"radiusKm,omitempty" validate:"omitempty,gt=0,lte=500"`
	StartDate       time.Time `json:"startDate" validate:"required"`
	EndDate         time.Time `json:"endDate" validate:"required,gtfield=StartDate"`
	TriggerRainfall float64   `json:"triggerRainfall" validate:"required,gt=0"`
}

// UpdateMonitorRequest is the request body for PATCH /v1/monitors/{id}.
// All fields are optional; absent fields are left unchanged.
type UpdateMonitorRequest struct {
	RegionName      *string    `json:"regionName,omitempty" validate:"omitempty,min=1,max=200"`
	RadiusKm        *float64   `json:"radiusKm,omitempty" validate:"omitempty,gt=0,lte=500"`
	EndDate         *time.Time `json:"endDate,omitempty"`
	TriggerRainfall *float64   `json:"triggerRainfall,omitempty" validate:"omitempty,gt=0"`
}

// ForecastResponse is the response body for POST /v1/monitors/{id}/forecast.
type ForecastResponse struct {
	MonitorID string `json:"monitorId"`
	Forecast  string `json:"forecast"`
}

// defaultRadiusKm is applied when a create request omits the radius.
const defaultRadiusKm = 10

// --- Handler ---

// MonitorHandler manages monitor CRUD and forecast operations.
type MonitorHandler struct {
	repo     MonitorRepo
	resolver LocationResolver
	forecast ForecastService
	validator *core.Validator
	logger   *slog.Logger
	clock    types.Clock
}

// NewMonitorHandler creates a MonitorHandler with the provided dependencies.
func NewMonitorHandler(
	repo MonitorRepo,
	resolver LocationResolver,
	forecast ForecastService,
	v *core.Validator,
	l *slog.Logger,
) *MonitorHandler {
	if l == nil {
		l = slog.Default()
	}
	return &MonitorHandler{
		repo:      repo,
		resolver:  resolver,
		forecast:  forecast,
		validator: v,
		logger:    l,
		clock:     types.RealClock{},
	}
}

// SetClock overrides the time source. Used by tests.
func (h *MonitorHandler) SetClock(c types.Clock) {
	h.clock = c
}

// RegisterRoutes mounts monitor routes on the provided chi.Router.
func (h *MonitorHandler) RegisterRoutes(r chi.Router) {
	r.Route("/monitors", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
			r.Post("/forecast", h.Forecast)
		})
	})
}

// Create handles POST /v1/monitors.
//
// The location key is resolved at creation time so the hourly cycle never
// needs the geoposition endpoint. Resolution degrades to a synthetic key
// on provider failure; it does not block the create.
func (h *MonitorHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateMonitorRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	radius := req.RadiusKm
	if radius == 0 {
		radius = defaultRadiusKm
	}

	now := h.clock.Now()
	m := &types.Monitor{
		ID:              "mon_" + uuid.New().String(),
		RegionName:      req.RegionName,
		Lat:             req.Lat,
		Lon:             req.Lon,
		RadiusKm:        radius,
		LocationKey:     h.resolver.ResolveLocationKey(r.Context(), req.Lat, req.Lon),
		StartDate:       req.StartDate.UTC(),
		EndDate:         req.EndDate.UTC(),
		TriggerRainfall: req.TriggerRainfall,
		Status:          types.StatusInstantiated,
		Logs:            types.RainLog{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := h.repo.Create(r.Context(), m); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "monitor created",
		"monitor_id", m.ID,
		"region", m.RegionName,
		"location_key", m.LocationKey,
	)

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: m})
}

// List handles GET /v1/monitors. Returns all monitors, newest first.
func (h *MonitorHandler) List(w http.ResponseWriter, r *http.Request) {
	monitors, err := h.repo.List(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if monitors == nil {
		monitors = []*types.Monitor{}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: monitors})
}

// Get handles GET /v1/monitors/{id}.
func (h *MonitorHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.repo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: m})
}

// Update handles PATCH /v1/monitors/{id}. Only configuration fields are
// patchable; lifecycle state and accumulators belong to the evaluation
// cycle.
func (h *MonitorHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateMonitorRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	m, err := h.repo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if req.RegionName != nil {
		m.RegionName = *req.RegionName
	}
	if req.RadiusKm != nil {
		m.RadiusKm = *req.RadiusKm
	}
	if req.EndDate != nil {
		end := req.EndDate.UTC()
		if !end.After(m.StartDate) {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationTimeWindow,
				"endDate must be after startDate",
				nil,
			))
			return
		}
		m.EndDate = end
	}
	if req.TriggerRainfall != nil {
		m.TriggerRainfall = *req.TriggerRainfall
	}
	m.UpdatedAt = h.clock.Now()

	if err := h.repo.Update(r.Context(), m); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: m})
}

// Forecast handles POST /v1/monitors/{id}/forecast. Returns 503 when no
// forecast provider is configured.
func (h *MonitorHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	m, err := h.repo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	text, err := h.forecast.GenerateForecast(r.Context(), m)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: ForecastResponse{
		MonitorID: m.ID,
		Forecast:  text,
	}})
}
