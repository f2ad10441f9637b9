package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"rainwatch/internal/types"
)

// MonitorRepository provides data access for the monitors table.
//
// Schema (logs is a JSONB array of {date, amount, cumulative} objects):
//
//	CREATE TABLE monitors (
//	    id                     TEXT PRIMARY KEY,
//	    region_name            TEXT NOT NULL,
//	    lat                    DOUBLE PRECISION NOT NULL,
//	    lon                    DOUBLE PRECISION NOT NULL,
//	    radius_km              DOUBLE PRECISION NOT NULL DEFAULT 10,
//	    location_key           TEXT,
//	    start_date             TIMESTAMPTZ NOT NULL,
//	    end_date               TIMESTAMPTZ NOT NULL,
//	    cumulative_rainfall    DOUBLE PRECISION NOT NULL DEFAULT 0,
//	    current_24h_rainfall   DOUBLE PRECISION NOT NULL DEFAULT 0,
//	    trigger_rainfall       DOUBLE PRECISION NOT NULL,
//	    status                 TEXT NOT NULL DEFAULT 'instantiated',
//	    logs                   JSONB NOT NULL DEFAULT '[]',
//	    triggered_at           TIMESTAMPTZ,
//	    created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type MonitorRepository struct {
	db DBTX
}

// Compile-time assertion that MonitorRepository satisfies the domain contract.
var _ types.MonitorRepository = (*MonitorRepository)(nil)

// NewMonitorRepository creates a MonitorRepository backed by the given
// database connection (pool or transaction).
func NewMonitorRepository(db DBTX) *MonitorRepository {
	return &MonitorRepository{db: db}
}

// monitorColumns is the standard column set for monitor queries. Scan order
// in scanMonitor must match.
const monitorColumns = `m.id, m.region_name, m.lat, m.lon, m.radius_km,
	m.location_key, m.start_date, m.end_date,
	m.cumulative_rainfall, m.current_24h_rainfall, m.trigger_rainfall,
	m.status, m.logs, m.triggered_at, m.created_at, m.updated_at`

// scannable is satisfied by both pgx.Row and pgx.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanMonitor scans a single monitor row. Column order must match
// monitorColumns.
func scanMonitor(row scannable) (*types.Monitor, error) {
	var m types.Monitor
	var locationKey *string

	err := row.Scan(
		&m.ID,
		&m.RegionName,
		&m.Lat,
		&m.Lon,
		&m.RadiusKm,
		&locationKey,
		&m.StartDate,
		&m.EndDate,
		&m.CumulativeRainfall,
		&m.Current24hRainfall,
		&m.TriggerRainfall,
		&m.Status,
		&m.Logs,
		&m.TriggeredAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if locationKey != nil {
		m.LocationKey = *locationKey
	}

	return &m, nil
}

// Create inserts a new monitor record. The caller must set the ID and
// required fields before calling.
func (r *MonitorRepository) Create(ctx context.Context, m *types.Monitor) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO monitors (
			id, region_name, lat, lon, radius_km,
			location_key, start_date, end_date,
			cumulative_rainfall, current_24h_rainfall, trigger_rainfall,
			status, logs, triggered_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11,
			$12, $13, $14,
			COALESCE($15, NOW()), COALESCE($16, NOW())
		)`,
		m.ID,
		m.RegionName,
		m.Lat,
		m.Lon,
		m.RadiusKm,
		nilIfEmpty(m.LocationKey),
		m.StartDate,
		m.EndDate,
		m.CumulativeRainfall,
		m.Current24hRainfall,
		m.TriggerRainfall,
		m.Status,
		m.Logs,
		m.TriggeredAt,
		nilIfZeroTime(m.CreatedAt),
		nilIfZeroTime(m.UpdatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create monitor", err)
	}
	return nil
}

// GetByID retrieves a monitor by its ID. Returns ErrCodeNotFoundMonitor if
// no record exists.
func (r *MonitorRepository) GetByID(ctx context.Context, id string) (*types.Monitor, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+monitorColumns+`
		 FROM monitors m
		 WHERE m.id = $1`,
		id,
	)

	m, err := scanMonitor(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundMonitor, "monitor not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve monitor", err)
	}
	return m, nil
}

// List returns all monitors, newest first.
func (r *MonitorRepository) List(ctx context.Context) ([]*types.Monitor, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+monitorColumns+`
		 FROM monitors m
		 ORDER BY m.created_at DESC`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list monitors", err)
	}
	defer rows.Close()

	return collectMonitors(rows)
}

// ListUnfinished returns every monitor whose status is not completed, in
// stable id order. This is the working set for one evaluation cycle; stable
// ordering keeps sweeps deterministic.
func (r *MonitorRepository) ListUnfinished(ctx context.Context) ([]*types.Monitor, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+monitorColumns+`
		 FROM monitors m
		 WHERE m.status <> $1
		 ORDER BY m.id`,
		types.StatusCompleted,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list unfinished monitors", err)
	}
	defer rows.Close()

	return collectMonitors(rows)
}

// Update replaces all mutable fields of a monitor record, including the log
// history, and bumps updated_at.
func (r *MonitorRepository) Update(ctx context.Context, m *types.Monitor) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE monitors SET
			region_name = $2,
			radius_km = $3,
			location_key = $4,
			end_date = $5,
			cumulative_rainfall = $6,
			current_24h_rainfall = $7,
			trigger_rainfall = $8,
			status = $9,
			logs = $10,
			triggered_at = $11,
			updated_at = NOW()
		 WHERE id = $1`,
		m.ID,
		m.RegionName,
		m.RadiusKm,
		nilIfEmpty(m.LocationKey),
		m.EndDate,
		m.CumulativeRainfall,
		m.Current24hRainfall,
		m.TriggerRainfall,
		m.Status,
		m.Logs,
		m.TriggeredAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update monitor", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundMonitor, "monitor not found", nil)
	}
	return nil
}

// collectMonitors drains a result set into a slice.
func collectMonitors(rows pgx.Rows) ([]*types.Monitor, error) {
	var monitors []*types.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan monitor row", err)
		}
		monitors = append(monitors, m)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "monitor row iteration failed", err)
	}
	return monitors, nil
}

// nilIfEmpty maps "" to NULL for nullable text columns.
func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nilIfZeroTime maps the zero time to NULL so COALESCE defaults apply.
func nilIfZeroTime(t interface{ IsZero() bool }) any {
	if t.IsZero() {
		return nil
	}
	return t
}
