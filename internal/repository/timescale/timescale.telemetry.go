// FilePath: internal/repository/timescale/timescale.telemetry.go
package timescale

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/envimon/hub/internal/database"
	"github.com/envimon/hub/internal/errors"
	"github.com/envimon/hub/internal/models"
	"github.com/envimon/hub/internal/telemetry"
	nuts "github.com/vaudience/go-nuts"
)

// TelemetryRepo stores readings in one hypertable per sensor type. Tables
// and columns come from the telemetry registry, so registering a new sensor
// type is enough to get its table created and queried.
type TelemetryRepo struct {
	db database.DB
}

func NewTelemetryRepository(db database.DB, registry *telemetry.Registry) (*TelemetryRepo, error) {
	repo := &TelemetryRepo{db: db}
	if err := repo.initializeSchema(registry); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *TelemetryRepo) initializeSchema(registry *telemetry.Registry) error {
	for _, mapping := range registry.Mappings() {
		columns := make([]string, 0, len(mapping.Columns))
		for _, col := range mapping.Columns {
			columns = append(columns, fmt.Sprintf("%s DOUBLE PRECISION", col))
		}

		queries := []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id BIGSERIAL,
				sensor_id BIGINT NOT NULL,
				timestamp TIMESTAMPTZ NOT NULL,
				%s,
				raw_data JSONB
			)`, mapping.Table, strings.Join(columns, ",\n\t\t\t\t")),
			fmt.Sprintf(`SELECT create_hypertable('%s', 'timestamp',
				chunk_time_interval => INTERVAL '1 day',
				if_not_exists => TRUE
			)`, mapping.Table),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_sensor_timestamp
				ON %s(sensor_id, timestamp DESC)`, mapping.Table, mapping.Table),
		}

		for _, query := range queries {
			if _, err := r.db.GetDB().Exec(query); err != nil {
				return errors.NewDatabaseError("failed to initialize telemetry schema", err)
			}
		}
		nuts.L.Infof("[TelemetryRepo] Schema ready for %s (%s)", mapping.Type, mapping.Table)
	}
	return nil
}

// Insert appends one reading. Readings are immutable once written; there is
// no update path.
func (r *TelemetryRepo) Insert(ctx context.Context, m telemetry.TypeMapping, reading models.Reading) error {
	columns := []string{"sensor_id", "timestamp"}
	placeholders := []string{"$1", "$2"}
	args := []interface{}{reading.SensorID, reading.Timestamp}

	for _, col := range m.Columns {
		value, ok := reading.Fields[col]
		if !ok {
			continue
		}
		args = append(args, value)
		columns = append(columns, col)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	if len(reading.Raw) > 0 {
		args = append(args, []byte(reading.Raw))
		columns = append(columns, "raw_data")
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		m.Table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	_, err := r.db.GetDB().ExecContext(ctx, query, args...)
	if err != nil {
		return storeError("failed to insert reading", err)
	}
	return nil
}

// FetchWindow returns readings in [start, end] ordered newest first, capped
// at limit, flattened into the uniform envelope.
func (r *TelemetryRepo) FetchWindow(ctx context.Context, m telemetry.TypeMapping, sensorID int64, start, end time.Time, limit int) ([]models.Reading, error) {
	query := fmt.Sprintf(`
		SELECT sensor_id, timestamp, %s, raw_data
		FROM %s
		WHERE sensor_id = $1 AND timestamp BETWEEN $2 AND $3
		ORDER BY timestamp DESC
		LIMIT $4`, strings.Join(m.Columns, ", "), m.Table)

	rows, err := r.db.GetDB().QueryxContext(ctx, query, sensorID, start, end, limit)
	if err != nil {
		return nil, storeError("failed to fetch readings", err)
	}
	defer rows.Close()

	readings := []models.Reading{}
	for rows.Next() {
		row := map[string]interface{}{}
		if err := rows.MapScan(row); err != nil {
			return nil, errors.NewDatabaseError("failed to scan reading", err)
		}

		reading := models.Reading{
			SensorID: sensorID,
			Fields:   make(map[string]float64, len(m.Columns)),
		}
		if ts, ok := row["timestamp"].(time.Time); ok {
			reading.Timestamp = ts
		}
		for _, col := range m.Columns {
			if value, ok := numericValue(row[col]); ok {
				reading.Fields[col] = value
			}
		}
		if raw, ok := row["raw_data"].([]byte); ok && len(raw) > 0 {
			reading.Raw = json.RawMessage(raw)
		}
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("failed to iterate readings", err)
	}

	return readings, nil
}

// DeleteOldData trims readings older than the cutoff. Retention is an
// operator action, never part of the query or ingestion paths.
func (r *TelemetryRepo) DeleteOldData(ctx context.Context, m telemetry.TypeMapping, before time.Time) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE timestamp < $1`, m.Table)

	result, err := r.db.GetDB().ExecContext(ctx, query, before)
	if err != nil {
		return storeError("failed to delete old readings", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewDatabaseError("failed to get rows affected", err)
	}

	nuts.L.Infof("[TelemetryRepo] Deleted %d readings from %s before %v", rows, m.Table, before)
	return nil
}

func numericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case []byte:
		// lib/pq returns NUMERIC as []byte; DOUBLE PRECISION comes back as
		// float64, so this path only fires for custom column types.
		var f float64
		if _, err := fmt.Sscanf(string(n), "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

func storeError(msg string, err error) *errors.APIError {
	if err == nil {
		return errors.NewDatabaseError(msg, nil)
	}
	if err == context.DeadlineExceeded {
		return errors.NewTimeoutError(msg, err)
	}
	if err == sql.ErrConnDone {
		return errors.NewTransientError(msg, err)
	}
	return errors.NewDatabaseError(msg, err)
}
