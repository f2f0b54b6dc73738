// FilePath: internal/repository/postgres/postgres.sensor.go
package postgres

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/envimon/hub/internal/database"
	"github.com/envimon/hub/internal/errors"
	"github.com/envimon/hub/internal/models"
)

type SensorRepo struct {
	PostgresBaseRepo
}

func NewSensorRepository(db database.DB) *SensorRepo {
	repo := &PostgresBaseRepo{db: db}
	return &SensorRepo{PostgresBaseRepo: *repo}
}

func (r *SensorRepo) Create(ctx context.Context, sensor *models.Sensor) error {
	query := `
		INSERT INTO sensors (
			group_id, uuid, name, description, type, model,
			status, connection_status, last_heartbeat_at, last_communication_at,
			heartbeat_interval_seconds, connection_timeout_seconds,
			metadata, created_at, updated_at
		) VALUES (
			:group_id, :uuid, :name, :description, :type, :model,
			:status, :connection_status, :last_heartbeat_at, :last_communication_at,
			:heartbeat_interval_seconds, :connection_timeout_seconds,
			:metadata, :created_at, :updated_at
		)
		RETURNING id`

	rows, err := r.db.GetDB().NamedQueryContext(ctx, query, sensor)
	if err != nil {
		return storeError("failed to create sensor", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&sensor.ID); err != nil {
			return errors.NewDatabaseError("failed to read sensor id", err)
		}
	}
	return nil
}

func (r *SensorRepo) Get(ctx context.Context, id int64) (*models.Sensor, error) {
	sensor := &models.Sensor{}
	query := `SELECT * FROM sensors WHERE id = $1`

	err := r.db.GetDB().GetContext(ctx, sensor, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("sensor not found", err)
		}
		return nil, storeError("failed to get sensor", err)
	}
	return sensor, nil
}

func (r *SensorRepo) GetByUUID(ctx context.Context, uuid string) (*models.Sensor, error) {
	sensor := &models.Sensor{}
	query := `SELECT * FROM sensors WHERE uuid = $1`

	err := r.db.GetDB().GetContext(ctx, sensor, query, uuid)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("sensor not found", err)
		}
		return nil, storeError("failed to get sensor", err)
	}
	return sensor, nil
}

// Update writes administrative fields. Connection state columns are owned by
// UpdateConnectionStatus and deliberately excluded here.
func (r *SensorRepo) Update(ctx context.Context, sensor *models.Sensor) error {
	query := `
		UPDATE sensors SET
			group_id = :group_id,
			name = :name,
			description = :description,
			model = :model,
			status = :status,
			heartbeat_interval_seconds = :heartbeat_interval_seconds,
			connection_timeout_seconds = :connection_timeout_seconds,
			metadata = :metadata,
			updated_at = :updated_at
		WHERE id = :id`

	result, err := r.db.GetDB().NamedExecContext(ctx, query, sensor)
	if err != nil {
		return storeError("failed to update sensor", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewDatabaseError("failed to get rows affected", err)
	}

	if rows == 0 {
		return errors.NewNotFoundError("sensor not found", nil)
	}

	return nil
}

func (r *SensorRepo) Deactivate(ctx context.Context, id int64) error {
	query := `UPDATE sensors SET status = 'inactive', updated_at = NOW() WHERE id = $1`

	result, err := r.db.GetDB().ExecContext(ctx, query, id)
	if err != nil {
		return storeError("failed to deactivate sensor", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewDatabaseError("failed to get rows affected", err)
	}

	if rows == 0 {
		return errors.NewNotFoundError("sensor not found", nil)
	}

	return nil
}

func (r *SensorRepo) List(ctx context.Context, filters models.SensorFilters) ([]*models.Sensor, error) {
	query := `SELECT * FROM sensors WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	appendArg := func(clause string, value interface{}) {
		query += clause
		args = append(args, value)
		argPos++
	}

	if filters.GroupID != nil {
		appendArg(` AND group_id = $`+strconv.Itoa(argPos), *filters.GroupID)
	}
	if filters.Type != "" {
		appendArg(` AND type = $`+strconv.Itoa(argPos), filters.Type)
	}
	if filters.Status != "" {
		appendArg(` AND status = $`+strconv.Itoa(argPos), filters.Status)
	}
	if filters.ConnectionStatus != "" {
		appendArg(` AND connection_status = $`+strconv.Itoa(argPos), filters.ConnectionStatus)
	}
	if !filters.IncludeInactive && filters.Status == "" {
		query += ` AND status = 'active'`
	}

	query += ` ORDER BY created_at DESC`

	sensors := []*models.Sensor{}
	err := r.db.GetDB().SelectContext(ctx, &sensors, query, args...)
	if err != nil {
		return nil, storeError("failed to list sensors", err)
	}

	return sensors, nil
}

// ListActive returns all administratively active sensors; the liveness
// sweep iterates this set.
func (r *SensorRepo) ListActive(ctx context.Context) ([]*models.Sensor, error) {
	sensors := []*models.Sensor{}
	query := `SELECT * FROM sensors WHERE status = 'active' ORDER BY id`

	err := r.db.GetDB().SelectContext(ctx, &sensors, query)
	if err != nil {
		return nil, storeError("failed to list active sensors", err)
	}

	return sensors, nil
}

// UpdateConnectionStatus persists a liveness transition. Only the liveness
// tracker calls this. Nil timestamp arguments leave the stored value as is.
func (r *SensorRepo) UpdateConnectionStatus(ctx context.Context, id int64, status models.ConnectionStatus, heartbeatAt, communicationAt *time.Time) error {
	query := `
		UPDATE sensors SET
			connection_status = $1,
			last_heartbeat_at = COALESCE($2, last_heartbeat_at),
			last_communication_at = COALESCE($3, last_communication_at),
			updated_at = NOW()
		WHERE id = $4`

	result, err := r.db.GetDB().ExecContext(ctx, query, status, heartbeatAt, communicationAt, id)
	if err != nil {
		return storeError("failed to update connection status", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewDatabaseError("failed to get rows affected", err)
	}

	if rows == 0 {
		return errors.NewNotFoundError("sensor not found", nil)
	}

	return nil
}

