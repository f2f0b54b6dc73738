// FilePath: internal/repository/postgres/postgres.group.go
package postgres

import (
	"context"
	"database/sql"

	"github.com/envimon/hub/internal/database"
	"github.com/envimon/hub/internal/errors"
	"github.com/envimon/hub/internal/models"
)

type SensorGroupRepo struct {
	PostgresBaseRepo
}

func NewSensorGroupRepository(db database.DB) *SensorGroupRepo {
	repo := &PostgresBaseRepo{db: db}
	return &SensorGroupRepo{PostgresBaseRepo: *repo}
}

func (r *SensorGroupRepo) Create(ctx context.Context, group *models.SensorGroup) error {
	query := `
		INSERT INTO sensor_groups (company_id, name, location, description, active, created_at, updated_at)
		VALUES (:company_id, :name, :location, :description, :active, :created_at, :updated_at)
		RETURNING id`

	rows, err := r.db.GetDB().NamedQueryContext(ctx, query, group)
	if err != nil {
		return storeError("failed to create sensor group", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&group.ID); err != nil {
			return errors.NewDatabaseError("failed to read sensor group id", err)
		}
	}
	return nil
}

func (r *SensorGroupRepo) Get(ctx context.Context, id int64) (*models.SensorGroup, error) {
	group := &models.SensorGroup{}
	query := `SELECT * FROM sensor_groups WHERE id = $1`

	err := r.db.GetDB().GetContext(ctx, group, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("sensor group not found", err)
		}
		return nil, storeError("failed to get sensor group", err)
	}
	return group, nil
}

func (r *SensorGroupRepo) Update(ctx context.Context, group *models.SensorGroup) error {
	query := `
		UPDATE sensor_groups SET
			company_id = :company_id,
			name = :name,
			location = :location,
			description = :description,
			active = :active,
			updated_at = :updated_at
		WHERE id = :id`

	result, err := r.db.GetDB().NamedExecContext(ctx, query, group)
	if err != nil {
		return storeError("failed to update sensor group", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewDatabaseError("failed to get rows affected", err)
	}

	if rows == 0 {
		return errors.NewNotFoundError("sensor group not found", nil)
	}

	return nil
}

func (r *SensorGroupRepo) Deactivate(ctx context.Context, id int64) error {
	query := `UPDATE sensor_groups SET active = FALSE, updated_at = NOW() WHERE id = $1`

	result, err := r.db.GetDB().ExecContext(ctx, query, id)
	if err != nil {
		return storeError("failed to deactivate sensor group", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewDatabaseError("failed to get rows affected", err)
	}

	if rows == 0 {
		return errors.NewNotFoundError("sensor group not found", nil)
	}

	return nil
}

func (r *SensorGroupRepo) List(ctx context.Context, companyID *int64, includeInactive bool) ([]*models.SensorGroup, error) {
	groups := []*models.SensorGroup{}
	query := `SELECT * FROM sensor_groups WHERE 1=1`
	args := []interface{}{}

	if companyID != nil {
		query += ` AND company_id = $1`
		args = append(args, *companyID)
	}
	if !includeInactive {
		query += ` AND active = TRUE`
	}
	query += ` ORDER BY name`

	err := r.db.GetDB().SelectContext(ctx, &groups, query, args...)
	if err != nil {
		return nil, storeError("failed to list sensor groups", err)
	}

	return groups, nil
}
