// FilePath: internal/repository/postgres/postgres.company.go
package postgres

import (
	"context"
	"database/sql"

	"github.com/envimon/hub/internal/database"
	"github.com/envimon/hub/internal/errors"
	"github.com/envimon/hub/internal/models"
)

type CompanyRepo struct {
	PostgresBaseRepo
}

func NewCompanyRepository(db database.DB) *CompanyRepo {
	repo := &PostgresBaseRepo{db: db}
	return &CompanyRepo{PostgresBaseRepo: *repo}
}

func (r *CompanyRepo) Create(ctx context.Context, company *models.Company) error {
	query := `
		INSERT INTO companies (name, active, created_at, updated_at)
		VALUES (:name, :active, :created_at, :updated_at)
		RETURNING id`

	rows, err := r.db.GetDB().NamedQueryContext(ctx, query, company)
	if err != nil {
		return storeError("failed to create company", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&company.ID); err != nil {
			return errors.NewDatabaseError("failed to read company id", err)
		}
	}
	return nil
}

func (r *CompanyRepo) Get(ctx context.Context, id int64) (*models.Company, error) {
	company := &models.Company{}
	query := `SELECT * FROM companies WHERE id = $1`

	err := r.db.GetDB().GetContext(ctx, company, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("company not found", err)
		}
		return nil, storeError("failed to get company", err)
	}
	return company, nil
}

func (r *CompanyRepo) Update(ctx context.Context, company *models.Company) error {
	query := `
		UPDATE companies SET
			name = :name,
			active = :active,
			updated_at = :updated_at
		WHERE id = :id`

	result, err := r.db.GetDB().NamedExecContext(ctx, query, company)
	if err != nil {
		return storeError("failed to update company", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewDatabaseError("failed to get rows affected", err)
	}

	if rows == 0 {
		return errors.NewNotFoundError("company not found", nil)
	}

	return nil
}

// Deactivate flips the active flag; companies are never physically deleted.
func (r *CompanyRepo) Deactivate(ctx context.Context, id int64) error {
	query := `UPDATE companies SET active = FALSE, updated_at = NOW() WHERE id = $1`

	result, err := r.db.GetDB().ExecContext(ctx, query, id)
	if err != nil {
		return storeError("failed to deactivate company", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewDatabaseError("failed to get rows affected", err)
	}

	if rows == 0 {
		return errors.NewNotFoundError("company not found", nil)
	}

	return nil
}

func (r *CompanyRepo) List(ctx context.Context, includeInactive bool) ([]*models.Company, error) {
	companies := []*models.Company{}
	query := `SELECT * FROM companies`
	if !includeInactive {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY name`

	err := r.db.GetDB().SelectContext(ctx, &companies, query)
	if err != nil {
		return nil, storeError("failed to list companies", err)
	}

	return companies, nil
}
