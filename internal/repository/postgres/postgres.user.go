// FilePath: internal/repository/postgres/postgres.user.go
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/envimon/hub/internal/database"
	"github.com/envimon/hub/internal/errors"
	"github.com/envimon/hub/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

type UserRepo struct {
	PostgresBaseRepo
}

func NewUserRepository(db database.DB) *UserRepo {
	repo := &PostgresBaseRepo{db: db}
	return &UserRepo{PostgresBaseRepo: *repo}
}

func (r *UserRepo) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (username, email, password_hash, full_name, phone, active, created_at, updated_at)
		VALUES (:username, :email, :password_hash, :full_name, :phone, :active, :created_at, :updated_at)
		RETURNING id`

	rows, err := r.db.GetDB().NamedQueryContext(ctx, query, user)
	if err != nil {
		return storeError("failed to create user", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&user.ID); err != nil {
			return errors.NewDatabaseError("failed to read user id", err)
		}
	}
	return nil
}

func (r *UserRepo) Get(ctx context.Context, id int64) (*models.User, error) {
	user := &models.User{}
	query := `SELECT * FROM users WHERE id = $1`

	err := r.db.GetDB().GetContext(ctx, user, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("user not found", err)
		}
		return nil, storeError("failed to get user", err)
	}

	if err := r.loadMemberships(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	query := `SELECT * FROM users WHERE username = $1`

	err := r.db.GetDB().GetContext(ctx, user, query, username)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("user not found", err)
		}
		return nil, storeError("failed to get user", err)
	}

	if err := r.loadMemberships(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (r *UserRepo) loadMemberships(ctx context.Context, user *models.User) error {
	companies, err := r.ListCompanies(ctx, user.ID)
	if err != nil {
		return err
	}
	roles, err := r.ListRoles(ctx, user.ID)
	if err != nil {
		return err
	}
	user.CompanyIDs = companies
	user.Roles = roles
	return nil
}

func (r *UserRepo) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users SET
			username = :username,
			email = :email,
			full_name = :full_name,
			phone = :phone,
			active = :active,
			updated_at = :updated_at
		WHERE id = :id`

	result, err := r.db.GetDB().NamedExecContext(ctx, query, user)
	if err != nil {
		return storeError("failed to update user", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewDatabaseError("failed to get rows affected", err)
	}

	if rows == 0 {
		return errors.NewNotFoundError("user not found", nil)
	}

	return nil
}

func (r *UserRepo) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	query := `UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.db.GetDB().ExecContext(ctx, query, passwordHash, id)
	if err != nil {
		return storeError("failed to update password", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewDatabaseError("failed to get rows affected", err)
	}

	if rows == 0 {
		return errors.NewNotFoundError("user not found", nil)
	}

	return nil
}

func (r *UserRepo) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE users SET last_login_at = $1 WHERE id = $2`

	_, err := r.db.GetDB().ExecContext(ctx, query, at, id)
	if err != nil {
		return storeError("failed to update last login", err)
	}
	return nil
}

func (r *UserRepo) Deactivate(ctx context.Context, id int64) error {
	query := `UPDATE users SET active = FALSE, updated_at = NOW() WHERE id = $1`

	result, err := r.db.GetDB().ExecContext(ctx, query, id)
	if err != nil {
		return storeError("failed to deactivate user", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.NewDatabaseError("failed to get rows affected", err)
	}

	if rows == 0 {
		return errors.NewNotFoundError("user not found", nil)
	}

	return nil
}

func (r *UserRepo) List(ctx context.Context, includeInactive bool) ([]*models.User, error) {
	users := []*models.User{}
	query := `SELECT * FROM users`
	if !includeInactive {
		query += ` WHERE active = TRUE`
	}
	query += ` ORDER BY username`

	err := r.db.GetDB().SelectContext(ctx, &users, query)
	if err != nil {
		return nil, storeError("failed to list users", err)
	}

	for _, user := range users {
		if err := r.loadMemberships(ctx, user); err != nil {
			return nil, err
		}
	}
	return users, nil
}

func (r *UserRepo) ListCompanies(ctx context.Context, userID int64) ([]int64, error) {
	ids := []int64{}
	query := `SELECT company_id FROM user_companies WHERE user_id = $1 ORDER BY company_id`

	err := r.db.GetDB().SelectContext(ctx, &ids, query, userID)
	if err != nil {
		return nil, storeError("failed to list company assignments", err)
	}
	return ids, nil
}

func (r *UserRepo) AssignCompany(ctx context.Context, userID, companyID int64) error {
	query := `
		INSERT INTO user_companies (user_id, company_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, company_id) DO NOTHING`

	_, err := r.db.GetDB().ExecContext(ctx, query, userID, companyID)
	if err != nil {
		return storeError("failed to assign company", err)
	}
	return nil
}

func (r *UserRepo) RemoveCompany(ctx context.Context, userID, companyID int64) error {
	query := `DELETE FROM user_companies WHERE user_id = $1 AND company_id = $2`

	_, err := r.db.GetDB().ExecContext(ctx, query, userID, companyID)
	if err != nil {
		return storeError("failed to remove company assignment", err)
	}
	return nil
}

// ReplaceCompanies swaps the full assignment set atomically: delete all,
// then insert the new list. A crash mid-update rolls back to the prior set,
// so a user is never left with a partial assignment list.
func (r *UserRepo) ReplaceCompanies(ctx context.Context, userID int64, companyIDs []int64) error {
	tx, err := r.db.GetDB().BeginTxx(ctx, nil)
	if err != nil {
		return errors.NewDatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback() // Will be ignored if transaction is committed

	_, err = tx.ExecContext(ctx, `DELETE FROM user_companies WHERE user_id = $1`, userID)
	if err != nil {
		return storeError("failed to clear company assignments", err)
	}

	for _, companyID := range companyIDs {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_companies (user_id, company_id, created_at) VALUES ($1, $2, NOW())`,
			userID, companyID)
		if err != nil {
			return storeError("failed to insert company assignment", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewDatabaseError("failed to commit transaction", err)
	}

	nuts.L.Infof("[UserRepo] Replaced company assignments for user %d (%d companies)", userID, len(companyIDs))
	return nil
}

func (r *UserRepo) ListRoles(ctx context.Context, userID int64) ([]string, error) {
	roles := []string{}
	query := `SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role`

	err := r.db.GetDB().SelectContext(ctx, &roles, query, userID)
	if err != nil {
		return nil, storeError("failed to list roles", err)
	}
	return roles, nil
}

func (r *UserRepo) AssignRole(ctx context.Context, userID int64, role string) error {
	query := `
		INSERT INTO user_roles (user_id, role, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, role) DO NOTHING`

	_, err := r.db.GetDB().ExecContext(ctx, query, userID, role)
	if err != nil {
		return storeError("failed to assign role", err)
	}
	return nil
}

func (r *UserRepo) RemoveRole(ctx context.Context, userID int64, role string) error {
	query := `DELETE FROM user_roles WHERE user_id = $1 AND role = $2`

	_, err := r.db.GetDB().ExecContext(ctx, query, userID, role)
	if err != nil {
		return storeError("failed to remove role", err)
	}
	return nil
}
