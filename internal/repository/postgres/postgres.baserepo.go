package postgres

import (
	"context"
	"database/sql"

	"github.com/envimon/hub/internal/database"
	"github.com/envimon/hub/internal/errors"
	"github.com/lib/pq"
)

type PostgresBaseRepo struct {
	db database.DB
}

func (r *PostgresBaseRepo) BeginTx(ctx context.Context) (database.Transaction, error) {
	tx, err := r.db.GetDB().BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.NewDatabaseError("failed to begin transaction", err)
	}
	return tx, nil
}

func (r *PostgresBaseRepo) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	result, err := r.db.GetDB().ExecContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewDatabaseError("failed to execute query", err)
	}
	return result, nil
}

func (r *PostgresBaseRepo) Ping(ctx context.Context) error {
	if err := r.db.GetDB().PingContext(ctx); err != nil {
		return errors.NewDatabaseError("failed to ping database", err)
	}
	return nil
}

func (r *PostgresBaseRepo) Close() error {
	if err := r.db.GetDB().Close(); err != nil {
		return errors.NewDatabaseError("failed to close database", err)
	}
	return nil
}

// storeError maps low-level pq failures onto the service error taxonomy so
// callers can distinguish retryable conditions from terminal ones.
func storeError(msg string, err error) *errors.APIError {
	if err == nil {
		return errors.NewDatabaseError(msg, nil)
	}
	if err == context.DeadlineExceeded {
		return errors.NewTimeoutError(msg, err)
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505": // unique_violation
			return errors.NewConflictError(msg, err)
		case "53300", "57P03", "08006", "08001": // too many connections / cannot connect / connection failures
			return errors.NewTransientError(msg, err)
		}
	}
	return errors.NewDatabaseError(msg, err)
}
