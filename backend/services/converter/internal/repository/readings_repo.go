package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"nemsql/backend/services/converter/internal/sqlgen"
)

// ReadingsRepository applies generated INSERT files to the meter_readings table.
type ReadingsRepository struct {
	db *sql.DB
}

// NewReadingsRepository returns repository.
func NewReadingsRepository(db *sql.DB) *ReadingsRepository {
	return &ReadingsRepository{db: db}
}

// EnsureSchema creates meter_readings when it does not exist yet.
func (r *ReadingsRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, sqlgen.CreateTableStatement); err != nil {
		return fmt.Errorf("repository: ensure schema: %w", err)
	}
	return nil
}

// ApplyFile executes one generated SQL file in a transaction and returns the inserted row count.
func (r *ReadingsRepository) ApplyFile(ctx context.Context, path string) (int64, error) {
	stmt, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("repository: read %s: %w", path, err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("repository: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, string(stmt))
	if err != nil {
		return 0, fmt.Errorf("repository: apply %s: %w", path, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("repository: commit %s: %w", path, err)
	}

	return res.RowsAffected()
}
