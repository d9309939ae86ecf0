package staff

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"quorum/pkg/platform/sentinel"
)

// PostgresDirectory persists the staff directory in PostgreSQL. Plain SQL
// through pgx, no ORM.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

const selectColumns = `id, email, full_name, role, assigned_area, pending, password_hash, created_at`

func (d *PostgresDirectory) FindByEmail(ctx context.Context, email string) (Record, error) {
	row := d.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM staff_directory WHERE lower(email) = lower($1)`,
		email,
	)
	return scanRecord(row)
}

func (d *PostgresDirectory) FindApprovedByEmail(ctx context.Context, email string) (Record, error) {
	row := d.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM staff_directory WHERE lower(email) = lower($1) AND pending = $2`,
		email, PendingApproved,
	)
	return scanRecord(row)
}

func (d *PostgresDirectory) Save(ctx context.Context, rec Record) error {
	_, err := d.pool.Exec(ctx,
		`INSERT INTO staff_directory (id, email, full_name, role, assigned_area, pending, password_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (email) DO UPDATE SET
		   full_name = EXCLUDED.full_name,
		   role = EXCLUDED.role,
		   assigned_area = EXCLUDED.assigned_area,
		   pending = EXCLUDED.pending,
		   password_hash = EXCLUDED.password_hash`,
		rec.ID, rec.Email, rec.FullName, rec.Role, rec.AssignedArea, rec.Pending, rec.PasswordHash, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save staff record: %w", err)
	}
	return nil
}

func (d *PostgresDirectory) Delete(ctx context.Context, email string) error {
	tag, err := d.pool.Exec(ctx,
		`DELETE FROM staff_directory WHERE lower(email) = lower($1)`, email)
	if err != nil {
		return fmt.Errorf("delete staff record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.Email, &rec.FullName, &rec.Role, &rec.AssignedArea,
		&rec.Pending, &rec.PasswordHash, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("scan staff record: %w", err)
	}
	return rec, nil
}
