package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nimbushealth/wardcast/internal/api"
)

// PostgresStore keeps daily operational records in Postgres. The date
// primary key plus ON CONFLICT DO UPDATE gives the most-recent-upload-wins
// dedup guarantee at the database level.
//
// Schema:
//
//	CREATE TABLE hospital_records (
//	  day DATE PRIMARY KEY,
//	  admissions INT NOT NULL,
//	  beds_occupied INT NOT NULL,
//	  staff_on_duty INT NOT NULL,
//	  overload_flag BOOLEAN NOT NULL,
//	  uploaded_at TIMESTAMP DEFAULT NOW()
//	);
//	CREATE INDEX idx_hospital_records_overload ON hospital_records(day) WHERE overload_flag;
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and verifies the connection.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Range(ctx context.Context, from, to time.Time) ([]api.HistoricalRecord, error) {
	query := `
		SELECT day, admissions, beds_occupied, staff_on_duty, overload_flag
		FROM hospital_records
		WHERE day >= $1 AND day <= $2
		ORDER BY day ASC
	`

	rows, err := p.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("postgres range query failed: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (p *PostgresStore) Overloads(ctx context.Context, since time.Time) ([]api.HistoricalRecord, error) {
	query := `
		SELECT day, admissions, beds_occupied, staff_on_duty, overload_flag
		FROM hospital_records
		WHERE day >= $1 AND overload_flag
		ORDER BY day ASC
	`

	rows, err := p.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("postgres overload query failed: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func (p *PostgresStore) Upsert(ctx context.Context, records []api.HistoricalRecord) error {
	// DO UPDATE, not DO NOTHING: the most recently uploaded value for a date
	// replaces the stored one.
	query := `
		INSERT INTO hospital_records (day, admissions, beds_occupied, staff_on_duty, overload_flag, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (day) DO UPDATE SET
			admissions = EXCLUDED.admissions,
			beds_occupied = EXCLUDED.beds_occupied,
			staff_on_duty = EXCLUDED.staff_on_duty,
			overload_flag = EXCLUDED.overload_flag,
			uploaded_at = NOW()
	`

	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
		if _, err := p.pool.Exec(ctx, query, r.Date, r.Admissions, r.BedsOccupied, r.StaffOnDuty, r.OverloadFlag); err != nil {
			return fmt.Errorf("postgres upsert failed for %s: %w", r.DayKey(), err)
		}
	}
	return nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

func scanRecords(rows pgx.Rows) ([]api.HistoricalRecord, error) {
	var out []api.HistoricalRecord
	for rows.Next() {
		var r api.HistoricalRecord
		if err := rows.Scan(&r.Date, &r.Admissions, &r.BedsOccupied, &r.StaffOnDuty, &r.OverloadFlag); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return out, nil
}
