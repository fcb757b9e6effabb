package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// ErrJobNotFound is returned when no timeline job has the requested id.
var ErrJobNotFound = errors.New("job not found")

// ErrSectionNotFound is returned when a job has no result for a section.
var ErrSectionNotFound = errors.New("section not found")

type DB struct {
	*sql.DB
}

// New opens a Postgres connection pool and verifies it is reachable.
func New(databaseURL string) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(20)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &DB{DB: conn}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS timeline_jobs (
	id            UUID PRIMARY KEY,
	strategy      TEXT NOT NULL,
	status        TEXT NOT NULL,
	section_count INTEGER NOT NULL DEFAULT 0,
	request       JSONB NOT NULL,
	result_path   TEXT,
	error_message TEXT,
	started_at    TIMESTAMPTZ,
	finished_at   TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS section_timelines (
	job_id        UUID NOT NULL REFERENCES timeline_jobs(id) ON DELETE CASCADE,
	section_id    INTEGER NOT NULL,
	start_seconds DOUBLE PRECISION NOT NULL,
	end_seconds   DOUBLE PRECISION NOT NULL,
	strategy      TEXT NOT NULL,
	fallback      BOOLEAN NOT NULL DEFAULT false,
	clips         JSONB NOT NULL,
	PRIMARY KEY (job_id, section_id)
);
`

// Migrate creates the job tables when they do not exist yet.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
