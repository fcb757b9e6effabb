package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bobarin/imagetiming/internal/models"
)

// CreateTimelineJob stores a queued job together with the request it will run.
func (db *DB) CreateTimelineJob(ctx context.Context, job *models.TimelineJob, req *models.CreateTimelineRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal job request: %w", err)
	}

	query := `
		INSERT INTO timeline_jobs (
			id, strategy, status, section_count, request
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	err = db.QueryRowContext(
		ctx, query,
		job.ID, job.Strategy, job.Status, job.SectionCount, payload,
	).Scan(&job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (db *DB) GetTimelineJob(ctx context.Context, id uuid.UUID) (*models.TimelineJob, error) {
	query := `
		SELECT
			id, strategy, status, section_count, result_path,
			error_message, started_at, finished_at, created_at
		FROM timeline_jobs
		WHERE id = $1
	`

	job := &models.TimelineJob{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.Strategy, &job.Status, &job.SectionCount, &job.ResultPath,
		&job.ErrorMessage, &job.StartedAt, &job.FinishedAt, &job.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return job, nil
}

// GetJobRequest loads the request payload a job was created with.
func (db *DB) GetJobRequest(ctx context.Context, id uuid.UUID) (*models.CreateTimelineRequest, error) {
	var payload []byte
	err := db.QueryRowContext(ctx, `SELECT request FROM timeline_jobs WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job request: %w", err)
	}

	var req models.CreateTimelineRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("failed to parse job request: %w", err)
	}
	return &req, nil
}

func (db *DB) UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error {
	now := time.Now()
	query := `UPDATE timeline_jobs SET status = $1, started_at = $2 WHERE id = $3`

	if status == models.JobStatusSucceeded || status == models.JobStatusFailed {
		query = `UPDATE timeline_jobs SET status = $1, finished_at = $2 WHERE id = $3`
	}

	_, err := db.ExecContext(ctx, query, status, now, id)
	return err
}

// CompleteJob marks a job succeeded and records where its document lives.
func (db *DB) CompleteJob(ctx context.Context, id uuid.UUID, sectionCount int, resultPath *string) error {
	query := `
		UPDATE timeline_jobs
		SET status = $1, section_count = $2, result_path = $3, finished_at = $4
		WHERE id = $5
	`
	_, err := db.ExecContext(ctx, query, models.JobStatusSucceeded, sectionCount, resultPath, time.Now(), id)
	return err
}

func (db *DB) UpdateJobError(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE timeline_jobs
		SET status = $1, error_message = $2, finished_at = $3
		WHERE id = $4
	`
	_, err := db.ExecContext(ctx, query, models.JobStatusFailed, errorMessage, time.Now(), id)
	return err
}
