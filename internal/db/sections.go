package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bobarin/imagetiming/internal/models"
)

// SaveSectionTimelines replaces the stored sections of a job in one transaction.
func (db *DB) SaveSectionTimelines(ctx context.Context, jobID uuid.UUID, sections []models.SectionTimeline) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM section_timelines WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("failed to clear sections: %w", err)
	}

	query := `
		INSERT INTO section_timelines (
			job_id, section_id, start_seconds, end_seconds, strategy, fallback, clips
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, s := range sections {
		_, err := tx.ExecContext(ctx, query,
			jobID, s.SectionID, s.Start, s.End, s.Strategy, s.Fallback, s.Clips,
		)
		if err != nil {
			return fmt.Errorf("failed to insert section %d: %w", s.SectionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sections: %w", err)
	}
	return nil
}

func (db *DB) GetSectionTimelines(ctx context.Context, jobID uuid.UUID) ([]models.SectionTimeline, error) {
	query := `
		SELECT job_id, section_id, start_seconds, end_seconds, strategy, fallback, clips
		FROM section_timelines
		WHERE job_id = $1
		ORDER BY section_id
	`

	rows, err := db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sections: %w", err)
	}
	defer rows.Close()

	var sections []models.SectionTimeline
	for rows.Next() {
		var s models.SectionTimeline
		err := rows.Scan(&s.JobID, &s.SectionID, &s.Start, &s.End, &s.Strategy, &s.Fallback, &s.Clips)
		if err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		sections = append(sections, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sections: %w", err)
	}

	return sections, nil
}

func (db *DB) GetSectionTimeline(ctx context.Context, jobID uuid.UUID, sectionID int) (*models.SectionTimeline, error) {
	query := `
		SELECT job_id, section_id, start_seconds, end_seconds, strategy, fallback, clips
		FROM section_timelines
		WHERE job_id = $1 AND section_id = $2
	`

	s := &models.SectionTimeline{}
	err := db.QueryRowContext(ctx, query, jobID, sectionID).Scan(
		&s.JobID, &s.SectionID, &s.Start, &s.End, &s.Strategy, &s.Fallback, &s.Clips,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get section: %w", err)
	}
	return s, nil
}
