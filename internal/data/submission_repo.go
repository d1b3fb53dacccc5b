package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SubmissionRepo reads student form submissions.
type SubmissionRepo struct {
	DB *sql.DB
}

// NewSubmissionRepo creates a new SubmissionRepo instance with the given database connection.
func NewSubmissionRepo(db *sql.DB) *SubmissionRepo {
	return &SubmissionRepo{DB: db}
}

// LatestIDByEmail returns the newest submission ID for email, or ErrSubmissionNotFound.
func (r *SubmissionRepo) LatestIDByEmail(ctx context.Context, email string) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", ErrEmailRequired
	}
	var id string
	err := r.DB.QueryRowContext(ctx, `
		SELECT id FROM submissions
		WHERE email = $1
		ORDER BY created_at DESC
		LIMIT 1`, email).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrSubmissionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup submission: %w", err)
	}
	return id, nil
}

// Create records a submission for email and returns its ID.
func (r *SubmissionRepo) Create(ctx context.Context, email string) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", ErrEmailRequired
	}
	var id string
	if err := r.DB.QueryRowContext(ctx,
		`INSERT INTO submissions (email) VALUES ($1) RETURNING id`, email).Scan(&id); err != nil {
		return "", fmt.Errorf("create submission: %w", err)
	}
	return id, nil
}
