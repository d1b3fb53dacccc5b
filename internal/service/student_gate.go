package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	domainauth "github.com/reachcapital/portal/internal/domain/auth"
	"github.com/reachcapital/portal/internal/domain/routing"
	"github.com/reachcapital/portal/internal/ports"
)

// SubmissionLookup finds a student's latest form submission.
type SubmissionLookup interface {
	LatestIDByEmail(ctx context.Context, email string) (string, error)
}

// StudentGateOptions groups dependencies for StudentGate.
type StudentGateOptions struct {
	Local       ports.LocalStore // Required: caches the submission ID per client
	Submissions SubmissionLookup // Required
	Logger      *slog.Logger     // Optional
}

// StudentGate decides where a student lands: their submission when one exists,
// otherwise the student form.
type StudentGate struct {
	local       ports.LocalStore
	submissions SubmissionLookup
	logger      *slog.Logger
}

// NewStudentGate constructs a StudentGate.
func NewStudentGate(opts StudentGateOptions) (*StudentGate, error) {
	if opts.Local == nil || opts.Submissions == nil {
		return nil, errors.New("local store and submission lookup are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StudentGate{
		local:       opts.Local,
		submissions: opts.Submissions,
		logger:      logger.With("component", "student_gate"),
	}, nil
}

// Destination returns /student/{id} or /student-form for ident. A cancelled
// context returns its error so the caller doesn't navigate.
func (g *StudentGate) Destination(ctx context.Context, clientID string, ident domainauth.Identity) (string, error) {
	cached, ok, err := g.local.Get(ctx, clientID, domainauth.LocalKeyStudentSubmissionID)
	if err != nil {
		g.logger.WarnContext(ctx, "read cached submission failed", "client_id", clientID, "error", err)
	}
	if ok && cached != "" {
		return routing.StudentPath(cached), nil
	}

	id, err := g.submissions.LatestIDByEmail(ctx, ident.Email)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	switch {
	case errors.Is(err, ports.ErrNotFound):
		return routing.PathStudentForm, nil
	case err != nil:
		return "", fmt.Errorf("lookup submission: %w", err)
	}

	if setErr := g.local.Set(ctx, clientID, domainauth.LocalKeyStudentSubmissionID, id); setErr != nil {
		g.logger.WarnContext(ctx, "cache submission failed", "client_id", clientID, "error", setErr)
	}
	return routing.StudentPath(id), nil
}
