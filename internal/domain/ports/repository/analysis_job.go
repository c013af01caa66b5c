package repository

import (
	"context"
	"encoding/json"
	"time"

	"hackathon-ai-jury/internal/domain/model"
)

// AnalysisJobRepository is the durable job record store. Every status
// transition is a conditional update keyed on the current status, so the
// status column acts as an optimistic lock across workers and the
// reclaimer; transitions out of a terminal state are rejected.
type AnalysisJobRepository interface {
	Create(ctx context.Context, tx Tx, job *model.AnalysisJob) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.AnalysisJob, error)

	// FindActive returns the single non-terminal job for the
	// (subjectID, jobType) pair, or ErrNotFound.
	FindActive(ctx context.Context, tx Tx, subjectID string, jobType model.JobType) (*model.AnalysisJob, error)

	// ClaimNextPending atomically picks the oldest pending job and marks
	// it running (sets StartedAt). Returns ErrNotFound when the queue is
	// empty. Losing a claim race is not an error for the caller; it just
	// tries again on the next tick.
	ClaimNextPending(ctx context.Context) (*model.AnalysisJob, error)

	// UpdateProgress persists percent/stage/detail for a running job.
	UpdateProgress(ctx context.Context, id string, percent int, stage string, detail json.RawMessage) error

	// Complete and Fail write the single terminal transition. Both are
	// conditional on the job being non-terminal and return
	// ErrTerminalState when the job already terminated.
	Complete(ctx context.Context, id string, result json.RawMessage) error
	Fail(ctx context.Context, id string, errMsg string) error

	// FindStale returns ids of jobs of the given type still pending or
	// running past the cutoff (StartedAt, or CreatedAt if never started).
	FindStale(ctx context.Context, jobType model.JobType, olderThan time.Time) ([]string, error)

	// ForceFail is the reclaimer's terminal transition. Conditional like
	// Fail; a job that legitimately completed in the race window is left
	// untouched and ErrTerminalState is returned.
	ForceFail(ctx context.Context, id string, reason string) error
}
