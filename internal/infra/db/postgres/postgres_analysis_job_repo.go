package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"hackathon-ai-jury/internal/domain"
	"hackathon-ai-jury/internal/domain/model"
	"hackathon-ai-jury/internal/domain/ports/repository"
)

var _ repository.AnalysisJobRepository = (*analysisJobRepo)(nil)

const pgUniqueViolation = "23505"

// analysisJobRepo is the durable job record store. A partial unique
// index on (subject_id, job_type) WHERE status IN ('pending','running')
// backs the one-non-terminal-job invariant, and every terminal UPDATE
// carries a `status IN ('pending','running')` predicate so transitions
// out of a terminal state are impossible.
type analysisJobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewAnalysisJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *analysisJobRepo {
	return &analysisJobRepo{pool: pool, tm: tm}
}

const jobColumns = `id, subject_id, job_type, payload, status, progress, stage, detail,
result, last_error, attempts, created_at, started_at, completed_at`

func (r *analysisJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.AnalysisJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.Status == "" {
		job.Status = model.JobStatusPending
	}

	const q = `
INSERT INTO analysis_jobs (id, subject_id, job_type, payload, status, progress, stage, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`

	_, err := execSQL(ctx, r.pool, tx, q,
		job.ID, job.SubjectID, string(job.Type), job.Payload, string(job.Status), job.Progress, job.Stage, job.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *analysisJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.AnalysisJob, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+jobColumns+` FROM analysis_jobs WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *analysisJobRepo) FindActive(ctx context.Context, tx repository.Tx, subjectID string, jobType model.JobType) (*model.AnalysisJob, error) {
	const q = `
SELECT ` + jobColumns + `
FROM analysis_jobs
WHERE subject_id = $1 AND job_type = $2 AND status IN ('pending', 'running')
LIMIT 1;`

	row, err := pickRow(ctx, r.pool, tx, q, subjectID, string(jobType))
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

// ClaimNextPending picks the oldest pending job with FOR UPDATE SKIP
// LOCKED so concurrent workers never double-claim, then flips it to
// running in the same transaction.
func (r *analysisJobRepo) ClaimNextPending(ctx context.Context) (*model.AnalysisJob, error) {
	var job *model.AnalysisJob

	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const fetchQuery = `
SELECT ` + jobColumns + `
FROM analysis_jobs
WHERE status = 'pending'
ORDER BY created_at
LIMIT 1
FOR UPDATE SKIP LOCKED;`

		row, err := pickRow(ctx, r.pool, tx, fetchQuery)
		if err != nil {
			return err
		}
		fetched, err := scanJob(row)
		if err != nil {
			return err
		}

		now := time.Now()
		const claimQuery = `
UPDATE analysis_jobs
SET status = 'running', started_at = $2, attempts = attempts + 1
WHERE id = $1 AND status = 'pending';`
		if _, err := execSQL(ctx, r.pool, tx, claimQuery, fetched.ID, now); err != nil {
			return err
		}

		fetched.Status = model.JobStatusRunning
		fetched.StartedAt = &now
		fetched.Attempts++
		job = fetched
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (r *analysisJobRepo) UpdateProgress(ctx context.Context, id string, percent int, stage string, detail json.RawMessage) error {
	const q = `
UPDATE analysis_jobs
SET progress = GREATEST(progress, $2), stage = $3, detail = COALESCE($4, detail)
WHERE id = $1 AND status = 'running';`

	_, err := execSQL(ctx, r.pool, nil, q, id, percent, stage, detail)
	return err
}

func (r *analysisJobRepo) Complete(ctx context.Context, id string, result json.RawMessage) error {
	const q = `
UPDATE analysis_jobs
SET status = 'completed', progress = 100, result = $2, completed_at = $3
WHERE id = $1 AND status IN ('pending', 'running');`

	return r.terminalWrite(ctx, id, q, result)
}

func (r *analysisJobRepo) Fail(ctx context.Context, id string, errMsg string) error {
	const q = `
UPDATE analysis_jobs
SET status = 'failed', last_error = $2, completed_at = $3
WHERE id = $1 AND status IN ('pending', 'running');`

	return r.terminalWrite(ctx, id, q, errMsg)
}

func (r *analysisJobRepo) FindStale(ctx context.Context, jobType model.JobType, olderThan time.Time) ([]string, error) {
	const q = `
SELECT id
FROM analysis_jobs
WHERE job_type = $1 AND status IN ('pending', 'running')
  AND COALESCE(started_at, created_at) < $2;`

	rows, err := pickRows(ctx, r.pool, nil, q, string(jobType), olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *analysisJobRepo) ForceFail(ctx context.Context, id string, reason string) error {
	return r.Fail(ctx, id, reason)
}

// terminalWrite executes a conditional terminal UPDATE and translates a
// zero-row result into ErrNotFound or ErrTerminalState.
func (r *analysisJobRepo) terminalWrite(ctx context.Context, id, q string, arg interface{}) error {
	tag, err := execSQL(ctx, r.pool, nil, q, id, arg, time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	row, err := pickRow(ctx, r.pool, nil, `SELECT status FROM analysis_jobs WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	var status string
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return domain.ErrReadDatabaseRow
	}
	return domain.ErrTerminalState
}

func scanJob(row pgx.Row) (*model.AnalysisJob, error) {
	var j model.AnalysisJob
	var jobType, status string
	err := row.Scan(
		&j.ID, &j.SubjectID, &jobType, &j.Payload, &status, &j.Progress, &j.Stage, &j.Detail,
		&j.Result, &j.LastError, &j.Attempts, &j.CreatedAt, &j.StartedAt, &j.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	j.Type = model.JobType(jobType)
	j.Status = model.JobStatus(status)
	return &j, nil
}
