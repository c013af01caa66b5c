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

var _ repository.EliminationRepository = (*eliminationRepo)(nil)

// eliminationRepo persists sessions (stage states as jsonb) and one
// outcome row per (session, stage, candidate). A partial unique index on
// hackathon_id backs the one-active-session invariant.
type eliminationRepo struct {
	pool *pgxpool.Pool
}

func NewEliminationRepo(pool *pgxpool.Pool) *eliminationRepo {
	return &eliminationRepo{pool: pool}
}

const sessionColumns = `id, hackathon_id, stages, stage_index, status, total_candidates,
current_candidate, last_error, created_at, completed_at`

func (r *eliminationRepo) CreateSession(ctx context.Context, tx repository.Tx, s *model.EliminationSession) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	stages, err := json.Marshal(s.Stages)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO elimination_sessions
  (id, hackathon_id, stages, stage_index, status, total_candidates, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

	_, err = execSQL(ctx, r.pool, tx, q,
		s.ID, s.HackathonID, stages, s.StageIndex, string(s.Status), s.TotalCandidates, s.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *eliminationRepo) FindSession(ctx context.Context, tx repository.Tx, id string) (*model.EliminationSession, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+sessionColumns+` FROM elimination_sessions WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanSession(row)
}

func (r *eliminationRepo) FindActiveSession(ctx context.Context, tx repository.Tx, hackathonID string) (*model.EliminationSession, error) {
	const q = `
SELECT ` + sessionColumns + `
FROM elimination_sessions
WHERE hackathon_id = $1 AND status IN ('pending', 'running')
LIMIT 1;`

	row, err := pickRow(ctx, r.pool, tx, q, hackathonID)
	if err != nil {
		return nil, err
	}
	return scanSession(row)
}

func (r *eliminationRepo) UpdateSession(ctx context.Context, tx repository.Tx, s *model.EliminationSession) error {
	stages, err := json.Marshal(s.Stages)
	if err != nil {
		return err
	}
	var current []byte
	if s.Current != nil {
		if current, err = json.Marshal(s.Current); err != nil {
			return err
		}
	}

	const q = `
UPDATE elimination_sessions
SET stages = $2, stage_index = $3, status = $4, current_candidate = $5,
    last_error = $6, completed_at = $7
WHERE id = $1;`

	tag, err := execSQL(ctx, r.pool, tx, q,
		s.ID, stages, s.StageIndex, string(s.Status), current, s.LastError, s.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *eliminationRepo) SaveOutcome(ctx context.Context, tx repository.Tx, o *model.CandidateOutcome) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	const q = `
INSERT INTO elimination_outcomes
  (id, session_id, stage_index, candidate_id, candidate_name, score, advanced, reason, evidence, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`

	_, err := execSQL(ctx, r.pool, tx, q,
		o.ID, o.SessionID, o.StageIndex, o.CandidateID, o.CandidateName,
		o.Score, o.Advanced, o.Reason, o.Evidence, o.CreatedAt)
	return err
}

func (r *eliminationRepo) ListOutcomes(ctx context.Context, tx repository.Tx, sessionID string, stageIndex int) ([]*model.CandidateOutcome, error) {
	const q = `
SELECT id, session_id, stage_index, candidate_id, candidate_name, score, advanced, reason, evidence, created_at
FROM elimination_outcomes
WHERE session_id = $1 AND stage_index = $2
ORDER BY created_at;`

	rows, err := pickRows(ctx, r.pool, tx, q, sessionID, stageIndex)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOutcomes(rows)
}

// Survivors returns the advanced set of the deepest stage that actually
// processed candidates; with strict stage sequencing that set is exactly
// the population that passed every stage.
func (r *eliminationRepo) Survivors(ctx context.Context, tx repository.Tx, sessionID string) ([]*model.CandidateOutcome, error) {
	const q = `
SELECT id, session_id, stage_index, candidate_id, candidate_name, score, advanced, reason, evidence, created_at
FROM elimination_outcomes
WHERE session_id = $1 AND advanced = TRUE
  AND stage_index = (SELECT COALESCE(MAX(stage_index), -1) FROM elimination_outcomes WHERE session_id = $1)
ORDER BY score DESC;`

	rows, err := pickRows(ctx, r.pool, tx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOutcomes(rows)
}

func (r *eliminationRepo) DeleteSession(ctx context.Context, tx repository.Tx, id string) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM elimination_sessions WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *eliminationRepo) DeleteOutcomes(ctx context.Context, tx repository.Tx, sessionID string) error {
	_, err := execSQL(ctx, r.pool, tx, `DELETE FROM elimination_outcomes WHERE session_id = $1;`, sessionID)
	return err
}

func scanSession(row pgx.Row) (*model.EliminationSession, error) {
	var s model.EliminationSession
	var status string
	var stages []byte
	var current []byte
	err := row.Scan(
		&s.ID, &s.HackathonID, &stages, &s.StageIndex, &status, &s.TotalCandidates,
		&current, &s.LastError, &s.CreatedAt, &s.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	s.Status = model.JobStatus(status)
	if err := json.Unmarshal(stages, &s.Stages); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	if len(current) > 0 {
		s.Current = &model.CurrentCandidate{}
		if err := json.Unmarshal(current, s.Current); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &s, nil
}

func collectOutcomes(rows pgx.Rows) ([]*model.CandidateOutcome, error) {
	var out []*model.CandidateOutcome
	for rows.Next() {
		var o model.CandidateOutcome
		if err := rows.Scan(
			&o.ID, &o.SessionID, &o.StageIndex, &o.CandidateID, &o.CandidateName,
			&o.Score, &o.Advanced, &o.Reason, &o.Evidence, &o.CreatedAt,
		); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}
