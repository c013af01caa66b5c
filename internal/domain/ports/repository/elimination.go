package repository

import (
	"context"

	"hackathon-ai-jury/internal/domain/model"
)

// EliminationRepository persists AI-jury sessions and per-candidate
// outcomes: one row per session, one row per (session, stage, candidate).
type EliminationRepository interface {
	CreateSession(ctx context.Context, tx Tx, s *model.EliminationSession) error
	FindSession(ctx context.Context, tx Tx, id string) (*model.EliminationSession, error)

	// FindActiveSession returns the non-terminal session for a hackathon,
	// or ErrNotFound.
	FindActiveSession(ctx context.Context, tx Tx, hackathonID string) (*model.EliminationSession, error)

	// UpdateSession persists stage states, stage index, status and the
	// current-candidate marker.
	UpdateSession(ctx context.Context, tx Tx, s *model.EliminationSession) error

	SaveOutcome(ctx context.Context, tx Tx, o *model.CandidateOutcome) error
	ListOutcomes(ctx context.Context, tx Tx, sessionID string, stageIndex int) ([]*model.CandidateOutcome, error)

	// Survivors lists candidates that advanced through every stage.
	Survivors(ctx context.Context, tx Tx, sessionID string) ([]*model.CandidateOutcome, error)

	// DeleteSession hard-deletes the session and all outcomes.
	DeleteSession(ctx context.Context, tx Tx, id string) error

	// DeleteOutcomes removes all outcome rows for a session (soft reset
	// keeps the session row itself).
	DeleteOutcomes(ctx context.Context, tx Tx, sessionID string) error
}
