package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"hackathon-ai-jury/internal/analysis"
	"hackathon-ai-jury/internal/domain"
	"hackathon-ai-jury/internal/domain/model"
	"hackathon-ai-jury/internal/domain/ports/adapter"
	"hackathon-ai-jury/internal/domain/ports/repository"
	"hackathon-ai-jury/internal/infra/hub"
	"hackathon-ai-jury/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// stageJobTypes fixes the order of the elimination pipeline: eligibility
// first, then the three scored passes over a shrinking population.
var stageJobTypes = []model.JobType{
	model.JobTypeTechDetect,
	model.JobTypeCodeQuality,
	model.JobTypeCoherence,
	model.JobTypeInnovation,
}

// EliminationUseCase drives multi-stage elimination sessions. A session
// runs in a background goroutine; callers observe it through Status and
// the progress event stream.
type EliminationUseCase interface {
	StartSession(ctx context.Context, hackathonID string, candidates []model.Candidate) (*model.EliminationSession, error)
	Status(ctx context.Context, sessionID string) (*model.EliminationSession, error)
	StageOutcomes(ctx context.Context, sessionID string, stageIndex int) ([]*model.CandidateOutcome, error)
	Survivors(ctx context.Context, sessionID string) ([]*model.CandidateOutcome, error)
	SoftReset(ctx context.Context, sessionID string, candidates []model.Candidate) error
	HardReset(ctx context.Context, sessionID string) error
	Subscribe(sessionID string) *hub.Subscription
}

type eliminationUC struct {
	sessions repository.EliminationRepository
	registry *analysis.Registry
	hub      *hub.Hub
	notifier adapter.Notifier
	log      *zerolog.Logger

	stageLabels  []string
	thresholds   []float64
	maxAttempts  int
	retryBackoff time.Duration

	// baseCtx bounds every session goroutine; cancelling it on shutdown
	// fails running sessions instead of leaving them silently dead.
	baseCtx context.Context

	mu      sync.Mutex
	running map[string]struct{}
}

var _ EliminationUseCase = (*eliminationUC)(nil)

// NewEliminationUseCase wires the controller. Stage labels and score
// thresholds must cover every pipeline stage; a short table is a config
// bug and fails construction.
func NewEliminationUseCase(
	baseCtx context.Context,
	sessions repository.EliminationRepository,
	registry *analysis.Registry,
	h *hub.Hub,
	notifier adapter.Notifier,
	stageLabels []string,
	thresholds []float64,
	maxAttempts int,
	retryBackoff time.Duration,
	log *zerolog.Logger,
) (*eliminationUC, error) {
	if len(stageLabels) != len(stageJobTypes) || len(thresholds) != len(stageJobTypes) {
		return nil, fmt.Errorf("elimination: need %d stage labels and thresholds, got %d and %d",
			len(stageJobTypes), len(stageLabels), len(thresholds))
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if retryBackoff <= 0 {
		retryBackoff = 2 * time.Second
	}
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &eliminationUC{
		sessions:     sessions,
		registry:     registry,
		hub:          h,
		notifier:     notifier,
		stageLabels:  stageLabels,
		thresholds:   thresholds,
		maxAttempts:  maxAttempts,
		retryBackoff: retryBackoff,
		baseCtx:      baseCtx,
		log:          log,
		running:      make(map[string]struct{}),
	}, nil
}

// StartSession creates and launches a session for the hackathon. At most
// one session per hackathon may be non-terminal; the partial unique
// index backs this even across processes.
func (uc *eliminationUC) StartSession(ctx context.Context, hackathonID string, candidates []model.Candidate) (*model.EliminationSession, error) {
	if hackathonID == "" {
		return nil, domain.ErrInvalidArgument
	}

	if _, err := uc.sessions.FindActiveSession(ctx, nil, hackathonID); err == nil {
		return nil, domain.ErrSessionRunning
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	stages := make([]model.StageState, len(stageJobTypes))
	for i := range stages {
		stages[i] = model.StageState{Index: i, Label: uc.stageLabels[i], Status: model.JobStatusPending}
	}
	session := &model.EliminationSession{
		HackathonID:     hackathonID,
		Stages:          stages,
		Status:          model.JobStatusPending,
		TotalCandidates: len(candidates),
	}
	if err := uc.sessions.CreateSession(ctx, nil, session); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, domain.ErrSessionRunning
		}
		return nil, err
	}

	uc.launch(session, candidates)
	return session, nil
}

func (uc *eliminationUC) Status(ctx context.Context, sessionID string) (*model.EliminationSession, error) {
	return uc.sessions.FindSession(ctx, nil, sessionID)
}

func (uc *eliminationUC) StageOutcomes(ctx context.Context, sessionID string, stageIndex int) ([]*model.CandidateOutcome, error) {
	if stageIndex < 0 || stageIndex >= len(stageJobTypes) {
		return nil, domain.ErrInvalidArgument
	}
	return uc.sessions.ListOutcomes(ctx, nil, sessionID, stageIndex)
}

func (uc *eliminationUC) Survivors(ctx context.Context, sessionID string) ([]*model.CandidateOutcome, error) {
	return uc.sessions.Survivors(ctx, nil, sessionID)
}

// SoftReset clears outcomes, rewinds every stage and re-runs the session
// over the provided candidate list. Rejected while the session runs.
func (uc *eliminationUC) SoftReset(ctx context.Context, sessionID string, candidates []model.Candidate) error {
	session, err := uc.guardedFind(ctx, sessionID)
	if err != nil {
		return err
	}

	if err := uc.sessions.DeleteOutcomes(ctx, nil, sessionID); err != nil {
		return err
	}
	for i := range session.Stages {
		session.Stages[i] = model.StageState{Index: i, Label: uc.stageLabels[i], Status: model.JobStatusPending}
	}
	session.StageIndex = 0
	session.Status = model.JobStatusPending
	session.TotalCandidates = len(candidates)
	session.Current = nil
	session.LastError = ""
	session.CompletedAt = nil
	if err := uc.sessions.UpdateSession(ctx, nil, session); err != nil {
		return err
	}

	uc.log.Info().Str("session_id", sessionID).Int("candidates", len(candidates)).Msg("session soft reset, re-running")
	uc.launch(session, candidates)
	return nil
}

// HardReset deletes the session and all its outcomes. Rejected while the
// session runs.
func (uc *eliminationUC) HardReset(ctx context.Context, sessionID string) error {
	if _, err := uc.guardedFind(ctx, sessionID); err != nil {
		return err
	}
	uc.log.Info().Str("session_id", sessionID).Msg("session hard reset")
	return uc.sessions.DeleteSession(ctx, nil, sessionID)
}

func (uc *eliminationUC) Subscribe(sessionID string) *hub.Subscription {
	return uc.hub.Subscribe(sessionID)
}

// guardedFind loads the session and rejects mutation of one that is
// still running, checking both the in-process launch table and the
// durable status.
func (uc *eliminationUC) guardedFind(ctx context.Context, sessionID string) (*model.EliminationSession, error) {
	uc.mu.Lock()
	_, active := uc.running[sessionID]
	uc.mu.Unlock()
	if active {
		return nil, domain.ErrSessionRunning
	}

	session, err := uc.sessions.FindSession(ctx, nil, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == model.JobStatusRunning {
		return nil, domain.ErrSessionRunning
	}
	return session, nil
}

func (uc *eliminationUC) launch(session *model.EliminationSession, candidates []model.Candidate) {
	uc.mu.Lock()
	uc.running[session.ID] = struct{}{}
	uc.mu.Unlock()

	go func() {
		defer func() {
			uc.mu.Lock()
			delete(uc.running, session.ID)
			uc.mu.Unlock()
		}()
		uc.run(uc.baseCtx, session, candidates)
	}()
}

// run executes the full pipeline: stages strictly in order, candidates
// strictly in input order within a stage, stage k+1 fed exactly stage
// k's advanced set. Any unrecoverable stage failure terminates the whole
// session as failed.
func (uc *eliminationUC) run(ctx context.Context, session *model.EliminationSession, candidates []model.Candidate) {
	log := uc.log.With().Str("session_id", session.ID).Str("hackathon_id", session.HackathonID).Logger()

	session.Status = model.JobStatusRunning
	if err := uc.sessions.UpdateSession(ctx, nil, session); err != nil {
		log.Error().Err(err).Msg("failed to mark session running")
		return
	}
	log.Info().Int("candidates", len(candidates)).Msg("elimination session started")
	sessionStart := time.Now()

	population := candidates
	for i := range session.Stages {
		next, err := uc.runStage(ctx, &log, session, i, population)
		if err != nil {
			uc.failSession(&log, session, i, err)
			return
		}
		population = next
	}

	now := time.Now()
	session.Status = model.JobStatusCompleted
	session.Current = nil
	session.CompletedAt = &now
	if err := uc.sessions.UpdateSession(ctx, nil, session); err != nil {
		log.Error().Err(err).Msg("failed to mark session completed")
	}
	metrics.IncSessionFinished(string(model.JobStatusCompleted))

	payload, _ := json.Marshal(map[string]any{
		"survivors": len(population),
		"total":     session.TotalCandidates,
	})
	msg := fmt.Sprintf("elimination finished: %d of %d candidates survived", len(population), session.TotalCandidates)
	uc.hub.Publish(session.ID, model.NewEvent(session.ID, model.EventSessionDone, msg, payload))
	uc.notifyTerminal(session.ID, model.EventSessionDone, msg)
	log.Info().Int("survivors", len(population)).Dur("duration", time.Since(sessionStart)).Msg("elimination session completed")
}

// runStage processes one stage over its population and returns the
// advanced set in processing order.
func (uc *eliminationUC) runStage(ctx context.Context, log *zerolog.Logger, session *model.EliminationSession, idx int, population []model.Candidate) ([]model.Candidate, error) {
	stage := &session.Stages[idx]
	stage.Entered = len(population)
	stage.Status = model.JobStatusRunning
	session.StageIndex = idx
	if err := uc.sessions.UpdateSession(ctx, nil, session); err != nil {
		return nil, fmt.Errorf("persist stage %d start: %w", idx, err)
	}

	startPayload, _ := json.Marshal(map[string]any{"stage": idx, "label": stage.Label, "entered": stage.Entered})
	uc.hub.Publish(session.ID, model.NewEvent(session.ID, model.EventStageStart, stage.Label, startPayload))
	log.Info().Int("stage", idx).Str("label", stage.Label).Int("entered", stage.Entered).Msg("stage started")
	stageStart := time.Now()

	proc, err := uc.registry.Get(stageJobTypes[idx])
	if err != nil {
		return nil, err
	}

	var advanced []model.Candidate
	for _, cand := range population {
		session.Current = &model.CurrentCandidate{ID: cand.ID, Name: cand.Name, Status: "analyzing"}
		if err := uc.sessions.UpdateSession(ctx, nil, session); err != nil {
			return nil, fmt.Errorf("persist current candidate: %w", err)
		}
		candPayload, _ := json.Marshal(map[string]any{"stage": idx, "candidate_id": cand.ID, "name": cand.Name})
		uc.hub.Publish(session.ID, model.NewEvent(session.ID, model.EventCandidateStart, cand.Name, candPayload))

		raw, err := uc.runProcedure(ctx, proc, cand)
		if err != nil {
			return nil, fmt.Errorf("stage %d candidate %s: %w", idx, cand.ID, err)
		}
		score, pass, reason := uc.classify(idx, raw)

		outcome := &model.CandidateOutcome{
			SessionID:     session.ID,
			StageIndex:    idx,
			CandidateID:   cand.ID,
			CandidateName: cand.Name,
			Score:         score,
			Advanced:      pass,
			Reason:        reason,
			Evidence:      raw,
		}
		if err := uc.sessions.SaveOutcome(ctx, nil, outcome); err != nil {
			return nil, fmt.Errorf("persist outcome for %s: %w", cand.ID, err)
		}

		stage.Processed++
		if pass {
			stage.Advanced++
			advanced = append(advanced, cand)
			session.Current.Status = "advanced"
		} else {
			stage.Eliminated++
			session.Current.Status = "eliminated"
		}
		metrics.IncCandidateProcessed(idx, pass)
		if err := uc.sessions.UpdateSession(ctx, nil, session); err != nil {
			return nil, fmt.Errorf("persist stage tally: %w", err)
		}

		donePayload, _ := json.Marshal(map[string]any{
			"stage":        idx,
			"candidate_id": cand.ID,
			"advanced":     pass,
			"score":        score,
			"processed":    stage.Processed,
			"eliminated":   stage.Eliminated,
		})
		uc.hub.Publish(session.ID, model.NewEvent(session.ID, model.EventCandidateDone, reason, donePayload))
		log.Debug().Int("stage", idx).Str("candidate_id", cand.ID).
			Float64("score", score).Bool("advanced", pass).Msg("candidate judged")
	}

	stage.Status = model.JobStatusCompleted
	session.Current = nil
	if err := uc.sessions.UpdateSession(ctx, nil, session); err != nil {
		return nil, fmt.Errorf("persist stage %d completion: %w", idx, err)
	}
	metrics.ObserveStageDuration(idx, time.Since(stageStart))

	endPayload, _ := json.Marshal(map[string]any{
		"stage":      idx,
		"entered":    stage.Entered,
		"eliminated": stage.Eliminated,
		"advanced":   stage.Advanced,
	})
	msg := fmt.Sprintf("%s: %d advanced, %d eliminated", stage.Label, stage.Advanced, stage.Eliminated)
	uc.hub.Publish(session.ID, model.NewEvent(session.ID, model.EventStageDone, msg, endPayload))
	log.Info().Int("stage", idx).Int("advanced", stage.Advanced).
		Int("eliminated", stage.Eliminated).Dur("duration", time.Since(stageStart)).Msg("stage completed")

	return advanced, nil
}

// runProcedure executes a single candidate's analysis with the same
// bounded transient-retry policy the worker pool applies.
func (uc *eliminationUC) runProcedure(ctx context.Context, proc analysis.Procedure, cand model.Candidate) (json.RawMessage, error) {
	subject := analysis.Subject{SubjectID: cand.ID, Name: cand.Name, RepoURL: cand.RepoURL}
	report := func(int, string, json.RawMessage) {} // per-candidate progress is not streamed

	var lastErr error
	for attempt := 1; attempt <= uc.maxAttempts; attempt++ {
		raw, err := proc(ctx, subject, report)
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if !domain.IsTransient(err) || attempt == uc.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(uc.retryBackoff * time.Duration(attempt)):
		}
	}
	return nil, lastErr
}

// classify turns a stage's raw analysis evidence into a verdict. Stage 0
// is a boolean eligibility gate; later stages compare the score against
// the configured threshold.
func (uc *eliminationUC) classify(idx int, raw json.RawMessage) (float64, bool, string) {
	if stageJobTypes[idx] == model.JobTypeTechDetect {
		var res analysis.TechDetectResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return 0, false, "unreadable eligibility verdict"
		}
		if !res.Eligible {
			return 0, false, "does not genuinely use the required technology"
		}
		return 0, true, "eligible"
	}

	var res struct {
		Score   float64 `json:"score"`
		Summary string  `json:"summary"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return 0, false, "unreadable score"
	}
	threshold := uc.thresholds[idx]
	if res.Score < threshold {
		return res.Score, false, fmt.Sprintf("score %.1f below threshold %.1f", res.Score, threshold)
	}
	return res.Score, true, fmt.Sprintf("score %.1f meets threshold %.1f", res.Score, threshold)
}

func (uc *eliminationUC) failSession(log *zerolog.Logger, session *model.EliminationSession, stageIdx int, cause error) {
	log.Error().Err(cause).Int("stage", stageIdx).Msg("elimination session failed")

	now := time.Now()
	session.Status = model.JobStatusFailed
	session.Stages[stageIdx].Status = model.JobStatusFailed
	session.Current = nil
	session.LastError = cause.Error()
	session.CompletedAt = &now
	// Best effort with a fresh context: the failure may be the parent
	// context itself being cancelled on shutdown.
	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := uc.sessions.UpdateSession(writeCtx, nil, session); err != nil {
		log.Error().Err(err).Msg("failed to persist failed session state")
	}
	metrics.IncSessionFinished(string(model.JobStatusFailed))

	payload, _ := json.Marshal(map[string]any{"stage": stageIdx})
	uc.hub.Publish(session.ID, model.NewEvent(session.ID, model.EventError, cause.Error(), payload))
	uc.notifyTerminal(session.ID, model.EventError, cause.Error())
}

func (uc *eliminationUC) notifyTerminal(sessionID string, kind model.EventKind, message string) {
	if uc.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := uc.notifier.NotifyTerminal(ctx, sessionID, string(kind), message); err != nil {
		uc.log.Warn().Err(err).Str("session_id", sessionID).Msg("terminal notification failed")
	}
}
