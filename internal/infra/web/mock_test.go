package web

import (
	"context"
	"encoding/json"
	"time"

	"hackathon-ai-jury/internal/domain"
	"hackathon-ai-jury/internal/domain/model"
	"hackathon-ai-jury/internal/infra/hub"
	"hackathon-ai-jury/internal/usecase"

	"github.com/google/uuid"
)

type fakeAnalysisUC struct {
	h    *hub.Hub
	jobs map[string]*model.AnalysisJob

	enqueueErr error
	sweepCount int
	sweepErr   error
}

var _ usecase.AnalysisUseCase = (*fakeAnalysisUC)(nil)

func newFakeAnalysisUC(h *hub.Hub) *fakeAnalysisUC {
	return &fakeAnalysisUC{h: h, jobs: make(map[string]*model.AnalysisJob)}
}

func (f *fakeAnalysisUC) Enqueue(ctx context.Context, jobType model.JobType, subjectID string, payload json.RawMessage) (*model.AnalysisJob, error) {
	if f.enqueueErr != nil {
		return nil, f.enqueueErr
	}
	if subjectID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if !model.ValidJobType(jobType) {
		return nil, domain.ErrUnknownJobType
	}
	job := &model.AnalysisJob{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		Type:      jobType,
		Payload:   payload,
		Status:    model.JobStatusPending,
		CreatedAt: time.Now(),
	}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeAnalysisUC) Status(ctx context.Context, jobID string) (*model.AnalysisJob, error) {
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return j, nil
}

func (f *fakeAnalysisUC) CachedStatus(ctx context.Context, jobID string) (model.JobStatus, error) {
	j, err := f.Status(ctx, jobID)
	if err != nil {
		return "", err
	}
	return j.Status, nil
}

func (f *fakeAnalysisUC) Subscribe(jobID string) *hub.Subscription { return f.h.Subscribe(jobID) }

func (f *fakeAnalysisUC) SweepNow(ctx context.Context) (int, error) {
	return f.sweepCount, f.sweepErr
}

type fakeJuryUC struct {
	h        *hub.Hub
	sessions map[string]*model.EliminationSession
	outcomes map[string][]*model.CandidateOutcome

	startErr error
	resetErr error
}

var _ usecase.EliminationUseCase = (*fakeJuryUC)(nil)

func newFakeJuryUC(h *hub.Hub) *fakeJuryUC {
	return &fakeJuryUC{
		h:        h,
		sessions: make(map[string]*model.EliminationSession),
		outcomes: make(map[string][]*model.CandidateOutcome),
	}
}

func (f *fakeJuryUC) StartSession(ctx context.Context, hackathonID string, candidates []model.Candidate) (*model.EliminationSession, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	if hackathonID == "" {
		return nil, domain.ErrInvalidArgument
	}
	s := &model.EliminationSession{
		ID:              uuid.NewString(),
		HackathonID:     hackathonID,
		Status:          model.JobStatusRunning,
		TotalCandidates: len(candidates),
		CreatedAt:       time.Now(),
	}
	f.sessions[s.ID] = s
	return s, nil
}

func (f *fakeJuryUC) Status(ctx context.Context, sessionID string) (*model.EliminationSession, error) {
	s, ok := f.sessions[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

func (f *fakeJuryUC) StageOutcomes(ctx context.Context, sessionID string, stageIndex int) ([]*model.CandidateOutcome, error) {
	if _, ok := f.sessions[sessionID]; !ok {
		return nil, domain.ErrNotFound
	}
	return f.outcomes[sessionID], nil
}

func (f *fakeJuryUC) Survivors(ctx context.Context, sessionID string) ([]*model.CandidateOutcome, error) {
	return f.StageOutcomes(ctx, sessionID, 0)
}

func (f *fakeJuryUC) SoftReset(ctx context.Context, sessionID string, candidates []model.Candidate) error {
	return f.resetErr
}

func (f *fakeJuryUC) HardReset(ctx context.Context, sessionID string) error {
	return f.resetErr
}

func (f *fakeJuryUC) Subscribe(sessionID string) *hub.Subscription { return f.h.Subscribe(sessionID) }
