package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"hackathon-ai-jury/internal/domain"
	"hackathon-ai-jury/internal/domain/model"
	"hackathon-ai-jury/internal/domain/ports/repository"
	"hackathon-ai-jury/internal/infra/hub"
	red "hackathon-ai-jury/internal/infra/redis"

	"github.com/rs/zerolog"
)

// Sweeper is the slice of the reclaimer the ops API exposes.
type Sweeper interface {
	SweepNow(ctx context.Context) (int, error)
}

// AnalysisUseCase is the request-side surface of the analysis pipeline:
// enqueue, poll and stream. Execution itself belongs to the worker pool.
type AnalysisUseCase interface {
	Enqueue(ctx context.Context, jobType model.JobType, subjectID string, payload json.RawMessage) (*model.AnalysisJob, error)
	Status(ctx context.Context, jobID string) (*model.AnalysisJob, error)
	CachedStatus(ctx context.Context, jobID string) (model.JobStatus, error)
	Subscribe(jobID string) *hub.Subscription
	SweepNow(ctx context.Context) (int, error)
}

type analysisUC struct {
	jobs    repository.AnalysisJobRepository
	locker  red.Locker
	cache   *red.JobStatusCache
	hub     *hub.Hub
	sweeper Sweeper
	log     *zerolog.Logger
}

var _ AnalysisUseCase = (*analysisUC)(nil)

func NewAnalysisUseCase(
	jobs repository.AnalysisJobRepository,
	locker red.Locker,
	cache *red.JobStatusCache,
	h *hub.Hub,
	sweeper Sweeper,
	log *zerolog.Logger,
) *analysisUC {
	return &analysisUC{jobs: jobs, locker: locker, cache: cache, hub: h, sweeper: sweeper, log: log}
}

const enqueueLockTTL = 10 * time.Second

// Enqueue admits a new pending job for (subjectID, jobType). A short
// redis lock serializes concurrent enqueue attempts across processes;
// the partial unique index in the job table remains the hard guarantee,
// so a lock failure degrades to the database catching the duplicate.
func (uc *analysisUC) Enqueue(ctx context.Context, jobType model.JobType, subjectID string, payload json.RawMessage) (*model.AnalysisJob, error) {
	if subjectID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if !model.ValidJobType(jobType) {
		return nil, domain.ErrUnknownJobType
	}

	lockKey := "jury:enqueue:" + subjectID + ":" + string(jobType)
	token, err := uc.locker.TryLock(ctx, lockKey, enqueueLockTTL)
	if err == nil {
		defer func() {
			if err := uc.locker.Unlock(context.Background(), lockKey, token); err != nil {
				uc.log.Warn().Err(err).Str("key", lockKey).Msg("enqueue lock release failed")
			}
		}()
	} else if !errors.Is(err, domain.ErrConflict) {
		uc.log.Warn().Err(err).Str("key", lockKey).Msg("enqueue lock unavailable, relying on unique index")
	} else {
		return nil, domain.ErrConflict
	}

	if active, err := uc.jobs.FindActive(ctx, nil, subjectID, jobType); err == nil {
		uc.log.Debug().Str("job_id", active.ID).Str("subject_id", subjectID).
			Str("type", string(jobType)).Msg("rejecting duplicate in-flight job")
		return nil, domain.ErrConflict
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	job := &model.AnalysisJob{
		SubjectID: subjectID,
		Type:      jobType,
		Payload:   payload,
		Status:    model.JobStatusPending,
	}
	if err := uc.jobs.Create(ctx, nil, job); err != nil {
		return nil, err
	}

	if err := uc.cache.SetStatus(ctx, job.ID, job.Status); err != nil {
		uc.log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to cache job status")
	}
	uc.log.Info().Str("job_id", job.ID).Str("subject_id", subjectID).
		Str("type", string(jobType)).Msg("analysis job enqueued")
	return job, nil
}

// Status returns the durable job row and refreshes the status cache as
// a side effect.
func (uc *analysisUC) Status(ctx context.Context, jobID string) (*model.AnalysisJob, error) {
	job, err := uc.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	if err := uc.cache.SetStatus(ctx, jobID, job.Status); err != nil {
		uc.log.Warn().Err(err).Str("job_id", jobID).Msg("failed to refresh status cache")
	}
	return job, nil
}

// CachedStatus answers cheap status polls from redis when possible and
// falls back to the repository on a miss.
func (uc *analysisUC) CachedStatus(ctx context.Context, jobID string) (model.JobStatus, error) {
	if status, ok, err := uc.cache.GetStatus(ctx, jobID); err == nil && ok {
		return status, nil
	}
	job, err := uc.Status(ctx, jobID)
	if err != nil {
		return "", err
	}
	return job.Status, nil
}

func (uc *analysisUC) Subscribe(jobID string) *hub.Subscription {
	return uc.hub.Subscribe(jobID)
}

func (uc *analysisUC) SweepNow(ctx context.Context) (int, error) {
	return uc.sweeper.SweepNow(ctx)
}
