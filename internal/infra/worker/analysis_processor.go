package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

// AnalysisProcessor drains the pending-job queue: each tick it submits a
// claim attempt to the pool; a worker that wins a claim runs the job's
// procedure to its single terminal write.
type AnalysisProcessor struct {
	jobs     repository.AnalysisJobRepository
	registry *analysis.Registry
	hub      *hub.Hub
	notifier adapter.Notifier
	log      *zerolog.Logger

	pollInterval time.Duration
	maxAttempts  int
	retryBackoff time.Duration
}

func NewAnalysisProcessor(
	jobs repository.AnalysisJobRepository,
	registry *analysis.Registry,
	h *hub.Hub,
	notifier adapter.Notifier,
	pollInterval time.Duration,
	maxAttempts int,
	retryBackoff time.Duration,
	log *zerolog.Logger,
) *AnalysisProcessor {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if retryBackoff <= 0 {
		retryBackoff = 2 * time.Second
	}
	return &AnalysisProcessor{
		jobs:         jobs,
		registry:     registry,
		hub:          h,
		notifier:     notifier,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
		retryBackoff: retryBackoff,
		log:          log,
	}
}

// Start runs the claim loop until ctx is cancelled. Run in a goroutine.
func (p *AnalysisProcessor) Start(ctx context.Context, pool *Pool) {
	p.log.Info().Dur("poll_interval", p.pollInterval).Msg("analysis processor started")
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("analysis processor stopping")
			return
		case <-ticker.C:
			_ = pool.Submit(func(ctx context.Context) error {
				p.processOne(ctx)
				return nil
			})
		}
	}
}

func (p *AnalysisProcessor) processOne(ctx context.Context) {
	job, err := p.jobs.ClaimNextPending(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			p.log.Error().Err(err).Msg("failed to claim analysis job")
		}
		return
	}

	p.log.Info().Str("job_id", job.ID).Str("type", string(job.Type)).
		Str("subject_id", job.SubjectID).Msg("processing analysis job")
	start := time.Now()

	result, runErr := p.run(ctx, job)

	// The terminal write is conditional on the job still being
	// non-terminal; losing that race to the reclaimer is logged, never
	// retried, so exactly one terminal transition survives.
	if runErr != nil {
		p.log.Error().Err(runErr).Str("job_id", job.ID).Msg("analysis job failed")
		if err := p.jobs.Fail(context.Background(), job.ID, runErr.Error()); err != nil {
			p.log.Warn().Err(err).Str("job_id", job.ID).Msg("terminal fail write rejected")
		} else {
			p.publishTerminal(job, model.EventError, runErr.Error())
			metrics.IncJobProcessed(string(job.Type), string(model.JobStatusFailed))
		}
	} else {
		if err := p.jobs.Complete(context.Background(), job.ID, result); err != nil {
			p.log.Warn().Err(err).Str("job_id", job.ID).Msg("terminal complete write rejected")
		} else {
			p.publishTerminal(job, model.EventJobDone, "analysis completed")
			metrics.IncJobProcessed(string(job.Type), string(model.JobStatusCompleted))
		}
	}

	metrics.ObserveJobDuration(string(job.Type), time.Since(start))
	p.log.Info().Str("job_id", job.ID).Dur("duration", time.Since(start)).Msg("analysis job finished")
}

// run executes the job's procedure with bounded retries for transient
// failures. Retries are invisible at the job level: no state changes
// between attempts.
func (p *AnalysisProcessor) run(ctx context.Context, job *model.AnalysisJob) (json.RawMessage, error) {
	proc, err := p.registry.Get(job.Type)
	if err != nil {
		return nil, err
	}

	var subject analysis.Subject
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &subject); err != nil {
			return nil, fmt.Errorf("decode job payload: %w", err)
		}
	}
	if subject.SubjectID == "" {
		subject.SubjectID = job.SubjectID
	}

	report := p.reporter(job)

	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		result, procErr := proc(ctx, subject, report)
		if procErr == nil {
			return result, nil
		}
		lastErr = procErr
		if !domain.IsTransient(procErr) || attempt == p.maxAttempts {
			break
		}

		metrics.IncJobRetry(string(job.Type))
		p.log.Warn().Err(procErr).Str("job_id", job.ID).Int("attempt", attempt).
			Msg("transient failure, retrying analysis procedure")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.retryBackoff * time.Duration(attempt)):
		}
	}
	return nil, lastErr
}

// reporter builds the progress callback for one job. Progress is kept
// monotonic even if a retried procedure restarts its own counting.
func (p *AnalysisProcessor) reporter(job *model.AnalysisJob) analysis.ReportFunc {
	last := job.Progress
	return func(percent int, stage string, detail json.RawMessage) {
		if percent < last {
			percent = last
		}
		if percent > 100 {
			percent = 100
		}
		last = percent

		if err := p.jobs.UpdateProgress(context.Background(), job.ID, percent, stage, detail); err != nil {
			p.log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to persist job progress")
		}

		payload, _ := json.Marshal(map[string]any{"percent": percent, "stage": stage})
		p.hub.Publish(job.ID, model.NewEvent(job.ID, model.EventJobProgress, stage, payload))
	}
}

func (p *AnalysisProcessor) publishTerminal(job *model.AnalysisJob, kind model.EventKind, message string) {
	payload, _ := json.Marshal(map[string]any{"job_id": job.ID, "type": job.Type})
	p.hub.Publish(job.ID, model.NewEvent(job.ID, kind, message, payload))
	if p.notifier != nil {
		if err := p.notifier.NotifyTerminal(context.Background(), job.ID, string(kind), message); err != nil {
			p.log.Warn().Err(err).Str("job_id", job.ID).Msg("terminal notification failed")
		}
	}
}
