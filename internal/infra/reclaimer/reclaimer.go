package reclaimer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hackathon-ai-jury/internal/domain"
	"hackathon-ai-jury/internal/domain/model"
	"hackathon-ai-jury/internal/domain/ports/repository"
	"hackathon-ai-jury/internal/infra/hub"
	"hackathon-ai-jury/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// ReclaimMessage is the distinguishing error persisted on force-failed
// jobs so operators can tell a timeout from a real procedure failure.
const ReclaimMessage = "timed out and was reclaimed"

// Reclaimer periodically force-fails jobs stuck in a non-terminal state
// past their type-specific timeout. The terminal transition is a
// conditional update, so a job that legitimately completes in the race
// window is never overwritten.
type Reclaimer struct {
	jobs     repository.AnalysisJobRepository
	hub      *hub.Hub
	timeouts map[model.JobType]time.Duration
	interval time.Duration
	log      *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a reclaimer. Every known job type must have a positive
// timeout; a missing entry is a wiring bug and fails construction
// instead of silently falling back to a default.
func New(
	jobs repository.AnalysisJobRepository,
	h *hub.Hub,
	timeouts map[model.JobType]time.Duration,
	interval time.Duration,
	log *zerolog.Logger,
) (*Reclaimer, error) {
	for _, jt := range model.AllJobTypes() {
		if timeouts[jt] <= 0 {
			return nil, fmt.Errorf("reclaimer: no timeout configured for job type %q", jt)
		}
	}
	if interval <= 0 {
		interval = 3 * time.Minute
	}
	return &Reclaimer{
		jobs:     jobs,
		hub:      h,
		timeouts: timeouts,
		interval: interval,
		log:      log,
		done:     make(chan struct{}),
	}, nil
}

// Start begins the sweep loop in a background goroutine. Calling Start
// more than once has no effect.
func (r *Reclaimer) Start(parentCtx context.Context) {
	if r.ctx != nil {
		return
	}
	r.ctx, r.cancel = context.WithCancel(parentCtx)
	go r.loop()
}

func (r *Reclaimer) loop() {
	ticker := time.NewTicker(r.interval)
	defer func() {
		ticker.Stop()
		close(r.done)
	}()

	r.log.Info().Dur("interval", r.interval).Msg("stuck-job reclaimer started")
	for {
		select {
		case <-r.ctx.Done():
			r.log.Info().Msg("stuck-job reclaimer stopping")
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(r.ctx, 30*time.Second)
			reclaimed, err := r.SweepNow(runCtx)
			cancel()
			if err != nil {
				r.log.Error().Err(err).Msg("reclaimer sweep error")
				continue
			}
			if reclaimed > 0 {
				r.log.Warn().Int("reclaimed", reclaimed).Msg("reclaimed stuck jobs")
			}
		}
	}
}

// Stop cancels the loop and waits for it to finish. Idempotent.
func (r *Reclaimer) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.ctx = nil
	r.cancel = nil
	r.done = make(chan struct{})
}

// SweepNow runs one sweep across all job types and returns how many jobs
// it force-failed. Also exposed to the ops API as a manual diagnostics
// trigger.
func (r *Reclaimer) SweepNow(ctx context.Context) (int, error) {
	var reclaimed int
	var firstErr error

	for _, jt := range model.AllJobTypes() {
		cutoff := time.Now().Add(-r.timeouts[jt])
		ids, err := r.jobs.FindStale(ctx, jt, cutoff)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("find stale %s jobs: %w", jt, err)
			}
			continue
		}

		for _, id := range ids {
			err := r.jobs.ForceFail(ctx, id, ReclaimMessage)
			if errors.Is(err, domain.ErrTerminalState) || errors.Is(err, domain.ErrNotFound) {
				// Lost the race to a legitimate completion; nothing to do.
				continue
			}
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("force-fail job %s: %w", id, err)
				}
				continue
			}

			reclaimed++
			metrics.IncJobReclaimed(string(jt))
			r.log.Warn().Str("job_id", id).Str("type", string(jt)).Msg("force-failed stuck job")
			r.hub.Publish(id, model.NewEvent(id, model.EventError, ReclaimMessage, nil))
		}
	}
	return reclaimed, firstErr
}
