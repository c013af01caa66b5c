package usecase

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"hackathon-ai-jury/internal/domain"
	"hackathon-ai-jury/internal/domain/model"
	"hackathon-ai-jury/internal/domain/ports/adapter"
	"hackathon-ai-jury/internal/domain/ports/repository"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ---- Analysis job repository ----

type memJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.AnalysisJob
}

var _ repository.AnalysisJobRepository = (*memJobRepo)(nil)

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[string]*model.AnalysisJob)}
}

func cloneJob(j *model.AnalysisJob) *model.AnalysisJob {
	c := *j
	return &c
}

func (r *memJobRepo) Create(ctx context.Context, _ repository.Tx, job *model.AnalysisJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.SubjectID == job.SubjectID && j.Type == job.Type && !j.Terminal() {
			return domain.ErrConflict
		}
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = model.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *memJobRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.AnalysisJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(j), nil
}

func (r *memJobRepo) FindActive(ctx context.Context, _ repository.Tx, subjectID string, jobType model.JobType) (*model.AnalysisJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		if j.SubjectID == subjectID && j.Type == jobType && !j.Terminal() {
			return cloneJob(j), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memJobRepo) ClaimNextPending(ctx context.Context) (*model.AnalysisJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pending []*model.AnalysisJob
	for _, j := range r.jobs {
		if j.Status == model.JobStatusPending {
			pending = append(pending, j)
		}
	}
	if len(pending) == 0 {
		return nil, domain.ErrNotFound
	}
	sort.Slice(pending, func(i, k int) bool { return pending[i].CreatedAt.Before(pending[k].CreatedAt) })
	j := pending[0]
	now := time.Now()
	j.Status = model.JobStatusRunning
	j.StartedAt = &now
	j.Attempts++
	return cloneJob(j), nil
}

func (r *memJobRepo) UpdateProgress(ctx context.Context, id string, percent int, stage string, detail json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.Status != model.JobStatusRunning {
		return nil
	}
	if percent > j.Progress {
		j.Progress = percent
	}
	j.Stage = stage
	if detail != nil {
		j.Detail = detail
	}
	return nil
}

func (r *memJobRepo) Complete(ctx context.Context, id string, result json.RawMessage) error {
	return r.terminal(id, func(j *model.AnalysisJob) {
		j.Status = model.JobStatusCompleted
		j.Progress = 100
		j.Result = result
	})
}

func (r *memJobRepo) Fail(ctx context.Context, id string, errMsg string) error {
	return r.terminal(id, func(j *model.AnalysisJob) {
		j.Status = model.JobStatusFailed
		j.LastError = errMsg
	})
}

func (r *memJobRepo) terminal(id string, apply func(*model.AnalysisJob)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if j.Terminal() {
		return domain.ErrTerminalState
	}
	now := time.Now()
	j.CompletedAt = &now
	apply(j)
	return nil
}

func (r *memJobRepo) FindStale(ctx context.Context, jobType model.JobType, olderThan time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, j := range r.jobs {
		if j.Type != jobType || j.Terminal() {
			continue
		}
		ref := j.CreatedAt
		if j.StartedAt != nil {
			ref = *j.StartedAt
		}
		if ref.Before(olderThan) {
			ids = append(ids, j.ID)
		}
	}
	return ids, nil
}

func (r *memJobRepo) ForceFail(ctx context.Context, id string, reason string) error {
	return r.Fail(ctx, id, reason)
}

// ---- Elimination repository ----

type memEliminationRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.EliminationSession
	outcomes map[string][]*model.CandidateOutcome
}

var _ repository.EliminationRepository = (*memEliminationRepo)(nil)

func newMemEliminationRepo() *memEliminationRepo {
	return &memEliminationRepo{
		sessions: make(map[string]*model.EliminationSession),
		outcomes: make(map[string][]*model.CandidateOutcome),
	}
}

func cloneSession(s *model.EliminationSession) *model.EliminationSession {
	c := *s
	c.Stages = append([]model.StageState(nil), s.Stages...)
	if s.Current != nil {
		cur := *s.Current
		c.Current = &cur
	}
	return &c
}

func (r *memEliminationRepo) CreateSession(ctx context.Context, _ repository.Tx, s *model.EliminationSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, x := range r.sessions {
		if x.HackathonID == s.HackathonID && !x.Terminal() {
			return domain.ErrConflict
		}
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	r.sessions[s.ID] = cloneSession(s)
	return nil
}

func (r *memEliminationRepo) FindSession(ctx context.Context, _ repository.Tx, id string) (*model.EliminationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneSession(s), nil
}

func (r *memEliminationRepo) FindActiveSession(ctx context.Context, _ repository.Tx, hackathonID string) (*model.EliminationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.HackathonID == hackathonID && !s.Terminal() {
			return cloneSession(s), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memEliminationRepo) UpdateSession(ctx context.Context, _ repository.Tx, s *model.EliminationSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; !ok {
		return domain.ErrNotFound
	}
	r.sessions[s.ID] = cloneSession(s)
	return nil
}

func (r *memEliminationRepo) SaveOutcome(ctx context.Context, _ repository.Tx, o *model.CandidateOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	c := *o
	r.outcomes[o.SessionID] = append(r.outcomes[o.SessionID], &c)
	return nil
}

func (r *memEliminationRepo) ListOutcomes(ctx context.Context, _ repository.Tx, sessionID string, stageIndex int) ([]*model.CandidateOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.CandidateOutcome
	for _, o := range r.outcomes[sessionID] {
		if o.StageIndex == stageIndex {
			c := *o
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *memEliminationRepo) Survivors(ctx context.Context, _ repository.Tx, sessionID string) ([]*model.CandidateOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deepest := -1
	for _, o := range r.outcomes[sessionID] {
		if o.StageIndex > deepest {
			deepest = o.StageIndex
		}
	}
	var out []*model.CandidateOutcome
	for _, o := range r.outcomes[sessionID] {
		if o.StageIndex == deepest && o.Advanced {
			c := *o
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *memEliminationRepo) DeleteSession(ctx context.Context, _ repository.Tx, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.sessions, id)
	delete(r.outcomes, id)
	return nil
}

func (r *memEliminationRepo) DeleteOutcomes(ctx context.Context, _ repository.Tx, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.outcomes, sessionID)
	return nil
}

// ---- Redis fakes ----

type memRedisClient struct {
	mu   sync.Mutex
	vals map[string]string
}

func newMemRedisClient() *memRedisClient {
	return &memRedisClient{vals: make(map[string]string)}
}

func (c *memRedisClient) Ping(ctx context.Context) error { return nil }

func (c *memRedisClient) Set(ctx context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := value.(string); ok {
		c.vals[key] = s
	}
	return nil
}

func (c *memRedisClient) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vals[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (c *memRedisClient) Del(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.vals, k)
	}
	return nil
}

func (c *memRedisClient) Close() error { return nil }

type fakeLocker struct {
	mu     sync.Mutex
	locks  int
	denied bool
	err    error // simulated backend failure, returned as-is
}

func (l *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", l.err
	}
	if l.denied {
		return "", domain.ErrConflict
	}
	l.locks++
	return "token", nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locks--
	return nil
}

// ---- Misc fakes ----

type fakeSweeper struct {
	reclaimed int
	err       error
}

func (s *fakeSweeper) SweepNow(ctx context.Context) (int, error) { return s.reclaimed, s.err }

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *fakeNotifier) NotifyTerminal(ctx context.Context, ownerID, kind, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, ownerID+":"+kind)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

// scriptAI routes each chat call through a test-provided function so a
// single session run can return different verdicts per stage and
// candidate. The system prompt identifies the stage, the user prompt
// carries the repository summary.
type scriptAI struct {
	fn func(system, user string) (string, error)
}

func (a *scriptAI) CountTokens(ctx context.Context, model string, messages []adapter.Message) (int, error) {
	return 10, nil
}

func (a *scriptAI) Chat(ctx context.Context, model string, messages []adapter.Message) (string, error) {
	var system, user string
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = m.Content
		case "user":
			user = m.Content
		}
	}
	return a.fn(system, user)
}

func (a *scriptAI) ChatWithUsage(ctx context.Context, model string, messages []adapter.Message) (string, adapter.Usage, error) {
	s, err := a.Chat(ctx, model, messages)
	return s, adapter.Usage{}, err
}

// echoFetcher returns a snapshot whose full name is the repo URL, so the
// scripted AI can tell candidates apart from the prompt text.
type echoFetcher struct {
	err error
}

func (f *echoFetcher) Fetch(ctx context.Context, repoURL string) (*adapter.RepoSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &adapter.RepoSnapshot{
		FullName:  repoURL,
		Languages: map[string]int{"Go": 1000},
		Files:     []string{"main.go"},
	}, nil
}
