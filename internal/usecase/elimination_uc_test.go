package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"hackathon-ai-jury/internal/analysis"
	"hackathon-ai-jury/internal/domain"
	"hackathon-ai-jury/internal/domain/model"
	"hackathon-ai-jury/internal/infra/hub"

	"github.com/rs/zerolog"
)

var testStageLabels = []string{"ELIGIBILITY", "CODE_QUALITY", "COHERENCE", "INNOVATION"}
var testThresholds = []float64{0, 5.0, 5.0, 6.0}

// stageOf recovers which pipeline stage issued an AI call from its
// system prompt, so one scripted AI can answer a whole session.
func stageOf(system string) int {
	switch {
	case strings.Contains(system, "technology stack"):
		return 0
	case strings.Contains(system, "code reviewer"):
		return 1
	case strings.Contains(system, "matches what the project claims"):
		return 2
	case strings.Contains(system, "innovation"):
		return 3
	}
	return -1
}

func newTestEliminationUC(t *testing.T, ai *scriptAI) (*eliminationUC, *memEliminationRepo, *fakeNotifier, *hub.Hub) {
	t.Helper()
	log := zerolog.Nop()
	repo := newMemEliminationRepo()
	notifier := &fakeNotifier{}
	h := hub.New(256, 10*time.Millisecond, &log)
	t.Cleanup(h.Close)

	registry := analysis.NewRegistry(&echoFetcher{}, ai, "test-model")
	uc, err := NewEliminationUseCase(context.Background(), repo, registry, h, notifier,
		testStageLabels, testThresholds, 3, time.Millisecond, &log)
	if err != nil {
		t.Fatalf("build elimination usecase: %v", err)
	}
	return uc, repo, notifier, h
}

func waitTerminal(t *testing.T, repo *memEliminationRepo, sessionID string) *model.EliminationSession {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s, err := repo.FindSession(context.Background(), nil, sessionID)
		if err != nil {
			t.Fatalf("find session: %v", err)
		}
		if s.Terminal() {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("session never reached a terminal state")
	return nil
}

func testCandidates() []model.Candidate {
	return []model.Candidate{
		{ID: "a", Name: "Team A", RepoURL: "repo://a"},
		{ID: "b", Name: "Team B", RepoURL: "repo://b"},
		{ID: "c", Name: "Team C", RepoURL: "repo://c"},
	}
}

// juryScript answers: b is ineligible; c scores below the code-quality
// threshold; a sails through every stage.
func juryScript(system, user string) (string, error) {
	cand := ""
	for _, id := range []string{"a", "b", "c"} {
		if strings.Contains(user, "repo://"+id) {
			cand = id
		}
	}
	switch stageOf(system) {
	case 0:
		return fmt.Sprintf(`{"eligible": %v, "technologies": ["go"], "summary": ""}`, cand != "b"), nil
	case 1:
		score := 8.0
		if cand == "c" {
			score = 3.0
		}
		return fmt.Sprintf(`{"score": %v, "findings": [], "summary": ""}`, score), nil
	case 2:
		return `{"score": 7, "summary": ""}`, nil
	case 3:
		return `{"score": 9, "summary": ""}`, nil
	}
	return "", errors.New("unrecognized prompt")
}

func TestSessionRunsAllStagesAndShrinksPopulation(t *testing.T) {
	uc, repo, notifier, _ := newTestEliminationUC(t, &scriptAI{fn: juryScript})
	ctx := context.Background()

	session, err := uc.StartSession(ctx, "hack-1", testCandidates())
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	final := waitTerminal(t, repo, session.ID)

	if final.Status != model.JobStatusCompleted {
		t.Fatalf("session status = %s, last error %q", final.Status, final.LastError)
	}

	wantEntered := []int{3, 2, 1, 1}
	wantAdvanced := []int{2, 1, 1, 1}
	for i, st := range final.Stages {
		if st.Status != model.JobStatusCompleted {
			t.Errorf("stage %d status = %s", i, st.Status)
		}
		if st.Entered != wantEntered[i] || st.Advanced != wantAdvanced[i] {
			t.Errorf("stage %d entered/advanced = %d/%d, want %d/%d",
				i, st.Entered, st.Advanced, wantEntered[i], wantAdvanced[i])
		}
		if st.Eliminated+st.Advanced != st.Processed || st.Processed != st.Entered {
			t.Errorf("stage %d tallies inconsistent: %+v", i, st)
		}
	}

	survivors, err := uc.Survivors(ctx, session.ID)
	if err != nil {
		t.Fatalf("survivors: %v", err)
	}
	if len(survivors) != 1 || survivors[0].CandidateID != "a" {
		t.Errorf("unexpected survivors: %+v", survivors)
	}

	// The eliminated candidate's outcome still records why.
	outcomes, err := uc.StageOutcomes(ctx, session.ID, 0)
	if err != nil {
		t.Fatalf("stage outcomes: %v", err)
	}
	for _, o := range outcomes {
		if o.CandidateID == "b" && (o.Advanced || o.Reason == "") {
			t.Errorf("ineligible candidate outcome wrong: %+v", o)
		}
	}

	if notifier.count() != 1 {
		t.Errorf("expected one terminal notification, got %d", notifier.count())
	}
}

// wipeoutScript passes everyone through eligibility, then eliminates the
// whole field at code quality. Later stages must never reach the AI.
func wipeoutScript(system, user string) (string, error) {
	switch stageOf(system) {
	case 0:
		return `{"eligible": true, "technologies": ["go"], "summary": ""}`, nil
	case 1:
		return `{"score": 2, "findings": [], "summary": ""}`, nil
	}
	return "", errors.New("stage past the wipeout consulted the model")
}

func TestMidStageWipeoutStillCompletesSession(t *testing.T) {
	uc, repo, _, _ := newTestEliminationUC(t, &scriptAI{fn: wipeoutScript})
	ctx := context.Background()

	session, err := uc.StartSession(ctx, "hack-1", testCandidates())
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	final := waitTerminal(t, repo, session.ID)

	if final.Status != model.JobStatusCompleted {
		t.Fatalf("session status = %s, last error %q", final.Status, final.LastError)
	}

	wiped := final.Stages[1]
	if wiped.Entered != 3 || wiped.Processed != 3 || wiped.Eliminated != 3 || wiped.Advanced != 0 {
		t.Errorf("wipeout stage tallies: %+v", wiped)
	}
	for i := 2; i < len(final.Stages); i++ {
		st := final.Stages[i]
		if st.Status != model.JobStatusCompleted {
			t.Errorf("stage %d status = %s, want completed", i, st.Status)
		}
		if st.Entered != 0 || st.Processed != 0 {
			t.Errorf("stage %d ran over an empty population: %+v", i, st)
		}
	}

	survivors, err := uc.Survivors(ctx, session.ID)
	if err != nil {
		t.Fatalf("survivors: %v", err)
	}
	if len(survivors) != 0 {
		t.Errorf("expected no survivors, got %+v", survivors)
	}
}

func TestSessionPublishesOrderedProgressEvents(t *testing.T) {
	// Hold the first analysis until the subscription is attached so the
	// test observes the stream live instead of racing the replay ring.
	ready := make(chan struct{})
	ai := &scriptAI{fn: func(system, user string) (string, error) {
		<-ready
		return juryScript(system, user)
	}}
	uc, _, _, _ := newTestEliminationUC(t, ai)

	session, err := uc.StartSession(context.Background(), "hack-1", testCandidates())
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	sub := uc.Subscribe(session.ID)
	defer sub.Cancel()
	close(ready)

	var events []model.ProgressEvent
	events = append(events, sub.Replay...)
	timeout := time.After(2 * time.Second)
	for events == nil || !events[len(events)-1].Terminal() {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				t.Fatalf("stream closed before terminal event; got %d events", len(events))
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("no terminal event; got %d events", len(events))
		}
	}

	counts := map[model.EventKind]int{}
	for _, ev := range events {
		counts[ev.Kind]++
	}
	if counts[model.EventStageStart] != 4 || counts[model.EventStageDone] != 4 {
		t.Errorf("stage events = %d starts, %d dones", counts[model.EventStageStart], counts[model.EventStageDone])
	}
	// 3 + 2 + 1 + 1 candidates processed across the four stages.
	if counts[model.EventCandidateStart] != 7 || counts[model.EventCandidateDone] != 7 {
		t.Errorf("candidate events = %d starts, %d dones",
			counts[model.EventCandidateStart], counts[model.EventCandidateDone])
	}
	if counts[model.EventSessionDone] != 1 {
		t.Errorf("session-done count = %d", counts[model.EventSessionDone])
	}
	if events[0].Kind != model.EventStageStart {
		t.Errorf("first event = %s, want stage-start", events[0].Kind)
	}
	if events[len(events)-1].Kind != model.EventSessionDone {
		t.Errorf("last event = %s, want session-done", events[len(events)-1].Kind)
	}
	for i := 1; i < len(events); i++ {
		if events[i].ID <= events[i-1].ID {
			t.Fatalf("event ids out of order at %d: %s then %s", i, events[i-1].ID, events[i].ID)
		}
	}
}

func TestOnlyOneActiveSessionPerHackathon(t *testing.T) {
	block := make(chan struct{})
	ai := &scriptAI{fn: func(system, user string) (string, error) {
		<-block
		return juryScript(system, user)
	}}
	uc, repo, _, _ := newTestEliminationUC(t, ai)
	ctx := context.Background()

	session, err := uc.StartSession(ctx, "hack-1", testCandidates())
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if _, err := uc.StartSession(ctx, "hack-1", testCandidates()); !errors.Is(err, domain.ErrSessionRunning) {
		t.Fatalf("expected ErrSessionRunning, got %v", err)
	}
	// Another hackathon is unaffected.
	if _, err := uc.StartSession(ctx, "hack-2", nil); err != nil {
		t.Fatalf("other hackathon blocked: %v", err)
	}

	close(block)
	waitTerminal(t, repo, session.ID)

	if _, err := uc.StartSession(ctx, "hack-1", testCandidates()); err != nil {
		t.Errorf("new session after terminal rejected: %v", err)
	}
}

func TestUnrecoverableStageFailureFailsSession(t *testing.T) {
	ai := &scriptAI{fn: func(system, user string) (string, error) {
		if stageOf(system) == 1 {
			return "", errors.New("model misconfigured")
		}
		return juryScript(system, user)
	}}
	uc, repo, notifier, _ := newTestEliminationUC(t, ai)

	session, err := uc.StartSession(context.Background(), "hack-1", testCandidates())
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	final := waitTerminal(t, repo, session.ID)

	if final.Status != model.JobStatusFailed {
		t.Fatalf("session status = %s, want failed", final.Status)
	}
	if final.LastError == "" || final.StageIndex != 1 {
		t.Errorf("failure context lost: stage %d, err %q", final.StageIndex, final.LastError)
	}
	if final.Stages[1].Status != model.JobStatusFailed {
		t.Errorf("failing stage status = %s", final.Stages[1].Status)
	}
	// Stage 0 finished before the failure and keeps its results.
	if final.Stages[0].Status != model.JobStatusCompleted {
		t.Errorf("completed stage rewritten: %s", final.Stages[0].Status)
	}
	if notifier.count() != 1 {
		t.Errorf("expected one terminal notification, got %d", notifier.count())
	}
}

func TestTransientAnalysisFailuresAreRetried(t *testing.T) {
	var calls atomic.Int32
	ai := &scriptAI{fn: func(system, user string) (string, error) {
		if calls.Add(1) <= 2 {
			return "", domain.Transient(errors.New("503 from provider"))
		}
		return juryScript(system, user)
	}}
	uc, repo, _, _ := newTestEliminationUC(t, ai)

	session, err := uc.StartSession(context.Background(), "hack-1",
		[]model.Candidate{{ID: "a", Name: "Team A", RepoURL: "repo://a"}})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	final := waitTerminal(t, repo, session.ID)

	if final.Status != model.JobStatusCompleted {
		t.Fatalf("session status = %s after transient failures, last error %q", final.Status, final.LastError)
	}
}

func TestEmptyCandidateListCompletesImmediately(t *testing.T) {
	uc, repo, _, _ := newTestEliminationUC(t, &scriptAI{fn: juryScript})

	session, err := uc.StartSession(context.Background(), "hack-1", nil)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	final := waitTerminal(t, repo, session.ID)

	if final.Status != model.JobStatusCompleted {
		t.Fatalf("session status = %s", final.Status)
	}
	for i, st := range final.Stages {
		if st.Status != model.JobStatusCompleted || st.Entered != 0 || st.Processed != 0 {
			t.Errorf("stage %d not cleanly completed: %+v", i, st)
		}
	}
}

func TestResetsRejectedWhileRunning(t *testing.T) {
	block := make(chan struct{})
	ai := &scriptAI{fn: func(system, user string) (string, error) {
		<-block
		return juryScript(system, user)
	}}
	uc, repo, _, _ := newTestEliminationUC(t, ai)
	ctx := context.Background()

	session, err := uc.StartSession(ctx, "hack-1", testCandidates())
	if err != nil {
		t.Fatalf("start session: %v", err)
	}

	if err := uc.HardReset(ctx, session.ID); !errors.Is(err, domain.ErrSessionRunning) {
		t.Errorf("hard reset while running: expected ErrSessionRunning, got %v", err)
	}
	if err := uc.SoftReset(ctx, session.ID, testCandidates()); !errors.Is(err, domain.ErrSessionRunning) {
		t.Errorf("soft reset while running: expected ErrSessionRunning, got %v", err)
	}

	close(block)
	waitTerminal(t, repo, session.ID)
}

func TestSoftResetClearsOutcomesAndReruns(t *testing.T) {
	uc, repo, _, _ := newTestEliminationUC(t, &scriptAI{fn: juryScript})
	ctx := context.Background()

	session, err := uc.StartSession(ctx, "hack-1", testCandidates())
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	waitTerminal(t, repo, session.ID)

	// Re-run with a smaller field.
	if err := uc.SoftReset(ctx, session.ID, testCandidates()[:2]); err != nil {
		t.Fatalf("soft reset: %v", err)
	}
	final := waitTerminal(t, repo, session.ID)

	if final.Status != model.JobStatusCompleted {
		t.Fatalf("re-run status = %s", final.Status)
	}
	if final.TotalCandidates != 2 || final.Stages[0].Entered != 2 {
		t.Errorf("re-run used stale population: %+v", final.Stages[0])
	}
	outcomes, err := uc.StageOutcomes(ctx, session.ID, 0)
	if err != nil {
		t.Fatalf("stage outcomes: %v", err)
	}
	if len(outcomes) != 2 {
		t.Errorf("old outcomes not cleared: %d rows at stage 0", len(outcomes))
	}
}

func TestHardResetDeletesSession(t *testing.T) {
	uc, repo, _, _ := newTestEliminationUC(t, &scriptAI{fn: juryScript})
	ctx := context.Background()

	session, err := uc.StartSession(ctx, "hack-1", testCandidates())
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	waitTerminal(t, repo, session.ID)

	if err := uc.HardReset(ctx, session.ID); err != nil {
		t.Fatalf("hard reset: %v", err)
	}
	if _, err := uc.Status(ctx, session.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound after hard reset, got %v", err)
	}
	if _, err := uc.StartSession(ctx, "hack-1", testCandidates()); err != nil {
		t.Errorf("fresh session after hard reset rejected: %v", err)
	}
}
