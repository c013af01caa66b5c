package model

import (
	"encoding/json"
	"time"
)

// Candidate is an entity subject to elimination within a session,
// typically a submitted hackathon project.
type Candidate struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	RepoURL string `json:"repo_url"`
}

// StageState tracks one ordered layer of the elimination pipeline.
// Stage identity is the integer Index; Label is purely cosmetic display
// data and never drives state transitions.
type StageState struct {
	Index      int       `json:"index"`
	Label      string    `json:"label"`
	Entered    int       `json:"entered"`
	Processed  int       `json:"processed"`
	Eliminated int       `json:"eliminated"`
	Advanced   int       `json:"advanced"`
	Status     JobStatus `json:"status"`
}

// CurrentCandidate is the live display marker for the candidate a
// running stage is processing right now.
type CurrentCandidate struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// EliminationSession runs a fixed ordered sequence of stages over a
// shrinking candidate population. Stage k+1 never starts before stage k
// terminates, and its input population is exactly stage k's advanced set.
type EliminationSession struct {
	ID          string
	HackathonID string

	Stages     []StageState
	StageIndex int
	Status     JobStatus

	TotalCandidates int
	Current         *CurrentCandidate
	LastError       string

	CreatedAt   time.Time
	CompletedAt *time.Time
}

func (s *EliminationSession) Terminal() bool { return s.Status.Terminal() }

// CandidateOutcome is the persisted per-(session, stage, candidate) result.
type CandidateOutcome struct {
	ID            string
	SessionID     string
	StageIndex    int
	CandidateID   string
	CandidateName string

	Score    float64
	Advanced bool
	Reason   string
	Evidence json.RawMessage

	CreatedAt time.Time
}
