package model

import (
	"encoding/json"
	"time"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status is absorbing.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

type JobType string

const (
	JobTypeCodeQuality JobType = "code-quality"
	JobTypeCoherence   JobType = "coherence"
	JobTypeInnovation  JobType = "innovation"
	JobTypeTechDetect  JobType = "tech-detection"
)

// AllJobTypes enumerates every job type the platform knows about.
// Config validation and the procedure registry iterate this list so a
// newly added type cannot silently fall through to a default.
func AllJobTypes() []JobType {
	return []JobType{JobTypeCodeQuality, JobTypeCoherence, JobTypeInnovation, JobTypeTechDetect}
}

func ValidJobType(t JobType) bool {
	for _, k := range AllJobTypes() {
		if k == t {
			return true
		}
	}
	return false
}

// AnalysisJob is one durable unit of background analysis work.
// At most one non-terminal job may exist per (SubjectID, Type); a retry
// is always a brand-new row, never a resurrected one.
type AnalysisJob struct {
	ID        string
	SubjectID string
	Type      JobType

	// Payload is the type-specific subject payload handed to the
	// analysis procedure (repo URL, project name, ...).
	Payload json.RawMessage

	Status   JobStatus
	Progress int    // 0..100, monotonically increasing while running
	Stage    string // free-text stage label for display
	Detail   json.RawMessage

	Result    json.RawMessage // present only when Completed
	LastError string          // present only when Failed

	Attempts    int
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Duration is the wall-clock time from start to completion, or zero if
// the job never started or has not yet terminated.
func (j *AnalysisJob) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}

func (j *AnalysisJob) Terminal() bool { return j.Status.Terminal() }
