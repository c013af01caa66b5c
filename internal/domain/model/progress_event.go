package model

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

type EventKind string

const (
	EventJobProgress    EventKind = "job-progress"
	EventJobDone        EventKind = "job-done"
	EventStageStart     EventKind = "stage-start"
	EventCandidateStart EventKind = "candidate-start"
	EventCandidateDone  EventKind = "candidate-done"
	EventStageDone      EventKind = "stage-done"
	EventSessionDone    EventKind = "session-done"
	EventError          EventKind = "error"
)

// ProgressEvent is one entry in the ephemeral per-owner event stream.
// Durable state lives in AnalysisJob / EliminationSession; events are
// never the only record of a terminal outcome.
type ProgressEvent struct {
	ID      string          `json:"id"`
	OwnerID string          `json:"owner_id"`
	Kind    EventKind       `json:"kind"`
	Message string          `json:"message"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// Terminal reports whether this event ends the stream for its owner.
func (e ProgressEvent) Terminal() bool {
	return e.Kind == EventJobDone || e.Kind == EventSessionDone || e.Kind == EventError
}

// NewEvent builds an event with a ULID id, so ids sort in publish order.
func NewEvent(ownerID string, kind EventKind, message string, payload json.RawMessage) ProgressEvent {
	now := time.Now()
	return ProgressEvent{
		ID:      ulid.Make().String(),
		OwnerID: ownerID,
		Kind:    kind,
		Message: message,
		Payload: payload,
		At:      now,
	}
}
