package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"hackathon-ai-jury/internal/domain"
	"hackathon-ai-jury/internal/domain/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps domain sentinels onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrSessionRunning):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrUnknownJobType):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleMintSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Secret string `json:"secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.auth.VerifySecret(req.Secret) {
		writeError(w, http.StatusForbidden, "bad credentials")
		return
	}
	token, err := s.auth.Mint()
	if err != nil {
		s.log.Error().Err(err).Msg("failed to mint operator token")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// ---- Analysis jobs ----

type enqueueJobRequest struct {
	Type      string          `json:"type"`
	SubjectID string          `json:"subject_id"`
	Payload   json.RawMessage `json:"payload"`
}

type jobResponse struct {
	ID        string          `json:"id"`
	SubjectID string          `json:"subject_id"`
	Type      model.JobType   `json:"type"`
	Status    model.JobStatus `json:"status"`
	Progress  int             `json:"progress"`
	Stage     string          `json:"stage,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	LastError string          `json:"last_error,omitempty"`
	Attempts  int             `json:"attempts"`
}

func toJobResponse(j *model.AnalysisJob) jobResponse {
	return jobResponse{
		ID:        j.ID,
		SubjectID: j.SubjectID,
		Type:      j.Type,
		Status:    j.Status,
		Progress:  j.Progress,
		Stage:     j.Stage,
		Result:    j.Result,
		LastError: j.LastError,
		Attempts:  j.Attempts,
	}
}

func (s *Server) handleEnqueueJob(w http.ResponseWriter, r *http.Request) {
	var req enqueueJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	job, err := s.analysisUC.Enqueue(r.Context(), model.JobType(req.Type), req.SubjectID, req.Payload)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toJobResponse(job))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.analysisUC.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.analysisUC.CachedStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	s.streamEvents(w, r, s.analysisUC.Subscribe(chi.URLParam(r, "id")))
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	n, err := s.analysisUC.SweepNow(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("manual sweep failed")
		writeError(w, http.StatusInternalServerError, "sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"reclaimed": n})
}

// ---- Elimination sessions ----

type startSessionRequest struct {
	HackathonID string            `json:"hackathon_id"`
	Candidates  []model.Candidate `json:"candidates"`
}

type sessionResponse struct {
	ID              string                  `json:"id"`
	HackathonID     string                  `json:"hackathon_id"`
	Status          model.JobStatus         `json:"status"`
	StageIndex      int                     `json:"stage_index"`
	Stages          []model.StageState      `json:"stages"`
	TotalCandidates int                     `json:"total_candidates"`
	Current         *model.CurrentCandidate `json:"current,omitempty"`
	LastError       string                  `json:"last_error,omitempty"`
}

func toSessionResponse(s *model.EliminationSession) sessionResponse {
	return sessionResponse{
		ID:              s.ID,
		HackathonID:     s.HackathonID,
		Status:          s.Status,
		StageIndex:      s.StageIndex,
		Stages:          s.Stages,
		TotalCandidates: s.TotalCandidates,
		Current:         s.Current,
		LastError:       s.LastError,
	}
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	session, err := s.juryUC.StartSession(r.Context(), req.HackathonID, req.Candidates)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.juryUC.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

func (s *Server) handleSessionOutcomes(w http.ResponseWriter, r *http.Request) {
	stage, err := strconv.Atoi(r.URL.Query().Get("stage"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "stage query parameter required")
		return
	}
	outcomes, err := s.juryUC.StageOutcomes(r.Context(), chi.URLParam(r, "id"), stage)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": outcomes})
}

func (s *Server) handleSessionSurvivors(w http.ResponseWriter, r *http.Request) {
	survivors, err := s.juryUC.Survivors(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": survivors})
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	s.streamEvents(w, r, s.juryUC.Subscribe(chi.URLParam(r, "id")))
}

type resetSessionRequest struct {
	Mode       string            `json:"mode"` // "soft" or "hard"
	Candidates []model.Candidate `json:"candidates,omitempty"`
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	var req resetSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := chi.URLParam(r, "id")

	var err error
	switch req.Mode {
	case "soft":
		err = s.juryUC.SoftReset(r.Context(), id, req.Candidates)
	case "hard":
		err = s.juryUC.HardReset(r.Context(), id)
	default:
		writeError(w, http.StatusBadRequest, `mode must be "soft" or "hard"`)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mode": req.Mode, "session_id": id})
}
