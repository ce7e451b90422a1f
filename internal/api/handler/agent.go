package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/jobleaser/internal/api/middleware"
	"github.com/kiranshivaraju/jobleaser/internal/api/response"
	"github.com/kiranshivaraju/jobleaser/internal/assignment"
	"github.com/kiranshivaraju/jobleaser/internal/store"
	"github.com/kiranshivaraju/jobleaser/pkg/models"
)

// LoginService is what the login handlers depend on.
type LoginService interface {
	Login(ctx context.Context, agentID, secret string) (*assignment.LoginResult, error)
	ConfirmLogin(ctx context.Context, agentID string) (bool, error)
}

// JobService is what the agent-facing job handlers depend on.
type JobService interface {
	GetNextJob(ctx context.Context, agentID string) (*models.Job, error)
	ReportJobResult(ctx context.Context, agentID string, jobID uuid.UUID, status, errorReason string) (bool, error)
	JobStatus(ctx context.Context, jobID uuid.UUID) (string, error)
}

// NewLoginHandler returns an http.HandlerFunc for POST /api/v1/auth/login.
func NewLoginHandler(svc LoginService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			AgentID string `json:"agent_id"`
			Secret  string `json:"secret"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.AgentID == "" || req.Secret == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "agent_id and secret are required", nil)
			return
		}

		res, err := svc.Login(r.Context(), req.AgentID, req.Secret)
		if errors.Is(err, assignment.ErrInvalidCredentials) {
			response.Error(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Unknown agent or wrong secret", nil)
			return
		}
		if err != nil {
			slog.Error("login failed", "agent_id", req.AgentID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Login failed", nil)
			return
		}

		response.JSON(w, map[string]string{
			"agent_id":   res.AgentID,
			"token":      res.Token,
			"session_id": res.SessionID,
		})
	}
}

// NewConfirmLoginHandler returns an http.HandlerFunc for
// POST /api/v1/auth/confirm-login.
func NewConfirmLoginHandler(svc LoginService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, ok := mw.GetAgentID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing agent", nil)
			return
		}

		found, err := svc.ConfirmLogin(r.Context(), agentID)
		if err != nil {
			slog.Error("confirm login failed", "agent_id", agentID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to confirm login", nil)
			return
		}
		if !found {
			response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Agent not found", nil)
			return
		}

		response.JSON(w, map[string]string{
			"agent_id":     agentID,
			"login_status": models.LoginStatusLoggedIn,
		})
	}
}

// NewNextJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/next.
// It answers 204 when no job is Ready.
func NewNextJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, ok := mw.GetAgentID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing agent", nil)
			return
		}

		job, err := svc.GetNextJob(r.Context(), agentID)
		if err != nil {
			slog.Error("get next job failed", "agent_id", agentID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to lease a job", nil)
			return
		}
		if job == nil {
			response.NoContent(w)
			return
		}

		response.JSON(w, job)
	}
}

// NewReportResultHandler returns an http.HandlerFunc for
// POST /api/v1/jobs/result.
func NewReportResultHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agentID, ok := mw.GetAgentID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing agent", nil)
			return
		}

		var req struct {
			JobID       string `json:"job_id"`
			Status      string `json:"status"`
			ErrorReason string `json:"error_reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		jobID, err := uuid.Parse(req.JobID)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "job_id must be a UUID", nil)
			return
		}

		applied, err := svc.ReportJobResult(r.Context(), agentID, jobID, req.Status, req.ErrorReason)
		if errors.Is(err, assignment.ErrInvalidStatus) {
			response.Error(w, http.StatusBadRequest, "INVALID_STATUS",
				"status must be Success, Failed or ReLoginNeeded", nil)
			return
		}
		if err != nil {
			slog.Error("report result failed", "agent_id", agentID, "job_id", jobID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to record result", nil)
			return
		}
		if !applied {
			response.Error(w, http.StatusConflict, "RESULT_REJECTED",
				"Job does not exist or no longer accepts this result", nil)
			return
		}

		status, _ := models.ParseResultStatus(req.Status)
		response.JSON(w, map[string]string{
			"job_id": jobID.String(),
			"status": status,
		})
	}
}

// NewJobStatusHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewJobStatusHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a UUID", nil)
			return
		}

		status, err := svc.JobStatus(r.Context(), jobID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Job not found", nil)
			return
		}
		if err != nil {
			slog.Error("job status failed", "job_id", jobID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to read job status", nil)
			return
		}

		response.JSON(w, map[string]string{
			"job_id": jobID.String(),
			"status": status,
		})
	}
}
