// Package assignment implements the synchronous protocol agents drive: login,
// login confirmation, claiming the next job and reporting its outcome.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/jobleaser/internal/cache"
	"github.com/kiranshivaraju/jobleaser/internal/store"
	"github.com/kiranshivaraju/jobleaser/pkg/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid agent credentials")
	ErrInvalidStatus      = errors.New("invalid result status")
)

// jobStatusTTL bounds how long the mirror can lag a reclaim made by the
// reconciler, which does not write to the cache.
const jobStatusTTL = 30 * time.Second

// SessionIssuer mints the bearer token returned to an agent on login.
type SessionIssuer interface {
	Issue(ctx context.Context, agentID string) (string, error)
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	AgentID   string
	Token     string
	SessionID string
}

// Service coordinates JobStore and AgentStore for inbound agent requests.
// It keeps no in-process state; every transition is a single atomic store
// update, so any number of Service instances may run side by side.
type Service struct {
	jobs     store.JobStore
	agents   store.AgentStore
	sessions SessionIssuer
	cache    cache.Cache
	logger   *slog.Logger
}

// NewService creates a Service. cache may be nil, in which case job status is
// not mirrored. A nil logger uses slog.Default().
func NewService(jobs store.JobStore, agents store.AgentStore, sessions SessionIssuer, c cache.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		jobs:     jobs,
		agents:   agents,
		sessions: sessions,
		cache:    c,
		logger:   logger,
	}
}

// Login verifies the agent's secret, issues a token and moves the agent to
// LoggingIn with a fresh session id.
func (s *Service) Login(ctx context.Context, agentID, secret string) (*LoginResult, error) {
	if agentID == "" || secret == "" {
		return nil, ErrInvalidCredentials
	}

	agent, err := s.agents.FindByCredentials(ctx, agentID, secret)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("find agent: %w", err)
	}

	token, err := s.sessions.Issue(ctx, agent.AgentID)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	sessionID := uuid.NewString()
	ok, err := s.agents.SetLoginStatus(ctx, agent.AgentID, models.LoginStatusLoggingIn, sessionID)
	if err != nil {
		return nil, fmt.Errorf("set login status: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	s.logger.Info("agent logging in", "agent_id", agent.AgentID, "session_id", sessionID)
	return &LoginResult{AgentID: agent.AgentID, Token: token, SessionID: sessionID}, nil
}

// ConfirmLogin moves the agent to LoggedIn. It returns false for an unknown
// agent.
func (s *Service) ConfirmLogin(ctx context.Context, agentID string) (bool, error) {
	ok, err := s.agents.SetLoginStatus(ctx, agentID, models.LoginStatusLoggedIn, "")
	if err != nil {
		return false, fmt.Errorf("confirm login: %w", err)
	}
	if ok {
		s.logger.Info("agent logged in", "agent_id", agentID)
	}
	return ok, nil
}

// GetNextJob leases some Ready job to the agent. It returns a nil job, and
// marks the agent idle, when nothing is Ready.
func (s *Service) GetNextJob(ctx context.Context, agentID string) (*models.Job, error) {
	job, err := s.jobs.ClaimNextReady(ctx, agentID)
	if errors.Is(err, store.ErrNotFound) {
		if _, err := s.agents.SetBusy(ctx, agentID, false, nil); err != nil {
			return nil, fmt.Errorf("mark agent idle: %w", err)
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}

	// The lease is already committed. Failing to flag the agent busy only
	// affects bookkeeping, so the job is still handed out.
	if _, err := s.agents.SetBusy(ctx, agentID, true, &job.ID); err != nil {
		s.logger.Error("failed to mark agent busy", "agent_id", agentID, "job_id", job.ID, "error", err)
	}

	s.mirrorStatus(ctx, job.ID, job.Status)
	s.logger.Info("job assigned", "agent_id", agentID, "job_id", job.ID)
	return job, nil
}

// ReportJobResult records the outcome of the agent's attempt and marks the
// agent idle afterwards on every path, including a rejected status. The bool is false when the job does not
// exist or its state no longer accepts this report.
func (s *Service) ReportJobResult(ctx context.Context, agentID string, jobID uuid.UUID, status, errorReason string) (bool, error) {
	defer s.markIdle(ctx, agentID)

	parsed, ok := models.ParseResultStatus(status)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if !models.CountsAsRetry(parsed) {
		errorReason = ""
	}

	applied, err := s.jobs.ReportResult(ctx, jobID, parsed, errorReason)
	if err != nil {
		return false, fmt.Errorf("report result: %w", err)
	}
	if !applied {
		s.logger.Warn("job result rejected", "agent_id", agentID, "job_id", jobID, "status", parsed)
		return false, nil
	}

	s.mirrorStatus(ctx, jobID, parsed)
	s.logger.Info("job result recorded", "agent_id", agentID, "job_id", jobID, "status", parsed)
	return true, nil
}

// RequeueJob returns a Failed or ReLoginNeeded job to Ready.
func (s *Service) RequeueJob(ctx context.Context, jobID uuid.UUID) (bool, error) {
	ok, err := s.jobs.RequeueJob(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("requeue job: %w", err)
	}
	if ok {
		s.mirrorStatus(ctx, jobID, models.JobStatusReady)
		s.logger.Info("job requeued", "job_id", jobID)
	}
	return ok, nil
}

// JobStatus returns a job's status, from the cache mirror when present.
func (s *Service) JobStatus(ctx context.Context, jobID uuid.UUID) (string, error) {
	if s.cache != nil {
		status, found, err := s.cache.GetJobStatus(ctx, jobID)
		if err == nil && found {
			return status, nil
		}
	}
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	s.mirrorStatus(ctx, job.ID, job.Status)
	return job.Status, nil
}

func (s *Service) markIdle(ctx context.Context, agentID string) {
	if _, err := s.agents.SetBusy(ctx, agentID, false, nil); err != nil {
		s.logger.Error("failed to mark agent idle", "agent_id", agentID, "error", err)
	}
}

// mirrorStatus is best effort; the store stays the source of truth.
func (s *Service) mirrorStatus(ctx context.Context, jobID uuid.UUID, status string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetJobStatus(ctx, jobID, status, jobStatusTTL); err != nil {
		s.logger.Warn("failed to cache job status", "job_id", jobID, "error", err)
	}
}
