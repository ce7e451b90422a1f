package store

import (
	"context"
	"time"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/jobleaser/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// JobStore owns job records and their state transitions. Every mutation is a
// single atomic conditional update; callers never hold locks across calls.
type JobStore interface {
	// ClaimNextReady moves some Ready job to Assigned for agentID and returns
	// the updated record. Returns ErrNotFound when no job is Ready.
	ClaimNextReady(ctx context.Context, agentID string) (*models.Job, error)
	// ReportResult records the outcome of an attempt. It returns false when the
	// job does not exist or is not in a state that accepts the report.
	ReportResult(ctx context.Context, jobID uuid.UUID, status, errorReason string) (bool, error)
	// ReclaimAssignedTo returns every job Assigned to agentID to Ready.
	ReclaimAssignedTo(ctx context.Context, agentID string) (int, error)
	CreateJobs(ctx context.Context, jobs []*models.Job) (int, error)
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// RequeueJob moves a Failed or ReLoginNeeded job back to Ready.
	RequeueJob(ctx context.Context, id uuid.UUID) (bool, error)
	CountJobsByStatus(ctx context.Context) (map[string]int, error)
}

// AgentStore owns agent records and their session and busy state.
type AgentStore interface {
	// FindByCredentials returns ErrNotFound for an unknown agent or a wrong secret.
	FindByCredentials(ctx context.Context, agentID, secret string) (*models.Agent, error)
	// SetLoginStatus stamps LastLoginAttempt. sessionID is only written when non-empty.
	SetLoginStatus(ctx context.Context, agentID, status, sessionID string) (bool, error)
	// ExpireLogin moves the agent to Expired only while it is still LoggingIn
	// with the given LastLoginAttempt. It returns false when a newer login has
	// replaced the attempt that timed out.
	ExpireLogin(ctx context.Context, agentID string, attempt time.Time) (bool, error)
	// SetBusy clears the current job whenever busy is false.
	SetBusy(ctx context.Context, agentID string, busy bool, jobID *uuid.UUID) (bool, error)
	ListAgents(ctx context.Context) ([]*models.Agent, error)
	GetAgent(ctx context.Context, agentID string) (*models.Agent, error)
	// CreateAgent expects SecretHash to already hold a bcrypt hash.
	CreateAgent(ctx context.Context, agent *models.Agent) error
}

// SequenceStore exposes the compare-and-set primitives the sequence allocator
// is built on.
type SequenceStore interface {
	CreateSequencePool(ctx context.Context, pool *models.SequencePool) error
	// FirstOpenSequencePool returns the non-exhausted pool with the lowest id.
	FirstOpenSequencePool(ctx context.Context) (*models.SequencePool, error)
	// AdvanceSequencePool sets CurrentNext to next only if it still equals observed.
	AdvanceSequencePool(ctx context.Context, id int64, observed, next string) (bool, error)
	// MarkSequencePoolExhausted flags the pool only if CurrentNext still equals observed.
	MarkSequencePoolExhausted(ctx context.Context, id int64, observed string) (bool, error)
}

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	JobStore
	AgentStore
	SequenceStore
}
