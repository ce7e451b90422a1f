package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/jobleaser/pkg/models"
)

// MemoryStore is an in-process Store. Each collection has its own lock and
// every method holds it for exactly one record transition, which gives the
// same per-record linearizability as the conditional UPDATEs in PostgresStore.
// Records are copied on the way in and out.
type MemoryStore struct {
	jobsMu   sync.Mutex
	jobs     map[uuid.UUID]*models.Job
	jobOrder []uuid.UUID

	agentsMu sync.Mutex
	agents   map[string]*models.Agent

	poolsMu    sync.Mutex
	pools      map[int64]*models.SequencePool
	nextPoolID int64

	now func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:   make(map[uuid.UUID]*models.Job),
		agents: make(map[string]*models.Agent),
		pools:  make(map[int64]*models.SequencePool),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source used to stamp records.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.now = now
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

// --- Jobs ---

func copyJob(j *models.Job) *models.Job {
	c := *j
	if j.AssignedAgentID != nil {
		id := *j.AssignedAgentID
		c.AssignedAgentID = &id
	}
	if j.AssignmentTime != nil {
		t := *j.AssignmentTime
		c.AssignmentTime = &t
	}
	if j.CompletionTime != nil {
		t := *j.CompletionTime
		c.CompletionTime = &t
	}
	return &c
}

func (m *MemoryStore) ClaimNextReady(_ context.Context, agentID string) (*models.Job, error) {
	m.jobsMu.Lock()
	defer m.jobsMu.Unlock()

	for _, id := range m.jobOrder {
		j := m.jobs[id]
		if j.Status != models.JobStatusReady {
			continue
		}
		now := m.now()
		assignee := agentID
		j.Status = models.JobStatusAssigned
		j.AssignedAgentID = &assignee
		j.AssignmentTime = &now
		j.UpdatedAt = now
		return copyJob(j), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ReportResult(_ context.Context, jobID uuid.UUID, status, errorReason string) (bool, error) {
	m.jobsMu.Lock()
	defer m.jobsMu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return false, nil
	}
	if j.Status != models.JobStatusAssigned && j.Status != status {
		return false, nil
	}

	now := m.now()
	j.Status = status
	j.CompletionTime = &now
	j.ErrorReason = errorReason
	j.AssignedAgentID = nil
	j.UpdatedAt = now
	if models.CountsAsRetry(status) {
		j.RetryCount++
	}
	return true, nil
}

func (m *MemoryStore) ReclaimAssignedTo(_ context.Context, agentID string) (int, error) {
	m.jobsMu.Lock()
	defer m.jobsMu.Unlock()

	n := 0
	now := m.now()
	for _, j := range m.jobs {
		if j.Status != models.JobStatusAssigned || j.AssignedAgentID == nil || *j.AssignedAgentID != agentID {
			continue
		}
		j.Status = models.JobStatusReady
		j.AssignedAgentID = nil
		j.AssignmentTime = nil
		j.UpdatedAt = now
		n++
	}
	return n, nil
}

func (m *MemoryStore) CreateJobs(_ context.Context, jobs []*models.Job) (int, error) {
	m.jobsMu.Lock()
	defer m.jobsMu.Unlock()

	for _, j := range jobs {
		if _, exists := m.jobs[j.ID]; exists {
			return 0, ErrDuplicateKey
		}
	}
	for _, j := range jobs {
		m.jobs[j.ID] = copyJob(j)
		m.jobOrder = append(m.jobOrder, j.ID)
	}
	return len(jobs), nil
}

func (m *MemoryStore) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	m.jobsMu.Lock()
	defer m.jobsMu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyJob(j), nil
}

func (m *MemoryStore) RequeueJob(_ context.Context, id uuid.UUID) (bool, error) {
	m.jobsMu.Lock()
	defer m.jobsMu.Unlock()

	j, ok := m.jobs[id]
	if !ok || !models.CountsAsRetry(j.Status) {
		return false, nil
	}
	j.Status = models.JobStatusReady
	j.CompletionTime = nil
	j.ErrorReason = ""
	j.UpdatedAt = m.now()
	return true, nil
}

func (m *MemoryStore) CountJobsByStatus(_ context.Context) (map[string]int, error) {
	m.jobsMu.Lock()
	defer m.jobsMu.Unlock()

	counts := make(map[string]int)
	for _, j := range m.jobs {
		counts[j.Status]++
	}
	return counts, nil
}

// --- Agents ---

func copyAgent(a *models.Agent) *models.Agent {
	c := *a
	if a.LastLoginAttempt != nil {
		t := *a.LastLoginAttempt
		c.LastLoginAttempt = &t
	}
	if a.SessionID != nil {
		s := *a.SessionID
		c.SessionID = &s
	}
	if a.CurrentJobID != nil {
		id := *a.CurrentJobID
		c.CurrentJobID = &id
	}
	return &c
}

func (m *MemoryStore) GetAgent(_ context.Context, agentID string) (*models.Agent, error) {
	m.agentsMu.Lock()
	defer m.agentsMu.Unlock()

	a, ok := m.agents[agentID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyAgent(a), nil
}

func (m *MemoryStore) FindByCredentials(ctx context.Context, agentID, secret string) (*models.Agent, error) {
	a, err := m.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if !SecretMatches(a.SecretHash, secret) {
		return nil, ErrNotFound
	}
	return a, nil
}

func (m *MemoryStore) SetLoginStatus(_ context.Context, agentID, status, sessionID string) (bool, error) {
	if !models.ValidLoginStatus(status) {
		return false, fmt.Errorf("set login status: invalid status %q", status)
	}

	m.agentsMu.Lock()
	defer m.agentsMu.Unlock()

	a, ok := m.agents[agentID]
	if !ok {
		return false, nil
	}
	now := m.now()
	a.LoginStatus = status
	a.LastLoginAttempt = &now
	a.UpdatedAt = now
	if sessionID != "" {
		sid := sessionID
		a.SessionID = &sid
	}
	return true, nil
}

func (m *MemoryStore) ExpireLogin(_ context.Context, agentID string, attempt time.Time) (bool, error) {
	m.agentsMu.Lock()
	defer m.agentsMu.Unlock()

	a, ok := m.agents[agentID]
	if !ok || a.LoginStatus != models.LoginStatusLoggingIn ||
		a.LastLoginAttempt == nil || !a.LastLoginAttempt.Equal(attempt) {
		return false, nil
	}
	now := m.now()
	a.LoginStatus = models.LoginStatusExpired
	a.LastLoginAttempt = &now
	a.UpdatedAt = now
	return true, nil
}

func (m *MemoryStore) SetBusy(_ context.Context, agentID string, busy bool, jobID *uuid.UUID) (bool, error) {
	m.agentsMu.Lock()
	defer m.agentsMu.Unlock()

	a, ok := m.agents[agentID]
	if !ok {
		return false, nil
	}
	a.IsBusy = busy
	a.CurrentJobID = nil
	if busy && jobID != nil {
		id := *jobID
		a.CurrentJobID = &id
	}
	a.UpdatedAt = m.now()
	return true, nil
}

func (m *MemoryStore) ListAgents(_ context.Context) ([]*models.Agent, error) {
	m.agentsMu.Lock()
	defer m.agentsMu.Unlock()

	agents := make([]*models.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		agents = append(agents, copyAgent(a))
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].AgentID < agents[j].AgentID })
	return agents, nil
}

func (m *MemoryStore) CreateAgent(_ context.Context, agent *models.Agent) error {
	m.agentsMu.Lock()
	defer m.agentsMu.Unlock()

	if _, exists := m.agents[agent.AgentID]; exists {
		return ErrDuplicateKey
	}
	m.agents[agent.AgentID] = copyAgent(agent)
	return nil
}

// --- Sequence pools ---

func (m *MemoryStore) CreateSequencePool(_ context.Context, pool *models.SequencePool) error {
	m.poolsMu.Lock()
	defer m.poolsMu.Unlock()

	m.nextPoolID++
	pool.ID = m.nextPoolID
	c := *pool
	m.pools[pool.ID] = &c
	return nil
}

func (m *MemoryStore) FirstOpenSequencePool(_ context.Context) (*models.SequencePool, error) {
	m.poolsMu.Lock()
	defer m.poolsMu.Unlock()

	var first *models.SequencePool
	for _, p := range m.pools {
		if p.IsExhausted {
			continue
		}
		if first == nil || p.ID < first.ID {
			first = p
		}
	}
	if first == nil {
		return nil, ErrNotFound
	}
	c := *first
	return &c, nil
}

func (m *MemoryStore) AdvanceSequencePool(_ context.Context, id int64, observed, next string) (bool, error) {
	m.poolsMu.Lock()
	defer m.poolsMu.Unlock()

	p, ok := m.pools[id]
	if !ok || p.IsExhausted || p.CurrentNext != observed {
		return false, nil
	}
	p.CurrentNext = next
	return true, nil
}

func (m *MemoryStore) MarkSequencePoolExhausted(_ context.Context, id int64, observed string) (bool, error) {
	m.poolsMu.Lock()
	defer m.poolsMu.Unlock()

	p, ok := m.pools[id]
	if !ok || p.IsExhausted || p.CurrentNext != observed {
		return false, nil
	}
	p.IsExhausted = true
	return true, nil
}
