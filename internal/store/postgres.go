package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/jobleaser/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5. Each state
// transition is one conditional UPDATE, so concurrent API replicas and the
// scheduler never need an in-process lock.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

var _ Store = (*PostgresStore)(nil)

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Jobs ---

const jobColumns = `id, store_code, product_code, product_name, price::text, barcode, status,
	assigned_agent_id, assignment_time, completion_time, retry_count, error_reason, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.StoreCode, &j.ProductCode, &j.ProductName, &j.Price, &j.Barcode, &j.Status,
		&j.AssignedAgentID, &j.AssignmentTime, &j.CompletionTime, &j.RetryCount, &j.ErrorReason,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) ClaimNextReady(ctx context.Context, agentID string) (*models.Job, error) {
	now := s.now()
	// SKIP LOCKED lets concurrent claimers pass over a row another transaction
	// is already taking instead of queueing behind it.
	j, err := scanJob(s.pool.QueryRow(ctx,
		`UPDATE jobs SET status = 'Assigned', assigned_agent_id = $1, assignment_time = $2, updated_at = $2
		 WHERE id = (
		   SELECT id FROM jobs WHERE status = 'Ready' LIMIT 1 FOR UPDATE SKIP LOCKED
		 ) AND status = 'Ready'
		 RETURNING `+jobColumns, agentID, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("claim next ready job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) ReportResult(ctx context.Context, jobID uuid.UUID, status, errorReason string) (bool, error) {
	retryInc := 0
	if models.CountsAsRetry(status) {
		retryInc = 1
	}
	now := s.now()
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, completion_time = $3, error_reason = $4,
		   retry_count = retry_count + $5, assigned_agent_id = NULL, updated_at = $3
		 WHERE id = $1 AND (status = 'Assigned' OR status = $2)`,
		jobID, status, now, errorReason, retryInc)
	if err != nil {
		return false, fmt.Errorf("report job result: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ReclaimAssignedTo(ctx context.Context, agentID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'Ready', assigned_agent_id = NULL, assignment_time = NULL, updated_at = $2
		 WHERE assigned_agent_id = $1 AND status = 'Assigned'`, agentID, s.now())
	if err != nil {
		return 0, fmt.Errorf("reclaim jobs for %s: %w", agentID, err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CreateJobs(ctx context.Context, jobs []*models.Job) (int, error) {
	if len(jobs) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(jobs))
	for _, j := range jobs {
		var price pgtype.Numeric
		if err := price.Scan(j.Price); err != nil {
			return 0, fmt.Errorf("job %s: invalid price %q: %w", j.ID, j.Price, err)
		}
		rows = append(rows, []any{
			j.ID, j.StoreCode, j.ProductCode, j.ProductName, price, j.Barcode,
			j.Status, j.RetryCount, j.ErrorReason, j.CreatedAt, j.UpdatedAt,
		})
	}

	n, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"jobs"},
		[]string{"id", "store_code", "product_code", "product_name", "price", "barcode",
			"status", "retry_count", "error_reason", "created_at", "updated_at"},
		pgx.CopyFromRows(rows))
	if err != nil {
		if isDuplicateKeyError(err) {
			return 0, ErrDuplicateKey
		}
		return 0, fmt.Errorf("create jobs: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) RequeueJob(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'Ready', completion_time = NULL, error_reason = '', updated_at = $2
		 WHERE id = $1 AND status IN ('Failed', 'ReLoginNeeded')`, id, s.now())
	if err != nil {
		return false, fmt.Errorf("requeue job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) CountJobsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count jobs by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// --- Agents ---

const agentColumns = `id, agent_id, secret_hash, login_status, last_login_attempt, session_id,
	is_busy, current_job_id, created_at, updated_at`

func scanAgent(row pgx.Row) (*models.Agent, error) {
	var a models.Agent
	err := row.Scan(&a.ID, &a.AgentID, &a.SecretHash, &a.LoginStatus, &a.LastLoginAttempt, &a.SessionID,
		&a.IsBusy, &a.CurrentJobID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PostgresStore) GetAgent(ctx context.Context, agentID string) (*models.Agent, error) {
	a, err := scanAgent(s.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE agent_id = $1`, agentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) FindByCredentials(ctx context.Context, agentID, secret string) (*models.Agent, error) {
	a, err := s.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if !SecretMatches(a.SecretHash, secret) {
		return nil, ErrNotFound
	}
	return a, nil
}

func (s *PostgresStore) SetLoginStatus(ctx context.Context, agentID, status, sessionID string) (bool, error) {
	if !models.ValidLoginStatus(status) {
		return false, fmt.Errorf("set login status: invalid status %q", status)
	}
	now := s.now()
	tag, err := s.pool.Exec(ctx,
		`UPDATE agents SET login_status = $2, last_login_attempt = $3, updated_at = $3,
		   session_id = COALESCE(NULLIF($4::text, ''), session_id)
		 WHERE agent_id = $1`, agentID, status, now, sessionID)
	if err != nil {
		return false, fmt.Errorf("set login status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ExpireLogin(ctx context.Context, agentID string, attempt time.Time) (bool, error) {
	now := s.now()
	tag, err := s.pool.Exec(ctx,
		`UPDATE agents SET login_status = $2, last_login_attempt = $4, updated_at = $4
		 WHERE agent_id = $1 AND login_status = $3 AND last_login_attempt = $5`,
		agentID, models.LoginStatusExpired, models.LoginStatusLoggingIn, now, attempt)
	if err != nil {
		return false, fmt.Errorf("expire login: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) SetBusy(ctx context.Context, agentID string, busy bool, jobID *uuid.UUID) (bool, error) {
	if !busy {
		jobID = nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE agents SET is_busy = $2, current_job_id = $3, updated_at = $4 WHERE agent_id = $1`,
		agentID, busy, jobID, s.now())
	if err != nil {
		return false, fmt.Errorf("set busy: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListAgents(ctx context.Context) ([]*models.Agent, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY agent_id`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []*models.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (s *PostgresStore) CreateAgent(ctx context.Context, agent *models.Agent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO agents (id, agent_id, secret_hash, login_status, is_busy, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		agent.ID, agent.AgentID, agent.SecretHash, agent.LoginStatus, agent.IsBusy, agent.CreatedAt, agent.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

// --- Sequence pools ---

func (s *PostgresStore) CreateSequencePool(ctx context.Context, pool *models.SequencePool) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sequence_pools (start_value, end_value, current_next, is_exhausted, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		pool.StartValue, pool.EndValue, pool.CurrentNext, pool.IsExhausted, pool.CreatedAt,
	).Scan(&pool.ID)
	if err != nil {
		return fmt.Errorf("create sequence pool: %w", err)
	}
	return nil
}

func (s *PostgresStore) FirstOpenSequencePool(ctx context.Context) (*models.SequencePool, error) {
	var p models.SequencePool
	err := s.pool.QueryRow(ctx,
		`SELECT id, start_value, end_value, current_next, is_exhausted, created_at
		 FROM sequence_pools WHERE NOT is_exhausted ORDER BY id LIMIT 1`,
	).Scan(&p.ID, &p.StartValue, &p.EndValue, &p.CurrentNext, &p.IsExhausted, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get open sequence pool: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) AdvanceSequencePool(ctx context.Context, id int64, observed, next string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sequence_pools SET current_next = $3
		 WHERE id = $1 AND current_next = $2 AND NOT is_exhausted`, id, observed, next)
	if err != nil {
		return false, fmt.Errorf("advance sequence pool: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) MarkSequencePoolExhausted(ctx context.Context, id int64, observed string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sequence_pools SET is_exhausted = TRUE
		 WHERE id = $1 AND current_next = $2 AND NOT is_exhausted`, id, observed)
	if err != nil {
		return false, fmt.Errorf("mark sequence pool exhausted: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
