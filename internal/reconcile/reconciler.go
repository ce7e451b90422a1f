// Package reconcile runs the periodic sweep that expires stale logins and
// returns jobs held by expired agents to the Ready pool.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/jobleaser/internal/store"
	"github.com/kiranshivaraju/jobleaser/pkg/models"
)

// TickResult summarizes one sweep.
type TickResult struct {
	Scanned   int
	Expired   int
	Reclaimed int
	Errors    int
}

// Reconciler drives the LoggingIn → Expired transition and reclaims the work
// of expired agents. Only one Reconciler should run against a store.
type Reconciler struct {
	jobs         store.JobStore
	agents       store.AgentStore
	interval     time.Duration
	loginTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// NewReconciler creates a Reconciler. A nil logger uses slog.Default().
func NewReconciler(jobs store.JobStore, agents store.AgentStore, interval, loginTimeout time.Duration, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		jobs:         jobs,
		agents:       agents,
		interval:     interval,
		loginTimeout: loginTimeout,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger,
	}
}

// WithClock replaces the time source. Used by tests.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Run sweeps immediately and then again interval after each sweep finishes,
// so sweeps never overlap. It returns nil once ctx is cancelled; cancellation
// is only observed between sweeps and between agents.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info("reconciler started",
		"interval", r.interval.String(),
		"login_timeout", r.loginTimeout.String(),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return nil
		case <-timer.C:
			res, err := r.Tick(ctx)
			if err != nil && ctx.Err() == nil {
				r.logger.Error("reconcile tick failed", "error", err)
			}
			if res.Expired > 0 || res.Reclaimed > 0 || res.Errors > 0 {
				r.logger.Info("reconcile tick complete",
					"scanned", res.Scanned,
					"expired", res.Expired,
					"reclaimed", res.Reclaimed,
					"errors", res.Errors,
				)
			}
			timer.Reset(r.interval)
		}
	}
}

// Tick performs one sweep over every agent. A failure on one agent is logged
// and counted, and the sweep moves on; only a failure to list agents aborts it.
func (r *Reconciler) Tick(ctx context.Context) (TickResult, error) {
	var res TickResult

	agents, err := r.agents.ListAgents(ctx)
	if err != nil {
		return res, fmt.Errorf("list agents: %w", err)
	}

	now := r.now()
	for _, agent := range agents {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Scanned++

		status := agent.LoginStatus
		if r.loginTimedOut(agent, now) {
			// Keyed on the observed attempt so a login that lands after
			// ListAgents is not expired.
			ok, err := r.agents.ExpireLogin(ctx, agent.AgentID, *agent.LastLoginAttempt)
			if err != nil {
				res.Errors++
				r.logger.Error("failed to expire agent login", "agent_id", agent.AgentID, "error", err)
				continue
			}
			if ok {
				res.Expired++
				status = models.LoginStatusExpired
				r.logger.Info("agent login expired",
					"agent_id", agent.AgentID,
					"last_login_attempt", agent.LastLoginAttempt,
				)
			}
		}

		if status != models.LoginStatusExpired {
			continue
		}

		n, err := r.jobs.ReclaimAssignedTo(ctx, agent.AgentID)
		if err != nil {
			res.Errors++
			r.logger.Error("failed to reclaim jobs", "agent_id", agent.AgentID, "error", err)
			continue
		}
		if n > 0 {
			res.Reclaimed += n
			r.logger.Info("reclaimed jobs from expired agent", "agent_id", agent.AgentID, "count", n)
		}
	}

	return res, nil
}

func (r *Reconciler) loginTimedOut(agent *models.Agent, now time.Time) bool {
	if agent.LoginStatus != models.LoginStatusLoggingIn || agent.LastLoginAttempt == nil {
		return false
	}
	return now.Sub(*agent.LastLoginAttempt) > r.loginTimeout
}
