// Package auth issues and resolves the opaque bearer tokens agents use after
// logging in.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/jobleaser/internal/cache"
)

// Sessions stores token → agent mappings in the cache with a fixed TTL.
// An agent holds at most one live token; issuing a new one revokes the old.
type Sessions struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewSessions creates a Sessions store.
func NewSessions(c cache.Cache, ttl time.Duration) *Sessions {
	return &Sessions{cache: c, ttl: ttl}
}

// Issue creates a fresh token for agentID.
func (s *Sessions) Issue(ctx context.Context, agentID string) (string, error) {
	prev, found, err := s.cache.Get(ctx, cache.AgentSessionKey(agentID))
	if err != nil {
		return "", fmt.Errorf("look up previous session: %w", err)
	}
	if found {
		if err := s.cache.Delete(ctx, cache.SessionKey(string(prev))); err != nil {
			return "", fmt.Errorf("revoke previous session: %w", err)
		}
	}

	token := uuid.NewString()
	if err := s.cache.Set(ctx, cache.SessionKey(token), []byte(agentID), s.ttl); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	if err := s.cache.Set(ctx, cache.AgentSessionKey(agentID), []byte(token), s.ttl); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return token, nil
}

// Resolve returns the agent a token belongs to. ok is false for unknown or
// expired tokens.
func (s *Sessions) Resolve(ctx context.Context, token string) (string, bool, error) {
	if token == "" {
		return "", false, nil
	}
	val, found, err := s.cache.Get(ctx, cache.SessionKey(token))
	if err != nil {
		return "", false, fmt.Errorf("resolve session: %w", err)
	}
	if !found {
		return "", false, nil
	}
	return string(val), true, nil
}

// Revoke deletes a token. Unknown tokens are ignored.
func (s *Sessions) Revoke(ctx context.Context, token string) error {
	agentID, ok, err := s.Resolve(ctx, token)
	if err != nil || !ok {
		return err
	}
	if err := s.cache.Delete(ctx, cache.SessionKey(token)); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	current, found, err := s.cache.Get(ctx, cache.AgentSessionKey(agentID))
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if found && string(current) == token {
		return s.cache.Delete(ctx, cache.AgentSessionKey(agentID))
	}
	return nil
}
