package middleware

import (
	"context"
	"net/http"
)

type contextKey string

const agentIDKey contextKey = "agent_id"

// SetAgentID stores the authenticated agent on the request context.
func SetAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, agentIDKey, agentID)
}

// GetAgentID returns the agent set by Authenticate.
func GetAgentID(r *http.Request) (string, bool) {
	id, ok := r.Context().Value(agentIDKey).(string)
	return id, ok && id != ""
}
