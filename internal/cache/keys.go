package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}

func RateLimitKey(agentID string) string {
	return fmt.Sprintf("ratelimit:%s", agentID)
}

// SessionKey maps a bearer token to the agent it was issued to.
func SessionKey(token string) string {
	return fmt.Sprintf("session:%s", token)
}

// AgentSessionKey points at the agent's current token so a new login can
// revoke the previous one.
func AgentSessionKey(agentID string) string {
	return fmt.Sprintf("agent:session:%s", agentID)
}
