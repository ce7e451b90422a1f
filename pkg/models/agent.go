package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	LoginStatusNone      = ""
	LoginStatusLoggingIn = "LoggingIn"
	LoginStatusLoggedIn  = "LoggedIn"
	LoginStatusExpired   = "Expired"
)

// Agent is a remote worker process. Only the bcrypt hash of its secret is stored.
type Agent struct {
	ID               uuid.UUID  `db:"id"                 json:"id"`
	AgentID          string     `db:"agent_id"           json:"agent_id"`
	SecretHash       string     `db:"secret_hash"        json:"-"`
	LoginStatus      string     `db:"login_status"       json:"login_status"`
	LastLoginAttempt *time.Time `db:"last_login_attempt" json:"last_login_attempt,omitempty"`
	SessionID        *string    `db:"session_id"         json:"session_id,omitempty"`
	IsBusy           bool       `db:"is_busy"            json:"is_busy"`
	CurrentJobID     *uuid.UUID `db:"current_job_id"     json:"current_job_id,omitempty"`
	CreatedAt        time.Time  `db:"created_at"         json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"         json:"updated_at"`
}

// ValidLoginStatus reports whether s is a status an agent can be moved into.
func ValidLoginStatus(s string) bool {
	switch s {
	case LoginStatusLoggingIn, LoginStatusLoggedIn, LoginStatusExpired:
		return true
	}
	return false
}
