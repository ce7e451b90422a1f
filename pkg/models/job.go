// Package models contains shared data models used across the jobleaser codebase.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusReady         = "Ready"
	JobStatusAssigned      = "Assigned"
	JobStatusSuccess       = "Success"
	JobStatusFailed        = "Failed"
	JobStatusReLoginNeeded = "ReLoginNeeded"
)

// legacyReLoginNeeded is the spelling older agents still send.
const legacyReLoginNeeded = "Re-LoginNeeded"

// Job is a unit of work leased to one agent at a time. The payload fields are
// opaque to the scheduler and are carried through unchanged.
//
// AssignedAgentID is non-nil exactly while Status is Assigned.
type Job struct {
	ID              uuid.UUID  `db:"id"                json:"id"`
	StoreCode       string     `db:"store_code"        json:"store_code"`
	ProductCode     string     `db:"product_code"      json:"product_code"`
	ProductName     string     `db:"product_name"      json:"product_name"`
	Price           string     `db:"price"             json:"price"`
	Barcode         string     `db:"barcode"           json:"barcode"`
	Status          string     `db:"status"            json:"status"`
	AssignedAgentID *string    `db:"assigned_agent_id" json:"assigned_agent_id,omitempty"`
	AssignmentTime  *time.Time `db:"assignment_time"   json:"assignment_time,omitempty"`
	CompletionTime  *time.Time `db:"completion_time"   json:"completion_time,omitempty"`
	RetryCount      int        `db:"retry_count"       json:"retry_count"`
	ErrorReason     string     `db:"error_reason"      json:"error_reason"`
	CreatedAt       time.Time  `db:"created_at"        json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"        json:"updated_at"`
}

// ParseResultStatus normalizes a status reported by an agent. Only the
// statuses that end an attempt are accepted.
func ParseResultStatus(s string) (string, bool) {
	switch strings.TrimSpace(s) {
	case JobStatusSuccess:
		return JobStatusSuccess, true
	case JobStatusFailed:
		return JobStatusFailed, true
	case JobStatusReLoginNeeded, legacyReLoginNeeded:
		return JobStatusReLoginNeeded, true
	}
	return "", false
}

// CountsAsRetry reports whether a result status increments RetryCount.
func CountsAsRetry(status string) bool {
	return status == JobStatusFailed || status == JobStatusReLoginNeeded
}
