package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseResultStatus(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Success", JobStatusSuccess, true},
		{"Failed", JobStatusFailed, true},
		{"ReLoginNeeded", JobStatusReLoginNeeded, true},
		{"Re-LoginNeeded", JobStatusReLoginNeeded, true},
		{" Success ", JobStatusSuccess, true},
		{"Ready", "", false},
		{"Assigned", "", false},
		{"success", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseResultStatus(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestCountsAsRetry(t *testing.T) {
	assert.True(t, CountsAsRetry(JobStatusFailed))
	assert.True(t, CountsAsRetry(JobStatusReLoginNeeded))
	assert.False(t, CountsAsRetry(JobStatusSuccess))
	assert.False(t, CountsAsRetry(JobStatusReady))
}

func TestValidLoginStatus(t *testing.T) {
	assert.True(t, ValidLoginStatus(LoginStatusLoggingIn))
	assert.True(t, ValidLoginStatus(LoginStatusLoggedIn))
	assert.True(t, ValidLoginStatus(LoginStatusExpired))
	assert.False(t, ValidLoginStatus(LoginStatusNone))
	assert.False(t, ValidLoginStatus("Busy"))
}
