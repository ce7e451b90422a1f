package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/jobleaser/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// HashSecret returns the bcrypt hash stored for an agent secret.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("secret must not be empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(h), nil
}

// SecretMatches reports whether secret is the one hash was generated from.
func SecretMatches(hash, secret string) bool {
	if hash == "" || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// NewAgent builds an agent record with a hashed secret, ready for CreateAgent.
func NewAgent(agentID, secret string) (*models.Agent, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, fmt.Errorf("agent_id must not be empty")
	}
	hash, err := HashSecret(secret)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &models.Agent{
		ID:         uuid.New(),
		AgentID:    agentID,
		SecretHash: hash,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}
