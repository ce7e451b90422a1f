package store_test

import (
	"testing"

	"github.com/kiranshivaraju/jobleaser/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretMatches(t *testing.T) {
	hash, err := store.HashSecret("pw")
	require.NoError(t, err)

	assert.True(t, store.SecretMatches(hash, "pw"))
	assert.False(t, store.SecretMatches(hash, "PW"))
	assert.False(t, store.SecretMatches(hash, ""))
	assert.False(t, store.SecretMatches("", "pw"))
}

func TestHashSecret_Empty(t *testing.T) {
	_, err := store.HashSecret("")
	assert.Error(t, err)
}

func TestNewAgent(t *testing.T) {
	a, err := store.NewAgent(" A1 ", "pw")
	require.NoError(t, err)

	assert.Equal(t, "A1", a.AgentID)
	assert.True(t, store.SecretMatches(a.SecretHash, "pw"))
	assert.Equal(t, "", a.LoginStatus)
	assert.False(t, a.IsBusy)

	_, err = store.NewAgent("", "pw")
	assert.Error(t, err)
	_, err = store.NewAgent("A1", "")
	assert.Error(t, err)
}
