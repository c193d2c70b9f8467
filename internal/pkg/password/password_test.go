package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndCompare(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("pw123456")
	require.NoError(t, err)
	assert.NotEqual(t, "pw123456", hash)

	assert.True(t, h.Compare("pw123456", hash))
	assert.False(t, h.Compare("wrong-password", hash))
}

func TestHash_DistinctSalts(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	h1, err := h.Hash("pw123456")
	require.NoError(t, err)
	h2, err := h.Hash("pw123456")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestNewHasher_InvalidCostFallsBack(t *testing.T) {
	h := NewHasher(99)

	hash, err := h.Hash("pw123456")
	require.NoError(t, err)
	assert.True(t, h.Compare("pw123456", hash))
}
