package cryptox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	hash, err := HashPassword([]byte("hunter22"))
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	assert.True(t, VerifyPassword(hash, []byte("hunter22")))
	assert.False(t, VerifyPassword(hash, []byte("hunter23")))
	assert.False(t, VerifyPassword(hash, nil))
}

func TestHashesAreSalted(t *testing.T) {
	h1, err := HashPassword([]byte("same password"))
	require.NoError(t, err)
	h2, err := HashPassword([]byte("same password"))
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}

func TestOverlongPasswordRejected(t *testing.T) {
	long := strings.Repeat("x", MaxPasswordLen+1)
	_, err := HashPassword([]byte(long))
	assert.Error(t, err)
}
