// internal/auth/auth_test.go
package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	require.NoError(t, Init())

	token, err := CreateJWT("alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	username, err := AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)
}

func TestJWTRejectsGarbage(t *testing.T) {
	require.NoError(t, Init())

	_, err := AuthenticateJWT("not.a.token")
	assert.Error(t, err)
	_, err = AuthenticateJWT("")
	assert.Error(t, err)
}

func TestJWTRejectsForeignKey(t *testing.T) {
	require.NoError(t, Init())
	token, err := CreateJWT("alice")
	require.NoError(t, err)

	// Re-keying invalidates everything issued before.
	require.NoError(t, Init())
	_, err = AuthenticateJWT(token)
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := CreateHash("hunter2", Params)
	require.NoError(t, err)
	assert.NotEqual(t, "hunter2", hash)

	match, err := ComparePasswordAndHash("hunter2", hash)
	require.NoError(t, err)
	assert.True(t, match)

	match, err = ComparePasswordAndHash("wrong", hash)
	require.NoError(t, err)
	assert.False(t, match)
}

func TestPasswordHashesAreSalted(t *testing.T) {
	h1, err := CreateHash("hunter2", Params)
	require.NoError(t, err)
	h2, err := CreateHash("hunter2", Params)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}
