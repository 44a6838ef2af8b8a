package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("secret", time.Hour)

	token, err := svc.CreateForUser(42)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	id, err := svc.ParseUserID(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := NewTokenService("secret-a", time.Hour).CreateForUser(1)
	require.NoError(t, err)

	_, err = NewTokenService("secret-b", time.Hour).ParseUserID(token)
	assert.Error(t, err)
}

func TestTokenExpired(t *testing.T) {
	svc := NewTokenService("secret", -time.Minute)

	token, err := svc.CreateForUser(1)
	require.NoError(t, err)

	_, err = svc.ParseUserID(token)
	assert.Error(t, err)
}

func TestTokenGarbage(t *testing.T) {
	svc := NewTokenService("secret", time.Hour)

	_, err := svc.ParseUserID("not-a-token")
	assert.Error(t, err)
}
