package auth

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	iss := NewIssuer("secret", time.Hour, 24*time.Hour)
	tok, err := iss.CreateAccessToken("user-1", "MENTOR", "m@example.com")
	require.NoError(t, err)

	claims, err := iss.ParseValidate(tok, TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Sub)
	assert.Equal(t, "MENTOR", claims.Role)
	assert.Equal(t, "m@example.com", claims.Email)
}

func TestParseValidateRejects(t *testing.T) {
	iss := NewIssuer("secret", time.Hour, 24*time.Hour)
	refresh, err := iss.CreateRefreshToken("user-1", "USER", "u@example.com")
	require.NoError(t, err)

	_, err = iss.ParseValidate(refresh, TokenAccess)
	assert.ErrorIs(t, err, ErrInvalidToken, "refresh token used as access token")

	other := NewIssuer("other-secret", time.Hour, time.Hour)
	forged, err := other.CreateAccessToken("user-1", "ADMIN", "u@example.com")
	require.NoError(t, err)
	_, err = iss.ParseValidate(forged, TokenAccess)
	assert.Error(t, err, "wrong signing secret")

	expired := NewIssuer("secret", time.Hour, time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.CreateAccessToken("user-1", "USER", "u@example.com")
	require.NoError(t, err)
	_, err = iss.ParseValidate(old, TokenAccess)
	assert.Error(t, err, "expired token")
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "s3cret!"))
	assert.False(t, CheckPassword(hash, "wrong"))
}
