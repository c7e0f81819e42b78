package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-jwt-secret-at-least-32-characters-long"

func newTestJWT(now time.Time) *JWTService {
	return NewJWTService(testSecret, 15*time.Minute, 7*24*time.Hour, fixedClock(now))
}

func TestJWTService_accessRoundTrip(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestJWT(now)
	userID := uuid.New()

	token, expiresAt, err := svc.IssueAccessToken(userID)
	require.NoError(t, err)
	assert.Equal(t, now.Add(15*time.Minute), expiresAt)

	claims, err := svc.DecodeAccess(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
}

func TestJWTService_refreshRoundTrip(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestJWT(now)
	userID := uuid.New()

	token, expiresAt, err := svc.IssueRefreshToken(userID)
	require.NoError(t, err)
	assert.Equal(t, now.Add(7*24*time.Hour), expiresAt)

	claims, err := svc.DecodeRefresh(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
}

func TestJWTService_rejectsWrongTokenType(t *testing.T) {
	svc := newTestJWT(time.Now().UTC())

	access, _, err := svc.IssueAccessToken(uuid.New())
	require.NoError(t, err)
	refresh, _, err := svc.IssueRefreshToken(uuid.New())
	require.NoError(t, err)

	_, err = svc.DecodeRefresh(access)
	assert.ErrorIs(t, err, ErrInvalidToken, "access token must not pass as refresh")
	_, err = svc.DecodeAccess(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken, "refresh token must not pass as access")
}

func TestJWTService_rejectsExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	issued := newTestJWT(now)
	token, _, err := issued.IssueAccessToken(uuid.New())
	require.NoError(t, err)

	later := newTestJWT(now.Add(16 * time.Minute))
	_, err = later.DecodeAccess(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_rejectsTamperedAndForeign(t *testing.T) {
	svc := newTestJWT(time.Now().UTC())
	token, _, err := svc.IssueAccessToken(uuid.New())
	require.NoError(t, err)

	_, err = svc.DecodeAccess(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewJWTService("a-completely-different-secret-value!!", 15*time.Minute, time.Hour, nil)
	_, err = other.DecodeAccess(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.DecodeAccess("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
