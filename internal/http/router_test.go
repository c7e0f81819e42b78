package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/identra/server/internal/auth"
	"github.com/identra/server/internal/http/handlers"
	"github.com/identra/server/internal/notify"
	"github.com/identra/server/internal/policy"
	"github.com/identra/server/internal/repo"
)

// newTestRouter wires the full HTTP surface over in-memory repositories.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	users := repo.NewMemUserRepo()
	sessions := repo.NewMemSessionRepo()
	verifications := repo.NewMemVerificationRepo()

	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	tokens := auth.NewJWTService("test-jwt-secret-at-least-32-characters-long", 15*time.Minute, time.Hour, auth.SystemClock)
	otpEngine := auth.NewOTPEngine(verifications, notify.NewLogDispatcher(), "test-salt", auth.SystemClock, true)
	authService := auth.NewAuthService(nil, users, sessions, verifications, hasher, tokens, auth.SystemClock)

	return NewRouter(
		handlers.NewAuthHandler(authService),
		handlers.NewOTPHandler(otpEngine, authService),
		handlers.NewProfileHandler(users, sessions, policy.SelfServeEvaluator{}),
		authService,
		users,
	)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)
	rec, body := doJSON(t, router, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestLogoutAlwaysSucceeds(t *testing.T) {
	router := newTestRouter(t)

	// No token at all.
	rec, body := doJSON(t, router, http.MethodGet, "/auth/logout", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Successfully logged out", body["detail"])

	// Garbage token.
	rec, _ = doJSON(t, router, http.MethodGet, "/auth/logout", nil, map[string]string{"Authorization": "Bearer junk"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginRejectsUnknownUser(t *testing.T) {
	router := newTestRouter(t)
	rec, body := doJSON(t, router, http.MethodPost, "/auth/login", map[string]string{
		"email":    "nobody@x.com",
		"password": "p",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid login credentials", body["error"])
}

func TestRegisterRejectsBothIdentifiers(t *testing.T) {
	router := newTestRouter(t)
	rec, _ := doJSON(t, router, http.MethodPost, "/auth/register", map[string]string{
		"email":            "a@b.com",
		"phone":            "+15551234567",
		"password":         "p",
		"confirm_password": "p",
	}, map[string]string{"Authorization": "tok"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfileRequiresAuth(t *testing.T) {
	router := newTestRouter(t)
	rec, _ := doJSON(t, router, http.MethodGet, "/profile", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// End-to-end flow over HTTP: issue OTP, verify, register, login, inspect
// profile and activity, refresh, logout.
func TestFullRegistrationAndSessionFlow(t *testing.T) {
	router := newTestRouter(t)

	// Issue the OTP; dev mode echoes the code back.
	rec, body := doJSON(t, router, http.MethodPost, "/auth/verify-email", map[string]string{"email": "user@x.com"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	code, _ := body["dev_otp"].(string)
	require.Len(t, code, 6)

	// Verify the OTP; receive the exchange token.
	rec, body = doJSON(t, router, http.MethodPost, "/auth/verify-otp", map[string]string{
		"otp":   code,
		"email": "user@x.com",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	exchangeToken, _ := body["token"].(string)
	require.NotEmpty(t, exchangeToken)

	// Register with the exchange token.
	rec, body = doJSON(t, router, http.MethodPost, "/auth/register", map[string]string{
		"email":            "user@x.com",
		"password":         "p4ssword",
		"confirm_password": "p4ssword",
		"first_name":       "Grace",
	}, map[string]string{"Authorization": exchangeToken})
	require.Equal(t, http.StatusCreated, rec.Code)

	// The token is single-use.
	rec, _ = doJSON(t, router, http.MethodPost, "/auth/register", map[string]string{
		"email":            "user@x.com",
		"password":         "p4ssword",
		"confirm_password": "p4ssword",
	}, map[string]string{"Authorization": exchangeToken})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Login creates a session and returns the pair plus the projection.
	rec, body = doJSON(t, router, http.MethodPost, "/auth/login", map[string]string{
		"email":    "user@x.com",
		"password": "p4ssword",
		"deviceId": "d1",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	access, _ := body["access_token"].(string)
	refresh, _ := body["refresh_token"].(string)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)
	user, _ := body["user"].(map[string]interface{})
	require.NotNil(t, user)
	assert.Equal(t, "user@x.com", user["email"])
	assert.NotContains(t, user, "password_hash")

	authz := map[string]string{"Authorization": "Bearer " + access}

	// Second login from another device for the analytics below.
	rec, _ = doJSON(t, router, http.MethodPost, "/auth/login", map[string]string{
		"email":    "user@x.com",
		"password": "p4ssword",
		"deviceId": "d1",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = doJSON(t, router, http.MethodPost, "/auth/login", map[string]string{
		"email":    "user@x.com",
		"password": "p4ssword",
		"deviceId": "d2",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = doJSON(t, router, http.MethodPost, "/auth/login", map[string]string{
		"email":    "user@x.com",
		"password": "p4ssword",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Profile.
	rec, body = doJSON(t, router, http.MethodGet, "/profile", nil, authz)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user@x.com", body["email"])

	// Profile picture update.
	rec, body = doJSON(t, router, http.MethodPatch, "/profile/picture", map[string]string{
		"profile_picture": "profilepictures/grace.png",
	}, authz)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "profilepictures/grace.png", body["profile_picture"])

	// Recent activity: devices {d1, d1, d2, null} => 2 distinct.
	rec, body = doJSON(t, router, http.MethodGet, "/profile/recent-activity", nil, authz)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["distinct_device_count"])
	assert.NotNil(t, body["first_login"])
	sessions, _ := body["sessions"].([]interface{})
	assert.Len(t, sessions, 4)

	// Refresh rotates the pair.
	rec, body = doJSON(t, router, http.MethodPost, "/auth/refresh", map[string]string{"refresh": refresh}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, body["access_token"])

	// Verify endpoint accepts the access token.
	rec, _ = doJSON(t, router, http.MethodPost, "/auth/verify", map[string]string{"token": access}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Logout with the token.
	rec, _ = doJSON(t, router, http.MethodGet, "/auth/logout", nil, authz)
	assert.Equal(t, http.StatusOK, rec.Code)
}
