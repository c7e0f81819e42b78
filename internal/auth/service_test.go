package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/identra/server/internal/model"
	"github.com/identra/server/internal/repo"
)

type serviceFixture struct {
	svc           *AuthService
	users         *repo.MemUserRepo
	sessions      *repo.MemSessionRepo
	verifications *repo.MemVerificationRepo
	tokens        *JWTService
	hasher        Hasher
	now           time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		users:         repo.NewMemUserRepo(),
		sessions:      repo.NewMemSessionRepo(),
		verifications: repo.NewMemVerificationRepo(),
		hasher:        NewBcryptHasher(bcrypt.MinCost),
		now:           time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.tokens = NewJWTService(testSecret, 15*time.Minute, 7*24*time.Hour, clock)
	f.svc = NewAuthService(nil, f.users, f.sessions, f.verifications, f.hasher, f.tokens, clock)
	return f
}

func (f *serviceFixture) createUser(t *testing.T, email, phone, password string) model.User {
	t.Helper()

	hash, err := f.hasher.Hash(password)
	require.NoError(t, err)
	user := &model.User{PasswordHash: hash, FirstName: "Ada", LastName: "Lovelace"}
	if email != "" {
		user.Email = &email
	}
	if phone != "" {
		user.Phone = &phone
	}
	created, err := f.users.Create(context.Background(), nil, user)
	require.NoError(t, err)
	return created
}

func TestLogin_success(t *testing.T) {
	f := newServiceFixture(t)
	user := f.createUser(t, "ada@x.com", "", "p4ssword")
	device := "d1"

	pair, projection, err := f.svc.Login(context.Background(), "ada@x.com", "p4ssword", model.DeviceMetadata{DeviceID: &device})
	require.NoError(t, err)

	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, user.ID, projection.ID)
	require.NotNil(t, projection.Email)
	assert.Equal(t, "ada@x.com", *projection.Email)

	claims, err := f.tokens.DecodeAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)

	session, err := f.sessions.LatestByUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, f.now, session.StartTime)
	assert.Equal(t, f.now.Add(time.Hour), session.EndTime)
	assert.Equal(t, model.LoginMethodRegular, session.LoginMethod)
	require.NotNil(t, session.DeviceID)
	assert.Equal(t, "d1", *session.DeviceID)
}

func TestLogin_byPhone(t *testing.T) {
	f := newServiceFixture(t)
	user := f.createUser(t, "", "+15551234567", "p4ssword")

	_, projection, err := f.svc.Login(context.Background(), "+15551234567", "p4ssword", model.DeviceMetadata{})
	require.NoError(t, err)
	assert.Equal(t, user.ID, projection.ID)
	assert.Nil(t, projection.Email)
	require.NotNil(t, projection.Phone)
	assert.Equal(t, "+15551234567", *projection.Phone)
}

func TestLogin_undifferentiatedFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.createUser(t, "ada@x.com", "", "p4ssword")

	_, _, errUnknown := f.svc.Login(context.Background(), "nobody@x.com", "p4ssword", model.DeviceMetadata{})
	_, _, errWrongPass := f.svc.Login(context.Background(), "ada@x.com", "wrong", model.DeviceMetadata{})

	assert.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	assert.ErrorIs(t, errWrongPass, ErrInvalidCredentials)
	assert.Equal(t, errUnknown.Error(), errWrongPass.Error(), "error must not leak user existence")
}

func TestLogin_eachLoginCreatesOwnSession(t *testing.T) {
	f := newServiceFixture(t)
	user := f.createUser(t, "ada@x.com", "", "p4ssword")

	for i := 0; i < 3; i++ {
		_, _, err := f.svc.Login(context.Background(), "ada@x.com", "p4ssword", model.DeviceMetadata{})
		require.NoError(t, err)
	}

	sessions, err := f.sessions.ListByUser(context.Background(), user.ID, 10, 0)
	require.NoError(t, err)
	assert.Len(t, sessions, 3, "concurrent sessions per user are allowed")
}

func TestRefresh_extendsLatestSession(t *testing.T) {
	f := newServiceFixture(t)
	user := f.createUser(t, "ada@x.com", "", "p4ssword")

	pair, _, err := f.svc.Login(context.Background(), "ada@x.com", "p4ssword", model.DeviceMetadata{})
	require.NoError(t, err)

	before, err := f.sessions.LatestByUser(context.Background(), user.ID)
	require.NoError(t, err)

	f.now = f.now.Add(30 * time.Minute)
	newPair, err := f.svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, newPair.AccessToken)
	assert.NotEmpty(t, newPair.RefreshToken)

	after, err := f.sessions.LatestByUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, f.now.Add(time.Hour), after.EndTime)
	assert.True(t, after.EndTime.After(before.EndTime), "refresh must extend, never shorten")
	assert.Equal(t, before.StartTime, after.StartTime, "start_time is immutable")
}

func TestRefresh_succeedsWithoutSession(t *testing.T) {
	f := newServiceFixture(t)
	user := f.createUser(t, "ada@x.com", "", "p4ssword")

	refresh, _, err := f.tokens.IssueRefreshToken(user.ID)
	require.NoError(t, err)

	pair, err := f.svc.Refresh(context.Background(), refresh)
	require.NoError(t, err, "extension is best-effort; no session is not an error")
	assert.NotEmpty(t, pair.AccessToken)
}

func TestRefresh_rejectsInvalidToken(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Refresh(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Access tokens are not refresh tokens.
	user := f.createUser(t, "ada@x.com", "", "p4ssword")
	access, _, err := f.tokens.IssueAccessToken(user.ID)
	require.NoError(t, err)
	_, err = f.svc.Refresh(context.Background(), access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLogout_finalizesLatestSessionAndIsIdempotent(t *testing.T) {
	f := newServiceFixture(t)
	user := f.createUser(t, "ada@x.com", "", "p4ssword")

	_, _, err := f.svc.Login(context.Background(), "ada@x.com", "p4ssword", model.DeviceMetadata{})
	require.NoError(t, err)

	f.now = f.now.Add(10 * time.Minute)
	require.NoError(t, f.svc.Logout(context.Background(), user.ID))

	session, err := f.sessions.LatestByUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, f.now, session.EndTime)

	// Second call is a no-op, not an error.
	f.now = f.now.Add(time.Minute)
	require.NoError(t, f.svc.Logout(context.Background(), user.ID))
	again, err := f.sessions.LatestByUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, f.now, again.EndTime)
}

func TestLogout_noSessionIsNoop(t *testing.T) {
	f := newServiceFixture(t)
	assert.NoError(t, f.svc.Logout(context.Background(), uuid.New()))
}

func registerFixtureChallenge(t *testing.T, f *serviceFixture, email, phone string) string {
	t.Helper()

	ctx := context.Background()
	var id uuid.UUID
	var err error
	if email != "" {
		id, err = f.verifications.UpsertByEmail(ctx, email, hashOTPHex(email, "123456", "s"), f.now.Add(5*time.Minute))
	} else {
		id, err = f.verifications.UpsertByPhone(ctx, phone, hashOTPHex(phone, "123456", "s"), f.now.Add(5*time.Minute))
	}
	require.NoError(t, err)

	token, err := generateExchangeToken()
	require.NoError(t, err)
	require.NoError(t, f.verifications.MarkVerified(ctx, id, token, f.now.Add(10*time.Minute)))
	return token
}

func TestRegister_success(t *testing.T) {
	f := newServiceFixture(t)
	token := registerFixtureChallenge(t, f, "user@x.com", "")

	projection, err := f.svc.Register(context.Background(), RegisterInput{
		Email:           "user@x.com",
		Password:        "p",
		ConfirmPassword: "p",
		FirstName:       "Grace",
		LastName:        "Hopper",
	}, token)
	require.NoError(t, err)
	require.NotNil(t, projection.Email)
	assert.Equal(t, "user@x.com", *projection.Email)

	created, err := f.users.GetByEmail(context.Background(), "user@x.com")
	require.NoError(t, err)
	assert.NotEqual(t, "p", created.PasswordHash)
	assert.True(t, f.hasher.Verify("p", created.PasswordHash))

	// Token is single-use.
	v, err := f.verifications.GetByEmail(context.Background(), "user@x.com")
	require.NoError(t, err)
	assert.Nil(t, v.ExchangeToken)

	_, err = f.svc.Register(context.Background(), RegisterInput{
		Email:           "user@x.com",
		Password:        "p",
		ConfirmPassword: "p",
	}, token)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestRegister_passwordMismatchPrecedesTokenCheck(t *testing.T) {
	f := newServiceFixture(t)

	// No challenge exists at all; the mismatch must be reported first.
	_, err := f.svc.Register(context.Background(), RegisterInput{
		Email:           "user@x.com",
		Password:        "p",
		ConfirmPassword: "q",
	}, "irrelevant")
	assert.ErrorIs(t, err, ErrPasswordMismatch)
}

func TestRegister_rejectsBadIdentifierShape(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Password:        "p",
		ConfirmPassword: "p",
	}, "tok")
	assert.ErrorIs(t, err, ErrInvalidRequest, "neither email nor phone")

	_, err = f.svc.Register(context.Background(), RegisterInput{
		Email:           "user@x.com",
		Phone:           "+15551234567",
		Password:        "p",
		ConfirmPassword: "p",
	}, "tok")
	assert.ErrorIs(t, err, ErrInvalidRequest, "both email and phone")
}

func TestRegister_noChallenge(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Email:           "user@x.com",
		Password:        "p",
		ConfirmPassword: "p",
	}, "tok")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegister_wrongOrExpiredToken(t *testing.T) {
	f := newServiceFixture(t)
	token := registerFixtureChallenge(t, f, "user@x.com", "")

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Email:           "user@x.com",
		Password:        "p",
		ConfirmPassword: "p",
	}, "not-the-token")
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)

	f.now = f.now.Add(10*time.Minute + time.Second)
	_, err = f.svc.Register(context.Background(), RegisterInput{
		Email:           "user@x.com",
		Password:        "p",
		ConfirmPassword: "p",
	}, token)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

// Full flow: issue OTP, verify it, register with the exchange token, then
// log in with the fresh credentials.
func TestVerifyThenRegisterThenLogin(t *testing.T) {
	f := newServiceFixture(t)
	engine := NewOTPEngine(f.verifications, &capturingDispatcher{}, "s", func() time.Time { return f.now }, true)
	ctx := context.Background()

	code, err := engine.IssueEmail(ctx, "user@x.com")
	require.NoError(t, err)

	token, err := engine.Verify(ctx, code, "user@x.com", "")
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, RegisterInput{
		Email:           "user@x.com",
		Password:        "p",
		ConfirmPassword: "p",
	}, token)
	require.NoError(t, err)

	pair, projection, err := f.svc.Login(ctx, "user@x.com", "p", model.DeviceMetadata{})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	require.NotNil(t, projection.Email)
	assert.Equal(t, "user@x.com", *projection.Email)
}
