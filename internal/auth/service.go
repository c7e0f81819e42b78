package auth

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/identra/server/internal/model"
	"github.com/identra/server/internal/repo"
)

const sessionDuration = time.Hour

// TokenPair is an access/refresh token pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// UserProjection is the minimal user view returned by login and
// registration. Never carries the credential hash.
type UserProjection struct {
	ID        uuid.UUID
	Email     *string
	Phone     *string
	FirstName string
	LastName  string
}

// RegisterInput carries the registration payload.
type RegisterInput struct {
	Email           string
	Phone           string
	Password        string
	ConfirmPassword string
	FirstName       string
	LastName        string
}

// AuthService orchestrates login, token refresh, logout and registration.
type AuthService struct {
	db            *sql.DB
	users         repo.UserRepo
	sessions      repo.SessionRepo
	verifications repo.VerificationRepo
	hasher        Hasher
	tokens        TokenIssuer
	clock         Clock
}

// NewAuthService creates a new auth service
func NewAuthService(
	db *sql.DB,
	users repo.UserRepo,
	sessions repo.SessionRepo,
	verifications repo.VerificationRepo,
	hasher Hasher,
	tokens TokenIssuer,
	clock Clock,
) *AuthService {
	if clock == nil {
		clock = SystemClock
	}
	return &AuthService{
		db:            db,
		users:         users,
		sessions:      sessions,
		verifications: verifications,
		hasher:        hasher,
		tokens:        tokens,
		clock:         clock,
	}
}

// Login validates credentials and, in one transaction with token issuance,
// records a session starting now and ending an hour later. Unknown
// identifiers and wrong passwords produce the same error.
func (s *AuthService) Login(ctx context.Context, identifier, password string, meta model.DeviceMetadata) (TokenPair, UserProjection, error) {
	var user model.User
	var err error
	if strings.Contains(identifier, "@") {
		user, err = s.users.GetByEmail(ctx, identifier)
	} else {
		user, err = s.users.GetByPhone(ctx, identifier)
	}
	if err != nil || !s.hasher.Verify(password, user.PasswordHash) {
		return TokenPair{}, UserProjection{}, ErrInvalidCredentials
	}

	pair, err := s.issuePair(user.ID)
	if err != nil {
		return TokenPair{}, UserProjection{}, err
	}

	// Tokens are returned only if the session row commits; a failed insert
	// discards them, keeping issuance and session creation atomic.
	start := s.clock()
	err = repo.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := s.sessions.Create(ctx, tx, user.ID, start, start.Add(sessionDuration), model.LoginMethodRegular, meta)
		return err
	})
	if err != nil {
		return TokenPair{}, UserProjection{}, fmt.Errorf("create session: %w", err)
	}

	return pair, projectUser(user), nil
}

// Refresh validates the refresh token, extends the user's most recent
// session to now+1h if one exists, and returns a fresh pair. A missing
// session is not an error.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.tokens.DecodeRefresh(refreshToken)
	if err != nil {
		return TokenPair{}, ErrInvalidToken
	}

	session, err := s.sessions.LatestByUser(ctx, claims.UserID)
	switch {
	case err == repo.ErrNoRows:
		// nothing to extend
	case err != nil:
		return TokenPair{}, fmt.Errorf("find latest session: %w", err)
	default:
		if err := s.sessions.SetEndTime(ctx, session.ID, s.clock().Add(sessionDuration)); err != nil {
			return TokenPair{}, fmt.Errorf("extend session: %w", err)
		}
	}

	return s.issuePair(claims.UserID)
}

// VerifyAccess validates an access token and returns its claims.
func (s *AuthService) VerifyAccess(_ context.Context, accessToken string) (*TokenClaims, error) {
	return s.tokens.DecodeAccess(accessToken)
}

// Logout finalizes the user's most recent session by setting its end time to
// now. It is idempotent; a user with no session is a no-op.
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID) error {
	session, err := s.sessions.LatestByUser(ctx, userID)
	if err == repo.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find latest session: %w", err)
	}
	if err := s.sessions.SetEndTime(ctx, session.ID, s.clock()); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// Register consumes a verified exchange token and creates the user. Input
// shape is rejected before any state is touched: password confirmation
// first, then the email-XOR-phone rule.
func (s *AuthService) Register(ctx context.Context, input RegisterInput, exchangeToken string) (UserProjection, error) {
	if input.Password != input.ConfirmPassword {
		return UserProjection{}, ErrPasswordMismatch
	}
	if (input.Email == "") == (input.Phone == "") {
		return UserProjection{}, ErrInvalidRequest
	}

	var verification model.Verification
	var err error
	if input.Email != "" {
		verification, err = s.verifications.GetByEmail(ctx, input.Email)
	} else {
		verification, err = s.verifications.GetByPhone(ctx, input.Phone)
	}
	if err != nil {
		if err == repo.ErrNoRows {
			return UserProjection{}, ErrNotFound
		}
		return UserProjection{}, fmt.Errorf("lookup verification: %w", err)
	}

	if !exchangeTokenValid(verification, exchangeToken, s.clock()) {
		return UserProjection{}, ErrInvalidOrExpiredToken
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return UserProjection{}, err
	}

	user := &model.User{
		PasswordHash: hash,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
	}
	if input.Email != "" {
		user.Email = &input.Email
	} else {
		user.Phone = &input.Phone
	}

	// Token consumption and user creation commit together or not at all.
	var created model.User
	err = repo.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.verifications.ClearExchangeToken(ctx, tx, verification.ID); err != nil {
			return err
		}
		created, err = s.users.Create(ctx, tx, user)
		return err
	})
	if err != nil {
		return UserProjection{}, fmt.Errorf("register user: %w", err)
	}

	return projectUser(created), nil
}

func (s *AuthService) issuePair(userID uuid.UUID) (TokenPair, error) {
	access, _, err := s.tokens.IssueAccessToken(userID)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, _, err := s.tokens.IssueRefreshToken(userID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func exchangeTokenValid(v model.Verification, token string, now time.Time) bool {
	if v.ExchangeToken == nil || v.ExchangeTokenExpiry == nil || token == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(*v.ExchangeToken), []byte(token)) != 1 {
		return false
	}
	return v.ExchangeTokenExpiry.After(now)
}

func projectUser(u model.User) UserProjection {
	return UserProjection{
		ID:        u.ID,
		Email:     u.Email,
		Phone:     u.Phone,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}
