package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// TokenIssuer issues and decodes the opaque signed tokens handed to clients.
type TokenIssuer interface {
	IssueAccessToken(userID uuid.UUID) (token string, expiresAt time.Time, err error)
	IssueRefreshToken(userID uuid.UUID) (token string, expiresAt time.Time, err error)
	// DecodeAccess and DecodeRefresh return ErrInvalidToken for anything
	// malformed, tampered, expired, or of the wrong type.
	DecodeAccess(token string) (*TokenClaims, error)
	DecodeRefresh(token string) (*TokenClaims, error)
}

// TokenClaims are the JWT claims carried by both token kinds.
type TokenClaims struct {
	UserID    uuid.UUID `json:"sub"`
	TokenType string    `json:"token_type"`
	jwt.RegisteredClaims
}

// JWTService implements TokenIssuer with HS256-signed JWTs.
type JWTService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      Clock
}

// NewJWTService creates a JWT issuer. Durations are deployment config, not a
// core invariant.
func NewJWTService(secret string, accessTTL, refreshTTL time.Duration, clock Clock) *JWTService {
	if clock == nil {
		clock = SystemClock
	}
	return &JWTService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		clock:      clock,
	}
}

func (s *JWTService) IssueAccessToken(userID uuid.UUID) (string, time.Time, error) {
	return s.sign(userID, tokenTypeAccess, s.accessTTL)
}

func (s *JWTService) IssueRefreshToken(userID uuid.UUID) (string, time.Time, error) {
	return s.sign(userID, tokenTypeRefresh, s.refreshTTL)
}

func (s *JWTService) sign(userID uuid.UUID, tokenType string, ttl time.Duration) (string, time.Time, error) {
	now := s.clock()
	expiresAt := now.Add(ttl)
	claims := &TokenClaims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, expiresAt, nil
}

func (s *JWTService) DecodeAccess(token string) (*TokenClaims, error) {
	return s.decode(token, tokenTypeAccess)
}

func (s *JWTService) DecodeRefresh(token string) (*TokenClaims, error) {
	return s.decode(token, tokenTypeRefresh)
}

func (s *JWTService) decode(tokenString, wantType string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.clock() }))
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid || claims.TokenType != wantType {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
