package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	mrand "math/rand"
	"time"

	"github.com/identra/server/internal/notify"
	"github.com/identra/server/internal/repo"
)

const (
	otpLength           = 6
	otpExpiry           = 5 * time.Minute
	exchangeTokenExpiry = 10 * time.Minute
	exchangeTokenBytes  = 32
)

// OTPEngine issues and verifies OTP challenges and mints exchange tokens.
// Codes are stored as salted hashes; possession of the delivery channel plus
// the expiry window is the actual proof, so math/rand suffices for the code
// while the exchange token uses crypto/rand.
type OTPEngine struct {
	verifications repo.VerificationRepo
	dispatcher    notify.Dispatcher
	salt          string
	clock         Clock
	devMode       bool
}

// NewOTPEngine creates an OTP engine. In dev mode the issue operations
// return the generated code so local clients can complete the flow without a
// delivery channel.
func NewOTPEngine(verifications repo.VerificationRepo, dispatcher notify.Dispatcher, salt string, clock Clock, devMode bool) *OTPEngine {
	if clock == nil {
		clock = SystemClock
	}
	return &OTPEngine{
		verifications: verifications,
		dispatcher:    dispatcher,
		salt:          salt,
		clock:         clock,
		devMode:       devMode,
	}
}

// IssueEmail generates a fresh challenge for the email, overwriting any
// pending one, and dispatches the code. The returned code is empty outside
// dev mode; the caller never relays it otherwise.
func (e *OTPEngine) IssueEmail(ctx context.Context, email string) (string, error) {
	code := generateOTPCode()
	expiry := e.clock().Add(otpExpiry)
	if _, err := e.verifications.UpsertByEmail(ctx, email, hashOTPHex(email, code, e.salt), expiry); err != nil {
		return "", fmt.Errorf("upsert email challenge: %w", err)
	}
	if err := e.dispatcher.SendEmail(ctx, email, "Your OTP for Email Verification", fmt.Sprintf("Your OTP is %s", code)); err != nil {
		return "", fmt.Errorf("send otp email: %w", err)
	}
	if e.devMode {
		return code, nil
	}
	return "", nil
}

// IssuePhone generates a fresh challenge for the phone number, overwriting
// any pending one, and dispatches the code by SMS.
func (e *OTPEngine) IssuePhone(ctx context.Context, phone string) (string, error) {
	code := generateOTPCode()
	expiry := e.clock().Add(otpExpiry)
	if _, err := e.verifications.UpsertByPhone(ctx, phone, hashOTPHex(phone, code, e.salt), expiry); err != nil {
		return "", fmt.Errorf("upsert phone challenge: %w", err)
	}
	if err := e.dispatcher.SendSMS(ctx, phone, fmt.Sprintf("Your OTP is %s", code)); err != nil {
		return "", fmt.Errorf("send otp sms: %w", err)
	}
	if e.devMode {
		return code, nil
	}
	return "", nil
}

// Verify checks the code against the challenge for exactly one of
// email/phone and, on success, marks it verified and returns a fresh
// single-use exchange token valid for ten minutes.
func (e *OTPEngine) Verify(ctx context.Context, code, email, phone string) (string, error) {
	if (email == "") == (phone == "") {
		return "", ErrInvalidRequest
	}

	identifier := email
	lookup := e.verifications.GetByEmail
	if phone != "" {
		identifier = phone
		lookup = e.verifications.GetByPhone
	}

	verification, err := lookup(ctx, identifier)
	if err != nil {
		if err == repo.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("lookup challenge: %w", err)
	}

	provided := hashOTPBytes(identifier, code, e.salt)
	if subtle.ConstantTimeCompare(provided, verification.OTPHash) != 1 {
		return "", ErrInvalidOrExpired
	}
	if !verification.OTPExpiry.After(e.clock()) {
		return "", ErrInvalidOrExpired
	}

	token, err := generateExchangeToken()
	if err != nil {
		return "", fmt.Errorf("generate exchange token: %w", err)
	}
	if err := e.verifications.MarkVerified(ctx, verification.ID, token, e.clock().Add(exchangeTokenExpiry)); err != nil {
		return "", fmt.Errorf("store exchange token: %w", err)
	}
	return token, nil
}

// generateOTPCode returns a random code in 100000-999999, matching the
// range the rest of the system documents.
func generateOTPCode() string {
	return fmt.Sprintf("%0*d", otpLength, mrand.Intn(900000)+100000)
}

// generateExchangeToken returns a random Base64URL token (32 bytes).
func generateExchangeToken() (string, error) {
	b := make([]byte, exchangeTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// hashOTPHex returns SHA-256(identifier:code:salt) as hex for DB storage
func hashOTPHex(identifier, code, salt string) string {
	return hex.EncodeToString(hashOTPBytes(identifier, code, salt))
}

func hashOTPBytes(identifier, code, salt string) []byte {
	hash := sha256.Sum256([]byte(identifier + ":" + code + ":" + salt))
	return hash[:]
}
