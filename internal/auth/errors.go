package auth

import "errors"

// Error taxonomy surfaced by the auth core. The HTTP layer maps these to
// status codes; everything else is treated as an internal error.
var (
	// ErrInvalidRequest covers contradictory input shapes: both or neither
	// of email/phone supplied.
	ErrInvalidRequest = errors.New("either email or phone must be provided, not both")

	// ErrPasswordMismatch means password and confirm_password differ.
	ErrPasswordMismatch = errors.New("password and confirm password do not match")

	// ErrInvalidCredentials is returned for both unknown identifiers and
	// wrong passwords. Deliberately undifferentiated.
	ErrInvalidCredentials = errors.New("invalid login credentials")

	// ErrNotFound means no verification challenge exists for the identifier.
	ErrNotFound = errors.New("verification record not found")

	// ErrInvalidOrExpired means the OTP failed the code or expiry check.
	ErrInvalidOrExpired = errors.New("invalid or expired OTP")

	// ErrInvalidOrExpiredToken means the exchange token failed the equality
	// or expiry check during registration.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")

	// ErrInvalidToken means an access or refresh token failed signature or
	// expiry validation.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrPermissionDenied means the caller is authenticated but lacks the
	// required capability.
	ErrPermissionDenied = errors.New("permission denied")
)
