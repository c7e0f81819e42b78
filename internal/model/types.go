package model

import (
	"time"

	"github.com/google/uuid"
)

// LoginMethod tags how a session was opened.
type LoginMethod int16

const (
	LoginMethodRegular LoginMethod = 1
	LoginMethodGoogle  LoginMethod = 2
)

// String returns the display name of the login method.
func (m LoginMethod) String() string {
	switch m {
	case LoginMethodRegular:
		return "REGULAR"
	case LoginMethodGoogle:
		return "GOOGLE"
	default:
		return "UNKNOWN"
	}
}

// User represents a registered account. Exactly one of Email/Phone is set at
// registration time; both columns are nullable-unique in storage.
type User struct {
	ID             uuid.UUID
	Email          *string
	Phone          *string
	PasswordHash   string
	FirstName      string
	LastName       string
	IsActive       bool
	IsStaff        bool
	IsSuperuser    bool
	ProfilePicture *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// Identifier returns the user's email if present, else phone.
func (u User) Identifier() string {
	if u.Email != nil {
		return *u.Email
	}
	if u.Phone != nil {
		return *u.Phone
	}
	return ""
}

// Verification is a pre-registration OTP challenge keyed by raw email or
// phone. It has no foreign key to users; correlation is by string equality.
type Verification struct {
	ID                  uuid.UUID
	Email               *string
	Phone               *string
	OTPHash             []byte
	OTPExpiry           time.Time
	IsVerified          bool
	ExchangeToken       *string
	ExchangeTokenExpiry *time.Time
}

// Identifier returns the challenge's email if present, else phone.
func (v Verification) Identifier() string {
	if v.Email != nil {
		return *v.Email
	}
	if v.Phone != nil {
		return *v.Phone
	}
	return ""
}

// Session records one authenticated login. Rows are never deleted; they are
// the source for recent-activity analytics.
type Session struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	StartTime     time.Time
	EndTime       time.Time
	LoginMethod   LoginMethod
	RemoteAddress *string
	BrowserInfo   *string
	IPAddress     *string
	OSInfo        *string
	Timezone      *string
	Location      *string
	DeviceID      *string
}

// DeviceMetadata carries the optional per-login client details recorded on a
// session row. All fields may be nil.
type DeviceMetadata struct {
	RemoteAddress *string
	BrowserInfo   *string
	IPAddress     *string
	OSInfo        *string
	Timezone      *string
	Location      *string
	DeviceID      *string
}
