// Package notify defines the outbound delivery boundary for OTP codes.
// Transport reliability (SMTP, SMS gateway) is owned by the implementation,
// not by the auth core.
package notify

import (
	"context"
	"log"
	"strings"
)

// Dispatcher sends notifications to users. Fire-and-forget from the core's
// perspective; a returned error propagates as an internal failure.
type Dispatcher interface {
	SendEmail(ctx context.Context, to, subject, body string) error
	SendSMS(ctx context.Context, to, body string) error
}

// LogDispatcher is the development dispatcher: it logs deliveries with masked
// recipients and never sends anything.
type LogDispatcher struct{}

// NewLogDispatcher creates a dispatcher that only logs.
func NewLogDispatcher() *LogDispatcher {
	return &LogDispatcher{}
}

func (d *LogDispatcher) SendEmail(ctx context.Context, to, subject, body string) error {
	log.Printf("notify: email to %s subject=%q", MaskRecipient(to), subject)
	return nil
}

func (d *LogDispatcher) SendSMS(ctx context.Context, to, body string) error {
	log.Printf("notify: sms to %s", MaskRecipient(to))
	return nil
}

// MaskRecipient masks an email or phone number for logging
// (e.g. "+49******89", "us****@x.com").
func MaskRecipient(recipient string) string {
	if at := strings.Index(recipient, "@"); at > 0 {
		local := recipient[:at]
		domain := recipient[at:]
		if len(local) <= 2 {
			return "****" + domain
		}
		return local[:2] + strings.Repeat("*", len(local)-2) + domain
	}
	if len(recipient) <= 4 {
		return "****"
	}
	return recipient[:2] + strings.Repeat("*", len(recipient)-4) + recipient[len(recipient)-2:]
}
