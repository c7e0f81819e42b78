package auth

import "time"

// Clock supplies the current time. Injected so expiry logic is deterministic
// under test.
type Clock func() time.Time

// SystemClock is the production clock.
func SystemClock() time.Time {
	return time.Now().UTC()
}
