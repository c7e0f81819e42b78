package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_allowWithinLimit(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("ip:1.2.3.4"), "request %d should pass", i+1)
	}
	assert.False(t, rl.Allow("ip:1.2.3.4"), "request over the limit should be denied")
}

func TestRateLimiter_keysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(time.Minute, 1)

	assert.True(t, rl.Allow("ip:1.1.1.1"))
	assert.False(t, rl.Allow("ip:1.1.1.1"))
	assert.True(t, rl.Allow("ip:2.2.2.2"))
}

func TestRateLimiter_windowSlides(t *testing.T) {
	rl := NewRateLimiter(10*time.Millisecond, 1)

	assert.True(t, rl.Allow("ip:1.1.1.1"))
	assert.False(t, rl.Allow("ip:1.1.1.1"))
	time.Sleep(15 * time.Millisecond)
	assert.True(t, rl.Allow("ip:1.1.1.1"))
}

func TestIPKey(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "ip:10.0.0.1:1234", IPKey(r))

	r.Header.Set("X-Forwarded-For", "3.3.3.3, 10.0.0.1")
	assert.Equal(t, "ip:3.3.3.3", IPKey(r))
}
