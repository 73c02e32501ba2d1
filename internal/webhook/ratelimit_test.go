package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemoryRateLimiter_EleventhRequestDenied(t *testing.T) {
	l := NewMemoryRateLimiter(10, time.Minute)

	for i := 0; i < 10; i++ {
		res := l.Check("1.2.3.4")
		assert.True(t, res.Allowed, "request %d should be allowed", i+1)
	}

	res := l.Check("1.2.3.4")
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
}

func TestMemoryRateLimiter_WindowReset(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryRateLimiter(10, time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 11; i++ {
		l.Check("1.2.3.4")
	}
	assert.False(t, l.Check("1.2.3.4").Allowed)

	// Window elapses; the counter starts fresh.
	now = now.Add(61 * time.Second)
	res := l.Check("1.2.3.4")
	assert.True(t, res.Allowed)
	assert.Equal(t, 9, res.Remaining)
}

func TestMemoryRateLimiter_KeysAreIndependent(t *testing.T) {
	l := NewMemoryRateLimiter(10, time.Minute)

	for i := 0; i < 11; i++ {
		l.Check("1.2.3.4")
	}
	assert.False(t, l.Check("1.2.3.4").Allowed)
	assert.True(t, l.Check("5.6.7.8").Allowed)
}

func TestMemoryRateLimiter_Prune(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryRateLimiter(10, time.Minute)
	l.now = func() time.Time { return now }

	l.Check("1.2.3.4")
	l.Check("5.6.7.8")
	assert.Len(t, l.windows, 2)

	now = now.Add(2 * time.Minute)
	l.Prune()
	assert.Empty(t, l.windows)
}
