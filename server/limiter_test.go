package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterBurstThenDeny(t *testing.T) {
	rl := NewRateLimiter()

	for i := 0; i < sendRateBurst; i++ {
		assert.True(t, rl.Allow("user-1"), "request %d within burst", i)
	}
	assert.False(t, rl.Allow("user-1"))

	// Keys are independent buckets.
	assert.True(t, rl.Allow("user-2"))
}
