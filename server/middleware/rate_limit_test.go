package middleware

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(rate.Limit(1), 2)

	require.True(t, rl.Allow("user-1"))
	require.True(t, rl.Allow("user-1"))
	// Burst exhausted.
	require.False(t, rl.Allow("user-1"))

	// Keys are independent.
	require.True(t, rl.Allow("user-2"))
}
