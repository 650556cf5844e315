// ABOUTME: Tests for the bounded fixed-delay retry policy.
// ABOUTME: Attempt counts below the bound retry after the fixed delay; the rest give up.

package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Next(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, Delay: 5 * time.Second}

	tests := []struct {
		name     string
		attempts int
		want     Decision
	}{
		{"first failure", 1, Decision{Retry: true, Delay: 5 * time.Second}},
		{"last allowed failure", 4, Decision{Retry: true, Delay: 5 * time.Second}},
		{"bound reached", 5, Decision{}},
		{"beyond the bound", 6, Decision{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.Next(tt.attempts))
		})
	}
}

func TestRetryPolicy_DelayIsFixed(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 10, Delay: 3 * time.Second}

	for attempts := 1; attempts < 10; attempts++ {
		assert.Equal(t, 3*time.Second, policy.Next(attempts).Delay, "attempt %d", attempts)
	}
}
