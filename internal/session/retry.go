// ABOUTME: Bounded fixed-delay retry policy for reconnection decisions
// ABOUTME: Stateless: the manager owns the attempt counter, the policy only judges it

package session

import "time"

// RetryPolicy bounds reconnection attempts. The delay is fixed, not
// exponential: the network rate-limits handshakes anyway, and a predictable
// cadence is easier to reason about from the status endpoint.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// Decision is the outcome of consulting the policy after a retryable failure.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Next judges the attempt count as it stands after the failure was counted.
// Counts below MaxAttempts get one more attempt after the fixed delay;
// anything else is give-up.
func (p RetryPolicy) Next(attempts int) Decision {
	if attempts < p.MaxAttempts {
		return Decision{Retry: true, Delay: p.Delay}
	}
	return Decision{}
}
