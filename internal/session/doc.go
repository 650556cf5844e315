// Package session owns the single live connection to the messaging network.
//
// # State machine
//
// The Manager drives one session through
//
//	Idle → Connecting → {AwaitingPairing | Connected} → Closed
//
// with Closed resolving to another Connecting attempt (retryable close,
// bounded by RetryPolicy) or to a terminal Failed state (logged-out close,
// or retry budget exhausted). All mutation happens on the Run goroutine;
// the API boundary reads through Status(), an atomic snapshot taken under
// one lock so no torn state is ever observed.
//
// # Ordering
//
// Protocol events arrive on a single channel and are processed in arrival
// order. Credential updates are persisted inline before the next event is
// touched, so a close can never be acted on ahead of a credential write
// that preceded it.
package session
