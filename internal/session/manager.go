// ABOUTME: Session lifecycle manager owning the single connection to the messaging network
// ABOUTME: Drives the state machine, persists credential events and orchestrates bounded retries

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/wa-gateway/internal/credstore"
	"github.com/2389/wa-gateway/internal/pairing"
	"github.com/2389/wa-gateway/internal/waclient"
)

// ErrNotConnected is returned by send operations while the link is not open.
var ErrNotConnected = errors.New("not connected")

// State is the connection state of the session.
type State string

const (
	StateIdle            State = "idle"
	StateConnecting      State = "connecting"
	StateAwaitingPairing State = "awaiting_pairing"
	StateConnected       State = "connected"
	StateClosed          State = "closed"
	StateFailed          State = "failed"
)

// Status is an atomic snapshot of the session for the API boundary. All
// fields are captured under one lock so readers never see a torn update.
type Status struct {
	State          State
	Connected      bool
	PairingPending bool
	Attempts       int
	MaxAttempts    int
	LastError      string
}

// Config wires a Manager's collaborators.
type Config struct {
	Dial    waclient.DialFunc
	Store   credstore.Store
	Pairing *pairing.Cache
	Policy  RetryPolicy
	Logger  *slog.Logger
}

// Manager owns the single active session. All state mutation happens on the
// Run goroutine; concurrent readers go through Status().
type Manager struct {
	dial    waclient.DialFunc
	store   credstore.Store
	pairing *pairing.Cache
	policy  RetryPolicy
	logger  *slog.Logger

	mu        sync.RWMutex
	state     State
	attempts  int
	lastError string
	client    waclient.Client
}

// New creates a Manager in the Idle state.
func New(cfg Config) *Manager {
	return &Manager{
		dial:    cfg.Dial,
		store:   cfg.Store,
		pairing: cfg.Pairing,
		policy:  cfg.Policy,
		logger:  cfg.Logger.With("component", "session"),
		state:   StateIdle,
	}
}

// Status returns a consistent snapshot of the session state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Status{
		State:          m.state,
		Connected:      m.state == StateConnected,
		PairingPending: m.state == StateAwaitingPairing,
		Attempts:       m.attempts,
		MaxAttempts:    m.policy.MaxAttempts,
		LastError:      m.lastError,
	}
}

// closeResult is the outcome of one fully resolved connection attempt.
type closeResult struct {
	code   int
	reason string
}

func (r closeResult) terminal() bool {
	return r.code == waclient.StatusLoggedOut
}

// Run drives the connect/consume/retry loop until the context is canceled,
// a terminal close arrives, or the retry budget is exhausted. Attempts are
// strictly sequential: a new dial only starts after the previous attempt has
// fully resolved.
func (m *Manager) Run(ctx context.Context) error {
	creds, err := credstore.LoadCredentials(ctx, m.store, m.logger)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		m.transition(StateConnecting, "")
		m.logger.Info("connecting to messaging network")

		client, err := m.dial(ctx, creds)
		if err != nil {
			// A dial failure is a retryable disconnect that never opened
			m.logger.Error("connection attempt failed", "error", err)
			if !m.backoff(ctx, err.Error()) {
				return nil
			}
			continue
		}

		result := m.consume(ctx, client, creds)
		_ = client.Close()

		if result.terminal() {
			m.logger.Error("logged out by the network, not retrying",
				"code", result.code,
				"reason", result.reason,
			)
			m.transition(StateFailed, fmt.Sprintf("logged out: %s", result.reason))
			return nil
		}

		reason := fmt.Sprintf("connection closed: %s (%d)", result.reason, result.code)
		m.logger.Warn("connection closed", "code", result.code, "reason", result.reason)
		if !m.backoff(ctx, reason) {
			return nil
		}
	}
}

// consume processes the event stream of one connection in arrival order until
// it closes. Credential events are persisted inline on this goroutine, so a
// close can never overtake a credential write it follows.
func (m *Manager) consume(ctx context.Context, client waclient.Client, creds *credstore.Credentials) closeResult {
	m.setClient(client)
	defer m.setClient(nil)

	// Cancellation does not abort the attempt directly; it closes the
	// client, which resolves the attempt through its own Closed event.
	stop := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})
	defer stop()

	for evt := range client.Events() {
		switch e := evt.(type) {
		case waclient.PairingCode:
			m.logger.Info("pairing challenge received")
			m.pairing.Set(e.Code)
			m.transition(StateAwaitingPairing, "")

		case waclient.Connected:
			m.logger.Info("connected", "jid", e.JID, "platform", e.Platform)
			m.pairing.Clear()
			m.markConnected()
			if e.JID != "" && (creds.JID != e.JID || !creds.Registered) {
				creds.JID = e.JID
				creds.Platform = e.Platform
				creds.Registered = true
				credstore.SaveCredentials(ctx, m.store, creds, m.logger)
			}

		case waclient.CredsUpdate:
			if e.Creds != nil {
				*creds = *e.Creds
				credstore.SaveCredentials(ctx, m.store, creds, m.logger)
			}

		case waclient.KeysUpdate:
			credstore.Apply(ctx, m.store, e.Keys, m.logger)

		case waclient.MessageReceived:
			// Observed for telemetry only; no automation hangs off content
			m.logger.Info("message received",
				"from", e.From,
				"kind", e.Kind,
				"preview", e.Preview,
			)

		case waclient.Closed:
			m.pairing.Clear()
			m.transition(StateClosed, "")
			return closeResult{code: e.Code, reason: e.Reason}
		}
	}

	// Stream ended without a Closed event; treat as a retryable drop
	m.pairing.Clear()
	m.transition(StateClosed, "")
	return closeResult{reason: "event stream ended"}
}

// backoff counts a retryable failure and waits out the retry delay. It
// returns false when the budget is exhausted or the context is canceled.
// The wait runs on the Run goroutine; API reads stay responsive throughout.
func (m *Manager) backoff(ctx context.Context, reason string) bool {
	m.mu.Lock()
	m.attempts++
	m.lastError = reason
	attempts := m.attempts
	m.mu.Unlock()

	decision := m.policy.Next(attempts)
	if !decision.Retry {
		m.mu.Lock()
		m.state = StateFailed
		m.attempts = 0
		m.lastError = "max reconnect attempts reached"
		m.mu.Unlock()
		m.logger.Error("max reconnect attempts reached, giving up",
			"max_attempts", m.policy.MaxAttempts,
		)
		return false
	}

	m.logger.Info("scheduling reconnect",
		"attempt", attempts,
		"max_attempts", m.policy.MaxAttempts,
		"delay", decision.Delay,
	)

	timer := time.NewTimer(decision.Delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// SendText dispatches a text message and returns the normalized address it
// was sent to.
func (m *Manager) SendText(ctx context.Context, recipient, text string) (string, error) {
	client, err := m.connectedClient()
	if err != nil {
		return "", err
	}

	to := waclient.NormalizeJID(recipient)
	if err := client.SendText(ctx, to, text); err != nil {
		return "", fmt.Errorf("sending message: %w", err)
	}
	return to, nil
}

// SendImage dispatches an image message and returns the normalized address
// it was sent to.
func (m *Manager) SendImage(ctx context.Context, recipient, imageURL, caption string) (string, error) {
	client, err := m.connectedClient()
	if err != nil {
		return "", err
	}

	to := waclient.NormalizeJID(recipient)
	if err := client.SendImage(ctx, to, imageURL, caption); err != nil {
		return "", fmt.Errorf("sending image: %w", err)
	}
	return to, nil
}

// connectedClient returns the live client, or ErrNotConnected.
func (m *Manager) connectedClient() (waclient.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state != StateConnected || m.client == nil {
		return nil, ErrNotConnected
	}
	return m.client, nil
}

// transition moves the state machine, optionally recording an error message.
func (m *Manager) transition(state State, lastError string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = state
	if lastError != "" {
		m.lastError = lastError
	}
}

// markConnected applies the success effects in one critical section:
// Connected state, attempt counter reset, error cleared.
func (m *Manager) markConnected() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = StateConnected
	m.attempts = 0
	m.lastError = ""
}

func (m *Manager) setClient(client waclient.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.client = client
}
