// ABOUTME: Tests for the session lifecycle state machine.
// ABOUTME: Drives scripted connections through pairing, retry, terminal close and send paths.

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/wa-gateway/internal/credstore"
	"github.com/2389/wa-gateway/internal/pairing"
	"github.com/2389/wa-gateway/internal/waclient"
)

// fakeClient is a scripted protocol connection.
type fakeClient struct {
	events    chan waclient.Event
	closeOnce sync.Once

	mu        sync.Mutex
	sentTo    []string
	sentTexts []string
	sendErr   error
}

func newFakeClient() *fakeClient {
	return &fakeClient{events: make(chan waclient.Event, 16)}
}

func (f *fakeClient) Events() <-chan waclient.Event { return f.events }

func (f *fakeClient) emit(evt waclient.Event) { f.events <- evt }

// finish delivers the final Closed event and ends the stream.
func (f *fakeClient) finish(code int, reason string) {
	f.closeOnce.Do(func() {
		f.events <- waclient.Closed{Code: code, Reason: reason}
		close(f.events)
	})
}

func (f *fakeClient) SendText(_ context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sentTo = append(f.sentTo, to)
	f.sentTexts = append(f.sentTexts, text)
	return nil
}

func (f *fakeClient) SendImage(_ context.Context, to, imageURL, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sentTo = append(f.sentTo, to)
	f.sentTexts = append(f.sentTexts, imageURL)
	return nil
}

func (f *fakeClient) Close() error {
	f.finish(0, "closed by client")
	return nil
}

func (f *fakeClient) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sentTo...)
}

// dialOutcome scripts one connection attempt.
type dialOutcome struct {
	client *fakeClient
	err    error
}

// fakeDialer pops one scripted outcome per dial and counts attempts.
type fakeDialer struct {
	mu       sync.Mutex
	outcomes []dialOutcome
	dials    int
}

func (d *fakeDialer) dial(context.Context, *credstore.Credentials) (waclient.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	if len(d.outcomes) == 0 {
		return nil, errors.New("no scripted connection left")
	}

	next := d.outcomes[0]
	d.outcomes = d.outcomes[1:]
	if next.err != nil {
		return nil, next.err
	}
	return next.client, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type harness struct {
	manager *Manager
	dialer  *fakeDialer
	cache   *pairing.Cache
	store   credstore.Store
	done    chan error
	cancel  context.CancelFunc
}

func startManager(t *testing.T, policy RetryPolicy, outcomes ...dialOutcome) *harness {
	t.Helper()

	store, err := credstore.NewFileStore(t.TempDir())
	require.NoError(t, err)

	dialer := &fakeDialer{outcomes: outcomes}
	cache := pairing.New(slog.Default())

	m := New(Config{
		Dial:    dialer.dial,
		Store:   store,
		Pairing: cache,
		Policy:  policy,
		Logger:  slog.Default(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	h := &harness{manager: m, dialer: dialer, cache: cache, store: store, done: done, cancel: cancel}
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("manager did not stop")
		}
	})
	return h
}

func (h *harness) waitStopped(t *testing.T) {
	t.Helper()
	select {
	case err := <-h.done:
		require.NoError(t, err)
		h.done <- err // keep the cleanup drain working
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop")
	}
}

func waitForState(t *testing.T, m *Manager, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return m.Status().State == want
	}, 5*time.Second, 5*time.Millisecond, "never reached state %s", want)
}

func quickPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, Delay: time.Millisecond}
}

func TestManager_PairingChallengeReplacesCached(t *testing.T) {
	client := newFakeClient()
	h := startManager(t, quickPolicy(5), dialOutcome{client: client})

	client.emit(waclient.PairingCode{Code: "challenge-one"})
	waitForState(t, h.manager, StateAwaitingPairing)

	client.emit(waclient.PairingCode{Code: "challenge-two"})
	require.Eventually(t, func() bool {
		ch, ok := h.cache.Current()
		return ok && ch.Raw == "challenge-two"
	}, 5*time.Second, 5*time.Millisecond)

	status := h.manager.Status()
	assert.True(t, status.PairingPending)
	assert.False(t, status.Connected)
}

func TestManager_ConnectedClearsPairingAndResets(t *testing.T) {
	client := newFakeClient()
	h := startManager(t, quickPolicy(5), dialOutcome{client: client})

	client.emit(waclient.PairingCode{Code: "challenge"})
	waitForState(t, h.manager, StateAwaitingPairing)

	client.emit(waclient.Connected{JID: "5691234@s.whatsapp.net", Platform: "android"})
	waitForState(t, h.manager, StateConnected)

	_, ok := h.cache.Current()
	assert.False(t, ok, "pairing cache must clear on connect")

	status := h.manager.Status()
	assert.True(t, status.Connected)
	assert.Zero(t, status.Attempts)
	assert.Empty(t, status.LastError)
}

func TestManager_TerminalCloseStopsRetrying(t *testing.T) {
	client := newFakeClient()
	h := startManager(t, quickPolicy(5), dialOutcome{client: client})

	client.emit(waclient.PairingCode{Code: "challenge"})
	waitForState(t, h.manager, StateAwaitingPairing)

	client.finish(waclient.StatusLoggedOut, "logged out")
	h.waitStopped(t)

	status := h.manager.Status()
	assert.Equal(t, StateFailed, status.State)
	assert.Contains(t, status.LastError, "logged out")

	_, ok := h.cache.Current()
	assert.False(t, ok, "pairing cache must clear on terminal close")
	assert.Equal(t, 1, h.dialer.dialCount(), "no retry after a terminal close")
}

func TestManager_RetryableCloseReconnects(t *testing.T) {
	first := newFakeClient()
	second := newFakeClient()
	h := startManager(t, quickPolicy(5),
		dialOutcome{client: first},
		dialOutcome{client: second},
	)

	first.finish(428, "connection lost")

	second.emit(waclient.Connected{JID: "5691234@s.whatsapp.net"})
	waitForState(t, h.manager, StateConnected)

	assert.Equal(t, 2, h.dialer.dialCount())
	status := h.manager.Status()
	assert.Zero(t, status.Attempts, "success resets the attempt counter")
	assert.Empty(t, status.LastError)
}

func TestManager_GiveUpAfterMaxAttempts(t *testing.T) {
	outcomes := make([]dialOutcome, 5)
	for i := range outcomes {
		client := newFakeClient()
		client.finish(428, fmt.Sprintf("drop %d", i+1))
		outcomes[i] = dialOutcome{client: client}
	}
	h := startManager(t, quickPolicy(5), outcomes...)

	h.waitStopped(t)

	status := h.manager.Status()
	assert.Equal(t, StateFailed, status.State)
	assert.Zero(t, status.Attempts, "counter resets on give-up")
	assert.Equal(t, "max reconnect attempts reached", status.LastError)
	assert.Equal(t, 5, h.dialer.dialCount(), "no sixth attempt after five retryable closes")
}

func TestManager_DialErrorCountsAsRetryable(t *testing.T) {
	h := startManager(t, quickPolicy(2),
		dialOutcome{err: errors.New("handshake refused")},
		dialOutcome{err: errors.New("handshake refused")},
	)

	h.waitStopped(t)

	status := h.manager.Status()
	assert.Equal(t, StateFailed, status.State)
	assert.Equal(t, 2, h.dialer.dialCount())
}

func TestManager_CredentialEventsPersisted(t *testing.T) {
	client := newFakeClient()
	h := startManager(t, quickPolicy(5), dialOutcome{client: client})

	updated, err := credstore.NewCredentials()
	require.NoError(t, err)
	updated.JID = "5699999@s.whatsapp.net"
	updated.Registered = true

	client.emit(waclient.CredsUpdate{Creds: updated})
	client.emit(waclient.KeysUpdate{Keys: credstore.KeyBatch{
		"pre-key": {"7": []byte("material")},
	}})
	client.emit(waclient.KeysUpdate{Keys: credstore.KeyBatch{
		"pre-key": {"7": nil},
	}})
	client.finish(waclient.StatusLoggedOut, "logged out")
	h.waitStopped(t)

	ctx := context.Background()
	blob, err := h.store.GetBlob(ctx, "creds", "me")
	require.NoError(t, err)

	var stored credstore.Credentials
	require.NoError(t, json.Unmarshal(blob, &stored))
	assert.Equal(t, "5699999@s.whatsapp.net", stored.JID)

	_, err = h.store.GetBlob(ctx, "pre-key", "7")
	assert.ErrorIs(t, err, credstore.ErrNotFound, "removal marker must delete the key")
}

func TestManager_SendTextWhileNotConnected(t *testing.T) {
	client := newFakeClient()
	h := startManager(t, quickPolicy(5), dialOutcome{client: client})

	client.emit(waclient.PairingCode{Code: "challenge"})
	waitForState(t, h.manager, StateAwaitingPairing)

	_, err := h.manager.SendText(context.Background(), "5691234", "hola")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, client.sent(), "nothing may be dispatched while not connected")
}

func TestManager_SendTextNormalizesRecipient(t *testing.T) {
	client := newFakeClient()
	h := startManager(t, quickPolicy(5), dialOutcome{client: client})

	client.emit(waclient.Connected{JID: "5691234@s.whatsapp.net"})
	waitForState(t, h.manager, StateConnected)

	to, err := h.manager.SendText(context.Background(), "5691234", "hola")
	require.NoError(t, err)
	assert.Equal(t, "5691234@s.whatsapp.net", to)
	assert.Equal(t, []string{"5691234@s.whatsapp.net"}, client.sent())
}

func TestManager_SendImagePassesThroughFullAddress(t *testing.T) {
	client := newFakeClient()
	h := startManager(t, quickPolicy(5), dialOutcome{client: client})

	client.emit(waclient.Connected{JID: "5691234@s.whatsapp.net"})
	waitForState(t, h.manager, StateConnected)

	to, err := h.manager.SendImage(context.Background(), "1234-5678@g.us", "https://example.com/cat.png", "gato")
	require.NoError(t, err)
	assert.Equal(t, "1234-5678@g.us", to)
}
