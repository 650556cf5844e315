// ABOUTME: Protocol-layer boundary for the messaging network connection
// ABOUTME: Defines the event stream, client interface and dial function the session consumes

package waclient

import (
	"context"

	"github.com/2389/wa-gateway/internal/credstore"
)

// StatusLoggedOut is the close status the network sends when the account has
// been unlinked. A close carrying it is terminal: reconnecting with the same
// credentials can never succeed.
const StatusLoggedOut = 401

// Event is one entry in the strictly ordered stream a Client delivers.
// The stream has a single producer and must be consumed by a single task so
// credential updates are never reordered against the close that follows them.
type Event interface {
	isEvent()
}

// PairingCode carries a rotating one-time pairing challenge. The network may
// send several; each replaces the previous one.
type PairingCode struct {
	Code string
}

// Connected reports the link is open and, on a fresh pairing, which account
// and platform the session is now bound to.
type Connected struct {
	JID      string
	Platform string
}

// Closed reports the link closed. Code zero means no status was conveyed
// (network error); StatusLoggedOut means the close is terminal.
type Closed struct {
	Code   int
	Reason string
}

// CredsUpdate carries a refreshed credential record to persist.
type CredsUpdate struct {
	Creds *credstore.Credentials
}

// KeysUpdate carries a batch of key-material changes to persist. A nil blob
// is a removal marker.
type KeysUpdate struct {
	Keys credstore.KeyBatch
}

// MessageReceived is an inbound message, observed for logging only.
type MessageReceived struct {
	From    string
	Kind    string
	Preview string
}

func (PairingCode) isEvent()     {}
func (Connected) isEvent()       {}
func (Closed) isEvent()          {}
func (CredsUpdate) isEvent()     {}
func (KeysUpdate) isEvent()      {}
func (MessageReceived) isEvent() {}

// Client is one live connection to the messaging network. Events() yields the
// ordered stream and is closed after the final Closed event.
type Client interface {
	Events() <-chan Event
	SendText(ctx context.Context, to, text string) error
	SendImage(ctx context.Context, to, imageURL, caption string) error
	Close() error
}

// DialFunc opens a new connection using the given credential record. Each
// call is one connection attempt; a failed attempt returns an error without
// producing a Client.
type DialFunc func(ctx context.Context, creds *credstore.Credentials) (Client, error)
