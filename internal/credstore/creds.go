// ABOUTME: Credential record holding the identity material needed to resume a session
// ABOUTME: Synthesizes and persists a fresh default record when none exists yet

package credstore

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/curve25519"
)

const (
	credsCategory = "creds"
	credsID       = "me"
)

// KeyPair is a curve25519 key pair. Byte slices marshal as base64 in JSON, so
// the record round-trips through any backend with full fidelity.
type KeyPair struct {
	Public  []byte `json:"public"`
	Private []byte `json:"private"`
}

// Credentials is the durable identity and registration state required to
// resume a session without re-pairing. It is stored under the "creds:me"
// composite key.
type Credentials struct {
	NoiseKey          KeyPair `json:"noiseKey"`
	SignedIdentityKey KeyPair `json:"signedIdentityKey"`
	AdvSecretKey      []byte  `json:"advSecretKey"`
	RegistrationID    uint32  `json:"registrationId"`

	// Filled in after a successful pairing
	JID        string `json:"jid,omitempty"`
	Platform   string `json:"platform,omitempty"`
	Registered bool   `json:"registered"`
}

// newKeyPair generates a curve25519 key pair from crypto/rand.
func newKeyPair() (KeyPair, error) {
	private := make([]byte, curve25519.ScalarSize)
	if _, err := rand.Read(private); err != nil {
		return KeyPair{}, fmt.Errorf("generating private key: %w", err)
	}

	public, err := curve25519.X25519(private, curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, fmt.Errorf("deriving public key: %w", err)
	}

	return KeyPair{Public: public, Private: private}, nil
}

// NewCredentials synthesizes a fresh unregistered credential record.
func NewCredentials() (*Credentials, error) {
	noise, err := newKeyPair()
	if err != nil {
		return nil, err
	}

	identity, err := newKeyPair()
	if err != nil {
		return nil, err
	}

	advSecret := make([]byte, 32)
	if _, err := rand.Read(advSecret); err != nil {
		return nil, fmt.Errorf("generating adv secret: %w", err)
	}

	var regBytes [4]byte
	if _, err := rand.Read(regBytes[:]); err != nil {
		return nil, fmt.Errorf("generating registration id: %w", err)
	}
	// Registration ids are 14-bit values, never zero
	regID := binary.BigEndian.Uint32(regBytes[:])%16380 + 1

	return &Credentials{
		NoiseKey:          noise,
		SignedIdentityKey: identity,
		AdvSecretKey:      advSecret,
		RegistrationID:    regID,
	}, nil
}

// LoadCredentials reads the credential record, synthesizing and persisting a
// default exactly once when none exists. A read failure is treated as absence:
// logged, then replaced by a fresh record. Connecting with fresh credentials
// just forces a new pairing, which beats refusing to start.
func LoadCredentials(ctx context.Context, store Store, logger *slog.Logger) (*Credentials, error) {
	blob, err := store.GetBlob(ctx, credsCategory, credsID)
	if err == nil {
		var creds Credentials
		jsonErr := json.Unmarshal(blob, &creds)
		if jsonErr == nil {
			return &creds, nil
		}
		logger.Error("stored credentials are unreadable, starting fresh", "error", jsonErr)
	} else if !errors.Is(err, ErrNotFound) {
		logger.Error("reading credentials failed, starting fresh", "error", err)
	}

	creds, err := NewCredentials()
	if err != nil {
		return nil, fmt.Errorf("synthesizing credentials: %w", err)
	}

	SaveCredentials(ctx, store, creds, logger)
	return creds, nil
}

// SaveCredentials persists the credential record. Write failures are logged
// and dropped: the in-memory session continues without persistence
// confirmation.
func SaveCredentials(ctx context.Context, store Store, creds *Credentials, logger *slog.Logger) {
	blob, err := json.Marshal(creds)
	if err != nil {
		logger.Error("marshaling credentials failed, update dropped", "error", err)
		return
	}

	if err := store.PutBlob(ctx, credsCategory, credsID, blob); err != nil {
		logger.Error("persisting credentials failed, update dropped", "error", err)
	}
}
