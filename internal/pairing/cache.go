// ABOUTME: Single-slot cache for the current pairing challenge and its rendered QR image
// ABOUTME: A new challenge replaces the old one; leaving the pairing state clears the slot

package pairing

import (
	"encoding/base64"
	"log/slog"
	"sync"
	"time"

	qrcode "github.com/skip2/go-qrcode"
)

// qrSize is the rendered QR image edge length in pixels.
const qrSize = 256

// Challenge is one pairing challenge and its rendered form. PNG is nil when
// rendering failed; the raw code is kept so a later rotation can still render.
type Challenge struct {
	Raw string
	PNG []byte
	At  time.Time
}

// DataURL returns the rendered image as a data URL, empty when no render
// exists.
func (c Challenge) DataURL() string {
	if len(c.PNG) == 0 {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(c.PNG)
}

// Cache holds at most one pairing challenge at a time.
type Cache struct {
	mu      sync.RWMutex
	current *Challenge
	logger  *slog.Logger
}

// New creates an empty pairing cache.
func New(logger *slog.Logger) *Cache {
	return &Cache{
		logger: logger.With("component", "pairing"),
	}
}

// Set stores a new challenge, replacing any prior one, and renders it to a
// QR PNG. Render failures are logged; the raw challenge is kept regardless.
func (c *Cache) Set(raw string) {
	png, err := qrcode.Encode(raw, qrcode.Medium, qrSize)
	if err != nil {
		c.logger.Error("rendering pairing code failed", "error", err)
		png = nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = &Challenge{Raw: raw, PNG: png, At: time.Now()}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
}

// Current returns the cached challenge, if any.
func (c *Cache) Current() (Challenge, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.current == nil {
		return Challenge{}, false
	}
	return *c.current, true
}
