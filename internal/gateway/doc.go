// Package gateway exposes the session over HTTP.
//
// # HTTP API
//
// The endpoints in api.go are the whole operator surface:
//
//   - GET / - Service status summary
//   - GET /status - Session state, attempt counter, last error
//   - GET /qr - Pairing state: connected, waiting, or qr_ready with the code
//   - GET /qr-image - Rendered pairing code as raw PNG
//   - GET /health - Liveness, uptime, link flag
//   - POST /send-message - Send a text message
//   - POST /send-image - Send an image by URL with optional caption
//
// The server listens on plain TCP, or on an embedded Tailscale node when
// tailscale.enabled is set, and shuts down gracefully on context
// cancellation.
package gateway
