// ABOUTME: WebSocket implementation of the protocol Client against a relay endpoint
// ABOUTME: Decodes JSON frames into the ordered event stream and serializes outbound sends

package waclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/2389/wa-gateway/internal/credstore"
)

// Config holds the relay connection settings.
type Config struct {
	URL        string
	ClientName string
}

// inboundFrame is the union of all relay-to-gateway frame shapes.
type inboundFrame struct {
	Type     string                 `json:"type"`
	Code     string                 `json:"code,omitempty"`
	JID      string                 `json:"jid,omitempty"`
	Platform string                 `json:"platform,omitempty"`
	Status   int                    `json:"status,omitempty"`
	Reason   string                 `json:"reason,omitempty"`
	Creds    *credstore.Credentials `json:"creds,omitempty"`
	Keys     credstore.KeyBatch     `json:"keys,omitempty"`
	From     string                 `json:"from,omitempty"`
	Kind     string                 `json:"kind,omitempty"`
	Preview  string                 `json:"preview,omitempty"`
}

// outboundFrame is the union of all gateway-to-relay frame shapes.
type outboundFrame struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	// send frames
	To       string `json:"to,omitempty"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Caption  string `json:"caption,omitempty"`

	// hello frame
	ClientName     string `json:"client_name,omitempty"`
	RegistrationID uint32 `json:"registration_id,omitempty"`
	IdentityKey    []byte `json:"identity_key,omitempty"`
	JID            string `json:"jid,omitempty"`
}

// wsClient implements Client over a single relay WebSocket.
type wsClient struct {
	conn   *websocket.Conn
	events chan Event
	logger *slog.Logger

	// writeMu serializes outbound frames; the websocket allows one writer
	writeMu sync.Mutex
}

// NewDialer returns a DialFunc connecting to the configured relay endpoint.
func NewDialer(cfg Config, logger *slog.Logger) DialFunc {
	return func(ctx context.Context, creds *credstore.Credentials) (Client, error) {
		if cfg.URL == "" {
			return nil, errors.New("network.url is not configured")
		}

		conn, _, err := websocket.Dial(ctx, cfg.URL, nil)
		if err != nil {
			return nil, fmt.Errorf("dialing relay: %w", err)
		}

		c := &wsClient{
			conn:   conn,
			events: make(chan Event, 32),
			logger: logger.With("component", "waclient"),
		}

		// Identify this session before any other traffic
		hello := outboundFrame{
			Type:           "hello",
			ClientName:     cfg.ClientName,
			RegistrationID: creds.RegistrationID,
			IdentityKey:    creds.SignedIdentityKey.Public,
			JID:            creds.JID,
		}
		if err := c.write(ctx, hello); err != nil {
			conn.Close(websocket.StatusInternalError, "hello failed")
			return nil, fmt.Errorf("sending hello: %w", err)
		}

		go c.readLoop()
		return c, nil
	}
}

// Events returns the ordered event stream. The channel is closed after the
// final Closed event.
func (c *wsClient) Events() <-chan Event {
	return c.events
}

// readLoop decodes relay frames into events until the connection drops.
// It is the only sender on the events channel, which preserves frame order.
func (c *wsClient) readLoop() {
	defer close(c.events)

	ctx := context.Background()
	for {
		var frame inboundFrame
		if err := wsjson.Read(ctx, c.conn, &frame); err != nil {
			c.events <- Closed{Code: closeCode(err), Reason: closeReason(err)}
			return
		}

		switch frame.Type {
		case "pairing_code":
			c.events <- PairingCode{Code: frame.Code}
		case "open":
			c.events <- Connected{JID: frame.JID, Platform: frame.Platform}
		case "close":
			c.events <- Closed{Code: frame.Status, Reason: frame.Reason}
			return
		case "creds":
			c.events <- CredsUpdate{Creds: frame.Creds}
		case "keys":
			c.events <- KeysUpdate{Keys: frame.Keys}
		case "message":
			c.events <- MessageReceived{From: frame.From, Kind: frame.Kind, Preview: frame.Preview}
		default:
			c.logger.Debug("ignoring unknown frame", "type", frame.Type)
		}
	}
}

// closeCode extracts the close status carried by a read error, zero if none.
func closeCode(err error) int {
	if status := websocket.CloseStatus(err); status != -1 {
		return int(status)
	}
	return 0
}

// closeReason extracts the close reason carried by a read error.
func closeReason(err error) string {
	var ce websocket.CloseError
	if errors.As(err, &ce) && ce.Reason != "" {
		return ce.Reason
	}
	return err.Error()
}

func (c *wsClient) write(ctx context.Context, frame outboundFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsjson.Write(ctx, c.conn, frame)
}

// SendText dispatches a text message to the given address.
func (c *wsClient) SendText(ctx context.Context, to, text string) error {
	err := c.write(ctx, outboundFrame{
		Type: "send",
		ID:   uuid.NewString(),
		To:   to,
		Text: text,
	})
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// SendImage dispatches an image message with an optional caption.
func (c *wsClient) SendImage(ctx context.Context, to, imageURL, caption string) error {
	err := c.write(ctx, outboundFrame{
		Type:     "send",
		ID:       uuid.NewString(),
		To:       to,
		ImageURL: imageURL,
		Caption:  caption,
	})
	if err != nil {
		return fmt.Errorf("sending image: %w", err)
	}
	return nil
}

// Close tears down the connection; the read loop then emits the final Closed
// event and closes the stream.
func (c *wsClient) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "shutting down")
}
