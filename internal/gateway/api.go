// ABOUTME: HTTP handlers for status, QR pairing and message send endpoints
// ABOUTME: Request/response shapes mirror what operator tooling already scrapes

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/2389/wa-gateway/internal/session"
)

const serviceName = "wa-gateway"

// SendMessageRequest is the JSON request body for POST /send-message.
type SendMessageRequest struct {
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
}

// SendImageRequest is the JSON request body for POST /send-image.
type SendImageRequest struct {
	Recipient string `json:"recipient"`
	ImageURL  string `json:"imageUrl"`
	Caption   string `json:"caption,omitempty"`
}

// SendResponse is the JSON success echo for both send endpoints.
type SendResponse struct {
	Success   bool   `json:"success"`
	To        string `json:"to"`
	Timestamp string `json:"timestamp"`
}

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Connected          bool   `json:"connected"`
	HasQR              bool   `json:"has_qr"`
	State              string `json:"state"`
	ConnectionAttempts int    `json:"connection_attempts"`
	MaxAttempts        int    `json:"max_attempts"`
	LastError          string `json:"last_error,omitempty"`
	Timestamp          string `json:"timestamp"`
}

// RootResponse is the JSON response for GET /.
type RootResponse struct {
	Status             string `json:"status"`
	Service            string `json:"service"`
	Connected          bool   `json:"connected"`
	HasQR              bool   `json:"has_qr"`
	ConnectionAttempts int    `json:"connection_attempts"`
	LastError          string `json:"last_error,omitempty"`
	Timestamp          string `json:"timestamp"`
}

// QRResponse is the JSON response for GET /qr.
type QRResponse struct {
	Status             string `json:"status"`
	Message            string `json:"message"`
	QRCode             string `json:"qrcode,omitempty"`
	Hint               string `json:"hint,omitempty"`
	ConnectionAttempts int    `json:"connection_attempts,omitempty"`
	LastError          string `json:"last_error,omitempty"`
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Connected     bool    `json:"connected"`
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		g.logger.Error("encoding response failed", "error", err)
	}
}

func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, body map[string]any) {
	g.writeJSON(w, status, body)
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// handleRoot handles GET / with a service status summary.
func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	status := g.sender.Status()
	_, hasQR := g.pairing.Current()

	g.writeJSON(w, http.StatusOK, RootResponse{
		Status:             "online",
		Service:            serviceName,
		Connected:          status.Connected,
		HasQR:              hasQR,
		ConnectionAttempts: status.Attempts,
		LastError:          status.LastError,
		Timestamp:          now(),
	})
}

// handleStatus handles GET /status with the narrower status fields.
func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	status := g.sender.Status()
	_, hasQR := g.pairing.Current()

	g.writeJSON(w, http.StatusOK, StatusResponse{
		Connected:          status.Connected,
		HasQR:              hasQR,
		State:              string(status.State),
		ConnectionAttempts: status.Attempts,
		MaxAttempts:        status.MaxAttempts,
		LastError:          status.LastError,
		Timestamp:          now(),
	})
}

// handleQR handles GET /qr. Three outcomes: already linked, no challenge yet,
// or a rendered pairing code ready to scan.
func (g *Gateway) handleQR(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	status := g.sender.Status()
	if status.Connected {
		g.writeJSON(w, http.StatusOK, QRResponse{
			Status:  "connected",
			Message: "session already linked",
		})
		return
	}

	challenge, ok := g.pairing.Current()
	if !ok || challenge.DataURL() == "" {
		g.writeJSON(w, http.StatusOK, QRResponse{
			Status:             "waiting",
			Message:            "waiting for pairing code",
			Hint:               "reload in a few seconds",
			ConnectionAttempts: status.Attempts,
			LastError:          status.LastError,
		})
		return
	}

	g.writeJSON(w, http.StatusOK, QRResponse{
		Status:  "qr_ready",
		QRCode:  challenge.DataURL(),
		Message: "scan with the phone under Linked Devices",
	})
}

// handleQRImage handles GET /qr-image with the raw PNG bytes.
func (g *Gateway) handleQRImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	challenge, ok := g.pairing.Current()
	if !ok || len(challenge.PNG) == 0 {
		http.Error(w, "QR not available yet", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(challenge.PNG)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(challenge.PNG); err != nil {
		g.logger.Error("writing QR image failed", "error", err)
	}
}

// handleHealth handles GET /health with liveness, uptime and the link flag.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "healthy",
		UptimeSeconds: g.Uptime().Seconds(),
		Connected:     g.sender.Status().Connected,
	})
}

// handleSendMessage handles POST /send-message.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, map[string]any{
			"error": "invalid JSON body",
		})
		return
	}

	if req.Recipient == "" || req.Text == "" {
		g.sendJSONError(w, http.StatusBadRequest, map[string]any{
			"error":    "missing required fields",
			"required": map[string]string{"recipient": "56912345678", "text": "Hola!"},
		})
		return
	}

	to, err := g.sender.SendText(r.Context(), req.Recipient, req.Text)
	if errors.Is(err, session.ErrNotConnected) {
		g.sendJSONError(w, http.StatusBadRequest, map[string]any{
			"error": "not connected",
			"hint":  "scan the QR at /qr",
		})
		return
	}
	if err != nil {
		g.logger.Error("sending message failed", "recipient", req.Recipient, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, map[string]any{
			"error":   "send failed",
			"details": err.Error(),
		})
		return
	}

	g.logger.Info("message sent", "to", to)
	g.writeJSON(w, http.StatusOK, SendResponse{Success: true, To: to, Timestamp: now()})
}

// handleSendImage handles POST /send-image.
func (g *Gateway) handleSendImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req SendImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, map[string]any{
			"error": "invalid JSON body",
		})
		return
	}

	if req.Recipient == "" || req.ImageURL == "" {
		g.sendJSONError(w, http.StatusBadRequest, map[string]any{
			"error":    "missing required fields",
			"required": map[string]string{"recipient": "56912345678", "imageUrl": "https://..."},
		})
		return
	}

	to, err := g.sender.SendImage(r.Context(), req.Recipient, req.ImageURL, req.Caption)
	if errors.Is(err, session.ErrNotConnected) {
		g.sendJSONError(w, http.StatusBadRequest, map[string]any{
			"error": "not connected",
			"hint":  "scan the QR at /qr",
		})
		return
	}
	if err != nil {
		g.logger.Error("sending image failed", "recipient", req.Recipient, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, map[string]any{
			"error":   "send failed",
			"details": err.Error(),
		})
		return
	}

	g.logger.Info("image sent", "to", to)
	g.writeJSON(w, http.StatusOK, SendResponse{Success: true, To: to, Timestamp: now()})
}
