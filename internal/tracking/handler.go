// Package tracking serves the public engagement endpoints: the open
// pixel, click redirects, one-click unsubscribe, and the ESP bounce
// webhook. These run on their own listener so the admin API never shares
// a port with recipient-facing traffic.
package tracking

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lumenmail/campaignd/internal/pkg/logger"
	"github.com/lumenmail/campaignd/internal/repository/postgres"
)

// Recorder is the slice of the event store the handlers need.
type Recorder interface {
	RecordOpen(ctx context.Context, trackingID string, meta postgres.EventMeta) error
	RecordClick(ctx context.Context, trackingID, linkURL string, meta postgres.EventMeta) error
	RecordBounce(ctx context.Context, trackingID, reason string, meta postgres.EventMeta) error
	RecordSpam(ctx context.Context, trackingID string, meta postgres.EventMeta) error
	RecordUnsubscribe(ctx context.Context, trackingID string, meta postgres.EventMeta) error
}

// Handler hosts the tracking routes.
type Handler struct {
	events Recorder
	signer *Signer
	log    *logger.Logger
}

// NewHandler wires the tracking routes onto a Recorder.
func NewHandler(events Recorder, signer *Signer) *Handler {
	return &Handler{events: events, signer: signer, log: logger.Component("tracking")}
}

// Routes returns the tracking router, mounted under /t.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/o/{trackingID}.gif", h.handleOpen)
	r.Get("/c/{trackingID}", h.handleClick)
	r.Get("/u/{trackingID}", h.handleUnsubscribe)
	r.Post("/webhooks/esp", h.handleESPWebhook)
	return r
}

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

func requestMeta(r *http.Request) postgres.EventMeta {
	return postgres.EventMeta{
		DeviceType: detectDeviceType(r.UserAgent()),
		Country:    r.Header.Get("CF-IPCountry"),
		UserAgent:  r.UserAgent(),
	}
}

// handleOpen records an open and always serves the pixel. Unknown or
// stale tokens still get the image so a recipient never sees a
// broken-image icon.
func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	trackingID := chi.URLParam(r, "trackingID")
	if err := h.events.RecordOpen(r.Context(), trackingID, requestMeta(r)); err != nil && err != postgres.ErrNotFound {
		h.log.Warn("record open failed", "tracking_id", trackingID, "error", err.Error())
	}
	h.servePixel(w)
}

func (h *Handler) servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Write(pixelGIF)
}

// handleClick verifies the signature, records the click, and redirects.
// Recording failures do not block the redirect; losing one event beats
// stranding a recipient.
func (h *Handler) handleClick(w http.ResponseWriter, r *http.Request) {
	trackingID := chi.URLParam(r, "trackingID")
	dest := r.URL.Query().Get("u")
	sig := r.URL.Query().Get("s")

	if dest == "" || !h.signer.VerifyClick(trackingID, dest, sig) {
		http.Error(w, "bad link", http.StatusBadRequest)
		return
	}

	if err := h.events.RecordClick(r.Context(), trackingID, dest, requestMeta(r)); err != nil && err != postgres.ErrNotFound {
		h.log.Warn("record click failed", "tracking_id", trackingID, "error", err.Error())
	}
	http.Redirect(w, r, dest, http.StatusFound)
}

func (h *Handler) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	trackingID := chi.URLParam(r, "trackingID")
	err := h.events.RecordUnsubscribe(r.Context(), trackingID, requestMeta(r))
	if err == postgres.ErrNotFound {
		http.Error(w, "bad link", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("record unsubscribe failed", "tracking_id", trackingID, "error", err.Error())
		http.Error(w, "something went wrong, please try again", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(`<!DOCTYPE html><html><body style="font-family:Arial,sans-serif;text-align:center;padding:50px;">
		<h1>You have been unsubscribed</h1>
		<p>You will no longer receive emails from us.</p>
	</body></html>`))
}

// espWebhookPayload is the normalized notification the ESP integration
// posts for delivery failures and complaints.
type espWebhookPayload struct {
	TrackingID string `json:"tracking_id"`
	Type       string `json:"type"` // "bounce" or "complaint"
	Reason     string `json:"reason,omitempty"`
}

func (h *Handler) handleESPWebhook(w http.ResponseWriter, r *http.Request) {
	var p espWebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, `{"error": "invalid payload"}`, http.StatusBadRequest)
		return
	}

	var err error
	switch p.Type {
	case "bounce":
		err = h.events.RecordBounce(r.Context(), p.TrackingID, p.Reason, postgres.EventMeta{})
	case "complaint":
		err = h.events.RecordSpam(r.Context(), p.TrackingID, postgres.EventMeta{})
	default:
		http.Error(w, `{"error": "unknown event type"}`, http.StatusBadRequest)
		return
	}

	if err == postgres.ErrNotFound {
		// Recipient purged or token mangled upstream; nothing to update.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		h.log.Error("webhook processing failed", "tracking_id", p.TrackingID, "type", p.Type, "error", err.Error())
		http.Error(w, `{"error": "internal error"}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// detectDeviceType classifies a User-Agent into the coarse buckets the
// analytics breakdown uses.
func detectDeviceType(ua string) string {
	ua = strings.ToLower(ua)
	if ua == "" {
		return "unknown"
	}
	if strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad") {
		return "tablet"
	}
	if strings.Contains(ua, "mobile") || strings.Contains(ua, "android") || strings.Contains(ua, "iphone") {
		return "mobile"
	}
	return "desktop"
}
