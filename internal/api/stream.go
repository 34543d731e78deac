package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lumenmail/campaignd/internal/analytics"
	"github.com/lumenmail/campaignd/internal/campaign"
)

// streamPollInterval is how often the status stream re-reads the campaign
// while it is in flight.
const streamPollInterval = 5 * time.Second

type statusFrame struct {
	Status          string          `json:"status"`
	TotalRecipients int             `json:"total_recipients"`
	SentCount       int             `json:"sent_count"`
	OpenCount       int             `json:"open_count"`
	ClickCount      int             `json:"click_count"`
	BounceCount     int             `json:"bounce_count"`
	Rates           analytics.Rates `json:"rates"`
}

// StreamCampaignStatus pushes campaign progress as server-sent events
// while a send is in flight. The stream emits one frame immediately, then
// one per poll until the campaign reaches a resting state or the client
// disconnects.
func (h *Handlers) StreamCampaignStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	if _, err := h.store.Campaigns.Get(r.Context(), id); err != nil {
		h.respondStoreError(w, err, "campaign not found")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		c, err := h.store.Campaigns.Get(ctx, id)
		if err != nil {
			return
		}

		frame := statusFrame{
			Status:          string(c.Status),
			TotalRecipients: c.TotalRecipients,
			SentCount:       c.SentCount,
			OpenCount:       c.OpenCount,
			ClickCount:      c.ClickCount,
			BounceCount:     c.BounceCount,
			Rates:           analytics.ComputeRates(c),
		}
		data, _ := json.Marshal(frame)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()

		// Keep streaming only while the campaign can still change.
		if c.Status.Terminal() || c.Status == campaign.StatusDraft {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
