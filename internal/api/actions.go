package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lumenmail/campaignd/internal/campaign"
)

type scheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at"`
}

type testSendRequest struct {
	Email string `json:"email"`
}

// TestSendCampaign delivers the campaign to a single address without
// touching the real queue. A successful test send unlocks scheduling and
// sending for the campaign.
func (h *Handlers) TestSendCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req testSendRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if !strings.Contains(req.Email, "@") {
		respondError(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	c, err := h.store.Campaigns.Get(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err, "campaign not found")
		return
	}
	if !c.Status.Editable() {
		respondError(w, http.StatusConflict, "test sends are only allowed before sending starts")
		return
	}
	if strings.TrimSpace(c.Subject) == "" || (c.HTMLContent == "" && c.PlainContent == "") {
		respondError(w, http.StatusBadRequest, "campaign needs a subject and content before a test send")
		return
	}

	// A throwaway tracking id keeps test opens out of campaign analytics.
	msg, err := h.composer.Compose(c, req.Email, "Test", uuid.NewString())
	if err != nil {
		respondError(w, http.StatusBadRequest, "template error: "+err.Error())
		return
	}
	msg.Subject = "[TEST] " + msg.Subject

	result, err := h.sender.Send(r.Context(), msg)
	if err != nil || !result.Success {
		reason := "delivery failed"
		if err != nil {
			reason = err.Error()
		} else if result.Error != nil {
			reason = result.Error.Error()
		}
		h.log.Error("test send failed", "campaign_id", id, "error", reason)
		respondError(w, http.StatusBadGateway, "test send failed: "+reason)
		return
	}

	if err := h.store.Campaigns.SetTestSent(r.Context(), id, req.Email); err != nil {
		h.respondStoreError(w, err, "campaign not found")
		return
	}
	h.log.Info("test send delivered", "campaign_id", id, "recipient", req.Email)
	respondJSON(w, http.StatusOK, map[string]string{"status": "sent", "message_id": result.MessageID})
}

// ScheduleCampaign books a future send. The campaign must have passed a
// test send and the time must leave the scheduler enough lead.
func (h *Handlers) ScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req scheduleRequest
	if err := decodeBody(r, &req); err != nil || req.ScheduledAt.IsZero() {
		respondError(w, http.StatusBadRequest, "scheduled_at is required")
		return
	}

	c, err := h.store.Campaigns.Get(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err, "campaign not found")
		return
	}
	if err := h.checkSendable(w, c); err != nil {
		return
	}
	if err := campaign.ValidateSchedule(req.ScheduledAt, time.Now()); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.Campaigns.Schedule(r.Context(), id, req.ScheduledAt); err != nil {
		h.respondStoreError(w, err, "campaign not found")
		return
	}
	h.log.Info("campaign scheduled", "campaign_id", id, "scheduled_at", req.ScheduledAt.Format(time.RFC3339))
	respondJSON(w, http.StatusOK, map[string]string{"status": "scheduled"})
}

// UnscheduleCampaign returns a scheduled campaign to draft.
func (h *Handlers) UnscheduleCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.Campaigns.Unschedule(r.Context(), id); err != nil {
		h.respondStoreError(w, err, "campaign not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "draft"})
}

// SendCampaign starts delivery immediately. The status flip and the worker
// handoff commit together, so a crash cannot strand an approved send.
func (h *Handlers) SendCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, err := h.store.Campaigns.Get(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err, "campaign not found")
		return
	}
	if err := h.checkSendable(w, c); err != nil {
		return
	}

	if err := h.store.Campaigns.StartSending(r.Context(), id); err != nil {
		h.respondStoreError(w, err, "campaign not found")
		return
	}
	h.log.Info("campaign send started", "campaign_id", id)
	respondJSON(w, http.StatusOK, map[string]string{"status": "sending"})
}

// PauseCampaign halts an in-flight send after the current batch.
func (h *Handlers) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.Campaigns.Pause(r.Context(), id); err != nil {
		h.respondStoreError(w, err, "campaign not found")
		return
	}
	h.log.Info("campaign paused", "campaign_id", id)
	respondJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

// ResumeCampaign continues a paused send. The worker's queued dispatch
// record picks the campaign back up on its next pass.
func (h *Handlers) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.Campaigns.Resume(r.Context(), id); err != nil {
		h.respondStoreError(w, err, "campaign not found")
		return
	}
	h.log.Info("campaign resumed", "campaign_id", id)
	respondJSON(w, http.StatusOK, map[string]string{"status": "sending"})
}

// CancelCampaign permanently stops a scheduled, sending, or paused
// campaign. Already-delivered messages keep accruing engagement.
func (h *Handlers) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.Campaigns.Cancel(r.Context(), id); err != nil {
		h.respondStoreError(w, err, "campaign not found")
		return
	}
	h.log.Info("campaign cancelled", "campaign_id", id)
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// checkSendable runs the pre-send validation and writes the error response
// itself. Callers return on any non-nil error.
func (h *Handlers) checkSendable(w http.ResponseWriter, c *campaign.Campaign) error {
	if err := c.ValidateForSend(); err != nil {
		if errors.Is(err, campaign.ErrTestSendRequired) {
			respondError(w, http.StatusPreconditionFailed, err.Error())
		} else {
			respondError(w, http.StatusBadRequest, err.Error())
		}
		return err
	}
	if err := h.composer.ValidateContent(c); err != nil {
		respondError(w, http.StatusBadRequest, "template error: "+err.Error())
		return err
	}
	return nil
}
