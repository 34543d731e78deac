package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lumenmail/campaignd/internal/campaign"
	"github.com/lumenmail/campaignd/internal/repository/postgres"
)

// ListCampaigns returns a page of campaigns, optionally filtered by status
// or a name/subject search.
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	pag := ParsePagination(r, 20, 100)

	status := r.URL.Query().Get("status")
	if status != "" && !campaign.Status(status).Valid() {
		respondError(w, http.StatusBadRequest, "unknown status filter")
		return
	}

	campaigns, total, err := h.store.Campaigns.List(r.Context(), postgres.ListFilter{
		Status: status,
		Search: r.URL.Query().Get("search"),
		Limit:  pag.Limit,
		Offset: pag.Offset,
	})
	if err != nil {
		h.log.Error("list campaigns failed", "error", err.Error())
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, NewPaginatedResponse(campaigns, pag, total))
}

// GetCampaign returns one campaign in full.
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.store.Campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondStoreError(w, err, "campaign not found")
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// CreateCampaign inserts a new draft.
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.Input
	if err := decodeBody(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := in.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := h.store.Campaigns.Create(r.Context(), &in)
	if err != nil {
		h.log.Error("create campaign failed", "error", err.Error())
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.log.Info("campaign created", "campaign_id", c.ID, "name", c.Name)
	respondJSON(w, http.StatusCreated, c)
}

// UpdateCampaign replaces the editable content fields. Only drafts and
// scheduled campaigns accept edits; anything later returns a conflict.
func (h *Handlers) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var in campaign.Input
	if err := decodeBody(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := in.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := h.store.Campaigns.Update(r.Context(), id, &in)
	if err != nil {
		h.respondStoreError(w, err, "campaign not found")
		return
	}
	h.composer.InvalidateCampaign(id)
	respondJSON(w, http.StatusOK, c)
}

// DeleteCampaign removes a draft. Campaigns past draft keep their history
// and can only be cancelled.
func (h *Handlers) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.Campaigns.Delete(r.Context(), id); err != nil {
		h.respondStoreError(w, err, "campaign not found")
		return
	}
	h.log.Info("campaign deleted", "campaign_id", id)
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// DuplicateCampaign copies content fields into a fresh draft. Counters,
// schedule, and the test-send record do not carry over.
func (h *Handlers) DuplicateCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.store.Campaigns.Duplicate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondStoreError(w, err, "campaign not found")
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

// PreviewCampaign renders the campaign HTML with placeholder recipient
// values and returns it as a page for the editor preview pane.
func (h *Handlers) PreviewCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.store.Campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondStoreError(w, err, "campaign not found")
		return
	}

	rendered, err := h.composer.Preview(c)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(rendered))
}

// ListRecipients pages through a campaign's send queue.
func (h *Handlers) ListRecipients(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pag := ParsePagination(r, 50, 200)

	if _, err := h.store.Campaigns.Get(r.Context(), id); err != nil {
		h.respondStoreError(w, err, "campaign not found")
		return
	}

	recipients, err := h.store.Recipients.ListByCampaign(r.Context(), id, pag.Limit, pag.Offset)
	if err != nil {
		h.log.Error("list recipients failed", "campaign_id", id, "error", err.Error())
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if recipients == nil {
		recipients = []campaign.Recipient{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"data": recipients})
}
