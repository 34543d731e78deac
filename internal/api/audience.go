package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"
)

type audienceCreateRequest struct {
	Email            string `json:"email"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	MarketingAllowed bool   `json:"is_marketing_allowed"`
}

type tagRequest struct {
	Tag string `json:"tag"`
}

// ListAudience pages through audience users with the eligible total for
// the audience summary card.
func (h *Handlers) ListAudience(w http.ResponseWriter, r *http.Request) {
	pag := ParsePagination(r, 50, 200)

	users, total, err := h.store.Audience.List(r.Context(), pag.Limit, pag.Offset)
	if err != nil {
		h.log.Error("list audience failed", "error", err.Error())
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, NewPaginatedResponse(users, pag, total))
}

// GetAudienceUser returns one audience user with tags.
func (h *Handlers) GetAudienceUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.store.Audience.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondStoreError(w, err, "audience user not found")
		return
	}
	respondJSON(w, http.StatusOK, u)
}

// CreateAudienceUser registers a new audience member.
func (h *Handlers) CreateAudienceUser(w http.ResponseWriter, r *http.Request) {
	var req audienceCreateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if !strings.Contains(req.Email, "@") {
		respondError(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	u, err := h.store.Audience.Create(r.Context(), req.Email, req.FirstName, req.LastName, req.MarketingAllowed)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			respondError(w, http.StatusConflict, "email already registered")
			return
		}
		h.log.Error("create audience user failed", "error", err.Error())
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusCreated, u)
}

// AddAudienceTag attaches a tag; adding an existing tag is a no-op.
func (h *Handlers) AddAudienceTag(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req tagRequest
	if err := decodeBody(r, &req); err != nil || strings.TrimSpace(req.Tag) == "" {
		respondError(w, http.StatusBadRequest, "tag is required")
		return
	}

	if err := h.store.Audience.AddTag(r.Context(), id, strings.TrimSpace(req.Tag)); err != nil {
		h.respondStoreError(w, err, "audience user not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RemoveAudienceTag detaches a tag.
func (h *Handlers) RemoveAudienceTag(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tag := chi.URLParam(r, "tag")

	if err := h.store.Audience.RemoveTag(r.Context(), id, tag); err != nil {
		h.respondStoreError(w, err, "audience user not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// UnsubscribeAudienceUser opts a user out from the admin side. Repeating
// the call keeps the original opt-out time.
func (h *Handlers) UnsubscribeAudienceUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.Audience.Unsubscribe(r.Context(), id); err != nil {
		h.respondStoreError(w, err, "audience user not found")
		return
	}
	h.log.Info("audience user unsubscribed", "audience_user_id", id)
	respondJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}

// AudienceSummary reports the eligible recipient count the campaign editor
// shows before a send.
func (h *Handlers) AudienceSummary(w http.ResponseWriter, r *http.Request) {
	eligible, err := h.store.Audience.CountEligible(r.Context())
	if err != nil {
		h.log.Error("count eligible failed", "error", err.Error())
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"eligible": eligible})
}
