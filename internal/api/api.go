// Package api serves the campaign admin HTTP surface.
package api

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/lumenmail/campaignd/internal/pkg/logger"
	"github.com/lumenmail/campaignd/internal/repository/postgres"
	"github.com/lumenmail/campaignd/internal/worker"
)

// Handlers carries the dependencies shared by every admin endpoint.
type Handlers struct {
	store    *postgres.Store
	composer *worker.Composer
	sender   worker.ESPSender

	log *logger.Logger
}

// NewHandlers wires the handler set. sender may be a disabled stub when no
// ESP credentials are configured; test sends then fail with a clear error.
func NewHandlers(store *postgres.Store, composer *worker.Composer, sender worker.ESPSender) *Handlers {
	return &Handlers{
		store:    store,
		composer: composer,
		sender:   sender,
		log:      logger.Component("api"),
	}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondStoreError maps the repository sentinel errors onto HTTP statuses.
func (h *Handlers) respondStoreError(w http.ResponseWriter, err error, notFoundMsg string) {
	switch err {
	case postgres.ErrNotFound:
		respondError(w, http.StatusNotFound, notFoundMsg)
	case postgres.ErrConflict:
		respondError(w, http.StatusConflict, "operation not allowed in current status")
	default:
		h.log.Error("store error", "error", err.Error())
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// PaginationParams are the parsed page/limit query values.
type PaginationParams struct {
	Page   int
	Limit  int
	Offset int
}

// PaginatedResponse wraps list data with paging metadata.
type PaginatedResponse struct {
	Data       interface{}    `json:"data"`
	Pagination PaginationMeta `json:"pagination"`
}

// PaginationMeta describes the page that was returned.
type PaginationMeta struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
}

// ParsePagination reads page and limit query params, clamping limit to
// maxLimit.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) PaginationParams {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return PaginationParams{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// NewPaginatedResponse attaches paging metadata to a result page.
func NewPaginatedResponse(data interface{}, params PaginationParams, total int) PaginatedResponse {
	totalPages := int(math.Ceil(float64(total) / float64(params.Limit)))
	if totalPages < 1 {
		totalPages = 1
	}
	return PaginatedResponse{
		Data: data,
		Pagination: PaginationMeta{
			Page:       params.Page,
			Limit:      params.Limit,
			Total:      total,
			TotalPages: totalPages,
			HasMore:    params.Page < totalPages,
		},
	}
}
