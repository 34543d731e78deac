package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lumenmail/campaignd/internal/analytics"
	"github.com/lumenmail/campaignd/internal/campaign"
)

// CampaignStats returns the counters, rates, and engagement breakdowns for
// one campaign. Event-derived sections run over the most recent
// MaxEventsPerCampaign events.
func (h *Handlers) CampaignStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	c, err := h.store.Campaigns.Get(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err, "campaign not found")
		return
	}

	events, err := h.store.Events.ListByCampaign(r.Context(), id, analytics.MaxEventsPerCampaign)
	if err != nil {
		h.log.Error("list events failed", "campaign_id", id, "error", err.Error())
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	loc := requestLocation(r)
	first, last := analytics.Engagement(events)
	hours := analytics.HourHistogram(events, loc)
	weekdays := analytics.WeekdayHistogram(events, loc)

	stats := map[string]interface{}{
		"campaign_id":        c.ID,
		"status":             c.Status,
		"total_recipients":   c.TotalRecipients,
		"sent_count":         c.SentCount,
		"open_count":         c.OpenCount,
		"click_count":        c.ClickCount,
		"bounce_count":       c.BounceCount,
		"unsubscribe_count":  c.UnsubscribeCount,
		"spam_count":         c.SpamCount,
		"rates":              analytics.ComputeRates(c),
		"device_breakdown":   analytics.DeviceBreakdown(events),
		"link_performance":   analytics.LinkPerformance(events),
		"hourly_engagement":  hours,
		"weekday_engagement": weekdays,
		"best_hour":          analytics.BestHour(hours),
		"best_weekday":       analytics.BestWeekday(weekdays),
	}
	if first != nil {
		stats["first_engagement_at"] = first
	}
	if last != nil {
		stats["last_engagement_at"] = last
	}
	if rec := analytics.BestSendTime(events, loc); rec != nil {
		stats["best_send_time"] = rec
	}

	respondJSON(w, http.StatusOK, stats)
}

// CampaignTimeline returns hourly open/click buckets for the trailing 24
// hours, including the partial current hour.
func (h *Handlers) CampaignTimeline(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.store.Campaigns.Get(r.Context(), id); err != nil {
		h.respondStoreError(w, err, "campaign not found")
		return
	}

	events, err := h.store.Events.ListByCampaign(r.Context(), id, analytics.MaxEventsPerCampaign)
	if err != nil {
		h.log.Error("list events failed", "campaign_id", id, "error", err.Error())
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	buckets := analytics.Timeline(events, time.Now(), requestLocation(r))
	respondJSON(w, http.StatusOK, map[string]interface{}{"timeline": buckets})
}

// BestSendTime recommends a send hour and weekday from engagement across
// all campaigns. Withheld until enough opens have accumulated.
func (h *Handlers) BestSendTime(w http.ResponseWriter, r *http.Request) {
	events, err := h.store.Events.ListRecent(r.Context(), analytics.MaxEventsAllTime)
	if err != nil {
		h.log.Error("list events failed", "error", err.Error())
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	rec := analytics.BestSendTime(events, requestLocation(r))
	if rec == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"available": false,
			"reason":    "not enough open data yet",
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"available":      true,
		"recommendation": rec,
	})
}

// RecentEvents feeds the dashboard's live activity list.
func (h *Handlers) RecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	events, err := h.store.Events.ListRecent(r.Context(), limit)
	if err != nil {
		h.log.Error("list events failed", "error", err.Error())
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if events == nil {
		events = []campaign.Event{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"data": events})
}

// requestLocation resolves the tz query param, defaulting to UTC. Hour and
// weekday breakdowns shift with the viewer's timezone.
func requestLocation(r *http.Request) *time.Location {
	name := r.URL.Query().Get("tz")
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
