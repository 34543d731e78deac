// Package analytics reduces campaign counters and the raw event log into
// the derived metrics the dashboard renders. Everything here is a pure
// function of its inputs; callers refetch rows and recompute rather than
// maintaining running aggregates.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/lumenmail/campaignd/internal/campaign"
)

// Fetch caps applied by callers when loading events for reduction.
const (
	MaxEventsPerCampaign = 500
	MaxEventsAllTime     = 5000
)

// Rates are percentage metrics derived from campaign counters, rounded to
// one decimal place. All divisions guard against a zero denominator.
type Rates struct {
	DeliveryRate    float64 `json:"delivery_rate"`
	OpenRate        float64 `json:"open_rate"`
	ClickRate       float64 `json:"click_rate"`
	ClickToSentRate float64 `json:"click_to_sent_rate"`
	BounceRate      float64 `json:"bounce_rate"`
}

// CalcRate returns n/d as a percentage rounded to one decimal, or 0 when
// the denominator is zero.
func CalcRate(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(d)*1000) / 10
}

// ComputeRates derives the standard rate block from campaign counters.
func ComputeRates(c *campaign.Campaign) Rates {
	return Rates{
		DeliveryRate:    CalcRate(c.SentCount-c.BounceCount, c.SentCount),
		OpenRate:        CalcRate(c.OpenCount, c.SentCount),
		ClickRate:       CalcRate(c.ClickCount, c.OpenCount),
		ClickToSentRate: CalcRate(c.ClickCount, c.SentCount),
		BounceRate:      CalcRate(c.BounceCount, c.SentCount),
	}
}

// engagement events are opens and clicks; bounces, unsubscribes, and spam
// complaints never feed the time histograms.
func isEngagement(e campaign.Event) bool {
	return e.Type == campaign.EventOpen || e.Type == campaign.EventClick
}

// HourHistogram buckets open and click events by local hour of day.
func HourHistogram(events []campaign.Event, loc *time.Location) [24]int {
	var buckets [24]int
	for _, e := range events {
		if isEngagement(e) {
			buckets[e.CreatedAt.In(loc).Hour()]++
		}
	}
	return buckets
}

// WeekdayHistogram buckets open and click events by local day of week,
// 0 = Sunday.
func WeekdayHistogram(events []campaign.Event, loc *time.Location) [7]int {
	var buckets [7]int
	for _, e := range events {
		if isEngagement(e) {
			buckets[int(e.CreatedAt.In(loc).Weekday())]++
		}
	}
	return buckets
}

// argmax returns the index of the maximum value; ties resolve to the
// lowest index.
func argmax(buckets []int) int {
	best := 0
	for i, v := range buckets {
		if v > buckets[best] {
			best = i
		}
	}
	return best
}

// BestHour returns the hour of day with the most engagement.
func BestHour(buckets [24]int) int { return argmax(buckets[:]) }

// BestWeekday returns the day of week with the most engagement, 0 = Sunday.
func BestWeekday(buckets [7]int) int { return argmax(buckets[:]) }

// TimelineBucket is one hour of the trailing-24h activity chart.
type TimelineBucket struct {
	Start  time.Time `json:"start"`
	Opens  int       `json:"opens"`
	Clicks int       `json:"clicks"`
}

// Timeline returns 24 one-hour buckets ending at the hour containing now.
// Bucket boundaries are hour-truncated, so the last bucket covers the
// partial current hour. Events outside [first bucket, now's hour + 1h)
// are dropped.
func Timeline(events []campaign.Event, now time.Time, loc *time.Location) []TimelineBucket {
	end := now.In(loc).Truncate(time.Hour)
	start := end.Add(-23 * time.Hour)

	buckets := make([]TimelineBucket, 24)
	for i := range buckets {
		buckets[i].Start = start.Add(time.Duration(i) * time.Hour)
	}

	for _, e := range events {
		ts := e.CreatedAt.In(loc)
		if ts.Before(start) || !ts.Before(end.Add(time.Hour)) {
			continue
		}
		i := int(ts.Sub(start) / time.Hour)
		switch e.Type {
		case campaign.EventOpen:
			buckets[i].Opens++
		case campaign.EventClick:
			buckets[i].Clicks++
		}
	}
	return buckets
}

// DeviceBreakdown groups engagement events by device type. Events with no
// device recorded count under "unknown".
func DeviceBreakdown(events []campaign.Event) map[string]int {
	out := map[string]int{}
	for _, e := range events {
		if !isEngagement(e) {
			continue
		}
		device := e.DeviceType
		if device == "" {
			device = "unknown"
		}
		out[device]++
	}
	return out
}

// LinkStat is one entry of the per-link click breakdown.
type LinkStat struct {
	URL    string `json:"url"`
	Clicks int    `json:"clicks"`
}

// LinkPerformance counts click events per link URL, most clicked first.
// Clicks with no recorded URL are excluded.
func LinkPerformance(events []campaign.Event) []LinkStat {
	counts := map[string]int{}
	for _, e := range events {
		if e.Type == campaign.EventClick && e.LinkURL != "" {
			counts[e.LinkURL]++
		}
	}
	out := make([]LinkStat, 0, len(counts))
	for url, n := range counts {
		out = append(out, LinkStat{URL: url, Clicks: n})
	}
	// Stable order for equal counts keeps the dashboard from reshuffling
	// between refreshes.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Clicks != out[j].Clicks {
			return out[i].Clicks > out[j].Clicks
		}
		return out[i].URL < out[j].URL
	})
	return out
}

// Engagement reports the first and last open timestamps, or nil when the
// campaign has no opens yet.
func Engagement(events []campaign.Event) (first, last *time.Time) {
	for _, e := range events {
		if e.Type != campaign.EventOpen {
			continue
		}
		ts := e.CreatedAt
		if first == nil || ts.Before(*first) {
			t := ts
			first = &t
		}
		if last == nil || ts.After(*last) {
			t := ts
			last = &t
		}
	}
	return first, last
}
