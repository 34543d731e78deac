package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenmail/campaignd/internal/campaign"
)

func evt(t campaign.EventType, at time.Time) campaign.Event {
	return campaign.Event{Type: t, CreatedAt: at}
}

func TestComputeRates(t *testing.T) {
	c := &campaign.Campaign{
		SentCount:   100,
		OpenCount:   40,
		ClickCount:  10,
		BounceCount: 5,
	}
	r := ComputeRates(c)
	assert.Equal(t, 95.0, r.DeliveryRate)
	assert.Equal(t, 40.0, r.OpenRate)
	assert.Equal(t, 25.0, r.ClickRate)
	assert.Equal(t, 10.0, r.ClickToSentRate)
	assert.Equal(t, 5.0, r.BounceRate)
}

func TestComputeRatesZeroSent(t *testing.T) {
	r := ComputeRates(&campaign.Campaign{})
	assert.Zero(t, r.DeliveryRate)
	assert.Zero(t, r.OpenRate)
	assert.Zero(t, r.ClickRate)
	assert.Zero(t, r.ClickToSentRate)
	assert.Zero(t, r.BounceRate)
}

func TestCalcRateRounding(t *testing.T) {
	assert.Equal(t, 33.3, CalcRate(1, 3))
	assert.Equal(t, 66.7, CalcRate(2, 3))
	assert.Equal(t, 100.0, CalcRate(7, 7))
	assert.Equal(t, 0.0, CalcRate(5, 0))
}

func TestHourHistogramTieBreak(t *testing.T) {
	loc := time.UTC
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, loc)

	// Equal counts at hours 3 and 9; every other hour lower.
	events := []campaign.Event{
		evt(campaign.EventOpen, base.Add(3*time.Hour)),
		evt(campaign.EventOpen, base.Add(3*time.Hour+10*time.Minute)),
		evt(campaign.EventOpen, base.Add(9*time.Hour)),
		evt(campaign.EventOpen, base.Add(9*time.Hour+30*time.Minute)),
		evt(campaign.EventClick, base.Add(15*time.Hour)),
	}

	buckets := HourHistogram(events, loc)
	assert.Equal(t, 2, buckets[3])
	assert.Equal(t, 2, buckets[9])
	assert.Equal(t, 3, BestHour(buckets))
}

func TestHourHistogramRepeatedOpens(t *testing.T) {
	loc := time.UTC
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, loc)

	var events []campaign.Event
	for _, h := range []int{9, 9, 14, 14, 14} {
		events = append(events, evt(campaign.EventOpen, base.Add(time.Duration(h)*time.Hour)))
	}

	buckets := HourHistogram(events, loc)
	assert.Equal(t, 3, buckets[14])
	assert.Equal(t, 14, BestHour(buckets))
}

func TestHourHistogramIgnoresNonEngagement(t *testing.T) {
	loc := time.UTC
	at := time.Date(2026, 4, 1, 7, 0, 0, 0, loc)
	events := []campaign.Event{
		evt(campaign.EventBounce, at),
		evt(campaign.EventUnsubscribe, at),
		evt(campaign.EventSpam, at),
	}
	buckets := HourHistogram(events, loc)
	assert.Equal(t, [24]int{}, buckets)
}

func TestWeekdayHistogram(t *testing.T) {
	loc := time.UTC
	sunday := time.Date(2026, 4, 5, 12, 0, 0, 0, loc)
	require.Equal(t, time.Sunday, sunday.Weekday())

	events := []campaign.Event{
		evt(campaign.EventOpen, sunday),
		evt(campaign.EventOpen, sunday.AddDate(0, 0, 2)), // Tuesday
		evt(campaign.EventClick, sunday.AddDate(0, 0, 2)),
	}
	buckets := WeekdayHistogram(events, loc)
	assert.Equal(t, 1, buckets[0])
	assert.Equal(t, 2, buckets[2])
	assert.Equal(t, 2, BestWeekday(buckets))
}

func TestTimeline(t *testing.T) {
	loc := time.UTC
	now := time.Date(2026, 4, 10, 14, 37, 0, 0, loc)

	events := []campaign.Event{
		// Partial current hour is included.
		evt(campaign.EventOpen, time.Date(2026, 4, 10, 14, 20, 0, 0, loc)),
		evt(campaign.EventClick, time.Date(2026, 4, 10, 14, 35, 0, 0, loc)),
		// Oldest bucket boundary: 23h before the truncated hour.
		evt(campaign.EventOpen, time.Date(2026, 4, 9, 15, 0, 0, 0, loc)),
		// Just before the window: dropped.
		evt(campaign.EventOpen, time.Date(2026, 4, 9, 14, 59, 0, 0, loc)),
		// After now's hour window: dropped.
		evt(campaign.EventOpen, time.Date(2026, 4, 10, 15, 0, 0, 0, loc)),
	}

	buckets := Timeline(events, now, loc)
	require.Len(t, buckets, 24)

	assert.Equal(t, time.Date(2026, 4, 9, 15, 0, 0, 0, loc), buckets[0].Start)
	assert.Equal(t, time.Date(2026, 4, 10, 14, 0, 0, 0, loc), buckets[23].Start)

	assert.Equal(t, 1, buckets[0].Opens)
	assert.Equal(t, 1, buckets[23].Opens)
	assert.Equal(t, 1, buckets[23].Clicks)

	total := 0
	for _, b := range buckets {
		total += b.Opens + b.Clicks
	}
	assert.Equal(t, 3, total)
}

func TestDeviceBreakdown(t *testing.T) {
	at := time.Now()
	events := []campaign.Event{
		{Type: campaign.EventOpen, DeviceType: "mobile", CreatedAt: at},
		{Type: campaign.EventOpen, DeviceType: "mobile", CreatedAt: at},
		{Type: campaign.EventClick, DeviceType: "desktop", CreatedAt: at},
		{Type: campaign.EventOpen, CreatedAt: at},
		{Type: campaign.EventBounce, DeviceType: "mobile", CreatedAt: at},
	}
	out := DeviceBreakdown(events)
	assert.Equal(t, map[string]int{"mobile": 2, "desktop": 1, "unknown": 1}, out)
}

func TestLinkPerformance(t *testing.T) {
	at := time.Now()
	events := []campaign.Event{
		{Type: campaign.EventClick, LinkURL: "https://example.com/b", CreatedAt: at},
		{Type: campaign.EventClick, LinkURL: "https://example.com/a", CreatedAt: at},
		{Type: campaign.EventClick, LinkURL: "https://example.com/a", CreatedAt: at},
		{Type: campaign.EventClick, CreatedAt: at}, // no URL: excluded
		{Type: campaign.EventOpen, LinkURL: "https://example.com/a", CreatedAt: at},
	}
	out := LinkPerformance(events)
	require.Len(t, out, 2)
	assert.Equal(t, LinkStat{URL: "https://example.com/a", Clicks: 2}, out[0])
	assert.Equal(t, LinkStat{URL: "https://example.com/b", Clicks: 1}, out[1])
}

func TestEngagement(t *testing.T) {
	loc := time.UTC
	first := time.Date(2026, 4, 1, 8, 0, 0, 0, loc)
	last := time.Date(2026, 4, 2, 20, 0, 0, 0, loc)

	events := []campaign.Event{
		evt(campaign.EventClick, first.Add(-time.Hour)), // clicks don't count
		evt(campaign.EventOpen, last),
		evt(campaign.EventOpen, first),
		evt(campaign.EventOpen, first.Add(6*time.Hour)),
	}
	gotFirst, gotLast := Engagement(events)
	require.NotNil(t, gotFirst)
	require.NotNil(t, gotLast)
	assert.Equal(t, first, *gotFirst)
	assert.Equal(t, last, *gotLast)

	gotFirst, gotLast = Engagement(nil)
	assert.Nil(t, gotFirst)
	assert.Nil(t, gotLast)
}

func TestBestSendTime(t *testing.T) {
	loc := time.UTC
	at := time.Date(2026, 4, 7, 9, 0, 0, 0, loc) // Tuesday 09:00

	var events []campaign.Event
	for i := 0; i < 11; i++ {
		events = append(events, evt(campaign.EventOpen, at))
	}
	events = append(events, evt(campaign.EventClick, at.Add(time.Hour)))

	rec := BestSendTime(events, loc)
	require.NotNil(t, rec)
	assert.Equal(t, 9, rec.BestHour)
	assert.Equal(t, 2, rec.BestWeekday)
	assert.Equal(t, 11, rec.OpensAnalyzed)
}

func TestBestSendTimeInsufficientData(t *testing.T) {
	loc := time.UTC
	at := time.Now()

	// Exactly the threshold: still withheld, the count must exceed it.
	var events []campaign.Event
	for i := 0; i < MinOpensForRecommendation; i++ {
		events = append(events, evt(campaign.EventOpen, at))
	}
	assert.Nil(t, BestSendTime(events, loc))
	assert.Nil(t, BestSendTime(nil, loc))
}
