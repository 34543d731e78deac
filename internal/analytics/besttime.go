package analytics

import (
	"time"

	"github.com/lumenmail/campaignd/internal/campaign"
)

// MinOpensForRecommendation is the floor below which the cross-campaign
// send-time recommendation is withheld. More than this many opens must be
// present in the analyzed window.
const MinOpensForRecommendation = 10

// Recommendation is the cross-campaign best-send-time suggestion.
type Recommendation struct {
	BestHour      int `json:"best_hour"`
	BestWeekday   int `json:"best_weekday"`
	OpensAnalyzed int `json:"opens_analyzed"`
}

// BestSendTime reduces events from every campaign (callers cap the fetch at
// MaxEventsAllTime, most recent first) into a single recommended hour and
// weekday. Returns nil when there is not yet enough open data to say
// anything useful.
func BestSendTime(events []campaign.Event, loc *time.Location) *Recommendation {
	opens := 0
	for _, e := range events {
		if e.Type == campaign.EventOpen {
			opens++
		}
	}
	if opens <= MinOpensForRecommendation {
		return nil
	}

	hours := HourHistogram(events, loc)
	days := WeekdayHistogram(events, loc)
	return &Recommendation{
		BestHour:      BestHour(hours),
		BestWeekday:   BestWeekday(days),
		OpensAnalyzed: opens,
	}
}
