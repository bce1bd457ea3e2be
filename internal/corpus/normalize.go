package corpus

import (
	"strings"
	"time"

	"eventsearch/internal/domain"
)

const dateLayout = "2006-01-02"

// Normalize converts loosely-shaped raw event maps into canonical records.
// IDs are assigned by ordinal position. A malformed record never aborts the
// batch; it yields a record with best-effort defaults. The input maps are
// not mutated.
func Normalize(raw []map[string]any, now time.Time) []domain.Event {
	events := make([]domain.Event, len(raw))
	for i, m := range raw {
		ev := domain.Event{
			ID:          i,
			Title:       stringField(m, "title"),
			Place:       stringField(m, "place"),
			Host:        stringField(m, "host"),
			Period:      stringField(m, "period"),
			Category:    stringField(m, "category"),
			Description: stringField(m, "description", "overview", "deep_data"),
			URL:         stringField(m, "url", "link"),

			TitleEN:       stringField(m, "title_en"),
			PlaceEN:       stringField(m, "place_en"),
			HostEN:        stringField(m, "host_en"),
			PeriodEN:      stringField(m, "period_en"),
			CategoryEN:    stringField(m, "category_en"),
			DescriptionEN: stringField(m, "description_en"),
		}
		ev.State = ComputeState(ev.Period, now)
		events[i] = ev
	}
	return events
}

// ComputeState derives the lifecycle state from a "<start>~<end>" period
// string with strict YYYY-MM-DD dates on both sides. Any parse failure,
// including a missing separator, yields StateUnknown. Only the local date of
// today matters; no timezone normalization is applied.
func ComputeState(period string, today time.Time) domain.State {
	if !strings.Contains(period, "~") {
		return domain.StateUnknown
	}
	startStr, endStr, _ := strings.Cut(period, "~")
	start, err := time.ParseInLocation(dateLayout, strings.TrimSpace(startStr), today.Location())
	if err != nil {
		return domain.StateUnknown
	}
	end, err := time.ParseInLocation(dateLayout, strings.TrimSpace(endStr), today.Location())
	if err != nil {
		return domain.StateUnknown
	}
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	switch {
	case day.Before(start):
		return domain.StateScheduled
	case day.After(end):
		return domain.StateEnded
	default:
		return domain.StateOngoing
	}
}

// stringField returns the first non-empty string value among the keys.
func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok {
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		}
	}
	return ""
}
