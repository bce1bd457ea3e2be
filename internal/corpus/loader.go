// Package corpus loads raw event records from JSON files and normalizes them
// into canonical domain records.
package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"eventsearch/internal/domain"
	"eventsearch/internal/logging"
)

// Loader reads the event corpus from disk. EnglishPath is optional; when the
// file exists its translated fields are merged onto the base records by id
// before normalization. Now is injectable for tests and defaults to
// time.Now.
type Loader struct {
	Path        string
	EnglishPath string
	Now         func() time.Time
}

// Load reads, merges and normalizes the corpus.
func (l *Loader) Load() ([]domain.Event, error) {
	raw, err := readRecords(l.Path)
	if err != nil {
		return nil, fmt.Errorf("load corpus %s: %w", l.Path, err)
	}
	if l.EnglishPath != "" {
		if _, err := os.Stat(l.EnglishPath); err == nil {
			translated, err := readRecords(l.EnglishPath)
			if err != nil {
				logging.Warn("corpus", "failed to read translated corpus %s: %v", l.EnglishPath, err)
			} else {
				raw = mergeTranslated(raw, translated)
			}
		}
	}
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	events := Normalize(raw, now())
	logging.Info("corpus", "loaded %d events from %s", len(events), l.Path)
	return events, nil
}

// readRecords accepts either a top-level JSON array or an {"events": [...]}
// wrapper.
func readRecords(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var list []map[string]any
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var wrapper struct {
		Events []map[string]any `json:"events"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return wrapper.Events, nil
}

// mergeTranslated overlays *_en fields from translated entries onto copies of
// the base records, matching on the "id" field. The inputs are not mutated.
func mergeTranslated(base, translated []map[string]any) []map[string]any {
	byID := make(map[int]map[string]any, len(translated))
	for _, t := range translated {
		if id, ok := numericID(t); ok {
			byID[id] = t
		}
	}
	merged := make([]map[string]any, len(base))
	for i, m := range base {
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		key := i
		if id, ok := numericID(m); ok {
			key = id
		}
		if t, ok := byID[key]; ok {
			for k, v := range t {
				if k == "id" {
					continue
				}
				out[k] = v
			}
		}
		merged[i] = out
	}
	return merged
}

func numericID(m map[string]any) (int, bool) {
	switch v := m["id"].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}
