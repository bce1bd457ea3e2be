// Package document renders canonical event records into flat text documents
// suitable for embedding.
package document

import (
	"strings"

	"eventsearch/internal/domain"
)

// Separator joins the selected fields of a document.
const Separator = " \n "

// MaxFieldRunes bounds each free-text field to keep embedding payloads small.
const MaxFieldRunes = 300

// TruncationMark is appended to a field cut at MaxFieldRunes.
const TruncationMark = "…"

// Compose flattens an event into one text document. Non-empty fields are
// concatenated in a fixed priority order, primary fields first and the
// translated shadow fields last so cross-lingual queries can still match.
// When every field is empty the bare title is returned, which may itself be
// empty; callers should filter empty documents before embedding.
func Compose(ev domain.Event) string {
	fields := []string{
		ev.Title,
		ev.Category,
		ev.Period,
		ev.Place,
		ev.Host,
		ev.Description,
		ev.TitleEN,
		ev.CategoryEN,
		ev.PeriodEN,
		ev.PlaceEN,
		ev.HostEN,
		ev.DescriptionEN,
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		parts = append(parts, truncate(f))
	}
	if len(parts) == 0 {
		return strings.TrimSpace(ev.Title)
	}
	return strings.Join(parts, Separator)
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxFieldRunes {
		return s
	}
	return string(runes[:MaxFieldRunes]) + TruncationMark
}
