package domain

// State is the lifecycle state of an event relative to "today".
type State string

const (
	StateScheduled State = "scheduled"
	StateOngoing   State = "ongoing"
	StateEnded     State = "ended"
	StateUnknown   State = "unknown"
)

// Event is the canonical in-memory form of one cultural event record.
// All text fields are optional; absent fields are empty strings. The ID is
// assigned by ordinal position when the corpus is loaded and never mutated
// afterwards. The *EN fields carry translated shadow values when a translated
// corpus was merged in.
type Event struct {
	ID          int
	Title       string
	Place       string
	Host        string
	Period      string
	Category    string
	Description string
	URL         string
	State       State

	TitleEN       string
	PlaceEN       string
	HostEN        string
	PeriodEN      string
	CategoryEN    string
	DescriptionEN string
}

// SearchResult pairs an event with its relevance score for one query.
type SearchResult struct {
	Event
	Score float64
}
