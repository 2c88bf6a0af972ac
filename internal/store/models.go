package store

import (
	"strings"
	"time"
)

// Status represents the processing lifecycle of an episode.
type Status string

const (
	StatusUnprocessed Status = "unprocessed"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

var allStatuses = []Status{
	StatusUnprocessed,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Podcast is a subscribed feed persisted in SQLite.
type Podcast struct {
	ID               int64
	Slug             string
	FeedURL          string
	Title            string
	ArtworkURL       string
	Model            string // optional per-podcast LLM override
	DetectionPrompt  string // optional per-podcast prompt override
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastRefreshedAt  *time.Time
	LastRefreshError string
}

// Episode is a feed entry tracked for just-in-time processing.
type Episode struct {
	ID              int64
	PodcastID       int64
	EpisodeKey      string
	GUID            string
	Title           string
	EnclosureURL    string
	EnclosureType   string
	EnclosureLength int64
	PublishedAt     string
	Status          Status
	ErrorMessage    string
	OriginalPath    string
	ProcessedPath   string
	TranscriptPath  string
	AdRangesJSON    string
	DurationSeconds float64
	EditedSeconds   float64
	Attempts        int
	LastHeartbeat   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsProcessing reports whether the episode has an in-flight attempt.
func (e Episode) IsProcessing() bool {
	return e.Status == StatusProcessing
}

// ProcessingRun records one processing attempt for auditing and cost tracking.
type ProcessingRun struct {
	ID               int64
	EpisodeID        int64
	StartedAt        time.Time
	FinishedAt       time.Time
	Outcome          Status
	ErrorMessage     string
	PromptTokens     int64
	CompletionTokens int64
	CostUSD          float64
	AdRangesJSON     string
	SecondsRemoved   float64
}

// HealthSummary describes aggregated episode counts per lifecycle state.
type HealthSummary struct {
	Total       int
	Unprocessed int
	Processing  int
	Completed   int
	Failed      int
}

// DatabaseHealth captures diagnostic information about the episode database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TablesPresent    []string
	MissingTables    []string
	IntegrityCheck   bool
	TotalEpisodes    int
	Error            string
}
