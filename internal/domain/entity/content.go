package entity

import "time"

// ContentSummary is one digest item: a published article or news story.
type ContentSummary struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Summary     string    `json:"summary"`
	PublishedAt time.Time `json:"published_at"`
}
