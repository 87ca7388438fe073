package domain

import "time"

// ExternalHit is one result returned by the external search source.
type ExternalHit struct {
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Snippet     string     `json:"snippet"`
	SourceLabel string     `json:"source_label"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Stats is the dashboard summary served by the stats endpoint.
type Stats struct {
	Accounts         int                   `json:"accounts"`
	People           int                   `json:"people"`
	Conversations    int                   `json:"conversations"`
	TriggersByStatus map[TriggerStatus]int `json:"triggers_by_status"`
	MessagesByStatus map[MessageStatus]int `json:"messages_by_status"`
}
